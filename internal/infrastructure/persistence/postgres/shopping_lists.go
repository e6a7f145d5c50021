package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"meal-planner/internal/infrastructure/persistence"
	"meal-planner/internal/pkg/common"
)

// SaveShoppingList 在單一交易內寫入新清單並將同一使用者的其他清單標為 superseded
func (db *DB) SaveShoppingList(ctx context.Context, list *common.ShoppingList) error {
	persistence.PrepareList(list)
	now := db.now().UTC()
	if list.CreatedAt.IsZero() {
		list.CreatedAt = now
	}
	list.UpdatedAt = now

	warnings := list.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	warningsJSON, err := persistence.EncodeJSON(warnings)
	if err != nil {
		return err
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO shopping_lists (id, user_id, meal_plan_id, status, warnings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)`,
		list.ID, list.UserID, list.MealPlanID, string(common.ListStatusBuilding), warningsJSON,
		list.CreatedAt, list.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert shopping list: %w", err)
	}

	if err := insertItems(ctx, tx, list); err != nil {
		return err
	}
	if err := insertMergeOptions(ctx, tx, list); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE shopping_lists SET status = $1, updated_at = $2
		WHERE user_id = $3 AND status = $4 AND id <> $5`,
		string(common.ListStatusSuperseded), now, list.UserID, string(common.ListStatusActive), list.ID)
	if err != nil {
		return fmt.Errorf("failed to supersede previous lists: %w", err)
	}

	_, err = tx.Exec(ctx, `UPDATE shopping_lists SET status = $1 WHERE id = $2`,
		string(common.ListStatusActive), list.ID)
	if err != nil {
		return fmt.Errorf("failed to activate shopping list: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit shopping list: %w", err)
	}
	list.Status = common.ListStatusActive
	return nil
}

// GetShoppingList 取得使用者的清單，已刪除視為不存在
func (db *DB) GetShoppingList(ctx context.Context, userID, listID string) (*common.ShoppingList, error) {
	list, err := db.loadList(ctx, `WHERE id = $1 AND status <> $2`, listID, string(common.ListStatusDeleted))
	if err != nil {
		return nil, err
	}
	if list.UserID != userID {
		return nil, persistence.ErrNotListOwner
	}
	return list, nil
}

// GetActiveShoppingList 取得使用者目前的 active 清單
func (db *DB) GetActiveShoppingList(ctx context.Context, userID string) (*common.ShoppingList, error) {
	return db.loadList(ctx, `WHERE user_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT 1`,
		userID, string(common.ListStatusActive))
}

// UpdateShoppingListResolution 在單一交易內替換清單項目與合併選項，並記住決定
func (db *DB) UpdateShoppingListResolution(ctx context.Context, list *common.ShoppingList, decisions []common.MergeDecisionRecord) error {
	persistence.PrepareList(list)
	now := db.now().UTC()

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE shopping_lists SET updated_at = $1
		WHERE id = $2 AND user_id = $3 AND status <> $4`,
		now, list.ID, list.UserID, string(common.ListStatusDeleted))
	if err != nil {
		return fmt.Errorf("failed to update shopping list: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return persistence.ErrShoppingListNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM shopping_list_items WHERE shopping_list_id = $1`, list.ID); err != nil {
		return fmt.Errorf("failed to clear items: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM shopping_list_merge_options WHERE shopping_list_id = $1`, list.ID); err != nil {
		return fmt.Errorf("failed to clear merge options: %w", err)
	}
	if err := insertItems(ctx, tx, list); err != nil {
		return err
	}
	if err := insertMergeOptions(ctx, tx, list); err != nil {
		return err
	}

	for _, d := range decisions {
		ids, err := persistence.EncodeJSON(d.IngredientIDs)
		if err != nil {
			return err
		}
		updatedAt := d.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = now
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO merge_decisions (user_id, ingredient_key, ingredient_ids, decision, updated_at)
			VALUES ($1, $2, $3::jsonb, $4, $5)
			ON CONFLICT (user_id, ingredient_key) DO UPDATE SET
				decision = EXCLUDED.decision,
				updated_at = EXCLUDED.updated_at`,
			d.UserID, d.IngredientIDs.Key(), ids, string(d.Decision), updatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save merge decision: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit resolution: %w", err)
	}
	list.UpdatedAt = now
	return nil
}

// DeleteShoppingList 軟刪除清單
func (db *DB) DeleteShoppingList(ctx context.Context, userID, listID string) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE shopping_lists SET status = $1, updated_at = $2
		WHERE id = $3 AND user_id = $4 AND status <> $1`,
		string(common.ListStatusDeleted), db.now().UTC(), listID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete shopping list: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var owner string
	err = db.Pool.QueryRow(ctx,
		`SELECT user_id FROM shopping_lists WHERE id = $1 AND status <> $2`,
		listID, string(common.ListStatusDeleted)).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return persistence.ErrShoppingListNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check shopping list: %w", err)
	}
	return persistence.ErrNotListOwner
}

// GetMergeDecisions 取得使用者所有記住的決定
func (db *DB) GetMergeDecisions(ctx context.Context, userID string) (map[string]common.Decision, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT ingredient_key, decision FROM merge_decisions WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query merge decisions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]common.Decision)
	for rows.Next() {
		var key, decision string
		if err := rows.Scan(&key, &decision); err != nil {
			return nil, fmt.Errorf("failed to scan merge decision: %w", err)
		}
		out[key] = common.Decision(decision)
	}
	return out, rows.Err()
}

func (db *DB) loadList(ctx context.Context, where string, args ...interface{}) (*common.ShoppingList, error) {
	var (
		list     common.ShoppingList
		status   string
		warnings string
	)
	err := db.Pool.QueryRow(ctx, `
		SELECT id, user_id, meal_plan_id, status, warnings::text, created_at, updated_at
		FROM shopping_lists `+where, args...).
		Scan(&list.ID, &list.UserID, &list.MealPlanID, &status, &warnings, &list.CreatedAt, &list.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, persistence.ErrShoppingListNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load shopping list: %w", err)
	}
	list.Status = common.ShoppingListStatus(status)
	list.CreatedAt = list.CreatedAt.UTC()
	list.UpdatedAt = list.UpdatedAt.UTC()
	if err := persistence.DecodeJSON(warnings, &list.Warnings); err != nil {
		return nil, err
	}

	if list.Items, err = db.loadItems(ctx, list.ID); err != nil {
		return nil, err
	}
	if list.MergeOptions, err = db.loadMergeOptions(ctx, list.ID); err != nil {
		return nil, err
	}
	return &list, nil
}

func (db *DB) loadItems(ctx context.Context, listID string) ([]common.ShoppingListItem, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, ingredient_id, name, total_amount, unit, recipe_breakdown::text, merge_option_id
		FROM shopping_list_items WHERE shopping_list_id = $1 ORDER BY position`, listID)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	items := []common.ShoppingListItem{}
	for rows.Next() {
		var item common.ShoppingListItem
		var breakdown string
		if err := rows.Scan(&item.ID, &item.IngredientID, &item.Name, &item.TotalAmount,
			&item.Unit, &breakdown, &item.MergeOptionID); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		if err := persistence.DecodeJSON(breakdown, &item.RecipeBreakdown); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (db *DB) loadMergeOptions(ctx context.Context, listID string) ([]common.MergeOption, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT merge_id, ingredient_ids::text, suggested_name, canonical_unit, conversion_ratios::text,
		       total_amount, members::text, status, user_decision
		FROM shopping_list_merge_options WHERE shopping_list_id = $1 ORDER BY position`, listID)
	if err != nil {
		return nil, fmt.Errorf("failed to query merge options: %w", err)
	}
	defer rows.Close()

	opts := []common.MergeOption{}
	for rows.Next() {
		var (
			opt    common.MergeOption
			row    persistence.MergeOptionRow
			status string
		)
		if err := rows.Scan(&opt.MergeID, &row.IngredientIDs, &opt.SuggestedName, &opt.CanonicalUnit,
			&row.ConversionRatios, &opt.TotalAmount, &row.Members, &status, &row.UserDecision); err != nil {
			return nil, fmt.Errorf("failed to scan merge option: %w", err)
		}
		opt.Status = common.Status(status)
		if err := persistence.DecodeMergeOption(&opt, row); err != nil {
			return nil, err
		}
		opts = append(opts, opt)
	}
	return opts, rows.Err()
}

func insertItems(ctx context.Context, tx pgx.Tx, list *common.ShoppingList) error {
	if len(list.Items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i, item := range list.Items {
		breakdown, err := persistence.EncodeJSON(item.RecipeBreakdown)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO shopping_list_items
				(id, shopping_list_id, position, ingredient_id, name, total_amount, unit, recipe_breakdown, merge_option_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9)`,
			item.ID, list.ID, i, item.IngredientID, item.Name, item.TotalAmount, item.Unit, breakdown, item.MergeOptionID)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert items: %w", err)
	}
	return nil
}

func insertMergeOptions(ctx context.Context, tx pgx.Tx, list *common.ShoppingList) error {
	if len(list.MergeOptions) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i, opt := range list.MergeOptions {
		row, err := persistence.EncodeMergeOption(opt)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO shopping_list_merge_options
				(shopping_list_id, merge_id, position, ingredient_ids, ingredient_key, suggested_name,
				 canonical_unit, conversion_ratios, total_amount, members, status, user_decision)
			VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, $8::jsonb, $9, $10::jsonb, $11, $12)`,
			list.ID, opt.MergeID, i, row.IngredientIDs, row.IngredientKey, opt.SuggestedName,
			opt.CanonicalUnit, row.ConversionRatios, opt.TotalAmount, row.Members, string(opt.Status), row.UserDecision)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert merge options: %w", err)
	}
	return nil
}
