package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"meal-planner/internal/infrastructure/persistence"
	"meal-planner/internal/pkg/common"
)

// SaveShoppingList 在單一交易內寫入新清單並將同一使用者的其他清單標為 superseded
func (s *SQLiteStore) SaveShoppingList(ctx context.Context, list *common.ShoppingList) error {
	persistence.PrepareList(list)
	now := s.now().UTC()
	if list.CreatedAt.IsZero() {
		list.CreatedAt = now
	}
	list.UpdatedAt = now

	warnings, err := persistence.EncodeJSON(nonNilStrings(list.Warnings))
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO shopping_lists (id, user_id, meal_plan_id, status, warnings, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		list.ID, list.UserID, list.MealPlanID, string(common.ListStatusBuilding), warnings,
		unixMilli(list.CreatedAt), unixMilli(list.UpdatedAt),
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

	_, err = tx.ExecContext(ctx, `
		UPDATE shopping_lists SET status = ?, updated_at = ?
		WHERE user_id = ? AND status = ? AND id <> ?`,
		string(common.ListStatusSuperseded), unixMilli(now),
		list.UserID, string(common.ListStatusActive), list.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to supersede previous lists: %w", err)
	}

	_, err = tx.ExecContext(ctx, `UPDATE shopping_lists SET status = ? WHERE id = ?`,
		string(common.ListStatusActive), list.ID)
	if err != nil {
		return fmt.Errorf("failed to activate shopping list: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit shopping list: %w", err)
	}
	list.Status = common.ListStatusActive
	return nil
}

// GetShoppingList 取得使用者的清單，已刪除視為不存在
func (s *SQLiteStore) GetShoppingList(ctx context.Context, userID, listID string) (*common.ShoppingList, error) {
	list, err := s.loadList(ctx, `WHERE id = ? AND status <> ?`, listID, string(common.ListStatusDeleted))
	if err != nil {
		return nil, err
	}
	if list.UserID != userID {
		return nil, persistence.ErrNotListOwner
	}
	return list, nil
}

// GetActiveShoppingList 取得使用者目前的 active 清單
func (s *SQLiteStore) GetActiveShoppingList(ctx context.Context, userID string) (*common.ShoppingList, error) {
	return s.loadList(ctx, `WHERE user_id = ? AND status = ? ORDER BY created_at DESC LIMIT 1`,
		userID, string(common.ListStatusActive))
}

// UpdateShoppingListResolution 在單一交易內替換清單項目與合併選項，並記住決定
func (s *SQLiteStore) UpdateShoppingListResolution(ctx context.Context, list *common.ShoppingList, decisions []common.MergeDecisionRecord) error {
	persistence.PrepareList(list)
	now := s.now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE shopping_lists SET updated_at = ?
		WHERE id = ? AND user_id = ? AND status <> ?`,
		unixMilli(now), list.ID, list.UserID, string(common.ListStatusDeleted))
	if err != nil {
		return fmt.Errorf("failed to update shopping list: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return persistence.ErrShoppingListNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM shopping_list_items WHERE shopping_list_id = ?`, list.ID); err != nil {
		return fmt.Errorf("failed to clear items: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM shopping_list_merge_options WHERE shopping_list_id = ?`, list.ID); err != nil {
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
		_, err = tx.ExecContext(ctx, `
			INSERT INTO merge_decisions (user_id, ingredient_key, ingredient_ids, decision, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(user_id, ingredient_key) DO UPDATE SET
				decision = excluded.decision,
				updated_at = excluded.updated_at`,
			d.UserID, d.IngredientIDs.Key(), ids, string(d.Decision), unixMilli(updatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to save merge decision: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit resolution: %w", err)
	}
	list.UpdatedAt = now
	return nil
}

// DeleteShoppingList 軟刪除清單
func (s *SQLiteStore) DeleteShoppingList(ctx context.Context, userID, listID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE shopping_lists SET status = ?, updated_at = ?
		WHERE id = ? AND user_id = ? AND status <> ?`,
		string(common.ListStatusDeleted), unixMilli(s.now()),
		listID, userID, string(common.ListStatusDeleted))
	if err != nil {
		return fmt.Errorf("failed to delete shopping list: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var owner string
	err = s.db.QueryRowContext(ctx,
		`SELECT user_id FROM shopping_lists WHERE id = ? AND status <> ?`,
		listID, string(common.ListStatusDeleted)).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.ErrShoppingListNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check shopping list: %w", err)
	}
	return persistence.ErrNotListOwner
}

// GetMergeDecisions 取得使用者所有記住的決定
func (s *SQLiteStore) GetMergeDecisions(ctx context.Context, userID string) (map[string]common.Decision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ingredient_key, decision FROM merge_decisions WHERE user_id = ?`, userID)
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

func (s *SQLiteStore) loadList(ctx context.Context, where string, args ...interface{}) (*common.ShoppingList, error) {
	var (
		list                 common.ShoppingList
		status, warnings     string
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, meal_plan_id, status, warnings, created_at, updated_at
		FROM shopping_lists `+where, args...).
		Scan(&list.ID, &list.UserID, &list.MealPlanID, &status, &warnings, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrShoppingListNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load shopping list: %w", err)
	}
	list.Status = common.ShoppingListStatus(status)
	list.CreatedAt = fromUnixMilli(createdAt)
	list.UpdatedAt = fromUnixMilli(updatedAt)
	if err := persistence.DecodeJSON(warnings, &list.Warnings); err != nil {
		return nil, err
	}

	if list.Items, err = s.loadItems(ctx, list.ID); err != nil {
		return nil, err
	}
	if list.MergeOptions, err = s.loadMergeOptions(ctx, list.ID); err != nil {
		return nil, err
	}
	return &list, nil
}

func (s *SQLiteStore) loadItems(ctx context.Context, listID string) ([]common.ShoppingListItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ingredient_id, name, total_amount, unit, recipe_breakdown, merge_option_id
		FROM shopping_list_items WHERE shopping_list_id = ? ORDER BY position`, listID)
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

func (s *SQLiteStore) loadMergeOptions(ctx context.Context, listID string) ([]common.MergeOption, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT merge_id, ingredient_ids, suggested_name, canonical_unit, conversion_ratios,
		       total_amount, members, status, user_decision
		FROM shopping_list_merge_options WHERE shopping_list_id = ? ORDER BY position`, listID)
	if err != nil {
		return nil, fmt.Errorf("failed to query merge options: %w", err)
	}
	defer rows.Close()

	opts := []common.MergeOption{}
	for rows.Next() {
		var (
			opt      common.MergeOption
			row      persistence.MergeOptionRow
			status   string
			decision sql.NullString
		)
		if err := rows.Scan(&opt.MergeID, &row.IngredientIDs, &opt.SuggestedName, &opt.CanonicalUnit,
			&row.ConversionRatios, &opt.TotalAmount, &row.Members, &status, &decision); err != nil {
			return nil, fmt.Errorf("failed to scan merge option: %w", err)
		}
		opt.Status = common.Status(status)
		if decision.Valid {
			row.UserDecision = &decision.String
		}
		if err := persistence.DecodeMergeOption(&opt, row); err != nil {
			return nil, err
		}
		opts = append(opts, opt)
	}
	return opts, rows.Err()
}

func insertItems(ctx context.Context, tx *sql.Tx, list *common.ShoppingList) error {
	for i, item := range list.Items {
		breakdown, err := persistence.EncodeJSON(item.RecipeBreakdown)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO shopping_list_items
				(id, shopping_list_id, position, ingredient_id, name, total_amount, unit, recipe_breakdown, merge_option_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID, list.ID, i, item.IngredientID, item.Name, item.TotalAmount, item.Unit, breakdown, item.MergeOptionID,
		)
		if err != nil {
			return fmt.Errorf("failed to insert item %q: %w", item.Name, err)
		}
	}
	return nil
}

func insertMergeOptions(ctx context.Context, tx *sql.Tx, list *common.ShoppingList) error {
	for i, opt := range list.MergeOptions {
		row, err := persistence.EncodeMergeOption(opt)
		if err != nil {
			return err
		}
		var decision sql.NullString
		if row.UserDecision != nil {
			decision = sql.NullString{String: *row.UserDecision, Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO shopping_list_merge_options
				(shopping_list_id, merge_id, position, ingredient_ids, ingredient_key, suggested_name,
				 canonical_unit, conversion_ratios, total_amount, members, status, user_decision)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			list.ID, opt.MergeID, i, row.IngredientIDs, row.IngredientKey, opt.SuggestedName,
			opt.CanonicalUnit, row.ConversionRatios, opt.TotalAmount, row.Members, string(opt.Status), decision,
		)
		if err != nil {
			return fmt.Errorf("failed to insert merge option %q: %w", opt.MergeID, err)
		}
	}
	return nil
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
