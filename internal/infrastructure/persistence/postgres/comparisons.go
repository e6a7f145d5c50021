package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"meal-planner/internal/core/comparison"
	"meal-planner/internal/pkg/common"
)

const comparisonColumns = `c.name1, c.name2, c.status, c.canonical_unit, c.conversion_ratio1, c.conversion_ratio2, c.updated_at`

// GetComparisons 依名稱對批次查詢
func (db *DB) GetComparisons(ctx context.Context, pairs []comparison.Pair) ([]comparison.Entry, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	as := make([]string, len(pairs))
	bs := make([]string, len(pairs))
	for i, p := range pairs {
		as[i], bs[i] = p.A, p.B
	}
	return db.queryComparisons(ctx, `
		SELECT `+comparisonColumns+`
		FROM ingredient_comparisons c
		JOIN unnest($1::text[], $2::text[]) AS p(a, b) ON c.name1 = p.a AND c.name2 = p.b`,
		as, bs)
}

// GetComparisonsFor 查詢某個名稱的所有鄰居
func (db *DB) GetComparisonsFor(ctx context.Context, name string) ([]comparison.Entry, error) {
	return db.queryComparisons(ctx, `
		SELECT `+comparisonColumns+` FROM ingredient_comparisons c
		WHERE c.name1 = $1 OR c.name2 = $1`,
		comparison.Normalize(name))
}

// GetComparisonsAmong 查詢兩邊都在 names 內的所有比對
func (db *DB) GetComparisonsAmong(ctx context.Context, names []string) ([]comparison.Entry, error) {
	if len(names) < 2 {
		return nil, nil
	}
	return db.queryComparisons(ctx, `
		SELECT `+comparisonColumns+` FROM ingredient_comparisons c
		WHERE c.name1 = ANY($1) AND c.name2 = ANY($1)`,
		names)
}

// UpsertComparison 依名稱對新增或覆蓋
func (db *DB) UpsertComparison(ctx context.Context, e comparison.Entry) error {
	updatedAt := e.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = db.now()
	}
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO ingredient_comparisons
			(name1, name2, status, canonical_unit, conversion_ratio1, conversion_ratio2, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name1, name2) DO UPDATE SET
			status = EXCLUDED.status,
			canonical_unit = EXCLUDED.canonical_unit,
			conversion_ratio1 = EXCLUDED.conversion_ratio1,
			conversion_ratio2 = EXCLUDED.conversion_ratio2,
			updated_at = EXCLUDED.updated_at`,
		e.Pair.A, e.Pair.B, string(e.Status), e.CanonicalUnit, e.Ratio1, e.Ratio2, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert comparison %s: %w", e.Pair, err)
	}
	return nil
}

func (db *DB) queryComparisons(ctx context.Context, query string, args ...interface{}) ([]comparison.Entry, error) {
	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query comparisons: %w", err)
	}
	defer rows.Close()

	var out []comparison.Entry
	for rows.Next() {
		e, err := scanComparison(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanComparison(row pgx.Row) (comparison.Entry, error) {
	var (
		e      comparison.Entry
		status string
	)
	if err := row.Scan(&e.Pair.A, &e.Pair.B, &status, &e.CanonicalUnit, &e.Ratio1, &e.Ratio2, &e.UpdatedAt); err != nil {
		return e, fmt.Errorf("failed to scan comparison: %w", err)
	}
	e.Status = common.Status(status)
	e.UpdatedAt = e.UpdatedAt.UTC()
	return e, nil
}
