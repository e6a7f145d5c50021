package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"meal-planner/internal/core/comparison"
	"meal-planner/internal/pkg/common"
)

// SQLite 預設最多 999 個綁定參數，每組名稱對佔兩個
const pairChunkSize = 400

const comparisonColumns = `name1, name2, status, canonical_unit, conversion_ratio1, conversion_ratio2, updated_at`

// GetComparisons 依名稱對批次查詢
func (s *SQLiteStore) GetComparisons(ctx context.Context, pairs []comparison.Pair) ([]comparison.Entry, error) {
	var out []comparison.Entry
	for start := 0; start < len(pairs); start += pairChunkSize {
		end := start + pairChunkSize
		if end > len(pairs) {
			end = len(pairs)
		}
		chunk := pairs[start:end]

		conds := make([]string, len(chunk))
		args := make([]interface{}, 0, len(chunk)*2)
		for i, p := range chunk {
			conds[i] = "(name1 = ? AND name2 = ?)"
			args = append(args, p.A, p.B)
		}

		query := `SELECT ` + comparisonColumns + ` FROM ingredient_comparisons WHERE ` + strings.Join(conds, " OR ")
		entries, err := s.queryComparisons(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	return out, nil
}

// GetComparisonsFor 查詢某個名稱的所有鄰居
func (s *SQLiteStore) GetComparisonsFor(ctx context.Context, name string) ([]comparison.Entry, error) {
	n := comparison.Normalize(name)
	return s.queryComparisons(ctx,
		`SELECT `+comparisonColumns+` FROM ingredient_comparisons WHERE name1 = ? OR name2 = ?`,
		n, n)
}

// GetComparisonsAmong 查詢兩邊都在 names 內的所有比對
func (s *SQLiteStore) GetComparisonsAmong(ctx context.Context, names []string) ([]comparison.Entry, error) {
	if len(names) < 2 {
		return nil, nil
	}
	marks, args := placeholders(names)
	query := `SELECT ` + comparisonColumns + ` FROM ingredient_comparisons WHERE name1 IN (` + marks + `) AND name2 IN (` + marks + `)`
	return s.queryComparisons(ctx, query, append(args, args...)...)
}

// UpsertComparison 依名稱對新增或覆蓋
func (s *SQLiteStore) UpsertComparison(ctx context.Context, e comparison.Entry) error {
	updatedAt := e.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingredient_comparisons (`+comparisonColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name1, name2) DO UPDATE SET
			status = excluded.status,
			canonical_unit = excluded.canonical_unit,
			conversion_ratio1 = excluded.conversion_ratio1,
			conversion_ratio2 = excluded.conversion_ratio2,
			updated_at = excluded.updated_at`,
		e.Pair.A, e.Pair.B, string(e.Status), e.CanonicalUnit,
		nullFloat(e.Ratio1), nullFloat(e.Ratio2), unixMilli(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert comparison %s: %w", e.Pair, err)
	}
	return nil
}

func (s *SQLiteStore) queryComparisons(ctx context.Context, query string, args ...interface{}) ([]comparison.Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query comparisons: %w", err)
	}
	defer rows.Close()

	var out []comparison.Entry
	for rows.Next() {
		var (
			e         comparison.Entry
			status    string
			r1, r2    sql.NullFloat64
			updatedAt int64
		)
		if err := rows.Scan(&e.Pair.A, &e.Pair.B, &status, &e.CanonicalUnit, &r1, &r2, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comparison: %w", err)
		}
		e.Status = common.Status(status)
		if r1.Valid {
			e.Ratio1 = comparison.Float(r1.Float64)
		}
		if r2.Valid {
			e.Ratio2 = comparison.Float(r2.Float64)
		}
		e.UpdatedAt = fromUnixMilli(updatedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
