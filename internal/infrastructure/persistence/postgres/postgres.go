// Package postgres 以 PostgreSQL (pgx) 實作 persistence.Store。
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"meal-planner/internal/infrastructure/config"
	"meal-planner/internal/infrastructure/persistence"
	"meal-planner/internal/pkg/common"
)

var _ persistence.Store = (*DB)(nil)

// DB 包裝連線池
type DB struct {
	Pool *pgxpool.Pool
	now  func() time.Time
}

// Connect 建立連線池並執行 migration
func Connect(cfg *config.DatabaseConfig) (*DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	db := &DB{Pool: pool, now: time.Now}
	if err := db.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	common.LogInfo("資料庫連線成功", zap.String("driver", "postgres"), zap.Int32("max_conns", poolConfig.MaxConns))
	return db, nil
}

// Close 關閉連線池
func (db *DB) Close() error {
	db.Pool.Close()
	return nil
}

// Ping 檢查資料庫連線
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

func (db *DB) runMigrations(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for i, migration := range migrations {
		version := i + 1
		var exists bool
		err := db.Pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check migration %d: %w", version, err)
		}
		if exists {
			continue
		}

		common.LogInfo("套用資料庫 migration", zap.Int("version", version))
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", version, err)
		}
		if _, err := db.Pool.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}
	}
	return nil
}

// migrations 依順序套用，只能在尾端新增
var migrations = []string{
	`
	CREATE TABLE IF NOT EXISTS ingredient_comparisons (
		name1 TEXT NOT NULL,
		name2 TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('same', 'similar', 'different')),
		canonical_unit TEXT NOT NULL DEFAULT '',
		conversion_ratio1 DOUBLE PRECISION,
		conversion_ratio2 DOUBLE PRECISION,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (name1, name2),
		CHECK (name1 <= name2)
	);
	CREATE INDEX IF NOT EXISTS idx_ingredient_comparisons_name2 ON ingredient_comparisons(name2);
	`,
	`
	CREATE TABLE IF NOT EXISTS shopping_lists (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		meal_plan_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		warnings JSONB NOT NULL DEFAULT '[]',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_shopping_lists_user_status ON shopping_lists(user_id, status);

	CREATE TABLE IF NOT EXISTS shopping_list_items (
		id TEXT PRIMARY KEY,
		shopping_list_id TEXT NOT NULL REFERENCES shopping_lists(id) ON DELETE CASCADE,
		position INT NOT NULL,
		ingredient_id TEXT NOT NULL,
		name TEXT NOT NULL,
		total_amount DOUBLE PRECISION NOT NULL,
		unit TEXT NOT NULL,
		recipe_breakdown JSONB NOT NULL DEFAULT '[]',
		merge_option_id TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_shopping_list_items_list ON shopping_list_items(shopping_list_id);

	CREATE TABLE IF NOT EXISTS shopping_list_merge_options (
		shopping_list_id TEXT NOT NULL REFERENCES shopping_lists(id) ON DELETE CASCADE,
		merge_id TEXT NOT NULL,
		position INT NOT NULL,
		ingredient_ids JSONB NOT NULL,
		ingredient_key TEXT NOT NULL,
		suggested_name TEXT NOT NULL,
		canonical_unit TEXT NOT NULL,
		conversion_ratios JSONB NOT NULL DEFAULT '[]',
		total_amount DOUBLE PRECISION NOT NULL,
		members JSONB NOT NULL DEFAULT '[]',
		status TEXT NOT NULL,
		user_decision TEXT,
		PRIMARY KEY (shopping_list_id, merge_id)
	);
	`,
	`
	CREATE TABLE IF NOT EXISTS merge_decisions (
		user_id TEXT NOT NULL,
		ingredient_key TEXT NOT NULL,
		ingredient_ids JSONB NOT NULL,
		decision TEXT NOT NULL CHECK (decision IN ('merge', 'keep_separate')),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, ingredient_key)
	);
	`,
}
