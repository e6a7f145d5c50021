package sqlite

import "database/sql"

// schema 啟動時建立資料表
const schema = `
CREATE TABLE IF NOT EXISTS ingredient_comparisons (
    name1 TEXT NOT NULL,
    name2 TEXT NOT NULL,
    status TEXT NOT NULL,
    canonical_unit TEXT NOT NULL DEFAULT '',
    conversion_ratio1 REAL,
    conversion_ratio2 REAL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (name1, name2),
    CHECK (name1 <= name2)
);

CREATE TABLE IF NOT EXISTS shopping_lists (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    meal_plan_id TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    warnings TEXT NOT NULL DEFAULT '[]',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS shopping_list_items (
    id TEXT PRIMARY KEY,
    shopping_list_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    ingredient_id TEXT NOT NULL,
    name TEXT NOT NULL,
    total_amount REAL NOT NULL,
    unit TEXT NOT NULL,
    recipe_breakdown TEXT NOT NULL,
    merge_option_id TEXT NOT NULL DEFAULT '',
    FOREIGN KEY (shopping_list_id) REFERENCES shopping_lists(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS shopping_list_merge_options (
    shopping_list_id TEXT NOT NULL,
    merge_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    ingredient_ids TEXT NOT NULL,
    ingredient_key TEXT NOT NULL,
    suggested_name TEXT NOT NULL,
    canonical_unit TEXT NOT NULL,
    conversion_ratios TEXT NOT NULL,
    total_amount REAL NOT NULL,
    members TEXT NOT NULL,
    status TEXT NOT NULL,
    user_decision TEXT,
    PRIMARY KEY (shopping_list_id, merge_id),
    FOREIGN KEY (shopping_list_id) REFERENCES shopping_lists(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS merge_decisions (
    user_id TEXT NOT NULL,
    ingredient_key TEXT NOT NULL,
    ingredient_ids TEXT NOT NULL,
    decision TEXT NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (user_id, ingredient_key)
);

CREATE INDEX IF NOT EXISTS idx_ingredient_comparisons_name2 ON ingredient_comparisons(name2);
CREATE INDEX IF NOT EXISTS idx_shopping_lists_user_status ON shopping_lists(user_id, status);
CREATE INDEX IF NOT EXISTS idx_shopping_list_items_list ON shopping_list_items(shopping_list_id);
CREATE INDEX IF NOT EXISTS idx_merge_options_list ON shopping_list_merge_options(shopping_list_id);
`

func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
