package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "tweets, embeddings and platform resources",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS tweets (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    external_id TEXT UNIQUE NOT NULL,
    text TEXT NOT NULL,
    label INTEGER NOT NULL CHECK(label IN (0, 1)),
    split TEXT NOT NULL CHECK(split IN ('train', 'test')),
    platform_id TEXT,
    uncertainty REAL,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS tweet_embeddings (
    tweet_id INTEGER NOT NULL REFERENCES tweets(id),
    model TEXT NOT NULL,
    dims INTEGER NOT NULL,
    vector BLOB NOT NULL,
    created_at TEXT DEFAULT (datetime('now')),
    PRIMARY KEY (tweet_id, model)
);

CREATE TABLE IF NOT EXISTS platform_resources (
    kind TEXT NOT NULL CHECK(kind IN ('project', 'dataset')),
    name TEXT NOT NULL,
    platform_id TEXT NOT NULL,
    created_at TEXT DEFAULT (datetime('now')),
    PRIMARY KEY (kind, name)
);

CREATE INDEX IF NOT EXISTS idx_tweets_split ON tweets(split);
CREATE INDEX IF NOT EXISTS idx_tweets_platform ON tweets(platform_id);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "experiment runs and batch results",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS experiment_runs (
    id TEXT PRIMARY KEY,
    batch_size INTEGER NOT NULL,
    rounds INTEGER NOT NULL,
    seed INTEGER NOT NULL,
    embedding_model TEXT NOT NULL,
    train_size INTEGER DEFAULT 0,
    test_size INTEGER DEFAULT 0,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS batch_results (
    run_id TEXT NOT NULL REFERENCES experiment_runs(id),
    strategy TEXT NOT NULL,
    round INTEGER NOT NULL,
    train_size INTEGER NOT NULL,
    roc_auc REAL NOT NULL,
    PRIMARY KEY (run_id, strategy, round)
);

CREATE INDEX IF NOT EXISTS idx_batch_results_run ON batch_results(run_id);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
