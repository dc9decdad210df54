package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS builds (
		id TEXT PRIMARY KEY,
		command TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		executed INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		status TEXT NOT NULL,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_builds_started_at ON builds(started_at);

	CREATE TABLE IF NOT EXISTS task_results (
		build_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		task TEXT NOT NULL,
		outputs TEXT,
		status TEXT NOT NULL,
		resource TEXT,
		line INTEGER NOT NULL DEFAULT 0,
		message TEXT,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (build_id, seq),
		FOREIGN KEY (build_id) REFERENCES builds(id) ON DELETE CASCADE
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
