// Package persistence records build history in SQLite.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// FileName is the history database file inside the build directory.
const FileName = "_bob_history.db"

// ErrBuildNotFound is returned by GetBuild for an unknown id.
var ErrBuildNotFound = errors.New("build not found")

// Build statuses.
const (
	StatusSuccess  = "success"
	StatusFailed   = "failed"
	StatusAborted  = "aborted"
	StatusCanceled = "canceled"
)

// BuildRecord is one recorded build invocation.
type BuildRecord struct {
	ID         string
	Command    string
	StartedAt  time.Time
	FinishedAt time.Time
	Executed   int
	Failed     int
	Status     string
	Error      string
	Results    []ResultRecord // Filled by GetBuild only
}

// ResultRecord is the stored form of one task result.
type ResultRecord struct {
	Seq      int
	Task     string
	Outputs  []string
	Status   string
	Resource string
	Line     int
	Message  string
	Duration time.Duration
}

// Store defines the persistence interface for build history.
type Store interface {
	// RecordBuild stores a build and its results, assigning an id if empty.
	RecordBuild(ctx context.Context, build *BuildRecord) error
	// ListBuilds returns builds newest first, without results.
	ListBuilds(ctx context.Context, limit int) ([]BuildRecord, error)
	// GetBuild returns a build with its results in execution order.
	GetBuild(ctx context.Context, id string) (*BuildRecord, error)
	// Prune deletes all but the newest keep builds.
	Prune(ctx context.Context, keep int) (int, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode, foreign keys, and busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	// modernc.org/sqlite doesn't support _foreign_keys in the connection string
	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	return open(ctx, connStr)
}

// NewMemoryStore creates an in-memory SQLite store for testing. Each store
// gets its own named database, shared between the store's connections.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	connStr := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	return open(ctx, connStr)
}

func open(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys via PRAGMA (required for modernc.org/sqlite)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// One connection keeps the foreign_keys pragma in effect for every statement.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
