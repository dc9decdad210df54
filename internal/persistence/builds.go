package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RecordBuild stores a build and its results in one transaction.
func (s *SQLiteStore) RecordBuild(ctx context.Context, build *BuildRecord) error {
	if build.ID == "" {
		build.ID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO builds (id, command, started_at, finished_at, executed, failed, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, build.ID, build.Command, build.StartedAt.UnixNano(), build.FinishedAt.UnixNano(),
		build.Executed, build.Failed, build.Status, build.Error)
	if err != nil {
		return fmt.Errorf("failed to insert build: %w", err)
	}

	for i, r := range build.Results {
		seq := r.Seq
		if seq == 0 {
			seq = i + 1
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO task_results (build_id, seq, task, outputs, status, resource, line, message, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, build.ID, seq, r.Task, strings.Join(r.Outputs, ","), r.Status, r.Resource, r.Line, r.Message, r.Duration.Milliseconds())
		if err != nil {
			return fmt.Errorf("failed to insert result %d of build %s: %w", seq, build.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListBuilds returns up to limit builds, newest first. A limit <= 0 returns all.
func (s *SQLiteStore) ListBuilds(ctx context.Context, limit int) ([]BuildRecord, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, command, started_at, finished_at, executed, failed, status, error
		FROM builds
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query builds: %w", err)
	}
	defer rows.Close()

	var builds []BuildRecord
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, err
		}
		builds = append(builds, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating builds: %w", err)
	}

	return builds, nil
}

// GetBuild retrieves a build by id, including its results.
func (s *SQLiteStore) GetBuild(ctx context.Context, id string) (*BuildRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, command, started_at, finished_at, executed, failed, status, error
		FROM builds
		WHERE id = ?
	`, id)
	build, err := scanBuild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrBuildNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, task, outputs, status, resource, line, message, duration_ms
		FROM task_results
		WHERE build_id = ?
		ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r ResultRecord
		var outputs, resource, message sql.NullString
		var durationMs int64
		if err := rows.Scan(&r.Seq, &r.Task, &outputs, &r.Status, &resource, &r.Line, &message, &durationMs); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if outputs.String != "" {
			r.Outputs = strings.Split(outputs.String, ",")
		}
		r.Resource = resource.String
		r.Message = message.String
		r.Duration = time.Duration(durationMs) * time.Millisecond
		build.Results = append(build.Results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results: %w", err)
	}

	return build, nil
}

// Prune deletes every build except the newest keep, with their results.
// It returns the number of builds removed.
func (s *SQLiteStore) Prune(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	const stale = `SELECT id FROM builds WHERE id NOT IN (
		SELECT id FROM builds ORDER BY started_at DESC, rowid DESC LIMIT ?
	)`

	// Results are deleted explicitly so pruning does not depend on the
	// foreign_keys pragma of the connection in use.
	if _, err := tx.ExecContext(ctx, `DELETE FROM task_results WHERE build_id IN (`+stale+`)`, keep); err != nil {
		return 0, fmt.Errorf("failed to prune results: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM builds WHERE id IN (`+stale+`)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune builds: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return int(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBuild(row scanner) (*BuildRecord, error) {
	var b BuildRecord
	var started, finished int64
	var errStr sql.NullString
	err := row.Scan(&b.ID, &b.Command, &started, &finished, &b.Executed, &b.Failed, &b.Status, &errStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan build: %w", err)
	}
	b.StartedAt = time.Unix(0, started)
	b.FinishedAt = time.Unix(0, finished)
	b.Error = errStr.String
	return &b, nil
}
