package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ImportRun is one audit record of an import request.
type ImportRun struct {
	ID             uuid.UUID `json:"id"`
	UserID         uuid.UUID `json:"-"`
	Source         string    `json:"source"`
	Mode           string    `json:"mode"`
	OK             bool      `json:"ok"`
	InputRows      int       `json:"input_rows"`
	ImportedEvents int       `json:"imported_events"`
	ErrorCount     int       `json:"error_count"`
	DurationMs     int64     `json:"duration_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// RecordImportRun appends an audit record. Failures here must not fail the
// import itself; callers log and move on.
func (s *Store) RecordImportRun(ctx context.Context, run ImportRun) error {
	const insert = `
		INSERT INTO import_runs (user_id, source, mode, ok, input_rows, imported_events, error_count, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.db.Exec(ctx, insert,
		run.UserID, run.Source, run.Mode, run.OK,
		run.InputRows, run.ImportedEvents, run.ErrorCount, run.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("record import run: %w", err)
	}
	return nil
}

// ListImportRuns returns the user's most recent import runs, newest first.
func (s *Store) ListImportRuns(ctx context.Context, userID uuid.UUID, limit int) ([]ImportRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const query = `
		SELECT id, user_id, source, mode, ok, input_rows, imported_events, error_count, duration_ms, created_at
		FROM import_runs
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`
	rows, err := s.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list import runs: %w", err)
	}
	defer rows.Close()

	var out []ImportRun
	for rows.Next() {
		var r ImportRun
		err := rows.Scan(&r.ID, &r.UserID, &r.Source, &r.Mode, &r.OK,
			&r.InputRows, &r.ImportedEvents, &r.ErrorCount, &r.DurationMs, &r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan import run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
