package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/peptaide/peptaide/internal/csvio"
	"github.com/peptaide/peptaide/internal/tables"
)

// exportPageSize bounds how many rows one export query fetches.
const exportPageSize = 1000

// ExportRows fetches every row of a table visible to the user, ordered by
// the table's stable order column, as CSV cells. Values are rendered by
// Postgres so exports are deterministic across runs.
func (s *Store) ExportRows(ctx context.Context, def tables.Definition, userID uuid.UUID) ([]csvio.Row, error) {
	selects := make([]string, len(def.Columns))
	for i, col := range def.Columns {
		selects[i] = quoteIdentifier(col) + "::text"
	}

	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE user_id = $1 ORDER BY %s, %s LIMIT %d OFFSET $2",
		strings.Join(selects, ", "),
		quoteIdentifier(def.Name),
		quoteIdentifier(def.OrderColumn()),
		quoteIdentifier(def.PrimaryKey()),
		exportPageSize,
	)

	var out []csvio.Row
	for offset := 0; ; offset += exportPageSize {
		page, err := s.exportPage(ctx, query, def, userID, offset)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", def.Name, err)
		}
		out = append(out, page...)
		if len(page) < exportPageSize {
			return out, nil
		}
	}
}

func (s *Store) exportPage(ctx context.Context, query string, def tables.Definition, userID uuid.UUID, offset int) ([]csvio.Row, error) {
	rows, err := s.db.Query(ctx, query, userID, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []csvio.Row
	vals := make([]*string, len(def.Columns))
	dests := make([]any, len(def.Columns))
	for i := range vals {
		dests[i] = &vals[i]
	}

	for rows.Next() {
		if err := rows.Scan(dests...); err != nil {
			return nil, err
		}
		row := make(csvio.Row, len(def.Columns))
		for i, col := range def.Columns {
			if vals[i] == nil {
				row[col] = csvio.Null()
			} else {
				row[col] = csvio.String(*vals[i])
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// TableNonEmpty reports whether the user has any rows in the table.
func (s *Store) TableNonEmpty(ctx context.Context, def tables.Definition, userID uuid.UUID) (bool, error) {
	query := fmt.Sprintf(
		"SELECT EXISTS (SELECT 1 FROM %s WHERE user_id = $1)",
		quoteIdentifier(def.Name),
	)
	var exists bool
	if err := s.db.QueryRow(ctx, query, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check %s: %w", def.Name, err)
	}
	return exists, nil
}

// DeleteAllUserData removes every row the user owns, children before
// parents. With preserveProfile the profiles row survives.
func (s *Store) DeleteAllUserData(ctx context.Context, userID uuid.UUID, preserveProfile bool) error {
	for _, name := range tables.DeleteOrder {
		if preserveProfile && name == "profiles" {
			continue
		}
		query := fmt.Sprintf("DELETE FROM %s WHERE user_id = $1", quoteIdentifier(name))
		if _, err := s.db.Exec(ctx, query, userID); err != nil {
			return fmt.Errorf("delete from %s: %w", name, err)
		}
	}
	return nil
}

// insertBatchSize bounds how many rows one generic INSERT carries.
const insertBatchSize = 500

// InsertRows bulk-inserts pre-validated rows into a table. Values must be
// nil, string, float64, or bool; callers render JSON columns to strings
// first. The simple protocol lets Postgres coerce the text values to the
// actual column types (uuid, timestamptz, jsonb, enums).
func (s *Store) InsertRows(ctx context.Context, def tables.Definition, rows []map[string]any) (int, error) {
	inserted := 0
	for start := 0; start < len(rows); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := s.insertBatch(ctx, def, rows[start:end]); err != nil {
			return inserted, fmt.Errorf("insert into %s: %w", def.Name, err)
		}
		inserted += end - start
	}
	return inserted, nil
}

func (s *Store) insertBatch(ctx context.Context, def tables.Definition, rows []map[string]any) error {
	cols := make([]string, len(def.Columns))
	for i, col := range def.Columns {
		cols[i] = quoteIdentifier(col)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", quoteIdentifier(def.Name), strings.Join(cols, ", "))

	args := make([]any, 0, len(rows)*len(def.Columns)+1)
	args = append(args, pgx.QueryExecModeSimpleProtocol)
	n := 1
	for r, row := range rows {
		if r > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for c, col := range def.Columns {
			if c > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", n)
			n++
			args = append(args, row[col])
		}
		sb.WriteByte(')')
	}

	_, err := s.db.Exec(ctx, sb.String(), args...)
	return err
}

// UpsertProfileRow writes a full profiles row, replacing an existing one.
// Bundle imports use this because the profile may already exist.
func (s *Store) UpsertProfileRow(ctx context.Context, row map[string]any) error {
	def, _ := tables.Get("profiles")

	cols := make([]string, len(def.Columns))
	params := make([]string, len(def.Columns))
	var sets []string
	args := make([]any, 0, len(def.Columns)+1)
	args = append(args, pgx.QueryExecModeSimpleProtocol)
	for i, col := range def.Columns {
		cols[i] = quoteIdentifier(col)
		params[i] = fmt.Sprintf("$%d", i+1)
		args = append(args, row[col])
		if col != def.PrimaryKey() {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", quoteIdentifier(col), quoteIdentifier(col)))
		}
	}

	query := fmt.Sprintf(
		"INSERT INTO profiles (%s) VALUES (%s) ON CONFLICT (user_id) DO UPDATE SET %s",
		strings.Join(cols, ", "),
		strings.Join(params, ", "),
		strings.Join(sets, ", "),
	)
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}
