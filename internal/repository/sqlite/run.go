package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"shellbox/internal/apperror"
	"shellbox/internal/model"
	"shellbox/internal/repository"
)

// COMPILE-TIME INTERFACE CHECK:
// `var _ X = (*Y)(nil)` assigns a nil *Y to a variable of interface type X.
// If *Y doesn't implement X, the compiler errors immediately — much earlier
// than the first call site would.
var _ repository.RunRepository = (*DB)(nil)

// Create inserts a new run into the database, generating its ID and
// creation timestamp. The caller's run is updated in place, which is why
// it comes in as a pointer.
//
// xid IDs are 20 chars, URL-safe, and sortable by creation time — handier
// in logs and URLs than a 36-char UUID.
func (db *DB) Create(ctx context.Context, run *model.Run) error {
	run.ID = xid.New().String()
	run.CreatedAt = time.Now()

	// Parameterized query — the ? placeholders are filled in order and
	// the driver handles escaping.
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO runs (id, blocks, exit_code, output, first_file, duration_ns, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Blocks,
		run.ExitCode,
		run.Output,
		run.FirstFile,
		int64(run.Duration),
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating run: %w", err)
	}

	return nil
}

// GetByID retrieves a single run by its ID.
func (db *DB) GetByID(ctx context.Context, id string) (*model.Run, error) {
	var run model.Run
	var durationNs int64

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, blocks, exit_code, output, first_file, duration_ns, created_at
		 FROM runs
		 WHERE id = ?`,
		id,
	).Scan(
		&run.ID,
		&run.Blocks,
		&run.ExitCode,
		&run.Output,
		&run.FirstFile,
		&durationNs,
		&run.CreatedAt,
	)

	if err != nil {
		// sql.ErrNoRows just means "no matching row exists" — translate
		// it to our domain error so the handler knows to return 404.
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("run", id)
		}
		return nil, fmt.Errorf("sqlite: getting run %s: %w", id, err)
	}

	run.Duration = time.Duration(durationNs)
	return &run, nil
}

// List retrieves runs with pagination, newest first.
func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.Run, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20 // Default page size
	}
	if limit > 100 {
		limit = 100 // Maximum page size — prevent fetching entire DB
	}

	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, blocks, exit_code, output, first_file, duration_ns, created_at
		 FROM runs
		 ORDER BY created_at DESC
		 LIMIT ? OFFSET ?`,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing runs: %w", err)
	}
	// CRITICAL: always close rows when done — they hold a pool connection.
	defer rows.Close()

	runs := make([]model.Run, 0, limit)

	for rows.Next() {
		var r model.Run
		var durationNs int64
		if err := rows.Scan(
			&r.ID, &r.Blocks, &r.ExitCode, &r.Output, &r.FirstFile,
			&durationNs, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning run row: %w", err)
		}
		r.Duration = time.Duration(durationNs)
		runs = append(runs, r)
	}

	// rows.Err() catches errors that happened during iteration, like the
	// connection dropping halfway through.
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating runs: %w", err)
	}

	return runs, nil
}

// Delete removes a run from history by its ID.
// RowsAffected tells us whether the WHERE clause matched anything — zero
// rows affected means the run never existed.
func (db *DB) Delete(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM runs WHERE id = ?`,
		id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting run %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("run", id)
	}

	return nil
}
