// Package sqlite provides the durable scheduler store and the read-only
// table source on a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aretw0/stanza/pkg/domain"
)

//go:embed schema.sql
var schemaSQL string

// Store implements ports.SchedulerStore on SQLite.
// Uses WAL mode for concurrent read access.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and the schema automatically; safe to call on an
// existing database.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB, mainly so a Source can share it.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Save persists a pending item. The UNIQUE durable key turns a duplicate
// into a no-op rather than a second wakeup.
func (s *Store) Save(ctx context.Context, item domain.ScheduledExecution) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduled_executions
			(id, durable_key, document_id, block_id, fire_at_epoch, snapshot, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(durable_key) DO NOTHING`,
		item.ID, item.Key(), item.DocumentID, item.BlockID,
		item.FireAtEpoch, item.Snapshot, string(domain.SchedulePending),
	)
	if err != nil {
		return fmt.Errorf("failed to save scheduled item: %w", err)
	}
	return nil
}

// LoadPending returns pending items ordered by fire time.
func (s *Store) LoadPending(ctx context.Context) ([]domain.ScheduledExecution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, block_id, fire_at_epoch, snapshot, status
		FROM scheduled_executions
		WHERE status = ?
		ORDER BY fire_at_epoch, id`,
		string(domain.SchedulePending),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load scheduled items: %w", err)
	}
	defer rows.Close()

	var items []domain.ScheduledExecution
	for rows.Next() {
		var item domain.ScheduledExecution
		var status string
		if err := rows.Scan(&item.ID, &item.DocumentID, &item.BlockID,
			&item.FireAtEpoch, &item.Snapshot, &status); err != nil {
			return nil, fmt.Errorf("failed to scan scheduled item: %w", err)
		}
		item.Status = domain.ScheduleStatus(status)
		items = append(items, item)
	}
	return items, rows.Err()
}

// MarkExecuted transitions an item to executed.
func (s *Store) MarkExecuted(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_executions SET status = ? WHERE id = ?`,
		string(domain.ScheduleExecuted), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update scheduled item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrScheduleNotFound
	}
	return nil
}

// Delete removes an item, freeing its durable key for rescheduling.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM scheduled_executions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete scheduled item: %w", err)
	}
	return nil
}

// DeleteForDocument removes every item belonging to a document.
func (s *Store) DeleteForDocument(ctx context.Context, documentID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM scheduled_executions WHERE document_id = ?`, documentID)
	if err != nil {
		return fmt.Errorf("failed to delete document items: %w", err)
	}
	return nil
}
