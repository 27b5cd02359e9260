// Package store is the single-writer SQLite comment table. Every multi-row
// write runs in one transaction per call; contention surfaces as ErrBusy so
// callers can retry the whole batch.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/agentic-research/commentprep/internal/record"
)

// Row is a leased comment: just what a sanitization worker needs.
type Row struct {
	RowID int64
	Name  string
	Body  string
}

// Result is the sanitized text for one row.
type Result struct {
	RowID     int64
	Sanitized string
}

// Options tune the connection.
type Options struct {
	// BusyTimeout is how long SQLite itself waits on a locked database
	// before reporting SQLITE_BUSY. Zero reports contention immediately.
	BusyTimeout time.Duration
}

// Store is the comments table.
type Store struct {
	db   *sql.DB
	path string

	insertSQL string
}

// ErrInvalidPath is returned by Open for paths that cannot be expressed as a
// SQLite URI filename.
var ErrInvalidPath = errors.New("database path must not contain '?', '#' or '%'")

// ValidatePath reports whether path can be opened.
func ValidatePath(path string) error {
	if path == "" || strings.ContainsAny(path, "?#%") {
		return fmt.Errorf("%q: %w", path, ErrInvalidPath)
	}
	return nil
}

// Open opens (creating if needed) the database at path.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(path, opts))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}

	placeholders := make([]any, len(record.Columns))
	insertSQL, _, err := sq.Insert(Table).Columns(record.Columns...).Values(placeholders...).ToSql()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("build insert statement: %w", err)
	}

	return &Store{db: db, path: path, insertSQL: insertSQL}, nil
}

// dsn sets per-connection pragmas through the driver so that every pooled
// connection gets them. path has passed ValidatePath, so it carries no URI
// delimiters. Write transactions start IMMEDIATE, so lock
// contention shows up at BEGIN rather than midway through a batch.
func dsn(path string, opts Options) string {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", opts.BusyTimeout.Milliseconds()))
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

// Path returns the database location.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSchemaIfAbsent creates the comments table if it does not exist.
func (s *Store) CreateSchemaIfAbsent(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTableSQL()); err != nil {
		return fmt.Errorf("create schema: %w", classify(err))
	}
	return nil
}

// InsertBatch writes all records in a single transaction. An empty
// SanitizedBody is stored as NULL, the marker for "not yet written back".
func (s *Store) InsertBatch(ctx context.Context, records []record.Record) error {
	if len(records) == 0 {
		return nil
	}
	return s.withStmt(ctx, "insert batch", s.insertSQL, func(stmt *sql.Stmt) error {
		for i := range records {
			args := records[i].Values()
			args[sanitizedArg] = sql.NullString{String: records[i].SanitizedBody, Valid: records[i].SanitizedBody != ""}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return err
			}
		}
		return nil
	})
}

// SelectUnclaimed returns up to limit rows with is_locked = 0 in store-native
// order.
func (s *Store) SelectUnclaimed(ctx context.Context, limit int) ([]Row, error) {
	query, args, err := sq.Select("rowid", "name", "body").
		From(Table).
		Where(sq.Eq{"is_locked": 0}).
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select unclaimed: %w", classify(err))
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	out := make([]Row, 0, limit)
	for rows.Next() {
		var r Row
		var name, body sql.NullString
		if err := rows.Scan(&r.RowID, &name, &body); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.Name, r.Body = name.String, body.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unclaimed: %w", classify(err))
	}
	return out, nil
}

// Claim sets is_locked = 1 on every given row in one transaction.
func (s *Store) Claim(ctx context.Context, rowIDs []int64) error {
	if len(rowIDs) == 0 {
		return nil
	}
	query, _, err := sq.Update(Table).Set("is_locked", 1).Where(sq.Eq{"rowid": 0}).ToSql()
	if err != nil {
		return fmt.Errorf("build claim: %w", err)
	}
	return s.withStmt(ctx, "claim", query, func(stmt *sql.Stmt) error {
		for _, id := range rowIDs {
			if _, err := stmt.ExecContext(ctx, 1, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteSanitized stores sanitized bodies in one transaction. The value is
// never NULL, so an empty result still marks the row as written. Re-applying
// the same results is harmless.
func (s *Store) WriteSanitized(ctx context.Context, results []Result) error {
	if len(results) == 0 {
		return nil
	}
	query, _, err := sq.Update(Table).Set("sanitized_body", "").Where(sq.Eq{"rowid": 0}).ToSql()
	if err != nil {
		return fmt.Errorf("build write-back: %w", err)
	}
	return s.withStmt(ctx, "write sanitized", query, func(stmt *sql.Stmt) error {
		for _, r := range results {
			if _, err := stmt.ExecContext(ctx, r.Sanitized, r.RowID); err != nil {
				return err
			}
		}
		return nil
	})
}

// ErrUnknownColumn is returned by UpdateField for columns outside the table.
var ErrUnknownColumn = errors.New("unknown column")

// UpdateField sets one column on one row.
func (s *Store) UpdateField(ctx context.Context, rowID int64, column string, value any) error {
	if !knownColumn(column) {
		return fmt.Errorf("update %s: %w", column, ErrUnknownColumn)
	}
	query, args, err := sq.Update(Table).Set(column, value).Where(sq.Eq{"rowid": rowID}).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update %s on row %d: %w", column, rowID, classify(err))
	}
	return nil
}

// BuildIndex creates ix. With ifAbsent false an existing index is an error.
func (s *Store) BuildIndex(ctx context.Context, ix Index, ifAbsent bool) error {
	if !knownColumn(ix.Column) {
		return fmt.Errorf("index %s: %w %q", ix.Name, ErrUnknownColumn, ix.Column)
	}
	if _, err := s.db.ExecContext(ctx, ix.createSQL(ifAbsent)); err != nil {
		return fmt.Errorf("create index %s: %w", ix.Name, classify(err))
	}
	return nil
}

// withStmt runs fn against a statement prepared inside a fresh transaction
// and commits. Any failure rolls the whole batch back.
func (s *Store) withStmt(ctx context.Context, op, query string, fn func(*sql.Stmt) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, classify(err))
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%s: prepare: %w", op, classify(err))
	}
	if err := fn(stmt); err != nil {
		_ = stmt.Close()
		_ = tx.Rollback()
		return fmt.Errorf("%s: %w", op, classify(err))
	}
	_ = stmt.Close()
	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%s: commit: %w", op, classify(err))
	}
	return nil
}
