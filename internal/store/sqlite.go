// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Persists the receipt journal with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS receipts (
			id         TEXT PRIMARY KEY,
			kind       TEXT NOT NULL,
			study_id   TEXT NOT NULL,
			submitter  TEXT NOT NULL,
			status     TEXT NOT NULL,
			tx_hash    TEXT,
			reason     TEXT,
			created_at TEXT NOT NULL,

			CHECK (kind IN ('submit', 'create_study')),
			CHECK (status IN ('accepted', 'rejected', 'failed'))
		);

		CREATE INDEX IF NOT EXISTS idx_receipts_created ON receipts(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_receipts_study ON receipts(study_id, created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// SaveReceipt appends a receipt to the journal.
func (s *SQLiteStore) SaveReceipt(ctx context.Context, r *Receipt) error {
	query := `
		INSERT INTO receipts (id, kind, study_id, submitter, status, tx_hash, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		r.ID,
		string(r.Kind),
		strconv.FormatUint(r.StudyID, 10),
		r.Submitter,
		string(r.Status),
		nullString(r.TxHash),
		nullString(r.Reason),
		r.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateReceipt
		}
		return fmt.Errorf("inserting receipt: %w", err)
	}

	s.logger.Debug("saved receipt",
		"id", r.ID,
		"kind", r.Kind,
		"study_id", r.StudyID,
		"status", r.Status,
	)
	return nil
}

// GetReceipt retrieves a receipt by ID.
func (s *SQLiteStore) GetReceipt(ctx context.Context, id string) (*Receipt, error) {
	query := `
		SELECT id, kind, study_id, submitter, status, tx_hash, reason, created_at
		FROM receipts
		WHERE id = ?
	`

	r, err := scanReceipt(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying receipt: %w", err)
	}
	return r, nil
}

// ListReceipts returns receipts newest first.
func (s *SQLiteStore) ListReceipts(ctx context.Context, filter ReceiptFilter) ([]*Receipt, error) {
	query := `
		SELECT id, kind, study_id, submitter, status, tx_hash, reason, created_at
		FROM receipts
	`
	where, args := filterClause(filter.StudyID, filter.Kind)
	query += where + " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying receipts: %w", err)
	}
	defer rows.Close()

	var receipts []*Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning receipt: %w", err)
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating receipts: %w", err)
	}
	return receipts, nil
}

// Summary counts receipts by status.
func (s *SQLiteStore) Summary(ctx context.Context, studyID *uint64) (*ReceiptSummary, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'accepted' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'rejected' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			MAX(created_at)
		FROM receipts
	`
	where, args := filterClause(studyID, "")
	query += where

	var sum ReceiptSummary
	var last sql.NullString
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&sum.Total, &sum.Accepted, &sum.Rejected, &sum.Failed, &last)
	if err != nil {
		return nil, fmt.Errorf("summarizing receipts: %w", err)
	}
	if last.Valid {
		t, err := time.Parse(timeLayout, last.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last receipt time: %w", err)
		}
		sum.LastAt = &t
	}
	return &sum, nil
}

func filterClause(studyID *uint64, kind Kind) (string, []any) {
	var conds []string
	var args []any
	if studyID != nil {
		conds = append(conds, "study_id = ? AND (kind = 'submit' OR status = 'accepted')")
		args = append(args, strconv.FormatUint(*studyID, 10))
	}
	if kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(kind))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row rowScanner) (*Receipt, error) {
	var r Receipt
	var kind, studyID, status, createdAt string
	var txHash, reason sql.NullString

	if err := row.Scan(&r.ID, &kind, &studyID, &r.Submitter, &status, &txHash, &reason, &createdAt); err != nil {
		return nil, err
	}

	id, err := strconv.ParseUint(studyID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing study_id %q: %w", studyID, err)
	}
	r.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
	}

	r.StudyID = id
	r.Kind = Kind(kind)
	r.Status = Status(status)
	r.TxHash = txHash.String
	r.Reason = reason.String
	return &r, nil
}

// nullString converts an empty string to nil for nullable columns
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
