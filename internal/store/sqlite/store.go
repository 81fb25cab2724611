// Package sqlite implements the hostlink command audit store backed by a
// SQLite database.  Every dispatched command is recorded with its outcome
// so operators can review what remote clients asked the host to do.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hostlink/hostlink/internal/domain"
)

// Store wraps a SQLite database connection for command audit persistence.
type Store struct {
	db *sql.DB
}

const defaultMaxOpenConns = 10
const defaultMaxIdleConns = 10
const defaultRecentLimit = 50
const defaultPurgeLimit = 1000

// OpenOptions controls SQLite connection pool sizing.
type OpenOptions struct {
	MaxOpenConns int
	MaxIdleConns int
}

// Open creates or opens the audit database at path, runs migrations, and
// enables WAL mode for improved concurrent read performance.
func Open(path string) (*Store, error) {
	return OpenWithOptions(path, OpenOptions{})
}

// OpenWithOptions creates or opens the audit database at path with tunable
// connection pool settings, runs migrations, and enables WAL mode.
func OpenWithOptions(path string, opts OpenOptions) (*Store, error) {
	if err := ensureParentDir(path); err != nil {
		return nil, err
	}
	// Append per-connection PRAGMAs to the DSN so every pooled connection gets them.
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + "_pragma=foreign_keys(1)&_pragma=synchronous(normal)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	maxOpenConns := opts.MaxOpenConns
	if maxOpenConns <= 0 {
		maxOpenConns = defaultMaxOpenConns
	}
	maxIdleConns := opts.MaxIdleConns
	if maxIdleConns <= 0 {
		maxIdleConns = defaultMaxIdleConns
	}
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)

	// journal_mode and busy_timeout are database-wide; set them once here.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite setup (%s): %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes if they do not already exist.
func (s *Store) Migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS command_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	command TEXT NOT NULL,
	client_ip TEXT NOT NULL,
	ok INTEGER NOT NULL,
	error TEXT NULL,
	duration_ms INTEGER NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_command_log_created_at ON command_log(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_command_log_command ON command_log(command);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// RecordCommand appends one dispatched command to the audit log.
func (s *Store) RecordCommand(ctx context.Context, rec domain.AuditRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO command_log(command, client_ip, ok, error, duration_ms, created_at)
VALUES(?, ?, ?, ?, ?, ?)`,
		rec.Command, rec.ClientIP, boolToInt(rec.OK), nullableString(rec.Error),
		rec.Duration.Milliseconds(), rec.CreatedAt.UTC())
	return err
}

// RecentCommands returns the newest audit entries, most recent first.
func (s *Store) RecentCommands(ctx context.Context, limit int) ([]domain.AuditRecord, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, command, client_ip, ok, error, duration_ms, created_at
FROM command_log
ORDER BY id DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []domain.AuditRecord
	for rows.Next() {
		var rec domain.AuditRecord
		var ok int
		var errMsg sql.NullString
		var durationMS int64
		if err := rows.Scan(&rec.ID, &rec.Command, &rec.ClientIP, &ok, &errMsg, &durationMS, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.OK = ok != 0
		if errMsg.Valid {
			rec.Error = errMsg.String
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountCommands returns the total number of audit entries.
func (s *Store) CountCommands(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM command_log`).Scan(&count)
	return count, err
}

// PurgeOlderThan removes audit entries created before the cutoff.  Each run
// is limited to avoid long write transactions.
func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	if limit <= 0 {
		limit = defaultPurgeLimit
	}
	res, err := s.db.ExecContext(ctx, `
DELETE FROM command_log
WHERE id IN (
	SELECT id
	FROM command_log
	WHERE created_at < ?
	ORDER BY id ASC
	LIMIT ?
)`, cutoff.UTC(), limit)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullableString(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func ensureParentDir(path string) error {
	path = strings.TrimSpace(path)
	if path == "" || path == ":memory:" || strings.HasPrefix(path, "file:") {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
