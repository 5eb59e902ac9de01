package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/flemzord/tasksched/internal/task"

	_ "modernc.org/sqlite" // SQLite driver registration
)

const (
	sqliteSchemaVersion = 1
	defaultBusyTimeout  = 5000 // milliseconds
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		id         TEXT    PRIMARY KEY,
		position   INTEGER NOT NULL,
		name       TEXT    NOT NULL DEFAULT '',
		command    TEXT    NOT NULL DEFAULT '',
		args       TEXT    NOT NULL DEFAULT '[]',
		schedule   TEXT    NOT NULL DEFAULT '',
		recurrence TEXT    NOT NULL DEFAULT 'daily',
		weekday    TEXT    NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_position ON tasks(position)`,
}

// SQLiteStore keeps tasks in a single SQLite table ordered by insertion.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at path. The
// connection runs in WAL mode with a single writer.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("store: sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", defaultBusyTimeout),
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: sqlite: %s: %w", p, err)
		}
	}

	if err := migrateSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

func migrateSQLite(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("store: sqlite: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("store: sqlite: read schema version: %w", err)
	}
	if current >= sqliteSchemaVersion {
		return nil
	}

	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: sqlite: migrate: %w\nstatement: %s", err, stmt)
		}
	}
	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", sqliteSchemaVersion); err != nil {
		return fmt.Errorf("store: sqlite: record schema version: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context) ([]task.Record, []error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, command, args, schedule, recurrence, weekday FROM tasks ORDER BY position`)
	if err != nil {
		err = fmt.Errorf("store: sqlite: %w: %v", task.ErrStoreCorrupt, err)
		s.logger.Warn("store: task table unreadable, treating as empty", "error", err)
		return nil, []error{err}
	}
	defer func() { _ = rows.Close() }()

	var (
		records []task.Record
		errs    []error
	)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		errs = append(errs, fmt.Errorf("store: sqlite: %w: %v", task.ErrStoreCorrupt, err))
	}
	for _, err := range errs {
		s.logger.Warn("store: skipping malformed task", "error", err)
	}
	return records, errs
}

// Save implements Store. The table is replaced in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, records []task.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM tasks"); err != nil {
		return fmt.Errorf("store: sqlite: clear tasks: %w", err)
	}
	for i, rec := range records {
		if err := insertRecord(ctx, tx, rec, i); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: sqlite: commit: %w", err)
	}
	return nil
}

// Add implements Store.
func (s *SQLiteStore) Add(ctx context.Context, rec task.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks WHERE id = ?", rec.ID).Scan(&exists); err != nil {
		return fmt.Errorf("store: sqlite: lookup %q: %w", rec.ID, err)
	}
	if exists > 0 {
		return fmt.Errorf("store: %w: %q", task.ErrDuplicateID, rec.ID)
	}

	var next int
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(position), -1) + 1 FROM tasks").Scan(&next); err != nil {
		return fmt.Errorf("store: sqlite: next position: %w", err)
	}
	if err := insertRecord(ctx, tx, rec, next); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: sqlite: commit: %w", err)
	}
	return nil
}

// Remove implements Store.
func (s *SQLiteStore) Remove(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("store: sqlite: delete %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: sqlite: delete %q: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("store: %w: %q", task.ErrNotFound, id)
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (task.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, command, args, schedule, recurrence, weekday FROM tasks WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return task.Record{}, fmt.Errorf("store: %w: %q", task.ErrNotFound, id)
	}
	return rec, err
}

// Close implements Store.
func (s *SQLiteStore) Close() error { return s.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (task.Record, error) {
	var (
		rec  task.Record
		args string
	)
	if err := row.Scan(&rec.ID, &rec.Name, &rec.Command, &args, &rec.Schedule, &rec.Recurrence, &rec.Weekday); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return task.Record{}, err
		}
		return task.Record{}, fmt.Errorf("store: sqlite: scan: %w", err)
	}
	if err := json.Unmarshal([]byte(args), &rec.Args); err != nil {
		return task.Record{}, fmt.Errorf("store: sqlite: task %q: %w: args: %v", rec.ID, task.ErrInvalidRecord, err)
	}
	return task.Normalize(rec), nil
}

func insertRecord(ctx context.Context, tx *sql.Tx, rec task.Record, position int) error {
	rec = task.Normalize(rec)
	args, err := json.Marshal(rec.Args)
	if err != nil {
		return fmt.Errorf("store: sqlite: encode args for %q: %w", rec.ID, err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO tasks (id, position, name, command, args, schedule, recurrence, weekday)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, position, rec.Name, rec.Command, string(args), rec.Schedule, rec.Recurrence, rec.Weekday)
	if err != nil {
		return fmt.Errorf("store: sqlite: insert %q: %w", rec.ID, err)
	}
	return nil
}
