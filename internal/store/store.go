// Package store persists task records. Two backends share one contract:
// a human-edited YAML file (the default) and a SQLite database.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flemzord/tasksched/internal/task"
)

// Store is the persisted task list.
//
// Load never fails as a whole: a missing store is empty, an unparseable
// store is empty with a task.ErrStoreCorrupt entry in the returned errors,
// and malformed records are skipped with a task.ErrInvalidRecord entry.
//
// Add and Remove leave the store untouched when they fail.
type Store interface {
	Load(ctx context.Context) ([]task.Record, []error)
	Save(ctx context.Context, records []task.Record) error
	Add(ctx context.Context, rec task.Record) error
	Remove(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (task.Record, error)
	Close() error
}

// Driver names.
const (
	DriverYAML   = "yaml"
	DriverSQLite = "sqlite"
)

// Options selects and configures a backend.
type Options struct {
	Driver string
	Path   string
	Logger *slog.Logger
}

// Open opens the configured backend.
func Open(opts Options) (Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	switch strings.ToLower(opts.Driver) {
	case "", DriverYAML:
		return NewFileStore(opts.Path, logger), nil
	case DriverSQLite:
		return OpenSQLite(opts.Path, logger)
	default:
		return nil, fmt.Errorf("store: unknown driver %q (supported: yaml, sqlite)", opts.Driver)
	}
}

// find returns the record with the given id.
func find(records []task.Record, id string) (task.Record, error) {
	if i := task.IndexOf(records, id); i >= 0 {
		return records[i], nil
	}
	return task.Record{}, fmt.Errorf("store: %w: %q", task.ErrNotFound, id)
}
