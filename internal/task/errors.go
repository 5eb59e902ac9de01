package task

import (
	"errors"

	"github.com/flemzord/tasksched/internal/recurrence"
)

// Sentinel errors shared by the store, the engine and the CLI.
var (
	// ErrInvalidRecurrence is returned for unsupported recurrence values.
	ErrInvalidRecurrence = recurrence.ErrInvalidRecurrence

	// ErrInvalidSchedule is returned for malformed HH:MM times or weekdays.
	ErrInvalidSchedule = recurrence.ErrInvalidSchedule

	// ErrDuplicateID is returned when adding a task whose id already exists.
	ErrDuplicateID = errors.New("task id already exists")

	// ErrNotFound is returned when no task has the requested id.
	ErrNotFound = errors.New("task not found")

	// ErrInvalidRecord is returned for structurally malformed records.
	ErrInvalidRecord = errors.New("invalid task record")

	// ErrStoreCorrupt is returned when the persisted store cannot be parsed.
	ErrStoreCorrupt = errors.New("task store corrupt")

	// ErrStoreUnreadable is returned when the store exists but cannot be
	// read (permissions, a directory in place of the file, I/O errors).
	ErrStoreUnreadable = errors.New("task store unreadable")
)
