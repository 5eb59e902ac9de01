package reload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/flemzord/tasksched/internal/scheduler"
	"github.com/flemzord/tasksched/internal/store"
	"github.com/flemzord/tasksched/internal/task"
)

// Engine is the part of the scheduler the handler drives.
type Engine interface {
	Reload(records []task.Record) []error
	Len() int
}

// Compile-time check.
var _ Engine = (*scheduler.Engine)(nil)

// Handler re-reads the task store and swaps the engine's job set.
type Handler struct {
	store  store.Store
	engine Engine
	logger *slog.Logger
}

// NewHandler creates a reload handler.
func NewHandler(s store.Store, engine Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: s, engine: engine, logger: logger.With("component", "reload")}
}

// Reload implements core.Reloader. A corrupt or unreadable store leaves
// the current job set in place; only a missing store clears it. Invalid
// individual records are skipped and logged.
func (h *Handler) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("reload: context cancelled before reload: %w", err)
	}

	records, loadErrs := h.store.Load(ctx)
	for _, err := range loadErrs {
		if errors.Is(err, task.ErrStoreCorrupt) || errors.Is(err, task.ErrStoreUnreadable) {
			return fmt.Errorf("reload: keeping %d registered tasks: %w", h.engine.Len(), err)
		}
	}

	regErrs := h.engine.Reload(records)
	for _, err := range regErrs {
		h.logger.Warn("reload: task skipped", "error", err)
	}

	h.logger.Info("tasks reloaded",
		"registered", h.engine.Len(),
		"skipped", len(loadErrs)+len(regErrs),
	)
	return nil
}
