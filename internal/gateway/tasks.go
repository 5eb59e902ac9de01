package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/tasksched/internal/scheduler"
)

// handleListTasks returns every registered task as JSON.
func (g *Gateway) handleListTasks() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		entries := g.sched.Jobs()
		if entries == nil {
			entries = []scheduler.Entry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

// handleGetTask returns one registered task by id.
func (g *Gateway) handleGetTask() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		for _, e := range g.sched.Jobs() {
			if e.Record.ID == id {
				writeJSON(w, http.StatusOK, e)
				return
			}
		}
		http.Error(w, "task not found", http.StatusNotFound)
	}
}
