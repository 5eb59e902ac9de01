package gateway

import (
	"net/http"
	"time"
)

// TaskStatus summarizes one registered task for GET /status.
type TaskStatus struct {
	ID        string    `json:"id"`
	Rule      string    `json:"rule"`
	NextRun   time.Time `json:"next_run"`
	LastFired time.Time `json:"last_fired,omitzero"`
}

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime      float64          `json:"uptime_seconds"`
	Metrics     *MetricsSnapshot `json:"metrics,omitempty"`
	Subscribers int              `json:"event_subscribers"`
	Tasks       []TaskStatus     `json:"tasks"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		g.mu.Lock()
		started := g.startedAt
		g.mu.Unlock()

		resp := StatusResponse{
			Uptime: time.Since(started).Truncate(time.Second).Seconds(),
			Tasks:  []TaskStatus{},
		}
		if g.metrics != nil {
			snap := g.metrics.Snapshot()
			resp.Metrics = &snap
		}
		if g.hub != nil {
			resp.Subscribers = g.hub.Subscribers()
		}
		for _, e := range g.sched.Jobs() {
			resp.Tasks = append(resp.Tasks, TaskStatus{
				ID:        e.Record.ID,
				Rule:      e.Describe,
				NextRun:   e.NextRun,
				LastFired: e.LastFired,
			})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
