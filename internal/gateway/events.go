package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/flemzord/tasksched/internal/scheduler"
)

const (
	subscriberBuffer = 32
	writeTimeout     = 5 * time.Second
)

// ExecutionEvent is the wire form of one finished execution.
type ExecutionEvent struct {
	TaskID     string    `json:"task_id"`
	Name       string    `json:"name"`
	Success    bool      `json:"success"`
	ExitCode   int       `json:"exit_code"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Occurrence time.Time `json:"occurrence"`
	At         time.Time `json:"at"`
}

func newExecutionEvent(ev scheduler.Event) ExecutionEvent {
	return ExecutionEvent{
		TaskID:     ev.TaskID,
		Name:       ev.Name,
		Success:    ev.Result.Success,
		ExitCode:   ev.Result.ExitCode,
		Error:      ev.Result.ErrorDetail,
		DurationMS: ev.Result.Duration.Milliseconds(),
		Occurrence: ev.Occurrence,
		At:         ev.Result.Started.Add(ev.Result.Duration),
	}
}

// Hub fans execution events out to WebSocket subscribers. A subscriber
// that falls behind loses events rather than slowing the scheduler.
type Hub struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[chan ExecutionEvent]struct{}
}

// Compile-time check.
var _ scheduler.Observer = (*Hub)(nil)

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{logger: logger, subs: make(map[chan ExecutionEvent]struct{})}
}

// Observe implements scheduler.Observer.
func (h *Hub) Observe(ev scheduler.Event) {
	msg := newExecutionEvent(ev)

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- msg:
		default:
			h.logger.Warn("gateway: event subscriber lagging, dropping event", "task", ev.TaskID)
		}
	}
}

// Subscribe registers a subscriber. The returned function unsubscribes
// and closes the channel.
func (h *Hub) Subscribe() (<-chan ExecutionEvent, func()) {
	ch := make(chan ExecutionEvent, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ServeHTTP upgrades to a WebSocket and streams events as JSON text
// messages until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Error("gateway: websocket accept failed", "error", err)
		return
	}
	defer func() {
		_ = conn.Close(websocket.StatusInternalError, "unexpected close")
	}()

	// Clients never send; CloseRead handles pings and cancels ctx on close.
	ctx := conn.CloseRead(r.Context())

	events, unsubscribe := h.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev := <-events:
			if err := h.write(ctx, conn, ev); err != nil {
				h.logger.Debug("gateway: websocket write failed", "error", err)
				return
			}
		}
	}
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, ev ExecutionEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
