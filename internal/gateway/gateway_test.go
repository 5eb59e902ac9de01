package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/flemzord/tasksched/internal/executor"
	"github.com/flemzord/tasksched/internal/recurrence"
	"github.com/flemzord/tasksched/internal/scheduler"
	"github.com/flemzord/tasksched/internal/task"
)

func quietLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

type fakeScheduler struct {
	entries []scheduler.Entry
}

func (f *fakeScheduler) Jobs() []scheduler.Entry { return f.entries }
func (f *fakeScheduler) Len() int                { return len(f.entries) }

func newFakeScheduler(t *testing.T) *fakeScheduler {
	t.Helper()
	rule, err := recurrence.New("daily", "02:00", "")
	if err != nil {
		t.Fatal(err)
	}
	next := time.Date(2024, 3, 5, 2, 0, 0, 0, time.UTC)
	return &fakeScheduler{entries: []scheduler.Entry{{
		Record:   task.Record{ID: "backup", Name: "backup", Command: "tar", Args: []string{}, Schedule: "02:00", Recurrence: "daily"},
		Rule:     rule,
		Describe: rule.String(),
		NextRun:  next,
	}}}
}

func event(id string, ok bool, d time.Duration) scheduler.Event {
	return scheduler.Event{
		TaskID: id,
		Name:   id,
		Result: executor.Result{Success: ok, Duration: d, Started: time.Now()},
	}
}

func serve(t *testing.T, g *Gateway, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	g.Handler().ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	t.Parallel()
	g := New(Config{BearerToken: "s3cret"}, newFakeScheduler(t), nil, nil, quietLogger())

	rr := serve(t, g, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.Tasks != 1 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestAuth(t *testing.T) {
	t.Parallel()
	g := New(Config{BearerToken: "s3cret"}, newFakeScheduler(t), NewMetrics(nil), NewHub(quietLogger()), quietLogger())

	tests := []struct {
		path  string
		token string
		want  int
	}{
		{"/status", "", http.StatusUnauthorized},
		{"/status", "wrong", http.StatusUnauthorized},
		{"/status", "s3cret", http.StatusOK},
		{"/api/tasks", "", http.StatusUnauthorized},
		{"/api/tasks", "s3cret", http.StatusOK},
		{"/metrics", "", http.StatusOK},
		{"/health", "", http.StatusOK},
	}
	for _, tt := range tests {
		if got := serve(t, g, http.MethodGet, tt.path, tt.token).Code; got != tt.want {
			t.Errorf("GET %s (token %q) = %d, want %d", tt.path, tt.token, got, tt.want)
		}
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()
	metrics := NewMetrics(nil)
	metrics.Observe(event("backup", true, time.Second))
	metrics.Observe(event("backup", false, 3*time.Second))
	g := New(Config{}, newFakeScheduler(t), metrics, nil, quietLogger())

	rr := serve(t, g, http.MethodGet, "/status", "")
	var resp StatusResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Metrics == nil || resp.Metrics.Executions != 2 || resp.Metrics.Failures != 1 {
		t.Errorf("metrics = %+v", resp.Metrics)
	}
	if resp.Metrics.AvgDuration != 2*time.Second {
		t.Errorf("avg = %s, want 2s", resp.Metrics.AvgDuration)
	}
	if len(resp.Tasks) != 1 || resp.Tasks[0].ID != "backup" || resp.Tasks[0].Rule != "daily at 02:00" {
		t.Errorf("tasks = %+v", resp.Tasks)
	}
}

func TestTasksAPI(t *testing.T) {
	t.Parallel()
	g := New(Config{}, newFakeScheduler(t), nil, nil, quietLogger())

	rr := serve(t, g, http.MethodGet, "/api/tasks", "")
	if !strings.Contains(rr.Body.String(), `"rule":"daily at 02:00"`) {
		t.Errorf("body = %s", rr.Body.String())
	}
	if got := serve(t, g, http.MethodGet, "/api/tasks/backup", "").Code; got != http.StatusOK {
		t.Errorf("GET /api/tasks/backup = %d", got)
	}
	if got := serve(t, g, http.MethodGet, "/api/tasks/nope", "").Code; got != http.StatusNotFound {
		t.Errorf("GET /api/tasks/nope = %d, want 404", got)
	}
}

func TestMetrics_Prometheus(t *testing.T) {
	t.Parallel()
	registered := 3
	m := NewMetrics(func() int { return registered })
	m.Observe(event("backup", true, 500*time.Millisecond))
	m.Observe(event("backup", true, time.Second))
	m.Observe(event("report", false, time.Second))

	if got := testutil.ToFloat64(m.runs.WithLabelValues("backup", "success")); got != 2 {
		t.Errorf("backup successes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("report", "failure")); got != 1 {
		t.Errorf("report failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.registered); got != 3 {
		t.Errorf("tasks_registered = %v, want 3", got)
	}

	g := New(Config{}, &fakeScheduler{}, m, nil, quietLogger())
	body := serve(t, g, http.MethodGet, "/metrics", "").Body.String()
	for _, want := range []string{"tasksched_task_executions_total", "tasksched_task_duration_seconds_bucket", "go_goroutines"} {
		if !strings.Contains(body, want) {
			t.Errorf("/metrics missing %s", want)
		}
	}
}

func TestMetrics_SnapshotEmpty(t *testing.T) {
	t.Parallel()
	snap := NewMetrics(nil).Snapshot()
	if snap.Executions != 0 || snap.Failures != 0 || snap.AvgDuration != 0 || !snap.LastRunAt.IsZero() {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestHub_StreamsEvents(t *testing.T) {
	t.Parallel()
	hub := NewHub(quietLogger())
	g := New(Config{}, &fakeScheduler{}, nil, hub, quietLogger())
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/events", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.Observe(event("backup", false, 1500*time.Millisecond))

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	var got ExecutionEvent
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.TaskID != "backup" || got.Success || got.DurationMS != 1500 {
		t.Errorf("event = %+v", got)
	}
}

func TestHub_SlowSubscriberDropsEvents(t *testing.T) {
	t.Parallel()
	hub := NewHub(quietLogger())
	ch, unsubscribe := hub.Subscribe()

	for range subscriberBuffer + 5 {
		hub.Observe(event("x", true, 0))
	}
	if len(ch) != subscriberBuffer {
		t.Errorf("buffered = %d, want %d", len(ch), subscriberBuffer)
	}

	unsubscribe()
	unsubscribe()
	if hub.Subscribers() != 0 {
		t.Error("unsubscribe did not remove subscriber")
	}
	hub.Observe(event("x", true, 0)) // must not panic on closed channel
}

func TestGateway_StartStop(t *testing.T) {
	t.Parallel()
	g := New(Config{Bind: "127.0.0.1:0"}, newFakeScheduler(t), nil, nil, quietLogger())
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	resp, err := http.Get("http://" + g.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	if err := g.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestGateway_StartFailsOnBusyPort(t *testing.T) {
	t.Parallel()
	first := New(Config{Bind: "127.0.0.1:0"}, &fakeScheduler{}, nil, nil, quietLogger())
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = first.Stop(context.Background()) }()

	second := New(Config{Bind: first.Addr()}, &fakeScheduler{}, nil, nil, quietLogger())
	if err := second.Start(context.Background()); err == nil {
		_ = second.Stop(context.Background())
		t.Fatal("expected bind error")
	}
}
