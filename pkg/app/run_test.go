package app

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"slices"
	"syscall"
	"testing"
	"time"
)

const oneTask = `tasks:
  - id: backup
    name: backup
    command: "true"
    schedule: "02:00"
    recurrence: daily
`

const twoTasks = oneTask + `  - id: report
    name: report
    command: "true"
    schedule: "18:00"
    recurrence: weekly
    weekday: friday
`

// writeSetup writes a config and a task file into a temp dir and returns
// Params pointing at them.
func writeSetup(t *testing.T, extra string) (Params, string) {
	t.Helper()
	dir := t.TempDir()
	tasks := filepath.Join(dir, "tasks.yml")
	if err := os.WriteFile(tasks, []byte(oneTask), 0o644); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(dir, "tasksched.yaml")
	content := "version: \"1\"\nstore:\n  path: " + tasks + "\n" + extra
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return Params{ConfigPath: cfgPath, LogOutput: io.Discard}, tasks
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestSetup(t *testing.T) {
	t.Parallel()
	p, tasks := writeSetup(t, "")
	env, err := Setup(p)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer func() { _ = env.Close() }()

	if env.Config.Store.Path != tasks {
		t.Errorf("store path = %q", env.Config.Store.Path)
	}
	records, errs := env.Store.Load(context.Background())
	if len(errs) != 0 || len(records) != 1 {
		t.Errorf("Load = %v, %v", records, errs)
	}
}

func TestSetup_Overrides(t *testing.T) {
	t.Parallel()
	p, _ := writeSetup(t, "")
	p.TasksPath = filepath.Join(t.TempDir(), "other.yml")
	p.LogLevel = "debug"

	env, err := Setup(p)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer func() { _ = env.Close() }()

	if env.Config.Store.Path != p.TasksPath || env.Config.Log.Level != "debug" {
		t.Errorf("overrides not applied: %+v", env.Config)
	}
}

func TestSetup_Errors(t *testing.T) {
	t.Parallel()
	if _, err := Setup(Params{ConfigPath: "/nonexistent/tasksched.yaml", LogOutput: io.Discard}); err == nil {
		t.Error("expected error for missing explicit config")
	}

	p, _ := writeSetup(t, "scheduler:\n  dispatch: parallel\n")
	if _, err := Setup(p); err == nil {
		t.Error("expected validation error")
	}

	p, _ = writeSetup(t, "")
	p.LogLevel = "loud"
	if _, err := Setup(p); err == nil {
		t.Error("expected error for bad log level")
	}
}

func TestDaemon_SIGHUPReloadsAndSIGTERMStops(t *testing.T) {
	t.Parallel()
	p, tasks := writeSetup(t, "reload:\n  enabled: false\nscheduler:\n  poll_interval: 50ms\n")
	env, err := Setup(p)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer func() { _ = env.Close() }()

	d, err := NewDaemon(context.Background(), env, p)
	if err != nil {
		t.Fatalf("NewDaemon: %v", err)
	}
	if d.Engine().Len() != 1 {
		t.Fatalf("registered %d tasks, want 1", d.Engine().Len())
	}

	signals := make(chan os.Signal, 1)
	errCh := make(chan error, 1)
	go func() { errCh <- d.Serve(context.Background(), signals) }()

	if err := os.WriteFile(tasks, []byte(twoTasks), 0o644); err != nil {
		t.Fatal(err)
	}
	signals <- syscall.SIGHUP
	waitFor(t, func() bool { return d.Engine().Len() == 2 })

	signals <- syscall.SIGTERM
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Serve = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after SIGTERM")
	}
}

func TestDaemon_WatcherReloadsOnFileChange(t *testing.T) {
	t.Parallel()
	p, tasks := writeSetup(t, "reload:\n  poll_interval: 50ms\nscheduler:\n  poll_interval: 50ms\n")
	env, err := Setup(p)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer func() { _ = env.Close() }()

	d, err := NewDaemon(context.Background(), env, p)
	if err != nil {
		t.Fatalf("NewDaemon: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Serve(ctx, nil) }()

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(tasks, []byte(twoTasks), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return d.Engine().Len() == 2 })

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Serve = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestDaemon_GatewayBindFailureStopsStartup(t *testing.T) {
	t.Parallel()
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = busy.Close() }()

	p, _ := writeSetup(t, "gateway:\n  enabled: true\n  bind: "+busy.Addr().String()+"\n")
	env, err := Setup(p)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer func() { _ = env.Close() }()

	d, err := NewDaemon(context.Background(), env, p)
	if err != nil {
		t.Fatalf("NewDaemon: %v", err)
	}
	if err := d.Serve(context.Background(), nil); err == nil {
		t.Fatal("expected bind error")
	}
}

func TestWatchPaths(t *testing.T) {
	t.Parallel()
	p, _ := writeSetup(t, "")
	env, err := Setup(p)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = env.Close() }()

	sc := env.Config.Store
	if got := watchPaths(sc); !slices.Equal(got, []string{sc.Path}) {
		t.Errorf("yaml paths = %v", got)
	}
	sc.Driver = "sqlite"
	if got := watchPaths(sc); len(got) != 2 || got[1] != sc.Path+"-wal" {
		t.Errorf("sqlite paths = %v", got)
	}
}

func TestProgram_StartStop(t *testing.T) {
	t.Parallel()
	sentinel := errors.New("stopped")
	started := make(chan struct{})
	prog := &program{run: func(ctx context.Context, _ Params) error {
		close(started)
		<-ctx.Done()
		return sentinel
	}}

	if err := prog.Stop(nil); err != nil {
		t.Errorf("Stop before Start = %v", err)
	}
	if err := prog.Start(nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-started
	if err := prog.Stop(nil); !errors.Is(err, sentinel) {
		t.Errorf("Stop = %v, want sentinel", err)
	}
}

func TestControlService_RejectsUnknownAction(t *testing.T) {
	t.Parallel()
	if err := ControlService(nil, "explode"); err == nil {
		t.Fatal("expected error")
	}
}
