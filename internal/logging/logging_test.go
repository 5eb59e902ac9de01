package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_JSONConsole(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger, closeFn, err := New(Options{Level: "warn", Format: FormatJSON, Console: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = closeFn() }()

	logger.Info("dropped")
	logger.Warn("scheduler: task failed", "task_id", "backup")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1:\n%s", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if rec["task_id"] != "backup" || rec["msg"] != "scheduler: task failed" {
		t.Errorf("record = %v", rec)
	}
}

func TestNew_TextConsoleHasNoColorOnBuffers(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger, _, err := New(Options{Console: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("hello", "k", "v")
	out := buf.String()
	if !strings.Contains(out, "hello") || !strings.Contains(out, "k=v") {
		t.Errorf("output = %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("unexpected ANSI escapes: %q", out)
	}
}

func TestNew_FileSink(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "logs", "tasksched.log")
	var console bytes.Buffer
	logger, closeFn, err := New(Options{Format: FormatJSON, Console: &console, File: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("both sinks")
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "both sinks") || !strings.Contains(console.String(), "both sinks") {
		t.Errorf("file=%q console=%q", data, console.String())
	}
}

func TestNew_RejectsUnknownFormat(t *testing.T) {
	t.Parallel()
	if _, _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestRedactingHandler(t *testing.T) {
	t.Parallel()
	redactor := NewRedactor()
	redactor.AddLiteral("hunter2")

	var buf bytes.Buffer
	logger := slog.New(NewRedactingHandler(slog.NewJSONHandler(&buf, nil), redactor)).
		With("token", "hunter2")

	logger.Info("curl -H 'Authorization: Bearer abcdefghijkl'",
		"args", "--password=swordfish",
		"error", errors.New("login failed for hunter2"),
		slog.Group("g", "inner", "hunter2"),
	)

	out := buf.String()
	for _, leaked := range []string{"hunter2", "abcdefghijkl", "swordfish"} {
		if strings.Contains(out, leaked) {
			t.Errorf("secret %q leaked: %s", leaked, out)
		}
	}
	if !strings.Contains(out, RedactPlaceholder) {
		t.Errorf("placeholder missing: %s", out)
	}
}

func TestMultiHandler_RespectsLevels(t *testing.T) {
	t.Parallel()
	var debug, warn bytes.Buffer
	h := NewMultiHandler(
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&warn, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)
	logger := slog.New(h).With("component", "test")
	logger.Debug("fine")

	if !strings.Contains(debug.String(), "fine") || warn.Len() != 0 {
		t.Errorf("debug=%q warn=%q", debug.String(), warn.String())
	}
}
