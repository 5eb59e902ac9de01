// Package executor runs a task's command as a child process and reports
// the outcome as a value. It never returns launch or exit failures as Go
// errors: everything is captured in a Result.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/tasksched/internal/task"
)

const (
	defaultMaxOutput = 64 << 10
	tracerName       = "github.com/flemzord/tasksched/internal/executor"
)

// Result is the outcome of one execution.
type Result struct {
	Success     bool          `json:"success"`
	ErrorDetail string        `json:"error,omitempty"`
	ExitCode    int           `json:"exit_code"`
	Output      string        `json:"output,omitempty"`
	Started     time.Time     `json:"started"`
	Duration    time.Duration `json:"duration_ns"`
}

// Config configures an Executor.
type Config struct {
	// Timeout bounds each execution. Zero means no limit: a hung child
	// blocks until it exits.
	Timeout time.Duration

	// WorkDir is the child's working directory. Empty inherits ours.
	WorkDir string

	// MaxOutputBytes caps the captured output tail. Defaults to 64 KiB.
	MaxOutputBytes int

	// Env overrides the child environment. Nil inherits ours.
	Env []string

	// SanitizeEnv strips known secret variables from the inherited
	// environment. Ignored when Env is set.
	SanitizeEnv bool

	Logger *slog.Logger

	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

// Executor launches task commands.
type Executor struct {
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer
}

// New creates an executor.
func New(cfg Config) *Executor {
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = defaultMaxOutput
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Executor{
		cfg:    cfg,
		logger: logger.With("component", "executor"),
		tracer: tp.Tracer(tracerName),
	}
}

// Execute runs rec's command synchronously and waits for it to finish.
func (e *Executor) Execute(ctx context.Context, rec task.Record) Result {
	ctx, span := e.tracer.Start(ctx, "task.execute", trace.WithAttributes(
		attribute.String("task.id", rec.ID),
		attribute.String("task.command", rec.Command),
		attribute.Int("task.args", len(rec.Args)),
	))
	defer span.End()

	res := e.run(ctx, rec)

	span.SetAttributes(attribute.Int("process.exit_code", res.ExitCode))
	if !res.Success {
		span.SetStatus(codes.Error, res.ErrorDetail)
	}
	return res
}

func (e *Executor) run(ctx context.Context, rec task.Record) Result {
	res := Result{Started: time.Now(), ExitCode: -1}

	if strings.TrimSpace(rec.Command) == "" {
		res.ErrorDetail = "no command configured"
		return res
	}

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	out := newTailBuffer(e.cfg.MaxOutputBytes)

	//nolint:gosec // the command line comes from the operator's own task file.
	cmd := exec.CommandContext(ctx, rec.Command, rec.Args...)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.Dir = e.cfg.WorkDir
	cmd.Env = e.childEnv()
	cmd.WaitDelay = time.Second

	e.logger.Debug("executor: starting", "task", rec.ID, "command", rec.CommandLine())
	err := cmd.Run()
	res.Duration = time.Since(res.Started)
	res.Output = out.String()

	switch {
	case err == nil:
		res.Success = true
		res.ExitCode = 0
	case errors.Is(ctx.Err(), context.DeadlineExceeded) && e.cfg.Timeout > 0:
		res.ErrorDetail = fmt.Sprintf("timed out after %s", e.cfg.Timeout)
	case ctx.Err() != nil:
		res.ErrorDetail = "cancelled: " + ctx.Err().Error()
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		}
		res.ErrorDetail = err.Error()
	}
	return res
}

func (e *Executor) childEnv() []string {
	switch {
	case e.cfg.Env != nil:
		return e.cfg.Env
	case e.cfg.SanitizeEnv:
		return SanitizedEnv()
	default:
		return os.Environ()
	}
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max       int
	buf       []byte
	truncated bool
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{max: limit}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) >= b.max {
		b.buf = append(b.buf[:0], p[len(p)-b.max:]...)
		b.truncated = true
		return n, nil
	}
	if over := len(b.buf) + len(p) - b.max; over > 0 {
		b.buf = b.buf[over:]
		b.truncated = true
	}
	b.buf = append(b.buf, p...)
	return n, nil
}

// String returns the kept bytes. After truncation the cut may land inside
// a multi-byte rune, so leading continuation bytes are skipped.
func (b *tailBuffer) String() string {
	if !b.truncated {
		return string(b.buf)
	}
	start := 0
	for start < len(b.buf) && start < utf8.UTFMax && !utf8.RuneStart(b.buf[start]) {
		start++
	}
	return "…" + string(b.buf[start:])
}
