// Package gateway provides an optional HTTP server for monitoring a
// running scheduler: health, status, Prometheus metrics, the registered
// task list and a live stream of execution events. It binds to loopback
// by default.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/flemzord/tasksched/internal/scheduler"
)

// Scheduler is the read-only view of the engine the gateway reports on.
type Scheduler interface {
	Jobs() []scheduler.Entry
	Len() int
}

// Gateway is the HTTP gateway component.
type Gateway struct {
	config    Config
	sched     Scheduler
	metrics   *Metrics
	hub       *Hub
	logger    *slog.Logger
	startedAt time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// New creates a gateway. metrics and hub may be nil, which disables the
// corresponding routes.
func New(cfg Config, sched Scheduler, metrics *Metrics, hub *Hub, logger *slog.Logger) *Gateway {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		config:    cfg,
		sched:     sched,
		metrics:   metrics,
		hub:       hub,
		logger:    logger.With("component", "gateway"),
		startedAt: time.Now(),
	}
}

// Handler returns the routed HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.buildRouter()
}

// Addr returns the bound address once started.
func (g *Gateway) Addr() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listener == nil {
		return ""
	}
	return g.listener.Addr().String()
}

// Start implements core.Starter. Binding happens synchronously so a busy
// port fails startup.
func (g *Gateway) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen on %s: %w", g.config.Bind, err)
	}

	server := &http.Server{
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	g.mu.Lock()
	g.server, g.listener = server, ln
	g.startedAt = time.Now()
	g.mu.Unlock()

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()
	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	g.mu.Lock()
	server := g.server
	g.mu.Unlock()
	if server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return server.Shutdown(shutdownCtx)
}
