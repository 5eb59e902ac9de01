package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/flemzord/tasksched/internal/config"
	"github.com/flemzord/tasksched/internal/core"
	"github.com/flemzord/tasksched/internal/gateway"
	"github.com/flemzord/tasksched/internal/reload"
	"github.com/flemzord/tasksched/internal/scheduler"
	"github.com/flemzord/tasksched/internal/store"
	"github.com/flemzord/tasksched/internal/telemetry"
)

// Daemon is a fully wired scheduler process.
type Daemon struct {
	env     *Env
	logger  *slog.Logger
	engine  *scheduler.Engine
	loop    *core.Loop
	watcher *reload.Watcher
	app     *core.App
}

// NewDaemon builds the engine, registers the stored tasks and assembles
// the component lifecycle. Nothing runs until Serve.
func NewDaemon(ctx context.Context, env *Env, p Params) (*Daemon, error) {
	cfg := env.Config
	logger := env.Logger

	tp, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Insecure:    cfg.Telemetry.Insecure,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     p.Version,
	}, logger)
	if err != nil {
		return nil, err
	}

	mode, err := scheduler.ParseMode(cfg.Scheduler.Dispatch)
	if err != nil {
		return nil, err
	}

	var (
		metrics *gateway.Metrics
		hub     *gateway.Hub
		engine  *scheduler.Engine
	)
	observers := []scheduler.Observer{}
	if cfg.Gateway.Enabled {
		metrics = gateway.NewMetrics(func() int { return engine.Len() })
		hub = gateway.NewHub(logger.With("component", "gateway"))
		observers = append(observers, metrics, hub)
	}

	engine, err = scheduler.New(scheduler.Config{
		Executor:     env.NewExecutor(),
		Logger:       logger,
		Tolerance:    cfg.Scheduler.Tolerance,
		PollInterval: cfg.Scheduler.PollInterval,
		Mode:         mode,
		Observers:    observers,
	})
	if err != nil {
		return nil, err
	}

	records, loadErrs := env.Store.Load(ctx)
	regErrs := engine.Register(records)
	for _, err := range append(loadErrs, regErrs...) {
		logger.Warn("task skipped", "error", err)
	}
	logger.Info("tasks registered", "count", engine.Len(), "store", cfg.Store.Path)

	d := &Daemon{
		env:    env,
		logger: logger,
		engine: engine,
		loop:   core.NewLoop(engine.Run),
		app:    core.NewApp(logger),
	}

	d.app.Add("telemetry", tp)
	d.app.Add("tasks", reload.NewHandler(env.Store, engine, logger))
	d.app.Add("scheduler", d.loop)
	if cfg.Reload.IsEnabled() {
		d.watcher = reload.NewWatcher(reload.WatcherConfig{
			Paths:        watchPaths(cfg.Store),
			PollInterval: cfg.Reload.PollInterval,
		})
		d.app.Add("watcher", d.watcher)
	}
	if cfg.Gateway.Enabled {
		d.app.Add("gateway", gateway.New(gateway.Config{
			Bind:        cfg.Gateway.Bind,
			BearerToken: cfg.Gateway.BearerToken,
		}, engine, metrics, hub, logger))
	}
	return d, nil
}

// Engine exposes the scheduler engine.
func (d *Daemon) Engine() *scheduler.Engine { return d.engine }

// Serve starts every component and blocks until ctx is cancelled or a
// shutdown signal arrives. SIGHUP and store file changes reload tasks.
func (d *Daemon) Serve(ctx context.Context, signals <-chan os.Signal) error {
	if err := d.app.Start(ctx); err != nil {
		return err
	}
	defer func() {
		d.app.Stop()
		d.logger.Info("shutdown complete")
	}()

	var changes <-chan reload.Event
	if d.watcher != nil {
		changes = d.watcher.Events()
	}

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("context cancelled, shutting down")
			return nil
		case <-d.loop.Done():
			if ctx.Err() != nil {
				return nil
			}
			return errors.New("scheduler loop exited unexpectedly")
		case sig := <-signals:
			if sig == syscall.SIGHUP {
				d.logger.Info("SIGHUP received, reloading tasks")
				if err := d.app.Reload(ctx); err != nil {
					d.logger.Error("reload failed", "error", err)
				}
				continue
			}
			d.logger.Info("shutdown signal received", "signal", sig.String())
			return nil
		case evt := <-changes:
			d.logger.Info("task store changed, reloading", "path", evt.Path)
			if err := d.app.Reload(ctx); err != nil {
				d.logger.Error("reload failed", "error", err)
			}
		}
	}
}

// Run loads configuration, starts the scheduler and its companions, and
// blocks until a shutdown signal is received or ctx is cancelled.
func Run(ctx context.Context, p Params) error {
	env, err := Setup(p)
	if err != nil {
		return err
	}
	defer func() { _ = env.Close() }()

	d, err := NewDaemon(ctx, env, p)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	env.Logger.Info("tasksched starting",
		"version", p.Version,
		"config", env.ConfigPath,
	)
	return d.Serve(ctx, sigCh)
}

// watchPaths lists the files whose changes mean the task list changed.
func watchPaths(sc config.StoreConfig) []string {
	if strings.EqualFold(sc.Driver, store.DriverSQLite) {
		return []string{sc.Path, sc.Path + "-wal"}
	}
	return []string{sc.Path}
}

// Describe renders a one-line summary of the effective configuration.
func Describe(cfg *config.Config) string {
	return fmt.Sprintf("store=%s:%s dispatch=%s tolerance=%s poll=%s gateway=%t",
		cfg.Store.Driver, cfg.Store.Path,
		cfg.Scheduler.Dispatch, cfg.Scheduler.Tolerance, cfg.Scheduler.PollInterval,
		cfg.Gateway.Enabled)
}
