// Package app provides the shared setup and the long-running entry point
// behind the tasksched commands.
package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/flemzord/tasksched/internal/config"
	"github.com/flemzord/tasksched/internal/executor"
	"github.com/flemzord/tasksched/internal/logging"
	"github.com/flemzord/tasksched/internal/store"
)

// Params are the command-line inputs shared by every command.
type Params struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, config.ResolvePath is used and a missing file means defaults.
	ConfigPath string

	// TasksPath overrides store.path from the configuration.
	TasksPath string

	// LogLevel overrides log.level from the configuration.
	LogLevel string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// LogOutput receives console logs. Defaults to os.Stderr.
	LogOutput io.Writer
}

// Env is the loaded configuration plus the resources built from it.
type Env struct {
	Config     *config.Config
	ConfigPath string
	Logger     *slog.Logger
	Redactor   *logging.Redactor
	Store      store.Store

	closeLog func() error
}

// Setup loads and validates configuration, builds the logger and opens
// the task store. The caller must Close the returned Env.
func Setup(p Params) (*Env, error) {
	// An explicit path must exist; only the searched locations may be absent.
	if p.ConfigPath != "" {
		if _, err := os.Stat(p.ConfigPath); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	cfgPath := config.ResolvePath(p.ConfigPath)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if p.TasksPath != "" {
		cfg.Store.Path = p.TasksPath
	}
	if p.LogLevel != "" {
		cfg.Log.Level = p.LogLevel
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	redactor := logging.NewRedactor()
	redactor.AddLiteral(cfg.Gateway.BearerToken)

	logger, closeLog, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Console:    p.LogOutput,
		Redactor:   redactor,
	})
	if err != nil {
		return nil, err
	}

	st, err := store.Open(store.Options{
		Driver: cfg.Store.Driver,
		Path:   cfg.Store.Path,
		Logger: logger,
	})
	if err != nil {
		_ = closeLog()
		return nil, err
	}

	return &Env{
		Config:     cfg,
		ConfigPath: cfgPath,
		Logger:     logger,
		Redactor:   redactor,
		Store:      st,
		closeLog:   closeLog,
	}, nil
}

// NewExecutor builds an executor from the executor section.
func (e *Env) NewExecutor() *executor.Executor {
	return executor.New(executor.Config{
		Timeout:        e.Config.Executor.Timeout,
		WorkDir:        e.Config.Executor.WorkDir,
		MaxOutputBytes: e.Config.Executor.MaxOutputBytes,
		SanitizeEnv:    e.Config.Executor.SanitizeEnv,
		Logger:         e.Logger,
	})
}

// Close releases the store and flushes the log file.
func (e *Env) Close() error {
	return errors.Join(e.Store.Close(), e.closeLog())
}
