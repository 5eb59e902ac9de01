package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/flemzord/tasksched/internal/logging"
	"github.com/flemzord/tasksched/internal/scheduler"
)

// Validate checks the structural validity of a Config after defaults
// have been applied. All problems are reported at once.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version != DefaultVersion {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	switch strings.ToLower(cfg.Store.Driver) {
	case "yaml", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("config: store.driver: unknown driver %q (supported: yaml, sqlite)", cfg.Store.Driver))
	}
	if strings.TrimSpace(cfg.Store.Path) == "" {
		errs = append(errs, errors.New("config: store.path is required"))
	}

	errs = append(errs, validateScheduler(cfg.Scheduler)...)

	if cfg.Executor.Timeout < 0 {
		errs = append(errs, fmt.Errorf("config: executor.timeout must not be negative, got %s", cfg.Executor.Timeout))
	}
	if cfg.Executor.MaxOutputBytes < 0 {
		errs = append(errs, fmt.Errorf("config: executor.max_output_bytes must not be negative, got %d", cfg.Executor.MaxOutputBytes))
	}
	if cfg.Reload.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("config: reload.poll_interval must not be negative, got %s", cfg.Reload.PollInterval))
	}

	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("config: log.level: %w", err))
	}
	switch cfg.Log.Format {
	case logging.FormatText, logging.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("config: log.format: unknown format %q (supported: text, json)", cfg.Log.Format))
	}

	if cfg.Gateway.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Gateway.Bind); err != nil {
			errs = append(errs, fmt.Errorf("config: gateway.bind: %w", err))
		}
	}

	return errors.Join(errs...)
}

func validateScheduler(s SchedulerConfig) []error {
	var errs []error
	if s.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("config: scheduler.poll_interval must be positive, got %s", s.PollInterval))
	}
	if s.Tolerance <= 0 || s.Tolerance >= 24*time.Hour {
		errs = append(errs, fmt.Errorf("config: scheduler.tolerance must be in (0, 24h), got %s", s.Tolerance))
	}
	if s.PollInterval > 0 && s.Tolerance > 0 && s.PollInterval > s.Tolerance {
		errs = append(errs, fmt.Errorf("config: scheduler.poll_interval (%s) exceeds tolerance (%s); occurrences could be missed", s.PollInterval, s.Tolerance))
	}
	if _, err := scheduler.ParseMode(s.Dispatch); err != nil {
		errs = append(errs, fmt.Errorf("config: scheduler.dispatch: %w", err))
	}
	return errs
}
