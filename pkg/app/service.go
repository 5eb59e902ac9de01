package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/kardianos/service"
)

const serviceStopTimeout = 30 * time.Second

// ServiceName is the name registered with the OS service manager.
const ServiceName = "tasksched"

// Service actions accepted by ControlService besides "status".
var ServiceActions = service.ControlAction[:]

// program adapts Run to the service manager's Start/Stop callbacks.
type program struct {
	params Params
	run    func(ctx context.Context, p Params) error

	cancel context.CancelFunc
	done   chan error
}

// Start implements service.Interface. It must not block.
func (p *program) Start(service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() { p.done <- p.run(ctx, p.params) }()
	return nil
}

// Stop implements service.Interface.
func (p *program) Stop(service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	select {
	case err := <-p.done:
		return err
	case <-time.After(serviceStopTimeout):
		return errors.New("service: timed out waiting for scheduler to stop")
	}
}

// NewService describes the "run" command to the OS service manager.
// Relative config and task paths are made absolute first, since services
// start outside the invoking shell's directory.
func NewService(p Params) (service.Service, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}

	args := []string{"run"}
	if p.ConfigPath != "" {
		abs, err := filepath.Abs(p.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("service: %w", err)
		}
		p.ConfigPath = abs
		args = append(args, "--config", abs)
	}
	if p.TasksPath != "" {
		abs, err := filepath.Abs(p.TasksPath)
		if err != nil {
			return nil, fmt.Errorf("service: %w", err)
		}
		p.TasksPath = abs
		args = append(args, "--tasks", abs)
	}
	if p.LogLevel != "" {
		args = append(args, "--log-level", p.LogLevel)
	}

	cfg := &service.Config{
		Name:             ServiceName,
		DisplayName:      "tasksched",
		Description:      "Runs commands on daily and weekly schedules.",
		Arguments:        args,
		WorkingDirectory: wd,
	}
	return service.New(&program{params: p, run: Run}, cfg)
}

// RunService hands control to the service manager. Use it when the
// process was not started from a terminal.
func RunService(p Params) error {
	s, err := NewService(p)
	if err != nil {
		return err
	}
	return s.Run()
}

// Interactive reports whether the process runs from a terminal rather
// than under a service manager.
func Interactive() bool {
	return service.Interactive()
}

// ControlService performs install, uninstall, start, stop or restart.
func ControlService(s service.Service, action string) error {
	if !slices.Contains(ServiceActions, action) {
		return fmt.Errorf("service: unknown action %q (supported: %v, status)", action, ServiceActions)
	}
	if err := service.Control(s, action); err != nil {
		return fmt.Errorf("service: %s: %w", action, err)
	}
	return nil
}

// ServiceStatus returns a human-readable status.
func ServiceStatus(s service.Service) (string, error) {
	st, err := s.Status()
	if errors.Is(err, service.ErrNotInstalled) {
		return "not installed", nil
	}
	if err != nil {
		return "", fmt.Errorf("service: status: %w", err)
	}
	switch st {
	case service.StatusRunning:
		return "running", nil
	case service.StatusStopped:
		return "stopped", nil
	default:
		return "unknown", nil
	}
}
