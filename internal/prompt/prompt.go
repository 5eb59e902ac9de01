// Package prompt collects a new task definition interactively.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/flemzord/tasksched/internal/recurrence"
	"github.com/flemzord/tasksched/internal/task"
)

// ErrAborted is returned when the user cancels the form.
var ErrAborted = errors.New("prompt: aborted")

// Prompter gathers the fields of a new task.
type Prompter interface {
	Ask(ctx context.Context, seed task.Input) (task.Input, error)
}

// Form is a huh-based Prompter. Fields already present in the seed are
// shown pre-filled.
type Form struct {
	In  io.Reader
	Out io.Writer

	// Exists reports whether a task id is already taken. Optional.
	Exists func(id string) bool

	// Accessible switches huh to line-based prompts for screen readers
	// and dumb terminals.
	Accessible bool
}

// Compile-time check.
var _ Prompter = (*Form)(nil)

// Ask implements Prompter.
func (f *Form) Ask(ctx context.Context, seed task.Input) (task.Input, error) {
	in := seed
	if in.Recurrence == "" {
		in.Recurrence = recurrence.Daily.String()
	}
	if in.Weekday == "" {
		in.Weekday = strings.ToLower(recurrence.DefaultWeekday.String())
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Task ID").
				Description("Unique identifier, no spaces.").
				Value(&in.ID).
				Validate(f.validateID),
			huh.NewInput().
				Title("Name").
				Description("Defaults to the id.").
				Value(&in.Name),
			huh.NewInput().
				Title("Command").
				Description("Executable to run.").
				Value(&in.Command).
				Validate(ValidateCommand),
			huh.NewInput().
				Title("Arguments").
				Description("Separated by spaces.").
				Value(&in.Args),
			huh.NewInput().
				Title("Schedule").
				Description("Time of day as HH:MM.").
				Placeholder("02:00").
				Value(&in.Schedule).
				Validate(ValidateSchedule),
			huh.NewSelect[string]().
				Title("Recurrence").
				Options(huh.NewOptions(recurrence.Daily.String(), recurrence.Weekly.String())...).
				Value(&in.Recurrence),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Weekday").
				Options(WeekdayOptions()...).
				Value(&in.Weekday),
		).WithHideFunc(func() bool { return in.Recurrence != recurrence.Weekly.String() }),
	).WithAccessible(f.Accessible)

	if f.In != nil {
		form = form.WithInput(f.In)
	}
	if f.Out != nil {
		form = form.WithOutput(f.Out)
	}

	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return task.Input{}, ErrAborted
		}
		return task.Input{}, fmt.Errorf("prompt: %w", err)
	}
	if in.Recurrence != recurrence.Weekly.String() {
		in.Weekday = ""
	}
	return in, nil
}

func (f *Form) validateID(id string) error {
	id = strings.TrimSpace(id)
	switch {
	case id == "":
		return errors.New("id is required")
	case strings.ContainsAny(id, " \t"):
		return errors.New("id must not contain spaces")
	case f.Exists != nil && f.Exists(id):
		return fmt.Errorf("a task with id %q already exists", id)
	}
	return nil
}

// ValidateCommand rejects blank commands.
func ValidateCommand(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("command is required")
	}
	return nil
}

// ValidateSchedule checks an HH:MM time of day.
func ValidateSchedule(s string) error {
	_, _, err := recurrence.ParseTime(strings.TrimSpace(s))
	return err
}

// WeekdayOptions lists Monday through Sunday, keyed by lowercase name.
func WeekdayOptions() []huh.Option[string] {
	opts := make([]huh.Option[string], 0, 7)
	for i := range 7 {
		d := time.Weekday((i + 1) % 7)
		opts = append(opts, huh.NewOption(d.String(), strings.ToLower(d.String())))
	}
	return opts
}
