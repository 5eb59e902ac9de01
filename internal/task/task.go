// Package task defines the persisted job record and the pure functions
// that build and validate it.
package task

import (
	"errors"
	"fmt"
	"strings"

	"github.com/flemzord/tasksched/internal/recurrence"
)

// Record is one schedulable task definition. Field order is the
// serialized order.
type Record struct {
	ID         string   `yaml:"id" json:"id"`
	Name       string   `yaml:"name" json:"name"`
	Command    string   `yaml:"command" json:"command"`
	Args       []string `yaml:"args" json:"args"`
	Schedule   string   `yaml:"schedule" json:"schedule"`
	Recurrence string   `yaml:"recurrence" json:"recurrence"`
	Weekday    string   `yaml:"weekday,omitempty" json:"weekday,omitempty"`
}

// Rule builds the record's recurrence rule.
func (r Record) Rule() (recurrence.Rule, error) {
	rule, err := recurrence.New(r.Recurrence, r.Schedule, r.Weekday)
	if err != nil {
		return recurrence.Rule{}, fmt.Errorf("task %q: %w", r.ID, err)
	}
	return rule, nil
}

// Validate checks the structural fields and the recurrence rule.
func (r Record) Validate() error {
	var errs []error
	if r.ID == "" {
		errs = append(errs, fmt.Errorf("%w: id is required", ErrInvalidRecord))
	} else if strings.ContainsAny(r.ID, " \t\r\n") {
		errs = append(errs, fmt.Errorf("%w: id %q must not contain whitespace", ErrInvalidRecord, r.ID))
	}
	if strings.TrimSpace(r.Command) == "" {
		errs = append(errs, fmt.Errorf("%w: task %q: command is required", ErrInvalidRecord, r.ID))
	}
	if _, err := r.Rule(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// CommandLine renders the command and its arguments for display.
func (r Record) CommandLine() string {
	if len(r.Args) == 0 {
		return r.Command
	}
	return r.Command + " " + strings.Join(r.Args, " ")
}

// Input is the raw, already-collected answer set for a new task, as typed
// by a user or passed on the command line.
type Input struct {
	ID         string
	Name       string
	Command    string
	Args       string // whitespace-separated
	Schedule   string
	Recurrence string
	Weekday    string
}

// Build turns raw input into a normalized, validated record. It performs
// no I/O.
func Build(in Input) (Record, error) {
	rec := Record{
		ID:         strings.TrimSpace(in.ID),
		Name:       strings.TrimSpace(in.Name),
		Command:    strings.TrimSpace(in.Command),
		Args:       strings.Fields(in.Args),
		Schedule:   strings.TrimSpace(in.Schedule),
		Recurrence: strings.ToLower(strings.TrimSpace(in.Recurrence)),
		Weekday:    strings.ToLower(strings.TrimSpace(in.Weekday)),
	}
	if rec.Args == nil {
		rec.Args = []string{}
	}
	if rec.Recurrence == "" {
		rec.Recurrence = recurrence.Daily.String()
	}
	if rec.Name == "" {
		rec.Name = rec.ID
	}

	rule, err := rec.Rule()
	if err != nil {
		return Record{}, err
	}
	rec.Schedule = rule.TimeOfDay()
	if rule.Kind != recurrence.Weekly {
		rec.Weekday = ""
	}

	if err := rec.Validate(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Normalize fills defaults on a record read from storage.
func Normalize(r Record) Record {
	if r.Recurrence == "" {
		r.Recurrence = recurrence.Daily.String()
	}
	r.Recurrence = strings.ToLower(r.Recurrence)
	if r.Args == nil {
		r.Args = []string{}
	}
	return r
}

// IndexOf returns the position of the record with the given id, or -1.
func IndexOf(records []Record, id string) int {
	for i, r := range records {
		if r.ID == id {
			return i
		}
	}
	return -1
}
