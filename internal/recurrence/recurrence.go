// Package recurrence models the calendar rules that decide when a task is
// due: every day at a wall-clock time, or once a week on a given weekday.
package recurrence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	// ErrInvalidRecurrence is returned for recurrence values other than
	// daily and weekly.
	ErrInvalidRecurrence = errors.New("invalid recurrence")

	// ErrInvalidSchedule is returned for malformed HH:MM times and unknown
	// weekdays.
	ErrInvalidSchedule = errors.New("invalid schedule time")
)

// DefaultWeekday is used by weekly rules that do not name a weekday.
const DefaultWeekday = time.Monday

// DefaultTolerance is the width of a firing window: a rule matches during
// the whole minute of its scheduled time.
const DefaultTolerance = time.Minute

// Kind is the closed set of supported recurrences.
type Kind int

const (
	// Daily fires every day.
	Daily Kind = iota + 1
	// Weekly fires on a single weekday.
	Weekly
)

// String returns the serialized form of the kind.
func (k Kind) String() string {
	switch k {
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	default:
		return "unknown"
	}
}

// ParseKind parses a recurrence name. An empty value means daily.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "daily":
		return Daily, nil
	case "weekly":
		return Weekly, nil
	default:
		return 0, fmt.Errorf("%w: %q (supported: daily, weekly)", ErrInvalidRecurrence, s)
	}
}

// ParseTime parses a 24-hour HH:MM time of day. Single-digit hours are
// accepted ("9:05").
func ParseTime(s string) (hour, minute int, err error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 || !digits(hh) || !digits(mm) {
		return 0, 0, fmt.Errorf("%w: %q (want HH:MM)", ErrInvalidSchedule, s)
	}
	hour, herr := strconv.Atoi(hh)
	minute, merr := strconv.Atoi(mm)
	if herr != nil || merr != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %q (want HH:MM)", ErrInvalidSchedule, s)
	}
	return hour, minute, nil
}

// digits reports whether s is made only of ASCII digits. Atoi alone would
// accept a sign.
func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ParseWeekday parses an English weekday name or its three-letter
// abbreviation. An empty value yields DefaultWeekday.
func ParseWeekday(s string) (time.Weekday, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return DefaultWeekday, nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if v == name || v == name[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown weekday %q", ErrInvalidSchedule, s)
}

// Rule is a validated recurrence. The zero value is not usable; build
// rules with New.
type Rule struct {
	Kind    Kind
	Weekday time.Weekday // only meaningful for Weekly
	Hour    int
	Minute  int

	sched cron.Schedule
}

// Occurrence identifies one firing window of a rule: the scheduled
// wall-clock instant the window starts at.
type Occurrence struct {
	Slot time.Time
}

// IsZero reports whether o is the zero occurrence.
func (o Occurrence) IsZero() bool { return o.Slot.IsZero() }

// New builds a rule from its serialized parts. Errors wrap
// ErrInvalidRecurrence or ErrInvalidSchedule.
func New(kind, schedule, weekday string) (Rule, error) {
	k, err := ParseKind(kind)
	if err != nil {
		return Rule{}, err
	}
	hour, minute, err := ParseTime(schedule)
	if err != nil {
		return Rule{}, err
	}
	r := Rule{Kind: k, Hour: hour, Minute: minute}
	if k == Weekly {
		if r.Weekday, err = ParseWeekday(weekday); err != nil {
			return Rule{}, err
		}
	}
	sched, err := cron.ParseStandard(r.CronExpr())
	if err != nil {
		return Rule{}, fmt.Errorf("recurrence: building schedule %q: %w", r.CronExpr(), err)
	}
	r.sched = sched
	return r, nil
}

// CronExpr returns the rule as a 5-field cron expression.
func (r Rule) CronExpr() string {
	if r.Kind == Weekly {
		return fmt.Sprintf("%d %d * * %d", r.Minute, r.Hour, int(r.Weekday))
	}
	return fmt.Sprintf("%d %d * * *", r.Minute, r.Hour)
}

// TimeOfDay returns the scheduled time formatted as HH:MM.
func (r Rule) TimeOfDay() string {
	return fmt.Sprintf("%02d:%02d", r.Hour, r.Minute)
}

// String describes the rule for humans.
func (r Rule) String() string {
	if r.Kind == Weekly {
		return fmt.Sprintf("weekly on %s at %s", r.Weekday, r.TimeOfDay())
	}
	return "daily at " + r.TimeOfDay()
}

// Equal reports whether two rules fire at the same moments.
func (r Rule) Equal(o Rule) bool {
	if r.Kind != o.Kind || r.Hour != o.Hour || r.Minute != o.Minute {
		return false
	}
	return r.Kind != Weekly || r.Weekday == o.Weekday
}

// Matches reports whether now falls inside the firing window
// [slot, slot+tolerance) of the rule's latest slot, and returns that
// occurrence. A non-positive tolerance means DefaultTolerance.
func (r Rule) Matches(now time.Time, tolerance time.Duration) (Occurrence, bool) {
	if r.sched == nil {
		return Occurrence{}, false
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	// Next is strictly-after with second resolution, so the window start
	// is inclusive and its end exclusive.
	slot := r.sched.Next(now.Add(-tolerance))
	if slot.IsZero() || slot.After(now) {
		return Occurrence{}, false
	}
	return Occurrence{Slot: slot}, true
}

// Next returns the first slot strictly after t, or the zero time for an
// unbuilt rule.
func (r Rule) Next(t time.Time) time.Time {
	if r.sched == nil {
		return time.Time{}
	}
	return r.sched.Next(t)
}
