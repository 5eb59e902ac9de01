package recurrence

import (
	"errors"
	"testing"
	"time"
)

func at(day, hour, minute, sec int) time.Time {
	// 2024-01-01 is a Monday.
	return time.Date(2024, time.January, day, hour, minute, sec, 0, time.UTC)
}

func mustRule(t *testing.T, kind, schedule, weekday string) Rule {
	t.Helper()
	r, err := New(kind, schedule, weekday)
	if err != nil {
		t.Fatalf("New(%q, %q, %q): %v", kind, schedule, weekday, err)
	}
	return r
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{in: "", want: Daily},
		{in: "daily", want: Daily},
		{in: "DAILY", want: Daily},
		{in: " weekly ", want: Weekly},
		{in: "monthly", wantErr: true},
		{in: "hourly", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidRecurrence) {
				t.Errorf("ParseKind(%q) error = %v, want ErrInvalidRecurrence", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseKind(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseKind(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in        string
		hour, min int
		wantErr   bool
	}{
		{in: "02:00", hour: 2, min: 0},
		{in: "9:05", hour: 9, min: 5},
		{in: "23:59", hour: 23, min: 59},
		{in: "00:00", hour: 0, min: 0},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "12:5", wantErr: true},
		{in: "1200", wantErr: true},
		{in: "ab:cd", wantErr: true},
		{in: "", wantErr: true},
		{in: "-1:30", wantErr: true},
		{in: "+9:05", wantErr: true},
		{in: "09:+5", wantErr: true},
		{in: "-0:00", wantErr: true},
		{in: "+0:+0", wantErr: true},
		{in: " 7:30 ", hour: 7, min: 30},
	}

	for _, tt := range tests {
		h, m, err := ParseTime(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidSchedule) {
				t.Errorf("ParseTime(%q) error = %v, want ErrInvalidSchedule", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTime(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if h != tt.hour || m != tt.min {
			t.Errorf("ParseTime(%q) = %d:%d, want %d:%d", tt.in, h, m, tt.hour, tt.min)
		}
	}
}

func TestParseWeekday(t *testing.T) {
	t.Parallel()

	tests := map[string]time.Weekday{
		"":          time.Monday,
		"friday":    time.Friday,
		"Fri":       time.Friday,
		"SUNDAY":    time.Sunday,
		"wed":       time.Wednesday,
		" saturday": time.Saturday,
	}
	for in, want := range tests {
		got, err := ParseWeekday(in)
		if err != nil {
			t.Errorf("ParseWeekday(%q) unexpected error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseWeekday(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := ParseWeekday("someday"); !errors.Is(err, ErrInvalidSchedule) {
		t.Errorf("ParseWeekday(someday) error = %v, want ErrInvalidSchedule", err)
	}
}

func TestNew_Invalid(t *testing.T) {
	t.Parallel()

	if _, err := New("monthly", "02:00", ""); !errors.Is(err, ErrInvalidRecurrence) {
		t.Errorf("monthly: error = %v, want ErrInvalidRecurrence", err)
	}
	if _, err := New("daily", "2am", ""); !errors.Is(err, ErrInvalidSchedule) {
		t.Errorf("bad time: error = %v, want ErrInvalidSchedule", err)
	}
	if _, err := New("weekly", "02:00", "caturday"); !errors.Is(err, ErrInvalidSchedule) {
		t.Errorf("bad weekday: error = %v, want ErrInvalidSchedule", err)
	}
	// Weekday is ignored for daily rules.
	if _, err := New("daily", "02:00", "caturday"); err != nil {
		t.Errorf("daily with weekday: unexpected error: %v", err)
	}
}

func TestRule_DailyMatchesWindowOnAnyDate(t *testing.T) {
	t.Parallel()

	r := mustRule(t, "daily", "02:00", "")

	for day := 1; day <= 14; day++ {
		tests := []struct {
			now  time.Time
			want bool
		}{
			{now: at(day, 1, 59, 59), want: false},
			{now: at(day, 2, 0, 0), want: true},
			{now: at(day, 2, 0, 30), want: true},
			{now: at(day, 2, 0, 59), want: true},
			{now: at(day, 2, 1, 0), want: false},
			{now: at(day, 14, 0, 0), want: false},
		}
		for _, tt := range tests {
			occ, got := r.Matches(tt.now, 0)
			if got != tt.want {
				t.Errorf("Matches(%v) = %v, want %v", tt.now, got, tt.want)
			}
			if got && !occ.Slot.Equal(at(day, 2, 0, 0)) {
				t.Errorf("Matches(%v) slot = %v, want %v", tt.now, occ.Slot, at(day, 2, 0, 0))
			}
		}
	}
}

func TestRule_DailyMatchesSubSecond(t *testing.T) {
	t.Parallel()

	r := mustRule(t, "daily", "02:00", "")
	now := time.Date(2024, 1, 3, 2, 0, 59, 999_000_000, time.UTC)
	if _, ok := r.Matches(now, 0); !ok {
		t.Errorf("expected match at %v", now)
	}
}

func TestRule_CustomTolerance(t *testing.T) {
	t.Parallel()

	r := mustRule(t, "daily", "23:58", "")

	// A five minute window crosses midnight and still maps to the
	// previous day's slot.
	occ, ok := r.Matches(at(2, 0, 2, 0), 5*time.Minute)
	if !ok {
		t.Fatal("expected match within tolerance across midnight")
	}
	if want := at(1, 23, 58, 0); !occ.Slot.Equal(want) {
		t.Errorf("slot = %v, want %v", occ.Slot, want)
	}
	if _, ok := r.Matches(at(2, 0, 3, 0), 5*time.Minute); ok {
		t.Error("expected no match once the window closed")
	}
}

func TestRule_WeeklyOnlyOnConfiguredWeekday(t *testing.T) {
	t.Parallel()

	tests := []struct {
		weekday string
		want    time.Weekday
	}{
		{weekday: "", want: time.Monday},
		{weekday: "friday", want: time.Friday},
		{weekday: "sun", want: time.Sunday},
	}

	for _, tt := range tests {
		r := mustRule(t, "weekly", "09:30", tt.weekday)
		for day := 1; day <= 14; day++ {
			now := at(day, 9, 30, 10)
			_, got := r.Matches(now, 0)
			want := now.Weekday() == tt.want
			if got != want {
				t.Errorf("weekday %q: Matches(%v %s) = %v, want %v", tt.weekday, now, now.Weekday(), got, want)
			}
		}
	}
}

func TestRule_Next(t *testing.T) {
	t.Parallel()

	daily := mustRule(t, "daily", "02:00", "")
	if got, want := daily.Next(at(1, 2, 0, 0)), at(2, 2, 0, 0); !got.Equal(want) {
		t.Errorf("daily Next = %v, want %v", got, want)
	}
	if got, want := daily.Next(at(1, 1, 0, 0)), at(1, 2, 0, 0); !got.Equal(want) {
		t.Errorf("daily Next = %v, want %v", got, want)
	}

	weekly := mustRule(t, "weekly", "08:15", "wednesday")
	if got, want := weekly.Next(at(1, 0, 0, 0)), at(3, 8, 15, 0); !got.Equal(want) {
		t.Errorf("weekly Next = %v, want %v", got, want)
	}

	var zero Rule
	if !zero.Next(at(1, 0, 0, 0)).IsZero() {
		t.Error("zero rule Next should be zero time")
	}
	if _, ok := zero.Matches(at(1, 0, 0, 0), 0); ok {
		t.Error("zero rule should never match")
	}
}

func TestRule_StringAndCron(t *testing.T) {
	t.Parallel()

	daily := mustRule(t, "daily", "7:05", "")
	if daily.String() != "daily at 07:05" {
		t.Errorf("String = %q", daily.String())
	}
	if daily.CronExpr() != "5 7 * * *" {
		t.Errorf("CronExpr = %q", daily.CronExpr())
	}

	weekly := mustRule(t, "weekly", "18:00", "fri")
	if weekly.String() != "weekly on Friday at 18:00" {
		t.Errorf("String = %q", weekly.String())
	}
	if weekly.CronExpr() != "0 18 * * 5" {
		t.Errorf("CronExpr = %q", weekly.CronExpr())
	}
}

func TestRule_Equal(t *testing.T) {
	t.Parallel()

	a := mustRule(t, "weekly", "18:00", "fri")
	b := mustRule(t, "weekly", "18:00", "friday")
	c := mustRule(t, "weekly", "18:00", "mon")
	d := mustRule(t, "daily", "18:00", "")

	if !a.Equal(b) {
		t.Error("expected equal rules")
	}
	if a.Equal(c) || a.Equal(d) {
		t.Error("expected different rules")
	}
}
