package heartbeat

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// 2025-01-06 is a Monday.
func monday(hour, minute int) time.Time {
	return time.Date(2025, 1, 6, hour, minute, 0, 0, time.UTC)
}

func mustWindow(t *testing.T, spec WindowSpec) Window {
	t.Helper()
	w, err := ParseWindow(spec)
	if err != nil {
		t.Fatalf("ParseWindow(%+v): %v", spec, err)
	}
	return w
}

func TestParseWindow_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		spec WindowSpec
	}{
		{name: "missing colon", spec: WindowSpec{Start: "2300", End: "07:00"}},
		{name: "hour out of range", spec: WindowSpec{Start: "25:00", End: "07:00"}},
		{name: "minute out of range", spec: WindowSpec{Start: "23:00", End: "07:60"}},
		{name: "not numeric", spec: WindowSpec{Start: "ab:cd", End: "07:00"}},
		{name: "empty end", spec: WindowSpec{Start: "23:00"}},
		{name: "bad day", spec: WindowSpec{Start: "23:00", End: "07:00", Days: []int{7}}},
		{name: "meridiem suffix", spec: WindowSpec{Start: "7:30pm", End: "23:00"}},
		{name: "trailing junk", spec: WindowSpec{Start: "07:30junk", End: "23:00"}},
		{name: "letter in minute", spec: WindowSpec{Start: "23:00", End: "07:5x"}},
		{name: "signed hour", spec: WindowSpec{Start: "+7:00", End: "23:00"}},
		{name: "single digit minute", spec: WindowSpec{Start: "7:5", End: "23:00"}},
		{name: "three digit hour", spec: WindowSpec{Start: "007:00", End: "23:00"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParseWindow(tt.spec); !errors.Is(err, ErrInvalidWindow) {
				t.Errorf("error = %v, want ErrInvalidWindow", err)
			}
		})
	}
}

func TestParseWindow_ClockForms(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want int
	}{
		{"0:00", 0},
		{"7:30", 450},
		{"07:30", 450},
		{" 19:30 ", 1170},
		{"23:59", 1439},
	}
	for _, tt := range tests {
		w, err := ParseWindow(WindowSpec{Start: tt.in, End: "23:59"})
		if err != nil {
			t.Errorf("ParseWindow(start %q) error: %v", tt.in, err)
			continue
		}
		if w.Start != tt.want {
			t.Errorf("ParseWindow(start %q).Start = %d, want %d", tt.in, w.Start, tt.want)
		}
	}
}

func TestParseWindow_DefaultsToAllDays(t *testing.T) {
	t.Parallel()

	w := mustWindow(t, WindowSpec{Start: "02:00", End: "06:30"})
	for d, on := range w.Days {
		if !on {
			t.Errorf("day %d not set", d)
		}
	}
	if w.Start != 120 || w.End != 390 {
		t.Errorf("Start/End = %d/%d, want 120/390", w.Start, w.End)
	}
}

func TestParseWindows_DropsMalformed(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	windows := ParseWindows([]WindowSpec{
		{Start: "22:00", End: "23:00"},
		{Start: "nope", End: "23:00"},
		{Start: "01:00", End: "02:00", Days: []int{1, 2}},
	}, logger)

	if len(windows) != 2 {
		t.Fatalf("len = %d, want 2", len(windows))
	}
	if !strings.Contains(buf.String(), "exclusion window dropped") {
		t.Errorf("expected a warning, got %q", buf.String())
	}
}

func TestIsExcluded_SameDay(t *testing.T) {
	t.Parallel()

	windows := []Window{mustWindow(t, WindowSpec{Start: "09:00", End: "17:00", Days: []int{1}})}

	tests := []struct {
		at   time.Time
		want bool
	}{
		{monday(8, 59), false},
		{monday(9, 0), true},
		{monday(16, 59), true},
		{monday(17, 0), false},
		{monday(12, 0).AddDate(0, 0, 1), false},
	}
	for _, tt := range tests {
		if got := IsExcluded(windows, tt.at, 0); got != tt.want {
			t.Errorf("IsExcluded(%v) = %v, want %v", tt.at, got, tt.want)
		}
	}
}

func TestIsExcluded_WholeDay(t *testing.T) {
	t.Parallel()

	windows := []Window{mustWindow(t, WindowSpec{Start: "00:00", End: "00:00", Days: []int{0, 6}})}

	sunday := monday(12, 0).AddDate(0, 0, -1)
	if !IsExcluded(windows, sunday, 0) {
		t.Error("Sunday should be fully excluded")
	}
	if IsExcluded(windows, monday(12, 0), 0) {
		t.Error("Monday should not be excluded")
	}
}

func TestIsExcluded_WrapsMidnight(t *testing.T) {
	t.Parallel()

	windows := []Window{mustWindow(t, WindowSpec{Start: "23:00", End: "07:00", Days: []int{1}})}
	tuesday := func(h, m int) time.Time { return monday(h, m).AddDate(0, 0, 1) }

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{name: "monday 23:30", at: monday(23, 30), want: true},
		{name: "tuesday 06:30 belongs to monday", at: tuesday(6, 30), want: true},
		{name: "tuesday 23:30", at: tuesday(23, 30), want: false},
		{name: "monday 06:30 belongs to sunday", at: monday(6, 30), want: false},
		{name: "tuesday 07:00", at: tuesday(7, 0), want: false},
		{name: "monday 22:59", at: monday(22, 59), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsExcluded(windows, tt.at, 0); got != tt.want {
				t.Errorf("IsExcluded(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestIsExcluded_UsesOffset(t *testing.T) {
	t.Parallel()

	windows := []Window{mustWindow(t, WindowSpec{Start: "00:00", End: "06:00"})}

	// 23:30 UTC is 01:30 at UTC+2.
	if !IsExcluded(windows, monday(23, 30), 120) {
		t.Error("expected exclusion in local time")
	}
	if IsExcluded(windows, monday(23, 30), 0) {
		t.Error("expected no exclusion in UTC")
	}
}

func TestWindow_String(t *testing.T) {
	t.Parallel()

	w := mustWindow(t, WindowSpec{Start: "23:00", End: "07:05", Days: []int{1, 5}})
	if got, want := w.String(), "23:00-07:05 [Mon,Fri]"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
