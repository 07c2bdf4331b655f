// Package heartbeat decides when the recurring heartbeat prompt may fire:
// quiet-hour exclusion windows and absolute next-fire deadlines.
package heartbeat

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/flemzord/tickclaw/internal/tz"
)

// ErrInvalidWindow is returned for exclusion windows that cannot be parsed.
var ErrInvalidWindow = errors.New("heartbeat: invalid exclusion window")

// WindowSpec is the settings representation of an exclusion window.
// Days uses 0 for Sunday through 6 for Saturday; empty means every day.
type WindowSpec struct {
	Days  []int  `yaml:"days,omitempty" json:"days,omitempty"`
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// Window is a parsed exclusion window.
//
// Start == End blocks the listed days entirely. Start > End wraps past
// midnight: the part after midnight belongs to the day the window started.
type Window struct {
	Days  [7]bool
	Start int // minutes after local midnight
	End   int
}

// ParseWindow validates spec and converts it into a Window.
func ParseWindow(spec WindowSpec) (Window, error) {
	start, err := parseClock(strings.TrimSpace(spec.Start))
	if err != nil {
		return Window{}, fmt.Errorf("%w: start: %w", ErrInvalidWindow, err)
	}
	end, err := parseClock(strings.TrimSpace(spec.End))
	if err != nil {
		return Window{}, fmt.Errorf("%w: end: %w", ErrInvalidWindow, err)
	}

	w := Window{Start: start, End: end}
	if len(spec.Days) == 0 {
		for d := range w.Days {
			w.Days[d] = true
		}
		return w, nil
	}
	for _, d := range spec.Days {
		if d < 0 || d > 6 {
			return Window{}, fmt.Errorf("%w: day %d outside 0-6", ErrInvalidWindow, d)
		}
		w.Days[d] = true
	}
	return w, nil
}

// ParseWindows parses every spec, dropping malformed entries with a warning.
func ParseWindows(specs []WindowSpec, logger *slog.Logger) []Window {
	windows := make([]Window, 0, len(specs))
	for i, spec := range specs {
		w, err := ParseWindow(spec)
		if err != nil {
			if logger != nil {
				logger.Warn("exclusion window dropped", "index", i, "start", spec.Start, "end", spec.End, "error", err)
			}
			continue
		}
		windows = append(windows, w)
	}
	return windows
}

// parseClock parses "H:MM" or "HH:MM" into minutes after midnight.
func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) < 1 || len(hh) > 2 || len(mm) != 2 {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	h, err := clockDigits(hh)
	if err != nil {
		return 0, fmt.Errorf("invalid hour: %q", hh)
	}
	m, err := clockDigits(mm)
	if err != nil {
		return 0, fmt.Errorf("invalid minute: %q", mm)
	}

	if h > 23 || m > 59 {
		return 0, fmt.Errorf("out of range: %02d:%02d", h, m)
	}
	return h*60 + m, nil
}

// clockDigits accepts ASCII digits only; strconv.Atoi alone would let signs
// through.
func clockDigits(s string) (int, error) {
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, strconv.ErrSyntax
		}
	}
	return strconv.Atoi(s)
}

// Contains reports whether the local position falls inside the window.
func (w Window) Contains(l tz.Local) bool {
	day := int(l.Weekday)
	switch {
	case w.Start == w.End:
		return w.Days[day]
	case w.Start < w.End:
		return w.Days[day] && l.Minute >= w.Start && l.Minute < w.End
	default:
		if l.Minute >= w.Start && w.Days[day] {
			return true
		}
		prev := (day + 6) % 7
		return l.Minute < w.End && w.Days[prev]
	}
}

// String renders the window as "HH:MM-HH:MM [days]".
func (w Window) String() string {
	var days []string
	for d, on := range w.Days {
		if on {
			days = append(days, time.Weekday(d).String()[:3])
		}
	}
	return fmt.Sprintf("%02d:%02d-%02d:%02d [%s]",
		w.Start/60, w.Start%60, w.End/60, w.End%60, strings.Join(days, ","))
}

// IsExcluded reports whether t, shifted by offsetMinutes, falls in any window.
func IsExcluded(windows []Window, t time.Time, offsetMinutes int) bool {
	if len(windows) == 0 {
		return false
	}
	local := tz.At(t, offsetMinutes)
	for _, w := range windows {
		if w.Contains(local) {
			return true
		}
	}
	return false
}
