// Package tz turns a configured timezone into a fixed minute offset from UTC
// and maps instants onto local wall-clock coordinates.
package tz

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // zone names must resolve on hosts without zoneinfo
)

// ErrInvalidTimezone is returned when neither an offset nor a zone name can
// be parsed from the configured value.
var ErrInvalidTimezone = errors.New("tz: invalid timezone")

// maxOffsetMinutes bounds offsets to the range used by real zones (UTC-12..UTC+14).
const maxOffsetMinutes = 14 * 60

// ParseOffset parses offset notations such as "UTC", "Z", "+02:00", "-0530",
// "UTC+2" or "GMT-03:30" into minutes east of UTC.
func ParseOffset(s string) (int, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	for _, prefix := range []string{"UTC", "GMT"} {
		v = strings.TrimPrefix(v, prefix)
	}
	if v == "" || v == "Z" {
		return 0, nil
	}

	sign := 1
	switch v[0] {
	case '+':
	case '-':
		sign = -1
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimezone, s)
	}
	v = v[1:]

	var hours, minutes string
	switch {
	case strings.Contains(v, ":"):
		hours, minutes, _ = strings.Cut(v, ":")
	case len(v) == 4:
		hours, minutes = v[:2], v[2:]
	default:
		hours, minutes = v, "0"
	}

	h, err := strconv.Atoi(hours)
	if err != nil || h < 0 {
		return 0, fmt.Errorf("%w: bad hours in %q", ErrInvalidTimezone, s)
	}
	m, err := strconv.Atoi(minutes)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: bad minutes in %q", ErrInvalidTimezone, s)
	}

	total := sign * (h*60 + m)
	if total < -maxOffsetMinutes || total > maxOffsetMinutes {
		return 0, fmt.Errorf("%w: offset out of range in %q", ErrInvalidTimezone, s)
	}
	return total, nil
}

// Resolve returns the minute offset for the configured timezone.
//
// An explicit offset wins over the name. A name is tried first as an offset
// notation, then as an IANA zone evaluated at now. An empty name means UTC.
// On failure the offset is 0 and the error describes the bad value.
func Resolve(name string, explicit *int, now time.Time) (int, error) {
	if explicit != nil {
		off := *explicit
		if off < -maxOffsetMinutes || off > maxOffsetMinutes {
			return 0, fmt.Errorf("%w: offset %d minutes out of range", ErrInvalidTimezone, off)
		}
		return off, nil
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return 0, nil
	}

	if off, err := ParseOffset(name); err == nil {
		return off, nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrInvalidTimezone, name, err)
	}
	_, secs := now.In(loc).Zone()
	return secs / 60, nil
}

// Shift moves t into "local" coordinates. The result must be read through its
// UTC accessors (Hour, Minute, Weekday...), which then report local values.
func Shift(t time.Time, offsetMinutes int) time.Time {
	return t.UTC().Add(time.Duration(offsetMinutes) * time.Minute)
}

// Local is a wall-clock position within the week.
type Local struct {
	Weekday time.Weekday
	Minute  int // minutes since local midnight, 0..1439
}

// At returns the local weekday and minute-of-day of t.
func At(t time.Time, offsetMinutes int) Local {
	s := Shift(t, offsetMinutes)
	return Local{
		Weekday: s.Weekday(),
		Minute:  s.Hour()*60 + s.Minute(),
	}
}

// Format renders an offset as "UTC+05:30".
func Format(offsetMinutes int) string {
	sign := '+'
	if offsetMinutes < 0 {
		sign = '-'
		offsetMinutes = -offsetMinutes
	}
	return fmt.Sprintf("UTC%c%02d:%02d", sign, offsetMinutes/60, offsetMinutes%60)
}
