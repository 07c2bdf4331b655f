package cron

import (
	"time"

	"github.com/flemzord/tickclaw/internal/tz"
)

// MaxScanMinutes bounds NextMatch to 48 hours of minute probes.
const MaxScanMinutes = 2880

// NextMatch returns the first whole minute strictly after `after` whose
// local time (shifted by offsetMinutes) matches expr.
//
// When nothing matches within MaxScanMinutes, the last probed minute is
// returned with ok=false so that a broken schedule cannot stall the caller.
func NextMatch(expr string, after time.Time, offsetMinutes int) (next time.Time, ok bool) {
	probe := after.UTC().Truncate(time.Minute)

	e, err := Parse(expr)
	if err != nil {
		return probe.Add(MaxScanMinutes * time.Minute), false
	}

	for range MaxScanMinutes {
		probe = probe.Add(time.Minute)
		if e.Matches(tz.Shift(probe, offsetMinutes)) {
			return probe, true
		}
	}
	return probe, false
}

// DueAt reports whether expr matches the minute containing now in local time.
func DueAt(expr string, now time.Time, offsetMinutes int) bool {
	return Matches(expr, tz.Shift(now.Truncate(time.Minute), offsetMinutes))
}
