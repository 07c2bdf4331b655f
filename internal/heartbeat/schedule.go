package heartbeat

import "time"

const (
	// MinInterval is the shortest heartbeat period honoured.
	MinInterval = time.Minute

	// maxExclusionSteps caps how far NextAllowedAt walks through excluded
	// candidates before giving up.
	maxExclusionSteps = 20000
)

// ClampInterval raises interval to MinInterval.
func ClampInterval(interval time.Duration) time.Duration {
	if interval < MinInterval {
		return MinInterval
	}
	return interval
}

// NextAllowedAt returns the first deadline from+k*interval (k >= 1) that is
// not excluded by windows.
//
// When every candidate within maxExclusionSteps is excluded, the last
// candidate is returned with ok=false; callers should surface this as a
// configuration problem.
func NextAllowedAt(windows []Window, offsetMinutes int, interval time.Duration, from time.Time) (next time.Time, ok bool) {
	interval = ClampInterval(interval)

	candidate := from.Add(interval)
	for range maxExclusionSteps {
		if !IsExcluded(windows, candidate, offsetMinutes) {
			return candidate, true
		}
		candidate = candidate.Add(interval)
	}
	return candidate, false
}
