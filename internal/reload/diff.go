package reload

import (
	"slices"
	"strconv"
	"strings"

	"github.com/flemzord/tickclaw/internal/config"
)

// Change describes one changed setting.
type Change struct {
	Field string
	Old   string
	New   string
}

// HeartbeatChanges lists the heartbeat-affecting fields that differ between
// two loads: enabled, interval, prompt, exclusion windows and timezone.
// Any entry means the heartbeat deadline must be recomputed.
func HeartbeatChanges(oldS *config.Settings, oldRT config.Runtime, newS *config.Settings, newRT config.Runtime) []Change {
	var changes []Change
	add := func(field, o, n string) {
		if o != n {
			changes = append(changes, Change{Field: field, Old: o, New: n})
		}
	}

	add("heartbeat.enabled", strconv.FormatBool(oldS.Heartbeat.Enabled), strconv.FormatBool(newS.Heartbeat.Enabled))
	add("heartbeat.interval", oldRT.Interval.String(), newRT.Interval.String())
	add("heartbeat.prompt", oldS.Heartbeat.Prompt, newS.Heartbeat.Prompt)
	if !slices.Equal(oldRT.Windows, newRT.Windows) {
		changes = append(changes, Change{
			Field: "heartbeat.excludeWindows",
			Old:   strconv.Itoa(len(oldRT.Windows)) + " windows",
			New:   strconv.Itoa(len(newRT.Windows)) + " windows",
		})
	}
	add("timezone", strconv.Itoa(oldRT.OffsetMinutes), strconv.Itoa(newRT.OffsetMinutes))

	return changes
}

// SecurityChanges lists changed security fields, for logging.
func SecurityChanges(oldS *config.Settings, oldRT config.Runtime, newS *config.Settings, newRT config.Runtime) []Change {
	var changes []Change
	if oldRT.Level != newRT.Level {
		changes = append(changes, Change{Field: "security.level", Old: string(oldRT.Level), New: string(newRT.Level)})
	}
	if !slices.Equal(oldS.Security.AllowedTools, newS.Security.AllowedTools) {
		changes = append(changes, Change{
			Field: "security.allowedTools",
			Old:   strings.Join(oldS.Security.AllowedTools, ","),
			New:   strings.Join(newS.Security.AllowedTools, ","),
		})
	}
	if !slices.Equal(oldS.Security.DisallowedTools, newS.Security.DisallowedTools) {
		changes = append(changes, Change{
			Field: "security.disallowedTools",
			Old:   strings.Join(oldS.Security.DisallowedTools, ","),
			New:   strings.Join(newS.Security.DisallowedTools, ","),
		})
	}
	return changes
}
