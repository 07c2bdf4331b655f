package security

import (
	"fmt"
	"strings"
)

// Level bounds what the agent may do during a run.
type Level string

// Security levels, from most to least restrictive.
const (
	LevelLocked       Level = "locked"
	LevelStrict       Level = "strict"
	LevelModerate     Level = "moderate"
	LevelUnrestricted Level = "unrestricted"
)

// DefaultLevel applies when settings leave the level empty.
const DefaultLevel = LevelModerate

// ParseLevel accepts a level name case-insensitively; "" yields DefaultLevel.
func ParseLevel(s string) (Level, error) {
	switch l := Level(strings.ToLower(strings.TrimSpace(s))); l {
	case "":
		return DefaultLevel, nil
	case LevelLocked, LevelStrict, LevelModerate, LevelUnrestricted:
		return l, nil
	default:
		return "", fmt.Errorf("unknown security level %q (want locked, strict, moderate or unrestricted)", s)
	}
}

// Args returns the agent CLI permission flags for level plus the explicit
// tool lists. Permission prompts are always skipped since runs are unattended.
func Args(level Level, allowedTools, disallowedTools []string) []string {
	args := []string{"--dangerously-skip-permissions"}

	switch level {
	case LevelLocked:
		args = append(args, "--tools", "Read,Grep,Glob")
	case LevelStrict:
		args = append(args, "--disallowedTools", "Bash,WebSearch,WebFetch")
	}

	if tools := joinTools(allowedTools); tools != "" {
		args = append(args, "--allowedTools", tools)
	}
	if tools := joinTools(disallowedTools); tools != "" {
		args = append(args, "--disallowedTools", tools)
	}
	return args
}

// ScopesDirectory reports whether the system prompt should confine the agent
// to the project directory.
func ScopesDirectory(level Level) bool {
	return level != LevelUnrestricted
}

func joinTools(tools []string) string {
	out := make([]string, 0, len(tools))
	for _, t := range tools {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return strings.Join(out, ",")
}
