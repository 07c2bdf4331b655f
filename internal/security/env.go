package security

import "strings"

// childEnvBlockedPrefixes are stripped from the agent's environment. The
// agent needs its own ANTHROPIC_* and CLAUDE_* variables, so those pass.
var childEnvBlockedPrefixes = []string{
	"TELEGRAM_",
	"TICKCLAW_",
	"OPENAI_",
	"AWS_SECRET",
	"AWS_SESSION_TOKEN",
	"SLACK_TOKEN",
	"SLACK_BOT_TOKEN",
	"DISCORD_TOKEN",
	"SMTP_PASSWORD",
}

var childEnvBlockedExact = map[string]struct{}{
	"AWS_SECRET_ACCESS_KEY": {},
	"DATABASE_URL":          {},
	"DB_PASSWORD":           {},
	"REDIS_PASSWORD":        {},
}

// ChildEnv filters base for the agent process: daemon-only secrets are
// removed by name, and any remaining value containing one of the literal
// secrets is dropped.
func ChildEnv(base []string, secrets ...string) []string {
	out := make([]string, 0, len(base))
	for _, entry := range base {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || isBlockedEnv(key) || containsSecret(value, secrets) {
			continue
		}
		out = append(out, entry)
	}
	return out
}

func isBlockedEnv(name string) bool {
	upper := strings.ToUpper(name)
	if _, ok := childEnvBlockedExact[upper]; ok {
		return true
	}
	for _, prefix := range childEnvBlockedPrefixes {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}
	return false
}

func containsSecret(value string, secrets []string) bool {
	for _, s := range secrets {
		if len(s) >= minLiteralLen && strings.Contains(value, s) {
			return true
		}
	}
	return false
}
