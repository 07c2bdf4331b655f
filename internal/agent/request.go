package agent

import "strings"

// APIKeyEnv is the environment variable carrying the agent's API token.
const APIKeyEnv = "ANTHROPIC_API_KEY"

// Request describes one agent turn.
type Request struct {
	Prompt       string
	SystemPrompt string
	// ResumeID continues an existing session when non-empty.
	ResumeID string
	Model    string
	// ExtraArgs are appended verbatim (security flags).
	ExtraArgs []string
}

// Args renders the CLI arguments for r. Output is always requested as
// stream-json so every assistant segment is visible.
func (r Request) Args() []string {
	args := []string{"-p", r.Prompt, "--output-format", "stream-json", "--verbose"}
	if r.ResumeID != "" {
		args = append(args, "--resume", r.ResumeID)
	}
	if r.Model != "" {
		args = append(args, "--model", r.Model)
	}
	if r.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", r.SystemPrompt)
	}
	return append(args, r.ExtraArgs...)
}

// Env returns base with the API token set, replacing any inherited value.
// An empty token leaves base untouched.
func Env(base []string, apiToken string) []string {
	if apiToken == "" {
		return append([]string(nil), base...)
	}
	env := make([]string, 0, len(base)+1)
	for _, kv := range base {
		if strings.HasPrefix(kv, APIKeyEnv+"=") {
			continue
		}
		env = append(env, kv)
	}
	return append(env, APIKeyEnv+"="+apiToken)
}
