// Package notify forwards agent results to the user's chat.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/flemzord/tickclaw/internal/agent"
	"gopkg.in/yaml.v3"
)

// Notifier delivers the result of a labelled run.
type Notifier interface {
	Forward(ctx context.Context, label string, result agent.Result) error
}

// Nop discards every result. It is used when no chat transport is configured.
type Nop struct{}

// Forward implements Notifier.
func (Nop) Forward(context.Context, string, agent.Result) error { return nil }

// Policy controls which results of a job are forwarded.
type Policy string

// Notification policies.
const (
	PolicyAlways  Policy = "always"
	PolicyOnError Policy = "on-error"
	PolicyNever   Policy = "never"
)

// ParsePolicy accepts the canonical names plus "error" and the booleans
// true (always) and false (never).
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "always", "true", "yes":
		return PolicyAlways, nil
	case "on-error", "onerror", "error", "errors":
		return PolicyOnError, nil
	case "never", "false", "no":
		return PolicyNever, nil
	default:
		return "", fmt.Errorf("notify: unknown policy %q", s)
	}
}

// UnmarshalYAML lets job frontmatter use either a string or a boolean.
func (p *Policy) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("notify: policy must be a scalar, line %d", node.Line)
	}
	parsed, err := ParsePolicy(node.Value)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ShouldForward applies p to result.
func (p Policy) ShouldForward(result agent.Result) bool {
	switch p {
	case PolicyNever:
		return false
	case PolicyOnError:
		return result.Failed()
	default:
		return true
	}
}

// Format renders a result as chat text.
func Format(label string, result agent.Result) string {
	body := strings.TrimSpace(result.Stdout)
	if result.Failed() {
		detail := body
		if detail == "" {
			detail = strings.TrimSpace(result.Stderr)
		}
		return fmt.Sprintf("[%s] failed (exit %d)\n%s", label, result.ExitCode, detail)
	}
	if body == "" {
		body = "(no output)"
	}
	return fmt.Sprintf("[%s]\n%s", label, body)
}
