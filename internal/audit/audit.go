// Package audit writes one log file per agent invocation.
package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/flemzord/tickclaw/internal/agent"
	"github.com/flemzord/tickclaw/internal/security"
)

// Entry is everything recorded about one invocation.
type Entry struct {
	RunID      string
	Label      string
	StartedAt  time.Time
	FinishedAt time.Time
	SessionID  string
	NewSession bool
	// Answered names the configuration that produced Result: "primary" or
	// "fallback".
	Answered string
	Model    string
	Prompt   string
	Result   agent.Result
}

// Config configures a Writer.
type Config struct {
	// Dir is the logs directory. It is created on first write.
	Dir string

	// Redactor, if non-nil, is applied to every free-text field.
	Redactor *security.Redactor
}

// Writer writes audit entries. Each entry gets its own file, so concurrent
// writes never interleave.
type Writer struct {
	dir      string
	redactor *security.Redactor
}

// NewWriter creates an audit writer.
func NewWriter(cfg Config) *Writer {
	return &Writer{dir: cfg.Dir, redactor: cfg.Redactor}
}

// Write stores e and returns the file path.
func (w *Writer) Write(e Entry) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("audit: creating %s: %w", w.dir, err)
	}

	path := filepath.Join(w.dir, FileName(e))
	if err := os.WriteFile(path, []byte(w.render(e)), 0o600); err != nil {
		return "", fmt.Errorf("audit: writing %s: %w", path, err)
	}
	return path, nil
}

// FileName returns "<label>-<timestamp>-<run id>.log" with the label reduced
// to filename-safe characters.
func FileName(e Entry) string {
	ts := e.StartedAt.UTC().Format("20060102T150405Z")
	name := sanitize(e.Label) + "-" + ts
	if e.RunID != "" {
		name += "-" + sanitize(e.RunID)
	}
	return name + ".log"
}

func (w *Writer) render(e Entry) string {
	session := "resumed"
	if e.NewSession {
		session = "new"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "label: %s\n", e.Label)
	fmt.Fprintf(&b, "run_id: %s\n", e.RunID)
	fmt.Fprintf(&b, "started_at: %s\n", e.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "finished_at: %s\n", e.FinishedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "duration: %s\n", e.FinishedAt.Sub(e.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(&b, "session_id: %s\n", e.SessionID)
	fmt.Fprintf(&b, "session: %s\n", session)
	fmt.Fprintf(&b, "answered_by: %s\n", e.Answered)
	fmt.Fprintf(&b, "model: %s\n", e.Model)
	fmt.Fprintf(&b, "exit_code: %d\n", e.Result.ExitCode)

	w.section(&b, "prompt", e.Prompt)
	w.section(&b, "stdout", e.Result.Stdout)
	w.section(&b, "stderr", e.Result.Stderr)
	return b.String()
}

func (w *Writer) section(b *strings.Builder, name, body string) {
	if w.redactor != nil {
		body = w.redactor.Redact(body)
	}
	fmt.Fprintf(b, "\n=== %s ===\n%s", name, body)
	if body != "" && !strings.HasSuffix(body, "\n") {
		b.WriteByte('\n')
	}
}

func sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '-'
		}
	}, s)
	s = strings.Trim(s, "-.")
	if s == "" {
		return "run"
	}
	return s
}
