package agent

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"
)

func TestParseOutput_MultiSegment(t *testing.T) {
	t.Parallel()

	stdout := strings.Join([]string{
		`{"type":"system","subtype":"init","session_id":"sess-1"}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"First part."}]},"session_id":"sess-1"}`,
		`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Read"}]},"session_id":"sess-1"}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"Second part."}]},"session_id":"sess-1"}`,
		`{"type":"result","subtype":"success","is_error":false,"result":"Second part.","session_id":"sess-1"}`,
	}, "\n")

	out, err := ParseOutput(stdout)
	if err != nil {
		t.Fatalf("ParseOutput() error: %v", err)
	}
	if out.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want sess-1", out.SessionID)
	}
	if out.Text != "First part.\n\nSecond part." {
		t.Errorf("Text = %q", out.Text)
	}
	if out.IsError {
		t.Error("IsError = true, want false")
	}
}

func TestParseOutput_ResultOnly(t *testing.T) {
	t.Parallel()

	out, err := ParseOutput(`{"type":"result","subtype":"error_during_execution","is_error":true,"result":"boom","session_id":"s2"}`)
	if err != nil {
		t.Fatalf("ParseOutput() error: %v", err)
	}
	if out.Text != "boom" || !out.IsError || out.SessionID != "s2" {
		t.Errorf("out = %+v", out)
	}
}

func TestParseOutput_Malformed(t *testing.T) {
	t.Parallel()

	for _, stdout := range []string{"", "plain text answer", "{not json"} {
		if _, err := ParseOutput(stdout); !errors.Is(err, ErrMalformedOutput) {
			t.Errorf("ParseOutput(%q) error = %v, want ErrMalformedOutput", stdout, err)
		}
	}
}

func TestIsRateLimited(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want bool
	}{
		{"You've hit your limit · resets 3pm", true},
		{"you have reached your usage limit", true},
		{"Claude AI usage limit reached|1735689600", true},
		{"All good, limits are fine", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsRateLimited(tt.text); got != tt.want {
			t.Errorf("IsRateLimited(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
	if !IsRateLimited("", "noise", "You've hit your limit") {
		t.Error("expected a match in any argument")
	}
}

func TestRequest_Args(t *testing.T) {
	t.Parallel()

	args := Request{
		Prompt:       "hello",
		SystemPrompt: "be nice",
		ResumeID:     "abc",
		Model:        "opus",
		ExtraArgs:    []string{"--tools", "Read"},
	}.Args()

	want := []string{
		"-p", "hello", "--output-format", "stream-json", "--verbose",
		"--resume", "abc", "--model", "opus", "--append-system-prompt", "be nice",
		"--tools", "Read",
	}
	if !slices.Equal(args, want) {
		t.Errorf("Args() = %q\nwant %q", args, want)
	}

	fresh := Request{Prompt: "hi"}.Args()
	if slices.Contains(fresh, "--resume") || slices.Contains(fresh, "--model") {
		t.Errorf("fresh request should not resume or pin a model: %q", fresh)
	}
}

func TestEnv(t *testing.T) {
	t.Parallel()

	base := []string{"PATH=/bin", APIKeyEnv + "=old"}

	env := Env(base, "new")
	if !slices.Contains(env, APIKeyEnv+"=new") || slices.Contains(env, APIKeyEnv+"=old") {
		t.Errorf("Env() = %q", env)
	}
	if !slices.Equal(Env(base, ""), base) {
		t.Errorf("empty token should keep base env")
	}
}

func TestExecInvoker(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "fake-agent")
	body := "#!/bin/sh\necho \"out:$1:$TICK_TEST\"\necho err >&2\nexit 3\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}

	inv := &ExecInvoker{Binary: script, Dir: dir}
	res, err := inv.Spawn(context.Background(), []string{"arg"}, []string{"TICK_TEST=yes"})
	if err != nil {
		t.Fatalf("Spawn() error: %v", err)
	}
	if res.ExitCode != 3 || !res.Failed() {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	if strings.TrimSpace(res.Stdout) != "out:arg:yes" {
		t.Errorf("Stdout = %q", res.Stdout)
	}
	if strings.TrimSpace(res.Stderr) != "err" {
		t.Errorf("Stderr = %q", res.Stderr)
	}

	missing := &ExecInvoker{Binary: filepath.Join(dir, "does-not-exist")}
	if _, err := missing.Spawn(context.Background(), nil, nil); err == nil {
		t.Error("expected start error for missing binary")
	}
}
