package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/flemzord/tickclaw/internal/agent"
	"gopkg.in/yaml.v3"
)

func TestPolicy_ShouldForward(t *testing.T) {
	t.Parallel()

	ok := agent.Result{Stdout: "done"}
	failed := agent.Result{Stdout: "nope", ExitCode: 1}

	tests := []struct {
		policy     Policy
		okWant     bool
		failedWant bool
	}{
		{PolicyAlways, true, true},
		{PolicyOnError, false, true},
		{PolicyNever, false, false},
		{"", true, true},
	}
	for _, tt := range tests {
		if got := tt.policy.ShouldForward(ok); got != tt.okWant {
			t.Errorf("%q.ShouldForward(ok) = %v, want %v", tt.policy, got, tt.okWant)
		}
		if got := tt.policy.ShouldForward(failed); got != tt.failedWant {
			t.Errorf("%q.ShouldForward(failed) = %v, want %v", tt.policy, got, tt.failedWant)
		}
	}
}

func TestPolicy_UnmarshalYAML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		doc     string
		want    Policy
		wantErr bool
	}{
		{doc: "notify: true", want: PolicyAlways},
		{doc: "notify: false", want: PolicyNever},
		{doc: "notify: error", want: PolicyOnError},
		{doc: "notify: on-error", want: PolicyOnError},
		{doc: "notify: never", want: PolicyNever},
		{doc: "notify: sometimes", wantErr: true},
		{doc: "notify: [a]", wantErr: true},
	}
	for _, tt := range tests {
		var v struct {
			Notify Policy `yaml:"notify"`
		}
		err := yaml.Unmarshal([]byte(tt.doc), &v)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", tt.doc)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error: %v", tt.doc, err)
			continue
		}
		if v.Notify != tt.want {
			t.Errorf("%q: got %q, want %q", tt.doc, v.Notify, tt.want)
		}
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()

	if got := Format("heartbeat", agent.Result{Stdout: " all quiet \n"}); got != "[heartbeat]\nall quiet" {
		t.Errorf("Format(ok) = %q", got)
	}
	got := Format("job:backup", agent.Result{Stderr: "disk full", ExitCode: 2})
	if !strings.Contains(got, "failed (exit 2)") || !strings.Contains(got, "disk full") {
		t.Errorf("Format(failed) = %q", got)
	}
}

func TestNop(t *testing.T) {
	t.Parallel()

	var n Notifier = Nop{}
	if err := n.Forward(context.Background(), "x", agent.Result{}); err != nil {
		t.Errorf("Nop.Forward() = %v", err)
	}
}

func TestNewTelegram_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewTelegram(TelegramConfig{ChatID: 1}); err == nil {
		t.Error("expected error without token")
	}
	if _, err := NewTelegram(TelegramConfig{Token: "t"}); err == nil {
		t.Error("expected error without chat id")
	}
}

func TestTelegram_Forward(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		texts []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var req sendMessageRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.ChatID != 42 {
			t.Errorf("chat_id = %d, want 42", req.ChatID)
		}
		mu.Lock()
		texts = append(texts, req.Text)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	tg, err := NewTelegram(TelegramConfig{Token: "TOKEN", ChatID: 42, BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewTelegram() error: %v", err)
	}

	long := strings.Repeat("line of output\n", 600)
	if err := tg.Forward(context.Background(), "heartbeat", agent.Result{Stdout: long}); err != nil {
		t.Fatalf("Forward() error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(texts) < 2 {
		t.Fatalf("messages = %d, want the text split", len(texts))
	}
	if !strings.HasPrefix(texts[0], "[heartbeat]") {
		t.Errorf("first message = %q", texts[0][:20])
	}
	for i, text := range texts {
		if n := utf8.RuneCountInString(text); n > telegramMaxMessageUnits {
			t.Errorf("message %d has %d runes", i, n)
		}
	}
}

func TestTelegram_RetriesOnTooManyRequests(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":429,"description":"slow down","parameters":{"retry_after":0}}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg, _ := NewTelegram(TelegramConfig{Token: "T", ChatID: 1, BaseURL: srv.URL})
	tg.http = srv.Client()

	if err := tg.Forward(context.Background(), "job:x", agent.Result{Stdout: "hi"}); err != nil {
		t.Fatalf("Forward() error: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestTelegram_APIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"chat not found"}`))
	}))
	defer srv.Close()

	tg, _ := NewTelegram(TelegramConfig{Token: "T", ChatID: 1, BaseURL: srv.URL})
	err := tg.Forward(context.Background(), "job:x", agent.Result{Stdout: "hi"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 400 {
		t.Fatalf("Forward() error = %v, want APIError 400", err)
	}
}

func TestSplitMessage(t *testing.T) {
	t.Parallel()

	if got := splitMessage("short", 10); len(got) != 1 || got[0] != "short" {
		t.Errorf("splitMessage(short) = %q", got)
	}

	got := splitMessage("aaaa\nbbbb\ncccc", 10)
	if len(got) != 2 || got[0] != "aaaa\nbbbb" || got[1] != "cccc" {
		t.Errorf("splitMessage() = %q", got)
	}

	got = splitMessage(strings.Repeat("x", 25), 10)
	if len(got) != 3 || got[2] != "xxxxx" {
		t.Errorf("splitMessage(no newlines) = %q", got)
	}
}

func TestSplitMessage_CountsUTF16Units(t *testing.T) {
	t.Parallel()

	// Each emoji is one rune but two UTF-16 units.
	text := strings.Repeat("😀", 3000)
	got := splitMessage(text, telegramMaxMessageUnits)
	if len(got) != 2 {
		t.Fatalf("chunks = %d, want 2", len(got))
	}
	for i, chunk := range got {
		if n := utf16Len(chunk); n > telegramMaxMessageUnits {
			t.Errorf("chunk %d is %d units, over the %d limit", i, n, telegramMaxMessageUnits)
		}
	}
	if strings.Join(got, "") != text {
		t.Error("chunks do not reassemble the original text")
	}

	// A surrogate pair is never split.
	got = splitMessage("a😀b", 2)
	if len(got) != 3 || got[0] != "a" || got[1] != "😀" || got[2] != "b" {
		t.Errorf("splitMessage(a😀b, 2) = %q", got)
	}
}
