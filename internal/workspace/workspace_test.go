package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestWorkspace_EnsureStructure(t *testing.T) {
	t.Parallel()

	ws := New(t.TempDir())
	if err := ws.EnsureStructure(); err != nil {
		t.Fatalf("EnsureStructure() error: %v", err)
	}
	// Idempotent.
	if err := ws.EnsureStructure(); err != nil {
		t.Fatalf("second EnsureStructure() error: %v", err)
	}

	for _, dir := range []string{ws.StateDir(), ws.JobsDir(), ws.LogsDir()} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("%s not created: %v", dir, err)
		}
	}
	if filepath.Dir(ws.SettingsPath()) != ws.StateDir() {
		t.Errorf("settings path %s outside state dir", ws.SettingsPath())
	}
	if filepath.Dir(ws.MemoryPath()) != ws.Root {
		t.Errorf("memory path %s should live in project root", ws.MemoryPath())
	}
}

func TestTextFile_FallbackWhenAbsentOrBlank(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ws := New(dir)

	content, err := NewIdentityLoader(ws).Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if content != DefaultIdentity {
		t.Errorf("content = %q, want default identity", content)
	}

	blank := filepath.Join(dir, "blank.md")
	if err := os.WriteFile(blank, []byte("  \n\t "), 0o644); err != nil {
		t.Fatal(err)
	}
	content, err = NewTextFile(blank, "fallback").Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if content != "fallback" {
		t.Errorf("content = %q, want fallback", content)
	}

	content, err = NewMemoryLoader(ws).Load()
	if err != nil || content != "" {
		t.Errorf("memory Load() = %q, %v; want empty", content, err)
	}
}

func TestTextFile_ContentChangeDetected(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "CLAUDE.md")
	if err := os.WriteFile(path, []byte("Version 1"), 0o644); err != nil {
		t.Fatal(err)
	}

	loader := NewTextFile(path, "")
	if content, _ := loader.Load(); content != "Version 1" {
		t.Fatalf("content = %q, want %q", content, "Version 1")
	}

	if err := os.WriteFile(path, []byte("Version 2"), 0o644); err != nil {
		t.Fatal(err)
	}
	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}

	if content, _ := loader.Load(); content != "Version 2" {
		t.Errorf("content = %q, want %q after update", content, "Version 2")
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if content, _ := loader.Load(); content != "" {
		t.Errorf("content = %q after removal, want fallback", content)
	}
}

func TestTextFile_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "IDENTITY.md")
	if err := os.WriteFile(path, []byte("Concurrent identity"), 0o644); err != nil {
		t.Fatal(err)
	}

	loader := NewTextFile(path, DefaultIdentity)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			content, err := loader.Load()
			if err != nil {
				t.Errorf("Load() error: %v", err)
				return
			}
			if content != "Concurrent identity" {
				t.Errorf("content = %q", content)
			}
		}()
	}
	wg.Wait()
}

func TestSplitFrontmatter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		content   string
		wantFront string
		wantBody  string
		wantErr   bool
	}{
		{
			name:      "basic",
			content:   "---\nschedule: \"* * * * *\"\n---\nHello\n",
			wantFront: "schedule: \"* * * * *\"",
			wantBody:  "\nHello\n",
		},
		{
			name:      "crlf",
			content:   "---\r\nrecurring: true\r\n---\r\nBody",
			wantFront: "recurring: true",
			wantBody:  "\nBody",
		},
		{
			name:     "empty header",
			content:  "---\n---\nBody",
			wantBody: "\nBody",
		},
		{name: "no header", content: "Just a prompt", wantErr: true},
		{name: "unterminated", content: "---\nschedule: x\nBody", wantErr: true},
		{name: "delimiter glued", content: "---schedule: x\n---\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			front, body, err := SplitFrontmatter(tt.content)
			if tt.wantErr {
				if !errors.Is(err, ErrNoFrontmatter) {
					t.Fatalf("error = %v, want ErrNoFrontmatter", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if front != tt.wantFront {
				t.Errorf("front = %q, want %q", front, tt.wantFront)
			}
			if body != tt.wantBody {
				t.Errorf("body = %q, want %q", body, tt.wantBody)
			}
		})
	}
}

func TestJoinFrontmatter_RoundTrip(t *testing.T) {
	t.Parallel()

	doc := JoinFrontmatter("schedule: \"\"\n", "\nPrompt body\n")
	front, body, err := SplitFrontmatter(doc)
	if err != nil {
		t.Fatalf("SplitFrontmatter() error: %v", err)
	}
	if front != "schedule: \"\"" {
		t.Errorf("front = %q", front)
	}
	if strings.TrimSpace(body) != "Prompt body" {
		t.Errorf("body = %q", body)
	}
}

func TestResolvePrompt(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "prompts"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "prompts", "daily.md"), []byte("\nSummarize today.\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		prompt string
		want   string
	}{
		{name: "file reference", prompt: "prompts/daily.md", want: "Summarize today."},
		{name: "literal", prompt: "Check the inbox", want: "Check the inbox"},
		{name: "missing file", prompt: "prompts/none.md", want: "prompts/none.md"},
		{name: "unknown extension", prompt: "prompts/daily.json", want: "prompts/daily.json"},
		{name: "escapes root", prompt: "../etc/passwd.txt", want: "../etc/passwd.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ResolvePrompt(root, tt.prompt); got != tt.want {
				t.Errorf("ResolvePrompt(%q) = %q, want %q", tt.prompt, got, tt.want)
			}
		})
	}
}
