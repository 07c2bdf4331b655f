package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flemzord/tickclaw/internal/config"
	"github.com/flemzord/tickclaw/internal/notify"
	"github.com/flemzord/tickclaw/internal/state"
	"github.com/flemzord/tickclaw/internal/workspace"
)

func writeSettings(t *testing.T, dir, content string) *workspace.Workspace {
	t.Helper()
	ws := workspace.New(dir)
	if err := ws.EnsureStructure(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(ws.SettingsPath(), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return ws
}

func TestResolveProjectDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	got, err := ResolveProjectDir(dir)
	if err != nil || got != dir {
		t.Errorf("ResolveProjectDir(%q) = %q, %v", dir, got, err)
	}

	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ResolveProjectDir(file); err == nil {
		t.Error("expected error for a regular file")
	}
	if _, err := ResolveProjectDir(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for a missing directory")
	}

	cwd, _ := os.Getwd()
	if got, err := ResolveProjectDir(""); err != nil || got != cwd {
		t.Errorf("ResolveProjectDir(\"\") = %q, %v; want %q", got, err, cwd)
	}
}

func TestRun_InvalidSettings(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeSettings(t, dir, `{"heartbeat": {"enabled": true}}`)

	err := Run(context.Background(), RunParams{ProjectDir: dir, LogOutput: io.Discard})
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestRun_InvalidSettingsContent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeSettings(t, dir, "not: valid: yaml: [")

	if err := Run(context.Background(), RunParams{ProjectDir: dir, LogOutput: io.Discard}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestRun_ServesAndShutsDown(t *testing.T) {
	dir := t.TempDir()
	ws := writeSettings(t, dir, `{
		"timezone": "UTC",
		"heartbeat": {"enabled": false},
		"web": {"enabled": true, "bind": "127.0.0.1:0"}
	}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- Run(ctx, RunParams{ProjectDir: dir, LogOutput: io.Discard})
	}()

	var snap state.Snapshot
	deadline := time.Now().Add(5 * time.Second)
	for {
		s, err := state.Read(ws.StatePath())
		if err == nil && s.Web.Addr != "" {
			snap = s
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no state snapshot with a gateway address: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if snap.PID != os.Getpid() {
		t.Errorf("snapshot pid = %d", snap.PID)
	}

	resp, err := http.Get("http://" + snap.Web.Addr + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	var health struct {
		Status string `json:"status"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&health)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || health.Status != "ok" {
		t.Errorf("health = %d %q", resp.StatusCode, health.Status)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	if _, err := os.Stat(ws.PIDPath()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("pid file left behind: %v", err)
	}
	if _, err := os.Stat(ws.HistoryPath()); err != nil {
		t.Errorf("history database not created: %v", err)
	}
}

func TestNewNotifier(t *testing.T) {
	t.Parallel()

	s := config.Default()
	n, err := NewNotifier(s)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := n.(notify.Nop); !ok {
		t.Errorf("notifier without token = %T, want notify.Nop", n)
	}

	s.Telegram.Token = "123456:abcdefghijklmnopqrstuvwxyz0123456789"
	s.Telegram.ChatID = 42
	n, err = NewNotifier(s)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := n.(*notify.Telegram); !ok {
		t.Errorf("notifier with token = %T, want *notify.Telegram", n)
	}
}
