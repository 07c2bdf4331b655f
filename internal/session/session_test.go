package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStore_Lifecycle(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "session.json")
	s := NewStore(path)

	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	sess, err := s.Load()
	if err != nil || sess != nil {
		t.Fatalf("Load(empty) = %v, %v; want nil, nil", sess, err)
	}
	if err := s.Touch(); err != nil {
		t.Fatalf("Touch(no session) = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Touch without a session created the file")
	}

	if _, err := s.Create("abc-123"); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	clock = clock.Add(time.Hour)
	if err := s.Touch(); err != nil {
		t.Fatalf("Touch() error: %v", err)
	}

	sess, err = s.Load()
	if err != nil || sess == nil {
		t.Fatalf("Load() = %v, %v", sess, err)
	}
	if sess.ID != "abc-123" {
		t.Errorf("ID = %q", sess.ID)
	}
	if !sess.CreatedAt.Equal(clock.Add(-time.Hour)) || !sess.LastUsedAt.Equal(clock) {
		t.Errorf("timestamps = %v / %v", sess.CreatedAt, sess.LastUsedAt)
	}

	if err := s.Reset(); err != nil {
		t.Fatalf("Reset() error: %v", err)
	}
	if sess, _ := s.Load(); sess != nil {
		t.Error("session survived Reset")
	}
	if err := s.Reset(); err != nil {
		t.Errorf("second Reset() = %v", err)
	}
}

func TestStore_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "session.json")
	s := NewStore(path)

	if _, err := s.Create(""); err == nil {
		t.Error("Create(\"\") should fail")
	}

	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(); err == nil {
		t.Error("expected parse error")
	}

	if err := os.WriteFile(path, []byte(`{"sessionId": ""}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if sess, err := s.Load(); err != nil || sess != nil {
		t.Errorf("Load(empty id) = %v, %v", sess, err)
	}
}
