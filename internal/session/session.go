// Package session persists the pointer to the agent's resumable
// conversation. There is at most one session per project directory.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/flemzord/tickclaw/internal/workspace"
)

// Session identifies the agent conversation that every run resumes.
type Session struct {
	ID         string    `json:"sessionId"`
	CreatedAt  time.Time `json:"createdAt"`
	LastUsedAt time.Time `json:"lastUsedAt"`
}

// Store reads and writes the session file. It is safe for concurrent use,
// though in practice only the runner writes to it.
type Store struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewStore creates a store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// Path returns the session file path.
func (s *Store) Path() string { return s.path }

// Load returns the persisted session, or nil when none exists. A file with
// an empty id counts as no session.
func (s *Store) Load() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (*Session, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: reading %s: %w", s.path, err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("session: parsing %s: %w", s.path, err)
	}
	if sess.ID == "" {
		return nil, nil
	}
	return &sess, nil
}

// Create persists a new session with id, replacing any previous one.
func (s *Store) Create(id string) (*Session, error) {
	if id == "" {
		return nil, errors.New("session: empty session id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess := &Session{ID: id, CreatedAt: now, LastUsedAt: now}
	if err := workspace.WriteJSONAtomic(s.path, sess); err != nil {
		return nil, fmt.Errorf("session: writing %s: %w", s.path, err)
	}
	return sess, nil
}

// Touch records a use of the current session. It is a no-op when no session
// exists.
func (s *Store) Touch() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.load()
	if err != nil || sess == nil {
		return err
	}
	sess.LastUsedAt = s.now()
	if err := workspace.WriteJSONAtomic(s.path, sess); err != nil {
		return fmt.Errorf("session: writing %s: %w", s.path, err)
	}
	return nil
}

// Reset deletes the session so the next run starts a fresh conversation.
// Resetting without a session is not an error.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("session: removing %s: %w", s.path, err)
	}
	return nil
}
