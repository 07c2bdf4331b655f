package workspace

import (
	"errors"
	"os"
	"strings"
	"sync"
	"time"
)

// DefaultIdentity is the persona used when no IDENTITY.md file exists.
const DefaultIdentity = "You are a long-running personal assistant. " +
	"You are woken up by a scheduler for periodic heartbeats, scheduled jobs and chat messages, " +
	"and you keep continuity across turns through this resumed session. " +
	"Answer concisely; your reply may be forwarded to the user's chat."

// TextLoader is the interface for loading a prompt fragment.
type TextLoader interface {
	Load() (string, error)
}

// TextFile loads a text file with stat-based cache invalidation.
// On every Load() call it stats the file; if the modification time or size
// changed the content is re-read, otherwise the cached value is returned.
type TextFile struct {
	path     string
	fallback string

	mu      sync.RWMutex
	content string
	modTime time.Time
	size    int64
	cached  bool
}

// NewTextFile creates a loader for path. The fallback is returned when the
// file is missing or blank.
func NewTextFile(path, fallback string) *TextFile {
	return &TextFile{path: path, fallback: fallback}
}

// NewIdentityLoader returns a loader for w's identity file, defaulting to
// DefaultIdentity.
func NewIdentityLoader(w *Workspace) *TextFile {
	return NewTextFile(w.IdentityPath(), DefaultIdentity)
}

// NewMemoryLoader returns a loader for w's memory file, empty when absent.
func NewMemoryLoader(w *Workspace) *TextFile {
	return NewTextFile(w.MemoryPath(), "")
}

// Load returns the current content, re-reading the file only when it changed.
//
// Behavior:
//   - File missing or blank → fallback, no error.
//   - ModTime and size unchanged → cached content (RLock fast path).
//   - Otherwise → re-read file and update cache (Lock).
func (f *TextFile) Load() (string, error) {
	info, err := os.Stat(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			f.reset()
			return f.fallback, nil
		}
		return "", err
	}

	f.mu.RLock()
	if f.cached && f.modTime.Equal(info.ModTime()) && f.size == info.Size() {
		cached := f.content
		f.mu.RUnlock()
		return cached, nil
	}
	f.mu.RUnlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			f.reset()
			return f.fallback, nil
		}
		return "", err
	}

	content := strings.TrimSpace(string(data))
	if content == "" {
		content = f.fallback
	}

	f.mu.Lock()
	f.content = content
	f.modTime = info.ModTime()
	f.size = info.Size()
	f.cached = true
	f.mu.Unlock()

	return content, nil
}

func (f *TextFile) reset() {
	f.mu.Lock()
	f.cached = false
	f.content = ""
	f.modTime = time.Time{}
	f.size = 0
	f.mu.Unlock()
}
