// Package workspace describes the on-disk layout of a project managed by the
// daemon and loads the text files that feed the agent's system prompt.
package workspace

import (
	"os"
	"path/filepath"
)

// StateDirName is the per-project directory holding all daemon files.
const StateDirName = ".tickclaw"

// Workspace is a project directory and its daemon state tree.
type Workspace struct {
	Root string
}

// New creates a Workspace rooted at the given project directory.
func New(root string) *Workspace {
	return &Workspace{Root: root}
}

// EnsureStructure creates the state tree if it does not exist.
// Idempotent; safe to call multiple times.
func (w *Workspace) EnsureStructure() error {
	dirs := []string{
		w.StateDir(),
		w.JobsDir(),
		w.LogsDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// StateDir returns the directory holding settings, jobs, logs and runtime files.
func (w *Workspace) StateDir() string {
	return filepath.Join(w.Root, StateDirName)
}

// SettingsPath returns the path to the settings document.
func (w *Workspace) SettingsPath() string {
	return filepath.Join(w.StateDir(), "settings.json")
}

// JobsDir returns the directory of job files.
func (w *Workspace) JobsDir() string {
	return filepath.Join(w.StateDir(), "jobs")
}

// LogsDir returns the directory receiving one audit file per invocation.
func (w *Workspace) LogsDir() string {
	return filepath.Join(w.StateDir(), "logs")
}

// SessionPath returns the path to the persisted agent session pointer.
func (w *Workspace) SessionPath() string {
	return filepath.Join(w.StateDir(), "session.json")
}

// StatePath returns the path to the published state snapshot.
func (w *Workspace) StatePath() string {
	return filepath.Join(w.StateDir(), "state.json")
}

// PIDPath returns the path to the daemon PID lock.
func (w *Workspace) PIDPath() string {
	return filepath.Join(w.StateDir(), "daemon.pid")
}

// HistoryPath returns the path to the run history database.
func (w *Workspace) HistoryPath() string {
	return filepath.Join(w.StateDir(), "history.db")
}

// IdentityPath returns the optional file overriding the default identity prompt.
func (w *Workspace) IdentityPath() string {
	return filepath.Join(w.StateDir(), "IDENTITY.md")
}

// MemoryPath returns the project's persistent memory file.
func (w *Workspace) MemoryPath() string {
	return filepath.Join(w.Root, "CLAUDE.md")
}
