// Package pidfile implements the one-daemon-per-project lock: a file holding
// the daemon's process id, checked for liveness with a signal probe.
package pidfile

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrAlreadyRunning means the PID file names a live process.
	ErrAlreadyRunning = errors.New("pidfile: daemon already running")

	// ErrReplaceTimeout means a replaced daemon did not exit in time.
	ErrReplaceTimeout = errors.New("pidfile: previous daemon did not exit in time")
)

// Defaults for Options.
const (
	DefaultReplaceTimeout = 10 * time.Second
	defaultPollInterval   = 100 * time.Millisecond
	maxAcquireAttempts    = 5
)

// Options controls Acquire.
type Options struct {
	// Replace terminates a live holder instead of failing.
	Replace bool
	// Timeout bounds the wait for a replaced daemon to exit.
	Timeout time.Duration
	// PollInterval is how often the replaced daemon is probed.
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Lock is a held PID file.
type Lock struct {
	path string
	pid  int
}

// Acquire creates the PID file at path for the current process.
//
// A file naming a dead process, or holding garbage, is stale and replaced.
// A file naming a live process yields ErrAlreadyRunning unless
// opts.Replace is set, in which case that process is sent SIGTERM and
// awaited for up to opts.Timeout (ErrReplaceTimeout past that).
func Acquire(path string, opts Options) (*Lock, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultReplaceTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	self := os.Getpid()
	for range maxAcquireAttempts {
		err := create(path, self)
		if err == nil {
			return &Lock{path: path, pid: self}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, err
		}

		pid, readErr := Read(path)
		switch {
		case readErr != nil && errors.Is(readErr, fs.ErrNotExist):
			// Removed between create and read: try again.
		case readErr != nil || pid == self || !Alive(pid):
			logger.Warn("removing stale pid file", "path", path, "pid", pid)
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("pidfile: removing stale %s: %w", path, err)
			}
		case !opts.Replace:
			return nil, fmt.Errorf("%w (pid %d, %s)", ErrAlreadyRunning, pid, path)
		default:
			logger.Info("replacing running daemon", "pid", pid)
			if err := terminate(pid); err != nil {
				return nil, fmt.Errorf("pidfile: signalling pid %d: %w", pid, err)
			}
			if !waitExit(pid, opts.Timeout, opts.PollInterval) {
				return nil, fmt.Errorf("%w (pid %d after %s)", ErrReplaceTimeout, pid, opts.Timeout)
			}
			// The old daemon may or may not have removed its file.
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("pidfile: removing %s: %w", path, err)
			}
		}
	}
	return nil, fmt.Errorf("pidfile: could not acquire %s after %d attempts", path, maxAcquireAttempts)
}

// PID returns the process id recorded by the lock.
func (l *Lock) PID() int { return l.pid }

// Release removes the PID file if it still names this lock's process.
func (l *Lock) Release() error {
	pid, err := Read(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if pid != l.pid {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("pidfile: removing %s: %w", l.path, err)
	}
	return nil
}

// Read parses the PID file at path.
func Read(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("pidfile: %s does not hold a process id", path)
	}
	return pid, nil
}

// Running reports the pid recorded at path and whether it is alive.
func Running(path string) (int, bool) {
	pid, err := Read(path)
	if err != nil {
		return 0, false
	}
	return pid, Alive(pid)
}

func create(path string, pid int) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(f, "%d\n", pid); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("pidfile: writing %s: %w", path, err)
	}
	return f.Close()
}

func waitExit(pid int, timeout, poll time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if !Alive(pid) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(poll)
	}
}
