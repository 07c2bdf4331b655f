// Package reload reads settings and jobs as one consistent snapshot, diffs
// successive snapshots and watches the files they come from.
package reload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const defaultPollInterval = 5 * time.Second

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	// Paths are files or directories to watch. For a directory, the names,
	// sizes and modification times of its direct entries are compared.
	Paths []string

	// PollInterval defaults to 5 seconds if zero.
	PollInterval time.Duration
}

func (c WatcherConfig) pollIntervalOrDefault() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return defaultPollInterval
}

// Watcher polls a set of paths and signals when any of them changes. It
// shortens the delay before a reload; the periodic reload still runs without it.
type Watcher struct {
	cfg     WatcherConfig
	events  chan struct{}
	stop    chan struct{}
	stopped chan struct{}

	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewWatcher creates a new watcher.
func NewWatcher(cfg WatcherConfig) *Watcher {
	return &Watcher{
		cfg:     cfg,
		events:  make(chan struct{}, 1),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start begins polling. Only the first call starts the goroutine.
func (w *Watcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.started.Store(true)
		go w.poll(ctx)
	})
}

// Events receives a value after one or more changes. Bursts coalesce into
// a single pending event.
func (w *Watcher) Events() <-chan struct{} {
	return w.events
}

// Stop stops the watcher. Safe to call multiple times and before Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	if w.started.Load() {
		<-w.stopped
	}
}

func (w *Watcher) poll(ctx context.Context) {
	defer close(w.stopped)

	ticker := time.NewTicker(w.cfg.pollIntervalOrDefault())
	defer ticker.Stop()

	last := w.stamp()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			current := w.stamp()
			if current == last {
				continue
			}
			last = current
			select {
			case w.events <- struct{}{}:
			default:
			}
		}
	}
}

// stamp summarizes the state of every watched path. A missing path has an
// empty stamp, so creating or deleting it counts as a change.
func (w *Watcher) stamp() string {
	var b strings.Builder
	for _, p := range w.cfg.Paths {
		b.WriteString(p)
		b.WriteByte('\x00')
		b.WriteString(pathStamp(p))
		b.WriteByte('\x00')
	}
	return b.String()
}

func pathStamp(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return ""
	}
	if !info.IsDir() {
		return fileStamp(info)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return fileStamp(info)
	}
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		ei, err := os.Stat(filepath.Join(path, e.Name()))
		if err != nil {
			continue
		}
		parts = append(parts, e.Name()+"="+fileStamp(ei))
	}
	slices.Sort(parts)
	return strings.Join(parts, ";")
}

func fileStamp(info os.FileInfo) string {
	return fmt.Sprintf("%d/%d", info.Size(), info.ModTime().UnixNano())
}
