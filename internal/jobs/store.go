package jobs

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/flemzord/tickclaw/internal/cron"
	"github.com/flemzord/tickclaw/internal/workspace"
	"gopkg.in/yaml.v3"
)

const jobExt = ".md"

// Store reads job files from a directory.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates a Store over dir.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{dir: dir, logger: logger.With("component", "jobs")}
}

// Dir returns the jobs directory.
func (s *Store) Dir() string { return s.dir }

// Load reads every job file, sorted by name. A missing directory yields an
// empty list. Files that fail to parse are logged and skipped.
func (s *Store) Load() ([]Job, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("jobs: reading %s: %w", s.dir, err)
	}

	list := make([]Job, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), jobExt) {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("job file unreadable, skipping", "path", path, "error", err)
			continue
		}

		name := strings.TrimSuffix(entry.Name(), jobExt)
		job, err := ParseJob(name, string(data), path)
		if err != nil {
			s.logger.Warn("job file invalid, skipping", "path", path, "error", err)
			continue
		}

		if !job.Inert() {
			if err := cron.Validate(job.Schedule); err != nil {
				s.logger.Warn("job schedule flagged", "job", job.Name, "schedule", job.Schedule, "error", err)
			}
		}

		list = append(list, job)
	}

	sort.Slice(list, func(i, k int) bool { return list[i].Name < list[k].Name })
	return list, nil
}

// ClearSchedule rewrites the job file with an empty schedule so the job can
// never match again. It is idempotent, and a missing file is not an error.
func (s *Store) ClearSchedule(name string) error {
	if name == "" || filepath.Base(name) != name {
		return fmt.Errorf("jobs: invalid job name %q", name)
	}
	path := filepath.Join(s.dir, name+jobExt)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("jobs: reading %s: %w", path, err)
	}

	front, body, err := workspace.SplitFrontmatter(string(data))
	if err != nil {
		// Nothing schedulable left in the file.
		return nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(quoteBareSchedule(front)), &doc); err != nil {
		return fmt.Errorf("jobs: invalid YAML in %s: %w", path, err)
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil
	}

	changed := false
	mapping := doc.Content[0]
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value != "schedule" {
			continue
		}
		value := mapping.Content[i+1]
		if value.Kind == yaml.ScalarNode && strings.TrimSpace(value.Value) == "" {
			continue
		}
		value.SetString("")
		value.Style = yaml.DoubleQuotedStyle
		changed = true
	}
	if !changed {
		return nil
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("jobs: encoding %s: %w", path, err)
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := workspace.WriteFileAtomic(path, []byte(workspace.JoinFrontmatter(string(out), body)), 0o644); err != nil {
		return fmt.Errorf("jobs: writing %s: %w", path, err)
	}
	s.logger.Info("one-shot job schedule cleared", "job", name)
	return nil
}
