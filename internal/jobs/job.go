// Package jobs loads cron-scheduled prompts from a directory of markdown
// files with YAML frontmatter and clears the schedule of one-shot jobs.
//
// A job file looks like:
//
//	---
//	schedule: "0 9 * * 1-5"
//	recurring: true
//	notify: on-error
//	---
//	Review yesterday's commits and summarize anything risky.
package jobs

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/flemzord/tickclaw/internal/notify"
	"github.com/flemzord/tickclaw/internal/workspace"
	"gopkg.in/yaml.v3"
)

// ErrMissingSchedule is returned when a job file has no schedule key.
var ErrMissingSchedule = errors.New("jobs: missing required 'schedule' field")

// Job is a named, cron-scheduled prompt. Its identity is Name, the file's
// base name without extension.
type Job struct {
	Name      string
	Schedule  string
	Prompt    string
	Recurring bool
	Notify    notify.Policy
	Path      string
}

// Inert reports whether the job can never fire (its schedule was cleared).
func (j Job) Inert() bool {
	return strings.TrimSpace(j.Schedule) == ""
}

// meta holds the YAML frontmatter of a job file.
type meta struct {
	Schedule  *string       `yaml:"schedule"`
	Recurring *bool         `yaml:"recurring"`
	Notify    notify.Policy `yaml:"notify"`
}

// ParseJob parses the content of a job file.
// Recurring defaults to true; a one-shot job must say "recurring: false".
func ParseJob(name, content, path string) (Job, error) {
	front, body, err := workspace.SplitFrontmatter(content)
	if err != nil {
		return Job{}, fmt.Errorf("jobs: %s: %w", path, err)
	}

	var m meta
	if err := yaml.Unmarshal([]byte(quoteBareSchedule(front)), &m); err != nil {
		return Job{}, fmt.Errorf("jobs: invalid YAML in %s: %w", path, err)
	}
	if m.Schedule == nil {
		return Job{}, fmt.Errorf("%w in %s", ErrMissingSchedule, path)
	}

	job := Job{
		Name:      name,
		Schedule:  strings.TrimSpace(*m.Schedule),
		Prompt:    strings.TrimSpace(body),
		Recurring: true,
		Notify:    m.Notify,
		Path:      path,
	}
	if m.Recurring != nil {
		job.Recurring = *m.Recurring
	}
	if job.Notify == "" {
		job.Notify = notify.PolicyAlways
	}
	return job, nil
}

// quoteBareSchedule single-quotes an unquoted top-level schedule that starts
// with '*'. YAML reads a leading '*' as an alias, so "schedule: */15 * * * *"
// would otherwise fail to parse.
func quoteBareSchedule(front string) string {
	lines := strings.Split(front, "\n")
	for i, line := range lines {
		rest, ok := strings.CutPrefix(line, "schedule:")
		if !ok {
			continue
		}
		value := strings.TrimSpace(rest)
		if !strings.HasPrefix(value, "*") {
			continue
		}
		if idx := strings.Index(value, " #"); idx >= 0 {
			value = strings.TrimSpace(value[:idx])
		}
		lines[i] = "schedule: '" + strings.ReplaceAll(value, "'", "''") + "'"
	}
	return strings.Join(lines, "\n")
}

// Fingerprint summarizes a job list as sorted "name:schedule:prompt" entries
// joined by "|". Two loads with equal fingerprints describe the same jobs.
func Fingerprint(list []Job) string {
	entries := make([]string, len(list))
	for i, j := range list {
		entries[i] = j.Name + ":" + j.Schedule + ":" + j.Prompt
	}
	slices.Sort(entries)
	return strings.Join(entries, "|")
}
