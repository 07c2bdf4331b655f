package runner

import (
	"fmt"
	"strings"

	"github.com/flemzord/tickclaw/internal/security"
	"github.com/flemzord/tickclaw/internal/workspace"
)

// scopeClause confines the agent to the project. %s is the project root.
const scopeClause = "Work only inside the project directory %s. " +
	"Do not read, create or modify files outside it, and do not follow paths that escape it."

// memoryHeader introduces the project's persistent memory file.
const memoryHeader = "# Project memory\nThe following notes persist across sessions. Keep them in mind:"

// buildSystemPrompt assembles identity text, the directory-scoping clause
// (omitted at the unrestricted level) and the project memory if present.
// Loader failures degrade to the missing fragment.
func buildSystemPrompt(identity, memory workspace.TextLoader, projectDir string, level security.Level) (string, []error) {
	var (
		parts []string
		errs  []error
	)

	if identity != nil {
		text, err := identity.Load()
		if err != nil {
			errs = append(errs, fmt.Errorf("identity: %w", err))
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
		}
	}

	if security.ScopesDirectory(level) && projectDir != "" {
		parts = append(parts, fmt.Sprintf(scopeClause, projectDir))
	}

	if memory != nil {
		text, err := memory.Load()
		if err != nil {
			errs = append(errs, fmt.Errorf("memory: %w", err))
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, memoryHeader+"\n\n"+text)
		}
	}

	return strings.Join(parts, "\n\n"), errs
}
