package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoFrontmatter is returned when a document lacks a "---" delimited header.
var ErrNoFrontmatter = errors.New("workspace: missing YAML frontmatter")

const frontmatterDelimiter = "---"

// SplitFrontmatter splits content into YAML frontmatter and body.
// The content must begin with "---\n" and have a closing "---" line.
func SplitFrontmatter(content string) (front, body string, err error) {
	content = strings.TrimLeft(strings.ReplaceAll(content, "\r\n", "\n"), " \t\n")
	if !strings.HasPrefix(content, frontmatterDelimiter) {
		return "", "", ErrNoFrontmatter
	}

	rest := content[len(frontmatterDelimiter):]
	if len(rest) == 0 || rest[0] != '\n' {
		return "", "", ErrNoFrontmatter
	}
	rest = rest[1:]

	// An empty header closes immediately.
	if strings.HasPrefix(rest, frontmatterDelimiter) {
		return "", strings.TrimPrefix(rest, frontmatterDelimiter), nil
	}

	idx := strings.Index(rest, "\n"+frontmatterDelimiter)
	if idx < 0 {
		return "", "", ErrNoFrontmatter
	}

	front = rest[:idx]
	body = rest[idx+1+len(frontmatterDelimiter):]
	return front, body, nil
}

// JoinFrontmatter renders a document from a header and a body.
func JoinFrontmatter(front, body string) string {
	var b strings.Builder
	b.WriteString(frontmatterDelimiter)
	b.WriteByte('\n')
	b.WriteString(strings.TrimRight(front, "\n"))
	b.WriteByte('\n')
	b.WriteString(frontmatterDelimiter)
	b.WriteByte('\n')
	b.WriteString(strings.TrimLeft(body, "\n"))
	return b.String()
}

// promptFileExts lists extensions that make a one-line prompt a file reference.
var promptFileExts = []string{".md", ".txt", ".prompt"}

// ResolvePrompt returns the prompt text. A prompt consisting of a single
// relative path to an existing file inside root, with a known extension,
// is replaced by that file's trimmed content.
func ResolvePrompt(root, prompt string) string {
	ref := strings.TrimSpace(prompt)
	if ref == "" || strings.ContainsAny(ref, "\n ") || filepath.IsAbs(ref) {
		return prompt
	}

	known := false
	for _, ext := range promptFileExts {
		if strings.EqualFold(filepath.Ext(ref), ext) {
			known = true
			break
		}
	}
	if !known {
		return prompt
	}

	path := filepath.Join(root, filepath.Clean(ref))
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return prompt
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return prompt
	}
	if text := strings.TrimSpace(string(data)); text != "" {
		return text
	}
	return prompt
}
