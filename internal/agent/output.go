package agent

import (
	"bufio"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrMalformedOutput is returned when stdout contains no structured events.
var ErrMalformedOutput = errors.New("agent: malformed structured output")

// Output is the parsed form of a structured (stream-json) response.
type Output struct {
	Text      string
	SessionID string
	IsError   bool
}

// event is the subset of a stream-json line the daemon reads.
type event struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	SessionID string `json:"session_id"`
	Result    string `json:"result"`
	IsError   bool   `json:"is_error"`
	Message   *struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message"`
}

// ParseOutput reads newline-delimited JSON events. Every assistant text
// block is kept, so multi-segment replies are returned whole; the final
// "result" text is only used when no assistant text was seen. A single JSON
// document (plain "json" output mode) is accepted as well.
func ParseOutput(stdout string) (Output, error) {
	var (
		out      Output
		segments []string
		result   string
		parsed   int
	)

	scanner := bufio.NewScanner(strings.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] != '{' {
			continue
		}
		var ev event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		parsed++

		if ev.SessionID != "" {
			out.SessionID = ev.SessionID
		}
		switch ev.Type {
		case "assistant":
			if ev.Message == nil {
				continue
			}
			for _, block := range ev.Message.Content {
				if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
					segments = append(segments, strings.TrimSpace(block.Text))
				}
			}
		case "result":
			result = ev.Result
			out.IsError = ev.IsError || strings.HasPrefix(ev.Subtype, "error")
		}
	}
	if err := scanner.Err(); err != nil {
		return Output{}, errors.Join(ErrMalformedOutput, err)
	}
	if parsed == 0 {
		return Output{}, ErrMalformedOutput
	}

	if len(segments) > 0 {
		out.Text = strings.Join(segments, "\n\n")
	} else {
		out.Text = strings.TrimSpace(result)
	}
	return out, nil
}

// rateLimitPattern matches the phrases the agent CLI prints when the
// account's usage limit is exhausted.
var rateLimitPattern = regexp.MustCompile(`(?i)(you(?:'ve|’ve|\s+have)\s+(?:hit|reached)\s+your\s+(?:usage\s+)?limit|usage\s+limit\s+reached)`)

// IsRateLimited reports whether any of texts carries the rate-limit signature.
func IsRateLimited(texts ...string) bool {
	for _, t := range texts {
		if rateLimitPattern.MatchString(t) {
			return true
		}
	}
	return false
}
