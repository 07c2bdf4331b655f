package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/flemzord/tickclaw/internal/agent"
)

const (
	telegramMaxRetries       = 3
	telegramInitialBackoff   = time.Second
	telegramMaxResponseBytes = 1 << 20
	// telegramMaxMessageUnits is the Bot API limit for sendMessage text,
	// counted in UTF-16 code units.
	telegramMaxMessageUnits = 4096

	// DefaultTelegramBaseURL is the public Bot API endpoint.
	DefaultTelegramBaseURL = "https://api.telegram.org"
)

// TelegramConfig configures the Telegram notifier.
type TelegramConfig struct {
	Token   string
	ChatID  int64
	BaseURL string
	Client  *http.Client
}

// Telegram forwards results with the Bot API sendMessage method.
type Telegram struct {
	token   string
	chatID  int64
	baseURL string
	http    *http.Client
}

// NewTelegram creates a Telegram notifier.
func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if cfg.Token == "" {
		return nil, errors.New("notify: telegram token is required")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("notify: telegram chat id is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultTelegramBaseURL
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Telegram{
		token:   cfg.Token,
		chatID:  cfg.ChatID,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    cfg.Client,
	}, nil
}

// Forward implements Notifier. Long texts are split into several messages.
func (t *Telegram) Forward(ctx context.Context, label string, result agent.Result) error {
	for _, chunk := range splitMessage(Format(label, result), telegramMaxMessageUnits) {
		if err := t.sendMessage(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

type sendMessageRequest struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after,omitempty"`
	} `json:"parameters,omitempty"`
}

// APIError is a non-OK Bot API response.
type APIError struct {
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: %d %s", e.Code, e.Description)
}

// sendMessage posts one message, retrying on 429 with Retry-After.
func (t *Telegram) sendMessage(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	payload, err := json.Marshal(sendMessageRequest{ChatID: t.chatID, Text: text, DisableWebPagePreview: true})
	if err != nil {
		return fmt.Errorf("telegram: marshal sendMessage request: %w", err)
	}

	backoff := telegramInitialBackoff
	for attempt := range telegramMaxRetries {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("telegram: create sendMessage request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := t.http.Do(req)
		if err != nil {
			// The URL embeds the token; keep it out of the message.
			return fmt.Errorf("telegram: sendMessage request failed: %w", errors.Unwrap(err))
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, telegramMaxResponseBytes))
		_ = resp.Body.Close()
		if err != nil {
			return fmt.Errorf("telegram: read sendMessage response: %w", err)
		}

		var apiResp apiResponse
		decodeErr := json.Unmarshal(body, &apiResp)

		if resp.StatusCode == http.StatusTooManyRequests && attempt < telegramMaxRetries-1 {
			if decodeErr == nil && apiResp.Parameters != nil && apiResp.Parameters.RetryAfter > 0 {
				backoff = time.Duration(apiResp.Parameters.RetryAfter) * time.Second
			}
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			backoff *= 2
			continue
		}

		if decodeErr != nil {
			return fmt.Errorf("telegram: decode sendMessage response: %w", decodeErr)
		}
		if !apiResp.OK {
			return &APIError{Code: apiResp.ErrorCode, Description: apiResp.Description}
		}
		return nil
	}
	return errors.New("telegram: sendMessage: max retries exceeded")
}

// splitMessage cuts text into chunks of at most limit UTF-16 code units,
// the unit the Bot API counts in, preferring line boundaries.
func splitMessage(text string, limit int) []string {
	if utf16Len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	runes := []rune(text)
	for len(runes) > 0 {
		fit, units := 0, 0
		for fit < len(runes) {
			n := utf16.RuneLen(runes[fit])
			if n < 0 {
				n = 1
			}
			if units+n > limit {
				break
			}
			units += n
			fit++
		}
		if fit == len(runes) {
			chunks = append(chunks, string(runes))
			break
		}
		if fit == 0 {
			fit = 1
		}

		cut := fit
		for i := fit; i > fit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, strings.TrimRight(string(runes[:cut]), "\n"))
		runes = runes[cut:]
	}
	return chunks
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}
