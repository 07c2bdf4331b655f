package config

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/flemzord/tickclaw/internal/security"
	"github.com/flemzord/tickclaw/internal/tz"
)

// Validate checks s and returns every problem joined. Malformed exclusion
// windows are not errors here; Resolve drops them with a warning.
func Validate(s *Settings) error {
	var errs []error

	if s.Heartbeat.Interval < 0 {
		errs = append(errs, fmt.Errorf("config: heartbeat.interval must be positive, got %d", s.Heartbeat.Interval))
	}
	if s.Heartbeat.Enabled && s.Heartbeat.Prompt == "" {
		errs = append(errs, errors.New("config: heartbeat.enabled is true but heartbeat.prompt is empty"))
	}

	if _, err := tz.Resolve(s.Timezone, s.TimezoneOffsetMinutes, time.Now()); err != nil {
		errs = append(errs, fmt.Errorf("config: timezone: %w", err))
	}

	if _, err := security.ParseLevel(s.Security.Level); err != nil {
		errs = append(errs, fmt.Errorf("config: security.level: %w", err))
	}

	if s.Telegram.Enabled() && s.Telegram.ChatID == 0 {
		errs = append(errs, errors.New("config: telegram.token is set but telegram.chatId is missing"))
	}

	errs = append(errs, validateWeb(s.Web)...)

	if s.ShutdownGraceSeconds < 0 {
		errs = append(errs, fmt.Errorf("config: shutdownGraceSeconds must not be negative, got %d", s.ShutdownGraceSeconds))
	}

	return errors.Join(errs...)
}

func validateWeb(w WebSettings) []error {
	if !w.Enabled {
		return nil
	}
	host, _, err := net.SplitHostPort(w.Bind)
	if err != nil {
		return []error{fmt.Errorf("config: web.bind %q: %w", w.Bind, err)}
	}
	if w.Token == "" && !isLoopback(host) {
		return []error{fmt.Errorf("config: web.bind %q is not loopback and web.token is empty", w.Bind)}
	}
	return nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
