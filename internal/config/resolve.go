package config

import (
	"log/slog"
	"time"

	"github.com/flemzord/tickclaw/internal/heartbeat"
	"github.com/flemzord/tickclaw/internal/security"
	"github.com/flemzord/tickclaw/internal/tz"
)

// Runtime holds the values the scheduler derives from Settings.
type Runtime struct {
	OffsetMinutes int
	Windows       []heartbeat.Window
	Interval      time.Duration
	Level         security.Level
	ShutdownGrace time.Duration
}

// Resolve derives runtime values from s at now. It never fails: an invalid
// timezone falls back to UTC, an invalid level to the default and malformed
// windows are dropped, each with a warning.
func (s *Settings) Resolve(now time.Time, logger *slog.Logger) Runtime {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	offset, err := tz.Resolve(s.Timezone, s.TimezoneOffsetMinutes, now)
	if err != nil {
		logger.Warn("timezone invalid, using UTC", "timezone", s.Timezone, "error", err)
	}

	level, err := security.ParseLevel(s.Security.Level)
	if err != nil {
		logger.Warn("security level invalid, using default", "level", s.Security.Level, "default", security.DefaultLevel)
		level = security.DefaultLevel
	}

	return Runtime{
		OffsetMinutes: offset,
		Windows:       heartbeat.ParseWindows(s.Heartbeat.ExcludeWindows, logger),
		Interval:      heartbeat.ClampInterval(time.Duration(s.Heartbeat.Interval) * time.Minute),
		Level:         level,
		ShutdownGrace: time.Duration(s.ShutdownGraceSeconds) * time.Second,
	}
}
