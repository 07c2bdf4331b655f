// Package config handles loading, environment variable expansion and
// validation of the daemon's settings document.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/flemzord/tickclaw/internal/heartbeat"
	"github.com/flemzord/tickclaw/internal/notify"
	"gopkg.in/yaml.v3"
)

// Defaults applied by withDefaults.
const (
	DefaultHeartbeatInterval    = 15 // minutes
	DefaultWebBind              = "127.0.0.1:4632"
	DefaultShutdownGraceSeconds = 10
	DefaultAgentBinary          = "claude"
)

// Settings is the top-level settings document. JSON is accepted since it is
// a subset of YAML.
type Settings struct {
	Heartbeat HeartbeatSettings `yaml:"heartbeat"`

	// Model and API select the primary agent configuration.
	Model string `yaml:"model"`
	API   string `yaml:"api"`

	// Fallback answers when the primary is rate limited.
	Fallback ModelSettings `yaml:"fallback"`

	// Timezone is a zone name ("Europe/Paris") or offset ("UTC+2").
	Timezone string `yaml:"timezone"`
	// TimezoneOffsetMinutes wins over Timezone when set.
	TimezoneOffsetMinutes *int `yaml:"timezoneOffsetMinutes"`

	Security SecuritySettings `yaml:"security"`
	Telegram TelegramSettings `yaml:"telegram"`
	Web      WebSettings      `yaml:"web"`
	Agent    AgentSettings    `yaml:"agent"`

	ShutdownGraceSeconds int `yaml:"shutdownGraceSeconds"`
}

// HeartbeatSettings configures the recurring heartbeat prompt.
type HeartbeatSettings struct {
	Enabled bool `yaml:"enabled"`
	// Interval is in minutes.
	Interval       int                    `yaml:"interval"`
	Prompt         string                 `yaml:"prompt"`
	ExcludeWindows []heartbeat.WindowSpec `yaml:"excludeWindows"`
	Notify         notify.Policy          `yaml:"notify"`
}

// ModelSettings is one agent model and its API token.
type ModelSettings struct {
	Model string `yaml:"model"`
	API   string `yaml:"api"`
}

// IsZero reports whether neither field is set.
func (m ModelSettings) IsZero() bool {
	return m.Model == "" && m.API == ""
}

// SecuritySettings bounds agent permissions.
type SecuritySettings struct {
	Level           string   `yaml:"level"`
	AllowedTools    []string `yaml:"allowedTools"`
	DisallowedTools []string `yaml:"disallowedTools"`
}

// TelegramSettings enables result forwarding through a Telegram bot.
type TelegramSettings struct {
	Token   string `yaml:"token"`
	ChatID  ChatID `yaml:"chatId"`
	BaseURL string `yaml:"baseUrl"`
}

// Enabled reports whether a bot token is configured.
func (t TelegramSettings) Enabled() bool { return t.Token != "" }

// ChatID is a Telegram chat id. It accepts a number or a numeric string so
// that "${TELEGRAM_CHAT_ID}" works once expanded inside quotes.
type ChatID int64

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *ChatID) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("config: chatId must be a scalar (line %d)", node.Line)
	}
	v := strings.TrimSpace(node.Value)
	if v == "" {
		*c = 0
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("config: chatId %q is not an integer (line %d)", node.Value, node.Line)
	}
	*c = ChatID(n)
	return nil
}

// WebSettings configures the optional status gateway.
type WebSettings struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
	Token   string `yaml:"token"`
}

// AgentSettings locates the external agent binary.
type AgentSettings struct {
	Binary string `yaml:"binary"`
}

// Primary returns the primary model configuration.
func (s *Settings) Primary() ModelSettings {
	return ModelSettings{Model: s.Model, API: s.API}
}

// FallbackModel returns the fallback configuration and whether it may be used:
// it must be set and differ from the primary.
func (s *Settings) FallbackModel() (ModelSettings, bool) {
	fb := s.Fallback
	if fb.IsZero() || fb == s.Primary() {
		return ModelSettings{}, false
	}
	return fb, true
}

// Secrets lists every secret value in s, for log redaction and child
// environment filtering.
func (s *Settings) Secrets() []string {
	var out []string
	for _, v := range []string{s.API, s.Fallback.API, s.Telegram.Token, s.Web.Token} {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Default returns settings with every default applied and the heartbeat
// disabled.
func Default() *Settings {
	s := &Settings{}
	s.withDefaults()
	return s
}

func (s *Settings) withDefaults() {
	if s.Heartbeat.Interval == 0 {
		s.Heartbeat.Interval = DefaultHeartbeatInterval
	}
	if s.Heartbeat.Notify == "" {
		s.Heartbeat.Notify = notify.PolicyAlways
	}
	if s.Web.Bind == "" {
		s.Web.Bind = DefaultWebBind
	}
	if s.Agent.Binary == "" {
		s.Agent.Binary = DefaultAgentBinary
	}
	if s.ShutdownGraceSeconds == 0 {
		s.ShutdownGraceSeconds = DefaultShutdownGraceSeconds
	}
}
