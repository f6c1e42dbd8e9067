// Package config defines the bot's YAML configuration and its loader.
package config

import "time"

// LogLevel is a slog level name.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a known level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration.
type Config struct {
	LogLevel  LogLevel        `yaml:"log_level"`
	Database  DatabaseConfig  `yaml:"database"`
	Discord   DiscordConfig   `yaml:"discord"`
	Nutrition NutritionConfig `yaml:"nutrition"`
	Speech    SpeechConfig    `yaml:"speech"`
	Days      DaysConfig      `yaml:"days"`
	Server    ServerConfig    `yaml:"server"`
}

type DatabaseConfig struct {
	// Path of the SQLite file. Default: "kbju.db".
	Path string `yaml:"path"`
}

type DiscordConfig struct {
	Token string `yaml:"token"`
	// GuildID scopes slash commands to one guild. Empty registers them globally.
	GuildID string `yaml:"guild_id"`
}

// NutritionConfig configures the OpenAI-compatible understanding service.
type NutritionConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
	// Fallback enables splitting the text into default-valued dishes when the
	// service fails.
	Fallback bool `yaml:"fallback"`
}

// SpeechConfig configures voice transcription. The API key and base URL
// default to the nutrition values.
type SpeechConfig struct {
	Enabled  bool   `yaml:"enabled"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
}

type DaysConfig struct {
	// DefaultTimezone applies to users without a valid zone.
	DefaultTimezone string `yaml:"default_timezone"`
}

type ServerConfig struct {
	// ListenAddr of the tool API and /metrics. Empty disables the server.
	ListenAddr string `yaml:"listen_addr"`
}
