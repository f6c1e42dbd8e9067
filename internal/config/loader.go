package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Environment variables that override secrets from the file.
const (
	EnvDiscordToken = "KBJU_DISCORD_TOKEN"
	EnvOpenAIKey    = "OPENAI_API_KEY"
)

// Load reads the YAML file at path, applies defaults and environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// environment overrides, and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyEnv(cfg, os.Getenv)
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv(EnvDiscordToken); v != "" {
		cfg.Discord.Token = v
	}
	if v := getenv(EnvOpenAIKey); v != "" {
		cfg.Nutrition.APIKey = v
	}
}

// ApplyDefaults fills unset fields.
func ApplyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = LogInfo
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "kbju.db"
	}
	if cfg.Nutrition.Model == "" {
		cfg.Nutrition.Model = "gpt-4o-mini"
	}
	if cfg.Nutrition.Timeout == 0 {
		cfg.Nutrition.Timeout = 60 * time.Second
	}
	if cfg.Speech.APIKey == "" {
		cfg.Speech.APIKey = cfg.Nutrition.APIKey
	}
	if cfg.Speech.BaseURL == "" {
		cfg.Speech.BaseURL = cfg.Nutrition.BaseURL
	}
	if cfg.Speech.Model == "" {
		cfg.Speech.Model = "whisper-1"
	}
	if cfg.Speech.Language == "" {
		cfg.Speech.Language = "ru"
	}
	if cfg.Days.DefaultTimezone == "" {
		cfg.Days.DefaultTimezone = "Europe/Moscow"
	}
}

// Validate returns every problem in cfg joined into one error.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.Discord.Token == "" {
		errs = append(errs, fmt.Errorf("discord.token is required (or set %s)", EnvDiscordToken))
	}
	if cfg.Nutrition.APIKey == "" {
		errs = append(errs, fmt.Errorf("nutrition.api_key is required (or set %s)", EnvOpenAIKey))
	}
	if cfg.Nutrition.Timeout < 0 {
		errs = append(errs, fmt.Errorf("nutrition.timeout %s must not be negative", cfg.Nutrition.Timeout))
	}
	if _, err := time.LoadLocation(cfg.Days.DefaultTimezone); err != nil {
		errs = append(errs, fmt.Errorf("days.default_timezone %q: %w", cfg.Days.DefaultTimezone, err))
	}

	return errors.Join(errs...)
}
