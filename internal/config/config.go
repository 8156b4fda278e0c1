package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	APIBaseURL         string        `mapstructure:"API_BASE_URL"`
	AuthToken          string        `mapstructure:"AUTH_TOKEN"`
	UserID             string        `mapstructure:"USER_ID"`
	GuardFailOpen      bool          `mapstructure:"GUARD_FAIL_OPEN"`
	NotifyPollInterval time.Duration `mapstructure:"NOTIFY_POLL_INTERVAL"`
	ChatWSURL          string        `mapstructure:"CHAT_WS_URL"`
	LogLevel           string        `mapstructure:"LOG_LEVEL"`
	HTTPTimeout        time.Duration `mapstructure:"HTTP_TIMEOUT"`
	SandboxPort        string        `mapstructure:"SANDBOX_PORT"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("GUARD_FAIL_OPEN", true)
	v.SetDefault("NOTIFY_POLL_INTERVAL", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_TIMEOUT", "30s")
	v.SetDefault("SANDBOX_PORT", "8080")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("API_BASE_URL")
	v.BindEnv("AUTH_TOKEN")
	v.BindEnv("USER_ID")
	v.BindEnv("GUARD_FAIL_OPEN")
	v.BindEnv("NOTIFY_POLL_INTERVAL")
	v.BindEnv("CHAT_WS_URL")
	v.BindEnv("LOG_LEVEL")
	v.BindEnv("HTTP_TIMEOUT")
	v.BindEnv("SANDBOX_PORT")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is usable. API_BASE_URL must be an
// absolute http(s) URL and the intervals must be positive.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	u, err := url.Parse(c.APIBaseURL)
	if err != nil {
		return fmt.Errorf("API_BASE_URL is not a valid URL: %w", err)
	}
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("API_BASE_URL must be an absolute http(s) URL, got %q", c.APIBaseURL)
	}
	if c.NotifyPollInterval <= 0 {
		return fmt.Errorf("NOTIFY_POLL_INTERVAL must be positive, got %s", c.NotifyPollInterval)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %s", c.HTTPTimeout)
	}
	return nil
}

// ResolvedChatURL returns the websocket endpoint for chat. When CHAT_WS_URL is
// not set it is derived from API_BASE_URL by swapping the scheme to ws(s) and
// appending /ws.
func (c *Config) ResolvedChatURL() string {
	if c.ChatWSURL != "" {
		return c.ChatWSURL
	}
	ws := c.APIBaseURL
	switch {
	case strings.HasPrefix(ws, "https://"):
		ws = "wss://" + strings.TrimPrefix(ws, "https://")
	case strings.HasPrefix(ws, "http://"):
		ws = "ws://" + strings.TrimPrefix(ws, "http://")
	}
	return strings.TrimRight(ws, "/") + "/ws"
}
