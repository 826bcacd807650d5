package config

import (
	"fmt"
	"time"

	"github.com/rewired-gh/sessionwatch/internal/session"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Binance  BinanceConfig  `mapstructure:"binance"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Sessions SessionsConfig `mapstructure:"sessions"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// BinanceConfig holds Binance futures API configuration
type BinanceConfig struct {
	APIURL         string        `mapstructure:"api_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// MonitorConfig holds monitoring behavior configuration
type MonitorConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	UniverseSize int           `mapstructure:"universe_size"`
	KlineLimit   int           `mapstructure:"kline_limit"`
	Concurrency  int           `mapstructure:"concurrency"`
}

// WindowConfig is one session window in fractional hours (9.5 = 09:30)
type WindowConfig struct {
	Start float64 `mapstructure:"start"`
	End   float64 `mapstructure:"end"`
}

// SessionsConfig holds the reference timezone and the three session windows
type SessionsConfig struct {
	UTCOffsetHours int          `mapstructure:"utc_offset_hours"`
	Asia           WindowConfig `mapstructure:"asia"`
	London         WindowConfig `mapstructure:"london"`
	NewYork        WindowConfig `mapstructure:"new_york"`
}

// Windows converts the configured windows into the session package's form.
func (s SessionsConfig) Windows() map[session.Session]session.Window {
	return map[session.Session]session.Window{
		session.Asia:    {Start: s.Asia.Start, End: s.Asia.End},
		session.London:  {Start: s.London.Start, End: s.London.End},
		session.NewYork: {Start: s.NewYork.Start, End: s.NewYork.End},
	}
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds the audit database configuration
type StorageConfig struct {
	DBPath    string `mapstructure:"db_path"`
	MaxAlerts int    `mapstructure:"max_alerts"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	setDefaults(v)

	v.SetEnvPrefix("SESSIONWATCH")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Binance defaults
	v.SetDefault("binance.api_url", "https://fapi.binance.com")
	v.SetDefault("binance.timeout", "10s")
	v.SetDefault("binance.max_retries", 3)
	v.SetDefault("binance.retry_delay_base", "1s")

	// Monitor defaults
	v.SetDefault("monitor.poll_interval", "1m")
	v.SetDefault("monitor.universe_size", 500)
	v.SetDefault("monitor.kline_limit", 96) // 24h of 15m bars
	v.SetDefault("monitor.concurrency", 8)

	// Session windows in UTC-4 civil time
	v.SetDefault("sessions.utc_offset_hours", -4)
	v.SetDefault("sessions.asia.start", 19.0)
	v.SetDefault("sessions.asia.end", 4.0)
	v.SetDefault("sessions.london.start", 3.0)
	v.SetDefault("sessions.london.end", 12.0)
	v.SetDefault("sessions.new_york.start", 9.5)
	v.SetDefault("sessions.new_york.end", 16.0)

	// Telegram defaults
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Storage defaults
	v.SetDefault("storage.db_path", "")
	v.SetDefault("storage.max_alerts", 1000)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.Binance.APIURL == "" {
		return fmt.Errorf("binance.api_url is required")
	}
	if c.Binance.Timeout < time.Second {
		return fmt.Errorf("binance.timeout must be at least 1 second")
	}
	if c.Binance.MaxRetries < 1 {
		return fmt.Errorf("binance.max_retries must be at least 1")
	}

	if c.Monitor.PollInterval < 10*time.Second {
		return fmt.Errorf("monitor.poll_interval must be at least 10 seconds")
	}
	if c.Monitor.UniverseSize < 1 || c.Monitor.UniverseSize > 1000 {
		return fmt.Errorf("monitor.universe_size must be between 1 and 1000")
	}
	if c.Monitor.KlineLimit < 1 || c.Monitor.KlineLimit > 1500 {
		return fmt.Errorf("monitor.kline_limit must be between 1 and 1500")
	}
	if c.Monitor.Concurrency < 1 {
		return fmt.Errorf("monitor.concurrency must be at least 1")
	}

	// NewClock re-validates the windows; this catches config mistakes with
	// a message pointing at the config key.
	if _, err := session.NewClock(c.Sessions.UTCOffsetHours, c.Sessions.Windows()); err != nil {
		return fmt.Errorf("sessions: %w", err)
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	if c.Storage.MaxAlerts < 1 {
		return fmt.Errorf("storage.max_alerts must be at least 1")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
