// Package config loads the service configuration from a YAML file and/or
// environment variables. Unset fields take the `default:` tag values and the
// result is checked against the `validate:` tags.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"trading-signalcore/internal/model"
	"trading-signalcore/internal/portfolio"
	redisstore "trading-signalcore/internal/store/redis"
)

// Config holds all application configuration.
type Config struct {
	Log      LogConfig            `yaml:"log"`
	SQLite   SQLiteConfig         `yaml:"sqlite"`
	Redis    RedisConfig          `yaml:"redis"`
	Metrics  MetricsConfig        `yaml:"metrics"`
	Risk     portfolio.RiskLimits `yaml:"risk"`
	Scanner  ScannerConfig        `yaml:"scanner"`
	Backtest BacktestConfig       `yaml:"backtest"`
	Alerts   AlertsConfig         `yaml:"alerts"`
}

type LogConfig struct {
	Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	File       string `yaml:"file"` // empty = stdout only
	MaxSizeMB  int    `yaml:"max_size_mb" default:"50" validate:"gte=1"`
	MaxBackups int    `yaml:"max_backups" default:"10" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" default:"30" validate:"gte=0"`
	Compress   bool   `yaml:"compress"`
}

type SQLiteConfig struct {
	Path string `yaml:"path" default:"data/signalcore.db" validate:"required"`
}

// RedisConfig enables the shared risk state store. When disabled, risk
// state lives in SQLite.
type RedisConfig struct {
	Enabled bool              `yaml:"enabled"`
	Store   redisstore.Config `yaml:",inline"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr" default:":9090" validate:"required"`
}

// ScannerConfig drives the periodic signal scan.
type ScannerConfig struct {
	Symbols   []string      `yaml:"symbols" default:"[\"SPY\",\"QQQ\"]" validate:"min=1,dive,required"`
	Timeframe string        `yaml:"timeframe" default:"5min" validate:"oneof=1min 5min 15min"`
	Interval  time.Duration `yaml:"interval" default:"1m" validate:"gte=1s"`
	Workers   int           `yaml:"workers" default:"4" validate:"gte=1,lte=64"`
	History   time.Duration `yaml:"history" default:"72h" validate:"gt=0"`
	UserID    string        `yaml:"user_id" default:"default" validate:"required"`
	// AllHours scans outside regular market hours too.
	AllHours bool `yaml:"all_hours"`
}

// BacktestConfig holds the defaults for cmd/backtest flags.
type BacktestConfig struct {
	Timeframe string `yaml:"timeframe" default:"1min" validate:"oneof=1min 5min 15min"`
	Lookback  int    `yaml:"lookback" default:"50" validate:"gte=20,lte=1000"`
	Steps     int    `yaml:"steps" default:"1" validate:"gte=1,lte=100"`
}

// AlertsConfig selects the scanner's alert channels. Alerts are always
// logged; webhook and Telegram are added when configured.
type AlertsConfig struct {
	WebhookURL     string `yaml:"webhook_url" validate:"omitempty,url"`
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID string `yaml:"telegram_chat_id" validate:"required_with=TelegramToken"`
}

var validate = validator.New()

// Load builds the configuration from defaults and environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// LoadFile reads a YAML file over the defaults, then applies environment
// overrides.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config read %s: %w", path, err)
	}

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config parse %s: %w", path, err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	log.Printf("[config] loaded %s", path)
	return cfg, cfg.Validate()
}

// Validate checks every section against its tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config: %s failed %s %s", fe.Namespace(), fe.Tag(), fe.Param())
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ScannerTimeframe returns the scanner timeframe as a model.Timeframe.
func (c *Config) ScannerTimeframe() model.Timeframe {
	return model.Timeframe(c.Scanner.Timeframe)
}

func (c *Config) applyEnv() error {
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.File = getEnv("LOG_FILE", c.Log.File)
	c.SQLite.Path = getEnv("SQLITE_PATH", c.SQLite.Path)
	c.Redis.Store.Addr = getEnv("REDIS_ADDR", c.Redis.Store.Addr)
	c.Redis.Store.Password = getEnv("REDIS_PASSWORD", c.Redis.Store.Password)
	c.Metrics.Addr = getEnv("METRICS_ADDR", c.Metrics.Addr)
	c.Scanner.Timeframe = getEnv("SCANNER_TIMEFRAME", c.Scanner.Timeframe)
	c.Scanner.UserID = getEnv("RISK_USER", c.Scanner.UserID)
	c.Alerts.WebhookURL = getEnv("ALERT_WEBHOOK_URL", c.Alerts.WebhookURL)
	c.Alerts.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", c.Alerts.TelegramToken)
	c.Alerts.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", c.Alerts.TelegramChatID)

	if v := os.Getenv("SCANNER_SYMBOLS"); v != "" {
		c.Scanner.Symbols = ParseList(v)
	}
	if v := os.Getenv("REDIS_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: REDIS_ENABLED=%q: %w", v, err)
		}
		c.Redis.Enabled = b
	}
	if v := os.Getenv("SCANNER_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: SCANNER_INTERVAL=%q: %w", v, err)
		}
		c.Scanner.Interval = d
	}
	return nil
}

// ParseList splits a comma-separated list, trimming blanks and
// upper-casing symbols.
func ParseList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
