package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"SeriesKeeper/internal/reconcile"
	"SeriesKeeper/internal/syncer"
)

// Sync modes.
const (
	ModeRewrite = syncer.ModeRewrite
	ModeAppend  = syncer.ModeAppend
)

// MaxWindowDays is the largest trailing window the daily endpoint serves
// without reducing resolution.
const MaxWindowDays = 90

// Config holds all application configuration.
type Config struct {
	Source struct {
		BaseURL      string        `yaml:"base_url"`
		APIKey       string        `yaml:"api_key"`
		APIKeyHeader string        `yaml:"api_key_header"`
		CoinID       string        `yaml:"coin_id"`
		VsCurrency   string        `yaml:"vs_currency"`
		Timeout      time.Duration `yaml:"timeout"`
	} `yaml:"source"`
	Sync struct {
		Days         int    `yaml:"days"`
		Policy       string `yaml:"policy"`
		Mode         string `yaml:"mode"`
		UpdateLatest *bool  `yaml:"update_latest"`
	} `yaml:"sync"`
	Store struct {
		CSVPath string `yaml:"csv_path"`
	} `yaml:"store"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Schedule struct {
		SyncCron   string `yaml:"sync_cron"`
		LatestCron string `yaml:"latest_cron"`
	} `yaml:"schedule"`
	Proxy string `yaml:"proxy"`
}

// LoadDotEnv loads variables from a .env file into the process environment
// without overriding variables that are already set. A missing file is fine.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("COINGECKO_BASE_URL"); v != "" {
		c.Source.BaseURL = v
	}
	if v := os.Getenv("COINGECKO_API_KEY"); v != "" {
		c.Source.APIKey = v
	}
	if v := os.Getenv("COINGECKO_API_KEY_HEADER"); v != "" {
		c.Source.APIKeyHeader = v
	}
	if v := os.Getenv("COIN_ID"); v != "" {
		c.Source.CoinID = v
	}
	if v := os.Getenv("VS_CURRENCY"); v != "" {
		c.Source.VsCurrency = v
	}
	if v := os.Getenv("SOURCE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SOURCE_TIMEOUT: %w", err)
		}
		c.Source.Timeout = d
	}
	if v := os.Getenv("SYNC_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SYNC_DAYS: %w", err)
		}
		c.Sync.Days = n
	}
	if v := os.Getenv("SYNC_POLICY"); v != "" {
		c.Sync.Policy = v
	}
	if v := os.Getenv("SYNC_MODE"); v != "" {
		c.Sync.Mode = v
	}
	if v := os.Getenv("SYNC_UPDATE_LATEST"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SYNC_UPDATE_LATEST: %w", err)
		}
		c.Sync.UpdateLatest = &b
	}
	if v := os.Getenv("CSV_PATH"); v != "" {
		c.Store.CSVPath = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv("CRON_SYNC"); v != "" {
		c.Schedule.SyncCron = v
	}
	if v := os.Getenv("CRON_LATEST"); v != "" {
		c.Schedule.LatestCron = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		c.Proxy = v
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Source.BaseURL == "" {
		c.Source.BaseURL = "https://api.coingecko.com/api/v3"
	}
	if c.Source.APIKeyHeader == "" {
		c.Source.APIKeyHeader = "x-cg-demo-api-key"
	}
	if c.Source.CoinID == "" {
		c.Source.CoinID = "bitcoin"
	}
	if c.Source.VsCurrency == "" {
		c.Source.VsCurrency = "usd"
	}
	if c.Source.Timeout == 0 {
		c.Source.Timeout = 30 * time.Second
	}
	if c.Sync.Days == 0 {
		c.Sync.Days = 7
	}
	if c.Sync.Policy == "" {
		c.Sync.Policy = string(reconcile.PolicySet)
	}
	if c.Sync.Mode == "" {
		c.Sync.Mode = ModeRewrite
	}
	if c.Sync.UpdateLatest == nil {
		t := true
		c.Sync.UpdateLatest = &t
	}
	if c.Store.CSVPath == "" {
		c.Store.CSVPath = "btc-usd-max.csv"
	}
	if c.Schedule.SyncCron == "" {
		c.Schedule.SyncCron = "0 5 0 * * *"
	}
	if c.Schedule.LatestCron == "" {
		c.Schedule.LatestCron = "0 0 * * * *"
	}
}

// LatestEnabled reports whether the latest-price update runs after a sync.
func (c *Config) LatestEnabled() bool {
	return c.Sync.UpdateLatest != nil && *c.Sync.UpdateLatest
}

// TelegramEnabled reports whether operator notifications are configured.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

// Validate checks that all required fields are set and consistent.
func (c *Config) Validate() error {
	if c.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url is required")
	}
	if c.Source.CoinID == "" {
		return fmt.Errorf("source.coin_id is required")
	}
	if c.Source.Timeout < 0 {
		return fmt.Errorf("source.timeout must not be negative")
	}
	if c.Sync.Days < 1 || c.Sync.Days > MaxWindowDays {
		return fmt.Errorf("sync.days must be between 1 and %d, got %d", MaxWindowDays, c.Sync.Days)
	}
	if _, err := reconcile.ParsePolicy(c.Sync.Policy); err != nil {
		return fmt.Errorf("sync.policy: %w", err)
	}
	if c.Sync.Mode != ModeRewrite && c.Sync.Mode != ModeAppend {
		return fmt.Errorf("sync.mode must be %q or %q, got %q", ModeRewrite, ModeAppend, c.Sync.Mode)
	}
	if c.Store.CSVPath == "" {
		return fmt.Errorf("store.csv_path is required")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.Schedule.SyncCron); err != nil {
		return fmt.Errorf("schedule.sync_cron: %w", err)
	}
	if _, err := parser.Parse(c.Schedule.LatestCron); err != nil {
		return fmt.Errorf("schedule.latest_cron: %w", err)
	}
	return nil
}
