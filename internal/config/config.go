package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "6h".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard-library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds all subsystem configuration. It is constructed once and
// passed by reference into constructors; there is no global instance.
type Config struct {
	Providers struct {
		Preferred    string `yaml:"preferred"`
		AlphaVantage struct {
			APIKey         string `yaml:"api_key"`
			CallsPerMinute int    `yaml:"calls_per_minute"`
		} `yaml:"alpha_vantage"`
	} `yaml:"providers"`
	Cache struct {
		Dir            string   `yaml:"dir"`
		MaxBytes       int64    `yaml:"max_bytes"`
		MarketDataTTL  Duration `yaml:"market_data_ttl"`
		CompanyInfoTTL Duration `yaml:"company_info_ttl"`
	} `yaml:"cache"`
	Manager struct {
		Period       string   `yaml:"period"`
		Workers      int      `yaml:"workers"`
		RecoveryWait Duration `yaml:"recovery_wait"`
	} `yaml:"manager"`
	Refresh struct {
		Symbols  []string `yaml:"symbols"`
		Interval Duration `yaml:"interval"`
	} `yaml:"refresh"`
	Streaming struct {
		Interval    Duration `yaml:"interval"`
		DataBuffer  int      `yaml:"data_buffer"`
		AlertBuffer int      `yaml:"alert_buffer"`
	} `yaml:"streaming"`
	Alerts []struct {
		Symbol    string  `yaml:"symbol"`
		Kind      string  `yaml:"kind"` // "above" or "below"
		Threshold float64 `yaml:"threshold"`
	} `yaml:"alerts"`
	Maintenance struct {
		SweepCron string `yaml:"sweep_cron"`
		StatsCron string `yaml:"stats_cron"`
	} `yaml:"maintenance"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file is not an error; defaults apply.
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

	// Environment variable overrides
	if v := os.Getenv("ALPHAVANTAGE_API_KEY"); v != "" {
		cfg.Providers.AlphaVantage.APIKey = v
	}
	if v := os.Getenv("PREFERRED_SOURCE"); v != "" {
		cfg.Providers.Preferred = v
	}
	if v := os.Getenv("CACHE_DIR"); v != "" {
		cfg.Cache.Dir = v
	}
	if v := os.Getenv("CACHE_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Cache.MaxBytes = n
		}
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}

	// Defaults
	if cfg.Providers.Preferred == "" {
		cfg.Providers.Preferred = "yahoo"
	}
	if cfg.Providers.AlphaVantage.CallsPerMinute == 0 {
		cfg.Providers.AlphaVantage.CallsPerMinute = 5
	}
	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = "data/cache"
	}
	if cfg.Cache.MaxBytes == 0 {
		cfg.Cache.MaxBytes = 50 << 20
	}
	if cfg.Cache.MarketDataTTL == 0 {
		cfg.Cache.MarketDataTTL = Duration(6 * time.Hour)
	}
	if cfg.Cache.CompanyInfoTTL == 0 {
		cfg.Cache.CompanyInfoTTL = Duration(7 * 24 * time.Hour)
	}
	if cfg.Manager.Period == "" {
		cfg.Manager.Period = "1mo"
	}
	if cfg.Manager.Workers == 0 {
		cfg.Manager.Workers = 4
	}
	if cfg.Manager.RecoveryWait == 0 {
		cfg.Manager.RecoveryWait = Duration(30 * time.Second)
	}
	if cfg.Refresh.Interval == 0 {
		cfg.Refresh.Interval = Duration(5 * time.Minute)
	}
	if cfg.Streaming.Interval == 0 {
		cfg.Streaming.Interval = Duration(30 * time.Second)
	}
	if cfg.Streaming.DataBuffer == 0 {
		cfg.Streaming.DataBuffer = 1000
	}
	if cfg.Streaming.AlertBuffer == 0 {
		cfg.Streaming.AlertBuffer = 200
	}
	if cfg.Maintenance.SweepCron == "" {
		cfg.Maintenance.SweepCron = "0 */15 * * * *"
	}
	if cfg.Maintenance.StatsCron == "" {
		cfg.Maintenance.StatsCron = "0 0 * * * *"
	}

	return cfg, nil
}

// Validate checks for nonsensical values and warns once about providers
// that configuration leaves unusable. An absent API key disables a provider;
// it is never a startup failure.
func (c *Config) Validate() error {
	if c.Cache.MaxBytes < 0 {
		return fmt.Errorf("cache.max_bytes must not be negative")
	}
	if c.Manager.Workers < 0 {
		return fmt.Errorf("manager.workers must not be negative")
	}
	if c.Providers.AlphaVantage.APIKey == "" {
		log.Println("[WARN] no Alpha Vantage API key configured, provider disabled (Yahoo remains available)")
	}
	if c.Providers.Preferred != "yahoo" && c.Providers.Preferred != "alphavantage" {
		return fmt.Errorf("providers.preferred must be yahoo or alphavantage, got %q", c.Providers.Preferred)
	}
	return nil
}
