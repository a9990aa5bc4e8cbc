// Package config loads harvester settings from file, environment, and
// defaults via viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// CrawlConfig controls pacing and retry behavior of the fetch layer.
type CrawlConfig struct {
	UserAgent        string `mapstructure:"user_agent"`
	DelayMS          int    `mapstructure:"delay_ms"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxRetries       int    `mapstructure:"max_retries"`
	RetryBaseSeconds int    `mapstructure:"retry_base_seconds"`
}

// RenderConfig controls the optional headless browser.
type RenderConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	TimeoutSeconds int  `mapstructure:"timeout_seconds"`
	SettleSeconds  int  `mapstructure:"settle_seconds"`
}

// CheckpointConfig controls snapshot persistence.
type CheckpointConfig struct {
	Dir string `mapstructure:"dir"`
	// Interval is the number of detailed entities between periodic snapshots.
	Interval int `mapstructure:"interval"`
}

// ExportConfig controls the spreadsheet sink.
type ExportConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Config is the root configuration tree.
type Config struct {
	Crawl      CrawlConfig      `mapstructure:"crawl"`
	Render     RenderConfig     `mapstructure:"render"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Export     ExportConfig     `mapstructure:"export"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawl.user_agent", "Mozilla/5.0 (compatible; buildsheet-harvester/1.0)")
	v.SetDefault("crawl.delay_ms", 1500)
	v.SetDefault("crawl.timeout_seconds", 30)
	v.SetDefault("crawl.max_retries", 3)
	v.SetDefault("crawl.retry_base_seconds", 5)
	v.SetDefault("render.enabled", false)
	v.SetDefault("render.timeout_seconds", 60)
	v.SetDefault("render.settle_seconds", 3)
	v.SetDefault("checkpoint.dir", ".")
	v.SetDefault("checkpoint.interval", 10)
	v.SetDefault("export.dir", ".")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawl.DelayMS < 0 {
		return fmt.Errorf("crawl.delay_ms must be >= 0")
	}
	if c.Crawl.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawl.timeout_seconds must be > 0")
	}
	if c.Crawl.MaxRetries <= 0 {
		return fmt.Errorf("crawl.max_retries must be > 0")
	}
	if c.Checkpoint.Interval <= 0 {
		return fmt.Errorf("checkpoint.interval must be > 0")
	}
	if c.Render.Enabled && c.Render.TimeoutSeconds <= 0 {
		return fmt.Errorf("render.timeout_seconds must be > 0 when rendering is enabled")
	}
	return nil
}

// Delay converts the configured request spacing to a duration.
func (c CrawlConfig) Delay() time.Duration {
	return time.Duration(c.DelayMS) * time.Millisecond
}

// Timeout converts the configured request timeout to a duration.
func (c CrawlConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RetryBase converts the configured backoff base to a duration.
func (c CrawlConfig) RetryBase() time.Duration {
	return time.Duration(c.RetryBaseSeconds) * time.Second
}

// Timeout converts the configured render timeout to a duration.
func (c RenderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Settle converts the configured post-load settle delay to a duration.
func (c RenderConfig) Settle() time.Duration {
	return time.Duration(c.SettleSeconds) * time.Second
}
