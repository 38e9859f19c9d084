// Package config loads and validates gradewatch configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/gradewatch/gradewatch/internal/monitor"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig      `mapstructure:"server"`
	Monitor  MonitorConfig     `mapstructure:"monitor"`
	Portal   PortalConfig      `mapstructure:"portal"`
	DB       DBConfig          `mapstructure:"db"`
	Telegram TelegramConfig    `mapstructure:"telegram"`
	PubSub   PubSubConfig      `mapstructure:"pubsub"`
	Logging  LoggingConfig     `mapstructure:"logging"`
	Accounts []monitor.Account `mapstructure:"accounts"`
}

// ServerConfig controls the HTTP status server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// MonitorConfig governs the polling loop. Every field is live-tunable: the
// orchestrator re-reads the file at the start of each iteration.
type MonitorConfig struct {
	IntervalSeconds       int  `mapstructure:"interval_seconds"`
	MaxConcurrency        int  `mapstructure:"max_concurrency"`
	TaskTimeoutSeconds    int  `mapstructure:"task_timeout_seconds"`
	SessionTimeoutSeconds int  `mapstructure:"session_timeout_seconds"`
	AutoResolve           bool `mapstructure:"auto_resolve"`
}

// Interval returns the inter-iteration delay.
func (c MonitorConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// TaskTimeout returns the per-account cycle budget.
func (c MonitorConfig) TaskTimeout() time.Duration {
	return time.Duration(c.TaskTimeoutSeconds) * time.Second
}

// SessionTimeout returns the portal session lifetime.
func (c MonitorConfig) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutSeconds) * time.Second
}

// PortalConfig points the scraping client at the student portal.
type PortalConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	LoginPath      string `mapstructure:"login_path"`
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Timeout returns the per-request HTTP budget.
func (c PortalConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DBConfig controls snapshot/alert persistence.
type DBConfig struct {
	// Provider selects "postgres" or "memory".
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// TelegramConfig holds credentials for the Telegram notification sink.
type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
	ChatID  string `mapstructure:"chat_id"`
}

// PubSubConfig holds metadata for the Pub/Sub notification sink.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment. Called once at startup and again
// at the top of every orchestrator iteration so external edits take effect
// without a restart.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GRADEWATCH")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitor.interval_seconds", 60)
	v.SetDefault("monitor.max_concurrency", 3)
	v.SetDefault("monitor.task_timeout_seconds", 30)
	v.SetDefault("monitor.session_timeout_seconds", 1800)
	v.SetDefault("monitor.auto_resolve", false)
	v.SetDefault("portal.base_url", "https://ubys.omu.edu.tr/")
	v.SetDefault("portal.login_path", "Account/Login")
	v.SetDefault("portal.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("portal.timeout_seconds", 10)
	v.SetDefault("db.provider", "memory")
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Monitor.IntervalSeconds <= 0 {
		return fmt.Errorf("monitor.interval_seconds must be > 0")
	}
	if c.Monitor.MaxConcurrency <= 0 {
		return fmt.Errorf("monitor.max_concurrency must be > 0")
	}
	if c.Monitor.TaskTimeoutSeconds <= 0 {
		return fmt.Errorf("monitor.task_timeout_seconds must be > 0")
	}
	if c.Monitor.SessionTimeoutSeconds <= 0 {
		return fmt.Errorf("monitor.session_timeout_seconds must be > 0")
	}
	if c.Portal.BaseURL == "" {
		return fmt.Errorf("portal.base_url is required")
	}
	switch c.DB.Provider {
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.provider is 'postgres' but db.dsn is not set")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown db provider: %s", c.DB.Provider)
	}
	if c.Telegram.Enabled && (c.Telegram.Token == "" || c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.token and telegram.chat_id must be set when telegram is enabled")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	for _, account := range c.Accounts {
		if err := account.Validate(); err != nil {
			return fmt.Errorf("accounts: %w", err)
		}
	}
	return nil
}
