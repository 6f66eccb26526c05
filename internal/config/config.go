package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	Currency CurrencyConfig `mapstructure:"currency"`
	Reminder ReminderConfig `mapstructure:"reminder"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// WorkflowConfig holds routing thresholds and ledger policies. Amounts are decimal strings.
type WorkflowConfig struct {
	HighValueThreshold        string `mapstructure:"high_value_threshold"`
	DirectorThreshold         string `mapstructure:"director_threshold"`
	DefaultRequiredPercentage int    `mapstructure:"default_required_percentage"`
	OverrideSequence          int    `mapstructure:"override_sequence"`
	CountSkippedSteps         bool   `mapstructure:"count_skipped_steps"`
	LegacyEscalationLogStep   bool   `mapstructure:"legacy_escalation_log_step"`
	PreferDedicatedRoles      bool   `mapstructure:"prefer_dedicated_roles"`
}

// HighValue parses HighValueThreshold
func (w WorkflowConfig) HighValue() (decimal.Decimal, error) {
	return decimal.NewFromString(w.HighValueThreshold)
}

// Director parses DirectorThreshold
func (w WorkflowConfig) Director() (decimal.Decimal, error) {
	return decimal.NewFromString(w.DirectorThreshold)
}

// CurrencyConfig holds the static exchange rate table keyed "FROM_TO"
type CurrencyConfig struct {
	Rates map[string]string `mapstructure:"rates"`
}

// ReminderConfig holds the reminder scanner configuration
type ReminderConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Interval     time.Duration `mapstructure:"interval"`
	ScanInterval time.Duration `mapstructure:"scan_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
}

// Load reads .env (when present), then the YAML file at configPath, then the environment.
// An empty configPath uses defaults and the environment only.
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APPROVAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvVars(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.path", "data/approvals.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	v.SetDefault("workflow.high_value_threshold", "25000")
	v.SetDefault("workflow.director_threshold", "50000")
	v.SetDefault("workflow.default_required_percentage", 60)
	v.SetDefault("workflow.override_sequence", 999)
	v.SetDefault("workflow.count_skipped_steps", true)
	v.SetDefault("workflow.legacy_escalation_log_step", false)
	v.SetDefault("workflow.prefer_dedicated_roles", false)

	v.SetDefault("reminder.enabled", true)
	v.SetDefault("reminder.interval", 24*time.Hour)
	v.SetDefault("reminder.scan_interval", 15*time.Minute)
	v.SetDefault("reminder.batch_size", 100)
}

// bindEnvVars binds the short environment names used by deployments
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("database.path", "DATABASE_PATH")
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("logger.level", "LOG_LEVEL")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Logger.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logger.format must be json or console, got %q", c.Logger.Format)
	}

	highValue, err := c.Workflow.HighValue()
	if err != nil || !highValue.IsPositive() {
		return fmt.Errorf("workflow.high_value_threshold must be a positive amount, got %q", c.Workflow.HighValueThreshold)
	}
	director, err := c.Workflow.Director()
	if err != nil || !director.IsPositive() {
		return fmt.Errorf("workflow.director_threshold must be a positive amount, got %q", c.Workflow.DirectorThreshold)
	}
	if p := c.Workflow.DefaultRequiredPercentage; p < 1 || p > 100 {
		return fmt.Errorf("workflow.default_required_percentage must be between 1 and 100, got %d", p)
	}
	if c.Workflow.OverrideSequence < 2 {
		return fmt.Errorf("workflow.override_sequence must be at least 2, got %d", c.Workflow.OverrideSequence)
	}

	for pair, rate := range c.Currency.Rates {
		r, err := decimal.NewFromString(strings.TrimSpace(rate))
		if err != nil || !r.IsPositive() {
			return fmt.Errorf("currency.rates.%s must be a positive number, got %q", pair, rate)
		}
	}

	if c.Reminder.Enabled {
		if c.Reminder.Interval <= 0 || c.Reminder.ScanInterval <= 0 {
			return fmt.Errorf("reminder.interval and reminder.scan_interval must be positive")
		}
		if c.Reminder.BatchSize <= 0 {
			return fmt.Errorf("reminder.batch_size must be positive, got %d", c.Reminder.BatchSize)
		}
	}

	return nil
}
