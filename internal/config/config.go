package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	appwf "github.com/harshangpate/hospital-crm/internal/application/workflow"
	"github.com/harshangpate/hospital-crm/internal/domain/workflow"
	"github.com/harshangpate/hospital-crm/internal/infrastructure/billing"
	"github.com/harshangpate/hospital-crm/internal/infrastructure/resilience"
	"github.com/harshangpate/hospital-crm/pkg/database"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Workflow   WorkflowConfig   `mapstructure:"workflow"`
	Billing    BillingConfig    `mapstructure:"billing"`
	Lark       LarkConfig       `mapstructure:"lark"`
	Beds       BedsConfig       `mapstructure:"beds"`
	Reconciler ReconcilerConfig `mapstructure:"reconciler"`
	Breaker    BreakerConfig    `mapstructure:"breaker"`
	Logger     LoggerConfig     `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // gin mode: debug, release or test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite3 (cgo) or sqlite (pure Go)
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// WorkflowConfig holds engine configuration
type WorkflowConfig struct {
	FailurePolicy       string        `mapstructure:"failure_policy"` // tolerate or strict
	CollaboratorTimeout time.Duration `mapstructure:"collaborator_timeout"`
}

// BillingConfig holds the flat price list, keyed by entity type
type BillingConfig struct {
	Prices map[string]int64 `mapstructure:"prices"`
}

// LarkConfig holds Lark API configuration for critical alerts.
// When disabled, alerts go to the service log.
type LarkConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	AppID         string `mapstructure:"app_id"`
	AppSecret     string `mapstructure:"app_secret"`
	BaseURL       string `mapstructure:"base_url"`
	ReceiveIDType string `mapstructure:"receive_id_type"`
	AlertChatID   string `mapstructure:"alert_chat_id"`
}

// BedsConfig lists the beds registered at startup
type BedsConfig struct {
	Wards []WardConfig `mapstructure:"wards"`
}

// WardConfig is one ward and its bed references
type WardConfig struct {
	Name string   `mapstructure:"name"`
	Beds []string `mapstructure:"beds"`
}

// ReconcilerConfig holds billing reconciler configuration
type ReconcilerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	RunTimeout   time.Duration `mapstructure:"run_timeout"`
}

// BreakerConfig holds collaborator circuit breaker configuration
type BreakerConfig struct {
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
	OpenTimeout         time.Duration `mapstructure:"open_timeout"`
	HalfOpenRequests    uint32        `mapstructure:"half_open_requests"`
	Interval            time.Duration `mapstructure:"interval"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from an optional YAML file and the environment.
// An empty configPath uses defaults plus environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
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

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment.
// Variables already set are not overridden; a missing file is ignored.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	// Database defaults
	v.SetDefault("database.driver", database.DriverCGO)
	v.SetDefault("database.path", "data/hospital.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 0)

	// Workflow defaults
	v.SetDefault("workflow.failure_policy", string(appwf.PolicyTolerate))
	v.SetDefault("workflow.collaborator_timeout", 5*time.Second)

	// Lark defaults
	v.SetDefault("lark.enabled", false)
	v.SetDefault("lark.receive_id_type", "chat_id")

	// Reconciler defaults
	v.SetDefault("reconciler.enabled", true)
	v.SetDefault("reconciler.poll_interval", time.Minute)
	v.SetDefault("reconciler.batch_size", 50)
	v.SetDefault("reconciler.run_timeout", 30*time.Second)

	// Breaker defaults
	def := resilience.DefaultConfig()
	v.SetDefault("breaker.consecutive_failures", def.ConsecutiveFailures)
	v.SetDefault("breaker.open_timeout", def.OpenTimeout)
	v.SetDefault("breaker.half_open_requests", def.HalfOpenRequests)
	v.SetDefault("breaker.interval", def.Interval)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds the short environment names used in deployment
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("lark.app_id", "LARK_APP_ID")
	_ = v.BindEnv("lark.app_secret", "LARK_APP_SECRET")
	_ = v.BindEnv("lark.alert_chat_id", "LARK_ALERT_CHAT_ID")
	_ = v.BindEnv("database.path", "DATABASE_PATH")
	_ = v.BindEnv("workflow.failure_policy", "WORKFLOW_FAILURE_POLICY")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if _, err := c.DatabaseConfig().DSN(); err != nil {
		return fmt.Errorf("database.driver: %w", err)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if _, err := appwf.ParseFailurePolicy(c.Workflow.FailurePolicy); err != nil {
		return fmt.Errorf("workflow.failure_policy: %w", err)
	}
	if c.Workflow.CollaboratorTimeout <= 0 {
		return fmt.Errorf("workflow.collaborator_timeout must be positive")
	}

	if _, err := c.PriceList(); err != nil {
		return err
	}

	if c.Lark.Enabled {
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark.app_id is required when lark is enabled")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_secret is required when lark is enabled")
		}
		if c.Lark.AlertChatID == "" {
			return fmt.Errorf("lark.alert_chat_id is required when lark is enabled")
		}
	}

	seen := make(map[string]bool)
	for _, ward := range c.Beds.Wards {
		if ward.Name == "" {
			return fmt.Errorf("beds.wards: ward name is required")
		}
		for _, ref := range ward.Beds {
			if seen[ref] {
				return fmt.Errorf("beds.wards: bed %s listed twice", ref)
			}
			seen[ref] = true
		}
	}

	if c.Reconciler.Enabled && c.Reconciler.PollInterval <= 0 {
		return fmt.Errorf("reconciler.poll_interval must be positive")
	}

	return nil
}

// DatabaseConfig converts to the database package configuration
func (c *Config) DatabaseConfig() database.Config {
	return database.Config{
		Driver:          c.Database.Driver,
		Path:            c.Database.Path,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
	}
}

// FailurePolicy returns the parsed collaborator failure policy
func (c *Config) FailurePolicy() appwf.FailurePolicy {
	p, _ := appwf.ParseFailurePolicy(c.Workflow.FailurePolicy)
	return p
}

// PriceList parses billing.prices keys into entity types
func (c *Config) PriceList() (billing.PriceList, error) {
	prices := make(billing.PriceList, len(c.Billing.Prices))
	for key, cents := range c.Billing.Prices {
		t, err := workflow.ParseEntityType(key)
		if err != nil {
			return nil, fmt.Errorf("billing.prices: %w", err)
		}
		if cents < 0 {
			return nil, fmt.Errorf("billing.prices.%s must not be negative", key)
		}
		prices[t] = cents
	}
	return prices, nil
}

// BedSeed returns the configured beds keyed by ward
func (c *Config) BedSeed() map[string][]string {
	seed := make(map[string][]string, len(c.Beds.Wards))
	for _, ward := range c.Beds.Wards {
		seed[ward.Name] = append(seed[ward.Name], ward.Beds...)
	}
	return seed
}

// BreakerSettings converts to the resilience package configuration
func (c *Config) BreakerSettings() resilience.Config {
	return resilience.Config{
		ConsecutiveFailures: c.Breaker.ConsecutiveFailures,
		OpenTimeout:         c.Breaker.OpenTimeout,
		HalfOpenRequests:    c.Breaker.HalfOpenRequests,
		Interval:            c.Breaker.Interval,
	}
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
