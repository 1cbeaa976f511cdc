package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	AppHost string `mapstructure:"app_host"`
	AppPort string `mapstructure:"app_port"`

	DBDriver string `mapstructure:"db_driver"` // mysql | sqlite
	DBDSN    string `mapstructure:"db_dsn"`

	RedisAddr     string `mapstructure:"redis_addr"` // empty disables Redis
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	TicketSecret    string        `mapstructure:"ticket_secret"`
	TicketTTL       time.Duration `mapstructure:"ticket_ttl"`
	TicketSequencer string        `mapstructure:"ticket_sequencer"` // store | redis

	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	SweepWorkers      int           `mapstructure:"sweep_workers"`
	MetricsWindow     int           `mapstructure:"metrics_window"`
	MetricsMinSamples int           `mapstructure:"metrics_min_samples"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // text | json
}

func DefaultConfig() *Config {
	return &Config{
		AppHost:           "0.0.0.0",
		AppPort:           "8080",
		DBDriver:          "sqlite",
		DBDSN:             "./data/liveline.db",
		TicketTTL:         12 * time.Hour,
		TicketSequencer:   "store",
		SweepInterval:     5 * time.Second,
		SweepWorkers:      20,
		MetricsWindow:     10,
		MetricsMinSamples: 3,
		LogLevel:          "info",
		LogFormat:         "text",
	}
}

// LoadEnv reads .env into the process environment. A missing file is fine.
func LoadEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		logrus.Debug(".env not found, using system environment")
	}
}

// EnvFile picks the .env path: an explicit flag value, then ENV_FILE, then ./.env.
func EnvFile(flag string) string {
	if flag != "" {
		return flag
	}
	return GetEnv("ENV_FILE", ".env")
}

func GetEnv(key string, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// Load builds the configuration from the environment on top of the defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	setDefaults(v, cfg)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("app_host", cfg.AppHost)
	v.SetDefault("app_port", cfg.AppPort)
	v.SetDefault("db_driver", cfg.DBDriver)
	v.SetDefault("db_dsn", cfg.DBDSN)
	v.SetDefault("redis_addr", cfg.RedisAddr)
	v.SetDefault("redis_password", cfg.RedisPassword)
	v.SetDefault("redis_db", cfg.RedisDB)
	v.SetDefault("ticket_secret", cfg.TicketSecret)
	v.SetDefault("ticket_ttl", cfg.TicketTTL)
	v.SetDefault("ticket_sequencer", cfg.TicketSequencer)
	v.SetDefault("sweep_interval", cfg.SweepInterval)
	v.SetDefault("sweep_workers", cfg.SweepWorkers)
	v.SetDefault("metrics_window", cfg.MetricsWindow)
	v.SetDefault("metrics_min_samples", cfg.MetricsMinSamples)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("db_driver must be one of: mysql, sqlite")
	}
	if c.DBDSN == "" {
		return fmt.Errorf("db_dsn is required")
	}
	if c.TicketSecret == "" {
		return fmt.Errorf("ticket_secret is required")
	}
	if c.TicketTTL <= 0 {
		return fmt.Errorf("ticket_ttl must be positive")
	}

	switch c.TicketSequencer {
	case "store":
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("ticket_sequencer redis needs redis_addr")
		}
	default:
		return fmt.Errorf("ticket_sequencer must be one of: store, redis")
	}

	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be positive")
	}
	if c.SweepWorkers <= 0 {
		return fmt.Errorf("sweep_workers must be positive")
	}
	if c.MetricsWindow <= 0 || c.MetricsMinSamples <= 0 {
		return fmt.Errorf("metrics_window and metrics_min_samples must be positive")
	}
	if c.MetricsMinSamples > c.MetricsWindow {
		return fmt.Errorf("metrics_min_samples must not exceed metrics_window")
	}
	return nil
}

func (c *Config) Addr() string {
	return c.AppHost + ":" + c.AppPort
}

func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}
