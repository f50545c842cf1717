// Package config loads the payroll engine configuration from a YAML file,
// a .env file and the process environment, in that order of precedence
// (environment wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment overrides.
const (
	EnvHTTPAddr     = "PAYROLL_HTTP_ADDR"
	EnvDBDriver     = "PAYROLL_DB_DRIVER"
	EnvDBPath       = "PAYROLL_DB_PATH"
	EnvDBDSN        = "PAYROLL_DB_DSN"
	EnvPayDay       = "PAYROLL_PAY_DAY"
	EnvOvertimeMode = "PAYROLL_OVERTIME_MODE"
	EnvRateLimit    = "PAYROLL_RATE_LIMIT"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the whole application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Payroll  PayrollConfig  `yaml:"payroll"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	ListenAddr  string   `yaml:"listen_addr"`
	RateLimit   string   `yaml:"rate_limit"` // ulule/limiter format, e.g. "100-M"
	CORSOrigins []string `yaml:"cors_origins"`
}

// DatabaseConfig selects and configures the repository.
type DatabaseConfig struct {
	Driver             string        `yaml:"driver"`
	Path               string        `yaml:"path"` // sqlite
	URL                string        `yaml:"dsn"`  // postgres
	MaxOpenConns       int           `yaml:"max_open_conns"`
	MaxIdleConns       int           `yaml:"max_idle_conns"`
	ConnMaxLifetime    time.Duration `yaml:"-"`
	ConnMaxIdleTime    time.Duration `yaml:"-"`
	ConnMaxLifetimeRaw string        `yaml:"conn_max_lifetime"`
	ConnMaxIdleTimeRaw string        `yaml:"conn_max_idle_time"`
}

// PayrollConfig configures payroll runs and the scheduler.
type PayrollConfig struct {
	// PayDay is the day of month the scheduler pays on. 0 means the last day.
	PayDay                   int           `yaml:"pay_day"`
	OvertimeMode             string        `yaml:"overtime_mode"`
	FirstRunFromEarliestFact bool          `yaml:"first_run_from_earliest_fact"`
	CheckInterval            time.Duration `yaml:"-"`
	CheckIntervalRaw         string        `yaml:"check_interval"`
	SchedulerEnabled         bool          `yaml:"scheduler_enabled"`
	RegisterDir              string        `yaml:"register_dir"` // PDF pay registers; empty disables
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			RateLimit:  "100-M",
		},
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			Path:   "./data/payroll.db",
		},
		Payroll: PayrollConfig{
			OvertimeMode:     "literal",
			CheckIntervalRaw: "1h",
			SchedulerEnabled: true,
		},
	}
}

// Load reads the YAML file at path (skipped when path is empty), loads
// envFiles (".env" when none are given; missing files are ignored), applies
// environment overrides, and validates the result.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	if err := godotenv.Load(envFiles...); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load env: %w", err)
		}
		slog.Debug("no .env file found, using environment variables")
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.validateAndNormalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Server.ListenAddr = getEnv(EnvHTTPAddr, c.Server.ListenAddr)
	c.Server.RateLimit = getEnv(EnvRateLimit, c.Server.RateLimit)
	c.Database.Driver = getEnv(EnvDBDriver, c.Database.Driver)
	c.Database.Path = getEnv(EnvDBPath, c.Database.Path)
	c.Database.URL = getEnv(EnvDBDSN, c.Database.URL)
	c.Payroll.OvertimeMode = getEnv(EnvOvertimeMode, c.Payroll.OvertimeMode)

	if raw := os.Getenv(EnvPayDay); raw != "" {
		day, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvPayDay, err)
		}
		c.Payroll.PayDay = day
	}
	return nil
}

func (c *Config) validateAndNormalize() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("config: server.listen_addr must be set")
	}

	if err := c.Database.validateAndNormalize(); err != nil {
		return err
	}

	p := &c.Payroll
	if p.PayDay < 0 || p.PayDay > 31 {
		return fmt.Errorf("config: payroll.pay_day must be between 0 and 31, got %d", p.PayDay)
	}
	switch p.OvertimeMode {
	case "":
		p.OvertimeMode = "literal"
	case "literal", "corrected":
	default:
		return fmt.Errorf("config: payroll.overtime_mode must be literal or corrected, got %q", p.OvertimeMode)
	}

	interval, err := parseDurationAllowEmpty(p.CheckIntervalRaw)
	if err != nil {
		return fmt.Errorf("config: payroll.check_interval: %w", err)
	}
	if interval == 0 {
		interval = time.Hour
	}
	p.CheckInterval = interval

	return nil
}

func (d *DatabaseConfig) validateAndNormalize() error {
	switch d.Driver {
	case "":
		d.Driver = DriverSQLite
		fallthrough
	case DriverSQLite:
		if d.Path == "" {
			return fmt.Errorf("config: database.path must be set for sqlite")
		}
	case DriverPostgres:
		if d.URL == "" {
			return fmt.Errorf("config: database.dsn must be set for postgres")
		}
	default:
		return fmt.Errorf("config: database.driver must be sqlite or postgres, got %q", d.Driver)
	}

	lifetime, err := parseDurationAllowEmpty(d.ConnMaxLifetimeRaw)
	if err != nil {
		return fmt.Errorf("config: database.conn_max_lifetime: %w", err)
	}
	d.ConnMaxLifetime = lifetime

	idleTime, err := parseDurationAllowEmpty(d.ConnMaxIdleTimeRaw)
	if err != nil {
		return fmt.Errorf("config: database.conn_max_idle_time: %w", err)
	}
	d.ConnMaxIdleTime = idleTime

	return nil
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return d.URL
}

func parseDurationAllowEmpty(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	return time.ParseDuration(raw)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
