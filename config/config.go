// Package config loads server configuration from .env, the environment,
// an optional YAML file and command-line flags, in that order.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the server configuration.
type Config struct {
	Port        int      `yaml:"port"`
	DBPath      string   `yaml:"db_path"`
	DatabaseURL string   `yaml:"database_url"`
	CORSOrigins []string `yaml:"cors_origins"`

	// Timezone is the civil timezone "today" is evaluated in.
	Timezone string `yaml:"timezone"`

	Schedule  ScheduleConfig  `yaml:"schedule"`
	Demurrage DemurrageConfig `yaml:"demurrage"`
}

// ScheduleConfig controls the daily trigger.
type ScheduleConfig struct {
	DailyAt  string `yaml:"daily_at"`
	Location string `yaml:"location"`
	Enabled  *bool  `yaml:"enabled"`
}

// DemurrageConfig tunes the calculation.
type DemurrageConfig struct {
	DefaultFreeDays  int `yaml:"default_free_days"`
	MaxLookaheadDays int `yaml:"max_lookahead_days"`
}

// SchedulerEnabled reports whether the daily trigger should start.
func (c Config) SchedulerEnabled() bool {
	return c.Schedule.Enabled == nil || *c.Schedule.Enabled
}

func defaults() Config {
	enabled := true
	return Config{
		Port:        8080,
		DBPath:      "demurrage.db",
		CORSOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
		Timezone:    "Asia/Colombo",
		Schedule: ScheduleConfig{
			DailyAt:  "18:31",
			Location: "UTC",
			Enabled:  &enabled,
		},
		Demurrage: DemurrageConfig{
			DefaultFreeDays:  3,
			MaxLookaheadDays: 3650,
		},
	}
}

// Load builds the configuration. args are the command-line arguments
// without the program name.
func Load(args []string) (Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	if path := os.Getenv("DEMURRAGE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := applyFlags(&cfg, args); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	var err error
	if v := os.Getenv("PORT"); v != "" {
		if cfg.Port, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
	}
	cfg.DBPath = getenvDefault("DEMURRAGE_DB_PATH", cfg.DBPath)
	cfg.DatabaseURL = getenvDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.Timezone = getenvDefault("DEMURRAGE_TIMEZONE", cfg.Timezone)
	cfg.Schedule.DailyAt = getenvDefault("DEMURRAGE_DAILY_AT", cfg.Schedule.DailyAt)
	cfg.Schedule.Location = getenvDefault("DEMURRAGE_SCHEDULE_LOCATION", cfg.Schedule.Location)
	if v := os.Getenv("DEMURRAGE_CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitCSV(v)
	}
	if v := os.Getenv("DEMURRAGE_SCHEDULER_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DEMURRAGE_SCHEDULER_ENABLED: %w", err)
		}
		cfg.Schedule.Enabled = &enabled
	}
	if v := os.Getenv("DEMURRAGE_DEFAULT_FREE_DAYS"); v != "" {
		if cfg.Demurrage.DefaultFreeDays, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("DEMURRAGE_DEFAULT_FREE_DAYS: %w", err)
		}
	}
	if v := os.Getenv("DEMURRAGE_MAX_LOOKAHEAD_DAYS"); v != "" {
		if cfg.Demurrage.MaxLookaheadDays, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("DEMURRAGE_MAX_LOOKAHEAD_DAYS: %w", err)
		}
	}
	return nil
}

// applyFlags overrides only the flags that were set explicitly.
func applyFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	port := fs.Int("port", cfg.Port, "HTTP server port")
	dbPath := fs.String("db", cfg.DBPath, "SQLite database path (\":memory:\" for in-memory)")
	dbURL := fs.String("database-url", cfg.DatabaseURL, "PostgreSQL URL; overrides -db when set")
	dailyAt := fs.String("daily-at", cfg.Schedule.DailyAt, "Daily check time, HH:MM in the schedule location")
	timezone := fs.String("timezone", cfg.Timezone, "Civil timezone for the demurrage date")
	scheduler := fs.Bool("scheduler", cfg.SchedulerEnabled(), "Run the daily scheduler")
	if err := fs.Parse(args); err != nil {
		return err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "db":
			cfg.DBPath = *dbPath
		case "database-url":
			cfg.DatabaseURL = *dbURL
		case "daily-at":
			cfg.Schedule.DailyAt = *dailyAt
		case "timezone":
			cfg.Timezone = *timezone
		case "scheduler":
			enabled := *scheduler
			cfg.Schedule.Enabled = &enabled
		}
	})
	return nil
}

// Validate checks values the server can't start without.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.DatabaseURL == "" && c.DBPath == "" {
		return errors.New("either database_url or db_path is required")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	if _, err := time.LoadLocation(c.Schedule.Location); err != nil {
		return fmt.Errorf("invalid schedule location %q: %w", c.Schedule.Location, err)
	}
	if _, err := time.Parse("15:04", c.Schedule.DailyAt); err != nil {
		return fmt.Errorf("invalid daily_at %q: %w", c.Schedule.DailyAt, err)
	}
	if c.Demurrage.DefaultFreeDays < 0 {
		return fmt.Errorf("default_free_days must not be negative, got %d", c.Demurrage.DefaultFreeDays)
	}
	if c.Demurrage.MaxLookaheadDays <= 0 {
		return fmt.Errorf("max_lookahead_days must be positive, got %d", c.Demurrage.MaxLookaheadDays)
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func splitCSV(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
