// Package config provides configuration management and environment variable handling for the application
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the follow-up engine
type Config struct {
	Database  DatabaseConfig  `json:"database"`
	Server    ServerConfig    `json:"server"`
	Cache     CacheConfig     `json:"cache"`
	Generator GeneratorConfig `json:"generator"`
	Transport TransportConfig `json:"transport"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Metrics   MetricsConfig   `json:"metrics"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
}

// DSN builds the postgres connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// Address returns the listen address in host:port form
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type CacheConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// GeneratorConfig points at the auto-message generation service. An empty URL
// disables generation; auto-message configs then fall back to the static text.
type GeneratorConfig struct {
	URL     string        `json:"url"`
	APIKey  string        `json:"api_key"`
	Timeout time.Duration `json:"timeout"`
}

type TransportConfig struct {
	Timeout time.Duration `json:"timeout"`
}

type SchedulerConfig struct {
	Enabled         bool          `json:"enabled"`
	MonitorInterval time.Duration `json:"monitor_interval"`
	FireInterval    time.Duration `json:"fire_interval"`
	FireBatchLimit  int           `json:"fire_batch_limit"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path"`
}

// Load reads configuration from the environment, with .env file support
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "followup_engine"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
		},
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Cache: CacheConfig{
			Enabled:  getEnvBool("CACHE_ENABLED", false),
			Addr:     getEnvString("CACHE_REDIS_ADDR", "localhost:6379"),
			Password: getEnvString("CACHE_REDIS_PASSWORD", ""),
			DB:       getEnvInt("CACHE_REDIS_DB", 0),
		},
		Generator: GeneratorConfig{
			URL:     getEnvString("GENERATOR_URL", ""),
			APIKey:  getEnvString("GENERATOR_API_KEY", ""),
			Timeout: getEnvDuration("GENERATOR_TIMEOUT", 20*time.Second),
		},
		Transport: TransportConfig{
			Timeout: getEnvDuration("TRANSPORT_TIMEOUT", 10*time.Second),
		},
		Scheduler: SchedulerConfig{
			Enabled:         getEnvBool("SCHEDULER_ENABLED", true),
			MonitorInterval: getEnvDuration("SCHEDULER_MONITOR_INTERVAL", time.Minute),
			FireInterval:    getEnvDuration("SCHEDULER_FIRE_INTERVAL", time.Minute),
			FireBatchLimit:  getEnvInt("SCHEDULER_FIRE_BATCH_LIMIT", 100),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Port:    getEnvInt("METRICS_PORT", 9090),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the loaded configuration for obvious mistakes
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Database.Host == "" {
		errs = append(errs, "database host is required")
	}
	if cfg.Database.Name == "" {
		errs = append(errs, "database name is required")
	}
	if cfg.Database.User == "" {
		errs = append(errs, "database user is required")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server port must be between 1 and 65535")
	}
	if cfg.Metrics.Enabled && (cfg.Metrics.Port <= 0 || cfg.Metrics.Port > 65535) {
		errs = append(errs, "metrics port must be between 1 and 65535")
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Port == cfg.Server.Port {
		errs = append(errs, "metrics port must differ from server port")
	}
	if cfg.Scheduler.MonitorInterval <= 0 {
		errs = append(errs, "scheduler monitor interval must be positive")
	}
	if cfg.Scheduler.FireInterval <= 0 {
		errs = append(errs, "scheduler fire interval must be positive")
	}
	if cfg.Scheduler.FireBatchLimit <= 0 {
		errs = append(errs, "scheduler fire batch limit must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// loadEnvFile loads environment variables from .env file if it exists
func loadEnvFile() error {
	envFile := ".env"

	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		return nil
	}

	file, err := os.Open(envFile)
	if err != nil {
		return fmt.Errorf("failed to open .env file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.Contains(line, "=") {
			parts := strings.SplitN(line, "=", 2)
			if len(parts) == 2 {
				key := strings.TrimSpace(parts[0])
				value := strings.TrimSpace(parts[1])

				if (strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`)) ||
					(strings.HasPrefix(value, `'`) && strings.HasSuffix(value, `'`)) {
					value = value[1 : len(value)-1]
				}

				// Real environment wins over the file
				if os.Getenv(key) == "" {
					os.Setenv(key, value)
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading .env file: %w", err)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
