// Package config loads service configuration from a file and the
// environment. Precedence: environment variables > config file > defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level service configuration.
type Config struct {
	Web       WebConfig       `mapstructure:"web"`
	Database  DatabaseConfig  `mapstructure:"db"`
	Logs      LogsConfig      `mapstructure:"logs"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// WebConfig holds HTTP server settings.
type WebConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// DSN builds the pgx connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
}

// LogsConfig holds log content storage settings.
type LogsConfig struct {
	// Dir is the directory holding one append-only content file per log.
	Dir string `mapstructure:"dir"`
}

// TelemetryConfig holds tracing settings.
type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ExporterAddr string  `mapstructure:"exporter_addr"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

// Load reads configuration from path (optional) and the CAMPUSD_* env vars.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("web.host", "0.0.0.0")
	v.SetDefault("web.port", "8080")
	v.SetDefault("web.read_timeout", "5s")
	v.SetDefault("web.write_timeout", "10s")
	v.SetDefault("web.idle_timeout", "120s")
	v.SetDefault("web.shutdown_timeout", "20s")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "campusd")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "postgres")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_conns", 20)

	v.SetDefault("logs.dir", "/var/lib/campusd/logs")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.exporter_addr", "localhost:4317")
	v.SetDefault("telemetry.sample_rate", 0.1)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/campusd")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CAMPUSD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Missing file means defaults plus environment only.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}
