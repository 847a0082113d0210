// Package coreconfig loads the Process & Event Core's configuration, the
// ambient half of C12. Grounded on the teacher's common/config/config.go:
// layered viper defaults -> YAML file -> environment, sectioned structs,
// but trimmed to the sections this core actually has (no Docker, auth,
// worktree, or repo-clone sections — those belong to subsystems outside
// the core's scope).
package coreconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every configuration section the core reads at startup.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	ReadTimeout     int    `mapstructure:"readTimeout"`     // seconds
	WriteTimeout    int    `mapstructure:"writeTimeout"`    // seconds
	ShutdownTimeout int    `mapstructure:"shutdownTimeout"` // seconds
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// ShutdownTimeoutDuration returns the graceful shutdown timeout.
func (s ServerConfig) ShutdownTimeoutDuration() time.Duration {
	return time.Duration(s.ShutdownTimeout) * time.Second
}

// DatabaseConfig holds the Persistence Pool's connection configuration.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // "sqlite" or "postgres"
	Path     string `mapstructure:"path"`   // sqlite file path
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbName"`
	SSLMode  string `mapstructure:"sslMode"`
	MaxConns int    `mapstructure:"maxConns"`
	MinConns int    `mapstructure:"minConns"`
}

// NATSConfig holds the optional NATS-backed Event Broadcaster's
// configuration. An empty URL means use the in-process broadcaster
// instead.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// LoggingConfig holds structured-logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json", "console", or "" (auto)
}

// TracingConfig holds OpenTelemetry tracer configuration.
type TracingConfig struct {
	OTLPEndpoint string `mapstructure:"otlpEndpoint"`
	ServiceName  string `mapstructure:"serviceName"`
}

// Load reads configuration from environment variables, an optional
// config.yaml, and defaults, the same precedence order as the teacher's
// Load/LoadWithPath.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath is Load with an explicit additional config file search
// path, used by tests that point at a fixture directory.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AGENTCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/agentcore/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)
	v.SetDefault("server.shutdownTimeout", 10)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./agentcore.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "agentcore")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbName", "agentcore")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxConns", 10)
	v.SetDefault("database.minConns", 1)

	// Empty URL means use the in-process Event Broadcaster instead of NATS.
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "agentcore")
	v.SetDefault("nats.maxReconnects", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "")

	v.SetDefault("tracing.otlpEndpoint", "")
	v.SetDefault("tracing.serviceName", "agentcore")
}

func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	switch cfg.Database.Driver {
	case "sqlite":
		if cfg.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite driver")
		}
	case "postgres":
		if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
			errs = append(errs, "database.port must be between 1 and 65535")
		}
		if cfg.Database.DBName == "" {
			errs = append(errs, "database.dbName is required for the postgres driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported", cfg.Database.Driver))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
