// Package config loads service configuration from defaults, an optional YAML
// file and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	NATS      NATSConfig      `yaml:"nats"`
	Directory DirectoryConfig `yaml:"directory"`
	Resolver  ResolverConfig  `yaml:"resolver"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

type ServiceConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	GRPCPort        int           `yaml:"grpc_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

type DatabaseConfig struct {
	URL         string        `yaml:"url"`
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	User        string        `yaml:"user"`
	Password    string        `yaml:"password"`
	Database    string        `yaml:"database"`
	SSLMode     string        `yaml:"ssl_mode"`
	MaxConns    int32         `yaml:"max_conns"`
	MinConns    int32         `yaml:"min_conns"`
	MaxConnTime time.Duration `yaml:"max_conn_time"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`
	HealthCheck time.Duration `yaml:"health_check"`
	Migrate     bool          `yaml:"migrate"`
}

// StorageConfig selects the persistence backend: "postgres" or "memory".
type StorageConfig struct {
	Driver string `yaml:"driver"`
}

type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DirectoryTTL time.Duration `yaml:"directory_ttl"`
}

type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// DirectoryConfig points at the HR directory. BaseURL wins; StaticFile
// serves a YAML snapshot for local runs.
type DirectoryConfig struct {
	BaseURL    string        `yaml:"base_url"`
	StaticFile string        `yaml:"static_file"`
	Timeout    time.Duration `yaml:"timeout"`
}

// ResolverConfig controls approval-line scope matching.
type ResolverConfig struct {
	// HierarchicalFallback walks the department ancestry (nearest first, then
	// the organisation-wide scope) when no policy matches the exact department.
	HierarchicalFallback bool `yaml:"hierarchical_fallback"`
}

type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "be-hr-approvals",
			Version:     "dev",
			Environment: "development",
			LogLevel:    "info",
		},
		Server: ServerConfig{
			Port:            8086,
			GRPCPort:        9086,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Database: DatabaseConfig{
			Host:        "localhost",
			Port:        5432,
			User:        "approvals",
			Database:    "approvals",
			SSLMode:     "disable",
			MaxConns:    10,
			MinConns:    1,
			MaxConnTime: time.Hour,
			MaxIdleTime: 5 * time.Minute,
			HealthCheck: time.Minute,
			Migrate:     true,
		},
		Storage: StorageConfig{Driver: "postgres"},
		Redis: RedisConfig{
			DirectoryTTL: 5 * time.Minute,
		},
		NATS: NATSConfig{
			SubjectPrefix: "approvals",
		},
		Directory: DirectoryConfig{
			Timeout: 5 * time.Second,
		},
		Tracing: TracingConfig{
			Exporter: "stdout",
		},
	}
}

// Load builds the configuration. CONFIG_FILE, when set, names a YAML file
// applied on top of the defaults; environment variables win over both.
func Load() (*Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []string
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = n
		}
	}
	num32 := func(key string, dst *int32) {
		n := int(*dst)
		num(key, &n)
		*dst = int32(n)
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = d
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = b
		}
	}

	str("SERVICE_NAME", &c.Service.Name)
	str("SERVICE_VERSION", &c.Service.Version)
	str("ENVIRONMENT", &c.Service.Environment)
	str("LOG_LEVEL", &c.Service.LogLevel)

	num("PORT", &c.Server.Port)
	num("GRPC_PORT", &c.Server.GRPCPort)
	dur("SERVER_READ_TIMEOUT", &c.Server.ReadTimeout)
	dur("SERVER_WRITE_TIMEOUT", &c.Server.WriteTimeout)
	dur("SERVER_IDLE_TIMEOUT", &c.Server.IdleTimeout)
	dur("SERVER_REQUEST_TIMEOUT", &c.Server.RequestTimeout)
	dur("SERVER_SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)
	if v := strings.TrimSpace(os.Getenv("CORS_ORIGINS")); v != "" {
		c.Server.CORSOrigins = strings.Split(v, ",")
	}

	str("DATABASE_URL", &c.Database.URL)
	str("DATABASE_HOST", &c.Database.Host)
	num("DATABASE_PORT", &c.Database.Port)
	str("DATABASE_USER", &c.Database.User)
	str("DATABASE_PASSWORD", &c.Database.Password)
	str("DATABASE_NAME", &c.Database.Database)
	str("DATABASE_SSLMODE", &c.Database.SSLMode)
	num32("DATABASE_MAX_CONNS", &c.Database.MaxConns)
	num32("DATABASE_MIN_CONNS", &c.Database.MinConns)
	dur("DATABASE_MAX_CONN_TIME", &c.Database.MaxConnTime)
	dur("DATABASE_MAX_IDLE_TIME", &c.Database.MaxIdleTime)
	dur("DATABASE_HEALTH_CHECK", &c.Database.HealthCheck)
	flag("DATABASE_MIGRATE", &c.Database.Migrate)

	str("STORAGE_DRIVER", &c.Storage.Driver)

	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	num("REDIS_DB", &c.Redis.DB)
	dur("REDIS_DIRECTORY_TTL", &c.Redis.DirectoryTTL)

	str("NATS_URL", &c.NATS.URL)
	str("NATS_SUBJECT_PREFIX", &c.NATS.SubjectPrefix)

	str("DIRECTORY_BASE_URL", &c.Directory.BaseURL)
	str("DIRECTORY_STATIC_FILE", &c.Directory.StaticFile)
	dur("DIRECTORY_TIMEOUT", &c.Directory.Timeout)

	flag("RESOLVER_HIERARCHICAL_FALLBACK", &c.Resolver.HierarchicalFallback)

	flag("TRACING_ENABLED", &c.Tracing.Enabled)
	str("TRACING_EXPORTER", &c.Tracing.Exporter)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid http port %d", c.Server.Port)
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("invalid grpc port %d", c.Server.GRPCPort)
	}
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database min_conns (%d) exceeds max_conns (%d)", c.Database.MinConns, c.Database.MaxConns)
	}
	switch c.Tracing.Exporter {
	case "stdout", "none":
	default:
		return fmt.Errorf("unknown tracing exporter %q", c.Tracing.Exporter)
	}
	return nil
}
