package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	SQLite    SQLiteConfig    `mapstructure:"sqlite"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NATS      NATSConfig      `mapstructure:"nats"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Scan      ScanConfig      `mapstructure:"scan"`
	Model     ModelConfig     `mapstructure:"model"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Version     string `mapstructure:"version"`
	Debug       bool   `mapstructure:"debug"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	HTTPPort        int           `mapstructure:"http_port"`
	GRPCPort        int           `mapstructure:"grpc_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StorageConfig selects the persisted threat/whitelist store
type StorageConfig struct {
	Driver string `mapstructure:"driver"` // memory, sqlite or postgres
}

type DatabaseConfig struct {
	// URL, when set, overrides the individual connection fields.
	URL             string        `mapstructure:"url"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Schema          string        `mapstructure:"schema"`
}

func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s&search_path=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode, c.Schema,
	)
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Host      string        `mapstructure:"host"`
	Port      int           `mapstructure:"port"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	LockTTL   time.Duration `mapstructure:"lock_ttl"`
	ReportTTL time.Duration `mapstructure:"report_ttl"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	Enabled    bool               `mapstructure:"enabled"`
	URL        string             `mapstructure:"url"`
	StreamName string             `mapstructure:"stream_name"`
	Subjects   NATSSubjectsConfig `mapstructure:"subjects"`
}

type NATSSubjectsConfig struct {
	ScanCompleted  string `mapstructure:"scan_completed"`
	HighRiskThreat string `mapstructure:"high_risk_threat"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// RateLimitConfig limits on-demand scans per client
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
}

// AuthConfig protects mutating endpoints with a bearer token
type AuthConfig struct {
	APIKey string `mapstructure:"api_key"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	TimeFormat string `mapstructure:"time_format"`
}

// ScanConfig tunes the threat scanner
type ScanConfig struct {
	Workers              int      `mapstructure:"workers"`
	AIThreshold          float64  `mapstructure:"ai_threshold"`
	IncrementalWhitelist bool     `mapstructure:"incremental_whitelist"`
	RootPaths            []string `mapstructure:"root_paths"`
}

// ModelConfig points at the bundled risk model artifact
type ModelConfig struct {
	Path          string `mapstructure:"path"`
	SignaturePath string `mapstructure:"signature_path"`
	KeyringPath   string `mapstructure:"keyring_path"`
}

// RegistryConfig selects where installed applications are read from
type RegistryConfig struct {
	Source        string        `mapstructure:"source"` // inventory or adb
	InventoryPath string        `mapstructure:"inventory_path"`
	ADBPath       string        `mapstructure:"adb_path"`
	Serial        string        `mapstructure:"serial"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type SchedulerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Interval         time.Duration `mapstructure:"interval"`
	ConnectivityHost string        `mapstructure:"connectivity_host"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	MaxRetries       int           `mapstructure:"max_retries"`
	BaseRetryDelay   time.Duration `mapstructure:"base_retry_delay"`
	MaxRetryDelay    time.Duration `mapstructure:"max_retry_delay"`
	HistorySize      int           `mapstructure:"history_size"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "secureguard")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.version", "0.1.0")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.grpc_port", 9090)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("sqlite.path", "secureguard.db")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "secureguard")
	v.SetDefault("database.dbname", "secureguard")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.schema", "public")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.key_prefix", "secureguard:")
	v.SetDefault("redis.lock_ttl", 10*time.Minute)
	v.SetDefault("redis.report_ttl", time.Hour)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.stream_name", "SECUREGUARD_SCANS")
	v.SetDefault("nats.subjects.scan_completed", "scans.completed")
	v.SetDefault("nats.subjects.high_risk_threat", "scans.threats.high")

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Accept", "Authorization", "Content-Type"})
	v.SetDefault("cors.max_age", 300)

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.requests_per_minute", 6)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.time_format", time.RFC3339)

	v.SetDefault("scan.workers", 1)
	v.SetDefault("scan.ai_threshold", 0.95)
	v.SetDefault("scan.incremental_whitelist", false)

	v.SetDefault("model.path", "assets/malware_model.json")

	v.SetDefault("registry.source", "inventory")
	v.SetDefault("registry.inventory_path", "inventory.yaml")
	v.SetDefault("registry.adb_path", "adb")
	v.SetDefault("registry.timeout", 30*time.Second)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", 15*time.Minute)
	v.SetDefault("scheduler.connect_timeout", 5*time.Second)
	v.SetDefault("scheduler.max_retries", 3)
	v.SetDefault("scheduler.base_retry_delay", 30*time.Second)
	v.SetDefault("scheduler.max_retry_delay", 5*time.Minute)
	v.SetDefault("scheduler.history_size", 50)
}

// Load reads configuration from file and environment variables.
// A missing config file is not an error; defaults and env apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/secureguard")
	}

	v.SetEnvPrefix("SECUREGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// viper doesn't auto-bind nested struct fields
	v.BindEnv("storage.driver", "SECUREGUARD_STORAGE_DRIVER")
	v.BindEnv("redis.enabled", "SECUREGUARD_REDIS_ENABLED")
	v.BindEnv("redis.host", "SECUREGUARD_REDIS_HOST")
	v.BindEnv("redis.password", "SECUREGUARD_REDIS_PASSWORD")
	v.BindEnv("database.url", "SECUREGUARD_DATABASE_URL")
	v.BindEnv("database.host", "SECUREGUARD_DATABASE_HOST")
	v.BindEnv("database.password", "SECUREGUARD_DATABASE_PASSWORD")
	v.BindEnv("nats.enabled", "SECUREGUARD_NATS_ENABLED")
	v.BindEnv("nats.url", "SECUREGUARD_NATS_URL")
	v.BindEnv("model.path", "SECUREGUARD_MODEL_PATH")
	v.BindEnv("app.environment", "SECUREGUARD_APP_ENVIRONMENT")
	v.BindEnv("auth.api_key", "SECUREGUARD_AUTH_API_KEY")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadDefault loads configuration with default path
func LoadDefault() (*Config, error) {
	return Load("")
}

// Validate checks values that would otherwise fail late at runtime
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid storage.driver %q", c.Storage.Driver)
	}
	switch c.Registry.Source {
	case "inventory", "adb":
	default:
		return fmt.Errorf("invalid registry.source %q", c.Registry.Source)
	}
	if c.Scan.AIThreshold <= 0 || c.Scan.AIThreshold > 1 {
		return fmt.Errorf("scan.ai_threshold must be in (0,1], got %v", c.Scan.AIThreshold)
	}
	if c.Scan.Workers < 1 {
		return fmt.Errorf("scan.workers must be >= 1, got %d", c.Scan.Workers)
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute < 1 {
		return fmt.Errorf("rate_limit.requests_per_minute must be >= 1")
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive")
	}
	return nil
}
