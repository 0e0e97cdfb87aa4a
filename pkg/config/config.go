package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/tasktrack/pkg/httputil"
	"github.com/platinummonkey/tasktrack/pkg/idp"
	"github.com/platinummonkey/tasktrack/pkg/provision"
)

// FileEnvVar names the optional YAML file applied before the environment
const FileEnvVar = "TASKTRACK_CONFIG_FILE"

// Storage backends
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Cache and rate limit backends
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Cache         CacheConfig         `yaml:"cache"`
	Identity      IdentityConfig      `yaml:"identity"`
	Session       SessionConfig       `yaml:"session"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" env:"TASKTRACK_HOST"`
	Port            string        `yaml:"port" env:"TASKTRACK_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"TASKTRACK_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"TASKTRACK_WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"TASKTRACK_IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"TASKTRACK_SHUTDOWN_TIMEOUT"`

	// Health/metrics server (separate port for k8s health checks)
	HealthPort string `yaml:"health_port" env:"TASKTRACK_HEALTH_PORT"`

	PathPrefix         string   `yaml:"path_prefix" env:"TASKTRACK_API_PREFIX"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"TASKTRACK_CORS_ALLOWED_ORIGINS" envSeparator:","`
	MaxBodyBytes       int64    `yaml:"max_body_bytes" env:"TASKTRACK_MAX_BODY_BYTES"`

	// TrustedProxies may set X-Forwarded-For/X-Real-IP. Empty means the
	// socket peer is always the client.
	TrustedProxies []string `yaml:"trusted_proxies" env:"TASKTRACK_TRUSTED_PROXIES" envSeparator:","`
}

// Addr returns host:port for the API listener
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// StorageConfig selects the persistence backend and the shared Redis client
type StorageConfig struct {
	Type string `yaml:"type" env:"TASKTRACK_STORAGE_TYPE"`

	PostgresURL         string        `yaml:"postgres_url" env:"TASKTRACK_POSTGRES_URL"`
	PostgresMaxConns    int           `yaml:"postgres_max_conns" env:"TASKTRACK_POSTGRES_MAX_CONNS"`
	PostgresMinConns    int           `yaml:"postgres_min_conns" env:"TASKTRACK_POSTGRES_MIN_CONNS"`
	PostgresTimeout     time.Duration `yaml:"postgres_timeout" env:"TASKTRACK_POSTGRES_TIMEOUT"`
	PostgresMaxLifetime time.Duration `yaml:"postgres_max_lifetime" env:"TASKTRACK_POSTGRES_MAX_LIFETIME"`
	PostgresMaxIdleTime time.Duration `yaml:"postgres_max_idle_time" env:"TASKTRACK_POSTGRES_MAX_IDLE_TIME"`
	AutoMigrate         bool          `yaml:"auto_migrate" env:"TASKTRACK_AUTO_MIGRATE"`

	// Redis backs the shared cache and rate limiter. Empty disables it.
	RedisURL        string `yaml:"redis_url" env:"TASKTRACK_REDIS_URL"`
	RedisPassword   string `yaml:"redis_password" env:"TASKTRACK_REDIS_PASSWORD"`
	RedisDB         int    `yaml:"redis_db" env:"TASKTRACK_REDIS_DB"`
	RedisPoolSize   int    `yaml:"redis_pool_size" env:"TASKTRACK_REDIS_POOL_SIZE"`
	RedisMaxRetries int    `yaml:"redis_max_retries" env:"TASKTRACK_REDIS_MAX_RETRIES"`
}

// CacheConfig configures the session lookup cache
type CacheConfig struct {
	Type string        `yaml:"type" env:"TASKTRACK_CACHE_TYPE"`
	Size int           `yaml:"size" env:"TASKTRACK_CACHE_SIZE"`
	TTL  time.Duration `yaml:"ttl" env:"TASKTRACK_CACHE_TTL"`
}

// IdentityConfig configures external ID token verification
type IdentityConfig struct {
	Provider  string `yaml:"provider" env:"TASKTRACK_IDP_PROVIDER"`
	ProjectID string `yaml:"project_id" env:"TASKTRACK_FIREBASE_PROJECT_ID"`
	IssuerURL string `yaml:"issuer_url" env:"TASKTRACK_OIDC_ISSUER_URL"`
	ClientID  string `yaml:"client_id" env:"TASKTRACK_OIDC_CLIENT_ID"`
	JWKSURL   string `yaml:"jwks_url" env:"TASKTRACK_OIDC_JWKS_URL"`

	HMACSecret string `yaml:"hmac_secret" env:"TASKTRACK_IDP_HMAC_SECRET"`
	Issuer     string `yaml:"issuer" env:"TASKTRACK_IDP_ISSUER"`
	Audience   string `yaml:"audience" env:"TASKTRACK_IDP_AUDIENCE"`

	Timeout time.Duration `yaml:"timeout" env:"TASKTRACK_IDP_TIMEOUT"`
}

// VerifierConfig converts to the idp package configuration
func (c IdentityConfig) VerifierConfig() idp.Config {
	return idp.Config{
		Provider:   c.Provider,
		ProjectID:  c.ProjectID,
		IssuerURL:  c.IssuerURL,
		ClientID:   c.ClientID,
		JWKSURL:    c.JWKSURL,
		HMACSecret: c.HMACSecret,
		Issuer:     c.Issuer,
		Audience:   c.Audience,
		Timeout:    c.Timeout,
	}
}

// SessionConfig configures local credentials and provisioning
type SessionConfig struct {
	// MaxAge of zero keeps credentials until superseded or revoked
	MaxAge        time.Duration `yaml:"max_age" env:"TASKTRACK_SESSION_MAX_AGE"`
	PruneSchedule string        `yaml:"prune_schedule" env:"TASKTRACK_SESSION_PRUNE_SCHEDULE"`
	HandlePolicy  string        `yaml:"handle_policy" env:"TASKTRACK_HANDLE_UPDATE_POLICY"`
}

// RateLimitConfig configures request throttling
type RateLimitConfig struct {
	Enabled        bool   `yaml:"enabled" env:"TASKTRACK_RATE_LIMIT_ENABLED"`
	Backend        string `yaml:"backend" env:"TASKTRACK_RATE_LIMIT_BACKEND"`
	LoginPerMinute int    `yaml:"login_per_minute" env:"TASKTRACK_RATE_LIMIT_LOGIN_PER_MINUTE"`
	LoginBurst     int    `yaml:"login_burst" env:"TASKTRACK_RATE_LIMIT_LOGIN_BURST"`
	UserPerMinute  int    `yaml:"user_per_minute" env:"TASKTRACK_RATE_LIMIT_USER_PER_MINUTE"`
	UserBurst      int    `yaml:"user_burst" env:"TASKTRACK_RATE_LIMIT_USER_BURST"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel string `yaml:"log_level" env:"TASKTRACK_LOG_LEVEL"`

	MetricsEnabled bool `yaml:"metrics_enabled" env:"TASKTRACK_METRICS_ENABLED"`

	// OpenTelemetry
	OTelEnabled        bool   `yaml:"otel_enabled" env:"TASKTRACK_OTEL_ENABLED"`
	OTelEndpoint       string `yaml:"otel_endpoint" env:"TASKTRACK_OTEL_ENDPOINT"`
	OTelServiceName    string `yaml:"otel_service_name" env:"TASKTRACK_OTEL_SERVICE_NAME"`
	OTelServiceVersion string `yaml:"otel_service_version" env:"TASKTRACK_OTEL_SERVICE_VERSION"`
	OTelInsecure       bool   `yaml:"otel_insecure" env:"TASKTRACK_OTEL_INSECURE"` // Use insecure gRPC connection
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               "8080",
			ReadTimeout:        15 * time.Second,
			WriteTimeout:       15 * time.Second,
			IdleTimeout:        60 * time.Second,
			ShutdownTimeout:    30 * time.Second,
			HealthPort:         "9090",
			CORSAllowedOrigins: []string{"http://localhost:3000"},
			MaxBodyBytes:       1 << 20,
		},
		Storage: StorageConfig{
			Type:             StoragePostgres,
			PostgresMaxConns: 20,
			PostgresMinConns: 5,
			PostgresTimeout:  5 * time.Second,
			AutoMigrate:      true,
			RedisPoolSize:    10,
			RedisMaxRetries:  3,
		},
		Cache: CacheConfig{
			// memory is per process and only safe with a single instance
			Type: BackendNone,
			Size: 10000,
			TTL:  5 * time.Minute,
		},
		Identity: IdentityConfig{
			Provider: idp.ProviderFirebase,
			Timeout:  10 * time.Second,
		},
		Session: SessionConfig{
			PruneSchedule: "0 * * * *",
			HandlePolicy:  string(provision.PolicyStrict),
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			Backend:        BackendMemory,
			LoginPerMinute: 20,
			LoginBurst:     5,
			UserPerMinute:  600,
			UserBurst:      50,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "tasktrack",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
	}
}

// LoadConfig builds the configuration: defaults, then the YAML file named by
// TASKTRACK_CONFIG_FILE if set, then TASKTRACK_* environment variables.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv(FileEnvVar); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadFile overlays the YAML file at path onto c. Keys absent from the file
// keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if _, err := httputil.ParseTrustedProxies(c.Server.TrustedProxies); err != nil {
		return err
	}

	// Validate storage config based on type
	switch c.Storage.Type {
	case StorageMemory:
	case StoragePostgres:
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be postgres or memory)", c.Storage.Type)
	}

	switch c.Cache.Type {
	case BackendNone, BackendMemory:
	case BackendRedis:
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("redis URL is required for redis cache")
		}
	default:
		return fmt.Errorf("invalid cache type: %s (must be none, memory, or redis)", c.Cache.Type)
	}

	if c.RateLimit.Enabled {
		switch c.RateLimit.Backend {
		case BackendMemory:
		case BackendRedis:
			if c.Storage.RedisURL == "" {
				return fmt.Errorf("redis URL is required for redis rate limiting")
			}
		default:
			return fmt.Errorf("invalid rate limit backend: %s (must be memory or redis)", c.RateLimit.Backend)
		}
		if c.RateLimit.LoginPerMinute <= 0 || c.RateLimit.UserPerMinute <= 0 {
			return fmt.Errorf("rate limits must be positive")
		}
	}

	if err := c.validateIdentity(); err != nil {
		return err
	}

	if c.Session.MaxAge < 0 {
		return fmt.Errorf("session max age must not be negative")
	}
	if _, err := provision.ParsePolicy(c.Session.HandlePolicy); err != nil {
		return err
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

func (c *Config) validateIdentity() error {
	id := c.Identity
	if id.Timeout <= 0 {
		return fmt.Errorf("identity provider timeout must be positive")
	}

	switch id.Provider {
	case idp.ProviderFirebase:
		if id.ProjectID == "" {
			return fmt.Errorf("firebase project id is required for the firebase provider")
		}
	case idp.ProviderOIDC:
		if id.IssuerURL == "" || id.ClientID == "" {
			return fmt.Errorf("issuer URL and client id are required for the oidc provider")
		}
	case idp.ProviderHMAC:
		if len(id.HMACSecret) < 32 {
			return fmt.Errorf("hmac secret must be at least 32 bytes")
		}
	default:
		return fmt.Errorf("invalid identity provider: %s (must be firebase, oidc, or hmac)", id.Provider)
	}
	return nil
}
