package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tasktrack/pkg/idp"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Storage.PostgresURL = "postgres://localhost/tasktrack"
	cfg.Identity.ProjectID = "demo-project"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, StoragePostgres, cfg.Storage.Type)
	assert.Equal(t, BackendNone, cfg.Cache.Type)
	assert.Empty(t, cfg.Server.TrustedProxies)
	assert.Equal(t, idp.ProviderFirebase, cfg.Identity.Provider)
	assert.Equal(t, 10*time.Second, cfg.Identity.Timeout)
	assert.Equal(t, "strict", cfg.Session.HandlePolicy)
	assert.Zero(t, cfg.Session.MaxAge)
	assert.True(t, cfg.RateLimit.Enabled)

	require.NoError(t, validConfig().Validate())
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Setenv("TASKTRACK_PORT", "8000")
	t.Setenv("TASKTRACK_STORAGE_TYPE", "memory")
	t.Setenv("TASKTRACK_IDP_PROVIDER", "hmac")
	t.Setenv("TASKTRACK_IDP_HMAC_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("TASKTRACK_IDP_TIMEOUT", "3s")
	t.Setenv("TASKTRACK_SESSION_MAX_AGE", "24h")
	t.Setenv("TASKTRACK_CORS_ALLOWED_ORIGINS", "https://a.example.com,https://b.example.com")
	t.Setenv("TASKTRACK_RATE_LIMIT_ENABLED", "false")
	t.Setenv("TASKTRACK_TRUSTED_PROXIES", "10.0.0.0/8,192.0.2.10")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8000", cfg.Server.Addr())
	assert.Equal(t, StorageMemory, cfg.Storage.Type)
	assert.Equal(t, idp.ProviderHMAC, cfg.Identity.Provider)
	assert.Equal(t, 3*time.Second, cfg.Identity.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.Session.MaxAge)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.CORSAllowedOrigins)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.10"}, cfg.Server.TrustedProxies)

	// untouched values keep their defaults
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
}

func TestLoadConfig_FileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasktrack.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "7000"
  path_prefix: /api
storage:
  type: memory
identity:
  provider: oidc
  issuer_url: https://issuer.example.com
  client_id: tasktrack
  timeout: 2s
session:
  handle_policy: lax
`), 0o600))

	t.Setenv(FileEnvVar, path)
	t.Setenv("TASKTRACK_PORT", "7100")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "7100", cfg.Server.Port, "environment wins over file")
	assert.Equal(t, "/api", cfg.Server.PathPrefix)
	assert.Equal(t, idp.ProviderOIDC, cfg.Identity.Provider)
	assert.Equal(t, 2*time.Second, cfg.Identity.Timeout)
	assert.Equal(t, "lax", cfg.Session.HandlePolicy)
	assert.Equal(t, "9090", cfg.Server.HealthPort)

	vc := cfg.Identity.VerifierConfig()
	assert.Equal(t, "https://issuer.example.com", vc.IssuerURL)
	assert.Equal(t, "tasktrack", vc.ClientID)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		t.Setenv(FileEnvVar, filepath.Join(t.TempDir(), "absent.yaml"))
		_, err := LoadConfig()
		assert.Error(t, err)
	})

	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("TASKTRACK_STORAGE_TYPE", "memory")
		t.Setenv("TASKTRACK_FIREBASE_PROJECT_ID", "p")
		t.Setenv("TASKTRACK_IDP_TIMEOUT", "soon")
		_, err := LoadConfig()
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid"},
		{name: "missing port", mutate: func(c *Config) { c.Server.Port = "" }, wantErr: "server port is required"},
		{name: "same ports", mutate: func(c *Config) { c.Server.HealthPort = c.Server.Port }, wantErr: "must be different"},
		{name: "bad trusted proxy", mutate: func(c *Config) { c.Server.TrustedProxies = []string{"10.0.0.0/40"} }, wantErr: "invalid trusted proxy"},
		{name: "postgres without url", mutate: func(c *Config) { c.Storage.PostgresURL = "" }, wantErr: "postgres URL is required"},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Type = "s3" }, wantErr: "invalid storage type"},
		{name: "redis cache without url", mutate: func(c *Config) { c.Cache.Type = BackendRedis }, wantErr: "redis URL is required for redis cache"},
		{name: "unknown cache", mutate: func(c *Config) { c.Cache.Type = "disk" }, wantErr: "invalid cache type"},
		{name: "redis limiter without url", mutate: func(c *Config) { c.RateLimit.Backend = BackendRedis }, wantErr: "redis rate limiting"},
		{name: "zero limit", mutate: func(c *Config) { c.RateLimit.UserPerMinute = 0 }, wantErr: "rate limits must be positive"},
		{name: "limits ignored when disabled", mutate: func(c *Config) { c.RateLimit.Enabled = false; c.RateLimit.UserPerMinute = 0 }},
		{name: "firebase without project", mutate: func(c *Config) { c.Identity.ProjectID = "" }, wantErr: "project id is required"},
		{name: "oidc without issuer", mutate: func(c *Config) { c.Identity.Provider = idp.ProviderOIDC }, wantErr: "issuer URL and client id"},
		{name: "short hmac secret", mutate: func(c *Config) {
			c.Identity.Provider = idp.ProviderHMAC
			c.Identity.HMACSecret = "short"
		}, wantErr: "at least 32 bytes"},
		{name: "unknown provider", mutate: func(c *Config) { c.Identity.Provider = "saml" }, wantErr: "invalid identity provider"},
		{name: "zero timeout", mutate: func(c *Config) { c.Identity.Timeout = 0 }, wantErr: "timeout must be positive"},
		{name: "negative max age", mutate: func(c *Config) { c.Session.MaxAge = -time.Hour }, wantErr: "must not be negative"},
		{name: "unknown policy", mutate: func(c *Config) { c.Session.HandlePolicy = "yolo" }, wantErr: "unknown handle update policy"},
		{name: "otel without endpoint", mutate: func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelEndpoint = ""
		}, wantErr: "OpenTelemetry endpoint is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
