// Package config provides application configuration management.
//
// # Overview
//
// Configuration is layered: DefaultConfig, then an optional YAML file named by
// TASKTRACK_CONFIG_FILE, then TASKTRACK_* environment variables, then
// Validate.
//
// # Configuration Structure
//
// Server settings:
//
//	TASKTRACK_HOST="0.0.0.0"
//	TASKTRACK_PORT="8080"
//	TASKTRACK_HEALTH_PORT="9090"
//	TASKTRACK_API_PREFIX="/api"
//	TASKTRACK_CORS_ALLOWED_ORIGINS="https://app.example.com,http://localhost:3000"
//
// Storage settings:
//
//	TASKTRACK_STORAGE_TYPE="postgres"  # postgres, memory
//	TASKTRACK_POSTGRES_URL="postgres://localhost/tasktrack?sslmode=disable"
//	TASKTRACK_POSTGRES_MAX_CONNS="20"
//	TASKTRACK_AUTO_MIGRATE="true"
//	TASKTRACK_REDIS_URL="redis://localhost:6379"
//
// Cache and rate limiting:
//
//	TASKTRACK_CACHE_TYPE="memory"  # none, memory, redis
//	TASKTRACK_CACHE_TTL="5m"
//	TASKTRACK_RATE_LIMIT_ENABLED="true"
//	TASKTRACK_RATE_LIMIT_BACKEND="redis"  # memory, redis
//
// Identity provider:
//
//	TASKTRACK_IDP_PROVIDER="firebase"  # firebase, oidc, hmac
//	TASKTRACK_FIREBASE_PROJECT_ID="my-project"
//	TASKTRACK_OIDC_ISSUER_URL="https://accounts.example.com"
//	TASKTRACK_OIDC_CLIENT_ID="tasktrack"
//	TASKTRACK_IDP_HMAC_SECRET="..."  # development only
//	TASKTRACK_IDP_TIMEOUT="10s"
//
// Sessions:
//
//	TASKTRACK_SESSION_MAX_AGE="720h"  # 0 keeps credentials until the next login
//	TASKTRACK_SESSION_PRUNE_SCHEDULE="0 * * * *"
//	TASKTRACK_HANDLE_UPDATE_POLICY="strict"  # strict, lax
//
// Observability settings:
//
//	TASKTRACK_LOG_LEVEL="info"  # debug, info, warn, error
//	TASKTRACK_METRICS_ENABLED="true"
//	TASKTRACK_OTEL_ENABLED="true"
//	TASKTRACK_OTEL_ENDPOINT="otel-collector:4317"
//
// The YAML file uses the same sections in snake_case:
//
//	server:
//	  port: "8080"
//	identity:
//	  provider: oidc
//	  issuer_url: https://accounts.example.com
//	  client_id: tasktrack
package config
