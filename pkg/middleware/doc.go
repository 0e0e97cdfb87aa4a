// Package middleware provides HTTP middleware for authentication and rate limiting.
//
// # Authentication
//
// Authenticator resolves the bearer credential on protected routes. A
// credential with the local shape (<public id>|<secret>) is looked up in the
// session store first; anything not accepted there is sent to the identity
// provider and the verified subject is provisioned as a local user. Every
// failure ends in a single 401:
//
//	authn := middleware.NewAuthenticator(sessions, verifier, provisioner, metrics)
//	protected.Use(authn.Handler)
//
// Handlers read the caller with GetPrincipal.
//
// # Rate Limiting
//
// MemoryLimiter is a per-process token bucket. RedisLimiter is a fixed
// window shared across instances. Both satisfy Limiter:
//
//	limiter := middleware.NewRedisLimiter(redisClient, middleware.LoginRateLimitConfig(), "")
//	router.Use(middleware.NewRateLimitMiddleware(limiter, "login", middleware.ByClientIP, metrics).Handler)
//
// Defaults:
//
//	Login: 20 req/min per client address, 5 burst
//	User:  600 req/min per user, 50 burst
//
// Limiter errors fail open.
package middleware
