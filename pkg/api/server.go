package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/tasktrack/pkg/auth"
	"github.com/platinummonkey/tasktrack/pkg/httputil"
	"github.com/platinummonkey/tasktrack/pkg/idp"
	"github.com/platinummonkey/tasktrack/pkg/middleware"
	"github.com/platinummonkey/tasktrack/pkg/observability"
)

// DefaultMaxBodyBytes caps request bodies
const DefaultMaxBodyBytes = 1 << 20

// Options configures the HTTP surface around the handlers
type Options struct {
	Logger  *observability.Logger
	Metrics *observability.Metrics

	// PathPrefix mounts every route under a prefix, e.g. "/api"
	PathPrefix         string
	CORSAllowedOrigins []string
	MaxBodyBytes       int64

	// TrustedProxies may report the client address in forwarding headers
	TrustedProxies httputil.TrustedProxies

	// LoginLimiter and UserLimiter are optional
	LoginLimiter middleware.Limiter
	UserLimiter  middleware.Limiter

	// Tracing wraps the router with otelhttp
	Tracing bool
}

// Server is the public API server
type Server struct {
	router       *mux.Router
	handler      http.Handler
	authHandlers *AuthHandlers
	authn        *middleware.Authenticator
}

// NewServer wires the auth handlers and middleware into a router
func NewServer(verifier idp.Verifier, provisioner middleware.UserProvisioner, sessions Sessions, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.ParseLevel("info"), nil)
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	s := &Server{
		router:       mux.NewRouter(),
		authHandlers: NewAuthHandlers(verifier, provisioner, sessions, auth.NewAuditLogger(logger)),
		authn:        middleware.NewAuthenticator(sessions, verifier, provisioner, opts.Metrics),
	}
	if opts.Metrics != nil {
		// route templates are only known inside the router
		s.router.Use(observability.HTTPMetricsMiddleware(opts.Metrics))
	}
	s.setupRoutes(opts)

	var handler http.Handler = httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.ClientIPMiddleware(opts.TrustedProxies),
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware(logger),
		httputil.CORSMiddleware(opts.CORSAllowedOrigins),
		httputil.MaxBytesMiddleware(opts.MaxBodyBytes),
	)(s.router)
	if opts.Tracing {
		handler = otelhttp.NewHandler(handler, "tasktrack")
	}
	s.handler = handler

	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(opts Options) {
	root := s.router
	if opts.PathPrefix != "" {
		root = s.router.PathPrefix(opts.PathPrefix).Subrouter()
	}

	public := root.NewRoute().Subrouter()
	if opts.LoginLimiter != nil {
		public.Use(middleware.NewRateLimitMiddleware(opts.LoginLimiter, "login", middleware.ByClientIP, opts.Metrics).Handler)
	}
	s.authHandlers.RegisterPublicRoutes(public)

	protected := root.NewRoute().Subrouter()
	protected.Use(s.authn.Handler)
	if opts.UserLimiter != nil {
		protected.Use(middleware.NewRateLimitMiddleware(opts.UserLimiter, "user", middleware.ByUser, opts.Metrics).Handler)
	}
	s.authHandlers.RegisterProtectedRoutes(protected)
}

// Router exposes the router so other route groups can be mounted
func (s *Server) Router() *mux.Router {
	return s.router
}

// Authenticator returns the middleware guarding protected routes
func (s *Server) Authenticator() *middleware.Authenticator {
	return s.authn
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
