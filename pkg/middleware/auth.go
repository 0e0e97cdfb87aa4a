package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/platinummonkey/tasktrack/pkg/auth"
	"github.com/platinummonkey/tasktrack/pkg/contextkeys"
	"github.com/platinummonkey/tasktrack/pkg/httputil"
	"github.com/platinummonkey/tasktrack/pkg/idp"
	"github.com/platinummonkey/tasktrack/pkg/observability"
	"github.com/platinummonkey/tasktrack/pkg/provision"
	"github.com/platinummonkey/tasktrack/pkg/session"
)

// Response messages for rejected requests
const (
	MsgNoToken      = "Unauthorized: No authentication token provided."
	MsgInvalidToken = "Unauthorized: Invalid authentication token."
)

// errAuthIncomplete replaces internal causes in 401 bodies; the cause is logged
var errAuthIncomplete = errors.New("authentication could not be completed")

// Auth paths used as metrics labels
const (
	PathLocal    = "local"
	PathExternal = "external"
	PathNone     = "none"
)

// SessionLookup resolves locally issued credentials
type SessionLookup interface {
	Lookup(ctx context.Context, bearer string) (session.LookupResult, error)
}

// UserProvisioner maps a verified identity to a local user
type UserProvisioner interface {
	Provision(ctx context.Context, identity *auth.VerifiedIdentity, handle *string) (*provision.Result, error)
}

// Authenticator turns a bearer credential into a principal. The local
// session path is tried first; anything it does not accept goes to the
// external verifier.
type Authenticator struct {
	sessions    SessionLookup
	verifier    idp.Verifier
	provisioner UserProvisioner
	metrics     *observability.Metrics
}

// NewAuthenticator creates an authenticator. metrics may be nil.
func NewAuthenticator(sessions SessionLookup, verifier idp.Verifier, provisioner UserProvisioner, metrics *observability.Metrics) *Authenticator {
	return &Authenticator{
		sessions:    sessions,
		verifier:    verifier,
		provisioner: provisioner,
		metrics:     metrics,
	}
}

// Authenticate resolves bearer. Errors wrap auth.ErrMissingCredential,
// auth.ErrInvalidCredential, auth.ErrVerifierUnavailable or
// auth.ErrInvalidIdentity, except provisioning infrastructure failures.
func (a *Authenticator) Authenticate(ctx context.Context, bearer string) (*auth.Principal, error) {
	if bearer == "" {
		a.metrics.RecordAuth(PathNone, observability.OutcomeMissing)
		return nil, auth.ErrMissingCredential
	}

	logger := observability.FromContext(ctx)

	if auth.LooksLocal(bearer) {
		res, err := a.sessions.Lookup(ctx, bearer)
		switch {
		case err != nil:
			logger.WithError(err).Warn("local token lookup failed, trying identity provider")
			a.metrics.RecordAuth(PathLocal, observability.OutcomeError)
		case res.Status == session.LookupFound:
			a.metrics.RecordAuth(PathLocal, observability.OutcomeSuccess)
			return &auth.Principal{User: res.User, Method: auth.MethodSession, Token: res.Token}, nil
		default:
			logger.WithField("status", res.Status.String()).Debug("local token not accepted, trying identity provider")
			a.metrics.RecordAuth(PathLocal, observability.OutcomeInvalid)
		}
	}

	identity, err := a.verifier.Verify(ctx, bearer)
	if err != nil {
		if !isAuthError(err) {
			err = fmt.Errorf("%w: %v", auth.ErrInvalidCredential, err)
		}
		a.metrics.RecordAuth(PathExternal, idp.Outcome(err))
		return nil, err
	}

	res, err := a.provisioner.Provision(ctx, identity, nil)
	if err != nil {
		a.metrics.RecordAuth(PathExternal, observability.OutcomeError)
		return nil, fmt.Errorf("failed to provision user: %w", err)
	}

	a.metrics.RecordAuth(PathExternal, observability.OutcomeSuccess)
	return &auth.Principal{User: res.User, Method: auth.MethodExternal}, nil
}

func isAuthError(err error) bool {
	return errors.Is(err, auth.ErrInvalidCredential) ||
		errors.Is(err, auth.ErrVerifierUnavailable) ||
		errors.Is(err, auth.ErrInvalidIdentity)
}

// Handler requires a valid credential. Every failure ends in one 401.
func (a *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		principal, err := a.Authenticate(ctx, httputil.BearerToken(r))
		if err != nil {
			logger := observability.FromContext(ctx).WithError(err)
			if errors.Is(err, auth.ErrMissingCredential) {
				logger.Info("request without credential")
				httputil.WriteUnauthorized(w, MsgNoToken, err)
				return
			}
			logger.Error("authentication failed")
			if !isAuthError(err) {
				err = errAuthIncomplete
			}
			httputil.WriteUnauthorized(w, MsgInvalidToken, err)
			return
		}

		ctx = contextkeys.WithPrincipal(ctx, principal)
		ctx = contextkeys.WithUserID(ctx, principal.User.ID)
		ctx = observability.WithLogger(ctx, observability.FromContext(ctx).WithField("user_id", principal.User.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetPrincipal returns the principal set by Authenticator.Handler, or nil
func GetPrincipal(r *http.Request) *auth.Principal {
	return PrincipalFromContext(r.Context())
}

// PrincipalFromContext returns the principal stored in ctx, or nil
func PrincipalFromContext(ctx context.Context) *auth.Principal {
	p, ok := ctx.Value(contextkeys.PrincipalKey).(*auth.Principal)
	if !ok {
		return nil
	}
	return p
}
