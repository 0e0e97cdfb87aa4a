package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tasktrack/pkg/auth"
	"github.com/platinummonkey/tasktrack/pkg/httputil"
	"github.com/platinummonkey/tasktrack/pkg/idp"
	"github.com/platinummonkey/tasktrack/pkg/middleware"
	"github.com/platinummonkey/tasktrack/pkg/observability"
	"github.com/platinummonkey/tasktrack/pkg/session"
)

// Sessions issues, resolves and revokes local credentials
type Sessions interface {
	middleware.SessionLookup
	Issue(ctx context.Context, userID int64) (*session.IssuedToken, error)
	Revoke(ctx context.Context, publicID string) error
}

// AuthHandlers handles authentication-related HTTP requests
type AuthHandlers struct {
	verifier    idp.Verifier
	provisioner middleware.UserProvisioner
	sessions    Sessions
	audit       *auth.AuditLogger
}

// NewAuthHandlers creates a new auth handlers instance. audit may be nil.
func NewAuthHandlers(verifier idp.Verifier, provisioner middleware.UserProvisioner, sessions Sessions, audit *auth.AuditLogger) *AuthHandlers {
	if audit == nil {
		audit = auth.NewAuditLogger(nil)
	}
	return &AuthHandlers{
		verifier:    verifier,
		provisioner: provisioner,
		sessions:    sessions,
		audit:       audit,
	}
}

// RegisterPublicRoutes registers routes that take no bearer credential
func (h *AuthHandlers) RegisterPublicRoutes(router *mux.Router) {
	router.HandleFunc("/auth/login", h.login).Methods("POST")
	router.HandleFunc("/auth/firebase-login", h.login).Methods("POST")
}

// RegisterProtectedRoutes registers routes behind the authenticator
func (h *AuthHandlers) RegisterProtectedRoutes(router *mux.Router) {
	router.HandleFunc("/auth/logout", h.logout).Methods("POST")
	router.HandleFunc("/user", h.currentUser).Methods("GET")
}

// login handles POST /auth/login
func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx)

	var req LoginRequest
	if err := httputil.ParseJSON(r, &req); err != nil && !errors.Is(err, httputil.ErrEmptyBody) {
		httputil.WriteBadRequest(w, MsgInvalidBody)
		return
	}

	req.IDToken = strings.TrimSpace(req.IDToken)
	if req.IDToken == "" {
		httputil.WriteBadRequest(w, MsgNoIDToken)
		return
	}
	// a login always carries a handle: absent counts as empty, which is
	// required for an unseen subject and ignored for a returning user
	var handle string
	if req.Username != nil {
		handle = strings.TrimSpace(*req.Username)
	}

	identity, err := h.verifier.Verify(ctx, req.IDToken)
	if err != nil {
		logger.WithError(err).Error("ID token verification failed")
		h.audit.LogFromRequest(r, auth.AuditEvent{Action: auth.ActionLogin, Status: auth.AuditFailure, Error: err})
		httputil.WriteUnauthorized(w, MsgLoginFailed, err)
		return
	}

	res, err := h.provisioner.Provision(ctx, identity, &handle)
	if err != nil {
		var verr *auth.ValidationError
		if errors.As(err, &verr) {
			httputil.WriteValidationErrors(w, verr.Fields)
			return
		}
		if errors.Is(err, auth.ErrInvalidIdentity) {
			logger.WithError(err).Error("verified token without subject")
			httputil.WriteUnauthorized(w, MsgLoginFailed, err)
			return
		}
		logger.WithError(err).WithField("subject", identity.Subject).Error("failed to provision user")
		httputil.WriteInternalError(w)
		return
	}

	issued, err := h.sessions.Issue(ctx, res.User.ID)
	if err != nil {
		logger.WithError(err).WithField("user_id", res.User.ID).Error("failed to issue session token")
		httputil.WriteInternalError(w)
		return
	}

	userID := res.User.ID
	h.audit.LogFromRequest(r, auth.AuditEvent{
		Action:  auth.ActionLogin,
		UserID:  &userID,
		Subject: res.User.SubjectID,
		Status:  auth.AuditSuccess,
	})

	httputil.WriteSuccess(w, LoginResponse{
		Message: MsgLoginSucceeded,
		User:    newUserResponse(res.User),
		Token:   issued.Plaintext,
	})
}

// logout handles POST /auth/logout
func (h *AuthHandlers) logout(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r)

	if principal.Method == auth.MethodSession && principal.Token != nil {
		if err := h.sessions.Revoke(r.Context(), principal.Token.PublicID); err != nil {
			observability.FromContext(r.Context()).WithError(err).Error("failed to revoke session token")
			httputil.WriteInternalError(w)
			return
		}
	}

	userID := principal.User.ID
	h.audit.LogFromRequest(r, auth.AuditEvent{
		Action:  auth.ActionLogout,
		UserID:  &userID,
		Subject: principal.User.SubjectID,
		Status:  auth.AuditSuccess,
	})
	httputil.WriteMessage(w, http.StatusOK, MsgLoggedOut)
}

// currentUser handles GET /user
func (h *AuthHandlers) currentUser(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, newUserResponse(middleware.GetPrincipal(r).User))
}
