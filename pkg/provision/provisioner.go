package provision

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/tasktrack/pkg/auth"
	"github.com/platinummonkey/tasktrack/pkg/observability"
	"github.com/platinummonkey/tasktrack/pkg/storage"
)

// Policy controls handle changes supplied by returning users
type Policy string

const (
	// PolicyStrict re-validates length and uniqueness before changing a handle
	PolicyStrict Policy = "strict"
	// PolicyLax skips the uniqueness pre-check; only the store's unique
	// constraint can reject a taken handle
	PolicyLax Policy = "lax"
)

// ParsePolicy accepts "strict" or "lax". Empty means strict.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyStrict:
		return PolicyStrict, nil
	case PolicyLax:
		return PolicyLax, nil
	}
	return "", fmt.Errorf("unknown handle update policy %q", s)
}

// Result is the outcome of Provision
type Result struct {
	User            *auth.User
	Created         bool
	UsernameChanged bool
}

// Provisioner maps verified identities onto local users, creating them on
// first sight.
type Provisioner struct {
	users   storage.UserStore
	policy  Policy
	metrics *observability.Metrics
	audit   *auth.AuditLogger
	group   singleflight.Group
}

// Option configures a Provisioner
type Option func(*Provisioner)

func WithPolicy(policy Policy) Option {
	return func(p *Provisioner) { p.policy = policy }
}

func WithMetrics(metrics *observability.Metrics) Option {
	return func(p *Provisioner) { p.metrics = metrics }
}

func WithAuditLogger(audit *auth.AuditLogger) Option {
	return func(p *Provisioner) { p.audit = audit }
}

// New creates a provisioner over users
func New(users storage.UserStore, opts ...Option) *Provisioner {
	p := &Provisioner{
		users:  users,
		policy: PolicyStrict,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Provision resolves identity to exactly one user. handle is the optional
// client-supplied username; nil means the client did not send one.
//
// Concurrent calls for the same subject and handle share one execution.
// Validation failures are returned as *auth.ValidationError.
func (p *Provisioner) Provision(ctx context.Context, identity *auth.VerifiedIdentity, handle *string) (*Result, error) {
	if identity == nil || identity.Subject == "" {
		return nil, auth.ErrInvalidIdentity
	}

	// the shared execution must not fail because one waiter went away
	sharedCtx := context.WithoutCancel(ctx)

	v, err, _ := p.group.Do(flightKey(identity.Subject, handle), func() (interface{}, error) {
		return p.provision(sharedCtx, identity, handle)
	})
	if err != nil {
		return nil, err
	}

	res := *v.(*Result)
	user := *res.User
	res.User = &user
	return &res, nil
}

func flightKey(subject string, handle *string) string {
	if handle == nil {
		return subject + "\x00-"
	}
	return subject + "\x00+" + *handle
}

func (p *Provisioner) provision(ctx context.Context, identity *auth.VerifiedIdentity, handle *string) (*Result, error) {
	user, err := p.users.GetUserBySubject(ctx, identity.Subject)
	switch {
	case err == nil:
		return p.updateReturning(ctx, user, handle)
	case errors.Is(err, storage.ErrNotFound):
		return p.create(ctx, identity, handle)
	default:
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
}

func (p *Provisioner) create(ctx context.Context, identity *auth.VerifiedIdentity, handle *string) (*Result, error) {
	if handle != nil {
		if verr := p.validateHandle(ctx, *handle, 0); verr != nil {
			return nil, verr
		}
	}

	candidate := &auth.User{
		SubjectID: identity.Subject,
		Email:     identity.Email,
		Name:      identity.ResolveDisplayName(handle),
		Username:  handle,
	}

	user, created, err := p.users.CreateUserIfAbsent(ctx, candidate)
	if errors.Is(err, storage.ErrDuplicateUsername) {
		return nil, auth.NewValidationError(auth.HandleField, auth.MsgHandleTaken)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if !created {
		// another instance created the row first
		return p.updateReturning(ctx, user, handle)
	}

	if p.metrics != nil {
		p.metrics.UsersProvisionedTotal.Inc()
	}
	p.record(ctx, auth.ActionUserCreated, user)
	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"user_id": user.ID,
		"subject": user.SubjectID,
	}).Info("provisioned new user")

	return &Result{User: user, Created: true}, nil
}

func (p *Provisioner) updateReturning(ctx context.Context, user *auth.User, handle *string) (*Result, error) {
	if handle == nil || *handle == "" || user.HandleEquals(*handle) {
		return &Result{User: user}, nil
	}

	if p.policy == PolicyStrict {
		if verr := p.validateHandle(ctx, *handle, user.ID); verr != nil {
			return nil, verr
		}
	} else if verr := auth.ValidateHandle(*handle); verr != nil {
		// the column cannot hold it either way
		return nil, verr
	}

	updated, err := p.users.UpdateUsername(ctx, user.ID, *handle)
	if errors.Is(err, storage.ErrDuplicateUsername) {
		return nil, auth.NewValidationError(auth.HandleField, auth.MsgHandleTaken)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update username: %w", err)
	}

	p.record(ctx, auth.ActionHandleChange, updated)
	return &Result{User: updated, UsernameChanged: true}, nil
}

// validateHandle returns nil, a *auth.ValidationError, or an infrastructure error
func (p *Provisioner) validateHandle(ctx context.Context, handle string, excludeUserID int64) error {
	if verr := auth.ValidateHandle(handle); verr != nil {
		return verr
	}

	taken, err := p.users.UsernameTaken(ctx, handle, excludeUserID)
	if err != nil {
		return fmt.Errorf("failed to check username: %w", err)
	}
	if taken {
		return auth.NewValidationError(auth.HandleField, auth.MsgHandleTaken)
	}
	return nil
}

func (p *Provisioner) record(ctx context.Context, action string, user *auth.User) {
	if p.audit == nil {
		return
	}
	id := user.ID
	p.audit.Log(ctx, auth.AuditEvent{
		Action:  action,
		UserID:  &id,
		Subject: user.SubjectID,
		Status:  auth.AuditSuccess,
	})
}
