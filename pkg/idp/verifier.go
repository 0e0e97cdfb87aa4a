package idp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/platinummonkey/tasktrack/pkg/auth"
	"github.com/platinummonkey/tasktrack/pkg/observability"
)

// Verifier validates an externally issued ID token and returns its identity.
//
// Errors wrap auth.ErrInvalidCredential, auth.ErrVerifierUnavailable or
// auth.ErrInvalidIdentity.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (*auth.VerifiedIdentity, error)
}

// identityClaims are the optional profile claims read from a verified token
type identityClaims struct {
	Email       string `json:"email"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

func newIdentity(subject string, c identityClaims) (*auth.VerifiedIdentity, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, auth.ErrInvalidIdentity
	}
	return &auth.VerifiedIdentity{
		Subject:     subject,
		Email:       c.Email,
		DisplayName: c.DisplayName,
		Name:        c.Name,
	}, nil
}

// classify wraps a verification failure in the matching sentinel
func classify(ctx context.Context, err error) error {
	if errors.Is(err, auth.ErrInvalidIdentity) ||
		errors.Is(err, auth.ErrInvalidCredential) ||
		errors.Is(err, auth.ErrVerifierUnavailable) {
		return err
	}

	var netErr net.Error
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", auth.ErrVerifierUnavailable, err)
	}
	return fmt.Errorf("%w: %v", auth.ErrInvalidCredential, err)
}

// Bounded limits each verification to a timeout and records its duration
type Bounded struct {
	next    Verifier
	timeout time.Duration
	metrics *observability.Metrics
}

var _ Verifier = (*Bounded)(nil)

// NewBounded wraps next. A zero timeout leaves the caller's deadline alone.
func NewBounded(next Verifier, timeout time.Duration, metrics *observability.Metrics) *Bounded {
	return &Bounded{next: next, timeout: timeout, metrics: metrics}
}

func (b *Bounded) Verify(ctx context.Context, rawToken string) (*auth.VerifiedIdentity, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	start := time.Now()
	identity, err := b.next.Verify(ctx, rawToken)
	if err != nil {
		err = classify(ctx, err)
	}

	if b.metrics != nil {
		b.metrics.ExternalVerifyDuration.WithLabelValues(Outcome(err)).Observe(time.Since(start).Seconds())
	}
	return identity, err
}

// Outcome maps a verification result onto a metrics label
func Outcome(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeSuccess
	case errors.Is(err, auth.ErrVerifierUnavailable):
		return observability.OutcomeUnavailable
	case errors.Is(err, auth.ErrInvalidCredential), errors.Is(err, auth.ErrInvalidIdentity):
		return observability.OutcomeInvalid
	default:
		return observability.OutcomeError
	}
}
