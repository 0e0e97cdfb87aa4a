package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/tasktrack/pkg/auth"
	"github.com/platinummonkey/tasktrack/pkg/observability"
	"github.com/platinummonkey/tasktrack/pkg/storage"
)

// ErrCacheEviction means credentials were deleted from the store but may
// still be served from the lookup cache.
var ErrCacheEviction = errors.New("session cache eviction failed")

// LookupStatus is the outcome of resolving a local credential
type LookupStatus int

const (
	// LookupNotFound covers unknown ids, wrong secrets, expired records and
	// records whose owner no longer exists.
	LookupNotFound LookupStatus = iota
	LookupFound
	// LookupMalformed means the bearer had the delimiter but not the shape
	LookupMalformed
)

func (s LookupStatus) String() string {
	switch s {
	case LookupFound:
		return "found"
	case LookupMalformed:
		return "malformed"
	default:
		return "not_found"
	}
}

// LookupResult carries User and Token only when Status is LookupFound
type LookupResult struct {
	Status LookupStatus
	User   *auth.User
	Token  *auth.SessionToken
}

// IssuedToken is returned once at login. Plaintext is never stored.
type IssuedToken struct {
	Plaintext string
	Token     *auth.SessionToken
}

// Manager issues and resolves session credentials
type Manager struct {
	store   storage.Store
	cache   Cache
	tokens  *auth.TokenGenerator
	maxAge  time.Duration
	metrics *observability.Metrics
	logger  *observability.Logger
	now     func() time.Time
}

// Option configures a Manager
type Option func(*Manager)

// WithCache puts a lookup cache in front of the store
func WithCache(cache Cache) Option {
	return func(m *Manager) { m.cache = cache }
}

// WithMaxAge makes credentials older than maxAge invalid. Zero disables expiry.
func WithMaxAge(maxAge time.Duration) Option {
	return func(m *Manager) { m.maxAge = maxAge }
}

func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

func WithLogger(logger *observability.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a session manager over store
func NewManager(store storage.Store, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		tokens: auth.NewTokenGenerator(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MaxAge returns the configured credential lifetime
func (m *Manager) MaxAge() time.Duration {
	return m.maxAge
}

func (m *Manager) log(ctx context.Context) *observability.Logger {
	if m.logger != nil {
		return m.logger
	}
	return observability.FromContext(ctx)
}

// Issue deletes every prior credential of userID and creates a new one
func (m *Manager) Issue(ctx context.Context, userID int64) (*IssuedToken, error) {
	generated, err := m.tokens.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	token := &auth.SessionToken{
		PublicID:   generated.PublicID,
		UserID:     userID,
		SecretHash: generated.SecretHash,
		Name:       auth.DefaultTokenName,
		CreatedAt:  m.now().UTC(),
	}

	revoked, err := m.store.ReplaceUserTokens(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to store token: %w", err)
	}
	if err := m.evict(ctx, revoked...); err != nil {
		return nil, err
	}

	if m.metrics != nil {
		m.metrics.SessionTokensIssued.Inc()
	}

	return &IssuedToken{Plaintext: generated.Plaintext, Token: token}, nil
}

// Lookup resolves a local credential. The error is non-nil only for
// infrastructure failures; every rejection is reported through Status.
func (m *Manager) Lookup(ctx context.Context, bearer string) (LookupResult, error) {
	publicID, secret, ok := m.tokens.ParseToken(bearer)
	if !ok {
		return LookupResult{Status: LookupMalformed}, nil
	}

	token, err := m.findToken(ctx, publicID)
	if errors.Is(err, storage.ErrNotFound) {
		return LookupResult{Status: LookupNotFound}, nil
	}
	if err != nil {
		return LookupResult{}, err
	}

	if !m.tokens.SecretMatches(secret, token.SecretHash) {
		return LookupResult{Status: LookupNotFound}, nil
	}
	if token.Expired(m.now(), m.maxAge) {
		return LookupResult{Status: LookupNotFound}, nil
	}

	user, err := m.store.GetUserByID(ctx, token.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		// the lookup is already a rejection; evict logs its own failure
		_ = m.evict(ctx, publicID)
		return LookupResult{Status: LookupNotFound}, nil
	}
	if err != nil {
		return LookupResult{}, fmt.Errorf("failed to load token owner: %w", err)
	}

	return LookupResult{Status: LookupFound, User: user, Token: token}, nil
}

func (m *Manager) findToken(ctx context.Context, publicID string) (*auth.SessionToken, error) {
	if m.cache != nil {
		token, ok, err := m.cache.Get(ctx, publicID)
		if err != nil {
			m.log(ctx).WithError(err).Warn("session cache read failed")
		} else if ok {
			return token, nil
		}
	}

	token, err := m.store.GetToken(ctx, publicID)
	if err != nil {
		return nil, err
	}

	if m.cache != nil {
		if err := m.fill(ctx, token); err != nil {
			return nil, err
		}
	}
	return token, nil
}

// fill caches token and then re-reads it from the store. A delete that
// commits after our first read either evicts after the Set or is seen by the
// re-read, so a superseded record never stays cached.
func (m *Manager) fill(ctx context.Context, token *auth.SessionToken) error {
	if err := m.cache.Set(ctx, token); err != nil {
		m.log(ctx).WithError(err).Warn("session cache write failed")
		return nil
	}

	_, err := m.store.GetToken(ctx, token.PublicID)
	if err == nil {
		return nil
	}
	if derr := m.cache.Delete(ctx, token.PublicID); derr != nil {
		m.log(ctx).WithError(derr).WithField("public_id", token.PublicID).Error("failed to drop unconfirmed cache entry")
	}
	return err
}

// Revoke deletes one credential
func (m *Manager) Revoke(ctx context.Context, publicID string) error {
	if err := m.store.DeleteToken(ctx, publicID); err != nil {
		return err
	}
	return m.evict(ctx, publicID)
}

// RevokeAll deletes every credential owned by userID
func (m *Manager) RevokeAll(ctx context.Context, userID int64) error {
	revoked, err := m.store.DeleteUserTokens(ctx, userID)
	if err != nil {
		return err
	}
	return m.evict(ctx, revoked...)
}

// Prune deletes credentials older than the max age and returns how many
// were removed. It does nothing when no max age is configured.
func (m *Manager) Prune(ctx context.Context) (int, error) {
	if m.maxAge <= 0 {
		return 0, nil
	}

	cutoff := m.now().Add(-m.maxAge)
	pruned, err := m.store.DeleteTokensCreatedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune tokens: %w", err)
	}
	if m.metrics != nil {
		m.metrics.SessionTokensPruned.Add(float64(len(pruned)))
	}
	if err := m.evict(ctx, pruned...); err != nil {
		return len(pruned), err
	}
	return len(pruned), nil
}

// evict drops deleted credentials from the cache. A failure is returned
// because the dropped records would otherwise keep resolving until the TTL.
func (m *Manager) evict(ctx context.Context, publicIDs ...string) error {
	if m.cache == nil || len(publicIDs) == 0 {
		return nil
	}
	if err := m.cache.Delete(ctx, publicIDs...); err != nil {
		m.log(ctx).WithError(err).WithField("count", len(publicIDs)).Error("session cache eviction failed")
		return fmt.Errorf("%w: %v", ErrCacheEviction, err)
	}
	return nil
}
