package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tasktrack/pkg/auth"
	"github.com/platinummonkey/tasktrack/pkg/observability"
	"github.com/platinummonkey/tasktrack/pkg/storage"
	"github.com/platinummonkey/tasktrack/pkg/storage/memory"
)

func quietLogger() *observability.Logger {
	return observability.NewLogger(logrus.PanicLevel, io.Discard)
}

func newUser(t *testing.T, store *memory.Store, subject string) *auth.User {
	t.Helper()
	user, _, err := store.CreateUserIfAbsent(context.Background(), &auth.User{SubjectID: subject, Name: subject})
	require.NoError(t, err)
	return user
}

// failingStore lets individual calls fail with an infrastructure error
type failingStore struct {
	*memory.Store
	getTokenErr error
}

func (f *failingStore) GetToken(ctx context.Context, publicID string) (*auth.SessionToken, error) {
	if f.getTokenErr != nil {
		return nil, f.getTokenErr
	}
	return f.Store.GetToken(ctx, publicID)
}

// racingStore runs afterRead once, right after the first GetToken returns,
// to interleave a concurrent login with an in-flight lookup.
type racingStore struct {
	*memory.Store
	afterRead func()
}

func (r *racingStore) GetToken(ctx context.Context, publicID string) (*auth.SessionToken, error) {
	token, err := r.Store.GetToken(ctx, publicID)
	if hook := r.afterRead; hook != nil {
		r.afterRead = nil
		hook()
	}
	return token, err
}

// brokenCache fails every Delete
type brokenCache struct {
	*MemoryCache
}

func (b *brokenCache) Delete(ctx context.Context, publicIDs ...string) error {
	return errors.New("redis: connection reset")
}

func TestManager_IssueAndLookup(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	user := newUser(t, store, "sub-1")
	m := NewManager(store, WithLogger(quietLogger()))

	issued, err := m.Issue(ctx, user.ID)
	require.NoError(t, err)
	assert.Contains(t, issued.Plaintext, auth.TokenDelimiter)
	assert.True(t, strings.HasPrefix(issued.Plaintext, issued.Token.PublicID+"|"))
	assert.NotContains(t, issued.Token.SecretHash, issued.Plaintext)
	assert.Equal(t, auth.DefaultTokenName, issued.Token.Name)

	res, err := m.Lookup(ctx, issued.Plaintext)
	require.NoError(t, err)
	assert.Equal(t, LookupFound, res.Status)
	assert.Equal(t, user.ID, res.User.ID)
	assert.Equal(t, issued.Token.PublicID, res.Token.PublicID)
}

func TestManager_IssueSupersedesPrevious(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	user := newUser(t, store, "sub-1")
	cache := NewMemoryCache(10, time.Minute, nil)
	m := NewManager(store, WithCache(cache), WithLogger(quietLogger()))

	first, err := m.Issue(ctx, user.ID)
	require.NoError(t, err)

	// warm the cache so supersession must evict it
	res, err := m.Lookup(ctx, first.Plaintext)
	require.NoError(t, err)
	require.Equal(t, LookupFound, res.Status)
	require.Equal(t, 1, cache.Len())

	second, err := m.Issue(ctx, user.ID)
	require.NoError(t, err)

	res, err = m.Lookup(ctx, first.Plaintext)
	require.NoError(t, err)
	assert.Equal(t, LookupNotFound, res.Status)

	res, err = m.Lookup(ctx, second.Plaintext)
	require.NoError(t, err)
	assert.Equal(t, LookupFound, res.Status)
}

func TestManager_SupersessionDuringLookup(t *testing.T) {
	ctx := context.Background()
	store := &racingStore{Store: memory.New()}
	user := newUser(t, store.Store, "sub-1")
	cache := NewMemoryCache(10, time.Minute, nil)
	m := NewManager(store, WithCache(cache), WithLogger(quietLogger()))

	first, err := m.Issue(ctx, user.ID)
	require.NoError(t, err)

	var second *IssuedToken
	store.afterRead = func() {
		second, err = m.Issue(ctx, user.ID)
		require.NoError(t, err)
	}

	res, err := m.Lookup(ctx, first.Plaintext)
	require.NoError(t, err)
	assert.Equal(t, LookupNotFound, res.Status, "the in-flight lookup sees the supersession")
	require.NotNil(t, second)

	_, cached, err := cache.Get(ctx, first.Token.PublicID)
	require.NoError(t, err)
	assert.False(t, cached, "superseded record must not stay cached")

	res, err = m.Lookup(ctx, first.Plaintext)
	require.NoError(t, err)
	assert.Equal(t, LookupNotFound, res.Status)

	res, err = m.Lookup(ctx, second.Plaintext)
	require.NoError(t, err)
	assert.Equal(t, LookupFound, res.Status)
}

func TestManager_EvictionFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	user := newUser(t, store, "sub-1")
	m := NewManager(store, WithCache(&brokenCache{NewMemoryCache(10, time.Minute, nil)}), WithLogger(quietLogger()))

	// no prior credential, nothing to evict
	first, err := m.Issue(ctx, user.ID)
	require.NoError(t, err)

	_, err = m.Issue(ctx, user.ID)
	assert.True(t, errors.Is(err, ErrCacheEviction))

	err = m.Revoke(ctx, first.Token.PublicID)
	assert.True(t, errors.Is(err, ErrCacheEviction))

	err = m.RevokeAll(ctx, user.ID)
	assert.True(t, errors.Is(err, ErrCacheEviction))
}

func TestManager_LookupRejections(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	user := newUser(t, store, "sub-1")
	m := NewManager(store, WithLogger(quietLogger()))

	issued, err := m.Issue(ctx, user.ID)
	require.NoError(t, err)

	tests := []struct {
		name   string
		bearer string
		want   LookupStatus
	}{
		{name: "no delimiter", bearer: "abc", want: LookupMalformed},
		{name: "bad public id", bearer: "not-a-uuid|secret", want: LookupMalformed},
		{name: "empty secret", bearer: issued.Token.PublicID + "|", want: LookupMalformed},
		{name: "unknown id", bearer: "6f1c1b4e-0d8a-4f57-9d7e-3f0f1f7e2a11|c2VjcmV0", want: LookupNotFound},
		{name: "wrong secret", bearer: issued.Token.PublicID + "|d3Jvbmc", want: LookupNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := m.Lookup(ctx, tt.bearer)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Status)
			assert.Nil(t, res.User)
		})
	}
}

func TestManager_LookupDeletedOwner(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	user := newUser(t, store, "sub-1")
	cache := NewMemoryCache(10, time.Minute, nil)
	m := NewManager(store, WithCache(cache), WithLogger(quietLogger()))

	issued, err := m.Issue(ctx, user.ID)
	require.NoError(t, err)
	_, err = m.Lookup(ctx, issued.Plaintext)
	require.NoError(t, err)

	require.NoError(t, store.DeleteUser(ctx, user.ID))

	res, err := m.Lookup(ctx, issued.Plaintext)
	require.NoError(t, err)
	assert.Equal(t, LookupNotFound, res.Status)
	assert.Equal(t, 0, cache.Len())
}

func TestManager_LookupExpired(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	user := newUser(t, store, "sub-1")

	now := time.Now()
	m := NewManager(store, WithMaxAge(time.Hour), WithClock(func() time.Time { return now }), WithLogger(quietLogger()))

	issued, err := m.Issue(ctx, user.ID)
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	res, err := m.Lookup(ctx, issued.Plaintext)
	require.NoError(t, err)
	assert.Equal(t, LookupNotFound, res.Status)
}

func TestManager_LookupInfrastructureError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection refused")
	store := &failingStore{Store: memory.New(), getTokenErr: boom}
	m := NewManager(store, WithLogger(quietLogger()))

	_, err := m.Lookup(ctx, "6f1c1b4e-0d8a-4f57-9d7e-3f0f1f7e2a11|c2VjcmV0")
	assert.True(t, errors.Is(err, boom))

	store.getTokenErr = storage.ErrNotFound
	res, err := m.Lookup(ctx, "6f1c1b4e-0d8a-4f57-9d7e-3f0f1f7e2a11|c2VjcmV0")
	require.NoError(t, err)
	assert.Equal(t, LookupNotFound, res.Status)
}

func TestManager_Revoke(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	user := newUser(t, store, "sub-1")
	cache := NewMemoryCache(10, time.Minute, nil)
	m := NewManager(store, WithCache(cache), WithLogger(quietLogger()))

	issued, err := m.Issue(ctx, user.ID)
	require.NoError(t, err)
	_, _ = m.Lookup(ctx, issued.Plaintext)

	require.NoError(t, m.Revoke(ctx, issued.Token.PublicID))
	res, err := m.Lookup(ctx, issued.Plaintext)
	require.NoError(t, err)
	assert.Equal(t, LookupNotFound, res.Status)

	issued, err = m.Issue(ctx, user.ID)
	require.NoError(t, err)
	require.NoError(t, m.RevokeAll(ctx, user.ID))
	res, err = m.Lookup(ctx, issued.Plaintext)
	require.NoError(t, err)
	assert.Equal(t, LookupNotFound, res.Status)
}

func TestManager_Prune(t *testing.T) {
	ctx := context.Background()
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	store := memory.New()
	alice := newUser(t, store, "alice")
	bob := newUser(t, store, "bob")

	now := time.Now()
	m := NewManager(store,
		WithMaxAge(time.Hour),
		WithClock(func() time.Time { return now }),
		WithMetrics(metrics),
		WithLogger(quietLogger()),
	)

	_, err := m.Issue(ctx, alice.ID)
	require.NoError(t, err)

	now = now.Add(90 * time.Minute)
	fresh, err := m.Issue(ctx, bob.ID)
	require.NoError(t, err)

	pruned, err := m.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SessionTokensPruned))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.SessionTokensIssued))

	res, err := m.Lookup(ctx, fresh.Plaintext)
	require.NoError(t, err)
	assert.Equal(t, LookupFound, res.Status)
}

func TestManager_PruneDisabled(t *testing.T) {
	m := NewManager(memory.New())
	pruned, err := m.Prune(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pruned)
}

func TestLookupStatus_String(t *testing.T) {
	assert.Equal(t, "found", LookupFound.String())
	assert.Equal(t, "not_found", LookupNotFound.String())
	assert.Equal(t, "malformed", LookupMalformed.String())
}
