package provision

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

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

func strPtr(s string) *string { return &s }

func identity(subject string) *auth.VerifiedIdentity {
	return &auth.VerifiedIdentity{Subject: subject, Email: subject + "@example.com"}
}

func requireValidation(t *testing.T, err error, message string) {
	t.Helper()
	var verr *auth.ValidationError
	require.True(t, errors.As(err, &verr), "expected validation error, got %v", err)
	assert.Equal(t, []string{message}, verr.Fields[auth.HandleField])
}

// brokenStore fails every lookup
type brokenStore struct {
	*memory.Store
}

func (brokenStore) GetUserBySubject(ctx context.Context, subject string) (*auth.User, error) {
	return nil, errors.New("connection reset")
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyStrict, p)

	p, err = ParsePolicy("lax")
	require.NoError(t, err)
	assert.Equal(t, PolicyLax, p)

	_, err = ParsePolicy("yolo")
	assert.Error(t, err)
}

func TestProvision_InvalidIdentity(t *testing.T) {
	p := New(memory.New())

	_, err := p.Provision(context.Background(), nil, nil)
	assert.True(t, errors.Is(err, auth.ErrInvalidIdentity))

	_, err = p.Provision(context.Background(), &auth.VerifiedIdentity{Email: "a@b.c"}, nil)
	assert.True(t, errors.Is(err, auth.ErrInvalidIdentity))
}

func TestProvision_FirstLogin(t *testing.T) {
	tests := []struct {
		name         string
		identity     *auth.VerifiedIdentity
		handle       *string
		wantName     string
		wantUsername *string
	}{
		{
			name:     "no handle uses name claim",
			identity: &auth.VerifiedIdentity{Subject: "s1", Email: "carol@example.com", Name: "Carol"},
			wantName: "Carol",
		},
		{
			name:     "displayName beats name",
			identity: &auth.VerifiedIdentity{Subject: "s2", Email: "d@example.com", DisplayName: "Dee", Name: "Deirdre"},
			wantName: "Dee",
		},
		{
			name:     "email local part",
			identity: &auth.VerifiedIdentity{Subject: "s3", Email: "erin@example.com"},
			wantName: "erin",
		},
		{
			name:     "subject fallback",
			identity: &auth.VerifiedIdentity{Subject: "s4"},
			wantName: "s4",
		},
		{
			name:         "handle wins",
			identity:     &auth.VerifiedIdentity{Subject: "s5", Name: "Robert"},
			handle:       strPtr("bob"),
			wantName:     "bob",
			wantUsername: strPtr("bob"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New()
			p := New(store)

			res, err := p.Provision(context.Background(), tt.identity, tt.handle)
			require.NoError(t, err)
			assert.True(t, res.Created)
			assert.Equal(t, tt.wantName, res.User.Name)
			assert.Equal(t, tt.wantUsername, res.User.Username)
			assert.Equal(t, tt.identity.Subject, res.User.SubjectID)
			assert.Nil(t, res.User.PasswordHash)

			stored, err := store.GetUserBySubject(context.Background(), tt.identity.Subject)
			require.NoError(t, err)
			assert.Equal(t, res.User.ID, stored.ID)
		})
	}
}

func TestProvision_HandleLengthBoundaries(t *testing.T) {
	tests := []struct {
		handle  string
		message string
	}{
		{handle: "", message: auth.MsgHandleRequired},
		{handle: "ab", message: auth.MsgHandleTooShort},
		{handle: "abc"},
		{handle: strings.Repeat("x", 25)},
		{handle: strings.Repeat("x", 26), message: auth.MsgHandleTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.handle, func(t *testing.T) {
			store := memory.New()
			p := New(store)
			handle := tt.handle

			res, err := p.Provision(context.Background(), identity("sub"), &handle)
			if tt.message == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.handle, *res.User.Username)
				return
			}

			requireValidation(t, err, tt.message)
			_, err = store.GetUserBySubject(context.Background(), "sub")
			assert.True(t, errors.Is(err, storage.ErrNotFound), "nothing may be written")
		})
	}
}

func TestProvision_FirstLoginHandleTaken(t *testing.T) {
	store := memory.New()
	p := New(store)

	_, err := p.Provision(context.Background(), identity("alice"), strPtr("alice"))
	require.NoError(t, err)

	_, err = p.Provision(context.Background(), identity("mallory"), strPtr("alice"))
	requireValidation(t, err, auth.MsgHandleTaken)

	_, err = store.GetUserBySubject(context.Background(), "mallory")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestProvision_ReturningUserChangesHandle(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	p := New(store)

	first, err := p.Provision(ctx, identity("sub"), strPtr("alice"))
	require.NoError(t, err)

	second, err := p.Provision(ctx, identity("sub"), strPtr("alice2"))
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.True(t, second.UsernameChanged)
	assert.Equal(t, first.User.ID, second.User.ID)
	assert.Equal(t, "alice2", *second.User.Username)

	stored, err := store.GetUserByID(ctx, first.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice2", *stored.Username)
}

func TestProvision_ReturningUserKeepsHandle(t *testing.T) {
	ctx := context.Background()
	p := New(memory.New())

	_, err := p.Provision(ctx, identity("sub"), strPtr("alice"))
	require.NoError(t, err)

	for _, handle := range []*string{nil, strPtr(""), strPtr("alice")} {
		res, err := p.Provision(ctx, identity("sub"), handle)
		require.NoError(t, err)
		assert.False(t, res.Created)
		assert.False(t, res.UsernameChanged)
		assert.Equal(t, "alice", *res.User.Username)
	}
}

func TestProvision_Policies(t *testing.T) {
	ctx := context.Background()

	for _, policy := range []Policy{PolicyStrict, PolicyLax} {
		t.Run(string(policy), func(t *testing.T) {
			p := New(memory.New(), WithPolicy(policy))

			_, err := p.Provision(ctx, identity("a"), strPtr("alice"))
			require.NoError(t, err)
			_, err = p.Provision(ctx, identity("b"), strPtr("bobby"))
			require.NoError(t, err)

			_, err = p.Provision(ctx, identity("b"), strPtr("alice"))
			requireValidation(t, err, auth.MsgHandleTaken)

			_, err = p.Provision(ctx, identity("b"), strPtr("x"))
			requireValidation(t, err, auth.MsgHandleTooShort)
		})
	}
}

func TestProvision_StoreFailureIsNotValidation(t *testing.T) {
	p := New(brokenStore{memory.New()})

	_, err := p.Provision(context.Background(), identity("sub"), nil)
	require.Error(t, err)
	var verr *auth.ValidationError
	assert.False(t, errors.As(err, &verr))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestProvision_ConcurrentFirstLogin(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	p := New(store, WithMetrics(metrics))

	const workers = 25
	ids := make([]int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := p.Provision(ctx, identity("racer"), nil)
			if assert.NoError(t, err) {
				ids[i] = res.User.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.UsersProvisionedTotal))
}

func TestProvision_Audit(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(logrus.InfoLevel, &buf)
	p := New(memory.New(), WithAuditLogger(auth.NewAuditLogger(logger)))

	ctx := observability.WithLogger(context.Background(), observability.NewLogger(logrus.PanicLevel, io.Discard))
	_, err := p.Provision(ctx, identity("sub"), strPtr("alice"))
	require.NoError(t, err)
	_, err = p.Provision(ctx, identity("sub"), strPtr("alice2"))
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, auth.ActionUserCreated)
	assert.Contains(t, out, auth.ActionHandleChange)
}
