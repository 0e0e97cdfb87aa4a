package storage

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/tasktrack/pkg/auth"
)

var (
	// ErrNotFound is returned when a user or credential does not exist
	ErrNotFound = errors.New("not found")

	// ErrDuplicateUsername is returned when a handle is already held by another user
	ErrDuplicateUsername = errors.New("username already taken")
)

// UserStore persists local users
type UserStore interface {
	GetUserByID(ctx context.Context, id int64) (*auth.User, error)
	GetUserBySubject(ctx context.Context, subject string) (*auth.User, error)

	// UsernameTaken reports whether username belongs to a user other than excludeUserID.
	// Pass 0 to check against every user.
	UsernameTaken(ctx context.Context, username string, excludeUserID int64) (bool, error)

	// CreateUserIfAbsent inserts user unless a row with the same subject id
	// exists. It returns the stored row and whether this call created it.
	CreateUserIfAbsent(ctx context.Context, user *auth.User) (*auth.User, bool, error)

	UpdateUsername(ctx context.Context, userID int64, username string) (*auth.User, error)
}

// TokenStore persists session credentials
type TokenStore interface {
	GetToken(ctx context.Context, publicID string) (*auth.SessionToken, error)

	// ReplaceUserTokens atomically deletes every credential of token.UserID and
	// inserts token. It returns the public ids that were deleted.
	ReplaceUserTokens(ctx context.Context, token *auth.SessionToken) ([]string, error)

	DeleteToken(ctx context.Context, publicID string) error
	DeleteUserTokens(ctx context.Context, userID int64) ([]string, error)
	DeleteTokensCreatedBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}

// Store is a complete persistence backend
type Store interface {
	UserStore
	TokenStore

	Ping(ctx context.Context) error
	Close() error
}
