// Package memory implements storage.Store with in-process maps. It backs
// local development (TASKTRACK_STORAGE_TYPE=memory) and handler tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/platinummonkey/tasktrack/pkg/auth"
	"github.com/platinummonkey/tasktrack/pkg/storage"
)

// Store is safe for concurrent use. A single mutex serializes writes so
// get-or-create and token replacement are atomic.
type Store struct {
	mu sync.RWMutex

	nextUserID  int64
	nextTokenID int64

	users      map[int64]*auth.User
	bySubject  map[string]int64
	byUsername map[string]int64
	tokens     map[string]*auth.SessionToken

	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

// New creates an empty store
func New() *Store {
	return &Store{
		users:      make(map[int64]*auth.User),
		bySubject:  make(map[string]int64),
		byUsername: make(map[string]int64),
		tokens:     make(map[string]*auth.SessionToken),
		now:        time.Now,
	}
}

func (s *Store) Ping(ctx context.Context) error { return nil }
func (s *Store) Close() error                   { return nil }

func (s *Store) GetUserByID(ctx context.Context, id int64) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("failed to get user %d: %w", id, storage.ErrNotFound)
	}
	return copyUser(user), nil
}

func (s *Store) GetUserBySubject(ctx context.Context, subject string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.bySubject[subject]
	if !ok {
		return nil, fmt.Errorf("failed to get user by subject: %w", storage.ErrNotFound)
	}
	return copyUser(s.users[id]), nil
}

func (s *Store) UsernameTaken(ctx context.Context, username string, excludeUserID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[username]
	return ok && id != excludeUserID, nil
}

func (s *Store) CreateUserIfAbsent(ctx context.Context, user *auth.User) (*auth.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.bySubject[user.SubjectID]; ok {
		return copyUser(s.users[id]), false, nil
	}
	if user.Username != nil {
		if _, taken := s.byUsername[*user.Username]; taken {
			return nil, false, fmt.Errorf("failed to create user: %w", storage.ErrDuplicateUsername)
		}
	}

	s.nextUserID++
	now := s.now()
	created := copyUser(user)
	created.ID = s.nextUserID
	created.PasswordHash = nil
	created.CreatedAt = now
	created.UpdatedAt = now

	s.users[created.ID] = created
	s.bySubject[created.SubjectID] = created.ID
	if created.Username != nil {
		s.byUsername[*created.Username] = created.ID
	}
	return copyUser(created), true, nil
}

func (s *Store) UpdateUsername(ctx context.Context, userID int64, username string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("failed to update username: %w", storage.ErrNotFound)
	}
	if owner, taken := s.byUsername[username]; taken && owner != userID {
		return nil, fmt.Errorf("failed to update username: %w", storage.ErrDuplicateUsername)
	}

	if user.Username != nil {
		delete(s.byUsername, *user.Username)
	}
	handle := username
	user.Username = &handle
	user.UpdatedAt = s.now()
	s.byUsername[username] = userID
	return copyUser(user), nil
}

// DeleteUser removes a user and cascades to its tokens
func (s *Store) DeleteUser(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("failed to delete user: %w", storage.ErrNotFound)
	}
	delete(s.users, userID)
	delete(s.bySubject, user.SubjectID)
	if user.Username != nil {
		delete(s.byUsername, *user.Username)
	}
	s.deleteTokensLocked(func(t *auth.SessionToken) bool { return t.UserID == userID })
	return nil
}

func (s *Store) GetToken(ctx context.Context, publicID string) (*auth.SessionToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.tokens[publicID]
	if !ok {
		return nil, fmt.Errorf("failed to get token: %w", storage.ErrNotFound)
	}
	cp := *token
	return &cp, nil
}

func (s *Store) ReplaceUserTokens(ctx context.Context, token *auth.SessionToken) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[token.UserID]; !ok {
		return nil, fmt.Errorf("failed to lock user %d: %w", token.UserID, storage.ErrNotFound)
	}

	revoked := s.deleteTokensLocked(func(t *auth.SessionToken) bool { return t.UserID == token.UserID })

	s.nextTokenID++
	token.ID = s.nextTokenID
	cp := *token
	s.tokens[token.PublicID] = &cp
	return revoked, nil
}

func (s *Store) DeleteToken(ctx context.Context, publicID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, publicID)
	return nil
}

func (s *Store) DeleteUserTokens(ctx context.Context, userID int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deleteTokensLocked(func(t *auth.SessionToken) bool { return t.UserID == userID }), nil
}

func (s *Store) DeleteTokensCreatedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deleteTokensLocked(func(t *auth.SessionToken) bool { return t.CreatedAt.Before(cutoff) }), nil
}

func (s *Store) deleteTokensLocked(match func(*auth.SessionToken) bool) []string {
	var ids []string
	for id, t := range s.tokens {
		if match(t) {
			ids = append(ids, id)
			delete(s.tokens, id)
		}
	}
	return ids
}

func copyUser(u *auth.User) *auth.User {
	cp := *u
	if u.Username != nil {
		handle := *u.Username
		cp.Username = &handle
	}
	if u.PasswordHash != nil {
		hash := *u.PasswordHash
		cp.PasswordHash = &hash
	}
	return &cp
}
