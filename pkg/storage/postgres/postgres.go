package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/platinummonkey/tasktrack/pkg/auth"
	"github.com/platinummonkey/tasktrack/pkg/storage"
)

const (
	uniqueViolation = "23505"

	usernameConstraint = "users_username_key"
)

// Store implements storage.Store on PostgreSQL
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// NewStore wraps an open database handle
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the handle for health checks and pool metrics
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

const userColumns = `id, subject_id, email, name, username, password_hash, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*auth.User, error) {
	var (
		user         auth.User
		username     sql.NullString
		passwordHash sql.NullString
	)
	err := row.Scan(
		&user.ID,
		&user.SubjectID,
		&user.Email,
		&user.Name,
		&username,
		&passwordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if username.Valid {
		user.Username = &username.String
	}
	if passwordHash.Valid {
		user.PasswordHash = &passwordHash.String
	}
	return &user, nil
}

// translateError maps driver errors onto storage sentinels
func translateError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == usernameConstraint {
		return storage.ErrDuplicateUsername
	}
	return err
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*auth.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", id, translateError(err))
	}
	return user, nil
}

func (s *Store) GetUserBySubject(ctx context.Context, subject string) (*auth.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE subject_id = $1`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, subject))
	if err != nil {
		return nil, fmt.Errorf("failed to get user by subject: %w", translateError(err))
	}
	return user, nil
}

func (s *Store) UsernameTaken(ctx context.Context, username string, excludeUserID int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1 AND id <> $2)`

	var taken bool
	if err := s.db.QueryRowContext(ctx, query, username, excludeUserID).Scan(&taken); err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return taken, nil
}

// CreateUserIfAbsent relies on ON CONFLICT so concurrent first logins for one
// subject produce one row. The loser re-reads the winner's row.
func (s *Store) CreateUserIfAbsent(ctx context.Context, user *auth.User) (*auth.User, bool, error) {
	query := `
		INSERT INTO users (subject_id, email, name, username, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (subject_id) DO NOTHING
		RETURNING id, created_at, updated_at
	`

	created := *user
	err := s.db.QueryRowContext(ctx, query,
		user.SubjectID,
		user.Email,
		user.Name,
		nullString(user.Username),
	).Scan(&created.ID, &created.CreatedAt, &created.UpdatedAt)

	switch {
	case err == nil:
		created.PasswordHash = nil
		return &created, true, nil
	case errors.Is(err, sql.ErrNoRows):
		existing, err := s.GetUserBySubject(ctx, user.SubjectID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	default:
		return nil, false, fmt.Errorf("failed to create user: %w", translateError(err))
	}
}

func (s *Store) UpdateUsername(ctx context.Context, userID int64, username string) (*auth.User, error) {
	query := `
		UPDATE users SET username = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING ` + userColumns

	user, err := scanUser(s.db.QueryRowContext(ctx, query, username, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to update username: %w", translateError(err))
	}
	return user, nil
}

func (s *Store) GetToken(ctx context.Context, publicID string) (*auth.SessionToken, error) {
	query := `
		SELECT id, public_id, user_id, secret_hash, name, created_at
		FROM session_tokens
		WHERE public_id = $1
	`

	var token auth.SessionToken
	err := s.db.QueryRowContext(ctx, query, publicID).Scan(
		&token.ID,
		&token.PublicID,
		&token.UserID,
		&token.SecretHash,
		&token.Name,
		&token.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", translateError(err))
	}
	return &token, nil
}

// ReplaceUserTokens locks the owning user row so concurrent logins for one
// user serialize and leave exactly one credential behind.
func (s *Store) ReplaceUserTokens(ctx context.Context, token *auth.SessionToken) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var lockedID int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, token.UserID).Scan(&lockedID); err != nil {
		return nil, fmt.Errorf("failed to lock user %d: %w", token.UserID, translateError(err))
	}

	rows, err := tx.QueryContext(ctx, `DELETE FROM session_tokens WHERE user_id = $1 RETURNING public_id`, token.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete user tokens: %w", err)
	}
	revoked, err := collectStrings(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to read deleted tokens: %w", err)
	}

	insert := `
		INSERT INTO session_tokens (public_id, user_id, secret_hash, name, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	if err := tx.QueryRowContext(ctx, insert,
		token.PublicID,
		token.UserID,
		token.SecretHash,
		token.Name,
		token.CreatedAt,
	).Scan(&token.ID); err != nil {
		return nil, fmt.Errorf("failed to insert token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return revoked, nil
}

func (s *Store) DeleteToken(ctx context.Context, publicID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_tokens WHERE public_id = $1`, publicID); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

func (s *Store) DeleteUserTokens(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `DELETE FROM session_tokens WHERE user_id = $1 RETURNING public_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete user tokens: %w", err)
	}
	return collectStrings(rows)
}

func (s *Store) DeleteTokensCreatedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `DELETE FROM session_tokens WHERE created_at < $1 RETURNING public_id`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to prune tokens: %w", err)
	}
	return collectStrings(rows)
}

func collectStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
