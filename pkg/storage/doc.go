// Package storage defines the persistence contracts for users and session
// credentials.
//
// # Backends
//
//   - pkg/storage/postgres: PostgreSQL via database/sql and lib/pq, schema
//     managed by goose migrations embedded in the binary
//   - pkg/storage/memory: in-process maps for development and tests
//
// Both implement Store:
//
//	type Store interface {
//		UserStore
//		TokenStore
//		Ping(ctx context.Context) error
//		Close() error
//	}
//
// # Errors
//
// Backends translate driver errors into ErrNotFound and
// ErrDuplicateUsername so callers can use errors.Is without knowing the
// backend.
//
// # First-login races
//
// CreateUserIfAbsent must be safe under concurrent calls for the same subject:
// exactly one call creates the row and every other call observes it.
//
// # Redis
//
// NewRedisClient builds the shared client used by the session lookup cache
// and the readiness check.
package storage
