package auth

import (
	"strings"
	"time"
)

// User is a local account. SubjectID is the identity provider's stable id and
// the primary authentication lookup key.
type User struct {
	ID           int64     `json:"id"`
	SubjectID    string    `json:"subjectId"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Username     *string   `json:"username"`
	PasswordHash *string   `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// HandleEquals reports whether the stored handle equals handle
func (u *User) HandleEquals(handle string) bool {
	return u.Username != nil && *u.Username == handle
}

// SessionToken is a locally issued credential record. The plaintext secret
// is only ever returned once by the issuer; SecretHash holds its sha256.
type SessionToken struct {
	ID         int64     `json:"id"`
	PublicID   string    `json:"publicId"`
	UserID     int64     `json:"userId"`
	SecretHash string    `json:"-"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Expired reports whether the token is older than maxAge. A zero maxAge never expires.
func (t *SessionToken) Expired(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return false
	}
	return now.Sub(t.CreatedAt) > maxAge
}

// VerifiedIdentity holds the claims of an externally verified ID token. It is
// never persisted.
type VerifiedIdentity struct {
	Subject     string
	Email       string
	DisplayName string
	Name        string
}

// ResolveDisplayName picks the name for a new user. Precedence:
//  1. client-supplied handle
//  2. identity displayName claim
//  3. identity name claim
//  4. email local part
//  5. subject id
func (id VerifiedIdentity) ResolveDisplayName(handle *string) string {
	candidates := []string{
		deref(handle),
		id.DisplayName,
		id.Name,
		emailLocalPart(id.Email),
	}
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	return id.Subject
}

// emailLocalPart returns the text before the first "@", or the whole
// string when there is none
func emailLocalPart(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// AuthMethod records which credential path authenticated a request
type AuthMethod string

const (
	MethodSession  AuthMethod = "session"
	MethodExternal AuthMethod = "external"
)

// Principal is the authenticated caller attached to a request context.
// Token is set only for MethodSession.
type Principal struct {
	User   *User
	Method AuthMethod
	Token  *SessionToken
}
