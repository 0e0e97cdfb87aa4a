package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	// TokenDelimiter separates the public id from the secret
	TokenDelimiter = "|"
	// SecretLength is the number of random bytes in the secret (256 bits)
	SecretLength = 32
	// DefaultTokenName is the name recorded for login-issued credentials
	DefaultTokenName = "auth_token"
)

// TokenGenerator generates and parses session credentials.
// Format: <uuid>|<base64url(32 random bytes)>
type TokenGenerator struct{}

// NewTokenGenerator creates a new token generator
func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{}
}

// GeneratedToken is a fresh credential. Plaintext is handed to the client once.
type GeneratedToken struct {
	Plaintext  string
	PublicID   string
	SecretHash string
}

// GenerateToken creates a new session credential
func (tg *TokenGenerator) GenerateToken() (*GeneratedToken, error) {
	randomBytes := make([]byte, SecretLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}

	secret := base64.RawURLEncoding.EncodeToString(randomBytes)
	publicID := uuid.NewString()

	return &GeneratedToken{
		Plaintext:  publicID + TokenDelimiter + secret,
		PublicID:   publicID,
		SecretHash: tg.HashSecret(secret),
	}, nil
}

// HashSecret computes the SHA256 hex digest stored for a secret
func (tg *TokenGenerator) HashSecret(secret string) string {
	hash := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(hash[:])
}

// SecretMatches compares secret against a stored hash in constant time
func (tg *TokenGenerator) SecretMatches(secret, storedHash string) bool {
	computed := tg.HashSecret(secret)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}

// LooksLocal reports whether a bearer has the local credential shape and
// should be tried against the credential store first.
func LooksLocal(bearer string) bool {
	return strings.Contains(bearer, TokenDelimiter)
}

// ParseToken splits a local credential into public id and secret. ok is false
// when the bearer contains the delimiter but is not a well-formed credential.
func (tg *TokenGenerator) ParseToken(bearer string) (publicID, secret string, ok bool) {
	publicID, secret, found := strings.Cut(bearer, TokenDelimiter)
	if !found || publicID == "" || secret == "" {
		return "", "", false
	}
	if strings.Contains(secret, TokenDelimiter) {
		return "", "", false
	}
	if _, err := uuid.Parse(publicID); err != nil {
		return "", "", false
	}
	if _, err := base64.RawURLEncoding.DecodeString(secret); err != nil {
		return "", "", false
	}
	return publicID, secret, true
}
