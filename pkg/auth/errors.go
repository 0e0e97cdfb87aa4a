package auth

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrMissingCredential means no bearer credential was presented
	ErrMissingCredential = errors.New("no authentication token provided")

	// ErrInvalidCredential means the credential was rejected by every path
	ErrInvalidCredential = errors.New("invalid authentication token")

	// ErrVerifierUnavailable means the identity provider could not be
	// consulted (timeout, network, key fetch). Callers respond as for
	// ErrInvalidCredential but log it separately.
	ErrVerifierUnavailable = errors.New("identity provider unavailable")

	// ErrInvalidIdentity means a verified token carried no subject
	ErrInvalidIdentity = errors.New("verified identity has no subject")
)

// ValidationError carries per-field messages for client-supplied input
type ValidationError struct {
	Fields map[string][]string
}

// NewValidationError creates a ValidationError with a single message
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string][]string{field: {message}}}
}

// Add appends a message for field
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], message)
}

// HasErrors reports whether any message was recorded
func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var parts []string
	for _, f := range fields {
		parts = append(parts, e.Fields[f]...)
	}
	return "validation failed: " + strings.Join(parts, " ")
}
