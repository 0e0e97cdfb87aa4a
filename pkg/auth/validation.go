package auth

import (
	"fmt"
	"unicode/utf8"
)

const (
	// HandleField is the request/validation field name for the handle
	HandleField = "username"

	HandleMinLength = 3
	HandleMaxLength = 25
)

// Handle validation messages
var (
	MsgHandleRequired = fmt.Sprintf("The %s field is required.", HandleField)
	MsgHandleTooShort = fmt.Sprintf("The %s field must be at least %d characters.", HandleField, HandleMinLength)
	MsgHandleTooLong  = fmt.Sprintf("The %s field must not be greater than %d characters.", HandleField, HandleMaxLength)
	MsgHandleTaken    = fmt.Sprintf("The %s has already been taken.", HandleField)
)

// ValidateHandle checks the local rules for a supplied handle: present and
// 3 to 25 characters, counted in runes. Uniqueness needs the store and is
// checked by the provisioner.
func ValidateHandle(handle string) *ValidationError {
	n := utf8.RuneCountInString(handle)
	switch {
	case n == 0:
		return NewValidationError(HandleField, MsgHandleRequired)
	case n < HandleMinLength:
		return NewValidationError(HandleField, MsgHandleTooShort)
	case n > HandleMaxLength:
		return NewValidationError(HandleField, MsgHandleTooLong)
	}
	return nil
}
