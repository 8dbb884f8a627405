package shared

import (
	"crypto/subtle"
	"strings"
)

// PasswordConfirmation is implemented by requests that carry a password and
// its confirmation.
type PasswordConfirmation interface {
	PasswordAndConfirmation() (password, confirmation string)
}

// CheckPasswordConfirmation fails with PASSWORD_MISMATCH when the two values differ.
func CheckPasswordConfirmation(req PasswordConfirmation) error {
	password, confirmation := req.PasswordAndConfirmation()
	if subtle.ConstantTimeCompare([]byte(password), []byte(confirmation)) != 1 {
		return NewError(CodePasswordMismatch)
	}
	return nil
}

// NormalizeEmail trims and lowercases an email address so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
