package users

import (
	"errors"
	"strings"
	"time"
)

// User is a registered account.
type User struct {
	ID                 int64
	FirstName          string
	LastName           string
	Email              string
	DateOfBirth        time.Time
	PasswordHash       string
	EmailVerified      bool
	Enabled            bool
	AccountLocked      bool
	CredentialsExpired bool
	Roles              []string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// FullName joins first and last name.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Profile is the public view of a user.
type Profile struct {
	ID          int64  `json:"id"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	DateOfBirth string `json:"dateOfBirth"`
}

// UpdateProfileRequest carries optional profile changes.
type UpdateProfileRequest struct {
	FirstName *string `json:"firstName" validate:"omitempty,min=2,max=50,lettersonly"`
	LastName  *string `json:"lastName" validate:"omitempty,min=2,max=50,lettersonly"`
}

// ChangePasswordRequest replaces the password of the current user.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,maxbytes=72,strongpassword"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
}

// PasswordAndConfirmation implements shared.PasswordConfirmation.
func (r ChangePasswordRequest) PasswordAndConfirmation() (string, string) {
	return r.NewPassword, r.ConfirmPassword
}

var (
	// ErrNotFound indicates the user does not exist.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateEmail indicates the email is already registered.
	ErrDuplicateEmail = errors.New("email already registered")
)
