package auth

import (
	"context"

	"github.com/budgetblitz/budgetblitz/internal/users"
)

// TokenTypeBearer is returned with every token pair.
const TokenTypeBearer = "Bearer "

// RegisterRequest creates a new account.
type RegisterRequest struct {
	FirstName       string `json:"firstName" validate:"required,min=2,max=50,lettersonly"`
	LastName        string `json:"lastName" validate:"required,min=2,max=50,lettersonly"`
	Email           string `json:"email" validate:"required,email,nondisposable"`
	DateOfBirth     string `json:"dateOfBirth" validate:"required,pastdate"`
	Password        string `json:"password" validate:"required,min=8,maxbytes=72,strongpassword"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
}

// PasswordAndConfirmation implements shared.PasswordConfirmation.
func (r RegisterRequest) PasswordAndConfirmation() (string, string) {
	return r.Password, r.ConfirmPassword
}

// LoginRequest exchanges credentials for a token pair.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,maxbytes=72"`
}

// RefreshRequest exchanges a refresh token for a new access token.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// CodeRequest carries a 6-digit activation or reset code.
type CodeRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// EmailRequest carries an email address.
type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest sets a new password using a reset grant.
type ResetPasswordRequest struct {
	Email           string `json:"email" validate:"required,email"`
	ResetToken      string `json:"resetToken" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,maxbytes=72,strongpassword"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
}

// PasswordAndConfirmation implements shared.PasswordConfirmation.
func (r ResetPasswordRequest) PasswordAndConfirmation() (string, string) {
	return r.NewPassword, r.ConfirmPassword
}

// AuthResponse is the token pair returned by login, refresh and reset.
type AuthResponse struct {
	AccessToken  string `json:"accessToken"`
	TokenType    string `json:"tokenType"`
	RefreshToken string `json:"refreshToken"`
}

// ResetGrantResponse is returned once a reset code is verified.
type ResetGrantResponse struct {
	ResetToken string `json:"resetToken"`
}

// UserRepository is the account persistence used by the auth flows.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (users.User, error)
	FindByID(ctx context.Context, id int64) (users.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, user users.User, roles []string) (int64, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	MarkVerified(ctx context.Context, id int64) error
}

// Hasher hashes and verifies passwords.
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(hash, plain string) bool
}

// Recipient identifies who receives a code email.
type Recipient struct {
	Email    string
	FullName string
}

// Notifier hands codes to the mail pipeline. Implementations must not block
// on mail transport.
type Notifier interface {
	SendActivationCode(ctx context.Context, to Recipient, code string) error
	SendResetCode(ctx context.Context, to Recipient, code string) error
}

// EventRecorder counts auth outcomes.
type EventRecorder interface {
	AuthEvent(event, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) AuthEvent(string, string) {}
