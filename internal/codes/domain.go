// Package codes generates, stores and redeems single-use numeric codes
// delivered by email for account activation and password reset.
package codes

import (
	"errors"
	"time"
)

// Purpose separates the activation and password-reset channels.
type Purpose string

const (
	PurposeActivation    Purpose = "ACTIVATION"
	PurposePasswordReset Purpose = "PASSWORD_RESET"
)

// Length is the number of digits in every code.
const Length = 6

// DefaultTTL is how long a code stays redeemable after issuance.
const DefaultTTL = 15 * time.Minute

// Code is a stored one-time code. Only the hash of the digits is kept.
type Code struct {
	ID          int64
	UserID      int64
	Purpose     Purpose
	Hash        string
	CreatedAt   time.Time
	ExpiredAt   time.Time
	ValidatedAt *time.Time
	// RedeemedAt is set once the reset grant minted from this code has been
	// used to change a password.
	RedeemedAt *time.Time
}

// Consumed reports whether the code has already been redeemed.
func (c Code) Consumed() bool { return c.ValidatedAt != nil }

// Expired reports whether the code is past its expiry at now.
func (c Code) Expired(now time.Time) bool { return now.After(c.ExpiredAt) }

// Live reports whether the code can still be redeemed at now.
func (c Code) Live(now time.Time) bool { return !c.Consumed() && !c.Expired(now) }

// Issued is returned once at issuance; Plain must only be handed to the mailer.
type Issued struct {
	ID        int64
	UserID    int64
	Plain     string
	ExpiresAt time.Time
}

var (
	// ErrNotFound indicates no stored code matches the presented digits.
	ErrNotFound = errors.New("code not found")
	// ErrAlreadyConsumed indicates the code was redeemed before.
	ErrAlreadyConsumed = errors.New("code already consumed")
	// ErrExpired indicates the code is past its expiry.
	ErrExpired = errors.New("code expired")
	// ErrAlreadyRedeemed indicates the grant backed by the code was used before.
	ErrAlreadyRedeemed = errors.New("code already redeemed")
)
