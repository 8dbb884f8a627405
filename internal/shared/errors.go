package shared

import (
	"errors"
	"net/http"
)

// ErrorCode identifies a failure surfaced to API clients.
type ErrorCode string

const (
	CodeValidationFailed          ErrorCode = "VALIDATION_FAILED"
	CodePasswordMismatch          ErrorCode = "PASSWORD_MISMATCH"
	CodeEmailAlreadyExists        ErrorCode = "EMAIL_ALREADY_EXISTS"
	CodeBadCredentials            ErrorCode = "BAD_CREDENTIALS"
	CodeAccountNotVerified        ErrorCode = "ACCOUNT_NOT_VERIFIED"
	CodeAccountDisabled           ErrorCode = "ACCOUNT_DISABLED"
	CodeInvalidToken              ErrorCode = "INVALID_JWT_TOKEN"
	CodeInvalidTokenSignature     ErrorCode = "INVALID_JWT_SIGNATURE"
	CodeInvalidTokenType          ErrorCode = "INVALID_JWT_TOKEN_TYPE"
	CodeExpiredToken              ErrorCode = "EXPIRED_JWT_TOKEN"
	CodeInvalidResetGrant         ErrorCode = "INVALID_RESET_GRANT"
	CodeUnauthenticated           ErrorCode = "UNAUTHENTICATED"
	CodeAccessDenied              ErrorCode = "ACCESS_DENIED"
	CodeExpiredActivationCode     ErrorCode = "EXPIRED_ACTIVATION_CODE"
	CodeExpiredResetCode          ErrorCode = "EXPIRED_RESET_CODE"
	CodeEmailAlreadyVerified      ErrorCode = "EMAIL_ALREADY_VERIFIED"
	CodeResetCodeAlreadyVerified  ErrorCode = "RESET_CODE_ALREADY_VERIFIED"
	CodeTokenNotFound             ErrorCode = "TOKEN_NOT_FOUND"
	CodeUserNotFound              ErrorCode = "USER_NOT_FOUND"
	CodeUserEmailNotFound         ErrorCode = "USER_EMAIL_NOT_FOUND"
	CodeInvalidCurrentPassword    ErrorCode = "INVALID_CURRENT_PASSWORD"
	CodeAccountAlreadyDeactivated ErrorCode = "ACCOUNT_ALREADY_DEACTIVATED"
	CodeAccountAlreadyActivated   ErrorCode = "ACCOUNT_ALREADY_ACTIVATED"
	CodeTooManyAttempts           ErrorCode = "TOO_MANY_ATTEMPTS"
	CodeEmailSendingFailed        ErrorCode = "EMAIL_SENDING_FAILED"
	CodeInvalidKeyMaterial        ErrorCode = "INVALID_KEY_MATERIAL"
	CodeInternal                  ErrorCode = "INTERNAL_EXCEPTION"
)

type codeInfo struct {
	status  int
	message string
}

var catalog = map[ErrorCode]codeInfo{
	CodeValidationFailed:          {http.StatusBadRequest, "Request validation failed"},
	CodePasswordMismatch:          {http.StatusBadRequest, "Password and confirmation do not match"},
	CodeEmailAlreadyExists:        {http.StatusBadRequest, "An account with this email already exists"},
	CodeBadCredentials:            {http.StatusUnauthorized, "Email or password is incorrect"},
	CodeAccountNotVerified:        {http.StatusForbidden, "Account email has not been verified"},
	CodeAccountDisabled:           {http.StatusForbidden, "Account is deactivated"},
	CodeInvalidToken:              {http.StatusUnauthorized, "Invalid JWT token"},
	CodeInvalidTokenSignature:     {http.StatusUnauthorized, "Invalid JWT signature"},
	CodeInvalidTokenType:          {http.StatusUnauthorized, "Invalid JWT token type"},
	CodeExpiredToken:              {http.StatusUnauthorized, "JWT token has expired"},
	CodeInvalidResetGrant:         {http.StatusUnauthorized, "Password reset authorization is missing or invalid"},
	CodeUnauthenticated:           {http.StatusUnauthorized, "Authentication is required"},
	CodeAccessDenied:              {http.StatusForbidden, "You do not have permission to access this resource"},
	CodeExpiredActivationCode:     {http.StatusBadRequest, "Activation code has expired, a new code has been sent"},
	CodeExpiredResetCode:          {http.StatusBadRequest, "Reset code has expired, a new code has been sent"},
	CodeEmailAlreadyVerified:      {http.StatusBadRequest, "Email has already been verified"},
	CodeResetCodeAlreadyVerified:  {http.StatusBadRequest, "Reset code has already been verified"},
	CodeTokenNotFound:             {http.StatusNotFound, "Code not found"},
	CodeUserNotFound:              {http.StatusNotFound, "User not found"},
	CodeUserEmailNotFound:         {http.StatusNotFound, "No user found with this email"},
	CodeInvalidCurrentPassword:    {http.StatusBadRequest, "Current password is incorrect"},
	CodeAccountAlreadyDeactivated: {http.StatusBadRequest, "Account is already deactivated"},
	CodeAccountAlreadyActivated:   {http.StatusBadRequest, "Account is already active"},
	CodeTooManyAttempts:           {http.StatusTooManyRequests, "Too many attempts, try again later"},
	CodeEmailSendingFailed:        {http.StatusInternalServerError, "Email could not be sent"},
	CodeInvalidKeyMaterial:        {http.StatusInternalServerError, "Signing key material is invalid"},
	CodeInternal:                  {http.StatusInternalServerError, "Internal error, please contact the admin"},
}

// Status returns the HTTP status associated with the code.
func (c ErrorCode) Status() int {
	if info, ok := catalog[c]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// Message returns the default client-facing message for the code.
func (c ErrorCode) Message() string {
	if info, ok := catalog[c]; ok {
		return info.message
	}
	return catalog[CodeInternal].message
}

// Known reports whether c belongs to the catalog.
func (c ErrorCode) Known() bool {
	_, ok := catalog[c]
	return ok
}

// Error is a domain failure carrying a catalog code.
type Error struct {
	Code   ErrorCode
	Detail string
	Err    error
}

// NewError builds an Error for code.
func NewError(code ErrorCode) *Error {
	return &Error{Code: code}
}

// WrapError attaches the underlying cause to a catalog error.
func WrapError(code ErrorCode, err error) *Error {
	return &Error{Code: code, Err: err}
}

// WithDetail returns a copy of e carrying a detail message.
func (e *Error) WithDetail(detail string) *Error {
	cp := *e
	cp.Detail = detail
	return &cp
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// CodeOf extracts the catalog code from err, falling back to CodeInternal.
func CodeOf(err error) ErrorCode {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}
