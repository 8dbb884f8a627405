// Package token issues and validates the RS256-signed bearer tokens used by the API.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/budgetblitz/budgetblitz/internal/shared"
)

// Type is the value of the TOKEN_TYPE claim.
type Type string

const (
	TypeAccess     Type = "ACCESS_TOKEN"
	TypeRefresh    Type = "REFRESH_TOKEN"
	TypeResetGrant Type = "RESET_GRANT"
)

// Claims is the JWT payload shared by every token the service issues.
type Claims struct {
	TokenType Type  `json:"TOKEN_TYPE"`
	CodeID    int64 `json:"CODE_ID,omitempty"`
	jwt.RegisteredClaims
}

// Pair is an access token with its companion refresh token.
type Pair struct {
	AccessToken  string
	RefreshToken string
}

// ResetGrant authorizes a single password reset for Email.
type ResetGrant struct {
	Email     string
	CodeID    int64
	ExpiresAt time.Time
}

// Config controls token lifetimes.
type Config struct {
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ResetTTL   time.Duration
	Now        func() time.Time
}

// Service signs tokens with the private key and verifies them with the public key.
type Service struct {
	keys   KeyPair
	cfg    Config
	now    func() time.Time
	parser *jwt.Parser
}

// NewService constructs a token Service.
func NewService(keys KeyPair, cfg Config) (*Service, error) {
	if keys.private == nil || keys.public == nil {
		return nil, shared.NewError(shared.CodeInvalidKeyMaterial)
	}
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("token: access ttl must be positive")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, fmt.Errorf("token: refresh ttl %s must exceed access ttl %s", cfg.RefreshTTL, cfg.AccessTTL)
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = 10 * time.Minute
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		keys: keys,
		cfg:  cfg,
		now:  now,
		// Expiry is evaluated by the service so expired tokens can still be
		// classified by type before being rejected.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// AccessTTL returns the configured access token lifetime.
func (s *Service) AccessTTL() time.Duration { return s.cfg.AccessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (s *Service) RefreshTTL() time.Duration { return s.cfg.RefreshTTL }

// IssueAccessToken signs a short-lived access token for email.
func (s *Service) IssueAccessToken(email string) (string, error) {
	return s.sign(email, TypeAccess, s.cfg.AccessTTL, 0)
}

// IssueRefreshToken signs a refresh token for email.
func (s *Service) IssueRefreshToken(email string) (string, error) {
	return s.sign(email, TypeRefresh, s.cfg.RefreshTTL, 0)
}

// IssuePair signs an access and refresh token for email.
func (s *Service) IssuePair(email string) (Pair, error) {
	access, err := s.IssueAccessToken(email)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := s.IssueRefreshToken(email)
	if err != nil {
		return Pair{}, err
	}
	return Pair{AccessToken: access, RefreshToken: refresh}, nil
}

// IssueResetGrant signs a short-lived grant tied to a verified reset code.
func (s *Service) IssueResetGrant(email string, codeID int64) (string, error) {
	return s.sign(email, TypeResetGrant, s.cfg.ResetTTL, codeID)
}

// ExtractSubject verifies the signature and returns the subject email. Expiry
// is not evaluated here; use IsValid for that.
func (s *Service) ExtractSubject(raw string) (string, error) {
	claims, err := s.parse(raw)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// IsValid reports whether the signature verifies and the token has not expired.
func (s *Service) IsValid(raw string) bool {
	claims, err := s.parse(raw)
	if err != nil {
		return false
	}
	return !s.expired(claims)
}

// ParseAccessToken returns the claims of a valid, unexpired access token.
func (s *Service) ParseAccessToken(raw string) (*Claims, error) {
	claims, err := s.parse(raw)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TypeAccess {
		return nil, shared.NewError(shared.CodeInvalidTokenType)
	}
	if s.expired(claims) {
		return nil, shared.NewError(shared.CodeExpiredToken)
	}
	return claims, nil
}

// RefreshAccessToken mints a new access token from a refresh token. The
// refresh token itself is not rotated.
func (s *Service) RefreshAccessToken(refreshToken string) (string, error) {
	claims, err := s.parse(refreshToken)
	if err != nil {
		return "", err
	}
	if claims.TokenType != TypeRefresh {
		return "", shared.NewError(shared.CodeInvalidTokenType)
	}
	if s.expired(claims) {
		return "", shared.NewError(shared.CodeExpiredToken)
	}
	return s.IssueAccessToken(claims.Subject)
}

// ParseResetGrant validates a reset grant and returns its content.
func (s *Service) ParseResetGrant(raw string) (ResetGrant, error) {
	claims, err := s.parse(raw)
	if err != nil {
		return ResetGrant{}, shared.WrapError(shared.CodeInvalidResetGrant, err)
	}
	if claims.TokenType != TypeResetGrant || claims.CodeID <= 0 || s.expired(claims) {
		return ResetGrant{}, shared.NewError(shared.CodeInvalidResetGrant)
	}
	return ResetGrant{Email: claims.Subject, CodeID: claims.CodeID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

func (s *Service) sign(email string, typ Type, ttl time.Duration, codeID int64) (string, error) {
	now := s.now()
	claims := Claims{
		TokenType: typ,
		CodeID:    codeID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.cfg.Issuer,
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.keys.private)
	if err != nil {
		return "", fmt.Errorf("token: sign %s: %w", typ, err)
	}
	return signed, nil
}

func (s *Service) parse(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := s.parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.keys.public, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, shared.WrapError(shared.CodeInvalidTokenSignature, err)
		}
		return nil, shared.WrapError(shared.CodeInvalidToken, err)
	}
	if claims.Subject == "" || claims.ExpiresAt == nil {
		return nil, shared.NewError(shared.CodeInvalidToken).WithDetail("missing subject or expiry")
	}
	if s.cfg.Issuer != "" && claims.Issuer != s.cfg.Issuer {
		return nil, shared.NewError(shared.CodeInvalidToken).WithDetail("unexpected issuer")
	}
	return claims, nil
}

func (s *Service) expired(claims *Claims) bool {
	return !s.now().Before(claims.ExpiresAt.Time)
}
