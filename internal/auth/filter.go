package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/budgetblitz/budgetblitz/internal/platform/httpx"
	"github.com/budgetblitz/budgetblitz/internal/shared"
	"github.com/budgetblitz/budgetblitz/internal/token"
	"github.com/budgetblitz/budgetblitz/internal/users"
)

// IdentityLoader loads the account behind a token subject.
type IdentityLoader interface {
	FindByEmail(ctx context.Context, email string) (users.User, error)
}

// Filter establishes the caller identity from an Authorization: Bearer header.
type Filter struct {
	tokens *token.Service
	users  IdentityLoader
	logger *slog.Logger
	public []string
	group  singleflight.Group
}

// DefaultPublicPrefixes are served without inspecting credentials.
var DefaultPublicPrefixes = []string{"/auth/", "/healthz", "/metrics", "/docs"}

// NewFilter constructs a Filter. Paths starting with one of publicPrefixes
// bypass authentication; nil selects DefaultPublicPrefixes.
func NewFilter(tokens *token.Service, loader IdentityLoader, logger *slog.Logger, publicPrefixes []string) *Filter {
	if logger == nil {
		logger = slog.Default()
	}
	if publicPrefixes == nil {
		publicPrefixes = DefaultPublicPrefixes
	}
	return &Filter{tokens: tokens, users: loader, logger: logger, public: publicPrefixes}
}

// Authenticate is the chi middleware attaching a shared.Principal.
//
// Requests without a bearer token, or whose token is expired or not an access
// token, continue without identity and are rejected by the authorization
// middleware downstream. Tokens that fail to parse or verify are answered
// with 401 immediately.
func (f *Filter) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.isPublic(r.URL.Path) || shared.PrincipalFromContext(r.Context()) != nil {
			next.ServeHTTP(w, r)
			return
		}
		raw, ok := bearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := f.tokens.ParseAccessToken(raw)
		if err != nil {
			switch shared.CodeOf(err) {
			case shared.CodeExpiredToken, shared.CodeInvalidTokenType:
				next.ServeHTTP(w, r)
			default:
				httpx.RespondError(w, f.logger, err)
			}
			return
		}

		principal, err := f.load(r.Context(), claims.Subject)
		if err != nil {
			if errors.Is(err, users.ErrNotFound) {
				next.ServeHTTP(w, r)
				return
			}
			httpx.RespondError(w, f.logger, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
	})
}

// load collapses concurrent lookups of the same subject into one query.
func (f *Filter) load(ctx context.Context, email string) (*shared.Principal, error) {
	v, err, _ := f.group.Do(email, func() (any, error) {
		user, err := f.users.FindByEmail(context.WithoutCancel(ctx), email)
		if err != nil {
			return nil, err
		}
		return &shared.Principal{
			UserID:        user.ID,
			Email:         user.Email,
			Authorities:   user.Roles,
			Enabled:       user.Enabled,
			EmailVerified: user.EmailVerified,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	// Each request gets its own copy of the shared result.
	p := *v.(*shared.Principal)
	p.Authorities = append([]string(nil), p.Authorities...)
	return &p, nil
}

func (f *Filter) isPublic(path string) bool {
	for _, prefix := range f.public {
		if path == strings.TrimSuffix(prefix, "/") || strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	raw := strings.TrimSpace(header[len(prefix):])
	return raw, raw != ""
}
