// Package rbac enforces authorization for routes behind the bearer filter.
package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/budgetblitz/budgetblitz/internal/platform/httpx"
	"github.com/budgetblitz/budgetblitz/internal/shared"
)

// Middleware wires authorization helpers for HTTP handlers.
type Middleware struct {
	Logger *slog.Logger
}

// RequireAuthenticated rejects requests without an attached principal.
func (m Middleware) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shared.PrincipalFromContext(r.Context()) == nil {
			httpx.RespondCode(w, shared.CodeUnauthenticated, "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireEnabled rejects principals whose account is deactivated.
func (m Middleware) RequireEnabled(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := shared.PrincipalFromContext(r.Context())
		if principal == nil {
			httpx.RespondCode(w, shared.CodeUnauthenticated, "")
			return
		}
		if !principal.Enabled {
			httpx.RespondCode(w, shared.CodeAccountDisabled, "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuthority ensures the principal holds at least one of the authorities.
func (m Middleware) RequireAuthority(authorities ...string) func(http.Handler) http.Handler {
	normalized := normalizeAuthorities(authorities)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := shared.PrincipalFromContext(r.Context())
			if principal == nil {
				httpx.RespondCode(w, shared.CodeUnauthenticated, "")
				return
			}
			if hasAnyAuthority(principal.Authorities, normalized) {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Warn("access denied", slog.Int64("user_id", principal.UserID), slog.String("path", r.URL.Path))
			}
			httpx.RespondCode(w, shared.CodeAccessDenied, "")
		})
	}
}

func normalizeAuthorities(authorities []string) []string {
	unique := make(map[string]struct{}, len(authorities))
	normalized := make([]string, 0, len(authorities))
	for _, a := range authorities {
		a = strings.ToUpper(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		if _, seen := unique[a]; seen {
			continue
		}
		unique[a] = struct{}{}
		normalized = append(normalized, a)
	}
	return normalized
}

func hasAnyAuthority(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(granted))
	for _, a := range granted {
		set[strings.ToUpper(a)] = struct{}{}
	}
	for _, a := range required {
		if _, ok := set[a]; ok {
			return true
		}
	}
	return false
}
