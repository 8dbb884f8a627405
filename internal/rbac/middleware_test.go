package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/budgetblitz/budgetblitz/internal/shared"
)

func serve(t *testing.T, h http.Handler, principal *shared.Principal) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	if principal != nil {
		req = req.WithContext(shared.ContextWithPrincipal(req.Context(), principal))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRequireAuthenticated(t *testing.T) {
	m := Middleware{}
	h := m.RequireAuthenticated(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	require.Equal(t, http.StatusUnauthorized, serve(t, h, nil).Code)
	require.Equal(t, http.StatusNoContent, serve(t, h, &shared.Principal{UserID: 1}).Code)
}

func TestRequireAuthority(t *testing.T) {
	m := Middleware{}
	h := m.RequireAuthority(" role_user ")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	require.Equal(t, http.StatusUnauthorized, serve(t, h, nil).Code)
	rr := serve(t, h, &shared.Principal{UserID: 1, Authorities: []string{"ROLE_ADMIN"}})
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Contains(t, rr.Body.String(), string(shared.CodeAccessDenied))
	require.Equal(t, http.StatusNoContent, serve(t, h, &shared.Principal{UserID: 1, Authorities: []string{shared.AuthorityUser}}).Code)
}

func TestRequireEnabled(t *testing.T) {
	m := Middleware{}
	h := m.RequireEnabled(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := serve(t, h, &shared.Principal{UserID: 1, Enabled: false})
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Contains(t, rr.Body.String(), string(shared.CodeAccountDisabled))
	require.Equal(t, http.StatusNoContent, serve(t, h, &shared.Principal{UserID: 1, Enabled: true}).Code)
}
