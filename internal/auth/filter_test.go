package auth

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/budgetblitz/budgetblitz/internal/shared"
)

type captured struct {
	called    bool
	principal *shared.Principal
}

func filteredHandler(f *fixture) (http.Handler, *captured) {
	c := &captured{}
	filter := NewFilter(f.tokens, f.users, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	h := filter.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.called = true
		c.principal = shared.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	return h, c
}

func serveWithBearer(h http.Handler, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestFilterAttachesPrincipal(t *testing.T) {
	f := newFixture(t)
	user := f.registerActive(t, "alice@example.com")
	access, err := f.tokens.IssueAccessToken("alice@example.com")
	require.NoError(t, err)

	h, c := filteredHandler(f)
	rr := serveWithBearer(h, "/users/me", access)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.NotNil(t, c.principal)
	require.Equal(t, user.ID, c.principal.UserID)
	require.Equal(t, "alice@example.com", c.principal.Email)
	require.True(t, c.principal.Enabled)
	require.True(t, c.principal.HasAuthority(shared.AuthorityUser))
}

func TestFilterPassesThroughWithoutHeader(t *testing.T) {
	f := newFixture(t)
	h, c := filteredHandler(f)

	rr := serveWithBearer(h, "/users/me", "")
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.True(t, c.called)
	require.Nil(t, c.principal)
}

func TestFilterSkipsPublicPaths(t *testing.T) {
	f := newFixture(t)
	h, c := filteredHandler(f)

	for _, path := range []string{"/auth/login", "/healthz", "/metrics"} {
		*c = captured{}
		rr := serveWithBearer(h, path, "garbage")
		require.Equal(t, http.StatusNoContent, rr.Code, path)
		require.True(t, c.called, path)
	}
}

func TestFilterRejectsMalformedToken(t *testing.T) {
	f := newFixture(t)
	h, c := filteredHandler(f)

	rr := serveWithBearer(h, "/users/me", "not-a-jwt")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.False(t, c.called)
	require.Equal(t, string(shared.CodeInvalidToken), decodeProblem(t, rr).Code)
}

func TestFilterRejectsTamperedSignature(t *testing.T) {
	f := newFixture(t)
	f.registerActive(t, "alice@example.com")
	access, err := f.tokens.IssueAccessToken("alice@example.com")
	require.NoError(t, err)

	tampered := access[:len(access)-4] + "AAAA"
	if tampered == access {
		tampered = access[:len(access)-4] + "BBBB"
	}
	h, c := filteredHandler(f)
	rr := serveWithBearer(h, "/users/me", tampered)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.False(t, c.called)
}

func TestFilterContinuesAnonymousOnExpiredOrRefreshToken(t *testing.T) {
	f := newFixture(t)
	f.registerActive(t, "alice@example.com")
	pair, err := f.tokens.IssuePair("alice@example.com")
	require.NoError(t, err)
	h, c := filteredHandler(f)

	rr := serveWithBearer(h, "/users/me", pair.RefreshToken)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.True(t, c.called)
	require.Nil(t, c.principal)

	f.clock.Advance(16 * time.Minute)
	*c = captured{}
	rr = serveWithBearer(h, "/users/me", pair.AccessToken)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.True(t, c.called)
	require.Nil(t, c.principal)
}

func TestFilterUnknownSubjectStaysAnonymous(t *testing.T) {
	f := newFixture(t)
	access, err := f.tokens.IssueAccessToken("ghost@example.com")
	require.NoError(t, err)
	h, c := filteredHandler(f)

	rr := serveWithBearer(h, "/users/me", access)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Nil(t, c.principal)
}
