package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/budgetblitz/budgetblitz/internal/auth"
	"github.com/budgetblitz/budgetblitz/internal/observability"
	"github.com/budgetblitz/budgetblitz/internal/platform/httpx"
	"github.com/budgetblitz/budgetblitz/internal/rbac"
	"github.com/budgetblitz/budgetblitz/internal/shared"
	"github.com/budgetblitz/budgetblitz/internal/users"
	"github.com/budgetblitz/budgetblitz/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger       *slog.Logger
	Config       *Config
	AuthHandler  *auth.Handler
	AuthFilter   *auth.Filter
	UsersHandler *users.Handler
	JobHandler   *jobs.Handler
	Metrics      *observability.Metrics

	RBACMiddleware rbac.Middleware
}

// NewRouter constructs the chi.Router with BudgetBlitz defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	var authenticate func(http.Handler) http.Handler
	if params.AuthFilter != nil {
		authenticate = params.AuthFilter.Authenticate
	}
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:       params.Logger,
		Config:       params.Config,
		Metrics:      params.Metrics,
		Authenticate: authenticate,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, http.StatusText(http.StatusNotFound), "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed), "")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}
	if params.UsersHandler != nil {
		r.Route("/users", params.UsersHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", func(r chi.Router) {
			r.Use(params.RBACMiddleware.RequireAuthenticated)
			r.Use(params.RBACMiddleware.RequireAuthority(shared.AuthorityAdmin))
			params.JobHandler.MountRoutes(r)
		})
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
