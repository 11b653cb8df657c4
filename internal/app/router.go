package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/crossledger/crossledger/internal/audit"
	"github.com/crossledger/crossledger/internal/business"
	"github.com/crossledger/crossledger/internal/cashflow"
	"github.com/crossledger/crossledger/internal/ledger"
	"github.com/crossledger/crossledger/internal/observability"
	"github.com/crossledger/crossledger/internal/transfer"
	"github.com/crossledger/crossledger/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	UsersService    *users.Service
	UsersHandler    *users.Handler
	BusinessHandler *business.Handler
	LedgerHandler   *ledger.Handler
	TransferHandler *transfer.Handler
	CashflowHandler *cashflow.Handler
	AuditHandler    *audit.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router. All /api routes except the
// auth endpoints require a bearer API key.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			params.UsersHandler.MountPublicRoutes(r)
			r.Group(func(r chi.Router) {
				r.Use(users.Authenticator(params.UsersService))
				params.UsersHandler.MountRoutes(r)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(users.Authenticator(params.UsersService))
			r.Route("/businesses", func(r chi.Router) {
				params.BusinessHandler.MountRoutes(r)
				params.LedgerHandler.MountRoutes(r)
				params.AuditHandler.MountRoutes(r)
			})
			r.Route("/transfers", func(r chi.Router) {
				params.TransferHandler.MountRoutes(r)
			})
			r.Route("/cash-flow", func(r chi.Router) {
				params.CashflowHandler.MountRoutes(r)
			})
		})
	})

	return r
}
