package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/freshledger/freshledger/internal/catalog"
	"github.com/freshledger/freshledger/internal/expense"
	"github.com/freshledger/freshledger/internal/ledger"
	"github.com/freshledger/freshledger/internal/profitloss"
	"github.com/freshledger/freshledger/internal/summary"
	"github.com/freshledger/freshledger/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	LedgerHandler     *ledger.Handler
	CatalogHandler    *catalog.Handler
	SummaryHandler    *summary.Handler
	ProfitLossHandler *profitloss.Handler
	ExpenseHandler    *expense.Handler
	JobHandler        *jobs.Handler
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/ledger", params.LedgerHandler.MountRoutes)
	r.Route("/catalog", params.CatalogHandler.MountRoutes)
	r.Route("/summary", params.SummaryHandler.MountRoutes)
	r.Route("/profitloss", params.ProfitLossHandler.MountRoutes)
	r.Route("/expenses", params.ExpenseHandler.MountRoutes)
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
