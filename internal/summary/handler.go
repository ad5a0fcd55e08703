package summary

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/freshledger/freshledger/internal/platform/httpx"
)

// Handler serves the stock summary endpoint.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the summary handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers summary routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleGetSummary)
}

func (h *Handler) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.GetSummary(r.Context())
	if err != nil {
		h.logger.Error("get summary", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}
