package profitloss

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/freshledger/freshledger/internal/platform/httpx"
)

// Handler serves the profit/loss report endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the profit/loss handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleGetReport)
	r.Get("/export.csv", h.handleExportCSV)
}

func (h *Handler) parseRange(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	fromRaw, toRaw := q.Get("from"), q.Get("to")
	if fromRaw == "" || toRaw == "" {
		return time.Time{}, time.Time{}, ErrInvalidRange
	}
	from, err := time.Parse("2006-01-02", fromRaw)
	if err != nil {
		return time.Time{}, time.Time{}, ErrInvalidRange
	}
	to, err := time.Parse("2006-01-02", toRaw)
	if err != nil {
		return time.Time{}, time.Time{}, ErrInvalidRange
	}
	return from, to, nil
}

func (h *Handler) handleGetReport(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.parseRange(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from and to must be YYYY-MM-DD")
		return
	}
	report, err := h.service.GetReport(r.Context(), from, to)
	if err != nil {
		h.respondError(w, "get report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.parseRange(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from and to must be YYYY-MM-DD")
		return
	}
	report, err := h.service.GetReport(r.Context(), from, to)
	if err != nil {
		h.respondError(w, "export report", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=profitloss_%s_%s.csv", report.From, report.To))
	if err := WriteReportCSV(w, report); err != nil {
		h.logger.Error("export report", slog.Any("error", err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrInvalidRange):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrRangeTooWide):
		httpx.Problem(w, http.StatusBadRequest, "Range Too Wide", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
