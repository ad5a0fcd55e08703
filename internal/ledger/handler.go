package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/freshledger/freshledger/internal/platform/httpx"
	"github.com/freshledger/freshledger/internal/shared"
)

// Handler wires the ledger's JSON endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/purchases", h.handleRecordPurchase)
	r.Get("/lots", h.handleListLots)
	r.Put("/lots/{id}", h.handleEditLot)
	r.Delete("/lots/{id}", h.handleDeleteLot)

	r.Post("/sales", h.handleRecordSale)
	r.Post("/waste", h.handleRecordWaste)
	r.Post("/piece-tracking", h.handleRecordPieceTracking)

	r.Get("/events", h.handleListEvents)
	r.Get("/events/{id}", h.handleGetEvent)
	r.Put("/events/{id}", h.handleEditEvent)
	r.Delete("/events/{id}", h.handleDeleteEvent)
}

type purchaseRequest struct {
	CategoryID    int64   `json:"category_id" validate:"required"`
	VendorID      int64   `json:"vendor_id"`
	TotalWeightKg float64 `json:"total_weight_kg" validate:"gt=0"`
	TotalPieces   *int64  `json:"total_pieces" validate:"omitempty,gte=0"`
	CostPerKg     float64 `json:"cost_per_kg" validate:"gte=0"`
	PurchasedAt   string  `json:"purchased_at"`
	ActorID       int64   `json:"actor_id"`
}

type lotEditRequest struct {
	TotalWeightKg float64 `json:"total_weight_kg" validate:"gt=0"`
	TotalPieces   *int64  `json:"total_pieces" validate:"omitempty,gte=0"`
	CostPerKg     float64 `json:"cost_per_kg" validate:"gte=0"`
	ActorID       int64   `json:"actor_id"`
}

type saleRequest struct {
	CategoryID int64      `json:"category_id" validate:"required"`
	Ref        string     `json:"ref" validate:"omitempty,max=64"`
	Lines      []saleLine `json:"lines" validate:"required,min=1,dive"`
	OccurredAt string     `json:"occurred_at"`
	Note       string     `json:"note"`
	ActorID    int64      `json:"actor_id"`
}

type saleLine struct {
	ProductID int64   `json:"product_id" validate:"required"`
	Quantity  float64 `json:"quantity" validate:"gte=0"`
	UnitPrice float64 `json:"unit_price" validate:"gte=0"`
	LineTotal float64 `json:"line_total" validate:"gte=0"`
}

type wasteRequest struct {
	CategoryID int64   `json:"category_id" validate:"required"`
	Ref        string  `json:"ref" validate:"omitempty,max=64"`
	WeightKg   float64 `json:"weight_kg" validate:"gte=0"`
	OccurredAt string  `json:"occurred_at"`
	Note       string  `json:"note"`
	ActorID    int64   `json:"actor_id"`
}

type pieceTrackingRequest struct {
	CategoryID int64  `json:"category_id" validate:"required"`
	Ref        string `json:"ref" validate:"omitempty,max=64"`
	Pieces     int64  `json:"pieces" validate:"gte=0"`
	OccurredAt string `json:"occurred_at"`
	Note       string `json:"note"`
	ActorID    int64  `json:"actor_id"`
}

type eventEditRequest struct {
	WeightKg  *float64 `json:"weight_kg" validate:"omitempty,gte=0"`
	Pieces    *int64   `json:"pieces" validate:"omitempty,gte=0"`
	SaleTotal *float64 `json:"sale_total" validate:"omitempty,gte=0"`
	Note      *string  `json:"note"`
	ActorID   int64    `json:"actor_id"`
}

type lotResponse struct {
	ID                int64   `json:"id"`
	CategoryID        int64   `json:"category_id"`
	VendorID          int64   `json:"vendor_id"`
	PurchasedAt       string  `json:"purchased_at"`
	TotalWeightKg     float64 `json:"total_weight_kg"`
	RemainingWeightKg float64 `json:"remaining_weight_kg"`
	TotalPieces       *int64  `json:"total_pieces"`
	RemainingPieces   *int64  `json:"remaining_pieces"`
	CostPerKg         float64 `json:"cost_per_kg"`
	TotalCost         float64 `json:"total_cost"`
}

type trailEntryResponse struct {
	LotID          int64   `json:"lot_id"`
	WeightDeducted float64 `json:"weight_deducted"`
	PiecesDeducted int64   `json:"pieces_deducted"`
}

type eventResponse struct {
	ID         int64                `json:"id"`
	Ref        string               `json:"ref"`
	Kind       string               `json:"kind"`
	CategoryID int64                `json:"category_id"`
	WeightKg   float64              `json:"weight_kg"`
	Pieces     int64                `json:"pieces"`
	SaleTotal  float64              `json:"sale_total,omitempty"`
	Lines      []SaleLine           `json:"lines,omitempty"`
	Note       string               `json:"note,omitempty"`
	OccurredAt string               `json:"occurred_at"`
	Trail      []trailEntryResponse `json:"trail"`
}

func toLotResponse(lot Lot) lotResponse {
	return lotResponse{
		ID:                lot.ID,
		CategoryID:        lot.CategoryID,
		VendorID:          lot.VendorID,
		PurchasedAt:       lot.PurchasedAt.Format(time.RFC3339),
		TotalWeightKg:     lot.TotalWeightKg,
		RemainingWeightKg: lot.RemainingWeightKg,
		TotalPieces:       lot.TotalPieces,
		RemainingPieces:   lot.RemainingPieces,
		CostPerKg:         lot.CostPerKg,
		TotalCost:         lot.TotalCost,
	}
}

func toEventResponse(event ConsumptionEvent) eventResponse {
	trail := make([]trailEntryResponse, 0, len(event.Trail))
	for _, entry := range event.Trail {
		trail = append(trail, trailEntryResponse{LotID: entry.LotID, WeightDeducted: entry.WeightKg, PiecesDeducted: entry.Pieces})
	}
	return eventResponse{
		ID:         event.ID,
		Ref:        event.Ref,
		Kind:       string(event.Kind),
		CategoryID: event.CategoryID,
		WeightKg:   event.WeightKg,
		Pieces:     event.Pieces,
		SaleTotal:  event.SaleTotal,
		Lines:      event.Lines,
		Note:       event.Note,
		OccurredAt: event.OccurredAt.Format(time.RFC3339),
		Trail:      trail,
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", "request body is not valid JSON")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	return time.Parse("2006-01-02", value)
}

func (h *Handler) handleRecordPurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if !h.decode(w, r, &req) {
		return
	}
	purchasedAt, err := parseTimestamp(req.PurchasedAt)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "purchased_at must be RFC3339 or YYYY-MM-DD")
		return
	}
	lot, err := h.service.RecordPurchase(r.Context(), PurchaseInput{
		CategoryID:    req.CategoryID,
		VendorID:      req.VendorID,
		TotalWeightKg: req.TotalWeightKg,
		TotalPieces:   req.TotalPieces,
		CostPerKg:     req.CostPerKg,
		PurchasedAt:   purchasedAt,
		ActorID:       req.ActorID,
	})
	if err != nil {
		h.respondError(w, "record purchase", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toLotResponse(lot))
}

func (h *Handler) handleListLots(w http.ResponseWriter, r *http.Request) {
	categoryID, _ := strconv.ParseInt(r.URL.Query().Get("category_id"), 10, 64)
	lots, err := h.service.ListLots(r.Context(), categoryID)
	if err != nil {
		h.respondError(w, "list lots", err)
		return
	}
	result := make([]lotResponse, 0, len(lots))
	for _, lot := range lots {
		result = append(result, toLotResponse(lot))
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleEditLot(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "lot id must be an integer")
		return
	}
	var req lotEditRequest
	if !h.decode(w, r, &req) {
		return
	}
	lot, err := h.service.EditLot(r.Context(), id, LotEdit{
		TotalWeightKg: req.TotalWeightKg,
		TotalPieces:   req.TotalPieces,
		CostPerKg:     req.CostPerKg,
		ActorID:       req.ActorID,
	})
	if err != nil {
		h.respondError(w, "edit lot", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toLotResponse(lot))
}

func (h *Handler) handleDeleteLot(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "lot id must be an integer")
		return
	}
	if err := h.service.DeleteLot(r.Context(), id, actorFromQuery(r)); err != nil {
		h.respondError(w, "delete lot", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) handleRecordSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if !h.decode(w, r, &req) {
		return
	}
	occurredAt, err := parseTimestamp(req.OccurredAt)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "occurred_at must be RFC3339 or YYYY-MM-DD")
		return
	}
	lines := make([]SaleLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, SaleLine(line))
	}
	event, err := h.service.RecordSale(r.Context(), SaleInput{
		CategoryID: req.CategoryID,
		Ref:        req.Ref,
		Lines:      lines,
		OccurredAt: occurredAt,
		Note:       req.Note,
		ActorID:    req.ActorID,
	})
	if err != nil {
		h.respondError(w, "record sale", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEventResponse(event))
}

func (h *Handler) handleRecordWaste(w http.ResponseWriter, r *http.Request) {
	var req wasteRequest
	if !h.decode(w, r, &req) {
		return
	}
	occurredAt, err := parseTimestamp(req.OccurredAt)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "occurred_at must be RFC3339 or YYYY-MM-DD")
		return
	}
	event, err := h.service.RecordWaste(r.Context(), WasteInput{
		CategoryID: req.CategoryID,
		Ref:        req.Ref,
		WeightKg:   req.WeightKg,
		OccurredAt: occurredAt,
		Note:       req.Note,
		ActorID:    req.ActorID,
	})
	if err != nil {
		h.respondError(w, "record waste", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEventResponse(event))
}

func (h *Handler) handleRecordPieceTracking(w http.ResponseWriter, r *http.Request) {
	var req pieceTrackingRequest
	if !h.decode(w, r, &req) {
		return
	}
	occurredAt, err := parseTimestamp(req.OccurredAt)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "occurred_at must be RFC3339 or YYYY-MM-DD")
		return
	}
	event, err := h.service.RecordPieceTracking(r.Context(), PieceTrackingInput{
		CategoryID: req.CategoryID,
		Ref:        req.Ref,
		Pieces:     req.Pieces,
		OccurredAt: occurredAt,
		Note:       req.Note,
		ActorID:    req.ActorID,
	})
	if err != nil {
		h.respondError(w, "record piece tracking", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEventResponse(event))
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	categoryID, _ := strconv.ParseInt(q.Get("category_id"), 10, 64)
	from, err := parseTimestamp(q.Get("from"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be RFC3339 or YYYY-MM-DD")
		return
	}
	to, err := parseTimestamp(q.Get("to"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be RFC3339 or YYYY-MM-DD")
		return
	}
	if from.IsZero() {
		from = time.Now().UTC().AddDate(0, 0, -30)
	}
	if to.IsZero() {
		to = time.Now().UTC()
	}
	events, err := h.service.ListEvents(r.Context(), categoryID, from, to)
	if err != nil {
		h.respondError(w, "list events", err)
		return
	}
	result := make([]eventResponse, 0, len(events))
	for _, event := range events {
		result = append(result, toEventResponse(event))
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "event id must be an integer")
		return
	}
	event, err := h.service.GetEvent(r.Context(), id)
	if err != nil {
		h.respondError(w, "get event", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEventResponse(event))
}

func (h *Handler) handleEditEvent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "event id must be an integer")
		return
	}
	var req eventEditRequest
	if !h.decode(w, r, &req) {
		return
	}
	event, err := h.service.EditEvent(r.Context(), id, EventEdit{
		WeightKg:  req.WeightKg,
		Pieces:    req.Pieces,
		SaleTotal: req.SaleTotal,
		Note:      req.Note,
		ActorID:   req.ActorID,
	})
	if err != nil {
		h.respondError(w, "edit event", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEventResponse(event))
}

func (h *Handler) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "event id must be an integer")
		return
	}
	if err := h.service.DeleteEvent(r.Context(), id, actorFromQuery(r)); err != nil {
		h.respondError(w, "delete event", err)
		return
	}
	httpx.NoContent(w)
}

func actorFromQuery(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.URL.Query().Get("actor_id"), 10, 64)
	return id
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	var validation *ValidationError
	var insufficient *InsufficientStockError
	var conflict *ConflictError
	var invariant *InvariantViolation
	switch {
	case errors.As(err, &validation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validation.Error())
	case errors.As(err, &insufficient):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", insufficient.Error())
	case errors.As(err, &conflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", conflict.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.Is(err, ErrLotNotFound), errors.Is(err, ErrEventNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrContention):
		w.Header().Set("Retry-After", "1")
		httpx.Problem(w, http.StatusServiceUnavailable, "Category Busy", "another writer holds this category; retry shortly")
	case errors.As(err, &invariant):
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
