package ledger

import (
	"errors"
	"fmt"
	"time"
)

// EventKind enumerates the consumption event types drawn against lots.
type EventKind string

const (
	// EventSale represents a POS sale.
	EventSale EventKind = "SALE"
	// EventWaste represents a recorded waste entry.
	EventWaste EventKind = "WASTE"
	// EventPieceTracking represents a daily piece-count entry.
	EventPieceTracking EventKind = "PIECE_TRACKING"
)

// Lot is one purchase transaction's stock with a fixed cost basis.
// Remaining quantities only move toward zero except via trail reversal
// or an explicit edit of the lot totals.
type Lot struct {
	ID                int64
	CategoryID        int64
	VendorID          int64
	PurchasedAt       time.Time
	TotalWeightKg     float64
	RemainingWeightKg float64
	TotalPieces       *int64
	RemainingPieces   *int64
	CostPerKg         float64
	TotalCost         float64
	CreatedAt         time.Time
}

// TracksPieces reports whether the lot carries a piece count.
func (l Lot) TracksPieces() bool {
	return l.TotalPieces != nil
}

// TrailEntry records one draw against a lot. A trail, replayed in
// reverse, is the unit of reversal for its event.
type TrailEntry struct {
	LotID    int64
	WeightKg float64
	Pieces   int64
}

// SaleLine is a single sold item inside a sale event.
type SaleLine struct {
	ProductID int64   `json:"product_id"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	LineTotal float64 `json:"line_total"`
}

// ConsumptionEvent is a sale, waste entry or piece-tracking entry
// together with the allocation trail that satisfied it.
type ConsumptionEvent struct {
	ID         int64
	Ref        string
	Kind       EventKind
	CategoryID int64
	WeightKg   float64
	Pieces     int64
	SaleTotal  float64
	Lines      []SaleLine
	Note       string
	OccurredAt time.Time
	Trail      []TrailEntry
	CreatedBy  int64
	CreatedAt  time.Time
}

// PurchaseInput describes a new lot.
type PurchaseInput struct {
	CategoryID    int64
	VendorID      int64
	TotalWeightKg float64
	TotalPieces   *int64
	CostPerKg     float64
	PurchasedAt   time.Time
	ActorID       int64
}

// LotEdit rebases a lot's totals. Consumed quantities are preserved.
type LotEdit struct {
	TotalWeightKg float64
	TotalPieces   *int64
	CostPerKg     float64
	ActorID       int64
}

// SaleInput describes a sale against one category. Ref optionally
// carries the caller's receipt or ticket reference; resubmitting the
// same reference is rejected instead of deducting stock twice.
type SaleInput struct {
	CategoryID int64
	Ref        string
	Lines      []SaleLine
	OccurredAt time.Time
	Note       string
	ActorID    int64
}

// WasteInput describes a waste entry. Waste consumes weight only.
// Ref deduplicates retries the same way as SaleInput.Ref.
type WasteInput struct {
	CategoryID int64
	Ref        string
	WeightKg   float64
	OccurredAt time.Time
	Note       string
	ActorID    int64
}

// PieceTrackingInput describes a daily piece-count entry for
// piece-only categories. Ref deduplicates retries.
type PieceTrackingInput struct {
	CategoryID int64
	Ref        string
	Pieces     int64
	OccurredAt time.Time
	Note       string
	ActorID    int64
}

// EventEdit carries replacement quantities for an existing event.
// Nil fields keep the current value.
type EventEdit struct {
	WeightKg  *float64
	Pieces    *int64
	SaleTotal *float64
	Note      *string
	ActorID   int64
}

// ValidationError reports malformed input. Rejected before any state change.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("ledger: invalid %s: %s", e.Field, e.Reason)
}

// InsufficientStockError reports that the FIFO walk exhausted a
// category's lots before the request was satisfied. No deduction
// has been applied.
type InsufficientStockError struct {
	CategoryID int64
	Leg        string
	Requested  float64
	Available  float64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("ledger: insufficient %s stock in category %d: requested %.3f, available %.3f",
		e.Leg, e.CategoryID, e.Requested, e.Available)
}

// InvariantViolation reports a delta that would push a lot's remaining
// quantity outside [0, total]. It indicates an upstream logic or
// concurrency bug, not a user error.
type InvariantViolation struct {
	LotID  int64
	Detail string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("ledger: invariant violation on lot %d: %s", e.LotID, e.Detail)
}

// ConflictError reports a structural conflict, e.g. deleting a lot with
// live allocations or reversing a trail its lot no longer supports.
type ConflictError struct {
	Detail string
}

func (e *ConflictError) Error() string {
	return "ledger: conflict: " + e.Detail
}

// ErrContention is returned when the per-category lock could not be
// acquired within the configured wait. Safe to retry.
var ErrContention = errors.New("ledger: category busy")

// ErrLotNotFound indicates a missing lot.
var ErrLotNotFound = errors.New("ledger: lot not found")

// ErrEventNotFound indicates a missing consumption event.
var ErrEventNotFound = errors.New("ledger: consumption event not found")
