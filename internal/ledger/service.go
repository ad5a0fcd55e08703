package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/freshledger/freshledger/internal/catalog"
	"github.com/freshledger/freshledger/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetLot(ctx context.Context, id int64) (Lot, error)
	ListLots(ctx context.Context, categoryID int64) ([]Lot, error)
	GetEvent(ctx context.Context, id int64) (ConsumptionEvent, error)
	ListEvents(ctx context.Context, categoryID int64, from, to time.Time) ([]ConsumptionEvent, error)
}

// CatalogPort exposes the read-only product lookups the router needs to
// resolve sale lines to kilograms and pieces.
type CatalogPort interface {
	GetProduct(ctx context.Context, id int64) (catalog.Product, error)
}

// CategoryLocker serialises writers per category. Acquire blocks up to
// the locker's configured wait and returns shared.ErrLockBusy on timeout.
type CategoryLocker interface {
	Acquire(ctx context.Context, categoryID int64) (func(), error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards client-supplied event references against
// replay. CheckAndInsert returns shared.ErrIdempotencyConflict when
// the key was already processed.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service is the consumption router: it turns purchases, sales, waste
// and piece-tracking entries into lot mutations, and reverses trails
// when events are edited or deleted.
type Service struct {
	repo        RepositoryPort
	catalog     CatalogPort
	locks       CategoryLocker
	audit       AuditPort
	idempotency IdempotencyPort
	logger      *slog.Logger
}

// NewService builds Service. Audit, locker and idempotency are optional.
func NewService(repo RepositoryPort, cat CatalogPort, locks CategoryLocker, audit AuditPort, idem IdempotencyPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, catalog: cat, locks: locks, audit: audit, idempotency: idem, logger: logger}
}

// withCategoryLock acquires the category lock (when configured) and runs
// fn inside a transaction. Operations on distinct categories proceed in
// parallel; there is no global ledger lock.
func (s *Service) withCategoryLock(ctx context.Context, categoryID int64, fn func(context.Context, TxRepository) error) error {
	if s.locks != nil {
		release, err := s.locks.Acquire(ctx, categoryID)
		if err != nil {
			if errors.Is(err, shared.ErrLockBusy) {
				return ErrContention
			}
			return err
		}
		defer release()
	}
	err := s.repo.WithTx(ctx, fn)
	var invariant *InvariantViolation
	if errors.As(err, &invariant) {
		// Unreachable given correct allocator logic; log as a defect.
		s.logger.Error("ledger invariant violation",
			slog.Int64("lot_id", invariant.LotID),
			slog.String("detail", invariant.Detail))
	}
	return err
}

// RecordPurchase creates a lot with remaining quantities equal to the
// purchased totals.
func (s *Service) RecordPurchase(ctx context.Context, input PurchaseInput) (Lot, error) {
	if input.CategoryID == 0 {
		return Lot{}, &ValidationError{Field: "category_id", Reason: "required"}
	}
	if input.TotalWeightKg <= 0 {
		return Lot{}, &ValidationError{Field: "total_weight_kg", Reason: "must be > 0"}
	}
	if input.CostPerKg < 0 {
		return Lot{}, &ValidationError{Field: "cost_per_kg", Reason: "must be >= 0"}
	}
	if input.TotalPieces != nil && *input.TotalPieces < 0 {
		return Lot{}, &ValidationError{Field: "total_pieces", Reason: "must be >= 0"}
	}
	purchasedAt := input.PurchasedAt
	if purchasedAt.IsZero() {
		purchasedAt = time.Now().UTC()
	}

	lot := Lot{
		CategoryID:        input.CategoryID,
		VendorID:          input.VendorID,
		PurchasedAt:       purchasedAt,
		TotalWeightKg:     input.TotalWeightKg,
		RemainingWeightKg: input.TotalWeightKg,
		CostPerKg:         input.CostPerKg,
		TotalCost:         input.TotalWeightKg * input.CostPerKg,
	}
	if input.TotalPieces != nil {
		total := *input.TotalPieces
		remaining := total
		lot.TotalPieces = &total
		lot.RemainingPieces = &remaining
	}

	err := s.withCategoryLock(ctx, input.CategoryID, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertLot(ctx, lot)
		if err != nil {
			return err
		}
		lot.ID = id
		return nil
	})
	if err != nil {
		return Lot{}, err
	}
	s.recordAudit(ctx, input.ActorID, "ledger:purchase", "lot", fmt.Sprintf("%d", lot.ID), map[string]any{
		"category_id":     lot.CategoryID,
		"vendor_id":       lot.VendorID,
		"total_weight_kg": lot.TotalWeightKg,
		"cost_per_kg":     lot.CostPerKg,
	})
	return lot, nil
}

// EditLot rebases a lot's totals while preserving what has already been
// consumed: new remaining = new total - consumed.
func (s *Service) EditLot(ctx context.Context, lotID int64, edit LotEdit) (Lot, error) {
	if edit.TotalWeightKg <= 0 {
		return Lot{}, &ValidationError{Field: "total_weight_kg", Reason: "must be > 0"}
	}
	if edit.CostPerKg < 0 {
		return Lot{}, &ValidationError{Field: "cost_per_kg", Reason: "must be >= 0"}
	}
	current, err := s.repo.GetLot(ctx, lotID)
	if err != nil {
		return Lot{}, err
	}

	var updated Lot
	err = s.withCategoryLock(ctx, current.CategoryID, func(ctx context.Context, tx TxRepository) error {
		lot, err := tx.GetLotForUpdate(ctx, lotID)
		if err != nil {
			return err
		}
		consumedWeight := lot.TotalWeightKg - lot.RemainingWeightKg
		if edit.TotalWeightKg < consumedWeight-qtyEpsilon {
			return &ValidationError{Field: "total_weight_kg", Reason: fmt.Sprintf("cannot shrink below %.3f kg already allocated", consumedWeight)}
		}
		lot.TotalWeightKg = edit.TotalWeightKg
		lot.RemainingWeightKg = edit.TotalWeightKg - consumedWeight

		var consumedPieces int64
		if lot.TracksPieces() {
			consumedPieces = *lot.TotalPieces - *lot.RemainingPieces
		}
		if edit.TotalPieces == nil {
			if consumedPieces > 0 {
				return &ConflictError{Detail: fmt.Sprintf("lot %d has %d pieces allocated; cannot drop piece tracking", lotID, consumedPieces)}
			}
			lot.TotalPieces = nil
			lot.RemainingPieces = nil
		} else {
			if *edit.TotalPieces < 0 {
				return &ValidationError{Field: "total_pieces", Reason: "must be >= 0"}
			}
			if *edit.TotalPieces < consumedPieces {
				return &ValidationError{Field: "total_pieces", Reason: fmt.Sprintf("cannot shrink below %d pieces already allocated", consumedPieces)}
			}
			total := *edit.TotalPieces
			remaining := total - consumedPieces
			lot.TotalPieces = &total
			lot.RemainingPieces = &remaining
		}

		lot.CostPerKg = edit.CostPerKg
		lot.TotalCost = lot.TotalWeightKg * lot.CostPerKg
		if err := tx.UpdateLot(ctx, lot); err != nil {
			return err
		}
		updated = lot
		return nil
	})
	if err != nil {
		return Lot{}, err
	}
	s.recordAudit(ctx, edit.ActorID, "ledger:lot_edit", "lot", fmt.Sprintf("%d", lotID), map[string]any{
		"total_weight_kg": updated.TotalWeightKg,
		"cost_per_kg":     updated.CostPerKg,
	})
	return updated, nil
}

// DeleteLot removes a lot that has never been drawn from, or whose
// draws have all been reversed by deleting the dependent events.
func (s *Service) DeleteLot(ctx context.Context, lotID, actorID int64) error {
	current, err := s.repo.GetLot(ctx, lotID)
	if err != nil {
		return err
	}
	err = s.withCategoryLock(ctx, current.CategoryID, func(ctx context.Context, tx TxRepository) error {
		lot, err := tx.GetLotForUpdate(ctx, lotID)
		if err != nil {
			return err
		}
		if math.Abs(lot.TotalWeightKg-lot.RemainingWeightKg) > qtyEpsilon {
			return &ConflictError{Detail: fmt.Sprintf("lot %d has %.3f kg drawn; delete or edit the consuming events first", lotID, lot.TotalWeightKg-lot.RemainingWeightKg)}
		}
		if lot.TracksPieces() && *lot.TotalPieces != *lot.RemainingPieces {
			return &ConflictError{Detail: fmt.Sprintf("lot %d has pieces drawn; delete or edit the consuming events first", lotID)}
		}
		referenced, err := tx.HasTrailReferences(ctx, lotID)
		if err != nil {
			return err
		}
		if referenced {
			return &ConflictError{Detail: fmt.Sprintf("lot %d is referenced by allocation trails; delete the dependent events first", lotID)}
		}
		return tx.DeleteLot(ctx, lotID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "ledger:lot_delete", "lot", fmt.Sprintf("%d", lotID), nil)
	return nil
}

// RecordSale allocates one sale against the category's lots. Package
// counts are resolved to kilograms and piece-sold products additionally
// request pieces; all lines commit as a single trail.
func (s *Service) RecordSale(ctx context.Context, input SaleInput) (ConsumptionEvent, error) {
	if input.CategoryID == 0 {
		return ConsumptionEvent{}, &ValidationError{Field: "category_id", Reason: "required"}
	}
	if len(input.Lines) == 0 {
		return ConsumptionEvent{}, &ValidationError{Field: "lines", Reason: "at least one line required"}
	}
	var weightKg, saleTotal float64
	var pieces int64
	lines := make([]SaleLine, 0, len(input.Lines))
	for i, line := range input.Lines {
		if line.Quantity < 0 {
			return ConsumptionEvent{}, &ValidationError{Field: fmt.Sprintf("lines[%d].quantity", i), Reason: "must be >= 0"}
		}
		if line.UnitPrice < 0 {
			return ConsumptionEvent{}, &ValidationError{Field: fmt.Sprintf("lines[%d].unit_price", i), Reason: "must be >= 0"}
		}
		product, err := s.catalog.GetProduct(ctx, line.ProductID)
		if err != nil {
			return ConsumptionEvent{}, &ValidationError{Field: fmt.Sprintf("lines[%d].product_id", i), Reason: "unknown product"}
		}
		if product.CategoryID != input.CategoryID {
			return ConsumptionEvent{}, &ValidationError{Field: fmt.Sprintf("lines[%d].product_id", i), Reason: "product belongs to another category"}
		}
		switch product.SaleUnit {
		case catalog.SaleUnitWeight:
			weightKg += line.Quantity
		case catalog.SaleUnitPackage:
			if product.PackageWeightKg <= 0 {
				return ConsumptionEvent{}, &ValidationError{Field: fmt.Sprintf("lines[%d].product_id", i), Reason: "package product has no package weight"}
			}
			weightKg += line.Quantity * product.PackageWeightKg
		case catalog.SaleUnitPiece:
			count := int64(line.Quantity)
			if float64(count) != line.Quantity {
				return ConsumptionEvent{}, &ValidationError{Field: fmt.Sprintf("lines[%d].quantity", i), Reason: "piece quantity must be a whole number"}
			}
			pieces += count
			if product.PackageWeightKg > 0 {
				weightKg += line.Quantity * product.PackageWeightKg
			}
		default:
			return ConsumptionEvent{}, &ValidationError{Field: fmt.Sprintf("lines[%d].product_id", i), Reason: "unknown sale unit"}
		}
		if line.LineTotal == 0 {
			line.LineTotal = line.Quantity * line.UnitPrice
		}
		saleTotal += line.LineTotal
		lines = append(lines, line)
	}

	event := ConsumptionEvent{
		Kind:       EventSale,
		Ref:        input.Ref,
		CategoryID: input.CategoryID,
		WeightKg:   weightKg,
		Pieces:     pieces,
		SaleTotal:  saleTotal,
		Lines:      lines,
		Note:       input.Note,
		OccurredAt: input.OccurredAt,
		CreatedBy:  input.ActorID,
	}
	return s.createEvent(ctx, event)
}

// RecordWaste allocates a waste entry. Waste consumes weight only;
// piece remainders on each lot are untouched.
func (s *Service) RecordWaste(ctx context.Context, input WasteInput) (ConsumptionEvent, error) {
	if input.CategoryID == 0 {
		return ConsumptionEvent{}, &ValidationError{Field: "category_id", Reason: "required"}
	}
	if input.WeightKg < 0 {
		return ConsumptionEvent{}, &ValidationError{Field: "weight_kg", Reason: "must be >= 0"}
	}
	event := ConsumptionEvent{
		Kind:       EventWaste,
		Ref:        input.Ref,
		CategoryID: input.CategoryID,
		WeightKg:   input.WeightKg,
		Note:       input.Note,
		OccurredAt: input.OccurredAt,
		CreatedBy:  input.ActorID,
	}
	return s.createEvent(ctx, event)
}

// RecordPieceTracking allocates a daily piece-count entry for a
// piece-only category. Pieces only; lot weights are untouched.
func (s *Service) RecordPieceTracking(ctx context.Context, input PieceTrackingInput) (ConsumptionEvent, error) {
	if input.CategoryID == 0 {
		return ConsumptionEvent{}, &ValidationError{Field: "category_id", Reason: "required"}
	}
	if input.Pieces < 0 {
		return ConsumptionEvent{}, &ValidationError{Field: "pieces", Reason: "must be >= 0"}
	}
	event := ConsumptionEvent{
		Kind:       EventPieceTracking,
		Ref:        input.Ref,
		CategoryID: input.CategoryID,
		Pieces:     input.Pieces,
		Note:       input.Note,
		OccurredAt: input.OccurredAt,
		CreatedBy:  input.ActorID,
	}
	return s.createEvent(ctx, event)
}

func (s *Service) createEvent(ctx context.Context, event ConsumptionEvent) (ConsumptionEvent, error) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	// Only a caller-supplied reference is stable across retries, so
	// dedupe keys on it; server-generated refs are unique per call.
	var key string
	if event.Ref == "" {
		event.Ref = uuid.NewString()
	} else if s.idempotency != nil {
		key = fmt.Sprintf("%s:%s", event.Kind, event.Ref)
		if err := s.idempotency.CheckAndInsert(ctx, key, "ledger"); err != nil {
			return ConsumptionEvent{}, err
		}
	}

	err := s.withCategoryLock(ctx, event.CategoryID, func(ctx context.Context, tx TxRepository) error {
		trail, err := allocate(ctx, tx, allocationRequest{
			CategoryID: event.CategoryID,
			WeightKg:   event.WeightKg,
			Pieces:     event.Pieces,
		})
		if err != nil {
			return err
		}
		event.Trail = trail
		id, err := tx.InsertEvent(ctx, event)
		if err != nil {
			return err
		}
		event.ID = id
		return nil
	})
	if err != nil {
		if key != "" {
			_ = s.idempotency.Delete(ctx, key)
		}
		return ConsumptionEvent{}, err
	}
	s.recordAudit(ctx, event.CreatedBy, "ledger:"+string(event.Kind), "consumption_event", event.Ref, map[string]any{
		"category_id": event.CategoryID,
		"weight_kg":   event.WeightKg,
		"pieces":      event.Pieces,
	})
	return event, nil
}

// EditEvent reverses the event's trail and re-allocates with the new
// quantities as one atomic unit. If re-allocation fails the transaction
// aborts and the original trail is untouched.
func (s *Service) EditEvent(ctx context.Context, eventID int64, edit EventEdit) (ConsumptionEvent, error) {
	if edit.WeightKg != nil && *edit.WeightKg < 0 {
		return ConsumptionEvent{}, &ValidationError{Field: "weight_kg", Reason: "must be >= 0"}
	}
	if edit.Pieces != nil && *edit.Pieces < 0 {
		return ConsumptionEvent{}, &ValidationError{Field: "pieces", Reason: "must be >= 0"}
	}
	current, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return ConsumptionEvent{}, err
	}

	var updated ConsumptionEvent
	err = s.withCategoryLock(ctx, current.CategoryID, func(ctx context.Context, tx TxRepository) error {
		event, err := tx.GetEventForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		if err := reverseTrail(ctx, tx, event.Trail); err != nil {
			return err
		}
		if edit.WeightKg != nil {
			event.WeightKg = *edit.WeightKg
		}
		if edit.Pieces != nil {
			event.Pieces = *edit.Pieces
		}
		if edit.SaleTotal != nil {
			if event.Kind != EventSale {
				return &ValidationError{Field: "sale_total", Reason: "only sale events carry a total"}
			}
			event.SaleTotal = *edit.SaleTotal
		}
		if edit.Note != nil {
			event.Note = *edit.Note
		}
		trail, err := allocate(ctx, tx, allocationRequest{
			CategoryID: event.CategoryID,
			WeightKg:   event.WeightKg,
			Pieces:     event.Pieces,
		})
		if err != nil {
			return err
		}
		event.Trail = trail
		if err := tx.UpdateEvent(ctx, event); err != nil {
			return err
		}
		updated = event
		return nil
	})
	if err != nil {
		return ConsumptionEvent{}, err
	}
	s.recordAudit(ctx, edit.ActorID, "ledger:event_edit", "consumption_event", updated.Ref, map[string]any{
		"weight_kg": updated.WeightKg,
		"pieces":    updated.Pieces,
	})
	return updated, nil
}

// DeleteEvent reverses the event's trail and removes the event. The
// category's remaining totals return exactly to their pre-event values.
func (s *Service) DeleteEvent(ctx context.Context, eventID, actorID int64) error {
	current, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	err = s.withCategoryLock(ctx, current.CategoryID, func(ctx context.Context, tx TxRepository) error {
		event, err := tx.GetEventForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		if err := reverseTrail(ctx, tx, event.Trail); err != nil {
			return err
		}
		return tx.DeleteEvent(ctx, eventID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "ledger:event_delete", "consumption_event", current.Ref, nil)
	return nil
}

// GetLot returns one lot.
func (s *Service) GetLot(ctx context.Context, id int64) (Lot, error) {
	return s.repo.GetLot(ctx, id)
}

// ListLots returns a category's lots oldest-first.
func (s *Service) ListLots(ctx context.Context, categoryID int64) ([]Lot, error) {
	if categoryID == 0 {
		return nil, &ValidationError{Field: "category_id", Reason: "required"}
	}
	return s.repo.ListLots(ctx, categoryID)
}

// GetEvent returns one event with its trail.
func (s *Service) GetEvent(ctx context.Context, id int64) (ConsumptionEvent, error) {
	return s.repo.GetEvent(ctx, id)
}

// ListEvents returns a category's events within a window.
func (s *Service) ListEvents(ctx context.Context, categoryID int64, from, to time.Time) ([]ConsumptionEvent, error) {
	if categoryID == 0 {
		return nil, &ValidationError{Field: "category_id", Reason: "required"}
	}
	return s.repo.ListEvents(ctx, categoryID, from, to)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
	})
}
