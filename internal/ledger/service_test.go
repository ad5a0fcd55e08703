package ledger

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/freshledger/freshledger/internal/catalog"
	"github.com/freshledger/freshledger/internal/shared"
)

type memoryRepo struct {
	lots        map[int64]Lot
	events      map[int64]ConsumptionEvent
	nextLotID   int64
	nextEventID int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		lots:   make(map[int64]Lot),
		events: make(map[int64]ConsumptionEvent),
	}
}

// WithTx mimics a real transaction: on error every mutation made by fn
// is rolled back by restoring a deep snapshot.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	lots := snapshotLots(r.lots)
	events := snapshotEvents(r.events)
	nextLotID, nextEventID := r.nextLotID, r.nextEventID
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.lots = lots
		r.events = events
		r.nextLotID = nextLotID
		r.nextEventID = nextEventID
		return err
	}
	return nil
}

func snapshotLots(src map[int64]Lot) map[int64]Lot {
	dst := make(map[int64]Lot, len(src))
	for id, lot := range src {
		if lot.TotalPieces != nil {
			total := *lot.TotalPieces
			lot.TotalPieces = &total
		}
		if lot.RemainingPieces != nil {
			remaining := *lot.RemainingPieces
			lot.RemainingPieces = &remaining
		}
		dst[id] = lot
	}
	return dst
}

func snapshotEvents(src map[int64]ConsumptionEvent) map[int64]ConsumptionEvent {
	dst := make(map[int64]ConsumptionEvent, len(src))
	for id, event := range src {
		event.Trail = append([]TrailEntry(nil), event.Trail...)
		event.Lines = append([]SaleLine(nil), event.Lines...)
		dst[id] = event
	}
	return dst
}

func (r *memoryRepo) GetLot(ctx context.Context, id int64) (Lot, error) {
	lot, ok := r.lots[id]
	if !ok {
		return Lot{}, ErrLotNotFound
	}
	return lot, nil
}

func (r *memoryRepo) ListLots(ctx context.Context, categoryID int64) ([]Lot, error) {
	return r.sortedLots(categoryID), nil
}

func (r *memoryRepo) GetEvent(ctx context.Context, id int64) (ConsumptionEvent, error) {
	event, ok := r.events[id]
	if !ok {
		return ConsumptionEvent{}, ErrEventNotFound
	}
	return event, nil
}

func (r *memoryRepo) ListEvents(ctx context.Context, categoryID int64, from, to time.Time) ([]ConsumptionEvent, error) {
	result := make([]ConsumptionEvent, 0)
	for _, event := range r.events {
		if event.CategoryID == categoryID && !event.OccurredAt.Before(from) && event.OccurredAt.Before(to) {
			result = append(result, event)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *memoryRepo) sortedLots(categoryID int64) []Lot {
	lots := make([]Lot, 0)
	for _, lot := range r.lots {
		if lot.CategoryID == categoryID {
			lots = append(lots, lot)
		}
	}
	sort.Slice(lots, func(i, j int) bool {
		if lots[i].PurchasedAt.Equal(lots[j].PurchasedAt) {
			return lots[i].ID < lots[j].ID
		}
		return lots[i].PurchasedAt.Before(lots[j].PurchasedAt)
	})
	return lots
}

func (tx *memoryTx) InsertLot(ctx context.Context, lot Lot) (int64, error) {
	tx.repo.nextLotID++
	lot.ID = tx.repo.nextLotID
	tx.repo.lots[lot.ID] = lot
	return lot.ID, nil
}

func (tx *memoryTx) GetLotForUpdate(ctx context.Context, id int64) (Lot, error) {
	return tx.repo.GetLot(ctx, id)
}

func (tx *memoryTx) ListLotsForUpdate(ctx context.Context, categoryID int64) ([]Lot, error) {
	return tx.repo.sortedLots(categoryID), nil
}

func (tx *memoryTx) ApplyLotDelta(ctx context.Context, lotID int64, weightDelta float64, piecesDelta int64) error {
	lot, ok := tx.repo.lots[lotID]
	if !ok {
		return ErrLotNotFound
	}
	newWeight := lot.RemainingWeightKg + weightDelta
	if newWeight < -qtyEpsilon || newWeight > lot.TotalWeightKg+qtyEpsilon {
		return &InvariantViolation{LotID: lotID, Detail: fmt.Sprintf("remaining weight %.3f outside [0, %.3f]", newWeight, lot.TotalWeightKg)}
	}
	lot.RemainingWeightKg = newWeight
	if piecesDelta != 0 {
		if !lot.TracksPieces() {
			return &InvariantViolation{LotID: lotID, Detail: "piece delta on lot without piece tracking"}
		}
		newPieces := *lot.RemainingPieces + piecesDelta
		if newPieces < 0 || newPieces > *lot.TotalPieces {
			return &InvariantViolation{LotID: lotID, Detail: fmt.Sprintf("remaining pieces %d outside [0, %d]", newPieces, *lot.TotalPieces)}
		}
		lot.RemainingPieces = &newPieces
	}
	tx.repo.lots[lotID] = lot
	return nil
}

func (tx *memoryTx) UpdateLot(ctx context.Context, lot Lot) error {
	if _, ok := tx.repo.lots[lot.ID]; !ok {
		return ErrLotNotFound
	}
	tx.repo.lots[lot.ID] = lot
	return nil
}

func (tx *memoryTx) DeleteLot(ctx context.Context, id int64) error {
	if _, ok := tx.repo.lots[id]; !ok {
		return ErrLotNotFound
	}
	delete(tx.repo.lots, id)
	return nil
}

func (tx *memoryTx) HasTrailReferences(ctx context.Context, lotID int64) (bool, error) {
	for _, event := range tx.repo.events {
		for _, entry := range event.Trail {
			if entry.LotID == lotID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (tx *memoryTx) InsertEvent(ctx context.Context, event ConsumptionEvent) (int64, error) {
	tx.repo.nextEventID++
	event.ID = tx.repo.nextEventID
	tx.repo.events[event.ID] = event
	return event.ID, nil
}

func (tx *memoryTx) GetEventForUpdate(ctx context.Context, id int64) (ConsumptionEvent, error) {
	return tx.repo.GetEvent(ctx, id)
}

func (tx *memoryTx) UpdateEvent(ctx context.Context, event ConsumptionEvent) error {
	if _, ok := tx.repo.events[event.ID]; !ok {
		return ErrEventNotFound
	}
	tx.repo.events[event.ID] = event
	return nil
}

func (tx *memoryTx) DeleteEvent(ctx context.Context, id int64) error {
	if _, ok := tx.repo.events[id]; !ok {
		return ErrEventNotFound
	}
	delete(tx.repo.events, id)
	return nil
}

func (tx *memoryTx) ReplaceTrail(ctx context.Context, eventID int64, trail []TrailEntry) error {
	event, ok := tx.repo.events[eventID]
	if !ok {
		return ErrEventNotFound
	}
	event.Trail = trail
	tx.repo.events[eventID] = event
	return nil
}

type memoryIdempotency struct {
	keys map[string]string
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: make(map[string]string)}
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if _, ok := m.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = module
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

type memoryCatalog struct {
	products map[int64]catalog.Product
}

func (c *memoryCatalog) GetProduct(ctx context.Context, id int64) (catalog.Product, error) {
	product, ok := c.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	return product, nil
}

func (r *memoryRepo) totalRemaining(categoryID int64) (float64, int64) {
	var weight float64
	var pieces int64
	for _, lot := range r.lots {
		if lot.CategoryID != categoryID {
			continue
		}
		weight += lot.RemainingWeightKg
		if lot.TracksPieces() {
			pieces += *lot.RemainingPieces
		}
	}
	return weight, pieces
}

func newTestService(repo *memoryRepo, cat *memoryCatalog) *Service {
	if cat == nil {
		cat = &memoryCatalog{products: map[int64]catalog.Product{}}
	}
	return NewService(repo, cat, nil, nil, nil, nil)
}

func seedLot(t *testing.T, svc *Service, categoryID int64, weightKg float64, pieces *int64, costPerKg float64, purchasedAt time.Time) Lot {
	t.Helper()
	lot, err := svc.RecordPurchase(context.Background(), PurchaseInput{
		CategoryID:    categoryID,
		VendorID:      1,
		TotalWeightKg: weightKg,
		TotalPieces:   pieces,
		CostPerKg:     costPerKg,
		PurchasedAt:   purchasedAt,
	})
	require.NoError(t, err)
	return lot
}

func ptrInt64(v int64) *int64 { return &v }

func TestRecordPurchaseInitialisesRemainders(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)

	lot := seedLot(t, svc, 1, 40, ptrInt64(200), 18, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	require.InDelta(t, 40.0, lot.RemainingWeightKg, 1e-9)
	require.Equal(t, int64(200), *lot.RemainingPieces)
	require.InDelta(t, 720.0, lot.TotalCost, 1e-9)
}

func TestRecordWasteDrawsOldestFirst(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	first := seedLot(t, svc, 1, 5, nil, 10, base)
	second := seedLot(t, svc, 1, 10, nil, 12, base.Add(24*time.Hour))

	event, err := svc.RecordWaste(context.Background(), WasteInput{CategoryID: 1, WeightKg: 7})
	require.NoError(t, err)
	require.Len(t, event.Trail, 2)
	require.Equal(t, first.ID, event.Trail[0].LotID)
	require.Equal(t, second.ID, event.Trail[1].LotID)

	weight, _ := repo.totalRemaining(1)
	require.InDelta(t, 8.0, weight, 1e-9)
	require.InDelta(t, 0.0, repo.lots[first.ID].RemainingWeightKg, 1e-9)
	require.InDelta(t, 8.0, repo.lots[second.ID].RemainingWeightKg, 1e-9)
}

func TestRecordWasteInsufficientStockLeavesLedgerUntouched(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	seedLot(t, svc, 1, 6, nil, 10, base)
	seedLot(t, svc, 1, 4, nil, 10, base.Add(time.Hour))

	_, err := svc.RecordWaste(context.Background(), WasteInput{CategoryID: 1, WeightKg: 11})
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)

	weight, _ := repo.totalRemaining(1)
	require.InDelta(t, 10.0, weight, 1e-9)
	require.Empty(t, repo.events)
}

func TestRecordSaleResolvesLineUnits(t *testing.T) {
	repo := newMemoryRepo()
	cat := &memoryCatalog{products: map[int64]catalog.Product{
		1: {ID: 1, CategoryID: 1, SaleUnit: catalog.SaleUnitWeight, Price: 28.5},
		2: {ID: 2, CategoryID: 1, SaleUnit: catalog.SaleUnitPackage, PackageWeightKg: 0.5, Price: 16},
	}}
	svc := newTestService(repo, cat)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	seedLot(t, svc, 1, 20, nil, 18, base)

	event, err := svc.RecordSale(context.Background(), SaleInput{
		CategoryID: 1,
		Lines: []SaleLine{
			{ProductID: 1, Quantity: 2, UnitPrice: 28.5},
			{ProductID: 2, Quantity: 4, UnitPrice: 16},
		},
	})
	require.NoError(t, err)
	require.Equal(t, EventSale, event.Kind)
	// 2 kg by weight plus 4 packages of 0.5 kg.
	require.InDelta(t, 4.0, event.WeightKg, 1e-9)
	require.InDelta(t, 2*28.5+4*16, event.SaleTotal, 1e-9)

	weight, _ := repo.totalRemaining(1)
	require.InDelta(t, 16.0, weight, 1e-9)
}

func TestRecordSalePieceProductDrawsBothLegs(t *testing.T) {
	repo := newMemoryRepo()
	cat := &memoryCatalog{products: map[int64]catalog.Product{
		4: {ID: 4, CategoryID: 2, SaleUnit: catalog.SaleUnitPiece, PackageWeightKg: 0.025, Price: 2.25},
	}}
	svc := newTestService(repo, cat)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	seedLot(t, svc, 2, 8, ptrInt64(320), 12, base)

	event, err := svc.RecordSale(context.Background(), SaleInput{
		CategoryID: 2,
		Lines:      []SaleLine{{ProductID: 4, Quantity: 40, UnitPrice: 2.25}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(40), event.Pieces)
	require.InDelta(t, 1.0, event.WeightKg, 1e-9)

	weight, pieces := repo.totalRemaining(2)
	require.InDelta(t, 7.0, weight, 1e-9)
	require.Equal(t, int64(280), pieces)
}

func TestRecordSaleFractionalPieceQuantityRejected(t *testing.T) {
	repo := newMemoryRepo()
	cat := &memoryCatalog{products: map[int64]catalog.Product{
		4: {ID: 4, CategoryID: 2, SaleUnit: catalog.SaleUnitPiece, Price: 2.25},
	}}
	svc := newTestService(repo, cat)
	seedLot(t, svc, 2, 8, ptrInt64(320), 12, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))

	_, err := svc.RecordSale(context.Background(), SaleInput{
		CategoryID: 2,
		Lines:      []SaleLine{{ProductID: 4, Quantity: 2.5, UnitPrice: 2.25}},
	})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestRecordSaleCrossCategoryProductRejected(t *testing.T) {
	repo := newMemoryRepo()
	cat := &memoryCatalog{products: map[int64]catalog.Product{
		1: {ID: 1, CategoryID: 9, SaleUnit: catalog.SaleUnitWeight, Price: 10},
	}}
	svc := newTestService(repo, cat)
	seedLot(t, svc, 1, 20, nil, 18, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))

	_, err := svc.RecordSale(context.Background(), SaleInput{
		CategoryID: 1,
		Lines:      []SaleLine{{ProductID: 1, Quantity: 1, UnitPrice: 10}},
	})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestRecordPieceTrackingPiecesOnly(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	lot := seedLot(t, svc, 2, 8, ptrInt64(320), 12, base)

	event, err := svc.RecordPieceTracking(context.Background(), PieceTrackingInput{CategoryID: 2, Pieces: 50})
	require.NoError(t, err)
	require.Equal(t, EventPieceTracking, event.Kind)

	stored := repo.lots[lot.ID]
	require.InDelta(t, 8.0, stored.RemainingWeightKg, 1e-9)
	require.Equal(t, int64(270), *stored.RemainingPieces)
}

func TestDeleteEventRestoresRemainders(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	seedLot(t, svc, 1, 5, nil, 10, base)
	seedLot(t, svc, 1, 10, nil, 12, base.Add(time.Hour))

	event, err := svc.RecordWaste(context.Background(), WasteInput{CategoryID: 1, WeightKg: 7})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteEvent(context.Background(), event.ID, 1))

	weight, _ := repo.totalRemaining(1)
	require.InDelta(t, 15.0, weight, 1e-9)
	require.Empty(t, repo.events)
}

func TestEditEventReallocates(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	first := seedLot(t, svc, 1, 5, nil, 10, base)
	seedLot(t, svc, 1, 10, nil, 12, base.Add(time.Hour))

	event, err := svc.RecordWaste(context.Background(), WasteInput{CategoryID: 1, WeightKg: 3})
	require.NoError(t, err)
	require.InDelta(t, 2.0, repo.lots[first.ID].RemainingWeightKg, 1e-9)

	newWeight := 4.0
	updated, err := svc.EditEvent(context.Background(), event.ID, EventEdit{WeightKg: &newWeight})
	require.NoError(t, err)
	require.InDelta(t, 4.0, updated.WeightKg, 1e-9)

	// Net effect of reverse + reallocate: exactly 4 kg drawn, oldest first.
	require.InDelta(t, 1.0, repo.lots[first.ID].RemainingWeightKg, 1e-9)
	weight, _ := repo.totalRemaining(1)
	require.InDelta(t, 11.0, weight, 1e-9)
}

func TestEditEventFailedReallocationKeepsOriginal(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	seedLot(t, svc, 1, 10, nil, 10, base)

	event, err := svc.RecordWaste(context.Background(), WasteInput{CategoryID: 1, WeightKg: 3})
	require.NoError(t, err)

	tooMuch := 50.0
	_, err = svc.EditEvent(context.Background(), event.ID, EventEdit{WeightKg: &tooMuch})
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)

	// The aborted edit rolls back its trail reversal: the event still
	// claims its 3 kg draw and the lot remainder is unchanged.
	stored := repo.events[event.ID]
	require.InDelta(t, 3.0, stored.WeightKg, 1e-9)
	require.Len(t, stored.Trail, 1)
	require.InDelta(t, 3.0, stored.Trail[0].WeightKg, 1e-9)

	weight, _ := repo.totalRemaining(1)
	require.InDelta(t, 7.0, weight, 1e-9)
}

func TestEditLotPreservesConsumed(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	lot := seedLot(t, svc, 1, 10, nil, 10, base)

	_, err := svc.RecordWaste(context.Background(), WasteInput{CategoryID: 1, WeightKg: 4})
	require.NoError(t, err)

	updated, err := svc.EditLot(context.Background(), lot.ID, LotEdit{TotalWeightKg: 12, CostPerKg: 11})
	require.NoError(t, err)
	require.InDelta(t, 8.0, updated.RemainingWeightKg, 1e-9)
	require.InDelta(t, 132.0, updated.TotalCost, 1e-9)
}

func TestEditLotCannotShrinkBelowConsumed(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	lot := seedLot(t, svc, 1, 10, nil, 10, base)

	_, err := svc.RecordWaste(context.Background(), WasteInput{CategoryID: 1, WeightKg: 4})
	require.NoError(t, err)

	_, err = svc.EditLot(context.Background(), lot.ID, LotEdit{TotalWeightKg: 3, CostPerKg: 10})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestEditLotCannotDropPieceTrackingWithPiecesDrawn(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	lot := seedLot(t, svc, 2, 8, ptrInt64(100), 12, base)

	_, err := svc.RecordPieceTracking(context.Background(), PieceTrackingInput{CategoryID: 2, Pieces: 10})
	require.NoError(t, err)

	_, err = svc.EditLot(context.Background(), lot.ID, LotEdit{TotalWeightKg: 8, CostPerKg: 12})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestDeleteLotGuards(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	drawn := seedLot(t, svc, 1, 10, nil, 10, base)
	clean := seedLot(t, svc, 1, 5, nil, 10, base.Add(time.Hour))

	_, err := svc.RecordWaste(context.Background(), WasteInput{CategoryID: 1, WeightKg: 2})
	require.NoError(t, err)

	err = svc.DeleteLot(context.Background(), drawn.ID, 1)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)

	require.NoError(t, svc.DeleteLot(context.Background(), clean.ID, 1))
	_, err = svc.GetLot(context.Background(), clean.ID)
	require.ErrorIs(t, err, ErrLotNotFound)
}

func TestDeleteLotBlockedByTrailReference(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	lot := seedLot(t, svc, 1, 10, nil, 10, base)

	// A trail entry referencing the lot blocks deletion even when the
	// remaining quantities are back at their totals.
	repo.nextEventID++
	repo.events[repo.nextEventID] = ConsumptionEvent{
		ID:         repo.nextEventID,
		Kind:       EventWaste,
		CategoryID: 1,
		Trail:      []TrailEntry{{LotID: lot.ID}},
	}

	err := svc.DeleteLot(context.Background(), lot.ID, 1)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)

	require.NoError(t, svc.DeleteEvent(context.Background(), repo.nextEventID, 1))
	require.NoError(t, svc.DeleteLot(context.Background(), lot.ID, 1))
}

func TestRecordWasteDuplicateReferenceRejected(t *testing.T) {
	repo := newMemoryRepo()
	idem := newMemoryIdempotency()
	cat := &memoryCatalog{products: map[int64]catalog.Product{}}
	svc := NewService(repo, cat, nil, nil, idem, nil)
	seedLot(t, svc, 1, 10, nil, 10, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))

	input := WasteInput{CategoryID: 1, Ref: "shift-7-waste-1", WeightKg: 3}
	event, err := svc.RecordWaste(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, "shift-7-waste-1", event.Ref)

	// A retried submission must not deduct a second time.
	_, err = svc.RecordWaste(context.Background(), input)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)

	weight, _ := repo.totalRemaining(1)
	require.InDelta(t, 7.0, weight, 1e-9)
	require.Len(t, repo.events, 1)
}

func TestRecordWasteFailedAllocationReleasesReference(t *testing.T) {
	repo := newMemoryRepo()
	idem := newMemoryIdempotency()
	cat := &memoryCatalog{products: map[int64]catalog.Product{}}
	svc := NewService(repo, cat, nil, nil, idem, nil)
	seedLot(t, svc, 1, 5, nil, 10, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))

	_, err := svc.RecordWaste(context.Background(), WasteInput{CategoryID: 1, Ref: "shift-7-waste-2", WeightKg: 9})
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)

	// The reference is released when nothing was recorded, so the
	// corrected retry goes through.
	event, err := svc.RecordWaste(context.Background(), WasteInput{CategoryID: 1, Ref: "shift-7-waste-2", WeightKg: 3})
	require.NoError(t, err)
	require.Equal(t, "shift-7-waste-2", event.Ref)
}

func TestRecordWasteWithoutReferenceGeneratesRef(t *testing.T) {
	repo := newMemoryRepo()
	idem := newMemoryIdempotency()
	cat := &memoryCatalog{products: map[int64]catalog.Product{}}
	svc := NewService(repo, cat, nil, nil, idem, nil)
	seedLot(t, svc, 1, 10, nil, 10, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))

	first, err := svc.RecordWaste(context.Background(), WasteInput{CategoryID: 1, WeightKg: 2})
	require.NoError(t, err)
	require.NotEmpty(t, first.Ref)

	second, err := svc.RecordWaste(context.Background(), WasteInput{CategoryID: 1, WeightKg: 2})
	require.NoError(t, err)
	require.NotEqual(t, first.Ref, second.Ref)
	require.Empty(t, idem.keys)
}

func TestRecordPurchaseValidation(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)

	var validation *ValidationError
	_, err := svc.RecordPurchase(context.Background(), PurchaseInput{CategoryID: 1, TotalWeightKg: 0})
	require.ErrorAs(t, err, &validation)

	_, err = svc.RecordPurchase(context.Background(), PurchaseInput{TotalWeightKg: 5})
	require.ErrorAs(t, err, &validation)

	_, err = svc.RecordPurchase(context.Background(), PurchaseInput{CategoryID: 1, TotalWeightKg: 5, CostPerKg: -1})
	require.ErrorAs(t, err, &validation)
}
