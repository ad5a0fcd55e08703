package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freshledger/freshledger/internal/platform/db"
)

// Repository persists lots and consumption events in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by the service
// and the allocator. Lot listing takes row locks so all writers of one
// category serialise on the same rows.
type TxRepository interface {
	InsertLot(ctx context.Context, lot Lot) (int64, error)
	GetLotForUpdate(ctx context.Context, id int64) (Lot, error)
	ListLotsForUpdate(ctx context.Context, categoryID int64) ([]Lot, error)
	ApplyLotDelta(ctx context.Context, lotID int64, weightDelta float64, piecesDelta int64) error
	UpdateLot(ctx context.Context, lot Lot) error
	DeleteLot(ctx context.Context, id int64) error
	HasTrailReferences(ctx context.Context, lotID int64) (bool, error)

	InsertEvent(ctx context.Context, event ConsumptionEvent) (int64, error)
	GetEventForUpdate(ctx context.Context, id int64) (ConsumptionEvent, error)
	UpdateEvent(ctx context.Context, event ConsumptionEvent) error
	DeleteEvent(ctx context.Context, id int64) error
	ReplaceTrail(ctx context.Context, eventID int64, trail []TrailEntry) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const lotColumns = `id, category_id, vendor_id, purchased_at, total_weight_kg, remaining_weight_kg, total_pieces, remaining_pieces, cost_per_kg, total_cost, created_at`

func scanLot(row pgx.Row) (Lot, error) {
	var lot Lot
	err := row.Scan(&lot.ID, &lot.CategoryID, &lot.VendorID, &lot.PurchasedAt,
		&lot.TotalWeightKg, &lot.RemainingWeightKg, &lot.TotalPieces, &lot.RemainingPieces,
		&lot.CostPerKg, &lot.TotalCost, &lot.CreatedAt)
	return lot, err
}

// GetLot reads one lot outside a transaction.
func (r *Repository) GetLot(ctx context.Context, id int64) (Lot, error) {
	lot, err := scanLot(r.pool.QueryRow(ctx, `SELECT `+lotColumns+` FROM lots WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Lot{}, ErrLotNotFound
	}
	return lot, err
}

// ListLots returns a category's lots oldest-first. The tie-break on id
// keeps allocation deterministic for same-timestamp lots.
func (r *Repository) ListLots(ctx context.Context, categoryID int64) ([]Lot, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+lotColumns+` FROM lots WHERE category_id=$1 ORDER BY purchased_at ASC, id ASC`, categoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLots(rows)
}

// GetEvent reads one event with its trail outside a transaction.
func (r *Repository) GetEvent(ctx context.Context, id int64) (ConsumptionEvent, error) {
	event, err := scanEvent(r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM consumption_events WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ConsumptionEvent{}, ErrEventNotFound
		}
		return ConsumptionEvent{}, err
	}
	trail, err := loadTrail(ctx, r.pool, id)
	if err != nil {
		return ConsumptionEvent{}, err
	}
	event.Trail = trail
	return event, nil
}

// ListEvents returns a category's events within [from, to], oldest-first.
func (r *Repository) ListEvents(ctx context.Context, categoryID int64, from, to time.Time) ([]ConsumptionEvent, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+eventColumns+` FROM consumption_events
WHERE category_id=$1 AND occurred_at BETWEEN $2 AND $3
ORDER BY occurred_at ASC, id ASC`, categoryID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	events := []ConsumptionEvent{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadTrail(ctx context.Context, q querier, eventID int64) ([]TrailEntry, error) {
	rows, err := q.Query(ctx, `SELECT lot_id, weight_deducted, pieces_deducted FROM event_trails WHERE event_id=$1 ORDER BY position ASC`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	trail := []TrailEntry{}
	for rows.Next() {
		var entry TrailEntry
		if err := rows.Scan(&entry.LotID, &entry.WeightKg, &entry.Pieces); err != nil {
			return nil, err
		}
		trail = append(trail, entry)
	}
	return trail, rows.Err()
}

func collectLots(rows pgx.Rows) ([]Lot, error) {
	lots := []Lot{}
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

func (r *txRepository) InsertLot(ctx context.Context, lot Lot) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO lots (category_id, vendor_id, purchased_at, total_weight_kg, remaining_weight_kg, total_pieces, remaining_pieces, cost_per_kg, total_cost, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW()) RETURNING id`,
		lot.CategoryID, lot.VendorID, lot.PurchasedAt, lot.TotalWeightKg, lot.RemainingWeightKg,
		lot.TotalPieces, lot.RemainingPieces, lot.CostPerKg, lot.TotalCost).Scan(&id)
	return id, err
}

func (r *txRepository) GetLotForUpdate(ctx context.Context, id int64) (Lot, error) {
	lot, err := scanLot(r.tx.QueryRow(ctx, `SELECT `+lotColumns+` FROM lots WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Lot{}, ErrLotNotFound
	}
	return lot, err
}

func (r *txRepository) ListLotsForUpdate(ctx context.Context, categoryID int64) ([]Lot, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+lotColumns+` FROM lots WHERE category_id=$1 ORDER BY purchased_at ASC, id ASC FOR UPDATE`, categoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLots(rows)
}

// ApplyLotDelta atomically moves the remaining quantities. The result
// must stay inside [0, total] for each tracked leg.
func (r *txRepository) ApplyLotDelta(ctx context.Context, lotID int64, weightDelta float64, piecesDelta int64) error {
	lot, err := r.GetLotForUpdate(ctx, lotID)
	if err != nil {
		return err
	}
	newWeight := lot.RemainingWeightKg + weightDelta
	if newWeight < -qtyEpsilon || newWeight > lot.TotalWeightKg+qtyEpsilon {
		return &InvariantViolation{LotID: lotID, Detail: fmt.Sprintf("remaining weight %.6f outside [0, %.6f]", newWeight, lot.TotalWeightKg)}
	}
	if newWeight < 0 {
		newWeight = 0
	}
	var newPieces *int64
	if lot.TracksPieces() {
		value := *lot.RemainingPieces + piecesDelta
		if value < 0 || value > *lot.TotalPieces {
			return &InvariantViolation{LotID: lotID, Detail: fmt.Sprintf("remaining pieces %d outside [0, %d]", value, *lot.TotalPieces)}
		}
		newPieces = &value
	} else if piecesDelta != 0 {
		return &InvariantViolation{LotID: lotID, Detail: "piece delta on a lot without piece tracking"}
	}
	_, err = r.tx.Exec(ctx, `UPDATE lots SET remaining_weight_kg=$2, remaining_pieces=$3 WHERE id=$1`, lotID, newWeight, newPieces)
	return err
}

func (r *txRepository) UpdateLot(ctx context.Context, lot Lot) error {
	tag, err := r.tx.Exec(ctx, `UPDATE lots SET total_weight_kg=$2, remaining_weight_kg=$3, total_pieces=$4, remaining_pieces=$5, cost_per_kg=$6, total_cost=$7 WHERE id=$1`,
		lot.ID, lot.TotalWeightKg, lot.RemainingWeightKg, lot.TotalPieces, lot.RemainingPieces, lot.CostPerKg, lot.TotalCost)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLotNotFound
	}
	return nil
}

func (r *txRepository) DeleteLot(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM lots WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLotNotFound
	}
	return nil
}

func (r *txRepository) HasTrailReferences(ctx context.Context, lotID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM event_trails WHERE lot_id=$1)`, lotID).Scan(&exists)
	return exists, err
}

const eventColumns = `id, ref, kind, category_id, weight_kg, pieces, sale_total, lines, note, occurred_at, created_by, created_at`

func scanEvent(row pgx.Row) (ConsumptionEvent, error) {
	var event ConsumptionEvent
	err := row.Scan(&event.ID, &event.Ref, &event.Kind, &event.CategoryID, &event.WeightKg,
		&event.Pieces, &event.SaleTotal, &event.Lines, &event.Note, &event.OccurredAt,
		&event.CreatedBy, &event.CreatedAt)
	return event, err
}

func (r *txRepository) InsertEvent(ctx context.Context, event ConsumptionEvent) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO consumption_events (ref, kind, category_id, weight_kg, pieces, sale_total, lines, note, occurred_at, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW()) RETURNING id`,
		event.Ref, string(event.Kind), event.CategoryID, event.WeightKg, event.Pieces,
		event.SaleTotal, event.Lines, event.Note, event.OccurredAt, event.CreatedBy).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, r.ReplaceTrail(ctx, id, event.Trail)
}

func (r *txRepository) GetEventForUpdate(ctx context.Context, id int64) (ConsumptionEvent, error) {
	event, err := scanEvent(r.tx.QueryRow(ctx, `SELECT `+eventColumns+` FROM consumption_events WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ConsumptionEvent{}, ErrEventNotFound
		}
		return ConsumptionEvent{}, err
	}
	trail, err := loadTrail(ctx, r.tx, id)
	if err != nil {
		return ConsumptionEvent{}, err
	}
	event.Trail = trail
	return event, nil
}

func (r *txRepository) UpdateEvent(ctx context.Context, event ConsumptionEvent) error {
	tag, err := r.tx.Exec(ctx, `UPDATE consumption_events SET weight_kg=$2, pieces=$3, sale_total=$4, note=$5 WHERE id=$1`,
		event.ID, event.WeightKg, event.Pieces, event.SaleTotal, event.Note)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return r.ReplaceTrail(ctx, event.ID, event.Trail)
}

func (r *txRepository) DeleteEvent(ctx context.Context, id int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM event_trails WHERE event_id=$1`, id); err != nil {
		return err
	}
	tag, err := r.tx.Exec(ctx, `DELETE FROM consumption_events WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (r *txRepository) ReplaceTrail(ctx context.Context, eventID int64, trail []TrailEntry) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM event_trails WHERE event_id=$1`, eventID); err != nil {
		return err
	}
	for position, entry := range trail {
		if _, err := r.tx.Exec(ctx, `INSERT INTO event_trails (event_id, position, lot_id, weight_deducted, pieces_deducted)
VALUES ($1,$2,$3,$4,$5)`, eventID, position, entry.LotID, entry.WeightKg, entry.Pieces); err != nil {
			return err
		}
	}
	return nil
}
