package ledger

import "context"

const qtyEpsilon = 1e-9

// allocationRequest is one consumption request against a category.
// Weight and pieces are allocated independently over the same
// oldest-first walk; either leg may be zero.
type allocationRequest struct {
	CategoryID int64
	WeightKg   float64
	Pieces     int64
}

// planAllocation computes the full FIFO deduction plan against a lot
// snapshot without mutating anything. Lots must already be ordered
// oldest-first by (purchased_at, id).
//
// The plan is computed fully before any delta is committed, so a failed
// allocation leaves the ledger byte-identical to before the call.
func planAllocation(lots []Lot, req allocationRequest) ([]TrailEntry, error) {
	if req.WeightKg < 0 {
		return nil, &ValidationError{Field: "weight_kg", Reason: "must be >= 0"}
	}
	if req.Pieces < 0 {
		return nil, &ValidationError{Field: "pieces", Reason: "must be >= 0"}
	}
	if req.WeightKg <= qtyEpsilon && req.Pieces == 0 {
		return nil, nil
	}

	if req.Pieces > 0 {
		tracked := false
		for _, lot := range lots {
			if lot.TracksPieces() {
				tracked = true
				break
			}
		}
		if !tracked {
			return nil, &ValidationError{Field: "pieces", Reason: "category lots do not track pieces"}
		}
	}

	weightNeed := req.WeightKg
	pieceNeed := req.Pieces
	entries := make([]TrailEntry, 0, len(lots))
	for _, lot := range lots {
		if weightNeed <= qtyEpsilon && pieceNeed == 0 {
			break
		}
		entry := TrailEntry{LotID: lot.ID}
		if weightNeed > qtyEpsilon && lot.RemainingWeightKg > qtyEpsilon {
			take := lot.RemainingWeightKg
			if weightNeed < take {
				take = weightNeed
			}
			entry.WeightKg = take
			weightNeed -= take
		}
		if pieceNeed > 0 && lot.TracksPieces() && *lot.RemainingPieces > 0 {
			take := *lot.RemainingPieces
			if pieceNeed < take {
				take = pieceNeed
			}
			entry.Pieces = take
			pieceNeed -= take
		}
		if entry.WeightKg > 0 || entry.Pieces > 0 {
			entries = append(entries, entry)
		}
	}

	if weightNeed > qtyEpsilon {
		return nil, &InsufficientStockError{
			CategoryID: req.CategoryID,
			Leg:        "weight",
			Requested:  req.WeightKg,
			Available:  req.WeightKg - weightNeed,
		}
	}
	if pieceNeed > 0 {
		return nil, &InsufficientStockError{
			CategoryID: req.CategoryID,
			Leg:        "pieces",
			Requested:  float64(req.Pieces),
			Available:  float64(req.Pieces - pieceNeed),
		}
	}
	return entries, nil
}

// commitTrail applies the planned deductions in allocation order.
func commitTrail(ctx context.Context, tx TxRepository, trail []TrailEntry) error {
	for _, entry := range trail {
		if err := tx.ApplyLotDelta(ctx, entry.LotID, -entry.WeightKg, -entry.Pieces); err != nil {
			return err
		}
	}
	return nil
}

// reverseTrail restores lot remainders by replaying the trail in
// reverse with positive deltas. A restore the lot no longer supports
// (deleted lot, shrunk totals) is a structural conflict the caller
// must resolve before retrying.
func reverseTrail(ctx context.Context, tx TxRepository, trail []TrailEntry) error {
	for i := len(trail) - 1; i >= 0; i-- {
		entry := trail[i]
		if err := tx.ApplyLotDelta(ctx, entry.LotID, entry.WeightKg, entry.Pieces); err != nil {
			return &ConflictError{Detail: "trail reversal not supported by lot state: " + err.Error()}
		}
	}
	return nil
}

// allocate plans against the category's lots under row locks and
// commits the resulting trail.
func allocate(ctx context.Context, tx TxRepository, req allocationRequest) ([]TrailEntry, error) {
	lots, err := tx.ListLotsForUpdate(ctx, req.CategoryID)
	if err != nil {
		return nil, err
	}
	trail, err := planAllocation(lots, req)
	if err != nil {
		return nil, err
	}
	if err := commitTrail(ctx, tx, trail); err != nil {
		return nil, err
	}
	return trail, nil
}
