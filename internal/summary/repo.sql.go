package summary

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SQLRepository reads summary inputs from PostgreSQL.
type SQLRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs SQLRepository.
func NewRepository(pool *pgxpool.Pool) *SQLRepository {
	return &SQLRepository{pool: pool}
}

// StockTotals sums remaining weight and pieces per category, including
// categories that currently hold no lots.
func (r *SQLRepository) StockTotals(ctx context.Context) ([]StockRow, error) {
	if r == nil {
		return nil, errors.New("summary repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT c.id, c.name, c.reorder_threshold_kg,
COALESCE(SUM(l.remaining_weight_kg), 0), COALESCE(SUM(COALESCE(l.remaining_pieces, 0)), 0)
FROM categories c
LEFT JOIN lots l ON l.category_id = c.id
GROUP BY c.id, c.name, c.reorder_threshold_kg
ORDER BY c.name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []StockRow{}
	for rows.Next() {
		var row StockRow
		if err := rows.Scan(&row.CategoryID, &row.Name, &row.ReorderThresholdKg, &row.TotalWeightKg, &row.TotalPieces); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// WasteTotals sums waste kilograms per category over [from, to).
func (r *SQLRepository) WasteTotals(ctx context.Context, from, to time.Time) (map[int64]float64, error) {
	if r == nil {
		return nil, errors.New("summary repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT category_id, COALESCE(SUM(weight_kg), 0)
FROM consumption_events
WHERE kind = 'WASTE' AND occurred_at >= $1 AND occurred_at < $2
GROUP BY category_id`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	totals := map[int64]float64{}
	for rows.Next() {
		var categoryID int64
		var kg float64
		if err := rows.Scan(&categoryID, &kg); err != nil {
			return nil, err
		}
		totals[categoryID] = kg
	}
	return totals, rows.Err()
}
