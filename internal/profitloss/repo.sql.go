package profitloss

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SQLRepository reads profit/loss inputs from PostgreSQL. Rows are
// bucketed by calendar day in the ledger timezone.
type SQLRepository struct {
	pool *pgxpool.Pool
	tz   string
}

// NewRepository constructs SQLRepository. tz is an IANA zone name used
// for day bucketing, e.g. "Asia/Yangon" or "UTC".
func NewRepository(pool *pgxpool.Pool, tz string) *SQLRepository {
	if tz == "" {
		tz = "UTC"
	}
	return &SQLRepository{pool: pool, tz: tz}
}

func (r *SQLRepository) byDay(ctx context.Context, query string, from, to time.Time) (map[string]DayAmount, error) {
	if r == nil {
		return nil, errors.New("profitloss repository not initialised")
	}
	rows, err := r.pool.Query(ctx, query, from, to, r.tz)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := map[string]DayAmount{}
	for rows.Next() {
		var day time.Time
		var amount DayAmount
		if err := rows.Scan(&day, &amount.Amount, &amount.Count); err != nil {
			return nil, err
		}
		result[day.Format("2006-01-02")] = amount
	}
	return result, rows.Err()
}

// RevenueByDay sums sale totals per day over [from, to).
func (r *SQLRepository) RevenueByDay(ctx context.Context, from, to time.Time) (map[string]DayAmount, error) {
	return r.byDay(ctx, `SELECT (occurred_at AT TIME ZONE $3)::date AS day, COALESCE(SUM(sale_total), 0), COUNT(*)
FROM consumption_events
WHERE kind = 'SALE' AND occurred_at >= $1 AND occurred_at < $2
GROUP BY day`, from, to)
}

// PurchaseCostByDay sums lot costs per purchase day over [from, to).
func (r *SQLRepository) PurchaseCostByDay(ctx context.Context, from, to time.Time) (map[string]DayAmount, error) {
	return r.byDay(ctx, `SELECT (purchased_at AT TIME ZONE $3)::date AS day, COALESCE(SUM(total_cost), 0), COUNT(*)
FROM lots
WHERE purchased_at >= $1 AND purchased_at < $2
GROUP BY day`, from, to)
}

// ExpensesByDay sums extra expenses per day over [from, to).
func (r *SQLRepository) ExpensesByDay(ctx context.Context, from, to time.Time) (map[string]DayAmount, error) {
	return r.byDay(ctx, `SELECT (expense_date AT TIME ZONE $3)::date AS day, COALESCE(SUM(amount), 0), COUNT(*)
FROM extra_expenses
WHERE expense_date >= $1 AND expense_date < $2
GROUP BY day`, from, to)
}
