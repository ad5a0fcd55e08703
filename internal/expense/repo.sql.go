package expense

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists extra expenses in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, e ExtraExpense) (ExtraExpense, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO extra_expenses (amount, expense_date, note, created_by, created_at)
VALUES ($1,$2,$3,$4,NOW()) RETURNING id, created_at`, e.Amount, e.ExpenseDate, e.Note, e.CreatedBy).Scan(&e.ID, &e.CreatedAt)
	return e, err
}

func (r *Repository) Get(ctx context.Context, id int64) (ExtraExpense, error) {
	var e ExtraExpense
	err := r.pool.QueryRow(ctx, `SELECT id, amount, expense_date, note, created_by, created_at FROM extra_expenses WHERE id=$1`, id).
		Scan(&e.ID, &e.Amount, &e.ExpenseDate, &e.Note, &e.CreatedBy, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ExtraExpense{}, ErrNotFound
	}
	return e, err
}

func (r *Repository) List(ctx context.Context, from, to time.Time) ([]ExtraExpense, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, amount, expense_date, note, created_by, created_at FROM extra_expenses
WHERE expense_date >= $1 AND expense_date < $2
ORDER BY expense_date ASC, id ASC`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	expenses := []ExtraExpense{}
	for rows.Next() {
		var e ExtraExpense
		if err := rows.Scan(&e.ID, &e.Amount, &e.ExpenseDate, &e.Note, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM extra_expenses WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
