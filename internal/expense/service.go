package expense

import (
	"context"
	"time"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	Insert(ctx context.Context, e ExtraExpense) (ExtraExpense, error)
	Get(ctx context.Context, id int64) (ExtraExpense, error)
	List(ctx context.Context, from, to time.Time) ([]ExtraExpense, error)
	Delete(ctx context.Context, id int64) error
}

// Service records and lists extra expenses.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Record stores one expense.
func (s *Service) Record(ctx context.Context, amount float64, date time.Time, note string, actorID int64) (ExtraExpense, error) {
	if amount <= 0 {
		return ExtraExpense{}, ErrInvalidAmount
	}
	if date.IsZero() {
		date = time.Now().UTC()
	}
	return s.repo.Insert(ctx, ExtraExpense{
		Amount:      amount,
		ExpenseDate: date,
		Note:        note,
		CreatedBy:   actorID,
	})
}

// List returns expenses within [from, to).
func (s *Service) List(ctx context.Context, from, to time.Time) ([]ExtraExpense, error) {
	return s.repo.List(ctx, from, to)
}

// Delete removes one expense.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}
