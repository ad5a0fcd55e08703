package summary

import (
	"context"
	"time"
)

// CategorySummary is the live per-category stock view.
type CategorySummary struct {
	CategoryID         int64   `json:"category_id"`
	Name               string  `json:"name"`
	TotalWeightKg      float64 `json:"total_weight_kg"`
	TotalPieces        int64   `json:"total_pieces"`
	TodayWasteKg       float64 `json:"today_waste_kg"`
	TodayWastePercent  float64 `json:"today_waste_percentage"`
	WeekWasteKg        float64 `json:"week_waste_kg"`
	WeekWastePercent   float64 `json:"week_waste_percentage"`
	ReorderThresholdKg float64 `json:"reorder_threshold_kg"`
	LowStock           bool    `json:"low_stock"`
}

// StockRow is one category's remaining totals as read from the lots.
type StockRow struct {
	CategoryID         int64
	Name               string
	ReorderThresholdKg float64
	TotalWeightKg      float64
	TotalPieces        int64
}

// Repository abstracts the read queries the engine needs.
type Repository interface {
	StockTotals(ctx context.Context) ([]StockRow, error)
	WasteTotals(ctx context.Context, from, to time.Time) (map[int64]float64, error)
}

// Service computes inventory summaries. It holds no cached state; every
// call recomputes from the lots and waste history, trading recomputation
// cost for freshness.
type Service struct {
	repo Repository
	loc  *time.Location
	now  func() time.Time
}

// NewService builds Service. loc is the ledger's calendar timezone.
func NewService(repo Repository, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, loc: loc, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// GetSummary returns the per-category stock summary: remaining totals,
// today's and the trailing week's waste, and the low-stock flag.
func (s *Service) GetSummary(ctx context.Context) ([]CategorySummary, error) {
	rows, err := s.repo.StockTotals(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().In(s.loc)
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	tomorrowStart := todayStart.AddDate(0, 0, 1)
	weekStart := todayStart.AddDate(0, 0, -6)

	todayWaste, err := s.repo.WasteTotals(ctx, todayStart, tomorrowStart)
	if err != nil {
		return nil, err
	}
	weekWaste, err := s.repo.WasteTotals(ctx, weekStart, tomorrowStart)
	if err != nil {
		return nil, err
	}

	summaries := make([]CategorySummary, 0, len(rows))
	for _, row := range rows {
		item := CategorySummary{
			CategoryID:         row.CategoryID,
			Name:               row.Name,
			TotalWeightKg:      row.TotalWeightKg,
			TotalPieces:        row.TotalPieces,
			TodayWasteKg:       todayWaste[row.CategoryID],
			WeekWasteKg:        weekWaste[row.CategoryID],
			ReorderThresholdKg: row.ReorderThresholdKg,
			LowStock:           row.TotalWeightKg < row.ReorderThresholdKg,
		}
		item.TodayWastePercent = wastePercent(item.TodayWasteKg, row.TotalWeightKg)
		item.WeekWastePercent = wastePercent(item.WeekWasteKg, row.TotalWeightKg)
		summaries = append(summaries, item)
	}
	return summaries, nil
}

// wastePercent relates waste to the stock that existed before it was
// wasted: waste / (waste + remaining) * 100, zero when nothing existed.
func wastePercent(wasteKg, remainingKg float64) float64 {
	denom := wasteKg + remainingKg
	if denom == 0 {
		return 0
	}
	return wasteKg / denom * 100
}
