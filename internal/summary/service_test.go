package summary

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	rows       []StockRow
	waste      map[string]map[int64]float64
	wasteCalls []struct{ from, to time.Time }
}

func (r *fakeRepo) StockTotals(ctx context.Context) ([]StockRow, error) {
	return r.rows, nil
}

func (r *fakeRepo) WasteTotals(ctx context.Context, from, to time.Time) (map[int64]float64, error) {
	r.wasteCalls = append(r.wasteCalls, struct{ from, to time.Time }{from, to})
	key := from.Format("2006-01-02") + "/" + to.Format("2006-01-02")
	return r.waste[key], nil
}

func TestGetSummaryWindows(t *testing.T) {
	repo := &fakeRepo{
		rows: []StockRow{{CategoryID: 1, Name: "Salmon", TotalWeightKg: 30, ReorderThresholdKg: 20}},
	}
	svc := NewService(repo, time.UTC)
	svc.WithNow(func() time.Time {
		return time.Date(2026, 8, 15, 14, 30, 0, 0, time.UTC)
	})

	_, err := svc.GetSummary(context.Background())
	require.NoError(t, err)
	require.Len(t, repo.wasteCalls, 2)

	today := repo.wasteCalls[0]
	require.Equal(t, time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC), today.from)
	require.Equal(t, time.Date(2026, 8, 16, 0, 0, 0, 0, time.UTC), today.to)

	week := repo.wasteCalls[1]
	require.Equal(t, time.Date(2026, 8, 9, 0, 0, 0, 0, time.UTC), week.from)
	require.Equal(t, time.Date(2026, 8, 16, 0, 0, 0, 0, time.UTC), week.to)
}

func TestGetSummaryWastePercentages(t *testing.T) {
	repo := &fakeRepo{
		rows: []StockRow{
			{CategoryID: 1, Name: "Salmon", TotalWeightKg: 18, ReorderThresholdKg: 10},
			{CategoryID: 2, Name: "Tuna", TotalWeightKg: 0, ReorderThresholdKg: 5},
		},
		waste: map[string]map[int64]float64{
			"2026-08-15/2026-08-16": {1: 2},
			"2026-08-09/2026-08-16": {1: 6},
		},
	}
	svc := NewService(repo, time.UTC)
	svc.WithNow(func() time.Time {
		return time.Date(2026, 8, 15, 9, 0, 0, 0, time.UTC)
	})

	rows, err := svc.GetSummary(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	salmon := rows[0]
	require.InDelta(t, 2.0, salmon.TodayWasteKg, 1e-9)
	require.InDelta(t, 2.0/20.0*100, salmon.TodayWastePercent, 1e-9)
	require.InDelta(t, 6.0/24.0*100, salmon.WeekWastePercent, 1e-9)

	// No stock and no waste: percentages stay zero, no division by zero.
	tuna := rows[1]
	require.Zero(t, tuna.TodayWastePercent)
	require.Zero(t, tuna.WeekWastePercent)
	require.True(t, tuna.LowStock)
}

func TestGetSummaryLowStockStrictlyBelowThreshold(t *testing.T) {
	repo := &fakeRepo{
		rows: []StockRow{
			{CategoryID: 1, Name: "At threshold", TotalWeightKg: 20, ReorderThresholdKg: 20},
			{CategoryID: 2, Name: "Just below", TotalWeightKg: 19.99, ReorderThresholdKg: 20},
			{CategoryID: 3, Name: "Zero threshold", TotalWeightKg: 0, ReorderThresholdKg: 0},
		},
	}
	svc := NewService(repo, time.UTC)

	rows, err := svc.GetSummary(context.Background())
	require.NoError(t, err)
	require.False(t, rows[0].LowStock)
	require.True(t, rows[1].LowStock)
	require.False(t, rows[2].LowStock)
}

func TestGetSummaryUsesConfiguredTimezone(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	repo := &fakeRepo{rows: []StockRow{{CategoryID: 1, Name: "Salmon"}}}
	svc := NewService(repo, loc)
	// 18:00 UTC on Aug 15 is already Aug 16 at UTC+7.
	svc.WithNow(func() time.Time {
		return time.Date(2026, 8, 15, 18, 0, 0, 0, time.UTC)
	})

	_, err := svc.GetSummary(context.Background())
	require.NoError(t, err)

	today := repo.wasteCalls[0]
	require.Equal(t, time.Date(2026, 8, 16, 0, 0, 0, 0, loc), today.from)
}
