package profitloss

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	revenue   map[string]DayAmount
	purchases map[string]DayAmount
	expenses  map[string]DayAmount
}

func (r *fakeRepo) RevenueByDay(ctx context.Context, from, to time.Time) (map[string]DayAmount, error) {
	return r.revenue, nil
}

func (r *fakeRepo) PurchaseCostByDay(ctx context.Context, from, to time.Time) (map[string]DayAmount, error) {
	return r.purchases, nil
}

func (r *fakeRepo) ExpensesByDay(ctx context.Context, from, to time.Time) (map[string]DayAmount, error) {
	return r.expenses, nil
}

func day(d int) time.Time {
	return time.Date(2026, 8, d, 0, 0, 0, 0, time.UTC)
}

func TestGetReportZeroFillsEveryDay(t *testing.T) {
	repo := &fakeRepo{
		revenue: map[string]DayAmount{
			"2026-08-01": {Amount: 500, Count: 4},
			"2026-08-03": {Amount: 250, Count: 2},
		},
		purchases: map[string]DayAmount{
			"2026-08-01": {Amount: 300, Count: 1},
		},
		expenses: map[string]DayAmount{
			"2026-08-04": {Amount: 40, Count: 1},
		},
	}
	svc := NewService(repo, time.UTC)

	report, err := svc.GetReport(context.Background(), day(1), day(5))
	require.NoError(t, err)
	require.Equal(t, "2026-08-01", report.From)
	require.Equal(t, "2026-08-05", report.To)
	require.Len(t, report.Daily, 5)

	first := report.Daily[0]
	require.Equal(t, "2026-08-01", first.Date)
	require.InDelta(t, 500.0, first.Revenue, 1e-9)
	require.InDelta(t, 200.0, first.GrossProfit, 1e-9)
	require.InDelta(t, 200.0, first.NetProfit, 1e-9)

	// Day without activity is present and zeroed.
	second := report.Daily[1]
	require.Equal(t, "2026-08-02", second.Date)
	require.Zero(t, second.Revenue)
	require.Zero(t, second.NetProfit)

	fourth := report.Daily[3]
	require.InDelta(t, -40.0, fourth.NetProfit, 1e-9)

	require.InDelta(t, 750.0, report.Summary.Revenue, 1e-9)
	require.InDelta(t, 300.0, report.Summary.PurchaseCost, 1e-9)
	require.InDelta(t, 40.0, report.Summary.Expenses, 1e-9)
	require.InDelta(t, 450.0, report.Summary.GrossProfit, 1e-9)
	require.InDelta(t, 410.0, report.Summary.NetProfit, 1e-9)
	require.Equal(t, 6, report.Summary.SaleCount)
	require.Equal(t, 1, report.Summary.PurchaseCount)
	require.Equal(t, 1, report.Summary.ExpenseCount)
}

func TestGetReportSingleDay(t *testing.T) {
	repo := &fakeRepo{revenue: map[string]DayAmount{"2026-08-01": {Amount: 100, Count: 1}}}
	svc := NewService(repo, time.UTC)

	report, err := svc.GetReport(context.Background(), day(1), day(1))
	require.NoError(t, err)
	require.Len(t, report.Daily, 1)
	require.InDelta(t, 100.0, report.Summary.Revenue, 1e-9)
}

func TestGetReportInvalidRange(t *testing.T) {
	svc := NewService(&fakeRepo{}, time.UTC)

	_, err := svc.GetReport(context.Background(), day(5), day(1))
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestGetReportRangeTooWide(t *testing.T) {
	svc := NewService(&fakeRepo{}, time.UTC)

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.GetReport(context.Background(), from, to)
	require.ErrorIs(t, err, ErrRangeTooWide)
}

func TestGetReportSpansDSTTransition(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	svc := NewService(&fakeRepo{}, loc)

	// 2026-03-08 is a 23-hour day in this zone; the range still holds
	// three calendar days.
	from := time.Date(2026, 3, 7, 0, 0, 0, 0, loc)
	to := time.Date(2026, 3, 9, 0, 0, 0, 0, loc)
	report, err := svc.GetReport(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, report.Daily, 3)
	require.Equal(t, "2026-03-07", report.Daily[0].Date)
	require.Equal(t, "2026-03-08", report.Daily[1].Date)
	require.Equal(t, "2026-03-09", report.Daily[2].Date)
}

func TestGetReportDeterministic(t *testing.T) {
	repo := &fakeRepo{
		revenue:   map[string]DayAmount{"2026-08-02": {Amount: 120, Count: 1}},
		purchases: map[string]DayAmount{"2026-08-02": {Amount: 80, Count: 1}},
	}
	svc := NewService(repo, time.UTC)

	first, err := svc.GetReport(context.Background(), day(1), day(3))
	require.NoError(t, err)
	second, err := svc.GetReport(context.Background(), day(1), day(3))
	require.NoError(t, err)
	require.Equal(t, first, second)
}
