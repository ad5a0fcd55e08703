package profitloss

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
)

// maxRangeDays caps a single report request.
const maxRangeDays = 366

// ErrInvalidRange indicates start after end or an unparseable date.
var ErrInvalidRange = errors.New("profitloss: invalid date range")

// ErrRangeTooWide indicates a request over more than a year of days.
var ErrRangeTooWide = errors.New("profitloss: date range too wide")

// DayAmount is one day's total and transaction count for one series.
type DayAmount struct {
	Amount float64
	Count  int
}

// DailyBreakdown is one calendar day of the report. Days without
// activity are zero-filled, never omitted.
type DailyBreakdown struct {
	Date         string  `json:"date"`
	Revenue      float64 `json:"revenue"`
	PurchaseCost float64 `json:"purchase_cost"`
	Expenses     float64 `json:"expenses"`
	GrossProfit  float64 `json:"gross_profit"`
	NetProfit    float64 `json:"net_profit"`
}

// Summary totals the series over the range.
type Summary struct {
	Revenue       float64 `json:"revenue"`
	PurchaseCost  float64 `json:"purchase_cost"`
	Expenses      float64 `json:"expenses"`
	GrossProfit   float64 `json:"gross_profit"`
	NetProfit     float64 `json:"net_profit"`
	SaleCount     int     `json:"sale_count"`
	PurchaseCount int     `json:"purchase_count"`
	ExpenseCount  int     `json:"expense_count"`
}

// Report is the profit/loss view over an inclusive date range.
type Report struct {
	From    string           `json:"from"`
	To      string           `json:"to"`
	Summary Summary          `json:"summary"`
	Daily   []DailyBreakdown `json:"daily_breakdown"`
}

// Repository abstracts the bucketed read queries. Keys are calendar
// dates formatted 2006-01-02 in the ledger timezone.
type Repository interface {
	RevenueByDay(ctx context.Context, from, to time.Time) (map[string]DayAmount, error)
	PurchaseCostByDay(ctx context.Context, from, to time.Time) (map[string]DayAmount, error)
	ExpensesByDay(ctx context.Context, from, to time.Time) (map[string]DayAmount, error)
}

// Service joins sales, purchase costs and extra expenses into daily
// gross/net profit series. It performs no mutation; re-running over an
// unchanged ledger yields an identical report.
type Service struct {
	repo Repository
	loc  *time.Location
}

// NewService builds Service. loc is the ledger's calendar timezone.
func NewService(repo Repository, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, loc: loc}
}

// GetReport computes the profit/loss report for [from, to], both
// inclusive calendar days.
func (s *Service) GetReport(ctx context.Context, from, to time.Time) (Report, error) {
	fromDay := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, s.loc)
	toDay := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, s.loc)
	if toDay.Before(fromDay) {
		return Report{}, ErrInvalidRange
	}
	// Count calendar days in UTC; local midnights drift across DST
	// transitions, where a day spans 23 or 25 hours.
	days := int(time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC).
		Sub(time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)).Hours()/24) + 1
	if days > maxRangeDays {
		return Report{}, ErrRangeTooWide
	}
	rangeEnd := toDay.AddDate(0, 0, 1)

	var revenue, purchases, expenses map[string]DayAmount
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		revenue, err = s.repo.RevenueByDay(gctx, fromDay, rangeEnd)
		return err
	})
	g.Go(func() error {
		var err error
		purchases, err = s.repo.PurchaseCostByDay(gctx, fromDay, rangeEnd)
		return err
	})
	g.Go(func() error {
		var err error
		expenses, err = s.repo.ExpensesByDay(gctx, fromDay, rangeEnd)
		return err
	})
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	report := Report{
		From:  fromDay.Format("2006-01-02"),
		To:    toDay.Format("2006-01-02"),
		Daily: make([]DailyBreakdown, 0, days),
	}
	for day := fromDay; !day.After(toDay); day = day.AddDate(0, 0, 1) {
		key := day.Format("2006-01-02")
		rev := revenue[key]
		cost := purchases[key]
		exp := expenses[key]
		entry := DailyBreakdown{
			Date:         key,
			Revenue:      rev.Amount,
			PurchaseCost: cost.Amount,
			Expenses:     exp.Amount,
		}
		entry.GrossProfit = entry.Revenue - entry.PurchaseCost
		entry.NetProfit = entry.GrossProfit - entry.Expenses
		report.Daily = append(report.Daily, entry)

		report.Summary.Revenue += rev.Amount
		report.Summary.PurchaseCost += cost.Amount
		report.Summary.Expenses += exp.Amount
		report.Summary.SaleCount += rev.Count
		report.Summary.PurchaseCount += cost.Count
		report.Summary.ExpenseCount += exp.Count
	}
	report.Summary.GrossProfit = report.Summary.Revenue - report.Summary.PurchaseCost
	report.Summary.NetProfit = report.Summary.GrossProfit - report.Summary.Expenses
	return report, nil
}
