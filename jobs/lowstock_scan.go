package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/freshledger/freshledger/internal/summary"
)

// SummaryPort exposes the stock summary read the scan needs.
type SummaryPort interface {
	GetSummary(ctx context.Context) ([]summary.CategorySummary, error)
}

// LowStockScanJob walks per-category stock and raises reorder alerts.
type LowStockScanJob struct {
	Summary SummaryPort
	Logger  *slog.Logger
	clock   func() time.Time
}

// NewLowStockScanJob wires dependencies for the scan handler.
func NewLowStockScanJob(summarySvc SummaryPort, logger *slog.Logger) *LowStockScanJob {
	return &LowStockScanJob{
		Summary: summarySvc,
		Logger:  logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes low stock scan tasks.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Summary == nil {
		return errors.New("lowstock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	logger := j.logger()
	started := j.now()
	logger.Info("starting low stock scan")

	scanCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rows, err := j.Summary.GetSummary(scanCtx)
	if err != nil {
		logger.Error("load stock summary", slog.Any("error", err))
		return err
	}

	alerts := 0
	for _, row := range rows {
		if !row.LowStock {
			continue
		}
		alerts++
		logger.Warn("low stock",
			slog.Int64("category_id", row.CategoryID),
			slog.String("category", row.Name),
			slog.Float64("remaining_kg", row.TotalWeightKg),
			slog.Float64("threshold_kg", row.ReorderThresholdKg))
	}

	logger.Info("completed low stock scan",
		slog.Int("categories", len(rows)),
		slog.Int("alerts", alerts),
		slog.Duration("duration", time.Since(started)))
	return nil
}

func (j *LowStockScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLowStockScan))
	}
	return slog.Default().With(slog.String("job", TaskLowStockScan))
}

func (j *LowStockScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
