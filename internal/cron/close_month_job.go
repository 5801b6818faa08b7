package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/golosretail/golos-backend/internal/closing"
	pkgerrors "github.com/golosretail/golos-backend/pkg/errors"
	"github.com/golosretail/golos-backend/pkg/logger"
	"github.com/golosretail/golos-backend/pkg/metrics"
)

type CloseMonthJobParams struct {
	Logger  *logger.Logger
	Closing monthCloser
	Metrics *metrics.CronJobMetrics
}

type monthCloser interface {
	CloseMonth(ctx context.Context, year, month int) (*closing.CloseResult, error)
}

// NewCloseMonthJob builds the job that freezes the previous month's
// inventory into snapshots. A month that is already closed is a no-op.
func NewCloseMonthJob(params CloseMonthJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Closing == nil {
		return nil, fmt.Errorf("closing service required")
	}
	return &closeMonthJob{
		logg:    params.Logger,
		closing: params.Closing,
		metrics: params.Metrics,
		now:     time.Now,
	}, nil
}

type closeMonthJob struct {
	logg    *logger.Logger
	closing monthCloser
	metrics *metrics.CronJobMetrics
	now     func() time.Time
}

func (j *closeMonthJob) Name() string { return "close-month" }

func (j *closeMonthJob) Run(ctx context.Context) error {
	// Close the month before the current one. Computed from year and month
	// directly: AddDate on a late day of the month can skip February.
	now := j.now().UTC()
	year, month := now.Year(), int(now.Month())-1
	if month == 0 {
		year, month = year-1, 12
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"year":  year,
		"month": month,
	})

	result, err := j.closing.CloseMonth(ctx, year, month)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			j.logg.Info(logCtx, "month already closed")
			return nil
		}
		return fmt.Errorf("close month %d-%02d: %w", year, month, err)
	}
	j.metrics.AddProcessed(j.Name(), result.Variants)
	logCtx = j.logg.WithField(logCtx, "variants", result.Variants)
	j.logg.Info(logCtx, "month close complete")
	return nil
}
