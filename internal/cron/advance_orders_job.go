package cron

import (
	"context"
	"fmt"

	"github.com/golosretail/golos-backend/internal/orders"
	"github.com/golosretail/golos-backend/pkg/logger"
	"github.com/golosretail/golos-backend/pkg/metrics"
)

type AdvanceOrdersJobParams struct {
	Logger  *logger.Logger
	Orders  orderAdvancer
	Metrics *metrics.CronJobMetrics
}

type orderAdvancer interface {
	AdvanceDueOrders(ctx context.Context, dryRun bool) (*orders.AdvanceResult, error)
}

// NewAdvanceOrdersJob builds the job that pushes stale orders one stage
// forward per cycle.
func NewAdvanceOrdersJob(params AdvanceOrdersJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	return &advanceOrdersJob{
		logg:    params.Logger,
		orders:  params.Orders,
		metrics: params.Metrics,
	}, nil
}

type advanceOrdersJob struct {
	logg    *logger.Logger
	orders  orderAdvancer
	metrics *metrics.CronJobMetrics
}

func (j *advanceOrdersJob) Name() string { return "advance-orders" }

func (j *advanceOrdersJob) Run(ctx context.Context) error {
	result, err := j.orders.AdvanceDueOrders(ctx, false)
	if err != nil {
		return fmt.Errorf("advance due orders: %w", err)
	}
	j.metrics.AddProcessed(j.Name(), result.Processed)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"processed": result.Processed,
		"updated":   result.Updated,
	})
	j.logg.Info(logCtx, "order auto-advance complete")
	return nil
}
