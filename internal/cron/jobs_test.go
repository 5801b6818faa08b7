package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golosretail/golos-backend/internal/closing"
	"github.com/golosretail/golos-backend/internal/orders"
	pkgerrors "github.com/golosretail/golos-backend/pkg/errors"
	"github.com/golosretail/golos-backend/pkg/logger"
)

type fakeAdvancer struct {
	result  *orders.AdvanceResult
	err     error
	dryRuns []bool
}

func (f *fakeAdvancer) AdvanceDueOrders(ctx context.Context, dryRun bool) (*orders.AdvanceResult, error) {
	f.dryRuns = append(f.dryRuns, dryRun)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeCloser struct {
	year, month int
	calls       int
	err         error
}

func (f *fakeCloser) CloseMonth(ctx context.Context, year, month int) (*closing.CloseResult, error) {
	f.calls++
	f.year, f.month = year, month
	if f.err != nil {
		return nil, f.err
	}
	return &closing.CloseResult{Year: year, Month: month, Variants: 7}, nil
}

func TestAdvanceOrdersJob(t *testing.T) {
	advancer := &fakeAdvancer{result: &orders.AdvanceResult{Processed: 5, Updated: 3}}
	job, err := NewAdvanceOrdersJob(AdvanceOrdersJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Orders: advancer,
	})
	if err != nil {
		t.Fatalf("NewAdvanceOrdersJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(advancer.dryRuns) != 1 || advancer.dryRuns[0] {
		t.Fatalf("expected one real run, got %v", advancer.dryRuns)
	}
}

func TestAdvanceOrdersJobPropagatesErrors(t *testing.T) {
	advancer := &fakeAdvancer{err: errors.New("boom")}
	job, err := NewAdvanceOrdersJob(AdvanceOrdersJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Orders: advancer,
	})
	if err != nil {
		t.Fatalf("NewAdvanceOrdersJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestCloseMonthJobClosesPreviousMonth(t *testing.T) {
	closer := &fakeCloser{}
	job := newCloseMonthJob(t, closer)
	job.now = func() time.Time { return time.Date(2025, 9, 10, 12, 0, 0, 0, time.UTC) }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if closer.year != 2025 || closer.month != 8 {
		t.Fatalf("expected 2025-08, got %d-%02d", closer.year, closer.month)
	}
}

func TestCloseMonthJobWrapsYearInJanuary(t *testing.T) {
	closer := &fakeCloser{}
	job := newCloseMonthJob(t, closer)
	job.now = func() time.Time { return time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC) }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if closer.year != 2025 || closer.month != 12 {
		t.Fatalf("expected 2025-12, got %d-%02d", closer.year, closer.month)
	}
}

func TestCloseMonthJobTreatsAlreadyClosedAsNoop(t *testing.T) {
	closer := &fakeCloser{err: pkgerrors.New(pkgerrors.CodeConflict, "month 2025-08 is already closed")}
	job := newCloseMonthJob(t, closer)
	job.now = func() time.Time { return time.Date(2025, 9, 10, 12, 0, 0, 0, time.UTC) }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("already-closed month must not fail the job: %v", err)
	}
}

func TestCloseMonthJobPropagatesOtherErrors(t *testing.T) {
	closer := &fakeCloser{err: errors.New("db down")}
	job := newCloseMonthJob(t, closer)

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func newCloseMonthJob(t *testing.T, closer *fakeCloser) *closeMonthJob {
	t.Helper()
	jobIface, err := NewCloseMonthJob(CloseMonthJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "test"}),
		Closing: closer,
	})
	if err != nil {
		t.Fatalf("NewCloseMonthJob: %v", err)
	}
	job, ok := jobIface.(*closeMonthJob)
	if !ok {
		t.Fatalf("expected closeMonthJob, got %T", jobIface)
	}
	return job
}
