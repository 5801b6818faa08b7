package closing

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/golosretail/golos-backend/internal/audit"
	"github.com/golosretail/golos-backend/internal/ledger"
	"github.com/golosretail/golos-backend/pkg/db/models"
	pkgerrors "github.com/golosretail/golos-backend/pkg/errors"
	"github.com/golosretail/golos-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service closes calendar months of inventory into immutable snapshots.
// A close is all-or-nothing: either every active variant gets a snapshot row
// or the month stays open.
type Service interface {
	CloseMonth(ctx context.Context, year, month int) (*CloseResult, error)
	Snapshots(ctx context.Context, year, month int) ([]models.InventorySnapshot, error)
	LatestClosedPeriodEnd(ctx context.Context) (*time.Time, error)
}

// CloseResult summarizes one completed close.
type CloseResult struct {
	Year     int       `json:"year"`
	Month    int       `json:"month"`
	Variants int       `json:"variants"`
	ClosedAt time.Time `json:"closed_at"`
}

type service struct {
	tx         txRunner
	repo       Repository
	ledgerRepo ledger.Repository
	audit      audit.Service
	now        func() time.Time
}

// NewService wires the closing service.
func NewService(tx txRunner, repo Repository, ledgerRepo ledger.Repository, auditSvc audit.Service) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("snapshot repository required")
	}
	if ledgerRepo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if auditSvc == nil {
		return nil, fmt.Errorf("audit service required")
	}
	return &service{tx: tx, repo: repo, ledgerRepo: ledgerRepo, audit: auditSvc, now: time.Now}, nil
}

func (s *service) CloseMonth(ctx context.Context, year, month int) (*CloseResult, error) {
	if month < 1 || month > 12 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid month %d", month))
	}
	if year < 2000 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid year %d", year))
	}

	periodStart, periodEnd := periodBounds(year, month)
	if periodEnd.After(s.now().UTC()) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "only fully elapsed months can be closed")
	}

	var result *CloseResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ledgerRepo := s.ledgerRepo.WithTx(tx)

		closed, err := repo.ExistsForPeriod(ctx, year, month)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checking period")
		}
		if closed {
			return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("month %04d-%02d is already closed", year, month))
		}

		variantIDs, err := ledgerRepo.ActiveVariantIDs(ctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing variants")
		}

		prevYear, prevMonth := previousPeriod(year, month)
		closedAt := s.now().UTC()
		snapshots := make([]models.InventorySnapshot, 0, len(variantIDs))

		for _, variantID := range variantIDs {
			opening := 0
			prev, err := repo.GetByVariantPeriod(ctx, variantID, prevYear, prevMonth)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading previous snapshot")
			}
			if prev != nil {
				opening = prev.ClosingQty
			} else {
				opening, err = ledgerRepo.SumByVariantBefore(ctx, variantID, periodStart)
				if err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "computing opening stock")
				}
			}

			in, out, err := ledgerRepo.InOutBetween(ctx, variantID, periodStart, periodEnd)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "computing period totals")
			}

			snapshots = append(snapshots, models.InventorySnapshot{
				VariantID:  variantID,
				Year:       year,
				Month:      month,
				OpeningQty: opening,
				InQty:      in,
				OutQty:     out,
				ClosingQty: opening + in - out,
				ClosedAt:   closedAt,
			})
		}

		if err := repo.CreateBatch(ctx, snapshots); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "writing snapshots")
		}

		_, err = s.audit.WithTx(tx).Record(ctx, audit.RecordInput{
			Source: audit.SourceOps,
			Action: "inventory.month_closed",
			Result: "applied",
			Payload: types.JSONMap{
				"year":     year,
				"month":    month,
				"variants": len(snapshots),
			},
		})
		if err != nil {
			return err
		}

		result = &CloseResult{Year: year, Month: month, Variants: len(snapshots), ClosedAt: closedAt}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// LatestClosedPeriodEnd returns the first instant after the latest closed
// month, or nil when no month has been closed yet. Sales created before this
// boundary fall inside a finalized period and can no longer be confirmed.
func (s *service) LatestClosedPeriodEnd(ctx context.Context) (*time.Time, error) {
	year, month, found, err := s.repo.LatestPeriod(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading latest closed period")
	}
	if !found {
		return nil, nil
	}
	_, end := periodBounds(year, month)
	return &end, nil
}

func (s *service) Snapshots(ctx context.Context, year, month int) ([]models.InventorySnapshot, error) {
	if month < 1 || month > 12 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid month %d", month))
	}
	snapshots, err := s.repo.ListByPeriod(ctx, year, month)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing snapshots")
	}
	return snapshots, nil
}

func periodBounds(year, month int) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

func previousPeriod(year, month int) (int, int) {
	if month == 1 {
		return year - 1, 12
	}
	return year, month - 1
}
