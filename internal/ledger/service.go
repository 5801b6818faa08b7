package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/golosretail/golos-backend/pkg/db/models"
	"github.com/golosretail/golos-backend/pkg/enums"
	pkgerrors "github.com/golosretail/golos-backend/pkg/errors"
	"github.com/golosretail/golos-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the inventory movement ledger. Stock is derived by summing
// signed movement quantities; nothing in the system stores a counter.
type Service interface {
	RecordMovement(ctx context.Context, input RecordMovementInput) (*models.InventoryMovement, error)
	CurrentStock(ctx context.Context, variantID uuid.UUID) (int, error)
	StockMap(ctx context.Context, variantIDs []uuid.UUID) (map[uuid.UUID]int, error)
	ListMovements(ctx context.Context, variantID uuid.UUID, params pagination.Params) ([]models.InventoryMovement, string, error)
}

type service struct {
	tx   txRunner
	repo Repository
}

// RecordMovementInput captures one manual ledger entry. Quantity is signed:
// inbound types require a positive quantity, outbound types a negative one.
// SupplierID ties purchases and supplier returns to their counterparty.
type RecordMovementInput struct {
	VariantID  uuid.UUID
	Type       enums.MovementType
	Quantity   int
	Reference  string
	Note       string
	SupplierID *uuid.UUID
	CreatedBy  *uuid.UUID
}

// NewService wires the ledger service.
func NewService(tx txRunner, repo Repository) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{tx: tx, repo: repo}, nil
}

func (s *service) RecordMovement(ctx context.Context, input RecordMovementInput) (*models.InventoryMovement, error) {
	if input.VariantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid movement type %q", input.Type))
	}
	if input.Quantity == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity cannot be zero")
	}
	if input.Type.IsInbound() && input.Quantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s requires a positive quantity", input.Type))
	}
	if !input.Type.IsInbound() && input.Quantity > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s requires a negative quantity", input.Type))
	}

	movement := &models.InventoryMovement{
		VariantID:  input.VariantID,
		Type:       input.Type,
		Quantity:   input.Quantity,
		SupplierID: input.SupplierID,
		CreatedBy:  input.CreatedBy,
	}
	if input.Reference != "" {
		ref := input.Reference
		movement.Reference = &ref
	}
	if input.Note != "" {
		note := input.Note
		movement.Note = &note
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		variants, err := repo.LockVariants(ctx, []uuid.UUID{input.VariantID})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "locking variant")
		}
		if len(variants) == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
		}

		if input.Quantity < 0 {
			stock, err := repo.SumByVariant(ctx, input.VariantID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "computing stock")
			}
			if stock+input.Quantity < 0 {
				return pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock").
					WithDetails(map[string]any{
						"variant_id": input.VariantID,
						"available":  stock,
						"requested":  -input.Quantity,
					})
			}
		}

		if err := repo.Create(ctx, movement); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recording movement")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return movement, nil
}

func (s *service) CurrentStock(ctx context.Context, variantID uuid.UUID) (int, error) {
	if variantID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
	}
	stock, err := s.repo.SumByVariant(ctx, variantID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "computing stock")
	}
	return stock, nil
}

func (s *service) StockMap(ctx context.Context, variantIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	stocks, err := s.repo.SumByVariants(ctx, variantIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "computing stock")
	}
	return stocks, nil
}

func (s *service) ListMovements(ctx context.Context, variantID uuid.UUID, params pagination.Params) ([]models.InventoryMovement, string, error) {
	if variantID == uuid.Nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	movements, err := s.repo.ListByVariant(ctx, variantID, cursor, limit+1)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing movements")
	}

	next := ""
	if len(movements) > limit {
		movements = movements[:limit]
		last := movements[len(movements)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return movements, next, nil
}
