package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/golosretail/golos-backend/internal/audit"
	"github.com/golosretail/golos-backend/internal/catalog"
	"github.com/golosretail/golos-backend/internal/ledger"
	"github.com/golosretail/golos-backend/internal/shipping"
	"github.com/golosretail/golos-backend/pkg/db"
	"github.com/golosretail/golos-backend/pkg/db/models"
	"github.com/golosretail/golos-backend/pkg/enums"
	pkgerrors "github.com/golosretail/golos-backend/pkg/errors"
	"github.com/golosretail/golos-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// closedPeriods is the closing-engine barrier: sales created before the end
// of the latest closed month can no longer be confirmed.
type closedPeriods interface {
	LatestClosedPeriodEnd(ctx context.Context) (*time.Time, error)
}

// ShippingQuoter resolves a shipping service by name; an empty name picks
// the default service.
type ShippingQuoter interface {
	Quote(serviceName string) (shipping.ServiceOption, error)
}

// Service owns checkout and the stock-affecting confirmation path.
type Service interface {
	Checkout(ctx context.Context, input CheckoutInput) (*models.Sale, error)
	Confirm(ctx context.Context, saleID uuid.UUID, actor string) (*models.Sale, error)
	EnsureStockDiscount(ctx context.Context, tx *gorm.DB, sale *models.Sale, actor string) error
}

type service struct {
	tx          txRunner
	repo        Repository
	ledgerRepo  ledger.Repository
	catalogRepo catalog.Repository
	closed      closedPeriods
	quoter      ShippingQuoter
	audit       audit.Service
	currency    string
	now         func() time.Time
}

// CheckoutInput is one storefront checkout request.
type CheckoutInput struct {
	CustomerID      *uuid.UUID
	Items           []CheckoutItem
	ShippingAddress types.Address
	ShippingService string
}

// CheckoutItem is one requested line.
type CheckoutItem struct {
	VariantID uuid.UUID
	Quantity  int
}

// NewService wires the sales service.
func NewService(tx txRunner, repo Repository, ledgerRepo ledger.Repository, catalogRepo catalog.Repository, closed closedPeriods, quoter ShippingQuoter, auditSvc audit.Service, currency string) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("sale repository required")
	}
	if ledgerRepo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if catalogRepo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if closed == nil {
		return nil, fmt.Errorf("closing barrier required")
	}
	if quoter == nil {
		return nil, fmt.Errorf("shipping quoter required")
	}
	if auditSvc == nil {
		return nil, fmt.Errorf("audit service required")
	}
	if currency == "" {
		currency = "COP"
	}
	return &service{
		tx:          tx,
		repo:        repo,
		ledgerRepo:  ledgerRepo,
		catalogRepo: catalogRepo,
		closed:      closed,
		quoter:      quoter,
		audit:       auditSvc,
		currency:    currency,
		now:         time.Now,
	}, nil
}

// Checkout creates a pending sale with a generated payment reference. The
// sale starts unpaid; the payment status moves to pending only once a
// gateway checkout is opened. No stock is touched; the discount happens at
// confirmation.
func (s *service) Checkout(ctx context.Context, input CheckoutInput) (*models.Sale, error) {
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	seen := map[uuid.UUID]bool{}
	ids := make([]uuid.UUID, 0, len(input.Items))
	for _, item := range input.Items {
		if item.VariantID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item variant id is required")
		}
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be positive")
		}
		if seen[item.VariantID] {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "duplicate variant in checkout items")
		}
		seen[item.VariantID] = true
		ids = append(ids, item.VariantID)
	}
	if err := input.ShippingAddress.Validate(); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}

	variants, err := s.catalogRepo.GetVariantsByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading variants")
	}
	byID := make(map[uuid.UUID]models.ProductVariant, len(variants))
	for _, v := range variants {
		byID[v.ID] = v
	}
	for _, id := range ids {
		variant, ok := byID[id]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found").WithDetails(map[string]any{"variant_id": id})
		}
		if !variant.IsActive {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "variant is retired").WithDetails(map[string]any{"sku": variant.SKU})
		}
	}

	prices, err := s.catalogRepo.ResolvePrices(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolving prices")
	}

	option, err := s.quoter.Quote(input.ShippingService)
	if err != nil {
		return nil, err
	}

	subtotal := decimal.Zero
	items := make([]models.SaleItem, 0, len(input.Items))
	for _, item := range input.Items {
		price := prices[item.VariantID]
		subtotal = subtotal.Add(price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		items = append(items, models.SaleItem{
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: price,
		})
	}

	sale := &models.Sale{
		CustomerID:      input.CustomerID,
		Status:          enums.OrderStatusPending,
		PaymentStatus:   enums.PaymentStatusUnpaid,
		Currency:        s.currency,
		Subtotal:        subtotal,
		ShippingCost:    option.Cost,
		Total:           subtotal.Add(option.Cost),
		ShippingAddress: input.ShippingAddress,
		ShippingService: option.Name,
		PaymentRef:      newPaymentRef(),
		Items:           items,
	}
	created, err := s.repo.Create(ctx, sale)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating sale")
	}
	return created, nil
}

// Confirm turns a pending sale into completed stock movements under a row
// lock. Used by the point-of-sale flow, where payment is settled on the spot.
func (s *service) Confirm(ctx context.Context, saleID uuid.UUID, actor string) (*models.Sale, error) {
	if saleID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sale id required")
	}
	var result *models.Sale
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sale, err := repo.GetByIDForUpdate(ctx, saleID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "sale not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sale")
		}
		if sale.Status != enums.OrderStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "sale is not pending")
		}
		if err := s.EnsureStockDiscount(ctx, tx, sale, actor); err != nil {
			return err
		}

		now := s.now().UTC()
		updates := map[string]any{
			"status":         enums.OrderStatusCompleted,
			"payment_status": enums.PaymentStatusPaid,
		}
		if sale.PaidAt == nil {
			updates["paid_at"] = now
			sale.PaidAt = &now
		}
		if sale.CompletedAt == nil {
			updates["completed_at"] = now
			sale.CompletedAt = &now
		}
		if err := repo.Update(ctx, sale.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update sale")
		}
		sale.Status = enums.OrderStatusCompleted
		sale.PaymentStatus = enums.PaymentStatusPaid

		id := sale.ID
		_, err = s.audit.WithTx(tx).Record(ctx, audit.RecordInput{
			Source:  audit.SourceOps,
			Action:  "sale.confirmed",
			SaleID:  &id,
			Result:  "applied",
			Payload: types.JSONMap{"actor": actor},
		})
		if err != nil {
			return err
		}
		result = sale
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// EnsureStockDiscount writes the SALE_OUT movement set for a sale inside the
// caller's transaction. The sale id on the movements is the idempotency key:
// when the set already exists, this is a successful no-op. The caller must
// hold the sale row lock.
func (s *service) EnsureStockDiscount(ctx context.Context, tx *gorm.DB, sale *models.Sale, actor string) error {
	if sale == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "sale required")
	}
	ledgerRepo := s.ledgerRepo.WithTx(tx)

	exists, err := ledgerRepo.ExistsForSale(ctx, sale.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checking existing movements")
	}
	if exists {
		return nil
	}
	if len(sale.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "sale has no items")
	}

	barrier, err := s.closed.LatestClosedPeriodEnd(ctx)
	if err != nil {
		return err
	}
	if barrier != nil && sale.CreatedAt.Before(*barrier) {
		return pkgerrors.New(pkgerrors.CodeConflict, "sale falls in a closed inventory period")
	}

	ids := make([]uuid.UUID, 0, len(sale.Items))
	for _, item := range sale.Items {
		ids = append(ids, item.VariantID)
	}
	variants, err := ledgerRepo.LockVariants(ctx, ids)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "locking variants")
	}
	byID := make(map[uuid.UUID]models.ProductVariant, len(variants))
	for _, v := range variants {
		byID[v.ID] = v
	}
	for _, item := range sale.Items {
		variant, ok := byID[item.VariantID]
		if !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, "variant not found").WithDetails(map[string]any{"variant_id": item.VariantID})
		}
		if !variant.IsActive {
			return pkgerrors.New(pkgerrors.CodeConflict, "variant is retired").WithDetails(map[string]any{"sku": variant.SKU})
		}
	}

	stocks, err := ledgerRepo.SumByVariants(ctx, ids)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "computing stock")
	}
	for _, item := range sale.Items {
		if stocks[item.VariantID] < item.Quantity {
			return pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock").WithDetails(map[string]any{
				"variant_id": item.VariantID,
				"requested":  item.Quantity,
				"available":  stocks[item.VariantID],
			})
		}
	}

	saleID := sale.ID
	reference := sale.PaymentRef
	movements := make([]models.InventoryMovement, 0, len(sale.Items))
	for _, item := range sale.Items {
		movements = append(movements, models.InventoryMovement{
			VariantID: item.VariantID,
			SaleID:    &saleID,
			Type:      enums.MovementTypeSaleOut,
			Quantity:  -item.Quantity,
			Reference: &reference,
		})
	}
	if err := ledgerRepo.CreateBatch(ctx, movements); err != nil {
		// A racing discount for the same sale hit the unique
		// (variant_id, sale_id) index first; the work is already done.
		if db.IsUniqueViolation(err, "") {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "writing movements")
	}

	now := s.now().UTC()
	if sale.ConfirmedAt == nil {
		if err := s.repo.WithTx(tx).Update(ctx, sale.ID, map[string]any{"confirmed_at": now}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stamping confirmation")
		}
		sale.ConfirmedAt = &now
	}

	_, err = s.audit.WithTx(tx).Record(ctx, audit.RecordInput{
		Source: audit.SourceSystem,
		Action: "sale.stock_discounted",
		SaleID: &saleID,
		Result: "applied",
		Payload: types.JSONMap{
			"actor": actor,
			"lines": len(movements),
		},
	})
	return err
}

func newPaymentRef() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "ORD-" + raw[:12]
}
