package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/golosretail/golos-backend/internal/audit"
	"github.com/golosretail/golos-backend/internal/auth"
	"github.com/golosretail/golos-backend/pkg/config"
	"github.com/golosretail/golos-backend/pkg/db/models"
	"github.com/golosretail/golos-backend/pkg/enums"
	pkgerrors "github.com/golosretail/golos-backend/pkg/errors"
	"github.com/golosretail/golos-backend/pkg/pagination"
	"github.com/golosretail/golos-backend/pkg/types"
)

// advanceBatchLimit caps how many sales one auto-advance pass pulls per rule.
const advanceBatchLimit = 500

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// StockDiscounter runs the idempotent ledger discount for a sale inside the
// caller's transaction. Implemented by the sales service.
type StockDiscounter interface {
	EnsureStockDiscount(ctx context.Context, tx *gorm.DB, sale *models.Sale, actor string) error
}

// Service drives the sale fulfillment state machine.
type Service interface {
	Get(ctx context.Context, saleID uuid.UUID) (*models.Sale, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) ([]models.Sale, string, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Sale, error)
	AdvanceDueOrders(ctx context.Context, dryRun bool) (*AdvanceResult, error)
}

type service struct {
	tx         txRunner
	repo       Repository
	audit      audit.Service
	policy     auth.Policy
	discounter StockDiscounter
	automation config.AutomationConfig
	now        func() time.Time
}

// UpdateStatusInput is one requested transition. ActorID is required when the
// actor is a customer; customers may only cancel their own pending orders.
type UpdateStatusInput struct {
	SaleID    uuid.UUID
	Target    enums.OrderStatus
	Note      string
	ActorRole enums.ActorRole
	ActorID   *uuid.UUID
}

// AdvanceResult reports one auto-advance pass: how many due orders were
// examined and how many actually moved.
type AdvanceResult struct {
	DryRun    bool            `json:"dry_run"`
	Processed int             `json:"processed"`
	Updated   int             `json:"updated"`
	Advanced  []AdvanceChange `json:"advanced"`
}

// AdvanceChange is a single transition applied (or, in dry runs, proposed).
type AdvanceChange struct {
	SaleID uuid.UUID         `json:"sale_id"`
	From   enums.OrderStatus `json:"from"`
	To     enums.OrderStatus `json:"to"`
}

// advanceRule describes one time-driven transition. The delay is measured
// from the named stage timestamp column, not from the previous transition.
type advanceRule struct {
	from   enums.OrderStatus
	to     enums.OrderStatus
	column string
	delay  time.Duration
}

// NewService wires the orders service.
func NewService(tx txRunner, repo Repository, auditSvc audit.Service, policy auth.Policy, discounter StockDiscounter, automation config.AutomationConfig) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("sales repository required")
	}
	if auditSvc == nil {
		return nil, fmt.Errorf("audit service required")
	}
	if policy == nil {
		return nil, fmt.Errorf("policy required")
	}
	if discounter == nil {
		return nil, fmt.Errorf("stock discounter required")
	}
	return &service{
		tx:         tx,
		repo:       repo,
		audit:      auditSvc,
		policy:     policy,
		discounter: discounter,
		automation: automation,
		now:        time.Now,
	}, nil
}

func (s *service) Get(ctx context.Context, saleID uuid.UUID) (*models.Sale, error) {
	if saleID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sale id required")
	}
	sale, err := s.repo.GetByID(ctx, saleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "sale not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sale")
	}
	return sale, nil
}

func (s *service) ListByCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) ([]models.Sale, string, error) {
	if customerID == uuid.Nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	limit := pagination.NormalizeLimit(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
	}
	sales, err := s.repo.ListByCustomer(ctx, customerID, cursor, limit+1)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list sales")
	}
	next := ""
	if len(sales) > limit {
		sales = sales[:limit]
		last := sales[len(sales)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return sales, next, nil
}

func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Sale, error) {
	if input.SaleID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sale id required")
	}
	if !input.Target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid target status")
	}
	if err := s.authorize(input); err != nil {
		return nil, err
	}

	var result *models.Sale
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sale, err := repo.GetByIDForUpdate(ctx, input.SaleID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "sale not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sale")
		}
		if input.ActorRole == enums.ActorRoleCustomer {
			if sale.CustomerID == nil || input.ActorID == nil || *sale.CustomerID != *input.ActorID {
				return pkgerrors.New(pkgerrors.CodeForbidden, "sale does not belong to customer")
			}
			if sale.Status != enums.OrderStatusPending {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "only pending orders can be canceled by the customer")
			}
		}
		applied, err := s.apply(ctx, repo, tx, sale, input.Target, input.Note, string(input.ActorRole))
		if err != nil {
			return err
		}
		result = applied
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) authorize(input UpdateStatusInput) error {
	action := auth.ActionUpdateOrderStatus
	if input.ActorRole == enums.ActorRoleCustomer {
		if input.Target != enums.OrderStatusCanceled {
			return pkgerrors.New(pkgerrors.CodeForbidden, "customers may only cancel orders")
		}
		if input.ActorID == nil || *input.ActorID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeUnauthorized, "customer identity missing")
		}
		action = auth.ActionCancelOwnOrder
	}
	if !s.policy.Allow(input.ActorRole, action) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "role not allowed to change order status")
	}
	return nil
}

// apply performs one checked transition on an already locked sale. Targets in
// the paid family run the idempotent stock discount first, so a stale order
// can never reach shipped with its inventory untouched. The audit row rides
// the same transaction; if either fails the transition rolls back.
func (s *service) apply(ctx context.Context, repo Repository, tx *gorm.DB, sale *models.Sale, target enums.OrderStatus, note, actor string) (*models.Sale, error) {
	if !CanTransition(sale.Status, target) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "transition not allowed in current state").
			WithDetails(map[string]any{"from": sale.Status, "to": target})
	}

	if discountOn(target) {
		if err := s.discounter.EnsureStockDiscount(ctx, tx, sale, actor); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	updates := map[string]any{"status": target}
	if target == enums.OrderStatusPaid && sale.PaymentStatus != enums.PaymentStatusPaid {
		updates["payment_status"] = enums.PaymentStatusPaid
	}
	if column := stageColumn(target); column != "" && stageTimestamp(sale, target) == nil {
		updates[column] = now
	}
	if err := repo.Update(ctx, sale.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update sale status")
	}

	from := sale.Status
	sale.Status = target
	if target == enums.OrderStatusPaid {
		sale.PaymentStatus = enums.PaymentStatusPaid
	}
	if column := stageColumn(target); column != "" && stageTimestamp(sale, target) == nil {
		stamp := now
		switch target {
		case enums.OrderStatusPaid:
			sale.PaidAt = &stamp
		case enums.OrderStatusShipped:
			sale.ShippedAt = &stamp
		case enums.OrderStatusDelivered:
			sale.DeliveredAt = &stamp
		case enums.OrderStatusCompleted:
			sale.CompletedAt = &stamp
		case enums.OrderStatusCanceled:
			sale.CanceledAt = &stamp
		}
	}

	saleID := sale.ID
	payload := types.JSONMap{
		"from":  string(from),
		"to":    string(target),
		"actor": actor,
	}
	if note != "" {
		payload["note"] = note
	}
	_, err := s.audit.WithTx(tx).Record(ctx, audit.RecordInput{
		Source:  audit.SourceSystem,
		Action:  "order.status_changed",
		SaleID:  &saleID,
		Result:  "applied",
		Payload: payload,
	})
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// discountOn reports whether entering the target status requires the ledger
// discount to have run.
func discountOn(target enums.OrderStatus) bool {
	switch target {
	case enums.OrderStatusPaid, enums.OrderStatusProcessing, enums.OrderStatusShipped,
		enums.OrderStatusDelivered, enums.OrderStatusCompleted:
		return true
	default:
		return false
	}
}

// AdvanceDueOrders runs the time-driven transitions. Each order moves at most
// one step per pass; a freshly advanced order waits for the next pass before
// it is considered again.
func (s *service) AdvanceDueOrders(ctx context.Context, dryRun bool) (*AdvanceResult, error) {
	result := &AdvanceResult{DryRun: dryRun, Advanced: []AdvanceChange{}}
	if !s.automation.Enabled {
		return result, nil
	}
	if !s.policy.Allow(enums.ActorRoleSystem, auth.ActionAdvanceOrders) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "system role not allowed to advance orders")
	}
	seen := map[uuid.UUID]bool{}
	now := s.now().UTC()

	for _, rule := range s.advanceRules() {
		if rule.delay <= 0 {
			continue
		}
		cutoff := now.Add(-rule.delay)
		due, err := s.repo.ListDueForAdvance(ctx, rule.from, rule.column, cutoff, advanceBatchLimit)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list due sales")
		}
		for _, sale := range due {
			if seen[sale.ID] {
				continue
			}
			seen[sale.ID] = true
			result.Processed++
			if dryRun {
				result.Advanced = append(result.Advanced, AdvanceChange{SaleID: sale.ID, From: rule.from, To: rule.to})
				continue
			}
			advanced, err := s.advanceOne(ctx, sale.ID, rule, cutoff)
			if err != nil {
				return result, err
			}
			if advanced {
				result.Advanced = append(result.Advanced, AdvanceChange{SaleID: sale.ID, From: rule.from, To: rule.to})
			}
		}
	}
	result.Updated = len(result.Advanced)
	return result, nil
}

// advanceOne re-checks the rule under a row lock before applying it; the
// unlocked listing can be stale.
func (s *service) advanceOne(ctx context.Context, saleID uuid.UUID, rule advanceRule, cutoff time.Time) (bool, error) {
	advanced := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sale, err := repo.GetByIDForUpdate(ctx, saleID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sale")
		}
		if sale.Status != rule.from {
			return nil
		}
		stamp := ruleTimestamp(sale, rule)
		if stamp == nil || stamp.After(cutoff) {
			return nil
		}
		if _, err := s.apply(ctx, repo, tx, sale, rule.to, "", string(enums.ActorRoleSystem)); err != nil {
			return err
		}
		advanced = true
		return nil
	})
	return advanced, err
}

func (s *service) advanceRules() []advanceRule {
	return []advanceRule{
		{
			from:   enums.OrderStatusPaid,
			to:     enums.OrderStatusProcessing,
			column: "paid_at",
			delay:  time.Duration(s.automation.ToProcessingMinutes) * time.Minute,
		},
		{
			from:   enums.OrderStatusProcessing,
			to:     enums.OrderStatusShipped,
			column: "confirmed_at",
			delay:  time.Duration(s.automation.ToShippedMinutes) * time.Minute,
		},
		{
			from:   enums.OrderStatusShipped,
			to:     enums.OrderStatusDelivered,
			column: "shipped_at",
			delay:  time.Duration(s.automation.ToDeliveredMinutes) * time.Minute,
		},
		{
			from:   enums.OrderStatusDelivered,
			to:     enums.OrderStatusCompleted,
			column: "delivered_at",
			delay:  time.Duration(s.automation.ToCompletedMinutes) * time.Minute,
		},
	}
}

func ruleTimestamp(sale *models.Sale, rule advanceRule) *time.Time {
	switch rule.column {
	case "paid_at":
		return sale.PaidAt
	case "confirmed_at":
		return sale.ConfirmedAt
	case "shipped_at":
		return sale.ShippedAt
	case "delivered_at":
		return sale.DeliveredAt
	default:
		return nil
	}
}
