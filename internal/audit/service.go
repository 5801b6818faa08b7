package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/golosretail/golos-backend/pkg/db/models"
	"github.com/golosretail/golos-backend/pkg/types"
)

// Sources recorded by the platform.
const (
	SourceWompi    = "wompi"
	SourceShipping = "shipping"
	SourceOps      = "ops"
	SourceSystem   = "system"
)

// Service records what happened on every inbound provider call and operator
// action, including the ones that changed nothing.
type Service interface {
	WithTx(tx *gorm.DB) Service
	Record(ctx context.Context, input RecordInput) (*models.AuditLog, error)
	ListBySaleID(ctx context.Context, saleID uuid.UUID) ([]models.AuditLog, error)
}

type service struct {
	repo Repository
}

// RecordInput captures one audit entry.
type RecordInput struct {
	Source    string
	Action    string
	SaleID    *uuid.UUID
	Reference string
	Result    string
	Payload   types.JSONMap
}

// NewService wires an audit service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return &service{repo: s.repo.WithTx(tx)}
}

func (s *service) Record(ctx context.Context, input RecordInput) (*models.AuditLog, error) {
	if input.Source == "" {
		return nil, fmt.Errorf("audit source is required")
	}
	if input.Action == "" {
		return nil, fmt.Errorf("audit action is required")
	}
	if input.Result == "" {
		return nil, fmt.Errorf("audit result is required")
	}

	entry := &models.AuditLog{
		Source:  input.Source,
		Action:  input.Action,
		SaleID:  input.SaleID,
		Result:  input.Result,
		Payload: input.Payload,
	}
	if input.Reference != "" {
		ref := input.Reference
		entry.Reference = &ref
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) ListBySaleID(ctx context.Context, saleID uuid.UUID) ([]models.AuditLog, error) {
	if saleID == uuid.Nil {
		return nil, fmt.Errorf("sale id is required")
	}
	return s.repo.ListBySaleID(ctx, saleID)
}
