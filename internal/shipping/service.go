package shipping

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/golosretail/golos-backend/internal/audit"
	"github.com/golosretail/golos-backend/internal/orders"
	"github.com/golosretail/golos-backend/pkg/config"
	"github.com/golosretail/golos-backend/pkg/db/models"
	"github.com/golosretail/golos-backend/pkg/enums"
	pkgerrors "github.com/golosretail/golos-backend/pkg/errors"
	"github.com/golosretail/golos-backend/pkg/logger"
	"github.com/golosretail/golos-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// saleReader loads the sale a shipment is being created for.
type saleReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Sale, error)
}

// orderUpdater applies the order-side transitions a carrier event implies.
type orderUpdater interface {
	UpdateStatus(ctx context.Context, input orders.UpdateStatusInput) (*models.Sale, error)
}

// Service creates shipments and processes carrier webhooks.
type Service interface {
	Options() []ServiceOption
	Quote(serviceName string) (ServiceOption, error)
	EnsureShipment(ctx context.Context, saleID uuid.UUID) (*models.Shipment, error)
	VerifyWebhookSignature(body []byte, signature string) error
	ApplyWebhook(ctx context.Context, body []byte, signature string) (*WebhookResult, error)
}

type service struct {
	logg     *logger.Logger
	tx       txRunner
	repo     Repository
	sales    saleReader
	orders   orderUpdater
	provider Provider
	audit    audit.Service
	cfg      config.ShippingConfig
	options  []ServiceOption
	now      func() time.Time
}

// NewService wires the shipping service.
func NewService(logg *logger.Logger, tx txRunner, repo Repository, sales saleReader, orders orderUpdater, provider Provider, auditSvc audit.Service, cfg config.ShippingConfig) (Service, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("shipping repository required")
	}
	if sales == nil {
		return nil, fmt.Errorf("sale reader required")
	}
	if orders == nil {
		return nil, fmt.Errorf("order updater required")
	}
	if provider == nil {
		return nil, fmt.Errorf("shipping provider required")
	}
	if auditSvc == nil {
		return nil, fmt.Errorf("audit service required")
	}
	options, err := ParseServices(cfg.Services)
	if err != nil {
		return nil, err
	}
	return &service{
		logg:     logg,
		tx:       tx,
		repo:     repo,
		sales:    sales,
		orders:   orders,
		provider: provider,
		audit:    auditSvc,
		cfg:      cfg,
		options:  options,
		now:      time.Now,
	}, nil
}

func (s *service) Options() []ServiceOption {
	out := make([]ServiceOption, len(s.options))
	copy(out, s.options)
	return out
}

// Quote resolves a service by name; an empty name picks the cheapest service
// deliverable within the configured maximum.
func (s *service) Quote(serviceName string) (ServiceOption, error) {
	if serviceName == "" {
		option, ok := DefaultOption(s.options, s.cfg.MaxDeliveryHours)
		if !ok {
			return ServiceOption{}, pkgerrors.New(pkgerrors.CodeDependency, "no shipping services configured")
		}
		return option, nil
	}
	option, ok := FindOption(s.options, serviceName)
	if !ok {
		return ServiceOption{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown shipping service").
			WithDetails(map[string]any{"service": serviceName})
	}
	return option, nil
}

// EnsureShipment creates the carrier shipment for a sale, once. The sale id
// is unique on shipments, so a concurrent create loses the insert race and
// returns the surviving row.
func (s *service) EnsureShipment(ctx context.Context, saleID uuid.UUID) (*models.Shipment, error) {
	if saleID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sale id required")
	}
	existing, err := s.repo.GetBySaleID(ctx, saleID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading shipment")
	}
	if existing != nil {
		return existing, nil
	}

	sale, err := s.sales.GetByID(ctx, saleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "sale not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading sale")
	}
	if sale.Status == enums.OrderStatusCanceled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cannot ship a canceled sale")
	}

	option, err := s.Quote(sale.ShippingService)
	if err != nil {
		return nil, err
	}

	result, err := s.provider.CreateShipment(ctx, CreateRequest{
		SaleID:      sale.ID,
		Reference:   sale.PaymentRef,
		ServiceName: option.Name,
		Cost:        sale.ShippingCost,
		Currency:    s.cfg.Currency,
		Address:     sale.ShippingAddress,
	})
	if err != nil {
		s.recordFailure(ctx, sale.ID, err)
		return nil, err
	}

	shipment := &models.Shipment{
		SaleID:              sale.ID,
		Provider:            s.provider.Name(),
		CarrierName:         s.cfg.CarrierName,
		TrackingNumber:      result.TrackingNumber,
		ServiceName:         option.Name,
		Cost:                sale.ShippingCost,
		Status:              enums.ShipmentStatusCreated,
		EstimatedDeliveryAt: result.EstimatedDeliveryAt,
		ProviderResponse:    result.Response,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, shipment); err != nil {
			return err
		}
		id := sale.ID
		_, err := s.audit.WithTx(tx).Record(ctx, audit.RecordInput{
			Source:    audit.SourceShipping,
			Action:    "shipment.created",
			SaleID:    &id,
			Reference: result.TrackingNumber,
			Result:    "applied",
			Payload: types.JSONMap{
				"service": option.Name,
				"carrier": s.cfg.CarrierName,
			},
		})
		return err
	})
	if err != nil {
		// Lost the insert race on sale_id.
		survived, readErr := s.repo.GetBySaleID(ctx, saleID)
		if readErr == nil && survived != nil {
			return survived, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating shipment")
	}
	return shipment, nil
}

// recordFailure audits a provider error. Best-effort: the audit write itself
// failing must not mask the provider error.
func (s *service) recordFailure(ctx context.Context, saleID uuid.UUID, cause error) {
	id := saleID
	_, err := s.audit.Record(ctx, audit.RecordInput{
		Source: audit.SourceShipping,
		Action: "shipment.create_failed",
		SaleID: &id,
		Result: "error",
		Payload: types.JSONMap{
			"error": cause.Error(),
		},
	})
	if err != nil {
		s.logg.Error(ctx, "failed to audit shipment creation failure", err)
	}
}
