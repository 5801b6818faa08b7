package shipping

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/golosretail/golos-backend/pkg/db"
	"github.com/golosretail/golos-backend/pkg/db/models"
)

// Repository manages persistence for shipments and their event dedup ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, shipment *models.Shipment) error
	GetBySaleID(ctx context.Context, saleID uuid.UUID) (*models.Shipment, error)
	GetByTracking(ctx context.Context, trackingNumber string) (*models.Shipment, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	CreateEvent(ctx context.Context, event *models.ShipmentEvent) (created bool, err error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a shipping repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, shipment *models.Shipment) error {
	return r.db.WithContext(ctx).Create(shipment).Error
}

func (r *repository) GetBySaleID(ctx context.Context, saleID uuid.UUID) (*models.Shipment, error) {
	var shipment models.Shipment
	err := r.db.WithContext(ctx).
		Where("sale_id = ?", saleID).
		First(&shipment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &shipment, nil
}

func (r *repository) GetByTracking(ctx context.Context, trackingNumber string) (*models.Shipment, error) {
	var shipment models.Shipment
	err := r.db.WithContext(ctx).
		Where("tracking_number = ?", trackingNumber).
		First(&shipment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &shipment, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Shipment{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// CreateEvent inserts the dedup row for a carrier event. A second delivery of
// the same provider event id returns created=false with no error.
func (r *repository) CreateEvent(ctx context.Context, event *models.ShipmentEvent) (bool, error) {
	err := r.db.WithContext(ctx).Create(event).Error
	if err != nil {
		// provider_event_id is the only unique column on this table.
		if db.IsUniqueViolation(err, "") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
