package closing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/golosretail/golos-backend/pkg/db/models"
)

// Repository manages persistence for monthly inventory snapshots.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateBatch(ctx context.Context, snapshots []models.InventorySnapshot) error
	ExistsForPeriod(ctx context.Context, year, month int) (bool, error)
	GetByVariantPeriod(ctx context.Context, variantID uuid.UUID, year, month int) (*models.InventorySnapshot, error)
	ListByPeriod(ctx context.Context, year, month int) ([]models.InventorySnapshot, error)
	LatestPeriod(ctx context.Context) (year int, month int, found bool, err error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a snapshot repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateBatch(ctx context.Context, snapshots []models.InventorySnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&snapshots).Error
}

func (r *repository) ExistsForPeriod(ctx context.Context, year, month int) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.InventorySnapshot{}).
		Where("year = ? AND month = ?", year, month).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) GetByVariantPeriod(ctx context.Context, variantID uuid.UUID, year, month int) (*models.InventorySnapshot, error) {
	var snapshot models.InventorySnapshot
	err := r.db.WithContext(ctx).
		Where("variant_id = ? AND year = ? AND month = ?", variantID, year, month).
		First(&snapshot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &snapshot, nil
}

// LatestPeriod returns the most recent closed (year, month), if any.
func (r *repository) LatestPeriod(ctx context.Context) (int, int, bool, error) {
	var snapshot models.InventorySnapshot
	err := r.db.WithContext(ctx).
		Order("year DESC, month DESC").
		First(&snapshot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, 0, false, nil
		}
		return 0, 0, false, err
	}
	return snapshot.Year, snapshot.Month, true, nil
}

func (r *repository) ListByPeriod(ctx context.Context, year, month int) ([]models.InventorySnapshot, error) {
	var snapshots []models.InventorySnapshot
	if err := r.db.WithContext(ctx).
		Where("year = ? AND month = ?", year, month).
		Order("variant_id ASC").
		Find(&snapshots).Error; err != nil {
		return nil, err
	}
	return snapshots, nil
}
