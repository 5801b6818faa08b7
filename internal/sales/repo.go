package sales

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/golosretail/golos-backend/pkg/db/models"
)

// Repository defines the sale persistence used by checkout and confirmation.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, sale *models.Sale) (*models.Sale, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Sale, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Sale, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a sale repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, sale *models.Sale) (*models.Sale, error) {
	if err := r.db.WithContext(ctx).Create(sale).Error; err != nil {
		return nil, err
	}
	return sale, nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Sale, error) {
	var sale models.Sale
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&sale).Error
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

// GetByIDForUpdate locks the sale row and loads its items separately, since
// FOR UPDATE cannot span the preload join.
func (r *repository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Sale, error) {
	var sale models.Sale
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&sale).Error
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).
		Where("sale_id = ?", id).
		Order("created_at ASC").
		Find(&sale.Items).Error; err != nil {
		return nil, err
	}
	return &sale, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Sale{}).
		Where("id = ?", id).
		Updates(updates).Error
}
