package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/golosretail/golos-backend/pkg/db/models"
	"github.com/golosretail/golos-backend/pkg/enums"
	"github.com/golosretail/golos-backend/pkg/pagination"
)

// Repository defines persistence operations for sales.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, sale *models.Sale) (*models.Sale, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Sale, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Sale, error)
	GetByPaymentRef(ctx context.Context, ref string) (*models.Sale, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Sale, error)
	ListDueForAdvance(ctx context.Context, status enums.OrderStatus, column string, cutoff time.Time, limit int) ([]models.Sale, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a sales repository bound to the provided DB.
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
		Preload("Shipment").
		Where("id = ?", id).
		First(&sale).Error
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

// GetByIDForUpdate locks the sale row for the duration of the enclosing
// transaction. Items are loaded separately because FOR UPDATE cannot span
// the preload join.
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

func (r *repository) GetByPaymentRef(ctx context.Context, ref string) (*models.Sale, error) {
	var sale models.Sale
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("payment_ref = ?", ref).
		First(&sale).Error
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func (r *repository) ListByCustomer(ctx context.Context, customerID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Sale, error) {
	query := r.db.WithContext(ctx).
		Preload("Items").
		Where("customer_id = ?", customerID)
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	var sales []models.Sale
	err := query.
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&sales).Error
	if err != nil {
		return nil, err
	}
	return sales, nil
}

// ListDueForAdvance returns sales sitting in the given status whose stage
// timestamp column is older than the cutoff. Rows with a NULL column are
// never due.
func (r *repository) ListDueForAdvance(ctx context.Context, status enums.OrderStatus, column string, cutoff time.Time, limit int) ([]models.Sale, error) {
	var sales []models.Sale
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Where(column+" IS NOT NULL").
		Where(column+" <= ?", cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&sales).Error
	if err != nil {
		return nil, err
	}
	return sales, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Sale{}).
		Where("id = ?", id).
		Updates(updates).Error
}
