package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/golosretail/golos-backend/pkg/db/models"
	"github.com/golosretail/golos-backend/pkg/pagination"
)

// Repository manages persistence for inventory movements.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, movement *models.InventoryMovement) error
	CreateBatch(ctx context.Context, movements []models.InventoryMovement) error
	SumByVariant(ctx context.Context, variantID uuid.UUID) (int, error)
	SumByVariants(ctx context.Context, variantIDs []uuid.UUID) (map[uuid.UUID]int, error)
	SumByVariantBefore(ctx context.Context, variantID uuid.UUID, before time.Time) (int, error)
	InOutBetween(ctx context.Context, variantID uuid.UUID, from, to time.Time) (in int, out int, err error)
	ExistsForSale(ctx context.Context, saleID uuid.UUID) (bool, error)
	ListByVariant(ctx context.Context, variantID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.InventoryMovement, error)
	ActiveVariantIDs(ctx context.Context) ([]uuid.UUID, error)
	LockVariants(ctx context.Context, variantIDs []uuid.UUID) ([]models.ProductVariant, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, movement *models.InventoryMovement) error {
	return r.db.WithContext(ctx).Create(movement).Error
}

func (r *repository) CreateBatch(ctx context.Context, movements []models.InventoryMovement) error {
	if len(movements) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&movements).Error
}

func (r *repository) SumByVariant(ctx context.Context, variantID uuid.UUID) (int, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.InventoryMovement{}).
		Where("variant_id = ?", variantID).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	return int(total), err
}

func (r *repository) SumByVariants(ctx context.Context, variantIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	result := make(map[uuid.UUID]int, len(variantIDs))
	if len(variantIDs) == 0 {
		return result, nil
	}

	type row struct {
		VariantID uuid.UUID
		Total     int64
	}
	var rows []row
	if err := r.db.WithContext(ctx).
		Model(&models.InventoryMovement{}).
		Where("variant_id IN ?", variantIDs).
		Select("variant_id, COALESCE(SUM(quantity), 0) AS total").
		Group("variant_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	for _, id := range variantIDs {
		result[id] = 0
	}
	for _, entry := range rows {
		result[entry.VariantID] = int(entry.Total)
	}
	return result, nil
}

func (r *repository) SumByVariantBefore(ctx context.Context, variantID uuid.UUID, before time.Time) (int, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.InventoryMovement{}).
		Where("variant_id = ? AND created_at < ?", variantID, before).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	return int(total), err
}

func (r *repository) InOutBetween(ctx context.Context, variantID uuid.UUID, from, to time.Time) (int, int, error) {
	type row struct {
		InQty  int64
		OutQty int64
	}
	var totals row
	err := r.db.WithContext(ctx).
		Model(&models.InventoryMovement{}).
		Where("variant_id = ? AND created_at >= ? AND created_at < ?", variantID, from, to).
		Select("COALESCE(SUM(CASE WHEN quantity > 0 THEN quantity ELSE 0 END), 0) AS in_qty, COALESCE(SUM(CASE WHEN quantity < 0 THEN -quantity ELSE 0 END), 0) AS out_qty").
		Scan(&totals).Error
	return int(totals.InQty), int(totals.OutQty), err
}

func (r *repository) ExistsForSale(ctx context.Context, saleID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.InventoryMovement{}).
		Where("sale_id = ?", saleID).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) ListByVariant(ctx context.Context, variantID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.InventoryMovement, error) {
	query := r.db.WithContext(ctx).
		Where("variant_id = ?", variantID).
		Order("created_at DESC, id DESC").
		Limit(limit)
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var movements []models.InventoryMovement
	if err := query.Find(&movements).Error; err != nil {
		return nil, err
	}
	return movements, nil
}

func (r *repository) ActiveVariantIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.ProductVariant{}).
		Where("is_active = ?", true).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// LockVariants takes SELECT FOR UPDATE on the variant rows in a stable order
// so concurrent confirmations serialize instead of deadlocking.
func (r *repository) LockVariants(ctx context.Context, variantIDs []uuid.UUID) ([]models.ProductVariant, error) {
	if len(variantIDs) == 0 {
		return nil, nil
	}
	var variants []models.ProductVariant
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", variantIDs).
		Order("id ASC").
		Find(&variants).Error
	return variants, err
}
