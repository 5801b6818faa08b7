package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/golosretail/golos-backend/pkg/db/models"
)

// Repository manages persistence for products and variants.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateProduct(ctx context.Context, product *models.Product) error
	GetProductBySlug(ctx context.Context, slug string) (*models.Product, error)
	ListActiveProducts(ctx context.Context) ([]models.Product, error)
	GetVariantsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.ProductVariant, error)
	ResolvePrices(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a catalog repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateProduct(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *repository) GetProductBySlug(ctx context.Context, slug string) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("Variants").
		Where("slug = ?", slug).
		First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}

func (r *repository) ListActiveProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	if err := r.db.WithContext(ctx).
		Preload("Variants", "is_active = ?", true).
		Where("is_active = ?", true).
		Order("name ASC").
		Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

func (r *repository) GetVariantsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.ProductVariant, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var variants []models.ProductVariant
	if err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&variants).Error; err != nil {
		return nil, err
	}
	return variants, nil
}

// ResolvePrices returns the effective unit price per variant: the variant
// price when set, else the product base price.
func (r *repository) ResolvePrices(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]decimal.Decimal{}, nil
	}
	var rows []struct {
		ID    uuid.UUID       `gorm:"column:id"`
		Price decimal.Decimal `gorm:"column:price"`
	}
	err := r.db.WithContext(ctx).
		Table("product_variants").
		Select("product_variants.id AS id, COALESCE(product_variants.price, products.base_price) AS price").
		Joins("JOIN products ON products.id = product_variants.product_id").
		Where("product_variants.id IN ?", ids).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	prices := make(map[uuid.UUID]decimal.Decimal, len(rows))
	for _, row := range rows {
		prices[row.ID] = row.Price
	}
	return prices, nil
}
