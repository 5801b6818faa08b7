package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductVariant is the sellable unit (size/color). Inventory movements
// reference variants, never products.
type ProductVariant struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID uuid.UUID        `gorm:"column:product_id;type:uuid;not null;index"`
	SKU       string           `gorm:"column:sku;not null;uniqueIndex"`
	Size      string           `gorm:"column:size;not null"`
	Color     *string          `gorm:"column:color"`
	Price     *decimal.Decimal `gorm:"column:price;type:numeric(12,2)"`
	IsActive  bool             `gorm:"column:is_active;not null;default:true"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
