package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SaleItem is one variant line on a sale, priced at checkout time.
type SaleItem struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SaleID    uuid.UUID       `gorm:"column:sale_id;type:uuid;not null;uniqueIndex:uq_sale_items_variant"`
	VariantID uuid.UUID       `gorm:"column:variant_id;type:uuid;not null;uniqueIndex:uq_sale_items_variant"`
	Quantity  int             `gorm:"column:quantity;not null"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}
