package models

import (
	"time"

	"github.com/google/uuid"
)

// InventorySnapshot freezes one variant's counts for a closed month.
// ClosingQty of a closed snapshot is the opening quantity of the next month.
type InventorySnapshot struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VariantID  uuid.UUID `gorm:"column:variant_id;type:uuid;not null;uniqueIndex:uq_inventory_snapshots_period"`
	Year       int       `gorm:"column:year;not null;uniqueIndex:uq_inventory_snapshots_period"`
	Month      int       `gorm:"column:month;not null;uniqueIndex:uq_inventory_snapshots_period"`
	OpeningQty int       `gorm:"column:opening_qty;not null"`
	InQty      int       `gorm:"column:in_qty;not null"`
	OutQty     int       `gorm:"column:out_qty;not null"`
	ClosingQty int       `gorm:"column:closing_qty;not null"`
	ClosedAt   time.Time `gorm:"column:closed_at;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}
