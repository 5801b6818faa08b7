package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/golosretail/golos-backend/pkg/enums"
)

// InventoryMovement is an append-only ledger entry. Quantity carries the
// sign: inbound types positive, outbound types negative. Current stock is
// always the sum of movements, never a stored counter.
//
// Sale-sourced movements carry the sale id so a confirmation retried after a
// commit collides on uq_inventory_movements_sale instead of double-discounting.
type InventoryMovement struct {
	ID         uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VariantID  uuid.UUID          `gorm:"column:variant_id;type:uuid;not null;index:idx_inventory_movements_variant;uniqueIndex:uq_inventory_movements_sale"`
	Type       enums.MovementType `gorm:"column:type;type:text;not null"`
	Quantity   int                `gorm:"column:quantity;not null"`
	SaleID     *uuid.UUID         `gorm:"column:sale_id;type:uuid;uniqueIndex:uq_inventory_movements_sale"`
	SupplierID *uuid.UUID         `gorm:"column:supplier_id;type:uuid"`
	Reference  *string            `gorm:"column:reference"`
	Note       *string            `gorm:"column:note"`
	CreatedBy  *uuid.UUID         `gorm:"column:created_by;type:uuid"`
	CreatedAt  time.Time          `gorm:"column:created_at;autoCreateTime;index:idx_inventory_movements_created_at"`
}
