package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/golosretail/golos-backend/pkg/enums"
	"github.com/golosretail/golos-backend/pkg/types"
)

// Sale is a customer order. Status and PaymentStatus advance independently:
// Status through the fulfillment state machine, PaymentStatus through
// gateway events.
type Sale struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID      *uuid.UUID          `gorm:"column:customer_id;type:uuid;index"`
	Status          enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'pending'"`
	PaymentStatus   enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'unpaid'"`
	Currency        string              `gorm:"column:currency;not null;default:'COP'"`
	Subtotal        decimal.Decimal     `gorm:"column:subtotal;type:numeric(12,2);not null"`
	ShippingCost    decimal.Decimal     `gorm:"column:shipping_cost;type:numeric(12,2);not null"`
	Total           decimal.Decimal     `gorm:"column:total;type:numeric(12,2);not null"`
	ShippingAddress types.Address       `gorm:"column:shipping_address;type:jsonb"`
	ShippingService string              `gorm:"column:shipping_service;not null"`
	PaymentRef      string              `gorm:"column:payment_ref;not null;uniqueIndex"`
	TransactionID   *string             `gorm:"column:transaction_id"`
	PaidAt          *time.Time          `gorm:"column:paid_at"`
	ConfirmedAt     *time.Time          `gorm:"column:confirmed_at"`
	ShippedAt       *time.Time          `gorm:"column:shipped_at"`
	DeliveredAt     *time.Time          `gorm:"column:delivered_at"`
	CompletedAt     *time.Time          `gorm:"column:completed_at"`
	CanceledAt      *time.Time          `gorm:"column:canceled_at"`
	Items           []SaleItem          `gorm:"foreignKey:SaleID;constraint:OnDelete:CASCADE"`
	Shipment        *Shipment           `gorm:"foreignKey:SaleID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
