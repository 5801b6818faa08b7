package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/golosretail/golos-backend/pkg/enums"
	"github.com/golosretail/golos-backend/pkg/types"
)

// Shipment is the carrier-side record for a sale. One shipment per sale.
type Shipment struct {
	ID                  uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SaleID              uuid.UUID            `gorm:"column:sale_id;type:uuid;not null;uniqueIndex"`
	Provider            string               `gorm:"column:provider;not null"`
	CarrierName         string               `gorm:"column:carrier_name;not null"`
	TrackingNumber      string               `gorm:"column:tracking_number;not null;index"`
	ServiceName         string               `gorm:"column:service_name;not null"`
	Cost                decimal.Decimal      `gorm:"column:cost;type:numeric(12,2);not null"`
	Status              enums.ShipmentStatus `gorm:"column:status;type:text;not null;default:'created'"`
	EstimatedDeliveryAt *time.Time           `gorm:"column:estimated_delivery_at"`
	InTransitAt         *time.Time           `gorm:"column:in_transit_at"`
	DeliveredAt         *time.Time           `gorm:"column:delivered_at"`
	FailedAt            *time.Time           `gorm:"column:failed_at"`
	CanceledAt          *time.Time           `gorm:"column:canceled_at"`
	ProviderResponse    types.JSONMap        `gorm:"column:provider_response;type:jsonb"`
	Events              []ShipmentEvent      `gorm:"foreignKey:ShipmentID;constraint:OnDelete:CASCADE"`
	CreatedAt           time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
