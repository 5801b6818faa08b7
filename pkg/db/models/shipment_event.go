package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/golosretail/golos-backend/pkg/types"
)

// ShipmentEvent records one carrier webhook delivery. ProviderEventID is the
// dedup key: a redelivered event gets the stored row back and changes nothing.
type ShipmentEvent struct {
	ID              uuid.UUID     `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ShipmentID      uuid.UUID     `gorm:"column:shipment_id;type:uuid;not null;index"`
	ProviderEventID string        `gorm:"column:provider_event_id;not null;uniqueIndex"`
	EventType       string        `gorm:"column:event_type;not null"`
	Payload         types.JSONMap `gorm:"column:payload;type:jsonb"`
	OccurredAt      *time.Time    `gorm:"column:occurred_at"`
	CreatedAt       time.Time     `gorm:"column:created_at;autoCreateTime"`
}
