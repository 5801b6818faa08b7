package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/golosretail/golos-backend/pkg/types"
)

// AuditLog records every inbound provider call and operator action, whether
// it changed anything or not.
type AuditLog struct {
	ID        uuid.UUID     `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Source    string        `gorm:"column:source;not null;index"`
	Action    string        `gorm:"column:action;not null"`
	SaleID    *uuid.UUID    `gorm:"column:sale_id;type:uuid;index"`
	Reference *string       `gorm:"column:reference"`
	Result    string        `gorm:"column:result;not null"`
	Payload   types.JSONMap `gorm:"column:payload;type:jsonb"`
	CreatedAt time.Time     `gorm:"column:created_at;autoCreateTime"`
}
