package shipping

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/golosretail/golos-backend/internal/audit"
	"github.com/golosretail/golos-backend/internal/orders"
	"github.com/golosretail/golos-backend/pkg/db/models"
	"github.com/golosretail/golos-backend/pkg/enums"
	pkgerrors "github.com/golosretail/golos-backend/pkg/errors"
	"github.com/golosretail/golos-backend/pkg/types"
)

// webhookPayload is the carrier's event envelope.
type webhookPayload struct {
	EventID        string     `json:"event_id"`
	EventType      string     `json:"event_type"`
	TrackingNumber string     `json:"tracking_number"`
	OccurredAt     *time.Time `json:"occurred_at"`
}

// WebhookResult reports what one carrier event did.
type WebhookResult struct {
	EventID        string
	EventType      string
	ShipmentID     uuid.UUID
	SaleID         uuid.UUID
	Duplicate      bool
	StatusChanged  bool
	ShipmentStatus enums.ShipmentStatus
	OrderAdvanced  bool
}

// shipmentStatusRank orders carrier states so a late in_transit redelivery
// cannot regress a shipment that already reached a terminal state.
var shipmentStatusRank = map[enums.ShipmentStatus]int{
	enums.ShipmentStatusCreated:   0,
	enums.ShipmentStatusInTransit: 1,
	enums.ShipmentStatusDelivered: 2,
	enums.ShipmentStatusFailed:    2,
	enums.ShipmentStatusCanceled:  2,
}

// eventEffect maps a carrier event type onto the shipment status it implies
// and the timestamp column it stamps.
func eventEffect(eventType string) (enums.ShipmentStatus, string, bool) {
	switch strings.ToLower(strings.TrimSpace(eventType)) {
	case "picked_up", "in_transit":
		return enums.ShipmentStatusInTransit, "in_transit_at", true
	case "delivered":
		return enums.ShipmentStatusDelivered, "delivered_at", true
	case "failed", "exception":
		return enums.ShipmentStatusFailed, "failed_at", true
	case "canceled":
		return enums.ShipmentStatusCanceled, "canceled_at", true
	default:
		return "", "", false
	}
}

// orderTargetFor returns the order transition a shipment status implies.
func orderTargetFor(status enums.ShipmentStatus) (enums.OrderStatus, bool) {
	switch status {
	case enums.ShipmentStatusInTransit:
		return enums.OrderStatusShipped, true
	case enums.ShipmentStatusDelivered:
		return enums.OrderStatusDelivered, true
	default:
		return "", false
	}
}

// VerifyWebhookSignature checks the carrier's HMAC-SHA256 hex signature over
// the exact request body.
func (s *service) VerifyWebhookSignature(body []byte, signature string) error {
	if s.cfg.WebhookSecret == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "shipping webhook secret not configured")
	}
	if signature == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "missing webhook signature")
	}
	mac := hmac.New(sha256.New, []byte(s.cfg.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature")
	}
	return nil
}

// ApplyWebhook verifies, dedups, and applies one carrier event. Redeliveries
// of an already-seen event id are acknowledged without changing anything.
func (s *service) ApplyWebhook(ctx context.Context, body []byte, signature string) (*WebhookResult, error) {
	if err := s.VerifyWebhookSignature(body, signature); err != nil {
		return nil, err
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parsing webhook payload")
	}
	if payload.EventID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event_id required")
	}
	if payload.EventType == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event_type required")
	}
	if payload.TrackingNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tracking_number required")
	}

	shipment, err := s.repo.GetByTracking(ctx, payload.TrackingNumber)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading shipment")
	}
	if shipment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "unknown tracking number").
			WithDetails(map[string]any{"tracking_number": payload.TrackingNumber})
	}

	result := &WebhookResult{
		EventID:        payload.EventID,
		EventType:      payload.EventType,
		ShipmentID:     shipment.ID,
		SaleID:         shipment.SaleID,
		ShipmentStatus: shipment.Status,
	}

	var raw types.JSONMap
	_ = json.Unmarshal(body, &raw)

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		created, err := txRepo.CreateEvent(ctx, &models.ShipmentEvent{
			ShipmentID:      shipment.ID,
			ProviderEventID: payload.EventID,
			EventType:       payload.EventType,
			Payload:         raw,
			OccurredAt:      payload.OccurredAt,
		})
		if err != nil {
			return err
		}
		if !created {
			result.Duplicate = true
			return s.recordWebhook(ctx, tx, shipment.SaleID, payload, "duplicate")
		}

		target, column, known := eventEffect(payload.EventType)
		if !known {
			return s.recordWebhook(ctx, tx, shipment.SaleID, payload, "ignored")
		}

		updates := map[string]any{}
		if shipment.Status != target && shipmentStatusRank[target] >= shipmentStatusRank[shipment.Status] {
			updates["status"] = target
			result.StatusChanged = true
			result.ShipmentStatus = target
		}
		if stampAt(shipment, column) == nil {
			at := s.now().UTC()
			if payload.OccurredAt != nil {
				at = payload.OccurredAt.UTC()
			}
			updates[column] = at
		}
		if len(updates) > 0 {
			if err := txRepo.Update(ctx, shipment.ID, updates); err != nil {
				return err
			}
		}
		return s.recordWebhook(ctx, tx, shipment.SaleID, payload, "applied")
	})
	if err != nil {
		return nil, err
	}
	if result.Duplicate || !result.StatusChanged {
		return result, nil
	}

	// The order-side transition runs after the shipment state commits so a
	// state conflict there cannot roll back the carrier event.
	if target, ok := orderTargetFor(result.ShipmentStatus); ok {
		_, err := s.orders.UpdateStatus(ctx, orders.UpdateStatusInput{
			SaleID:    shipment.SaleID,
			Target:    target,
			Note:      "carrier event " + payload.EventType,
			ActorRole: enums.ActorRoleSystem,
		})
		switch {
		case err == nil:
			result.OrderAdvanced = true
		case pkgerrors.IsCode(err, pkgerrors.CodeStateConflict):
			// The order already moved past this stage.
		default:
			s.logg.Error(ctx, "failed to advance order from carrier event", err)
		}
	}
	return result, nil
}

func (s *service) recordWebhook(ctx context.Context, tx *gorm.DB, saleID uuid.UUID, payload webhookPayload, outcome string) error {
	id := saleID
	_, err := s.audit.WithTx(tx).Record(ctx, audit.RecordInput{
		Source:    audit.SourceShipping,
		Action:    "shipping.event_received",
		SaleID:    &id,
		Reference: payload.EventID,
		Result:    outcome,
		Payload: types.JSONMap{
			"event_type":      payload.EventType,
			"tracking_number": payload.TrackingNumber,
		},
	})
	return err
}

// stampAt reads the first-write-wins timestamp column for an event effect.
func stampAt(shipment *models.Shipment, column string) *time.Time {
	switch column {
	case "in_transit_at":
		return shipment.InTransitAt
	case "delivered_at":
		return shipment.DeliveredAt
	case "failed_at":
		return shipment.FailedAt
	case "canceled_at":
		return shipment.CanceledAt
	default:
		return nil
	}
}
