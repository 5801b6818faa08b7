package orders

import (
	"time"

	"github.com/golosretail/golos-backend/pkg/db/models"
	"github.com/golosretail/golos-backend/pkg/enums"
)

// allowedTransitions is the fulfillment state machine. Anything not listed
// here is rejected, including self-transitions and moves out of terminal
// states.
var allowedTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:    {enums.OrderStatusPaid, enums.OrderStatusCanceled},
	enums.OrderStatusPaid:       {enums.OrderStatusProcessing, enums.OrderStatusCanceled},
	enums.OrderStatusProcessing: {enums.OrderStatusShipped, enums.OrderStatusCanceled},
	enums.OrderStatusShipped:    {enums.OrderStatusDelivered},
	enums.OrderStatusDelivered:  {enums.OrderStatusCompleted},
}

// CanTransition reports whether the state machine permits moving an order
// from one status to another.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// stageColumn maps a target status to the sale timestamp column stamped on
// entry. Timestamps are first-write-wins: a column already set is left alone.
// Processing has no column of its own; confirmed_at belongs to the stock
// discount, not the state machine.
func stageColumn(to enums.OrderStatus) string {
	switch to {
	case enums.OrderStatusPaid:
		return "paid_at"
	case enums.OrderStatusShipped:
		return "shipped_at"
	case enums.OrderStatusDelivered:
		return "delivered_at"
	case enums.OrderStatusCompleted:
		return "completed_at"
	case enums.OrderStatusCanceled:
		return "canceled_at"
	default:
		return ""
	}
}

func stageTimestamp(sale *models.Sale, to enums.OrderStatus) *time.Time {
	switch to {
	case enums.OrderStatusPaid:
		return sale.PaidAt
	case enums.OrderStatusShipped:
		return sale.ShippedAt
	case enums.OrderStatusDelivered:
		return sale.DeliveredAt
	case enums.OrderStatusCompleted:
		return sale.CompletedAt
	case enums.OrderStatusCanceled:
		return sale.CanceledAt
	default:
		return nil
	}
}
