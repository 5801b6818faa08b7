package enums

import "fmt"

// ShipmentStatus tracks the carrier-side state of a shipment.
type ShipmentStatus string

const (
	ShipmentStatusCreated   ShipmentStatus = "created"
	ShipmentStatusInTransit ShipmentStatus = "in_transit"
	ShipmentStatusDelivered ShipmentStatus = "delivered"
	ShipmentStatusFailed    ShipmentStatus = "failed"
	ShipmentStatusCanceled  ShipmentStatus = "canceled"
)

var validShipmentStatuses = []ShipmentStatus{
	ShipmentStatusCreated,
	ShipmentStatusInTransit,
	ShipmentStatusDelivered,
	ShipmentStatusFailed,
	ShipmentStatusCanceled,
}

// String implements fmt.Stringer.
func (s ShipmentStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ShipmentStatus.
func (s ShipmentStatus) IsValid() bool {
	for _, candidate := range validShipmentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseShipmentStatus converts raw input into a ShipmentStatus.
func ParseShipmentStatus(value string) (ShipmentStatus, error) {
	for _, candidate := range validShipmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid shipment status %q", value)
}
