package enums

import "fmt"

// MovementType classifies an inventory ledger entry.
type MovementType string

const (
	MovementTypePurchaseIn     MovementType = "PURCHASE_IN"
	MovementTypeSaleOut        MovementType = "SALE_OUT"
	MovementTypeAdjustIn       MovementType = "ADJUST_IN"
	MovementTypeAdjustOut      MovementType = "ADJUST_OUT"
	MovementTypeReturnIn       MovementType = "RETURN_IN"
	MovementTypeSupplierReturn MovementType = "SUPPLIER_RETURN"
)

var validMovementTypes = []MovementType{
	MovementTypePurchaseIn,
	MovementTypeSaleOut,
	MovementTypeAdjustIn,
	MovementTypeAdjustOut,
	MovementTypeReturnIn,
	MovementTypeSupplierReturn,
}

// String implements fmt.Stringer.
func (m MovementType) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MovementType.
func (m MovementType) IsValid() bool {
	for _, candidate := range validMovementTypes {
		if candidate == m {
			return true
		}
	}
	return false
}

// IsInbound reports whether movements of this type must carry a positive
// quantity. Supplier returns are outbound: stock leaves the store and goes
// back to the supplier.
func (m MovementType) IsInbound() bool {
	switch m {
	case MovementTypePurchaseIn, MovementTypeAdjustIn, MovementTypeReturnIn:
		return true
	default:
		return false
	}
}

// ParseMovementType converts raw input into a MovementType.
func ParseMovementType(value string) (MovementType, error) {
	for _, candidate := range validMovementTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid movement type %q", value)
}
