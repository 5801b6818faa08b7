package auth

import (
	"testing"

	"github.com/golosretail/golos-backend/pkg/enums"
)

func TestDefaultPolicyGrants(t *testing.T) {
	policy := NewDefaultPolicy()

	tests := []struct {
		role    enums.ActorRole
		action  Action
		allowed bool
	}{
		{enums.ActorRoleAdmin, ActionUpdateOrderStatus, true},
		{enums.ActorRoleAdmin, ActionCancelOwnOrder, true},
		{enums.ActorRoleStaff, ActionUpdateOrderStatus, true},
		{enums.ActorRoleStaff, ActionCloseMonth, true},
		{enums.ActorRoleStaff, ActionAdvanceOrders, false},
		{enums.ActorRoleCustomer, ActionCancelOwnOrder, true},
		{enums.ActorRoleCustomer, ActionUpdateOrderStatus, false},
		{enums.ActorRoleCustomer, ActionCloseMonth, false},
		{enums.ActorRoleSystem, ActionAdvanceOrders, true},
		{enums.ActorRoleSystem, ActionCloseMonth, false},
		{enums.ActorRole("bogus"), ActionViewOps, false},
	}

	for _, tc := range tests {
		if got := policy.Allow(tc.role, tc.action); got != tc.allowed {
			t.Errorf("Allow(%s, %s) = %v, want %v", tc.role, tc.action, got, tc.allowed)
		}
	}
}
