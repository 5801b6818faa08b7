package auth

import "github.com/golosretail/golos-backend/pkg/enums"

// Action names a guarded operation.
type Action string

const (
	ActionUpdateOrderStatus Action = "orders.update_status"
	ActionCancelOwnOrder    Action = "orders.cancel_own"
	ActionAdvanceOrders     Action = "orders.advance"
	ActionRecordMovement    Action = "inventory.record_movement"
	ActionCloseMonth        Action = "inventory.close_month"
	ActionViewOps           Action = "ops.view"
)

// Policy answers whether a role may perform an action. Services take the
// decision from here instead of hardcoding role checks.
type Policy interface {
	Allow(role enums.ActorRole, action Action) bool
}

type rolePolicy struct {
	grants map[enums.ActorRole]map[Action]bool
}

// NewDefaultPolicy returns the standard role grants: admins do everything,
// staff run fulfillment and inventory, customers may only cancel their own
// pending orders, and the system actor drives automation.
func NewDefaultPolicy() Policy {
	all := []Action{
		ActionUpdateOrderStatus,
		ActionCancelOwnOrder,
		ActionAdvanceOrders,
		ActionRecordMovement,
		ActionCloseMonth,
		ActionViewOps,
	}

	grants := map[enums.ActorRole]map[Action]bool{
		enums.ActorRoleAdmin: grantSet(all...),
		enums.ActorRoleStaff: grantSet(
			ActionUpdateOrderStatus,
			ActionRecordMovement,
			ActionCloseMonth,
			ActionViewOps,
		),
		enums.ActorRoleCustomer: grantSet(ActionCancelOwnOrder),
		enums.ActorRoleSystem:   grantSet(ActionUpdateOrderStatus, ActionAdvanceOrders),
	}
	return &rolePolicy{grants: grants}
}

func grantSet(actions ...Action) map[Action]bool {
	set := make(map[Action]bool, len(actions))
	for _, action := range actions {
		set[action] = true
	}
	return set
}

func (p *rolePolicy) Allow(role enums.ActorRole, action Action) bool {
	actions, ok := p.grants[role]
	if !ok {
		return false
	}
	return actions[action]
}
