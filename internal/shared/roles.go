package shared

import "strings"

// Role identifies an employee's function in the distribution business.
type Role string

const (
	RoleAdmin           Role = "Admin"
	RoleSalesman        Role = "Salesman"
	RoleSalesManager    Role = "SalesManager"
	RoleSalesAuthorizer Role = "SalesAuthorizer"
	RolePlantHead       Role = "PlantHead"
	RoleAccountant      Role = "Accountant"
)

// Roles returns every known role.
func Roles() []Role {
	return []Role{RoleAdmin, RoleSalesman, RoleSalesManager, RoleSalesAuthorizer, RolePlantHead, RoleAccountant}
}

// IsValid reports whether the role is known.
func (r Role) IsValid() bool {
	_, ok := capabilities[r]
	return ok
}

// ParseRole matches a role name case-insensitively.
func ParseRole(raw string) (Role, bool) {
	raw = strings.TrimSpace(raw)
	for _, r := range Roles() {
		if strings.EqualFold(string(r), raw) {
			return r, true
		}
	}
	return "", false
}

// capabilities is the single role to permission table.
var capabilities = map[Role]map[string]struct{}{
	RoleAdmin: set(
		PermOrderView, PermOrderApproveWarehouse, PermOrderDeliver,
		PermPaymentHistory,
		PermPartyView, PermPartyEdit, PermStockView, PermStockReceive,
		PermNotificationRead, PermChatSend,
	),
	RoleSalesman: set(
		PermOrderView, PermOrderPlace, PermOrderAmend, PermOrderCancel,
		PermPaymentCollect, PermPaymentHistory,
		PermPartyView, PermPartyEdit,
		PermNotificationRead, PermChatSend,
	),
	RoleSalesManager: set(
		PermOrderView, PermOrderForward, PermOrderCancel,
		PermPartyView,
		PermNotificationRead, PermChatSend,
	),
	RoleSalesAuthorizer: set(
		PermOrderView, PermOrderAssignWarehouse, PermOrderApprove, PermOrderCancel,
		PermPartyView, PermStockView,
		PermNotificationRead, PermChatSend,
	),
	RolePlantHead: set(
		PermOrderView, PermOrderDispatch, PermOrderDeliver, PermOrderCancel,
		PermStockView, PermStockReceive,
		PermNotificationRead, PermChatSend,
	),
	RoleAccountant: set(
		PermOrderView, PermOrderInvoice,
		PermPaymentCollect, PermPaymentConfirmAdvance, PermPaymentHistory,
		PermPartyView,
		PermNotificationRead, PermChatSend,
	),
}

func set(perms ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		out[p] = struct{}{}
	}
	return out
}

// Can reports whether the role carries the permission.
func Can(role Role, perm string) bool {
	perms, ok := capabilities[role]
	if !ok {
		return false
	}
	_, ok = perms[strings.ToLower(strings.TrimSpace(perm))]
	return ok
}

// Permissions lists the permissions granted to the role.
func Permissions(role Role) []string {
	perms := capabilities[role]
	out := make([]string, 0, len(perms))
	for p := range perms {
		out = append(out, p)
	}
	return out
}
