package shared

// Core platform permissions.
const (
	PermPartyView = "party.view"
	PermPartyEdit = "party.edit"

	PermStockView    = "stock.view"
	PermStockReceive = "stock.receive"

	PermNotificationRead = "notification.read"
	PermChatSend         = "chat.send"
)

// CoreScopes lists all permissions related to the core platform.
func CoreScopes() []string {
	return []string{
		PermPartyView,
		PermPartyEdit,
		PermStockView,
		PermStockReceive,
		PermNotificationRead,
		PermChatSend,
	}
}
