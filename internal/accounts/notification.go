package accounts

import "github.com/nodeadmin/backend/internal/models"

// NotificationExposed reports whether the notification toggle is offered to
// users of role under cfg.
func NotificationExposed(role models.UserRole, cfg models.NodeConfig) bool {
	switch role {
	case models.UserRoleAdmin:
		return !cfg.DisableAdminNotification
	case models.UserRoleRecipient:
		return !cfg.DisableReceiverNotification
	case models.UserRoleCustodian:
		return !cfg.DisableCustodianNotification
	default:
		return false
	}
}
