package auth

import "salon_backend/internal/models"

const (
	PermPaymentsCreate = "payments:create"
	PermPaymentsRead   = "payments:read"
	PermPaymentsAdmin  = "payments:admin"
)

// Permissions - разрешения по ролям
var Permissions = map[models.UserRole][]string{
	models.UserRoleAdmin: {
		PermPaymentsCreate,
		PermPaymentsRead,
		PermPaymentsAdmin,
	},
	models.UserRoleSalonOwner: {
		PermPaymentsCreate,
		PermPaymentsRead,
	},
}

func HasPermission(role models.UserRole, permission string) bool {
	for _, p := range Permissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// CanAccessSalon: админ видит все салоны, владелец только свой
func CanAccessSalon(claims *Claims, salonID int64) bool {
	if claims == nil {
		return false
	}
	if models.UserRole(claims.Role) == models.UserRoleAdmin {
		return true
	}
	return claims.SalonID != 0 && claims.SalonID == salonID
}
