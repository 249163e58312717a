package models

type UserRole string
type PaymentStatus string

const (
	UserRoleSalonOwner UserRole = "salon_owner"
	UserRoleAdmin      UserRole = "admin"

	// pending - единственный нетерминальный статус
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// IsTerminal - из success и failed переходов нет
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusSuccess || s == PaymentStatusFailed
}

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusSuccess, PaymentStatusFailed:
		return true
	}
	return false
}
