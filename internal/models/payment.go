package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Payment - попытка оплаты через Robokassa. Сумма и номер счета неизменяемы
// после вставки; статус меняется только один раз (pending -> success|failed).
type Payment struct {
	BaseModel
	InvoiceID            string            `gorm:"size:19;not null;uniqueIndex" json:"invoice_id"`
	SalonID              int64             `gorm:"not null;index" json:"salon_id"`
	Amount               decimal.Decimal   `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency             string            `gorm:"size:3;not null" json:"currency"`
	Description          string            `gorm:"size:500" json:"description"`
	Status               PaymentStatus     `gorm:"size:16;not null;default:'pending';index" json:"status"`
	ReceiptData          datatypes.JSON    `gorm:"type:jsonb" json:"receipt_data,omitempty"`
	Metadata             datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	ErrorMessage         *string           `json:"error_message,omitempty"`
	RobokassaOperationID *string           `gorm:"size:64" json:"robokassa_operation_id,omitempty"`
	CompletedAt          *time.Time        `json:"completed_at,omitempty"`
}

func (Payment) TableName() string {
	return "payments"
}

func (p *Payment) IsSuccess() bool {
	return p.Status == PaymentStatusSuccess
}

// ContactEmail - email плательщика из metadata (если был указан)
func (p *Payment) ContactEmail() string {
	if p.Metadata == nil {
		return ""
	}
	email, _ := p.Metadata["email"].(string)
	return email
}

// PaymentFilter - фильтр для выборки платежей салона
type PaymentFilter struct {
	Status PaymentStatus
	Limit  int
	Offset int
}

const (
	DefaultPaymentListLimit = 50
	MaxPaymentListLimit     = 200
)

// EffectiveLimit - размер страницы с учетом значения по умолчанию и верхней границы
func (f PaymentFilter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultPaymentListLimit
	case f.Limit > MaxPaymentListLimit:
		return MaxPaymentListLimit
	default:
		return f.Limit
	}
}

// PaymentStats - агрегаты по платежам салона. TotalAmount считается только по success.
type PaymentStats struct {
	SuccessCount int64           `json:"success_count"`
	PendingCount int64           `json:"pending_count"`
	FailedCount  int64           `json:"failed_count"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
}

// StatusUpdate - поля, выставляемые вместе со сменой статуса
type StatusUpdate struct {
	OperationID  string
	ErrorMessage string
	CompletedAt  time.Time
}
