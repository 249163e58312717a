package helpers

import (
	"fmt"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"salon_backend/internal/models"
	"salon_backend/internal/services/robokassa"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var invoiceSeq atomic.Int64

// Token выпускает JWT для роли и салона
func (ts *TestServer) Token(t *testing.T, role models.UserRole, salonID int64) string {
	token, err := ts.Tokens.GenerateToken(fmt.Sprintf("user-%d", time.Now().UnixNano()), string(role), salonID)
	require.NoError(t, err, "Не удалось выпустить токен")
	return token
}

// CreatePendingPayment вставляет pending-платеж напрямую в БД
func CreatePendingPayment(t *testing.T, db *gorm.DB, salonID int64, amount string) *models.Payment {
	payment := &models.Payment{
		InvoiceID: fmt.Sprintf("%d%04d", time.Now().UnixMilli(), invoiceSeq.Add(1)%10000),
		SalonID:   salonID,
		Amount:    decimal.RequireFromString(amount),
		Currency:  "RUB",
		Status:    models.PaymentStatusPending,
	}
	require.NoError(t, db.Create(payment).Error, "Не удалось создать тестовый платеж")
	return payment
}

// LoadPayment перечитывает платеж из БД
func LoadPayment(t *testing.T, db *gorm.DB, invoiceID string) *models.Payment {
	var payment models.Payment
	require.NoError(t, db.Where("invoice_id = ?", invoiceID).First(&payment).Error)
	return &payment
}

// ResultForm - подписанный Password2 callback Result URL
func (ts *TestServer) ResultForm(outSum, invoiceID string) url.Values {
	signer := robokassa.NewSigner(ts.Config.Robokassa)
	return url.Values{
		"OutSum":         {outSum},
		"InvId":          {invoiceID},
		"SignatureValue": {signer.ResultSignature(outSum, invoiceID)},
	}
}
