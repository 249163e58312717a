package robokassa

import (
	"encoding/json"
	"net/url"

	"github.com/shopspring/decimal"
)

const (
	VatNone                     = "none"
	PaymentMethodFullPrepayment = "full_prepayment"
	PaymentObjectService        = "service"

	// Ограничение Robokassa на наименование позиции чека
	maxItemNameRunes = 128
)

// ReceiptItem - позиция фискального чека
type ReceiptItem struct {
	Name          string      `json:"name"`
	Quantity      int         `json:"quantity"`
	Sum           json.Number `json:"sum"`
	Tax           string      `json:"tax"`
	PaymentMethod string      `json:"payment_method"`
	PaymentObject string      `json:"payment_object"`
}

// Receipt - чек в формате Robokassa (54-ФЗ)
type Receipt struct {
	Sno   string        `json:"sno"`
	Email string        `json:"email,omitempty"`
	Items []ReceiptItem `json:"items"`
}

// ReceiptBuilder собирает чек с параметрами магазина
type ReceiptBuilder struct {
	taxSystem    string
	defaultEmail string
}

func NewReceiptBuilder(taxSystem, defaultEmail string) *ReceiptBuilder {
	return &ReceiptBuilder{taxSystem: taxSystem, defaultEmail: defaultEmail}
}

// Build - одна позиция: количество 1, сумма = amount.
// Email: аргумент, иначе адрес по умолчанию, иначе поле не передается.
func (b *ReceiptBuilder) Build(amount decimal.Decimal, description, contactEmail string) Receipt {
	email := contactEmail
	if email == "" {
		email = b.defaultEmail
	}

	return Receipt{
		Sno:   b.taxSystem,
		Email: email,
		Items: []ReceiptItem{{
			Name:          truncateRunes(description, maxItemNameRunes),
			Quantity:      1,
			Sum:           json.Number(FormatAmount(amount)),
			Tax:           VatNone,
			PaymentMethod: PaymentMethodFullPrepayment,
			PaymentObject: PaymentObjectService,
		}},
	}
}

// Marshal возвращает байты, которые сохраняются в payments.receipt_data.
// Из них же строится параметр Receipt (см. EncodeReceipt).
func (r Receipt) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// EncodeReceipt - URL-кодированный JSON чека. Эта строка и подписывается,
// и передается в параметре Receipt.
func EncodeReceipt(raw []byte) string {
	return url.QueryEscape(string(raw))
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
