package validator

import (
	"log"
	"regexp"

	"salon_backend/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var invoiceIDPattern = regexp.MustCompile(`^[0-9]{1,19}$`)

func registerCustomRules(v *validator.Validate) {
	mustRegister := func(tag string, fn validator.Func) {
		if err := v.RegisterValidation(tag, fn); err != nil {
			// Ошибка регистрации - ошибка сборки приложения, дальше не едем
			log.Fatalf("failed to register custom validation tag '%s': %v", tag, err)
		}
	}

	mustRegister("is-payment-status", validatePaymentStatus)
	mustRegister("amount-string", validateAmountString)
	mustRegister("invoice-id", validateInvoiceID)
}

func validatePaymentStatus(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // пустые значения - забота 'required'
	}
	return models.PaymentStatus(value).IsValid()
}

// validateAmountString: положительная сумма, не больше двух знаков после точки
func validateAmountString(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return false
	}
	return d.IsPositive() && d.Exponent() >= -2
}

func validateInvoiceID(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	return invoiceIDPattern.MatchString(value)
}
