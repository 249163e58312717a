package robokassa

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"salon_backend/internal/config"

	"github.com/shopspring/decimal"
)

// Signer считает и проверяет подписи Robokassa.
// Password1 - исходящий платеж и success-редирект, Password2 - только Result URL.
type Signer struct {
	merchantLogin string
	password1     string
	password2     string
}

func NewSigner(cfg config.RobokassaConfig) *Signer {
	return &Signer{
		merchantLogin: cfg.MerchantLogin,
		password1:     cfg.Password1,
		password2:     cfg.Password2,
	}
}

// PaymentSignature: MerchantLogin:OutSum:InvId:Password1
func (s *Signer) PaymentSignature(outSum, invoiceID string) string {
	return sign(s.merchantLogin, outSum, invoiceID, s.password1)
}

// PaymentSignatureWithReceipt: MerchantLogin:OutSum:InvId:Receipt:Password1.
// receipt передается ровно в том виде, в каком он уходит в параметр Receipt.
func (s *Signer) PaymentSignatureWithReceipt(outSum, invoiceID, receipt string) string {
	return sign(s.merchantLogin, outSum, invoiceID, receipt, s.password1)
}

// ResultSignature - ожидаемая подпись серверного callback (OutSum:InvId:Password2)
func (s *Signer) ResultSignature(outSum, invoiceID string) string {
	return sign(outSum, invoiceID, s.password2)
}

// SuccessSignature - ожидаемая подпись редиректа плательщика (OutSum:InvId:Password1)
func (s *Signer) SuccessSignature(outSum, invoiceID string) string {
	return sign(outSum, invoiceID, s.password1)
}

// VerifyResultSignature проверяет подпись Result URL.
// outSum используется как есть, без переформатирования.
func (s *Signer) VerifyResultSignature(outSum, invoiceID, signature string) bool {
	if signature == "" {
		return false
	}
	return equalSignatures(s.ResultSignature(outSum, invoiceID), signature)
}

// VerifySuccessSignature проверяет подпись Success URL
func (s *Signer) VerifySuccessSignature(outSum, invoiceID, signature string) bool {
	if signature == "" {
		return false
	}
	return equalSignatures(s.SuccessSignature(outSum, invoiceID), signature)
}

// Configured - заданы логин и оба пароля
func (s *Signer) Configured() bool {
	return s.merchantLogin != "" && s.password1 != "" && s.password2 != ""
}

func sign(parts ...string) string {
	hash := md5.Sum([]byte(strings.Join(parts, ":")))
	return strings.ToUpper(hex.EncodeToString(hash[:]))
}

func equalSignatures(expected, received string) bool {
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToUpper(received))) == 1
}

// FormatAmount - каноничное представление суммы для OutSum и подписи
func FormatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

// MaskSignature - длина и префикс подписи для логов, целиком не пишем
func MaskSignature(signature string) string {
	if len(signature) <= 4 {
		return fmt.Sprintf("len=%d", len(signature))
	}
	return fmt.Sprintf("len=%d prefix=%s", len(signature), signature[:4])
}
