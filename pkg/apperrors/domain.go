package apperrors

import (
	"fmt"
	"net/http"
)

/*
Фабрики и предопределенные ошибки платежного домена.
Предопределенные переменные нельзя модифицировать (WithDetails/WithError),
для этого есть фабрики ниже.
*/

// =========================================================================
// Фабрики
// =========================================================================

// DatabaseError оборачивает ошибку хранилища (500)
func DatabaseError(err error) *AppError {
	return Wrap(err, CodeDatabaseError, "database", "Database error", http.StatusInternalServerError)
}

// ErrAmountOutOfRange - сумма вне допустимых границ (400)
func ErrAmountOutOfRange(min, max string) *AppError {
	return New(
		CodeAmountOutOfRange,
		"payment",
		fmt.Sprintf("Amount must be between %s and %s", min, max),
		http.StatusBadRequest,
	).WithDetails(map[string]string{"min": min, "max": max})
}

// ErrProcessingTimeout - обработка платежа не уложилась в дедлайн (504).
// Исход неизвестен, провайдер повторит запрос.
func ErrProcessingTimeout(invoiceID string, timeout string) *AppError {
	return New(
		CodeProcessingTimeout,
		"payment",
		"Payment processing timed out",
		http.StatusGatewayTimeout,
	).WithDetails(map[string]string{"invoice_id": invoiceID, "timeout": timeout})
}

// ErrPaymentNotFoundFor - платеж с указанным счетом не найден (404)
func ErrPaymentNotFoundFor(invoiceID string) *AppError {
	return New(CodePaymentNotFound, "payment", "Payment not found", http.StatusNotFound).
		WithDetails(map[string]string{"invoice_id": invoiceID})
}

// ErrAmountMismatchFor - сумма callback не совпадает с сохраненной (409)
func ErrAmountMismatchFor(expected, got string) *AppError {
	return New(CodeAmountMismatch, "payment", "Invalid payment amount", http.StatusConflict).
		WithDetails(map[string]string{"expected": expected, "got": got})
}

// ErrInvalidPaymentStateFor - переход из терминального статуса запрещен (409)
func ErrInvalidPaymentStateFor(invoiceID, status string) *AppError {
	return New(CodeInvalidPaymentState, "payment", "Operation not allowed for the current payment status", http.StatusConflict).
		WithDetails(map[string]string{"invoice_id": invoiceID, "status": status})
}

// =========================================================================
// Предопределенные ошибки
// =========================================================================

// ErrSignatureInvalid - подпись Robokassa не прошла проверку
var ErrSignatureInvalid = New(
	CodeSignatureInvalid,
	"payment",
	"Invalid signature",
	http.StatusBadRequest,
)

// ErrProviderNotConfigured - не заданы логин магазина или пароли
var ErrProviderNotConfigured = New(
	CodeProviderMisconfig,
	"payment",
	"Payment provider is not configured",
	http.StatusServiceUnavailable,
)

// ErrInsufficientPermissions - не-админ пытается выполнить админ-действие
var ErrInsufficientPermissions = New(
	CodeForbidden,
	"auth",
	"Insufficient permissions",
	http.StatusForbidden,
)

// ErrRateLimited - превышен лимит запросов с одного IP (429)
var ErrRateLimited = New(
	CodeLimitExceeded,
	"request",
	"Rate limit exceeded",
	http.StatusTooManyRequests,
)

// ErrInvalidToken - неверный или просроченный токен
var ErrInvalidToken = New(
	CodeInvalidToken,
	"auth",
	"Invalid or expired token",
	http.StatusUnauthorized,
)
