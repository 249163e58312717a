package apperrors

// ErrorCode - тип для кодов ошибок
type ErrorCode string

// Общие коды ошибок
const (
	CodeInternalError ErrorCode = "INTERNAL_ERROR"
	CodeDatabaseError ErrorCode = "DATABASE_ERROR"

	CodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	CodeLimitExceeded    ErrorCode = "LIMIT_EXCEEDED"

	CodeUnauthorized ErrorCode = "UNAUTHORIZED"
	CodeForbidden    ErrorCode = "FORBIDDEN"
	CodeInvalidToken ErrorCode = "INVALID_TOKEN"
)

// Коды платежного домена (Robokassa)
const (
	CodePaymentNotFound     ErrorCode = "PAYMENT_NOT_FOUND"
	CodeAmountMismatch      ErrorCode = "AMOUNT_MISMATCH"
	CodeSignatureInvalid    ErrorCode = "SIGNATURE_INVALID"
	CodeAmountOutOfRange    ErrorCode = "AMOUNT_OUT_OF_RANGE"
	CodeProcessingTimeout   ErrorCode = "PROCESSING_TIMEOUT"
	CodeInvalidPaymentState ErrorCode = "INVALID_PAYMENT_STATE"
	CodeProviderMisconfig   ErrorCode = "PROVIDER_NOT_CONFIGURED"
)
