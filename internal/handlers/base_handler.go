package handlers

import (
	"strconv"

	"salon_backend/internal/auth"
	"salon_backend/internal/logger"
	"salon_backend/internal/middleware"
	"salon_backend/internal/validator"
	"salon_backend/pkg/apperrors"

	"github.com/gin-gonic/gin"
)

// ============================================================================
// 1. Базовая структура обработчика
// ============================================================================

type BaseHandler struct {
	validator *validator.Validator
}

func NewBaseHandler(v *validator.Validator) *BaseHandler {
	return &BaseHandler{
		validator: v,
	}
}

// ============================================================================
// 2. Привязка и валидация
// ============================================================================

func (h *BaseHandler) BindAndValidate_JSON(c *gin.Context, obj interface{}) bool {
	ctx := c.Request.Context()

	if err := c.ShouldBindJSON(obj); err != nil {
		logger.CtxWithError(ctx, "Failed to bind JSON body", err, "path", c.Request.URL.Path)
		apperrors.HandleError(c, apperrors.NewBadRequestError("Invalid request body: "+err.Error()))
		return false
	}

	return h.validate(c, obj)
}

func (h *BaseHandler) BindAndValidate_Query(c *gin.Context, obj interface{}) bool {
	ctx := c.Request.Context()

	if err := c.ShouldBindQuery(obj); err != nil {
		logger.CtxWithError(ctx, "Failed to bind query params", err, "path", c.Request.URL.Path)
		apperrors.HandleError(c, apperrors.NewBadRequestError("Invalid query parameters: "+err.Error()))
		return false
	}

	return h.validate(c, obj)
}

func (h *BaseHandler) validate(c *gin.Context, obj interface{}) bool {
	ctx := c.Request.Context()

	err := h.validator.Validate(obj)
	if err == nil {
		return true
	}

	if vErr, ok := err.(*validator.ValidationError); ok {
		logger.CtxWarn(ctx, "Validation failed", "errors", vErr.Errors, "path", c.Request.URL.Path)
		apperrors.HandleError(c, apperrors.ValidationError(vErr.Errors))
	} else {
		logger.CtxWithError(ctx, "Internal validator error", err, "path", c.Request.URL.Path)
		apperrors.HandleError(c, apperrors.InternalError(err))
	}
	return false
}

// ============================================================================
// 3. Обработка ошибок сервисов
// ============================================================================

func (h *BaseHandler) HandleServiceError(c *gin.Context, err error) {
	ctx := c.Request.Context()

	var appErr *apperrors.AppError
	if apperrors.As(err, &appErr) {
		if appErr.HTTPCode < 500 {
			logger.CtxWarn(ctx, "Service error",
				"error", appErr.Message,
				"details", appErr.Details,
				"path", c.Request.URL.Path,
			)
		}
		apperrors.HandleError(c, appErr)
		return
	}

	apperrors.HandleError(c, apperrors.InternalError(err))
}

// ============================================================================
// 4. Авторизация
// ============================================================================

func (h *BaseHandler) GetAndAuthorizeClaims(c *gin.Context) (*auth.Claims, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil || claims.UserID == "" {
		logger.CtxWarn(c.Request.Context(), "Unauthorized access: claims not found in context",
			"path", c.Request.URL.Path,
			"ip", c.ClientIP(),
		)
		apperrors.HandleError(c, apperrors.NewUnauthorizedError("User not authenticated"))
		return nil, false
	}
	return claims, true
}

// AuthorizeSalon: владелец работает только со своим салоном, админ со всеми
func (h *BaseHandler) AuthorizeSalon(c *gin.Context, claims *auth.Claims, salonID int64) bool {
	if auth.CanAccessSalon(claims, salonID) {
		return true
	}
	logger.CtxWarn(c.Request.Context(), "Salon access denied",
		"user_id", claims.UserID,
		"salon_id", salonID,
	)
	apperrors.HandleError(c, apperrors.NewForbiddenError("No access to this salon"))
	return false
}

// ============================================================================
// 5. Парсинг параметров
// ============================================================================

type invoiceParam struct {
	InvoiceID string `uri:"invoiceId" json:"invoice_id" validate:"required,invoice-id"`
}

// BindInvoiceID читает и проверяет :invoiceId из пути
func (h *BaseHandler) BindInvoiceID(c *gin.Context) (string, bool) {
	var p invoiceParam
	if err := c.ShouldBindUri(&p); err != nil {
		apperrors.HandleError(c, apperrors.NewBadRequestError("Invalid path parameter: invoiceId"))
		return "", false
	}
	if !h.validate(c, &p) {
		return "", false
	}
	return p.InvoiceID, true
}

func ParseParamInt64(c *gin.Context, key string) (int64, error) {
	valueStr := c.Param(key)
	if valueStr == "" {
		return 0, apperrors.NewBadRequestError("Missing required path parameter: " + key)
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil || value <= 0 {
		return 0, apperrors.NewBadRequestError("Invalid path parameter: " + key + " is not a positive integer")
	}
	return value, nil
}
