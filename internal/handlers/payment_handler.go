package handlers

import (
	"encoding/json"
	"net/http"

	"salon_backend/internal/auth"
	"salon_backend/internal/middleware"
	"salon_backend/internal/models"
	"salon_backend/internal/services"
	"salon_backend/pkg/apperrors"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type CreatePaymentRequest struct {
	SalonID     int64       `json:"salon_id" validate:"required,gt=0"`
	Amount      json.Number `json:"amount" validate:"required,amount-string"`
	Description string      `json:"description" validate:"max=500"`
	Email       string      `json:"email" validate:"omitempty,email,max=254"`
}

type ListPaymentsQuery struct {
	Status string `form:"status" validate:"omitempty,is-payment-status"`
	Limit  int    `form:"limit" validate:"omitempty,min=1,max=200"`
	Offset int    `form:"offset" validate:"omitempty,min=0"`
}

type MarkFailedRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type PaymentHandler struct {
	*BaseHandler
	paymentService services.PaymentService
	tokens         *auth.TokenManager
	limiter        *middleware.RateLimiter
}

func NewPaymentHandler(
	base *BaseHandler,
	paymentService services.PaymentService,
	tokens *auth.TokenManager,
	limiter *middleware.RateLimiter,
) *PaymentHandler {
	return &PaymentHandler{
		BaseHandler:    base,
		paymentService: paymentService,
		tokens:         tokens,
		limiter:        limiter,
	}
}

func (h *PaymentHandler) RegisterRoutes(r *gin.RouterGroup) {
	// Public
	r.GET("/payments/health", h.Health)

	// Protected
	protected := r.Group("")
	protected.Use(middleware.AuthMiddleware(h.tokens))
	{
		create := []gin.HandlerFunc{middleware.RequirePermission(auth.PermPaymentsCreate)}
		if h.limiter != nil {
			create = append([]gin.HandlerFunc{middleware.RateLimitMiddleware(h.limiter)}, create...)
		}
		protected.POST("/payments", append(create, h.CreatePayment)...)

		read := protected.Group("")
		read.Use(middleware.RequirePermission(auth.PermPaymentsRead))
		{
			read.GET("/payments/:invoiceId", h.GetPayment)
			read.GET("/salons/:salonId/payments", h.ListSalonPayments)
			read.GET("/salons/:salonId/payments/stats", h.GetSalonStats)
		}
	}

	// Admin
	admin := r.Group("/admin")
	admin.Use(middleware.AuthMiddleware(h.tokens), middleware.RequireRoles(models.UserRoleAdmin))
	{
		admin.POST("/payments/:invoiceId/fail", h.MarkFailed)
	}
}

// CreatePayment создает pending-платеж и возвращает ссылку на оплату
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	claims, ok := h.GetAndAuthorizeClaims(c)
	if !ok {
		return
	}

	var req CreatePaymentRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	if !h.AuthorizeSalon(c, claims, req.SalonID) {
		return
	}

	amount, err := decimal.NewFromString(req.Amount.String())
	if err != nil {
		apperrors.HandleError(c, apperrors.NewBadRequestError("Invalid amount"))
		return
	}

	result, err := h.paymentService.GeneratePaymentURL(c.Request.Context(), req.SalonID, amount, services.PaymentOptions{
		Description: req.Description,
		Email:       req.Email,
		UserID:      claims.UserID,
	})
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (h *PaymentHandler) GetPayment(c *gin.Context) {
	claims, ok := h.GetAndAuthorizeClaims(c)
	if !ok {
		return
	}

	invoiceID, ok := h.BindInvoiceID(c)
	if !ok {
		return
	}

	payment, err := h.paymentService.GetPayment(c.Request.Context(), invoiceID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	if !h.AuthorizeSalon(c, claims, payment.SalonID) {
		return
	}

	c.JSON(http.StatusOK, payment)
}

func (h *PaymentHandler) ListSalonPayments(c *gin.Context) {
	claims, ok := h.GetAndAuthorizeClaims(c)
	if !ok {
		return
	}

	salonID, err := ParseParamInt64(c, "salonId")
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	if !h.AuthorizeSalon(c, claims, salonID) {
		return
	}

	var query ListPaymentsQuery
	if !h.BindAndValidate_Query(c, &query) {
		return
	}

	filter := models.PaymentFilter{
		Status: models.PaymentStatus(query.Status),
		Limit:  query.Limit,
		Offset: query.Offset,
	}
	payments, err := h.paymentService.ListSalonPayments(c.Request.Context(), salonID, filter)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"payments": payments,
		"limit":    filter.EffectiveLimit(),
		"offset":   query.Offset,
	})
}

func (h *PaymentHandler) GetSalonStats(c *gin.Context) {
	claims, ok := h.GetAndAuthorizeClaims(c)
	if !ok {
		return
	}

	salonID, err := ParseParamInt64(c, "salonId")
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	if !h.AuthorizeSalon(c, claims, salonID) {
		return
	}

	stats, err := h.paymentService.GetSalonStats(c.Request.Context(), salonID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// MarkFailed - ручное закрытие зависшего платежа администратором
func (h *PaymentHandler) MarkFailed(c *gin.Context) {
	invoiceID, ok := h.BindInvoiceID(c)
	if !ok {
		return
	}

	var req MarkFailedRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	payment, err := h.paymentService.MarkPaymentFailed(c.Request.Context(), invoiceID, req.Reason)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, payment)
}

func (h *PaymentHandler) Health(c *gin.Context) {
	status := h.paymentService.CheckConfiguration()
	if !status.Configured {
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}
	c.JSON(http.StatusOK, status)
}
