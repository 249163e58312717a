package handlers

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"salon_backend/internal/alerting"
	"salon_backend/internal/config"
	"salon_backend/internal/logger"
	"salon_backend/internal/metrics"
	"salon_backend/internal/models"
	"salon_backend/internal/services"
	"salon_backend/internal/services/robokassa"
	"salon_backend/pkg/apperrors"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

const (
	ackPrefix         = "OK"
	rejectionBody     = "bad sign"
	internalErrorBody = "internal error"
)

// CallbackPayload - параметры Result URL. Одинаковы для POST-формы и query-строки.
type CallbackPayload struct {
	OutSum    string `form:"OutSum"`
	InvID     string `form:"InvId"`
	Signature string `form:"SignatureValue"`
	Email     string `form:"EMail"`
	Fee       string `form:"Fee"`
	OpKey     string `form:"OpKey"`
}

func (p CallbackPayload) complete() bool {
	return p.OutSum != "" && p.InvID != "" && p.Signature != ""
}

type WebhookOutcome int

const (
	WebhookSuccess WebhookOutcome = iota
	WebhookRejected
	WebhookInternalError
)

// WebhookResult - итог обработки callback, ровно один из трех вариантов
type WebhookResult struct {
	Outcome WebhookOutcome
	Payment *models.Payment
	Reason  string
	Err     error
}

func success(p *models.Payment) WebhookResult {
	return WebhookResult{Outcome: WebhookSuccess, Payment: p}
}

func rejected(reason string) WebhookResult {
	return WebhookResult{Outcome: WebhookRejected, Reason: reason}
}

func internalError(err error) WebhookResult {
	return WebhookResult{Outcome: WebhookInternalError, Err: err}
}

type RobokassaWebhookHandler struct {
	paymentService services.PaymentService
	alerts         alerting.Sink
	successURL     string
	failURL        string
}

func NewRobokassaWebhookHandler(paymentService services.PaymentService, alerts alerting.Sink, cfg config.RobokassaConfig) *RobokassaWebhookHandler {
	if alerts == nil {
		alerts = alerting.LogSink{}
	}
	return &RobokassaWebhookHandler{
		paymentService: paymentService,
		alerts:         alerts,
		successURL:     cfg.SuccessURL,
		failURL:        cfg.FailURL,
	}
}

func (h *RobokassaWebhookHandler) RegisterRoutes(r *gin.Engine) {
	rk := r.Group("/robokassa")
	{
		rk.POST("/result", h.HandleResult)
		rk.GET("/result", h.HandleResult)
		rk.GET("/success", h.HandleSuccess)
		rk.POST("/success", h.HandleSuccess)
		rk.GET("/fail", h.HandleFail)
		rk.POST("/fail", h.HandleFail)
	}
}

// HandleResult - Result URL. Тело ответа читает только Robokassa.
func (h *RobokassaWebhookHandler) HandleResult(c *gin.Context) {
	var payload CallbackPayload
	if err := c.ShouldBindWith(&payload, binding.Form); err != nil {
		logger.CtxWarn(c.Request.Context(), "Malformed Robokassa callback", "error", err.Error())
		metrics.RecordWebhookOutcome(metrics.OutcomeMissingFields)
		c.String(http.StatusBadRequest, rejectionBody)
		return
	}

	ctx := c.Request.Context()
	if payload.InvID != "" {
		ctx = logger.WithInvoiceID(ctx, payload.InvID)
	}

	result := h.Process(ctx, payload)
	switch result.Outcome {
	case WebhookSuccess:
		c.String(http.StatusOK, ackPrefix+payload.InvID)
	case WebhookRejected:
		c.String(http.StatusBadRequest, rejectionBody)
	default:
		c.String(http.StatusInternalServerError, internalErrorBody)
	}
}

// Process - конечный автомат обработки callback. Порядок шагов менять нельзя:
// подпись проверяется до любого чтения из БД, подтверждение выдается
// только после фактического перехода в success (или если он уже был).
func (h *RobokassaWebhookHandler) Process(ctx context.Context, p CallbackPayload) WebhookResult {
	if !p.complete() {
		logger.CtxWarn(ctx, "Robokassa callback without required fields",
			"has_out_sum", p.OutSum != "",
			"has_inv_id", p.InvID != "",
			"has_signature", p.Signature != "",
		)
		metrics.RecordWebhookOutcome(metrics.OutcomeMissingFields)
		return rejected("missing required fields")
	}

	if !h.paymentService.VerifyCallbackSignature(p.OutSum, p.InvID, p.Signature) {
		logger.CtxWarn(ctx, "Invalid Robokassa signature",
			"out_sum", p.OutSum,
			"signature", robokassa.MaskSignature(p.Signature),
		)
		metrics.RecordWebhookOutcome(metrics.OutcomeBadSignature)
		result := rejected("signature mismatch")
		result.Err = apperrors.ErrSignatureInvalid
		return result
	}

	payment, err := h.paymentService.GetPayment(ctx, p.InvID)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodePaymentNotFound) {
			h.reportFraud(ctx, p, "unknown invoice")
			metrics.RecordWebhookOutcome(metrics.OutcomeNotFound)
			return rejected("payment not found")
		}
		return h.fail(ctx, p, err, 0)
	}

	if !h.paymentService.VerifyAmount(payment, p.OutSum) {
		h.reportFraud(ctx, p, "amount mismatch, expected "+payment.Amount.StringFixed(2))
		metrics.RecordWebhookOutcome(metrics.OutcomeAmountMismatch)
		return rejected("amount mismatch")
	}

	if payment.IsSuccess() {
		logger.CtxInfo(ctx, "Duplicate Robokassa callback acknowledged")
		metrics.RecordWebhookOutcome(metrics.OutcomeDuplicate)
		return success(payment)
	}

	started := time.Now()
	processed, err := h.paymentService.ProcessPaymentWithTimeout(ctx, p.InvID, p.OutSum, services.ProcessExtra{
		OperationID: p.OpKey,
		Email:       p.Email,
		Fee:         p.Fee,
	})
	if err != nil {
		switch {
		case apperrors.HasCode(err, apperrors.CodePaymentNotFound):
			h.reportFraud(ctx, p, "invoice vanished before lock")
			metrics.RecordWebhookOutcome(metrics.OutcomeNotFound)
			return rejected("payment not found")
		case apperrors.HasCode(err, apperrors.CodeAmountMismatch):
			h.reportFraud(ctx, p, "amount mismatch under lock")
			metrics.RecordWebhookOutcome(metrics.OutcomeAmountMismatch)
			return rejected("amount mismatch")
		case apperrors.HasCode(err, apperrors.CodeInvalidPaymentState):
			logger.CtxWarn(ctx, "Callback for a closed payment", "status", payment.Status)
			metrics.RecordWebhookOutcome(metrics.OutcomeInvalidState)
			return rejected("payment is closed")
		}
		return h.fail(ctx, p, err, time.Since(started))
	}

	logger.CtxInfo(ctx, "Robokassa callback processed", "elapsed_ms", time.Since(started).Milliseconds())
	metrics.RecordWebhookOutcome(metrics.OutcomeSuccess)
	return success(processed)
}

func (h *RobokassaWebhookHandler) reportFraud(ctx context.Context, p CallbackPayload, reason string) {
	h.alerts.Report(ctx, alerting.Alert{
		Kind:      alerting.KindFraudSignal,
		InvoiceID: p.InvID,
		Amount:    p.OutSum,
		Reason:    reason,
	})
}

// fail - ответ 500, Robokassa повторит запрос
func (h *RobokassaWebhookHandler) fail(ctx context.Context, p CallbackPayload, err error, elapsed time.Duration) WebhookResult {
	kind := alerting.KindProcessingError
	outcome := metrics.OutcomeError
	if apperrors.HasCode(err, apperrors.CodeProcessingTimeout) {
		kind = alerting.KindProcessingTimeout
		outcome = metrics.OutcomeTimeout
	}

	h.alerts.Report(ctx, alerting.Alert{
		Kind:      kind,
		InvoiceID: p.InvID,
		Amount:    p.OutSum,
		Elapsed:   elapsed,
		Err:       err,
	})
	metrics.RecordWebhookOutcome(outcome)
	return internalError(err)
}

// HandleSuccess - возврат плательщика после оплаты (подпись на Password1)
func (h *RobokassaWebhookHandler) HandleSuccess(c *gin.Context) {
	var payload CallbackPayload
	if err := c.ShouldBindWith(&payload, binding.Form); err != nil {
		logger.CtxWarn(c.Request.Context(), "Malformed Robokassa success redirect", "error", err.Error())
	}

	if !payload.complete() || !h.paymentService.VerifySuccessRedirect(payload.OutSum, payload.InvID, payload.Signature) {
		logger.CtxWarn(c.Request.Context(), "Invalid success redirect signature",
			"invoice_id", payload.InvID,
			"signature", robokassa.MaskSignature(payload.Signature),
		)
		h.redirect(c, h.failURL, payload.InvID, "fail")
		return
	}

	h.redirect(c, h.successURL, payload.InvID, "success")
}

// HandleFail - плательщик отменил оплату. Статус платежа не меняется.
func (h *RobokassaWebhookHandler) HandleFail(c *gin.Context) {
	var payload CallbackPayload
	if err := c.ShouldBindWith(&payload, binding.Form); err != nil {
		logger.CtxWarn(c.Request.Context(), "Malformed Robokassa fail redirect", "error", err.Error())
	}

	logger.CtxInfo(c.Request.Context(), "Payer returned from Robokassa without payment", "invoice_id", payload.InvID)
	h.redirect(c, h.failURL, payload.InvID, "fail")
}

func (h *RobokassaWebhookHandler) redirect(c *gin.Context, target, invoiceID, status string) {
	if target == "" {
		c.JSON(http.StatusOK, gin.H{"status": status, "invoice_id": invoiceID})
		return
	}

	u, err := url.Parse(target)
	if err != nil {
		logger.CtxWithError(c.Request.Context(), "Invalid redirect URL in config", err, "url", target)
		c.JSON(http.StatusOK, gin.H{"status": status, "invoice_id": invoiceID})
		return
	}
	if invoiceID != "" {
		q := u.Query()
		q.Set("invoice_id", invoiceID)
		u.RawQuery = q.Encode()
	}
	c.Redirect(http.StatusFound, u.String())
}
