package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"salon_backend/internal/config"
	"salon_backend/internal/events"
	"salon_backend/internal/logger"
	"salon_backend/internal/metrics"
	"salon_backend/internal/models"
	"salon_backend/internal/repositories"
	"salon_backend/internal/services/robokassa"
	"salon_backend/pkg/apperrors"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Допуск при сравнении суммы callback с сохраненной
const amountTolerance = 0.01

const publishTimeout = 5 * time.Second

type PaymentService interface {
	// Создание платежа
	GeneratePaymentURL(ctx context.Context, salonID int64, amount decimal.Decimal, opts PaymentOptions) (*PaymentURLResult, error)

	// Протокол Robokassa
	VerifyCallbackSignature(outSum, invoiceID, signature string) bool
	VerifySuccessRedirect(outSum, invoiceID, signature string) bool
	VerifyAmount(payment *models.Payment, outSum string) bool
	ProcessPayment(ctx context.Context, invoiceID, outSum string, extra ProcessExtra) (*models.Payment, error)
	ProcessPaymentWithTimeout(ctx context.Context, invoiceID, outSum string, extra ProcessExtra) (*models.Payment, error)

	// Администрирование
	MarkPaymentFailed(ctx context.Context, invoiceID, reason string) (*models.Payment, error)
	CheckConfiguration() ConfigurationStatus

	// Чтение
	GetPayment(ctx context.Context, invoiceID string) (*models.Payment, error)
	ListSalonPayments(ctx context.Context, salonID int64, filter models.PaymentFilter) ([]models.Payment, error)
	GetSalonStats(ctx context.Context, salonID int64) (*models.PaymentStats, error)
}

type PaymentOptions struct {
	Description string
	Email       string
	UserID      string
}

type PaymentURLResult struct {
	PaymentURL string          `json:"payment_url"`
	InvoiceID  string          `json:"invoice_id"`
	Payment    *models.Payment `json:"payment"`
}

// ProcessExtra - необязательные поля callback
type ProcessExtra struct {
	OperationID string
	Email       string
	Fee         string
}

type ConfigurationStatus struct {
	Configured bool `json:"configured"`
	TestMode   bool `json:"test_mode"`
}

type paymentService struct {
	cfg       config.RobokassaConfig
	testMode  bool
	signer    *robokassa.Signer
	receipts  *robokassa.ReceiptBuilder
	repo      repositories.PaymentRepository
	publisher events.Publisher
	timeout   time.Duration
	now       func() time.Time
}

func NewPaymentService(
	cfg config.RobokassaConfig,
	testMode bool,
	repo repositories.PaymentRepository,
	publisher events.Publisher,
) PaymentService {
	return newPaymentService(cfg, testMode, repo, publisher)
}

func newPaymentService(
	cfg config.RobokassaConfig,
	testMode bool,
	repo repositories.PaymentRepository,
	publisher events.Publisher,
) *paymentService {
	timeout := cfg.ProcessTimeout
	if timeout <= 0 {
		timeout = config.DefaultProcessTimeout
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	return &paymentService{
		cfg:       cfg,
		testMode:  testMode,
		signer:    robokassa.NewSigner(cfg),
		receipts:  robokassa.NewReceiptBuilder(cfg.TaxSystem, cfg.DefaultEmail),
		repo:      repo,
		publisher: publisher,
		timeout:   timeout,
		now:       time.Now,
	}
}

// ============================================================================
// Создание платежа
// ============================================================================

func (s *paymentService) GeneratePaymentURL(ctx context.Context, salonID int64, amount decimal.Decimal, opts PaymentOptions) (*PaymentURLResult, error) {
	// Без учетных данных ссылка не пройдет проверку у провайдера, строку не создаем
	if !s.signer.Configured() {
		logger.CtxError(ctx, "Payment link requested while Robokassa is not configured", "salon_id", salonID)
		return nil, apperrors.ErrProviderNotConfigured
	}

	amount = amount.Round(2)
	minAmount, maxAmount := s.cfg.MinAmountDecimal(), s.cfg.MaxAmountDecimal()
	if amount.LessThan(minAmount) || amount.GreaterThan(maxAmount) {
		return nil, apperrors.ErrAmountOutOfRange(minAmount.StringFixed(2), maxAmount.StringFixed(2))
	}

	description := sanitizeDescription(opts.Description, salonID)
	receipt := s.receipts.Build(amount, description, opts.Email)
	receiptJSON, err := receipt.Marshal()
	if err != nil {
		return nil, apperrors.InternalError(fmt.Errorf("marshal receipt: %w", err))
	}

	metadata := datatypes.JSONMap{}
	if opts.Email != "" {
		metadata["email"] = opts.Email
	}
	if opts.UserID != "" {
		metadata["created_by"] = opts.UserID
	}

	payment, err := s.repo.Create(ctx, &models.Payment{
		SalonID:     salonID,
		Amount:      amount,
		Currency:    s.cfg.Currency,
		Description: description,
		Status:      models.PaymentStatusPending,
		ReceiptData: datatypes.JSON(receiptJSON),
		Metadata:    metadata,
	})
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	outSum := robokassa.FormatAmount(amount)
	encodedReceipt := robokassa.EncodeReceipt(receiptJSON)

	params := url.Values{}
	params.Set("MerchantLogin", s.cfg.MerchantLogin)
	params.Set("OutSum", outSum)
	params.Set("InvId", payment.InvoiceID)
	params.Set("Description", description)
	params.Set("SignatureValue", s.signer.PaymentSignatureWithReceipt(outSum, payment.InvoiceID, encodedReceipt))
	params.Set("Receipt", encodedReceipt)
	params.Set("Culture", s.cfg.Culture)
	params.Set("Encoding", "utf-8")
	if s.testMode {
		params.Set("IsTest", "1")
	}

	metrics.RecordPaymentCreated()
	logger.CtxInfo(ctx, "Payment link generated",
		"invoice_id", payment.InvoiceID,
		"salon_id", salonID,
		"amount", outSum,
		"test_mode", s.testMode,
	)

	return &PaymentURLResult{
		PaymentURL: s.cfg.BaseURL + "?" + params.Encode(),
		InvoiceID:  payment.InvoiceID,
		Payment:    payment,
	}, nil
}

// sanitizeDescription убирает угловые скобки (Robokassa их не принимает)
func sanitizeDescription(description string, salonID int64) string {
	description = strings.NewReplacer("<", "", ">", "").Replace(description)
	description = strings.TrimSpace(description)
	if description == "" {
		return fmt.Sprintf("Оплата услуг салона #%d", salonID)
	}
	return description
}

// ============================================================================
// Протокол Robokassa
// ============================================================================

func (s *paymentService) VerifyCallbackSignature(outSum, invoiceID, signature string) bool {
	return s.signer.VerifyResultSignature(outSum, invoiceID, signature)
}

func (s *paymentService) VerifySuccessRedirect(outSum, invoiceID, signature string) bool {
	return s.signer.VerifySuccessSignature(outSum, invoiceID, signature)
}

// VerifyAmount: |amount - outSum| < 0.01. Нечисловой outSum не совпадает ни с чем.
func (s *paymentService) VerifyAmount(payment *models.Payment, outSum string) bool {
	if payment == nil {
		return false
	}
	got, err := strconv.ParseFloat(strings.TrimSpace(outSum), 64)
	if err != nil || math.IsNaN(got) || math.IsInf(got, 0) {
		return false
	}
	return math.Abs(payment.Amount.InexactFloat64()-got) < amountTolerance
}

// ProcessPayment переводит платеж в success под блокировкой строки.
// Повторный вызов для уже оплаченного счета возвращает строку без изменений.
func (s *paymentService) ProcessPayment(ctx context.Context, invoiceID, outSum string, extra ProcessExtra) (*models.Payment, error) {
	started := s.now()
	defer func() {
		metrics.RecordProcessingDuration(time.Since(started).Seconds())
	}()

	var (
		result       *models.Payment
		transitioned bool
	)

	err := s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		payment, err := s.repo.FindByInvoiceIDForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return apperrors.DatabaseError(err)
		}
		if payment == nil {
			return apperrors.ErrPaymentNotFoundFor(invoiceID)
		}

		if !s.VerifyAmount(payment, outSum) {
			return apperrors.ErrAmountMismatchFor(payment.Amount.StringFixed(2), outSum)
		}

		switch payment.Status {
		case models.PaymentStatusSuccess:
			result = payment
			return nil
		case models.PaymentStatusPending:
		default:
			return apperrors.ErrInvalidPaymentStateFor(invoiceID, string(payment.Status))
		}

		updated, err := s.repo.UpdateStatusInTransaction(ctx, tx, invoiceID, models.PaymentStatusSuccess, models.StatusUpdate{
			OperationID: extra.OperationID,
			CompletedAt: s.now(),
		})
		if errors.Is(err, repositories.ErrPaymentNotPending) {
			return apperrors.ErrInvalidPaymentStateFor(invoiceID, string(payment.Status))
		}
		if err != nil {
			return apperrors.DatabaseError(err)
		}

		result = updated
		transitioned = true
		return nil
	})
	if err != nil {
		if _, ok := apperrors.AsAppError(err); !ok {
			err = apperrors.DatabaseError(err)
		}
		return nil, err
	}

	if transitioned {
		logger.CtxInfo(ctx, "Payment marked as successful",
			"invoice_id", invoiceID,
			"amount", result.Amount.StringFixed(2),
			"fee", extra.Fee,
		)
		s.publishSucceeded(ctx, result)
	}
	return result, nil
}

// ProcessPaymentWithTimeout ограничивает ожидание вызывающего, а не саму транзакцию:
// после таймаута транзакция либо завершится, либо будет прервана statement_timeout БД.
// Платеж при таймауте не помечается failed.
func (s *paymentService) ProcessPaymentWithTimeout(ctx context.Context, invoiceID, outSum string, extra ProcessExtra) (*models.Payment, error) {
	type outcome struct {
		payment *models.Payment
		err     error
	}

	done := make(chan outcome, 1)
	txCtx := context.WithoutCancel(ctx)
	go func() {
		payment, err := s.ProcessPayment(txCtx, invoiceID, outSum, extra)
		done <- outcome{payment: payment, err: err}
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return res.payment, res.err
	case <-timer.C:
		return nil, apperrors.ErrProcessingTimeout(invoiceID, s.timeout.String())
	case <-ctx.Done():
		return nil, apperrors.ErrProcessingTimeout(invoiceID, s.timeout.String()).WithError(ctx.Err())
	}
}

func (s *paymentService) publishSucceeded(ctx context.Context, payment *models.Payment) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.publisher.PublishPaymentSucceeded(pubCtx, events.NewPaymentSucceeded(payment)); err != nil {
		logger.CtxWithError(ctx, "Failed to publish payment event", err, "invoice_id", payment.InvoiceID)
	}
}

// ============================================================================
// Администрирование
// ============================================================================

// MarkPaymentFailed закрывает pending-платеж с причиной. Терминальные статусы не меняются.
func (s *paymentService) MarkPaymentFailed(ctx context.Context, invoiceID, reason string) (*models.Payment, error) {
	var result *models.Payment

	err := s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		payment, err := s.repo.FindByInvoiceIDForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return apperrors.DatabaseError(err)
		}
		if payment == nil {
			return apperrors.ErrPaymentNotFoundFor(invoiceID)
		}
		if payment.Status.IsTerminal() {
			return apperrors.ErrInvalidPaymentStateFor(invoiceID, string(payment.Status))
		}

		updated, err := s.repo.UpdateStatusInTransaction(ctx, tx, invoiceID, models.PaymentStatusFailed, models.StatusUpdate{
			ErrorMessage: reason,
			CompletedAt:  s.now(),
		})
		if err != nil {
			return apperrors.DatabaseError(err)
		}
		result = updated
		return nil
	})
	if err != nil {
		if _, ok := apperrors.AsAppError(err); !ok {
			err = apperrors.DatabaseError(err)
		}
		return nil, err
	}

	metrics.RecordPaymentFailed()
	logger.CtxWarn(ctx, "Payment marked as failed", "invoice_id", invoiceID, "reason", reason)
	return result, nil
}

func (s *paymentService) CheckConfiguration() ConfigurationStatus {
	return ConfigurationStatus{
		Configured: s.signer.Configured(),
		TestMode:   s.testMode,
	}
}

// ============================================================================
// Чтение
// ============================================================================

func (s *paymentService) GetPayment(ctx context.Context, invoiceID string) (*models.Payment, error) {
	payment, err := s.repo.FindByInvoiceID(ctx, invoiceID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if payment == nil {
		return nil, apperrors.ErrPaymentNotFoundFor(invoiceID)
	}
	return payment, nil
}

func (s *paymentService) ListSalonPayments(ctx context.Context, salonID int64, filter models.PaymentFilter) ([]models.Payment, error) {
	payments, err := s.repo.FindBySalonID(ctx, salonID, filter)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return payments, nil
}

func (s *paymentService) GetSalonStats(ctx context.Context, salonID int64) (*models.PaymentStats, error) {
	stats, err := s.repo.GetStatsBySalonID(ctx, salonID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return stats, nil
}
