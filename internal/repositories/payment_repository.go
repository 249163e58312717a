package repositories

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"salon_backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrPaymentNotPending  = errors.New("payment is not pending")
	ErrInvoiceIDExhausted = errors.New("could not allocate unique invoice id")
)

const invoiceIDAttempts = 3

// PaymentRepository - граница хранения платежей.
// tx - хэндл транзакции, полученный внутри WithTransaction.
type PaymentRepository interface {
	// Create присваивает InvoiceID и вставляет черновик
	Create(ctx context.Context, draft *models.Payment) (*models.Payment, error)
	// FindByInvoiceID возвращает (nil, nil), если платежа нет
	FindByInvoiceID(ctx context.Context, invoiceID string) (*models.Payment, error)
	// FindByInvoiceIDForUpdate - SELECT ... FOR UPDATE внутри транзакции
	FindByInvoiceIDForUpdate(ctx context.Context, tx *gorm.DB, invoiceID string) (*models.Payment, error)
	UpdateStatusInTransaction(ctx context.Context, tx *gorm.DB, invoiceID string, status models.PaymentStatus, upd models.StatusUpdate) (*models.Payment, error)
	WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error

	FindBySalonID(ctx context.Context, salonID int64, filter models.PaymentFilter) ([]models.Payment, error)
	GetStatsBySalonID(ctx context.Context, salonID int64) (*models.PaymentStats, error)
	FindStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]models.Payment, error)
}

type PaymentRepositoryImpl struct {
	db               *gorm.DB
	statementTimeout time.Duration
	now              func() time.Time
}

func NewPaymentRepository(db *gorm.DB, statementTimeout time.Duration) PaymentRepository {
	return &PaymentRepositoryImpl{
		db:               db,
		statementTimeout: statementTimeout,
		now:              time.Now,
	}
}

// GenerateInvoiceID - миллисекунды Unix (13 цифр) + случайный суффикс из 4 цифр
func GenerateInvoiceID(now time.Time) string {
	return fmt.Sprintf("%d%04d", now.UnixMilli(), rand.Intn(10000))
}

func (r *PaymentRepositoryImpl) Create(ctx context.Context, draft *models.Payment) (*models.Payment, error) {
	if draft.Status == "" {
		draft.Status = models.PaymentStatusPending
	}

	for attempt := 0; attempt < invoiceIDAttempts; attempt++ {
		draft.InvoiceID = GenerateInvoiceID(r.now())

		err := r.db.WithContext(ctx).Create(draft).Error
		if err == nil {
			return draft, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("create payment: %w", err)
		}
	}

	return nil, ErrInvoiceIDExhausted
}

func (r *PaymentRepositoryImpl) FindByInvoiceID(ctx context.Context, invoiceID string) (*models.Payment, error) {
	return findByInvoiceID(r.db.WithContext(ctx), invoiceID)
}

func (r *PaymentRepositoryImpl) FindByInvoiceIDForUpdate(ctx context.Context, tx *gorm.DB, invoiceID string) (*models.Payment, error) {
	return findByInvoiceID(tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), invoiceID)
}

func findByInvoiceID(db *gorm.DB, invoiceID string) (*models.Payment, error) {
	var payment models.Payment
	err := db.Where("invoice_id = ?", invoiceID).Take(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find payment %s: %w", invoiceID, err)
	}
	return &payment, nil
}

// UpdateStatusInTransaction переводит pending-платеж в терминальный статус.
// Условие status = 'pending' в WHERE защищает от перезаписи терминальных строк.
func (r *PaymentRepositoryImpl) UpdateStatusInTransaction(
	ctx context.Context,
	tx *gorm.DB,
	invoiceID string,
	status models.PaymentStatus,
	upd models.StatusUpdate,
) (*models.Payment, error) {
	now := upd.CompletedAt
	if now.IsZero() {
		now = r.now()
	}

	updates := map[string]interface{}{
		"status":     status,
		"updated_at": now,
	}
	switch status {
	case models.PaymentStatusSuccess:
		updates["completed_at"] = now
		if upd.OperationID != "" {
			updates["robokassa_operation_id"] = upd.OperationID
		}
	case models.PaymentStatusFailed:
		updates["error_message"] = upd.ErrorMessage
	default:
		return nil, fmt.Errorf("update payment %s: unsupported target status %q", invoiceID, status)
	}

	db := tx.WithContext(ctx)
	res := db.Model(&models.Payment{}).
		Where("invoice_id = ? AND status = ?", invoiceID, models.PaymentStatusPending).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("update payment %s: %w", invoiceID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrPaymentNotPending
	}

	payment, err := findByInvoiceID(db, invoiceID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, fmt.Errorf("update payment %s: row vanished after update", invoiceID)
	}
	return payment, nil
}

// WithTransaction выполняет fn атомарно. statement_timeout ограничивает
// транзакцию на стороне БД, если вызывающий перестал ждать.
func (r *PaymentRepositoryImpl) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if r.statementTimeout > 0 {
			stmt := fmt.Sprintf("SET LOCAL statement_timeout = %d", r.statementTimeout.Milliseconds())
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("set statement timeout: %w", err)
			}
		}
		return fn(tx)
	})
}

func (r *PaymentRepositoryImpl) FindBySalonID(ctx context.Context, salonID int64, filter models.PaymentFilter) ([]models.Payment, error) {
	limit := filter.EffectiveLimit()

	query := r.db.WithContext(ctx).Where("salon_id = ?", salonID)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var payments []models.Payment
	err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("find payments for salon %d: %w", salonID, err)
	}
	return payments, nil
}

type statusAggregate struct {
	Status string
	Count  int64
	Total  decimal.Decimal
}

func (r *PaymentRepositoryImpl) GetStatsBySalonID(ctx context.Context, salonID int64) (*models.PaymentStats, error) {
	var rows []statusAggregate
	err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total").
		Where("salon_id = ?", salonID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("payment stats for salon %d: %w", salonID, err)
	}

	stats := &models.PaymentStats{TotalAmount: decimal.Zero}
	for _, row := range rows {
		switch models.PaymentStatus(row.Status) {
		case models.PaymentStatusSuccess:
			stats.SuccessCount = row.Count
			stats.TotalAmount = row.Total
		case models.PaymentStatusPending:
			stats.PendingCount = row.Count
		case models.PaymentStatusFailed:
			stats.FailedCount = row.Count
		}
	}
	return stats, nil
}

func (r *PaymentRepositoryImpl) FindStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]models.Payment, error) {
	if limit <= 0 {
		limit = models.DefaultPaymentListLimit
	}

	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.PaymentStatusPending, createdBefore).
		Order("created_at ASC").
		Limit(limit).
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("find stale pending payments: %w", err)
	}
	return payments, nil
}
