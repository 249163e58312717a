package repositories

import (
	"context"
	"regexp"
	"testing"
	"time"

	"salon_backend/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

var paymentColumns = []string{
	"id", "created_at", "updated_at", "invoice_id", "salon_id", "amount", "currency",
	"description", "status", "receipt_data", "metadata", "error_message",
	"robokassa_operation_id", "completed_at",
}

func newMockRepo(t *testing.T) (*PaymentRepositoryImpl, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	return &PaymentRepositoryImpl{db: gdb, now: func() time.Time { return fixedNow }}, mock
}

func paymentRow(invoiceID string, status models.PaymentStatus, amount string) *sqlmock.Rows {
	return sqlmock.NewRows(paymentColumns).AddRow(
		"6f1c7a3e-0d55-4c4e-9d59-6a0c1f0f2b11", fixedNow, fixedNow, invoiceID, int64(7), amount, "RUB",
		"Стрижка", string(status), []byte(`{"sno":"osn","items":[]}`), []byte(`{"email":"a@b.test"}`), nil,
		nil, nil,
	)
}

func TestGenerateInvoiceID_Length(t *testing.T) {
	for i := 0; i < 100; i++ {
		id := GenerateInvoiceID(fixedNow)
		assert.Regexp(t, `^[0-9]{16,19}$`, id)
	}
}

func TestCreate_AssignsInvoiceID(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`INSERT INTO "payments"`).WillReturnResult(sqlmock.NewResult(1, 1))

	draft := &models.Payment{SalonID: 7, Amount: decimal.NewFromInt(500), Currency: "RUB"}
	created, err := repo.Create(context.Background(), draft)

	require.NoError(t, err)
	assert.Regexp(t, `^[0-9]{17}$`, created.InvoiceID)
	assert.Equal(t, models.PaymentStatusPending, created.Status)
	assert.NotEmpty(t, created.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_RetriesOnDuplicateInvoiceID(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`INSERT INTO "payments"`).WillReturnError(gorm.ErrDuplicatedKey)
	mock.ExpectExec(`INSERT INTO "payments"`).WillReturnResult(sqlmock.NewResult(1, 1))

	_, err := repo.Create(context.Background(), &models.Payment{SalonID: 7, Amount: decimal.NewFromInt(500)})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_GivesUpAfterCollisions(t *testing.T) {
	repo, mock := newMockRepo(t)

	for i := 0; i < invoiceIDAttempts; i++ {
		mock.ExpectExec(`INSERT INTO "payments"`).WillReturnError(gorm.ErrDuplicatedKey)
	}

	_, err := repo.Create(context.Background(), &models.Payment{SalonID: 7, Amount: decimal.NewFromInt(500)})

	assert.ErrorIs(t, err, ErrInvoiceIDExhausted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByInvoiceID_NotFoundReturnsNil(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT \* FROM "payments" WHERE invoice_id = \$1`).
		WillReturnRows(sqlmock.NewRows(paymentColumns))

	payment, err := repo.FindByInvoiceID(context.Background(), "1700000000123")

	assert.NoError(t, err)
	assert.Nil(t, payment)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByInvoiceID_ScansRow(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT \* FROM "payments" WHERE invoice_id = \$1`).
		WillReturnRows(paymentRow("1700000000123", models.PaymentStatusPending, "1000.00"))

	payment, err := repo.FindByInvoiceID(context.Background(), "1700000000123")

	require.NoError(t, err)
	require.NotNil(t, payment)
	assert.True(t, payment.Amount.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, "a@b.test", payment.ContactEmail())
	assert.Equal(t, int64(7), payment.SalonID)
}

func TestFindByInvoiceIDForUpdate_UsesRowLock(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT \* FROM "payments" WHERE invoice_id = \$1 .*FOR UPDATE`).
		WillReturnRows(paymentRow("1700000000123", models.PaymentStatusPending, "1000.00"))

	payment, err := repo.FindByInvoiceIDForUpdate(context.Background(), repo.db, "1700000000123")

	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusInTransaction_Success(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE "payments" SET .* WHERE invoice_id = \$\d+ AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM "payments" WHERE invoice_id = \$1`).
		WillReturnRows(paymentRow("1700000000123", models.PaymentStatusSuccess, "1000.00"))

	payment, err := repo.UpdateStatusInTransaction(context.Background(), repo.db, "1700000000123",
		models.PaymentStatusSuccess, models.StatusUpdate{OperationID: "op-1"})

	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSuccess, payment.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusInTransaction_TerminalRowUntouched(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE "payments" SET .* WHERE invoice_id = \$\d+ AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := repo.UpdateStatusInTransaction(context.Background(), repo.db, "1700000000123",
		models.PaymentStatusFailed, models.StatusUpdate{ErrorMessage: "manual"})

	assert.ErrorIs(t, err, ErrPaymentNotPending)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusInTransaction_RejectsPendingTarget(t *testing.T) {
	repo, mock := newMockRepo(t)

	_, err := repo.UpdateStatusInTransaction(context.Background(), repo.db, "1700000000123",
		models.PaymentStatusPending, models.StatusUpdate{})

	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransaction_CommitsAndSetsTimeout(t *testing.T) {
	repo, mock := newMockRepo(t)
	repo.statementTimeout = 5 * time.Second

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET LOCAL statement_timeout = 5000")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	called := false
	err := repo.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		called = true
		return nil
	})

	assert.NoError(t, err)
	assert.True(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := repo.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		return assert.AnError
	})

	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindBySalonID_AppliesFilter(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT \* FROM "payments" WHERE salon_id = \$1 AND status = \$2 ORDER BY created_at DESC LIMIT`).
		WillReturnRows(paymentRow("1700000000123", models.PaymentStatusSuccess, "250.00"))

	payments, err := repo.FindBySalonID(context.Background(), 7, models.PaymentFilter{
		Status: models.PaymentStatusSuccess,
		Limit:  1000,
	})

	require.NoError(t, err)
	assert.Len(t, payments, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetStatsBySalonID_Aggregates(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT status, COUNT\(\*\) AS count, COALESCE\(SUM\(amount\), 0\) AS total FROM "payments" WHERE salon_id = \$1 GROUP BY`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count", "total"}).
			AddRow("success", int64(3), "4500.00").
			AddRow("pending", int64(2), "700.00").
			AddRow("failed", int64(1), "100.00"))

	stats, err := repo.GetStatsBySalonID(context.Background(), 7)

	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.SuccessCount)
	assert.Equal(t, int64(2), stats.PendingCount)
	assert.Equal(t, int64(1), stats.FailedCount)
	assert.True(t, stats.TotalAmount.Equal(decimal.NewFromInt(4500)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindStalePending(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT \* FROM "payments" WHERE status = \$1 AND created_at < \$2 ORDER BY created_at ASC`).
		WillReturnRows(paymentRow("1700000000123", models.PaymentStatusPending, "100.00"))

	payments, err := repo.FindStalePending(context.Background(), fixedNow.Add(-24*time.Hour), 10)

	require.NoError(t, err)
	assert.Len(t, payments, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}
