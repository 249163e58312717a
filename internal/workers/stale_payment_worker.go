package workers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"salon_backend/internal/alerting"
	"salon_backend/internal/config"
	"salon_backend/internal/logger"
	"salon_backend/internal/metrics"
	"salon_backend/internal/models"
	"salon_backend/internal/repositories"

	"github.com/shopspring/decimal"
)

const (
	staleWorkerName = "stale_payments"
	staleBatchSize  = 100
)

// StalePaymentWorker находит платежи, зависшие в pending, и сообщает о них.
// Статус не меняет: закрыть платеж может только callback или администратор.
type StalePaymentWorker struct {
	repo     repositories.PaymentRepository
	alerts   alerting.Sink
	after    time.Duration
	interval time.Duration
	now      func() time.Time
}

func NewStalePaymentWorker(repo repositories.PaymentRepository, alerts alerting.Sink, cfg config.WorkersConfig) *StalePaymentWorker {
	if alerts == nil {
		alerts = alerting.LogSink{}
	}
	return &StalePaymentWorker{
		repo:     repo,
		alerts:   alerts,
		after:    cfg.StalePendingAfter,
		interval: cfg.StaleCheckInterval,
		now:      time.Now,
	}
}

// Start запускает проверку в фоне до отмены ctx
func (w *StalePaymentWorker) Start(ctx context.Context) {
	go w.loop(ctx)
}

func (w *StalePaymentWorker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Stale payment worker stopped")
			return
		case <-ticker.C:
			_, _ = w.RunOnce(ctx)
		}
	}
}

// RunOnce - один проход: обновляет gauge и шлет одно сводное оповещение,
// если зависшие платежи есть. Первым в выборке идет самый старый.
func (w *StalePaymentWorker) RunOnce(ctx context.Context) (int, error) {
	now := w.now()
	stale, err := w.repo.FindStalePending(ctx, now.Add(-w.after), staleBatchSize)
	if err != nil {
		logger.WorkerLog(staleWorkerName, "find_stale_pending", err)
		return 0, err
	}

	metrics.SetStalePending(len(stale))
	if len(stale) > 0 {
		w.alerts.Report(ctx, summarizeStale(stale, now))
	}

	logger.WorkerLog(staleWorkerName, "find_stale_pending", nil, "count", len(stale))
	return len(stale), nil
}

func summarizeStale(stale []models.Payment, now time.Time) alerting.Alert {
	oldest := stale[0]
	total := decimal.Zero
	invoiceIDs := make([]string, 0, len(stale))
	for _, p := range stale {
		total = total.Add(p.Amount)
		invoiceIDs = append(invoiceIDs, p.InvoiceID)
	}

	return alerting.Alert{
		Kind:      alerting.KindStalePending,
		InvoiceID: oldest.InvoiceID,
		Amount:    total.StringFixed(2),
		Reason:    fmt.Sprintf("%d payment(s) pending for too long", len(stale)),
		Fields: map[string]any{
			"count":            len(stale),
			"oldest_salon_id":  oldest.SalonID,
			"oldest_age_hours": int(now.Sub(oldest.CreatedAt).Hours()),
			"invoice_ids":      strings.Join(invoiceIDs, ","),
		},
	}
}
