package alerting

import (
	"context"
	"time"

	"salon_backend/internal/logger"
)

type Kind string

const (
	// KindFraudSignal - неизвестный счет или несовпадение суммы в callback
	KindFraudSignal       Kind = "fraud_signal"
	KindProcessingTimeout Kind = "processing_timeout"
	KindProcessingError   Kind = "processing_error"
	KindStalePending      Kind = "stale_pending"
)

// Alert - событие для внешнего канала оповещений
type Alert struct {
	Kind      Kind
	InvoiceID string
	Amount    string
	Reason    string
	Elapsed   time.Duration
	Err       error
	Fields    map[string]any
}

func (a Alert) logArgs() []any {
	args := []any{
		"alert_kind", string(a.Kind),
		"invoice_id", a.InvoiceID,
	}
	if a.Amount != "" {
		args = append(args, "amount", a.Amount)
	}
	if a.Reason != "" {
		args = append(args, "reason", a.Reason)
	}
	if a.Elapsed > 0 {
		args = append(args, "elapsed_ms", a.Elapsed.Milliseconds())
	}
	if a.Err != nil {
		args = append(args, "error", a.Err.Error())
	}
	for k, v := range a.Fields {
		args = append(args, k, v)
	}
	return args
}

// Sink принимает оповещения. Report не должен блокировать обработку callback.
type Sink interface {
	Report(ctx context.Context, alert Alert)
}

// LogSink пишет оповещения в структурированный лог
type LogSink struct{}

func (LogSink) Report(ctx context.Context, alert Alert) {
	switch alert.Kind {
	case KindProcessingError, KindProcessingTimeout:
		logger.CtxError(ctx, "payment alert", alert.logArgs()...)
	default:
		logger.CtxWarn(ctx, "payment alert", alert.logArgs()...)
	}
}

// MultiSink рассылает оповещение во все вложенные sink
type MultiSink []Sink

func (m MultiSink) Report(ctx context.Context, alert Alert) {
	for _, s := range m {
		s.Report(ctx, alert)
	}
}
