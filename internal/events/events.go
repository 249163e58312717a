package events

import (
	"context"
	"fmt"
	"time"

	"salon_backend/internal/config"
	"salon_backend/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const RoutingKeyPaymentSucceeded = "payment.succeeded"

// PaymentSucceeded публикуется один раз на переход pending -> success.
// Потребители (записи, уведомления) только наблюдают итоговый статус.
type PaymentSucceeded struct {
	EventID     string    `json:"event_id"`
	Type        string    `json:"type"`
	InvoiceID   string    `json:"invoice_id"`
	SalonID     int64     `json:"salon_id"`
	Amount      string    `json:"amount"`
	Currency    string    `json:"currency"`
	OperationID string    `json:"operation_id,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

func NewPaymentSucceeded(p *models.Payment) PaymentSucceeded {
	ev := PaymentSucceeded{
		EventID:   uuid.NewString(),
		Type:      RoutingKeyPaymentSucceeded,
		InvoiceID: p.InvoiceID,
		SalonID:   p.SalonID,
		Amount:    p.Amount.StringFixed(2),
		Currency:  p.Currency,
	}
	if p.RobokassaOperationID != nil {
		ev.OperationID = *p.RobokassaOperationID
	}
	if p.CompletedAt != nil {
		ev.CompletedAt = *p.CompletedAt
	}
	return ev
}

type Publisher interface {
	PublishPaymentSucceeded(ctx context.Context, event PaymentSucceeded) error
	Close() error
}

// NopPublisher - события выключены
type NopPublisher struct{}

func (NopPublisher) PublishPaymentSucceeded(context.Context, PaymentSucceeded) error { return nil }
func (NopPublisher) Close() error                                                    { return nil }

// NewPublisher выбирает реализацию по events.backend
func NewPublisher(cfg *config.Config) (Publisher, error) {
	switch cfg.Events.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return NewRedisPublisher(client, cfg.Redis.EventsKey), nil
	case "rabbitmq":
		return DialRabbitPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
	case "none", "":
		return NopPublisher{}, nil
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Events.Backend)
	}
}
