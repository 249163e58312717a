package alerting

import (
	"context"
	"fmt"
	"strings"

	"salon_backend/internal/config"
	"salon_backend/internal/logger"

	"gopkg.in/gomail.v2"
)

// EmailSink отправляет оповещения дежурным по SMTP (gomail).
// Отправка идет в отдельной горутине, ошибки только логируются.
type EmailSink struct {
	from string
	to   []string
	send func(m *gomail.Message) error
}

func NewEmailSink(cfg config.EmailConfig, to []string) *EmailSink {
	dialer := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)
	return &EmailSink{
		from: cfg.FromEmail,
		to:   to,
		send: func(m *gomail.Message) error { return dialer.DialAndSend(m) },
	}
}

func (s *EmailSink) Report(ctx context.Context, alert Alert) {
	if len(s.to) == 0 {
		return
	}

	m := s.buildMessage(alert)
	log := logger.FromContext(ctx)

	go func() {
		if err := s.send(m); err != nil {
			log.Error("failed to send alert email", "error", err.Error(), "alert_kind", string(alert.Kind))
		}
	}()
}

func (s *EmailSink) buildMessage(alert Alert) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", s.to...)
	m.SetHeader("Subject", fmt.Sprintf("[payments] %s: invoice %s", alert.Kind, alert.InvoiceID))

	var body strings.Builder
	args := alert.logArgs()
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&body, "%v: %v\n", args[i], args[i+1])
	}
	m.SetBody("text/plain", body.String())
	return m
}
