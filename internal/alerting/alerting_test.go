package alerting

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"salon_backend/internal/config"
	"salon_backend/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type recordingSink struct {
	alerts []Alert
}

func (r *recordingSink) Report(_ context.Context, a Alert) {
	r.alerts = append(r.alerts, a)
}

func TestMultiSink_FansOut(t *testing.T) {
	first, second := &recordingSink{}, &recordingSink{}
	sink := MultiSink{first, second}

	sink.Report(context.Background(), Alert{Kind: KindFraudSignal, InvoiceID: "1700000000123"})

	assert.Len(t, first.alerts, 1)
	assert.Len(t, second.alerts, 1)
}

func TestLogSink_WritesFields(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter("production", &buf)

	LogSink{}.Report(context.Background(), Alert{
		Kind:      KindProcessingTimeout,
		InvoiceID: "1700000000123",
		Amount:    "1000.00",
		Elapsed:   25 * time.Second,
	})

	out := buf.String()
	assert.Contains(t, out, `"level":"ERROR"`)
	assert.Contains(t, out, `"alert_kind":"processing_timeout"`)
	assert.Contains(t, out, `"elapsed_ms":25000`)
}

func TestEmailSink_SendsMessage(t *testing.T) {
	sent := make(chan string, 1)
	sender := gomail.SendFunc(func(from string, to []string, msg io.WriterTo) error {
		var buf bytes.Buffer
		_, err := msg.WriteTo(&buf)
		sent <- from + "|" + strings.Join(to, ",") + "|" + buf.String()
		return err
	})

	sink := &EmailSink{
		from: "alerts@salon.test",
		to:   []string{"oncall@salon.test"},
		send: func(m *gomail.Message) error { return gomail.Send(sender, m) },
	}

	sink.Report(context.Background(), Alert{Kind: KindFraudSignal, InvoiceID: "1700000000123", Reason: "amount mismatch"})

	select {
	case got := <-sent:
		assert.True(t, strings.HasPrefix(got, "alerts@salon.test|oncall@salon.test|"))
		assert.Contains(t, got, "invoice 1700000000123")
		assert.Contains(t, got, "reason: amount mismatch")
	case <-time.After(2 * time.Second):
		require.Fail(t, "alert email was not sent")
	}
}

func TestNewEmailSink_WiresDialer(t *testing.T) {
	sink := NewEmailSink(config.EmailConfig{
		SMTPHost:  "smtp.salon.test",
		SMTPPort:  587,
		FromEmail: "alerts@salon.test",
	}, []string{"oncall@salon.test"})

	assert.Equal(t, "alerts@salon.test", sink.from)
	assert.Equal(t, []string{"oncall@salon.test"}, sink.to)
	require.NotNil(t, sink.send)
}

func TestEmailSink_NoRecipientsIsNoop(t *testing.T) {
	called := false
	sink := &EmailSink{send: func(*gomail.Message) error { called = true; return nil }}

	sink.Report(context.Background(), Alert{Kind: KindStalePending})

	time.Sleep(10 * time.Millisecond)
	assert.False(t, called)
}
