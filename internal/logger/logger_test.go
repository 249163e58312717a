package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContext_AddsKnownFields(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter("production", &buf)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithInvoiceID(ctx, "1700000000123")

	CtxInfo(ctx, "callback received", "out_sum", "100.00")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "callback received", entry["msg"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "1700000000123", entry["invoice_id"])
	assert.Equal(t, "100.00", entry["out_sum"])
	assert.NotContains(t, entry, "user_id")
}

func TestWorkerLog_ErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter("production", &buf)

	WorkerLog("stale_payments", "scan", assert.AnError)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "stale_payments", entry["worker"])
	assert.Equal(t, assert.AnError.Error(), entry["error"])
}
