package robokassa

import (
	"encoding/json"
	"net/url"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceiptBuilder_SingleItem(t *testing.T) {
	b := NewReceiptBuilder("usn_income", "receipts@salon.test")

	r := b.Build(decimal.RequireFromString("1500"), "Стрижка", "client@mail.test")

	assert.Equal(t, "usn_income", r.Sno)
	assert.Equal(t, "client@mail.test", r.Email)
	require.Len(t, r.Items, 1)
	item := r.Items[0]
	assert.Equal(t, "Стрижка", item.Name)
	assert.Equal(t, 1, item.Quantity)
	assert.Equal(t, json.Number("1500.00"), item.Sum)
	assert.Equal(t, "none", item.Tax)
	assert.Equal(t, "full_prepayment", item.PaymentMethod)
	assert.Equal(t, "service", item.PaymentObject)
}

func TestReceiptBuilder_EmailFallback(t *testing.T) {
	withDefault := NewReceiptBuilder("osn", "receipts@salon.test")
	assert.Equal(t, "receipts@salon.test", withDefault.Build(decimal.NewFromInt(10), "x", "").Email)

	noDefault := NewReceiptBuilder("osn", "")
	raw, err := noDefault.Build(decimal.NewFromInt(10), "x", "").Marshal()
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"email"`)
}

func TestReceipt_MarshalKeepsNumericSum(t *testing.T) {
	raw, err := NewReceiptBuilder("osn", "").Build(decimal.RequireFromString("99.9"), "Маникюр", "").Marshal()
	require.NoError(t, err)

	assert.Contains(t, string(raw), `"sum":99.90`)
	assert.Contains(t, string(raw), `"quantity":1`)
}

func TestReceipt_LongNameTruncated(t *testing.T) {
	long := strings.Repeat("я", 200)
	r := NewReceiptBuilder("osn", "").Build(decimal.NewFromInt(10), long, "")

	assert.Equal(t, 128, len([]rune(r.Items[0].Name)))
}

func TestEncodeReceipt_RoundTripsToSameBytes(t *testing.T) {
	raw, err := NewReceiptBuilder("osn", "a@b.test").Build(decimal.NewFromInt(500), "Окрашивание & уход", "").Marshal()
	require.NoError(t, err)

	encoded := EncodeReceipt(raw)
	decoded, err := url.QueryUnescape(encoded)
	require.NoError(t, err)

	assert.Equal(t, string(raw), decoded)
	assert.NotContains(t, encoded, "&")
}
