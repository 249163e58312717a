package app

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"salon_backend/internal/config"
	"salon_backend/internal/models"
	"salon_backend/internal/repositories"
	"salon_backend/internal/services/robokassa"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAppConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Env: "test"},
		Robokassa: config.RobokassaConfig{
			MerchantLogin:  "salon-shop",
			Password1:      "pass1",
			Password2:      "pass2",
			BaseURL:        "https://auth.robokassa.ru/Merchant/Index.aspx",
			Currency:       "RUB",
			MinAmount:      10,
			MaxAmount:      100000,
			TaxSystem:      "usn_income",
			Culture:        "ru",
			ProcessTimeout: 2 * time.Second,
		},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "salon-api", Audience: "salon-users", TTL: 60},
	}
}

func TestSetupRouter_Routes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := SetupRouter(testAppConfig(), Dependencies{PaymentRepo: repositories.NewMemoryPaymentRepository()})

	registered := make(map[string]bool)
	for _, r := range router.Routes() {
		registered[r.Method+" "+r.Path] = true
	}

	for _, route := range []string{
		"POST /robokassa/result",
		"GET /robokassa/result",
		"GET /robokassa/success",
		"GET /robokassa/fail",
		"POST /api/v1/payments",
		"GET /api/v1/payments/health",
		"GET /api/v1/payments/:invoiceId",
		"GET /api/v1/salons/:salonId/payments",
		"GET /api/v1/salons/:salonId/payments/stats",
		"POST /api/v1/admin/payments/:invoiceId/fail",
		"GET /metrics",
	} {
		assert.True(t, registered[route], route)
	}
}

func TestSetupRouter_CallbackEndToEnd(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testAppConfig()
	repo := repositories.NewMemoryPaymentRepository()
	repo.Seed(models.Payment{
		InvoiceID: "1700000000555",
		SalonID:   4,
		Amount:    decimal.NewFromInt(2500),
		Currency:  "RUB",
		Status:    models.PaymentStatusPending,
	})
	router := SetupRouter(cfg, Dependencies{PaymentRepo: repo})

	form := url.Values{
		"OutSum":         {"2500.00"},
		"InvId":          {"1700000000555"},
		"SignatureValue": {robokassa.NewSigner(cfg.Robokassa).ResultSignature("2500.00", "1700000000555")},
	}
	req := httptest.NewRequest(http.MethodPost, "/robokassa/result", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK1700000000555", w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	metricsReq := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	mw := httptest.NewRecorder()
	router.ServeHTTP(mw, metricsReq)
	assert.Equal(t, http.StatusOK, mw.Code)
	assert.Contains(t, mw.Body.String(), "salon_robokassa_webhook_outcomes_total")
}
