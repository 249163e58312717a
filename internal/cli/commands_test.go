package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"salon_backend/internal/config"
	"salon_backend/internal/models"
	"salon_backend/internal/repositories"
	"salon_backend/internal/services"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCLIConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Env: config.EnvProduction},
		Robokassa: config.RobokassaConfig{
			MerchantLogin:  "salon-shop",
			Password1:      "pass1",
			Password2:      "pass2",
			MinAmount:      10,
			MaxAmount:      100000,
			ProcessTimeout: time.Second,
		},
		Workers: config.WorkersConfig{StalePendingAfter: time.Hour, StaleCheckInterval: time.Hour},
	}
}

type cliEnv struct {
	cfg    *config.Config
	repo   *repositories.MemoryPaymentRepository
	closed bool
}

func newCLIEnv() *cliEnv {
	return &cliEnv{cfg: testCLIConfig(), repo: repositories.NewMemoryPaymentRepository()}
}

func (e *cliEnv) run(args ...string) (string, error) {
	load := func() (*config.Config, error) { return e.cfg, nil }
	open := func(cfg *config.Config) (*runtime, error) {
		return &runtime{
			cfg:   cfg,
			repo:  e.repo,
			svc:   services.NewPaymentService(cfg.Robokassa, cfg.TestMode(), e.repo, nil),
			close: func() { e.closed = true },
		}, nil
	}

	cmd := newRootCmd(load, open)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func (e *cliEnv) seed(invoiceID string, status models.PaymentStatus, amount int64) {
	p := models.Payment{
		InvoiceID: invoiceID,
		SalonID:   3,
		Amount:    decimal.NewFromInt(amount),
		Currency:  "RUB",
		Status:    status,
	}
	p.CreatedAt = time.Now().Add(-2 * time.Hour)
	e.repo.Seed(p)
}

func TestCheckConfig(t *testing.T) {
	env := newCLIEnv()
	out, err := env.run("check-config")
	require.NoError(t, err)
	assert.Contains(t, out, "configured: true")
	assert.Contains(t, out, "test_mode:  false")

	env.cfg.Robokassa.Password2 = ""
	out, err = env.run("check-config")
	assert.ErrorIs(t, err, errNotConfigured)
	assert.Contains(t, out, "configured: false")
}

func TestMarkFailed(t *testing.T) {
	env := newCLIEnv()
	env.seed("1700000000777", models.PaymentStatusPending, 900)

	out, err := env.run("mark-failed", "1700000000777", "--reason", "client abandoned")
	require.NoError(t, err)
	assert.Contains(t, out, "payment 1700000000777 is now failed")
	assert.True(t, env.closed)

	p, err := env.repo.FindByInvoiceID(context.Background(), "1700000000777")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, p.Status)
	require.NotNil(t, p.ErrorMessage)
	assert.Equal(t, "client abandoned", *p.ErrorMessage)

	_, err = env.run("mark-failed", "1700000000777", "--reason", "again")
	assert.Error(t, err)
}

func TestMarkFailed_RequiresReason(t *testing.T) {
	env := newCLIEnv()
	_, err := env.run("mark-failed", "1700000000777")
	assert.Error(t, err)
	assert.Equal(t, 0, env.repo.Calls("WithTransaction"))
}

func TestStats(t *testing.T) {
	env := newCLIEnv()
	env.seed("1700000000001", models.PaymentStatusSuccess, 1000)
	env.seed("1700000000002", models.PaymentStatusSuccess, 250)
	env.seed("1700000000003", models.PaymentStatusPending, 400)

	out, err := env.run("stats", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "success: 2")
	assert.Contains(t, out, "pending: 1")
	assert.Contains(t, out, "total:   1250.00")

	_, err = env.run("stats", "abc")
	assert.Error(t, err)
}

func TestStale(t *testing.T) {
	env := newCLIEnv()
	env.seed("1700000000001", models.PaymentStatusPending, 1000)
	env.seed("1700000000002", models.PaymentStatusSuccess, 1000)

	out, err := env.run("stale")
	require.NoError(t, err)
	assert.Contains(t, out, "stale pending payments: 1")
}

func TestMigrate_RequiresDatabase(t *testing.T) {
	env := newCLIEnv()
	_, err := env.run("migrate")
	assert.Error(t, err)
}

func TestWithRuntime_LoadError(t *testing.T) {
	load := func() (*config.Config, error) { return nil, errors.New("bad yaml") }
	err := withRuntime(load, nil, func(*runtime) error { return nil })
	assert.ErrorContains(t, err, "bad yaml")
}
