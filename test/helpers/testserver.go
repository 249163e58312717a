package helpers

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"salon_backend/database"
	"salon_backend/internal/app"
	"salon_backend/internal/auth"
	"salon_backend/internal/config"
	"salon_backend/internal/repositories"

	"gorm.io/gorm"
)

// TestDatabaseEnv - DSN отдельной тестовой базы. Без нее интеграционные тесты пропускаются.
const TestDatabaseEnv = "TEST_DATABASE_URL"

type TestServer struct {
	Server *httptest.Server
	DB     *gorm.DB
	Config *config.Config
	Tokens *auth.TokenManager
}

// TestConfig - конфигурация магазина с тестовыми паролями
func TestConfig(dsn string) *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{Env: "test"},
		Database: config.DatabaseConfig{DSN: dsn, MaxOpenConns: 20, MaxIdleConns: 5, StatementTimeout: 10 * time.Second},
		Robokassa: config.RobokassaConfig{
			MerchantLogin:  "salon-test",
			Password1:      "integration-pass1",
			Password2:      "integration-pass2",
			BaseURL:        "https://auth.robokassa.ru/Merchant/Index.aspx",
			Currency:       "RUB",
			MinAmount:      10,
			MaxAmount:      100000,
			TaxSystem:      "usn_income",
			Culture:        "ru",
			ProcessTimeout: 5 * time.Second,
		},
		JWT: config.JWTConfig{
			Secret:   "integration_secret_key",
			Issuer:   "salon-api",
			Audience: "salon-users",
			TTL:      60,
		},
	}
}

// NewTestServer поднимает полный роутер поверх тестовой Postgres
func NewTestServer(t *testing.T) *TestServer {
	dsn := os.Getenv(TestDatabaseEnv)
	if dsn == "" {
		t.Skipf("%s is not set, skipping integration test", TestDatabaseEnv)
	}

	cfg := TestConfig(dsn)
	db, err := database.Connect(cfg.Database)
	if err != nil {
		t.Fatalf("Не удалось подключиться к тестовой БД: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("Не удалось выполнить AutoMigrate для тестовой БД: %v", err)
	}

	router := app.SetupRouter(cfg, app.Dependencies{
		PaymentRepo: repositories.NewPaymentRepository(db, cfg.Database.StatementTimeout),
	})
	server := httptest.NewServer(router)

	log.Printf("Test server started on %s", server.URL)

	return &TestServer{
		Server: server,
		DB:     db,
		Config: cfg,
		Tokens: auth.NewTokenManager(cfg.JWT),
	}
}

func (ts *TestServer) Close() {
	ts.Server.Close()
	if sqlDB, err := ts.DB.DB(); err == nil {
		sqlDB.Close()
	}
}

// ClearTables очищает таблицы между тестами
func (ts *TestServer) ClearTables(t *testing.T) {
	if err := ts.DB.Exec("TRUNCATE TABLE payments").Error; err != nil {
		t.Fatalf("Не удалось очистить таблицы: %v", err)
	}
}

func (ts *TestServer) SendRequest(t *testing.T, method, path, token string, body interface{}) (*http.Response, string) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Ошибка кодирования JSON для запроса: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, reqBody)
	if err != nil {
		t.Fatalf("Ошибка создания HTTP-запроса: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return ts.do(t, req)
}

// SendForm отправляет form-urlencoded POST, как это делает Robokassa
func (ts *TestServer) SendForm(t *testing.T, path string, form url.Values) (*http.Response, string) {
	req, err := http.NewRequest(http.MethodPost, ts.Server.URL+path, strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("Ошибка создания HTTP-запроса: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return ts.do(t, req)
}

func (ts *TestServer) do(t *testing.T, req *http.Request) (*http.Response, string) {
	res, err := ts.Server.Client().Do(req)
	if err != nil {
		t.Fatalf("Ошибка отправки HTTP-запроса: %v", err)
	}
	defer res.Body.Close()

	resBodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("Ошибка чтения тела ответа: %v", err)
	}
	return res, string(resBodyBytes)
}
