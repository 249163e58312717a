package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	DefaultProcessTimeout = 25 * time.Second
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Env  string `yaml:"env"`
}

type DatabaseConfig struct {
	DSN              string        `yaml:"url"`
	MaxOpenConns     int           `yaml:"max_open_conns"`
	MaxIdleConns     int           `yaml:"max_idle_conns"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
}

// RobokassaConfig - учетные данные магазина и параметры платежей.
// Передается в сервисы явно, глобальных копий нет.
type RobokassaConfig struct {
	MerchantLogin  string        `yaml:"merchant_login"`
	Password1      string        `yaml:"password1"`
	Password2      string        `yaml:"password2"`
	BaseURL        string        `yaml:"base_url"`
	Currency       string        `yaml:"currency"`
	MinAmount      float64       `yaml:"min_amount"`
	MaxAmount      float64       `yaml:"max_amount"`
	IsTest         bool          `yaml:"is_test"`
	TaxSystem      string        `yaml:"tax_system"`
	DefaultEmail   string        `yaml:"default_email"`
	Culture        string        `yaml:"culture"`
	ProcessTimeout time.Duration `yaml:"process_timeout"`
	SuccessURL     string        `yaml:"success_url"`
	FailURL        string        `yaml:"fail_url"`
}

func (r RobokassaConfig) MinAmountDecimal() decimal.Decimal {
	return decimal.NewFromFloat(r.MinAmount).Round(2)
}

func (r RobokassaConfig) MaxAmountDecimal() decimal.Decimal {
	return decimal.NewFromFloat(r.MaxAmount).Round(2)
}

type JWTConfig struct {
	Secret   string `yaml:"secret"`
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
	TTL      int    `yaml:"ttl"` // минуты
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	EventsKey string `yaml:"events_key"`
}

type RabbitMQConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type EventsConfig struct {
	Backend string `yaml:"backend"` // redis, rabbitmq, none
}

type EmailConfig struct {
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUser     string `yaml:"smtp_user"`
	SMTPPassword string `yaml:"smtp_password"`
	FromEmail    string `yaml:"from_email"`
}

type AlertsConfig struct {
	Enabled bool     `yaml:"enabled"`
	EmailTo []string `yaml:"email_to"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type WorkersConfig struct {
	StalePendingAfter  time.Duration `yaml:"stale_pending_after"`
	StaleCheckInterval time.Duration `yaml:"stale_check_interval"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Robokassa RobokassaConfig `yaml:"robokassa"`
	JWT       JWTConfig       `yaml:"jwt"`
	Redis     RedisConfig     `yaml:"redis"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Events    EventsConfig    `yaml:"events"`
	Email     EmailConfig     `yaml:"email"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Workers   WorkersConfig   `yaml:"workers"`
}

// Load читает .env (если есть), затем YAML-файл (если есть), затем
// применяет переменные окружения поверх и заполняет значения по умолчанию.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config

	if path == "" {
		path = getEnv("CONFIG_PATH", "config/config.yaml")
	}

	if f, err := os.Open(path); err == nil {
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file at %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to open config file at %s: %w", path, err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad - для main: падает при ошибке конфигурации
func MustLoad() *Config {
	cfg, err := Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func applyEnv(cfg *Config) {
	cfg.Server.Env = getEnv("SERVER_ENV", cfg.Server.Env)
	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	if port, err := strconv.Atoi(os.Getenv("SERVER_PORT")); err == nil {
		cfg.Server.Port = port
	}

	cfg.Database.DSN = getEnv("DATABASE_URL", cfg.Database.DSN)
	cfg.JWT.Secret = getEnv("JWT_SECRET", cfg.JWT.Secret)

	cfg.Robokassa.MerchantLogin = getEnv("ROBOKASSA_LOGIN", cfg.Robokassa.MerchantLogin)
	cfg.Robokassa.Password1 = getEnv("ROBOKASSA_PASSWORD1", cfg.Robokassa.Password1)
	cfg.Robokassa.Password2 = getEnv("ROBOKASSA_PASSWORD2", cfg.Robokassa.Password2)
	if v, err := strconv.ParseBool(os.Getenv("ROBOKASSA_IS_TEST")); err == nil {
		cfg.Robokassa.IsTest = v
	}

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.RabbitMQ.URL = getEnv("RABBITMQ_URL", cfg.RabbitMQ.URL)
	cfg.Events.Backend = getEnv("EVENTS_BACKEND", cfg.Events.Backend)
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Env == "" {
		cfg.Server.Env = EnvDevelopment
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.StatementTimeout == 0 {
		cfg.Database.StatementTimeout = 30 * time.Second
	}

	r := &cfg.Robokassa
	if r.BaseURL == "" {
		r.BaseURL = "https://auth.robokassa.ru/Merchant/Index.aspx"
	}
	if r.Currency == "" {
		r.Currency = "RUB"
	}
	if r.MinAmount == 0 {
		r.MinAmount = 10
	}
	if r.MaxAmount == 0 {
		r.MaxAmount = 100000
	}
	if r.TaxSystem == "" {
		r.TaxSystem = "usn_income"
	}
	if r.Culture == "" {
		r.Culture = "ru"
	}
	if r.ProcessTimeout == 0 {
		r.ProcessTimeout = DefaultProcessTimeout
	}

	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "salon-api"
	}
	if cfg.JWT.Audience == "" {
		cfg.JWT.Audience = "salon-users"
	}
	if cfg.JWT.TTL == 0 {
		cfg.JWT.TTL = 60
	}

	if cfg.Redis.EventsKey == "" {
		cfg.Redis.EventsKey = "payments:events"
	}
	if cfg.RabbitMQ.Exchange == "" {
		cfg.RabbitMQ.Exchange = "payments"
	}
	if cfg.Events.Backend == "" {
		cfg.Events.Backend = "none"
	}

	if cfg.RateLimit.RPS == 0 {
		cfg.RateLimit.RPS = 5
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 10
	}

	if cfg.Workers.StalePendingAfter == 0 {
		cfg.Workers.StalePendingAfter = 24 * time.Hour
	}
	if cfg.Workers.StaleCheckInterval == 0 {
		cfg.Workers.StaleCheckInterval = time.Hour
	}
}

// Validate проверяет согласованность значений.
// Отсутствие учетных данных Robokassa не ошибка: это видно через /payments/health.
func (c *Config) Validate() error {
	if c.Robokassa.MinAmount < 0 || c.Robokassa.MaxAmount < c.Robokassa.MinAmount {
		return fmt.Errorf("invalid robokassa amount bounds: min=%.2f max=%.2f", c.Robokassa.MinAmount, c.Robokassa.MaxAmount)
	}
	switch c.Events.Backend {
	case "none", "redis", "rabbitmq":
	default:
		return fmt.Errorf("unknown events backend %q", c.Events.Backend)
	}
	durations := []struct {
		name  string
		value time.Duration
	}{
		{"robokassa.process_timeout", c.Robokassa.ProcessTimeout},
		{"database.statement_timeout", c.Database.StatementTimeout},
		{"workers.stale_pending_after", c.Workers.StalePendingAfter},
		{"workers.stale_check_interval", c.Workers.StaleCheckInterval},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == EnvProduction
}

// TestMode - передавать ли IsTest=1 в Robokassa
func (c *Config) TestMode() bool {
	return c.Robokassa.IsTest || !c.IsProduction()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
