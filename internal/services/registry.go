package services

import (
	"salon_backend/internal/config"
	"salon_backend/internal/events"
	"salon_backend/internal/repositories"
)

// ServiceContainer содержит все сервисы приложения
type ServiceContainer struct {
	PaymentService PaymentService
	Publisher      events.Publisher
}

func NewServiceContainer(cfg *config.Config, paymentRepo repositories.PaymentRepository, publisher events.Publisher) *ServiceContainer {
	return &ServiceContainer{
		PaymentService: NewPaymentService(cfg.Robokassa, cfg.TestMode(), paymentRepo, publisher),
		Publisher:      publisher,
	}
}
