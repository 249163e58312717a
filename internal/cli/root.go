package cli

import (
	"fmt"
	"os"

	"salon_backend/database"
	"salon_backend/internal/config"
	"salon_backend/internal/events"
	"salon_backend/internal/logger"
	"salon_backend/internal/repositories"
	"salon_backend/internal/services"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// runtime - то, что нужно командам для работы с платежами
type runtime struct {
	cfg   *config.Config
	db    *gorm.DB
	repo  repositories.PaymentRepository
	svc   services.PaymentService
	close func()
}

type (
	loadFunc func() (*config.Config, error)
	openFunc func(cfg *config.Config) (*runtime, error)
)

// Execute runs the root command
func Execute(version string) error {
	rootCmd := newRootCmd(func() (*config.Config, error) { return config.Load("") }, openRuntime)
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func newRootCmd(load loadFunc, open openFunc) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "paymentctl",
		Short: "Операторские команды для платежей Robokassa",
		Long: `paymentctl работает с той же базой и конфигурацией, что и API.

Позволяет проверить настройки магазина, закрыть зависший платеж,
посмотреть статистику салона и применить миграции.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.InitWithWriter(config.EnvProduction, os.Stderr)
		},
	}

	rootCmd.AddCommand(newCheckConfigCmd(load))
	rootCmd.AddCommand(newMarkFailedCmd(load, open))
	rootCmd.AddCommand(newStatsCmd(load, open))
	rootCmd.AddCommand(newStaleCmd(load, open))
	rootCmd.AddCommand(newMigrateCmd(load, open))
	return rootCmd
}

func openRuntime(cfg *config.Config) (*runtime, error) {
	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}

	// Ручные операции не публикуют событий: подписчики ждут только callback-и
	repo := repositories.NewPaymentRepository(db, cfg.Database.StatementTimeout)
	return &runtime{
		cfg:  cfg,
		db:   db,
		repo: repo,
		svc:  services.NewPaymentService(cfg.Robokassa, cfg.TestMode(), repo, events.NopPublisher{}),
		close: func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		},
	}, nil
}

// withRuntime загружает конфиг, открывает БД и закрывает ее после fn
func withRuntime(load loadFunc, open openFunc, fn func(rt *runtime) error) error {
	cfg, err := load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	rt, err := open(cfg)
	if err != nil {
		return err
	}
	if rt.close != nil {
		defer rt.close()
	}
	return fn(rt)
}
