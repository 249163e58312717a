package cli

import (
	"errors"
	"fmt"
	"strconv"

	"salon_backend/database"
	"salon_backend/internal/services"
	"salon_backend/internal/workers"

	"github.com/spf13/cobra"
)

var errNotConfigured = errors.New("robokassa is not configured")

func newCheckConfigCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Проверить учетные данные Robokassa",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			status := services.NewPaymentService(cfg.Robokassa, cfg.TestMode(), nil, nil).CheckConfiguration()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "configured: %t\n", status.Configured)
			fmt.Fprintf(out, "test_mode:  %t\n", status.TestMode)
			fmt.Fprintf(out, "merchant:   %s\n", cfg.Robokassa.MerchantLogin)
			if !status.Configured {
				return errNotConfigured
			}
			return nil
		},
	}
}

func newMarkFailedCmd(load loadFunc, open openFunc) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "mark-failed <invoiceId>",
		Short: "Закрыть pending-платеж статусом failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(load, open, func(rt *runtime) error {
				payment, err := rt.svc.MarkPaymentFailed(cmd.Context(), args[0], reason)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "payment %s is now %s\n", payment.InvoiceID, payment.Status)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "причина закрытия (сохраняется в error_message)")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func newStatsCmd(load loadFunc, open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <salonId>",
		Short: "Статистика платежей салона",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			salonID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || salonID <= 0 {
				return fmt.Errorf("invalid salon id %q", args[0])
			}

			return withRuntime(load, open, func(rt *runtime) error {
				stats, err := rt.svc.GetSalonStats(cmd.Context(), salonID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "success: %d\n", stats.SuccessCount)
				fmt.Fprintf(out, "pending: %d\n", stats.PendingCount)
				fmt.Fprintf(out, "failed:  %d\n", stats.FailedCount)
				fmt.Fprintf(out, "total:   %s\n", stats.TotalAmount.StringFixed(2))
				return nil
			})
		},
	}
}

func newStaleCmd(load loadFunc, open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "stale",
		Short: "Однократно найти зависшие pending-платежи",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(load, open, func(rt *runtime) error {
				count, err := workers.NewStalePaymentWorker(rt.repo, nil, rt.cfg.Workers).RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "stale pending payments: %d\n", count)
				return nil
			})
		},
	}
}

func newMigrateCmd(load loadFunc, open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Применить миграции схемы",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(load, open, func(rt *runtime) error {
				if rt.db == nil {
					return errors.New("migrate requires a database connection")
				}
				if err := database.AutoMigrate(rt.db); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}
}
