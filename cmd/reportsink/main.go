// Command reportsink consumes experiment events from Kafka and stores run
// summaries and per-item results in PostgreSQL.
//
// Usage:
//
//	reportsink [--config configs/development.yaml]
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/experiment/store"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/postgres"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var configPath string
	cmd := &cobra.Command{
		Use:           "reportsink",
		Short:         "Store experiment events from Kafka in PostgreSQL",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "configs/development.yaml", "path to config file")

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "reportsink: %v\n", err)
		stop()
		os.Exit(apperrors.ExitCode(err))
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting report sink", "topic", cfg.Kafka.Topics.RunResults, "group", cfg.Kafka.ConsumerGroup)

	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrExternalDependency, err, "report store")
	}
	defer db.Close()

	st := store.NewStore(db)
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	checker := health.NewChecker()
	checker.Register("postgres", health.Ping(false, db.Ping))
	checker.Register("kafka", func(context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: "consumer active"}
	})
	slog.Info("health checks registered", "checks", checker.Names())
	shutdown := metrics.StartServer(metrics.Default(), checker, cfg.Metrics.Port)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			slog.Error("metrics server shutdown error", "error", err)
		}
	}()

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.RunResults, store.HandleEvent(st))
	defer consumer.Close()

	if err := consumer.Run(ctx); err != nil {
		return fmt.Errorf("consuming experiment events: %w", err)
	}
	slog.Info("report sink stopped")
	return nil
}
