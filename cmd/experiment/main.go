// Command experiment runs the configured retrieval pipelines over the query
// set, evaluates them against the relevance judgments and prints the
// comparison table.
//
// Usage:
//
//	experiment run [--pipeline bm25 --pipeline bm25_rm3] [--per-query] [--baseline bm25]
//	experiment search "black bear attacks" --pipeline bm25_rm3
//	experiment summary
//	experiment cache invalidate [pipeline]
//	experiment runs [--limit 10]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "experiment: %v\n", err)
		stop()
		os.Exit(apperrors.ExitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	cfg := config.Default()

	cmd := &cobra.Command{
		Use:           "experiment",
		Short:         "Evaluate retrieval pipelines against relevance judgments",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Setup(loaded.Logging.Level, loaded.Logging.Format)
			*cfg = *loaded
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "configs/development.yaml", "path to config file")

	cmd.AddCommand(
		newRunCmd(cfg),
		newSearchCmd(cfg),
		newSummaryCmd(cfg),
		newCacheCmd(cfg),
		newRunsCmd(cfg),
	)
	return cmd
}
