package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/collection"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/experiment"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/experiment/collector"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/experiment/store"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/external"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/expansion"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/pipeline"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/postgres"
)

type runOptions struct {
	pipelines []string
	metrics   []string
	baseline  string
	perQuery  bool
	jsonOut   string
	sample    int
	expand    bool
}

func newRunCmd(cfg *config.Config) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run pipelines over the query set and print the evaluation",
		Long: `Build every configured pipeline (or those named with --pipeline), run
each over the sampled query set and evaluate the rankings. Queries without
judgments are excluded from the means and shown as NA. Interrupting the run
stops scheduling new queries and prints the partial report.

With --expand-queries every query is first rewritten with its keywords and
their synonyms (the original is kept as query_0), and the pipelines, feedback
stages included, run over the rewritten set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExperiment(cmd.Context(), cmd, cfg, opts)
		},
	}
	cmd.Flags().StringSliceVar(&opts.pipelines, "pipeline", nil, "pipelines to run (default: all configured)")
	cmd.Flags().StringSliceVar(&opts.metrics, "metric", nil, "metrics to compute (default: experiment.metrics)")
	cmd.Flags().StringVar(&opts.baseline, "baseline", "", "pipeline to count per-query improvements against")
	cmd.Flags().BoolVar(&opts.perQuery, "per-query", false, "print the per-query breakdown")
	cmd.Flags().StringVar(&opts.jsonOut, "json", "", "also write the report as JSON to this file")
	cmd.Flags().IntVar(&opts.sample, "sample", -1, "number of queries to sample (0 keeps all; default: experiment.sampleSize)")
	cmd.Flags().BoolVar(&opts.expand, "expand-queries", false, "thesaurus-expand the query set before running (default: experiment.expandQueries)")
	return cmd
}

func selectPipelines(all []config.PipelineConfig, names []string) ([]config.PipelineConfig, error) {
	if len(names) == 0 {
		if len(all) == 0 {
			return nil, apperrors.New(apperrors.ErrInvalidParameter, "no pipelines configured")
		}
		return all, nil
	}
	out := make([]config.PipelineConfig, 0, len(names))
	for _, name := range names {
		i := slices.IndexFunc(all, func(pc config.PipelineConfig) bool { return pc.Name == name })
		if i < 0 {
			return nil, apperrors.Newf(apperrors.ErrNotFound, "pipeline %q is not configured", name)
		}
		out = append(out, all[i])
	}
	return out, nil
}

func runExperiment(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts runOptions) error {
	m := metrics.Default()
	checker := health.NewChecker()
	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(m, checker, cfg.Metrics.Port)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(sctx)
		}()
	}

	selected, err := selectPipelines(cfg.Experiment.Pipelines, opts.pipelines)
	if err != nil {
		return err
	}
	metricNames := opts.metrics
	if len(metricNames) == 0 {
		metricNames = cfg.Experiment.Metrics
	}

	indexes, err := indexer.NewStore(cfg.Index, m)
	if err != nil {
		return err
	}
	checker.Register("index_store", health.Ping(false, func(context.Context) error {
		_, err := os.Stat(indexes.Dir())
		return err
	}))
	collab, err := external.FromConfig(cfg.External, m)
	if err != nil {
		return err
	}
	pipelines, err := pipeline.NewBuilder(indexes, collab, cfg, m).BuildAll(ctx, selected)
	if err != nil {
		return err
	}
	for _, p := range pipelines {
		slog.Info("pipeline ready", "name", p.Name(), "fingerprint", p.Fingerprint(), "stages", p.Describe())
	}

	queries, err := collection.LoadQueries(cfg.Experiment.QueriesPath)
	if err != nil {
		return err
	}
	qrels, err := collection.LoadQrels(cfg.Experiment.QrelsPath)
	if err != nil {
		return err
	}
	sample := cfg.Experiment.SampleSize
	if opts.sample >= 0 {
		sample = opts.sample
	}
	if sample > 0 {
		queries = collection.Sample(queries, sample, cfg.Experiment.Seed)
	}
	if opts.expand || cfg.Experiment.ExpandQueries {
		th, err := expansion.NewThesaurus(collab.Extractor, collab.Thesaurus, cfg.Expansion.KeywordTopN, cfg.External.CacheSize, m)
		if err != nil {
			return err
		}
		if queries, err = th.RewriteQueries(ctx, queries, cfg.Experiment.Workers); err != nil {
			return err
		}
	}

	runCache, err := cache.Open(ctx, cfg, m)
	if err != nil {
		return err
	}
	if runCache != nil {
		defer runCache.Close()
	}

	var sink experiment.Sink
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.RunResults)
		defer producer.Close()
		bc := collector.NewBatchCollector(producer, 100, time.Second)
		sinkCtx, stopSink := context.WithCancel(context.WithoutCancel(ctx))
		bc.Start(sinkCtx)
		defer func() {
			stopSink()
			bc.Close()
		}()
		sink = bc
	}

	runner, err := experiment.NewRunner(metricNames, experiment.Options{
		Workers:  cfg.Experiment.Workers,
		Cache:    runCache,
		Sink:     sink,
		Baseline: opts.baseline,
	})
	if err != nil {
		return err
	}

	report, runErr := runner.Run(ctx, pipelines, queries, qrels)
	if report == nil {
		return runErr
	}
	if err := experiment.Render(cmd.OutOrStdout(), report, opts.perQuery); err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}
	if opts.jsonOut != "" {
		if err := writeJSON(opts.jsonOut, report); err != nil {
			return err
		}
	}
	if cfg.Postgres.Enabled && !cfg.Kafka.Enabled {
		if err := saveReport(context.WithoutCancel(ctx), cfg, report); err != nil {
			return err
		}
	}
	if runCache != nil {
		hits, misses := runCache.Stats()
		slog.Info("run cache", "hits", hits, "misses", misses)
	}
	if runErr != nil && errors.Is(runErr, context.Canceled) {
		return apperrors.Wrap(apperrors.ErrInternal, runErr, "interrupted")
	}
	return runErr
}

func saveReport(ctx context.Context, cfg *config.Config, report *experiment.Report) error {
	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrExternalDependency, err, "report store")
	}
	defer db.Close()
	st := store.NewStore(db)
	if err := st.Migrate(ctx); err != nil {
		return err
	}
	return st.SaveReport(ctx, report)
}

func writeJSON(path string, report *experiment.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report %s: %w", path, err)
	}
	return nil
}
