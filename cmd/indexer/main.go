// Command indexer builds, lists and drops the on-disk index variants the
// experiments read, and the dense graphs dense_retrieve stages search.
//
// Usage:
//
//	indexer build basic --variant basic [--config configs/development.yaml]
//	indexer build two_fields --variant two_fields
//	indexer dense basic [--field text]
//	indexer list
//	indexer drop keywords
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/collection"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/external"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/expansion"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/fusion"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/metrics"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "indexer: %v\n", err)
		stop()
		os.Exit(apperrors.ExitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	cfg := config.Default()

	cmd := &cobra.Command{
		Use:           "indexer",
		Short:         "Manage experiment indexes",
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

	cmd.AddCommand(newBuildCmd(cfg), newDenseCmd(cfg), newListCmd(cfg), newDropCmd(cfg))
	return cmd
}

func newBuildCmd(cfg *config.Config) *cobra.Command {
	var (
		variant        string
		collectionPath string
		workers        int
		shards         int
	)
	cmd := &cobra.Command{
		Use:   "build <name>",
		Short: "Build a new index from the document collection",
		Long: `Build a named index from the document collection. The variant selects
the layout: basic indexes the text, keywords replaces the text with its
keyword and synonym terms, two_fields adds those terms as a separate field.
An existing index is never overwritten; drop it first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if collectionPath == "" {
				collectionPath = cfg.Experiment.CollectionPath
			}
			if workers <= 0 {
				workers = cfg.Experiment.Workers
			}
			return runBuild(cmd.Context(), cfg, args[0], variant, collectionPath, workers, shards)
		},
	}
	cmd.Flags().StringVar(&variant, "variant", string(collection.Basic), "index variant: basic, keywords or two_fields")
	cmd.Flags().StringVar(&collectionPath, "collection", "", "document collection JSON (defaults to experiment.collectionPath)")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent keyword extraction calls")
	cmd.Flags().IntVar(&shards, "shards", 0, "parallel shard builders (defaults to index.shards)")
	return cmd
}

func runBuild(ctx context.Context, cfg *config.Config, name, variantName, collectionPath string, workers, shards int) error {
	v, err := collection.ParseVariant(variantName)
	if err != nil {
		return err
	}
	m := metrics.Default()
	store, err := indexer.NewStore(cfg.Index, m)
	if err != nil {
		return err
	}
	if store.Exists(name) {
		return apperrors.Newf(apperrors.ErrDuplicateIndex, "index already exists: %s", name)
	}

	docs, err := collection.LoadDocuments(collectionPath)
	if err != nil {
		return err
	}
	slog.Info("collection loaded", "path", collectionPath, "docs", len(docs))

	var exp collection.TermExpander
	if v != collection.Basic {
		collab, err := external.FromConfig(cfg.External, m)
		if err != nil {
			return err
		}
		th, err := expansion.NewThesaurus(collab.Extractor, collab.Thesaurus, cfg.Expansion.KeywordTopN, cfg.External.CacheSize, m)
		if err != nil {
			return err
		}
		exp = th
	}
	docs, err = collection.Prepare(ctx, docs, v, exp, workers)
	if err != nil {
		return err
	}

	layout := v.Layout()
	ix, err := store.Build(ctx, name, docs, indexer.BuildOptions{
		Fields:     layout.Fields,
		MetaFields: layout.MetaFields,
		Shards:     shards,
	})
	if err != nil {
		return err
	}
	fmt.Printf("built index %s (%s): %d documents, fields %v\n", name, v, ix.DocCount(), ix.Fields())
	return nil
}

func newDenseCmd(cfg *config.Config) *cobra.Command {
	var field string
	cmd := &cobra.Command{
		Use:   "dense <name>",
		Short: "Embed an index's stored text into an HNSW graph",
		Long: `Embed the stored field of every document in a built index with the
configured embedding model and save the HNSW graph next to the index
segment. dense_retrieve stages load this graph. An existing graph is never
overwritten; drop and rebuild the index to change it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDense(cmd.Context(), cfg, args[0], field)
		},
	}
	cmd.Flags().StringVar(&field, "field", fusion.DefaultField, "stored field to embed")
	return cmd
}

func runDense(ctx context.Context, cfg *config.Config, name, field string) error {
	m := metrics.Default()
	store, err := indexer.NewStore(cfg.Index, m)
	if err != nil {
		return err
	}
	file := fusion.DenseFile(field)
	if store.HasArtifact(name, file) {
		return apperrors.Newf(apperrors.ErrDuplicateIndex, "dense graph already exists: %s/%s", name, file)
	}
	ix, err := store.Open(name)
	if err != nil {
		return err
	}
	collab, err := external.FromConfig(cfg.External, m)
	if err != nil {
		return err
	}
	d, err := fusion.BuildDenseIndex(ctx, ix, collab.Embedder, field, cfg.Fusion.BatchSize)
	if err != nil {
		return err
	}
	if err := store.WriteArtifact(name, file, d.Save); err != nil {
		return err
	}
	meta := d.Meta()
	fmt.Printf("built dense graph %s/%s: %d documents, model %s (%d dims)\n", name, file, meta.Docs, meta.Model, meta.Dims)
	return nil
}

func newListCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List indexes in the data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := indexer.NewStore(cfg.Index, metrics.Default())
			if err != nil {
				return err
			}
			infos, err := store.List()
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(infos))
			for _, info := range infos {
				rows = append(rows, []string{
					info.Name,
					strconv.Itoa(info.Docs),
					strconv.Itoa(info.Fields),
					info.CreatedAt.Format("2006-01-02 15:04:05"),
					info.Path,
				})
			}
			t := table.New().
				Border(lipgloss.MarkdownBorder()).BorderTop(false).BorderBottom(false).
				StyleFunc(func(_, _ int) lipgloss.Style { return lipgloss.NewStyle().Padding(0, 1) }).
				Headers("name", "docs", "fields", "created", "path").
				Rows(rows...)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), t.String())
			return err
		},
	}
}

func newDropCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "drop <name>",
		Short: "Delete an index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := indexer.NewStore(cfg.Index, metrics.Default())
			if err != nil {
				return err
			}
			if err := store.Drop(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dropped index %s\n", args[0])
			return nil
		},
	}
}
