package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/collection"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/experiment"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/experiment/store"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/postgres"
)

func plainTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.MarkdownBorder()).BorderTop(false).BorderBottom(false).
		StyleFunc(func(_, _ int) lipgloss.Style { return lipgloss.NewStyle().Padding(0, 1) }).
		Headers(headers...).
		Rows(rows...).
		String()
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n]) + "..."
}

func newSummaryCmd(cfg *config.Config) *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Summarise the document collection, queries and judgments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSummary(cmd.OutOrStdout(), cfg, top)
		},
	}
	cmd.Flags().IntVar(&top, "top", 5, "sample rows to show per table")
	return cmd
}

func runSummary(w io.Writer, cfg *config.Config, top int) error {
	docs, err := collection.LoadDocuments(cfg.Experiment.CollectionPath)
	if err != nil {
		return err
	}
	queries, err := collection.LoadQueries(cfg.Experiment.QueriesPath)
	if err != nil {
		return err
	}
	qrels, err := collection.LoadQrels(cfg.Experiment.QrelsPath)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Number of documents: %d\n", len(docs))
	rows := make([][]string, 0, top)
	for _, d := range docs[:min(top, len(docs))] {
		rows = append(rows, []string{d.Docno, clip(d.Fields["text"], 60)})
	}
	fmt.Fprintln(w, plainTable([]string{"docno", "text"}, rows))

	judged := 0
	for _, q := range queries {
		if qrels.Judged(q.QID) {
			judged++
		}
	}
	fmt.Fprintf(w, "Number of queries: %d (%d judged, query set %s)\n", len(queries), judged, collection.QuerySetID(queries))
	rows = rows[:0]
	for _, q := range queries[:min(top, len(queries))] {
		rows = append(rows, []string{q.QID, clip(q.Text, 60)})
	}
	fmt.Fprintln(w, plainTable([]string{"qid", "query"}, rows))

	fmt.Fprintf(w, "Number of relevance judgments: %d\n", qrels.Len())
	qids := make([]string, 0, len(qrels))
	for qid := range qrels {
		qids = append(qids, qid)
	}
	sort.Strings(qids)
	rows = rows[:0]
	for _, qid := range qids {
		if len(rows) >= top {
			break
		}
		docnos := make([]string, 0, len(qrels[qid]))
		for docno := range qrels[qid] {
			docnos = append(docnos, docno)
		}
		sort.Strings(docnos)
		for _, docno := range docnos {
			if len(rows) >= top {
				break
			}
			rows = append(rows, []string{qid, docno, strconv.Itoa(qrels[qid][docno])})
		}
	}
	fmt.Fprintln(w, plainTable([]string{"qid", "docno", "relevance"}, rows))
	return nil
}

func newCacheCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the run-result cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "invalidate [pipeline]",
		Short: "Drop cached results of one pipeline, or of all pipelines",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rc, err := cache.Open(cmd.Context(), cfg, metrics.Default())
			if err != nil {
				return err
			}
			if rc == nil {
				return apperrors.New(apperrors.ErrInvalidParameter, "run cache is disabled (cache.backend: none)")
			}
			defer rc.Close()
			pipeline := ""
			if len(args) == 1 {
				pipeline = args[0]
			}
			n, err := rc.Invalidate(cmd.Context(), pipeline)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d cached results\n", n)
			return nil
		},
	})
	return cmd
}

func newRunsCmd(cfg *config.Config) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored experiment runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cfg.Postgres.Enabled {
				return apperrors.New(apperrors.ErrInvalidParameter, "postgres is disabled (postgres.enabled: false)")
			}
			db, err := postgres.New(cmd.Context(), cfg.Postgres)
			if err != nil {
				return apperrors.Wrap(apperrors.ErrExternalDependency, err, "report store")
			}
			defer db.Close()
			runs, err := store.NewStore(db).ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, run := range runs {
				status := ""
				if run.Aborted {
					status = " (aborted)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "run %s%s started %s, query set %s\n",
					run.RunID, status, run.StartedAt.Format("2006-01-02 15:04:05"), run.QuerySet)
				r := &experiment.Report{Metrics: run.Metrics, Pipelines: run.Pipelines}
				fmt.Fprintln(cmd.OutOrStdout(), experiment.SummaryTable(r, experiment.StylesFor(cmd.OutOrStdout())))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of runs to show")
	return cmd
}
