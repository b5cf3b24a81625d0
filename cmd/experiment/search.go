package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/external"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/pipeline"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/metrics"
)

func newSearchCmd(cfg *config.Config) *cobra.Command {
	var (
		name  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "search <query text>",
		Short: "Run one ad hoc query through a pipeline and print the ranking",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if strings.TrimSpace(text) == "" {
				return apperrors.New(apperrors.ErrInvalidParameter, "query text is empty")
			}
			selected, err := selectPipelines(cfg.Experiment.Pipelines, []string{name})
			if err != nil {
				return err
			}
			m := metrics.Default()
			indexes, err := indexer.NewStore(cfg.Index, m)
			if err != nil {
				return err
			}
			collab, err := external.FromConfig(cfg.External, m)
			if err != nil {
				return err
			}
			p, err := pipeline.NewBuilder(indexes, collab, cfg, m).Build(cmd.Context(), selected[0])
			if err != nil {
				return err
			}

			ranking, q, err := p.Run(cmd.Context(), query.New("adhoc", text))
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "pipeline %s: %s\n", p.Name(), p.Describe())
			if q.IsExpanded() {
				fmt.Fprintf(w, "expanded by %s: %s\n", q.ExpandedBy, q.Effective())
			}
			ranking = ranking.Cutoff(limit)
			rows := make([][]string, 0, len(ranking))
			for i, r := range ranking {
				rows = append(rows, []string{strconv.Itoa(i + 1), r.Docno, strconv.FormatFloat(r.Score, 'f', 4, 64)})
			}
			fmt.Fprintln(w, plainTable([]string{"rank", "docno", "score"}, rows))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "pipeline", "", "configured pipeline to run")
	cmd.Flags().IntVar(&limit, "limit", 10, "number of results to print")
	_ = cmd.MarkFlagRequired("pipeline")
	return cmd
}
