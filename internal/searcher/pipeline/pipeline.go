// Package pipeline composes retrieval, expansion, cutoff and dense fusion
// stages into typed pipelines. Composition is checked when the pipeline is
// built; running one only reads its indexes.
package pipeline

import (
	"context"
	"encoding/hex"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/tracing"
)

// Pipeline is an immutable, type-checked sequence of stages that turns a
// query into a ranking.
type Pipeline struct {
	name        string
	stages      []Stage
	fingerprint string
	metrics     *metrics.Metrics
}

// Compose checks that each stage's input kind matches the previous stage's
// output, that the first stage reads a query and the last one produces a
// ranking, and that at most one stage expands the query. m may be nil.
func Compose(name string, m *metrics.Metrics, stages ...Stage) (*Pipeline, error) {
	if name == "" {
		return nil, apperrors.New(apperrors.ErrInvalidParameter, "pipeline needs a name")
	}
	if len(stages) == 0 {
		return nil, apperrors.Newf(apperrors.ErrPipelineType, "pipeline %s has no stages", name)
	}
	if stages[0].Input() != KindQuery {
		return nil, apperrors.Newf(apperrors.ErrPipelineType,
			"pipeline %s: first stage %s reads a %s, want a query", name, stages[0].Name(), stages[0].Input())
	}
	for i := 1; i < len(stages); i++ {
		prev, cur := stages[i-1], stages[i]
		if prev.Output() != cur.Input() {
			return nil, apperrors.Newf(apperrors.ErrPipelineType,
				"pipeline %s: stage %d %s produces a %s but stage %d %s reads a %s",
				name, i, prev.Name(), prev.Output(), i+1, cur.Name(), cur.Input())
		}
	}
	expandedAt := -1
	for i, s := range stages {
		if _, ok := s.(*Expand); !ok {
			continue
		}
		if expandedAt >= 0 {
			return nil, apperrors.Newf(apperrors.ErrPipelineType,
				"pipeline %s: stage %d %s would expand a query already expanded by stage %d %s",
				name, i+1, s.Name(), expandedAt+1, stages[expandedAt].Name())
		}
		expandedAt = i
	}
	if last := stages[len(stages)-1]; last.Output() != KindRanking {
		return nil, apperrors.Newf(apperrors.ErrPipelineType,
			"pipeline %s: last stage %s produces a %s, want a ranking", name, last.Name(), last.Output())
	}
	return &Pipeline{
		name:        name,
		stages:      append([]Stage(nil), stages...),
		fingerprint: fingerprint(stages),
		metrics:     m,
	}, nil
}

// Name is the pipeline's name.
func (p *Pipeline) Name() string { return p.name }

// Fingerprint identifies the pipeline's configuration: models, indexes,
// tuning constants and field weights. Renaming a pipeline keeps it.
func (p *Pipeline) Fingerprint() string { return p.fingerprint }

// Describe renders the stages as "a >> b >> c".
func (p *Pipeline) Describe() string {
	parts := make([]string, len(p.stages))
	for i, s := range p.stages {
		parts[i] = s.Describe()
	}
	return strings.Join(parts, " >> ")
}

func fingerprint(stages []Stage) string {
	h := blake3.New()
	for _, s := range stages {
		h.Write([]byte(s.Describe()))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// Run executes the pipeline for q. The returned query carries whatever
// expansion the pipeline applied; q itself is not modified.
func (p *Pipeline) Run(ctx context.Context, q query.Query) (ranker.Ranking, query.Query, error) {
	log := logger.FromContext(ctx).With("pipeline", p.name, "qid", q.QID)
	ctx, span := tracing.Start(ctx, "pipeline "+p.name, logger.RunIDFromContext(ctx))
	span.Set("qid", q.QID)
	start := time.Now()

	item := Item{Query: q}
	var err error
	for _, s := range p.stages {
		if err = ctx.Err(); err != nil {
			break
		}
		sctx, sspan := tracing.Start(ctx, s.Name(), "")
		item, err = s.Run(sctx, item)
		sspan.Set("results", len(item.Ranking))
		sspan.End()
		if err != nil {
			log.Warn("stage failed", "stage", s.Name(), "error", err)
			break
		}
	}
	span.End()

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case len(item.Ranking) == 0:
		outcome = "empty"
	}
	if p.metrics != nil {
		p.metrics.PipelineQueriesTotal.WithLabelValues(p.name, outcome).Inc()
		p.metrics.PipelineLatency.WithLabelValues(p.name).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, q, err
	}
	if item.Ranking == nil {
		item.Ranking = ranker.Ranking{}
	}
	return item.Ranking, item.Query, nil
}
