package pipeline

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/external"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/expansion"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/fusion"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/metrics"
)

// Stage type names accepted in pipeline configuration.
const (
	StageRetrieve      = "retrieve"
	StageThesaurus     = "thesaurus"
	StageRM3           = "rm3"
	StageBo1           = "bo1"
	StageCutoff        = "cutoff"
	StageDenseRerank   = "dense_rerank"
	StageDenseRetrieve = "dense_retrieve"
)

// IndexOpener resolves index names and the artifacts stored beside them.
// *indexer.Store satisfies it.
type IndexOpener interface {
	Open(name string) (*index.Index, error)
	OpenArtifact(name, file string) (io.ReadCloser, error)
}

// Builder turns PipelineConfigs into Pipelines. One Builder serves one run:
// the thesaurus expander and the dense graphs it loads are shared by every
// pipeline it builds.
type Builder struct {
	indexes IndexOpener
	collab  *external.Collaborators
	cfg     *config.Config
	metrics *metrics.Metrics

	mu          sync.Mutex
	thesaurus   *expansion.Thesaurus
	thesaurusID string
	dense       map[string]*fusion.DenseIndex
}

// NewBuilder returns a Builder. collab may be nil when no pipeline uses
// thesaurus expansion or dense stages; m may be nil.
func NewBuilder(indexes IndexOpener, collab *external.Collaborators, cfg *config.Config, m *metrics.Metrics) *Builder {
	return &Builder{
		indexes: indexes,
		collab:  collab,
		cfg:     cfg,
		metrics: m,
		dense:   make(map[string]*fusion.DenseIndex),
	}
}

// BuildAll builds every pipeline and fails on the first malformed one.
func (b *Builder) BuildAll(ctx context.Context, pcs []config.PipelineConfig) ([]*Pipeline, error) {
	out := make([]*Pipeline, 0, len(pcs))
	for _, pc := range pcs {
		p, err := b.Build(ctx, pc)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Build resolves pc's index and stages and composes them.
func (b *Builder) Build(ctx context.Context, pc config.PipelineConfig) (*Pipeline, error) {
	if pc.Index == "" {
		return nil, apperrors.Newf(apperrors.ErrInvalidParameter, "pipeline %s names no index", pc.Name)
	}
	ix, err := b.indexes.Open(pc.Index)
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", pc.Name, err)
	}
	stages := make([]Stage, 0, len(pc.Stages))
	for i, sc := range pc.Stages {
		s, err := b.stage(ctx, ix, sc)
		if err != nil {
			return nil, fmt.Errorf("pipeline %s stage %d (%s): %w", pc.Name, i+1, sc.Type, err)
		}
		stages = append(stages, s)
	}
	return Compose(pc.Name, b.metrics, stages...)
}

func (b *Builder) stage(ctx context.Context, ix *index.Index, sc config.StageConfig) (Stage, error) {
	switch strings.ToLower(sc.Type) {
	case StageRetrieve:
		return b.retrieve(ix, sc)
	case StageThesaurus:
		return b.thesaurusStage(sc)
	case StageRM3:
		rc := expansion.RM3Config{
			FeedbackDocs:  orInt(sc.FeedbackDocs, b.cfg.Expansion.FeedbackDocs),
			FeedbackTerms: orInt(sc.FeedbackTerms, b.cfg.Expansion.FeedbackTerms),
			Lambda:        orFloat(sc.Lambda, b.cfg.Expansion.Lambda),
			Field:         orString(sc.Field, b.cfg.Expansion.Field),
		}
		e, err := expansion.NewRM3(ix, rc, b.metrics)
		if err != nil {
			return nil, err
		}
		return NewExpand(e, fmt.Sprintf("index=%s,fb_docs=%d,fb_terms=%d,lambda=%g,field=%s",
			ix.Name(), rc.FeedbackDocs, rc.FeedbackTerms, rc.Lambda, rc.Field)), nil
	case StageBo1:
		bc := expansion.Bo1Config{
			FeedbackDocs:  orInt(sc.FeedbackDocs, b.cfg.Expansion.FeedbackDocs),
			FeedbackTerms: orInt(sc.FeedbackTerms, b.cfg.Expansion.FeedbackTerms),
			MinDocuments:  b.cfg.Expansion.MinDocuments,
			Field:         orString(sc.Field, b.cfg.Expansion.Field),
		}
		e, err := expansion.NewBo1(ix, bc, b.metrics)
		if err != nil {
			return nil, err
		}
		return NewExpand(e, fmt.Sprintf("index=%s,fb_docs=%d,fb_terms=%d,min_docs=%d,field=%s",
			ix.Name(), bc.FeedbackDocs, bc.FeedbackTerms, bc.MinDocuments, bc.Field)), nil
	case StageCutoff:
		if sc.TopK <= 0 {
			return nil, apperrors.Newf(apperrors.ErrInvalidParameter, "cutoff needs a positive topK, got %d", sc.TopK)
		}
		return NewCutoff(sc.TopK), nil
	case StageDenseRerank:
		return b.denseRerank(ix, sc)
	case StageDenseRetrieve:
		return b.denseRetrieve(ctx, ix, sc)
	default:
		return nil, apperrors.Newf(apperrors.ErrInvalidParameter, "unknown stage type %q", sc.Type)
	}
}

func (b *Builder) retrieve(ix *index.Index, sc config.StageConfig) (Stage, error) {
	model, err := ranker.ParseModel(sc.Model)
	if err != nil {
		return nil, err
	}
	p := ranker.Params{
		K1:           orFloat(sc.K1, b.cfg.Scoring.K1),
		B:            orFloat(sc.B, b.cfg.Scoring.B),
		FieldWeights: sc.FieldWeights,
	}
	s, err := ranker.New(ix, model, p)
	if err != nil {
		return nil, err
	}
	return NewRetrieve(s, p, orInt(sc.TopK, b.cfg.Experiment.ResultLimit))
}

func (b *Builder) thesaurusStage(sc config.StageConfig) (Stage, error) {
	if b.collab == nil {
		return nil, apperrors.New(apperrors.ErrInvalidParameter, "thesaurus expansion needs external collaborators")
	}
	topN := orInt(sc.TopK, b.cfg.Expansion.KeywordTopN)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.thesaurus == nil || sc.TopK > 0 {
		t, err := expansion.NewThesaurus(b.collab.Extractor, b.collab.Thesaurus, topN, b.cfg.External.CacheSize, b.metrics)
		if err != nil {
			return nil, err
		}
		if sc.TopK > 0 {
			return NewExpand(t, b.thesaurusParams(topN)), nil
		}
		b.thesaurus = t
	}
	return NewExpand(b.thesaurus, b.thesaurusParams(topN)), nil
}

// thesaurusParams is called with b.mu held.
func (b *Builder) thesaurusParams(topN int) string {
	if b.thesaurusID == "" {
		b.thesaurusID = thesaurusIdentity(b.cfg.External.ThesaurusPath)
	}
	return fmt.Sprintf("extractor=%s,top_n=%d,thesaurus=%s", b.collab.Extractor.Name(), topN, b.thesaurusID)
}

// thesaurusIdentity names the synonym data by content so that editing the
// file changes the fingerprint of every pipeline expanding with it.
func thesaurusIdentity(path string) string {
	if path == "" {
		return "none"
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return path
	}
	sum := blake3.Sum256(raw)
	return hex.EncodeToString(sum[:16])
}

func (b *Builder) fusionConfig(sc config.StageConfig) (fusion.Config, error) {
	mode, err := fusion.ParseMode(orString(sc.Mode, b.cfg.Fusion.Mode))
	if err != nil {
		return fusion.Config{}, err
	}
	norm, err := fusion.ParseNormalization(orString(sc.Normalize, b.cfg.Fusion.Normalize))
	if err != nil {
		return fusion.Config{}, err
	}
	return fusion.Config{
		Mode:      mode,
		TopK:      orInt(sc.TopK, b.cfg.Fusion.TopK),
		Normalize: norm,
		Alpha:     orFloat(sc.Alpha, b.cfg.Fusion.Alpha),
		BatchSize: b.cfg.Fusion.BatchSize,
		Field:     orString(sc.Field, fusion.DefaultField),
	}, nil
}

func (b *Builder) denseRerank(ix *index.Index, sc config.StageConfig) (Stage, error) {
	if b.collab == nil {
		return nil, apperrors.New(apperrors.ErrInvalidParameter, "dense fusion needs an embedding model")
	}
	fc, err := b.fusionConfig(sc)
	if err != nil {
		return nil, err
	}
	f, err := fusion.New(ix, b.collab.Embedder, fc)
	if err != nil {
		return nil, err
	}
	return NewDenseRerank(f, fmt.Sprintf("%s,model=%s,field=%s", fc, b.collab.Embedder.ModelName(), fc.Field)), nil
}

func (b *Builder) denseRetrieve(ctx context.Context, ix *index.Index, sc config.StageConfig) (Stage, error) {
	if b.collab == nil {
		return nil, apperrors.New(apperrors.ErrInvalidParameter, "dense retrieval needs an embedding model")
	}
	k := orInt(sc.TopK, b.cfg.Experiment.ResultLimit)
	if k <= 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidParameter, "dense retrieval needs a positive topK, got %d", k)
	}
	field := orString(sc.Field, fusion.DefaultField)
	key := ix.Name() + "\x00" + field
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.dense[key]
	if !ok {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var err error
		if d, err = b.loadDense(ix, field); err != nil {
			return nil, err
		}
		b.dense[key] = d
	}
	return NewDenseRetrieve(d, k, fmt.Sprintf("index=%s,model=%s,field=%s", ix.Name(), b.collab.Embedder.ModelName(), field)), nil
}

func (b *Builder) loadDense(ix *index.Index, field string) (*fusion.DenseIndex, error) {
	rc, err := b.indexes.OpenArtifact(ix.Name(), fusion.DenseFile(field))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Newf(apperrors.ErrNotFound,
				"no dense graph for %s field %q; run: indexer dense --field %s %s", ix.Name(), field, field, ix.Name())
		}
		return nil, err
	}
	defer rc.Close()
	return fusion.LoadDenseIndex(rc, ix, b.collab.Embedder, field)
}

func orInt(v, def int) int {
	if v != 0 {
		return v
	}
	return def
}

func orFloat(v *float64, def float64) float64 {
	if v != nil {
		return *v
	}
	return def
}

func orString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
