package external

import (
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/metrics"
)

// Collaborators bundles the guarded external dependencies of a run.
type Collaborators struct {
	Extractor KeywordExtractor
	Thesaurus Thesaurus
	Embedder  Embedder
}

// FromConfig builds the configured collaborators. A missing thesaurus path
// yields an empty thesaurus. m may be nil.
func FromConfig(cfg config.ExternalConfig, m *metrics.Metrics) (*Collaborators, error) {
	var embedder Embedder
	switch cfg.Embedder {
	case "", "static":
		embedder = NewStaticEmbedder(0)
	case "ollama":
		embedder = NewOllamaEmbedder(cfg.OllamaHost, cfg.OllamaModel, 0)
	default:
		return nil, apperrors.Newf(apperrors.ErrInvalidParameter, "unknown embedder %q", cfg.Embedder)
	}
	embedder = NewCachedEmbedder(GuardEmbedder(embedder, NewGuard("embedder", cfg, m)), cfg.CacheSize)

	var extractor KeywordExtractor
	switch cfg.Extractor {
	case "", "rake":
		r, err := NewRake()
		if err != nil {
			return nil, err
		}
		extractor = r
	case "embedding":
		x, err := NewEmbeddingExtractor(embedder)
		if err != nil {
			return nil, err
		}
		extractor = x
	default:
		return nil, apperrors.Newf(apperrors.ErrInvalidParameter, "unknown keyword extractor %q", cfg.Extractor)
	}

	thesaurus := NewMapThesaurus(nil)
	if cfg.ThesaurusPath != "" {
		t, err := LoadThesaurus(cfg.ThesaurusPath)
		if err != nil {
			return nil, err
		}
		thesaurus = t
	}

	return &Collaborators{
		Extractor: GuardExtractor(extractor, NewGuard("keyword_extractor", cfg, m)),
		Thesaurus: GuardThesaurus(thesaurus, NewGuard("thesaurus", cfg, m)),
		Embedder:  embedder,
	}, nil
}
