// Package indexer manages named indexes on disk. An index identity is a
// directory under the data dir; its existence is the only existence check,
// and Build never overwrites it.
package indexer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/metrics"
)

// BuildOptions override the configured index settings for one build.
type BuildOptions struct {
	Analyzer   string
	Fields     []string
	MetaFields []string
	Shards     int
}

// Info describes a persisted index.
type Info struct {
	Name      string
	Path      string
	Docs      int
	Fields    int
	CreatedAt time.Time
}

// Store builds, opens and drops indexes under one data directory. Opened
// indexes are cached and shared read-only.
type Store struct {
	dir     string
	cfg     config.IndexConfig
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu     sync.Mutex
	opened map[string]*index.Index
}

// NewStore creates the data directory if needed. m may be nil.
func NewStore(cfg config.IndexConfig, m *metrics.Metrics) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	return &Store{
		dir:     cfg.DataDir,
		cfg:     cfg,
		metrics: m,
		logger:  logger.WithComponent("index-store"),
		opened:  make(map[string]*index.Index),
	}, nil
}

// Dir is the data directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(name string) string { return filepath.Join(s.dir, name) }

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return apperrors.Newf(apperrors.ErrInvalidParameter, "invalid index name %q", name)
	}
	return nil
}

// Exists reports whether an index directory named name is present.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.path(name))
	return err == nil
}

// Build creates index name from docs. It fails with ErrDuplicateIndex when
// the identity already exists or another process is building it; the
// existing index is left untouched.
func (s *Store) Build(ctx context.Context, name string, docs []index.Document, opts BuildOptions) (*index.Index, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	opts = s.withDefaults(opts)
	lock := flock.New(filepath.Join(s.dir, "."+name+".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking index %s: %w", name, err)
	}
	if !locked {
		s.countBuild("duplicate")
		return nil, apperrors.Newf(apperrors.ErrDuplicateIndex, "index %s is being built by another process", name)
	}
	defer lock.Unlock()

	final := s.path(name)
	if s.Exists(name) {
		s.countBuild("duplicate")
		return nil, apperrors.Newf(apperrors.ErrDuplicateIndex, "index already exists: %s", final)
	}

	analyzer, err := tokenizer.New(opts.Analyzer)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	ix, err := shard.Build(ctx, shard.Plan{
		Name:       name,
		Analyzer:   analyzer,
		Fields:     opts.Fields,
		MetaFields: opts.MetaFields,
		Shards:     opts.Shards,
	}, docs)
	if err != nil {
		s.countBuild("error")
		return nil, fmt.Errorf("building index %s: %w", name, err)
	}

	staging, err := os.MkdirTemp(s.dir, "."+name+".staging-")
	if err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}
	defer os.RemoveAll(staging)
	size, err := segment.Write(staging, ix)
	if err != nil {
		s.countBuild("error")
		return nil, err
	}
	if err := os.Rename(staging, final); err != nil {
		s.countBuild("error")
		return nil, fmt.Errorf("publishing index %s: %w", name, err)
	}

	s.mu.Lock()
	s.opened[name] = ix
	s.mu.Unlock()

	s.countBuild("ok")
	if s.metrics != nil {
		s.metrics.IndexDocumentsTotal.WithLabelValues(name).Add(float64(ix.DocCount()))
	}
	s.logger.Info("index built",
		"index", name,
		"docs", ix.DocCount(),
		"fields", opts.Fields,
		"analyzer", analyzer.Name(),
		"shards", opts.Shards,
		"bytes", size,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return ix, nil
}

// Open loads index name, or returns the cached instance.
func (s *Store) Open(name string) (*index.Index, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ix, ok := s.opened[name]; ok {
		return ix, nil
	}
	if !s.Exists(name) {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "index does not exist: %s", s.path(name))
	}
	ix, h, err := segment.Read(s.path(name))
	if err != nil {
		return nil, fmt.Errorf("opening index %s: %w", name, err)
	}
	s.opened[name] = ix
	s.logger.Info("index loaded", "index", name, "docs", h.DocCount, "fields", h.FieldCount)
	return ix, nil
}

func (s *Store) artifactPath(name, file string) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	if err := validName(file); err != nil || file == segment.FileName {
		return "", apperrors.Newf(apperrors.ErrInvalidParameter, "invalid artifact name %q", file)
	}
	return filepath.Join(s.path(name), file), nil
}

// HasArtifact reports whether index name holds the derived file.
func (s *Store) HasArtifact(name, file string) bool {
	path, err := s.artifactPath(name, file)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// WriteArtifact stores a file derived from index name, such as a dense
// graph, next to its segment. Like Build it never overwrites: an existing
// artifact fails with ErrDuplicateIndex. A missing index is ErrNotFound.
func (s *Store) WriteArtifact(name, file string, write func(w io.Writer) error) error {
	path, err := s.artifactPath(name, file)
	if err != nil {
		return err
	}
	lock := flock.New(filepath.Join(s.dir, "."+name+".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("locking index %s: %w", name, err)
	}
	if !locked {
		return apperrors.Newf(apperrors.ErrDuplicateIndex, "index %s is being written by another process", name)
	}
	defer lock.Unlock()

	if !s.Exists(name) {
		return apperrors.Newf(apperrors.ErrNotFound, "index does not exist: %s", s.path(name))
	}
	if _, err := os.Stat(path); err == nil {
		return apperrors.Newf(apperrors.ErrDuplicateIndex, "artifact already exists: %s", path)
	}

	tmp, err := os.CreateTemp(s.path(name), "."+file+".tmp-")
	if err != nil {
		return fmt.Errorf("creating artifact %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())
	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("writing artifact %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing artifact %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("publishing artifact %s: %w", path, err)
	}
	s.logger.Info("artifact written", "index", name, "file", file)
	return nil
}

// OpenArtifact opens a derived file of index name for reading.
func (s *Store) OpenArtifact(name, file string) (io.ReadCloser, error) {
	path, err := s.artifactPath(name, file)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "artifact does not exist: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("opening artifact %s: %w", path, err)
	}
	return f, nil
}

// Drop removes index name from disk and from the cache.
func (s *Store) Drop(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	if !s.Exists(name) {
		return apperrors.Newf(apperrors.ErrNotFound, "index does not exist: %s", s.path(name))
	}
	s.mu.Lock()
	delete(s.opened, name)
	s.mu.Unlock()
	if err := os.RemoveAll(s.path(name)); err != nil {
		return fmt.Errorf("dropping index %s: %w", name, err)
	}
	s.logger.Info("index dropped", "index", name)
	return nil
}

// List describes every persisted index, sorted by name.
func (s *Store) List() ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading data directory: %w", err)
	}
	var out []Info
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		h, err := segment.ReadHeader(s.path(e.Name()))
		if err != nil {
			s.logger.Warn("skipping unreadable index", "index", e.Name(), "error", err)
			continue
		}
		out = append(out, Info{
			Name:      e.Name(),
			Path:      s.path(e.Name()),
			Docs:      int(h.DocCount),
			Fields:    int(h.FieldCount),
			CreatedAt: time.Unix(h.CreatedAt, 0),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) withDefaults(o BuildOptions) BuildOptions {
	if o.Analyzer == "" {
		o.Analyzer = s.cfg.Analyzer
	}
	if len(o.Fields) == 0 {
		o.Fields = s.cfg.Fields
	}
	if o.MetaFields == nil {
		o.MetaFields = s.cfg.MetaFields
	}
	if o.Shards <= 0 {
		o.Shards = s.cfg.Shards
	}
	return o
}

func (s *Store) countBuild(status string) {
	if s.metrics != nil {
		s.metrics.IndexBuildsTotal.WithLabelValues(status).Inc()
	}
}
