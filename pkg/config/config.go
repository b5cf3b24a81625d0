// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Index, Scoring, Expansion, Fusion, Experiment, External, Cache,
// Redis, Postgres, Kafka, Logging and Metrics).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
)

// Config is the top-level application configuration.
type Config struct {
	Index      IndexConfig      `yaml:"index"`
	Scoring    ScoringConfig    `yaml:"scoring"`
	Expansion  ExpansionConfig  `yaml:"expansion"`
	Fusion     FusionConfig     `yaml:"fusion"`
	Experiment ExperimentConfig `yaml:"experiment"`
	External   ExternalConfig   `yaml:"external"`
	Cache      CacheConfig      `yaml:"cache"`
	Redis      RedisConfig      `yaml:"redis"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// IndexConfig controls where indexes live and how text is analysed.
type IndexConfig struct {
	DataDir    string   `yaml:"dataDir"`
	Analyzer   string   `yaml:"analyzer"`
	Shards     int      `yaml:"shards"`
	Fields     []string `yaml:"fields"`
	MetaFields []string `yaml:"metaFields"`
}

// ScoringConfig holds the default BM25/BM25F tuning constants.
type ScoringConfig struct {
	K1 float64 `yaml:"k1"`
	B  float64 `yaml:"b"`
}

// ExpansionConfig holds pseudo-relevance feedback defaults shared by RM3
// and Bo1, plus the keyword budget of thesaurus expansion.
type ExpansionConfig struct {
	FeedbackDocs  int     `yaml:"feedbackDocs"`
	FeedbackTerms int     `yaml:"feedbackTerms"`
	Lambda        float64 `yaml:"lambda"`
	MinDocuments  int     `yaml:"minDocuments"`
	KeywordTopN   int     `yaml:"keywordTopN"`
	Field         string  `yaml:"field"`
}

// FusionConfig controls dense fusion defaults.
type FusionConfig struct {
	Mode      string  `yaml:"mode"`
	TopK      int     `yaml:"topK"`
	Normalize string  `yaml:"normalize"`
	Alpha     float64 `yaml:"alpha"`
	BatchSize int     `yaml:"batchSize"`
}

// ExperimentConfig describes the query set, judgments and the pipelines to
// compare.
type ExperimentConfig struct {
	CollectionPath string           `yaml:"collectionPath"`
	QueriesPath    string           `yaml:"queriesPath"`
	QrelsPath      string           `yaml:"qrelsPath"`
	SampleSize     int              `yaml:"sampleSize"`
	Seed           int64            `yaml:"seed"`
	Workers        int              `yaml:"workers"`
	ResultLimit    int              `yaml:"resultLimit"`
	ExpandQueries  bool             `yaml:"expandQueries"`
	Metrics        []string         `yaml:"metrics"`
	Pipelines      []PipelineConfig `yaml:"pipelines"`
}

// PipelineConfig is one named pipeline: an index and its ordered stages.
type PipelineConfig struct {
	Name   string        `yaml:"name"`
	Index  string        `yaml:"index"`
	Stages []StageConfig `yaml:"stages"`
}

// StageConfig enumerates every option a pipeline stage recognises. Unset
// pointer fields fall back to the Scoring/Expansion/Fusion defaults.
type StageConfig struct {
	Type          string             `yaml:"type"`
	Model         string             `yaml:"model,omitempty"`
	FieldWeights  map[string]float64 `yaml:"fieldWeights,omitempty"`
	K1            *float64           `yaml:"k1,omitempty"`
	B             *float64           `yaml:"b,omitempty"`
	TopK          int                `yaml:"topK,omitempty"`
	FeedbackDocs  int                `yaml:"feedbackDocs,omitempty"`
	FeedbackTerms int                `yaml:"feedbackTerms,omitempty"`
	Lambda        *float64           `yaml:"lambda,omitempty"`
	Field         string             `yaml:"field,omitempty"`
	Mode          string             `yaml:"mode,omitempty"`
	Alpha         *float64           `yaml:"alpha,omitempty"`
	Normalize     string             `yaml:"normalize,omitempty"`
}

// ExternalConfig configures the keyword extractor, thesaurus and embedding
// model collaborators and the guard rails around calling them.
type ExternalConfig struct {
	Extractor     string        `yaml:"extractor"`
	ThesaurusPath string        `yaml:"thesaurusPath"`
	Embedder      string        `yaml:"embedder"`
	OllamaHost    string        `yaml:"ollamaHost"`
	OllamaModel   string        `yaml:"ollamaModel"`
	Timeout       time.Duration `yaml:"timeout"`
	RateLimit     float64       `yaml:"rateLimit"`
	Burst         int           `yaml:"burst"`
	MaxAttempts   int           `yaml:"maxAttempts"`
	CacheSize     int           `yaml:"cacheSize"`
}

// CacheConfig selects the persisted run-result cache backend.
type CacheConfig struct {
	Backend string        `yaml:"backend"`
	Path    string        `yaml:"path"`
	TTL     time.Duration `yaml:"ttl"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	RunResults string `yaml:"runResults"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, apperrors.Wrap(apperrors.ErrNotFound, err, "config file %s", path)
			}
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with the defaults used for local experiments.
func Default() *Config {
	return &Config{
		Index: IndexConfig{
			DataDir:    "indexes",
			Analyzer:   "english",
			Shards:     1,
			Fields:     []string{"text"},
			MetaFields: []string{"text"},
		},
		Scoring: ScoringConfig{
			K1: 1.2,
			B:  0.75,
		},
		Expansion: ExpansionConfig{
			FeedbackDocs:  3,
			FeedbackTerms: 10,
			Lambda:        0.6,
			MinDocuments:  2,
			KeywordTopN:   3,
			Field:         "text",
		},
		Fusion: FusionConfig{
			Mode:      "rerank_topk",
			TopK:      100,
			Normalize: "minmax",
			Alpha:     0.5,
			BatchSize: 32,
		},
		Experiment: ExperimentConfig{
			CollectionPath: "document_collection.json",
			QueriesPath:    "test_queries.json",
			QrelsPath:      "test_qrels.json",
			SampleSize:     1000,
			Seed:           42,
			Workers:        4,
			ResultLimit:    1000,
			Metrics:        []string{"map", "ndcg_cut_10", "P_10", "recall_100", "recip_rank"},
		},
		External: ExternalConfig{
			Extractor:   "rake",
			Embedder:    "static",
			OllamaHost:  "http://localhost:11434",
			OllamaModel: "nomic-embed-text",
			Timeout:     30 * time.Second,
			RateLimit:   50,
			Burst:       10,
			MaxAttempts: 3,
			CacheSize:   4096,
		},
		Cache: CacheConfig{
			Backend: "none",
			Path:    "run_cache.db",
			TTL:     0,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			DB:       0,
			PoolSize: 10,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "retrieval_experiments",
			User:            "experiments",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "experiment-reports",
			Topics: KafkaTopics{
				RunResults: "experiment-run-results",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
	}
}

// Validate checks the global defaults. Pipeline stages are validated when
// the pipeline is built.
func (c *Config) Validate() error {
	if c.Scoring.K1 < 0 || c.Scoring.K1 > 10 {
		return apperrors.Newf(apperrors.ErrInvalidParameter, "scoring.k1 must be in [0,10], got %v", c.Scoring.K1)
	}
	if c.Scoring.B < 0 || c.Scoring.B > 1 {
		return apperrors.Newf(apperrors.ErrInvalidParameter, "scoring.b must be in [0,1], got %v", c.Scoring.B)
	}
	if c.Expansion.Lambda < 0 || c.Expansion.Lambda > 1 {
		return apperrors.Newf(apperrors.ErrInvalidParameter, "expansion.lambda must be in [0,1], got %v", c.Expansion.Lambda)
	}
	if c.Expansion.FeedbackDocs <= 0 || c.Expansion.FeedbackTerms <= 0 {
		return apperrors.New(apperrors.ErrInvalidParameter, "expansion feedback docs and terms must be positive")
	}
	if c.Index.Shards <= 0 {
		return apperrors.Newf(apperrors.ErrInvalidParameter, "index.shards must be positive, got %d", c.Index.Shards)
	}
	if len(c.Index.Fields) == 0 {
		return apperrors.New(apperrors.ErrInvalidParameter, "index.fields must not be empty")
	}
	if c.Experiment.Workers <= 0 {
		return apperrors.Newf(apperrors.ErrInvalidParameter, "experiment.workers must be positive, got %d", c.Experiment.Workers)
	}
	switch c.Cache.Backend {
	case "none", "redis", "sqlite":
	default:
		return apperrors.Newf(apperrors.ErrInvalidParameter, "unknown cache backend %q", c.Cache.Backend)
	}
	names := make(map[string]struct{}, len(c.Experiment.Pipelines))
	for _, p := range c.Experiment.Pipelines {
		if p.Name == "" {
			return apperrors.New(apperrors.ErrInvalidParameter, "pipeline name is required")
		}
		if _, dup := names[p.Name]; dup {
			return apperrors.Newf(apperrors.ErrInvalidParameter, "duplicate pipeline name %q", p.Name)
		}
		names[p.Name] = struct{}{}
	}
	return nil
}

// applyEnvOverrides reads RXP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RXP_INDEX_DATA_DIR"); v != "" {
		cfg.Index.DataDir = v
	}
	if v := os.Getenv("RXP_INDEX_ANALYZER"); v != "" {
		cfg.Index.Analyzer = v
	}
	if v := os.Getenv("RXP_INDEX_SHARDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.Shards = n
		}
	}
	if v := os.Getenv("RXP_EXPERIMENT_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Experiment.Workers = n
		}
	}
	if v := os.Getenv("RXP_EXPERIMENT_SAMPLE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Experiment.SampleSize = n
		}
	}
	if v := os.Getenv("RXP_EXPERIMENT_EXPAND_QUERIES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Experiment.ExpandQueries = b
		}
	}
	if v := os.Getenv("RXP_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("RXP_CACHE_PATH"); v != "" {
		cfg.Cache.Path = v
	}
	if v := os.Getenv("RXP_EXTERNAL_EMBEDDER"); v != "" {
		cfg.External.Embedder = v
	}
	if v := os.Getenv("RXP_EXTERNAL_OLLAMA_HOST"); v != "" {
		cfg.External.OllamaHost = v
	}
	if v := os.Getenv("RXP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("RXP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("RXP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("RXP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("RXP_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("RXP_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("RXP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("RXP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("RXP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RXP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
