package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/redis"
)

// Open builds the configured cache. The "none" backend returns nil.
func Open(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*RunCache, error) {
	switch cfg.Cache.Backend {
	case "", "none":
		return nil, nil
	case "redis":
		client, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrExternalDependency, err, "run cache")
		}
		return New(NewRedisBackend(client), cfg.Cache.TTL, m), nil
	case "sqlite":
		b, err := OpenSQLite(ctx, cfg.Cache.Path)
		if err != nil {
			return nil, err
		}
		return New(b, cfg.Cache.TTL, m), nil
	default:
		return nil, apperrors.Newf(apperrors.ErrInvalidParameter, "unknown cache backend %q", cfg.Cache.Backend)
	}
}

// RedisBackend stores entries in Redis with native TTLs.
type RedisBackend struct {
	client *pkgredis.Client
}

func NewRedisBackend(c *pkgredis.Client) *RedisBackend { return &RedisBackend{client: c} }

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return r.client.GetBytes(ctx, key)
}

func (r *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.SetBytes(ctx, key, value, max(ttl, 0))
}

func (r *RedisBackend) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	return r.client.DeletePrefix(ctx, prefix)
}

func (r *RedisBackend) Close() error { return r.client.Close() }

// SQLiteBackend stores entries in a single-file SQLite database, for runs
// without a Redis server.
type SQLiteBackend struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteBackend, error) {
	if path == "" {
		return nil, apperrors.New(apperrors.ErrInvalidParameter, "sqlite cache needs a path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	// One writer avoids SQLITE_BUSY under the runner's worker pool.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	stmts := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		`CREATE TABLE IF NOT EXISTS run_cache (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			expires_at INTEGER NOT NULL DEFAULT 0
		)`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			db.Close()
			return nil, fmt.Errorf("initialising cache database: %w", err)
		}
	}
	return &SQLiteBackend{db: db, now: time.Now}, nil
}

func (s *SQLiteBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value   []byte
		expires int64
	)
	err := s.db.QueryRowContext(ctx, "SELECT value, expires_at FROM run_cache WHERE key = ?", key).Scan(&value, &expires)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if expires != 0 && s.now().UnixNano() >= expires {
		_, _ = s.db.ExecContext(ctx, "DELETE FROM run_cache WHERE key = ?", key)
		return nil, false, nil
	}
	return value, true, nil
}

func (s *SQLiteBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expires int64
	if ttl > 0 {
		expires = s.now().Add(ttl).UnixNano()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO run_cache (key, value, expires_at) VALUES (?, ?, ?) "+
			"ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at",
		key, value, expires)
	return err
}

func (s *SQLiteBackend) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	escaped := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(prefix)
	res, err := s.db.ExecContext(ctx, `DELETE FROM run_cache WHERE key LIKE ? ESCAPE '\'`, escaped+"%")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteBackend) Close() error { return s.db.Close() }
