// Package querycache caches evaluator.Result pages in Redis, keyed on the
// collection, the normalized query, the requested page, and the newest
// published batch version — so a new commit invalidates affected entries
// implicitly, without a broadcast step, the same way a new segment
// generation ages out a stale key under the teacher's cache.
package querycache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lattice-io/termdex/internal/query/evaluator"
	"github.com/lattice-io/termdex/pkg/config"
	pkgredis "github.com/lattice-io/termdex/pkg/redis"
	"github.com/lattice-io/termdex/pkg/resilience"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "query:"

// redisCallTimeout bounds a single Redis round trip. A cache that's slow to
// answer is worse than no cache, so callers fall back to computing directly
// rather than wait.
const redisCallTimeout = 200 * time.Millisecond

// QueryCache caches paged evaluator results behind a singleflight group so
// concurrent identical queries share one evaluation.
type QueryCache struct {
	client *pkgredis.Client
	cfg    config.RedisConfig
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
	cb     *resilience.CircuitBreaker
}

func New(client *pkgredis.Client, cfg config.RedisConfig) *QueryCache {
	return &QueryCache{
		client: client,
		cfg:    cfg,
		logger: slog.Default().With("component", "query-cache"),
		cb:     resilience.NewCircuitBreaker("querycache:redis", resilience.CircuitBreakerConfig{}),
	}
}

// Get returns the cached result for this exact (collection, query, page,
// batch version) tuple, if present.
func (c *QueryCache) Get(ctx context.Context, collectionID uint64, versionID int64, query string, skip, take int) (*evaluator.Result, bool) {
	key := c.buildKey(collectionID, versionID, query, skip, take)
	data, missed, err := c.getRaw(ctx, key)
	if err != nil {
		c.logger.Error("cache get failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	if missed {
		c.misses.Add(1)
		return nil, false
	}
	var result evaluator.Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return &result, true
}

// getRaw runs the Redis GET behind the circuit breaker and a per-call
// timeout. A cache miss (redis.Nil) is a normal outcome, not a breaker
// failure, so it's reported through missed rather than err.
func (c *QueryCache) getRaw(ctx context.Context, key string) (data string, missed bool, err error) {
	cbErr := c.cb.Execute(func() error {
		return resilience.WithTimeout(ctx, redisCallTimeout, "querycache.get", func(ctx context.Context) error {
			v, gerr := c.client.Get(ctx, key)
			if gerr != nil {
				if pkgredis.IsNilError(gerr) {
					missed = true
					return nil
				}
				return gerr
			}
			data = v
			return nil
		})
	})
	return data, missed, cbErr
}

// Set stores result under this tuple's key with the configured TTL.
func (c *QueryCache) Set(ctx context.Context, collectionID uint64, versionID int64, query string, skip, take int, result *evaluator.Result) {
	key := c.buildKey(collectionID, versionID, query, skip, take)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.cb.Execute(func() error {
		return resilience.WithTimeout(ctx, redisCallTimeout, "querycache.set", func(ctx context.Context) error {
			return c.client.Set(ctx, key, data, c.cfg.CacheTTL)
		})
	})
	if err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result if present, otherwise calls
// computeFn once per key even under concurrent callers and caches its
// result. The bool return reports whether the value came from cache.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	collectionID uint64,
	versionID int64,
	query string,
	skip, take int,
	computeFn func() (*evaluator.Result, error),
) (*evaluator.Result, bool, error) {
	if result, ok := c.Get(ctx, collectionID, versionID, query, skip, take); ok {
		return result, true, nil
	}
	key := c.buildKey(collectionID, versionID, query, skip, take)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if result, ok := c.Get(ctx, collectionID, versionID, query, skip, take); ok {
			return result, nil
		}
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, collectionID, versionID, query, skip, take, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*evaluator.Result), false, nil
}

// Invalidate drops every cached entry. Callers normally don't need this —
// the batch version embedded in every key already ages entries out on
// commit — but it's available for a forced flush.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	var deleted int64
	err := c.cb.Execute(func() error {
		return resilience.WithTimeout(ctx, redisCallTimeout, "querycache.invalidate", func(ctx context.Context) error {
			d, ferr := c.client.FlushByPattern(ctx, keyPrefix+"*")
			if ferr != nil {
				return ferr
			}
			deleted = d
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("invalidating query cache: %w", err)
	}
	c.logger.Info("query cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) buildKey(collectionID uint64, versionID int64, query string, skip, take int) string {
	raw := fmt.Sprintf("%d:%d:%s:%d:%d", collectionID, versionID, normalizeQuery(query), skip, take)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

// normalizeQuery sorts the query's statement lines: Fold's AND/OR/NOT
// composition is commutative across top-level statements, so two queries
// differing only in statement order are the same query for caching purposes.
func normalizeQuery(query string) string {
	lines := strings.Split(strings.ReplaceAll(query, "\r\n", "\n"), "\n")
	trimmed := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l != "" {
			trimmed = append(trimmed, l)
		}
	}
	sort.Strings(trimmed)
	return strings.Join(trimmed, "\n")
}
