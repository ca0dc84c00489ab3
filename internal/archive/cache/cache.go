// Package cache provides an optional Redis-backed cache of search results.
// The server runs identically without it; every method is best-effort and
// degrades to the underlying index lookup on any cache failure.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jkatz326/ngram/pkg/config"
	pkgredis "github.com/jkatz326/ngram/pkg/redis"
)

const keyPrefix = "ngram:search:"

// SearchCache caches normalized word → document ids with a TTL. Concurrent
// lookups of the same word are collapsed into one index query.
type SearchCache struct {
	client *pkgredis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a SearchCache over an established Redis client.
func New(client *pkgredis.Client, cfg config.RedisConfig) *SearchCache {
	return &SearchCache{
		client: client,
		ttl:    cfg.CacheTTL,
		logger: slog.Default().With("component", "search-cache"),
	}
}

// GetOrCompute returns the cached ids for word, or runs compute, caches its
// result, and returns it. The second return reports whether the result came
// from the cache.
func (c *SearchCache) GetOrCompute(ctx context.Context, word string, compute func() []uint64) ([]uint64, bool) {
	if ids, ok := c.get(ctx, word); ok {
		return ids, true
	}
	key := buildKey(word)
	val, _, _ := c.group.Do(key, func() (interface{}, error) {
		if ids, ok := c.get(ctx, word); ok {
			return ids, nil
		}
		ids := compute()
		c.set(ctx, word, ids)
		return ids, nil
	})
	return val.([]uint64), false
}

func (c *SearchCache) get(ctx context.Context, word string) ([]uint64, bool) {
	key := buildKey(word)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var ids []uint64
	if err := json.Unmarshal([]byte(data), &ids); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return ids, true
}

func (c *SearchCache) set(ctx context.Context, word string, ids []uint64) {
	key := buildKey(word)
	data, err := json.Marshal(ids)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// InvalidateTerms drops the cached entries for the given normalized terms.
// Called after a publish so stale result lists expire early rather than
// waiting out their TTL.
func (c *SearchCache) InvalidateTerms(ctx context.Context, terms []string) {
	if len(terms) == 0 {
		return
	}
	keys := make([]string, 0, len(terms))
	for _, term := range terms {
		keys = append(keys, buildKey(term))
	}
	if err := c.client.Del(ctx, keys...); err != nil {
		c.logger.Error("cache invalidation failed", "terms", len(terms), "error", err)
	}
}

// Stats returns the cumulative hit and miss counts.
func (c *SearchCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func buildKey(word string) string {
	hash := sha256.Sum256([]byte(word))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
