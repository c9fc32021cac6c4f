// Package tagcache caches batch tag lookups. Tag data for semantic results
// is fetched separately because computing it inline is expensive for the
// service; caching the batches keeps repeat probes cheap.
package tagcache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/null-order/localbooru-sub000/internal/domain/booru"
)

const cacheKeyPrefix = "localbooru:tags:"

// TagSource is the uncached batch tag lookup.
type TagSource interface {
	ImageTags(ctx context.Context, ids []int) (map[int][]booru.Tag, error)
}

// store is the consumer interface for the cache backend.
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cache decorates a TagSource with per-id TTL caching.
type Cache struct {
	inner      TagSource
	store      store
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(
	inner TagSource,
	s store,
	ttl time.Duration,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *Cache {
	return &Cache{
		inner:      inner,
		store:      s,
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// ImageTags serves what it can from the cache and fetches the rest from the
// inner source in one batch.
func (c *Cache) ImageTags(ctx context.Context, ids []int) (map[int][]booru.Tag, error) {
	out := make(map[int][]booru.Tag, len(ids))
	var missing []int
	for _, id := range ids {
		if tags, ok := c.getFromCache(ctx, id); ok {
			c.incCache("hit")
			out[id] = tags
			continue
		}
		c.incCache("miss")
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := c.inner.ImageTags(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, tags := range fetched {
		out[id] = tags
		c.putToCache(ctx, id, tags)
	}
	return out, nil
}

func (c *Cache) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func cacheKey(id int) string {
	return cacheKeyPrefix + strconv.Itoa(id)
}

func (c *Cache) getFromCache(ctx context.Context, id int) ([]booru.Tag, bool) {
	data, err := c.store.Get(ctx, cacheKey(id))
	if err != nil {
		if !errors.Is(err, ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached tags", zap.Int("id", id), zap.Error(err))
		}
		return nil, false
	}
	var tags []booru.Tag
	if err := json.Unmarshal(data, &tags); err != nil {
		c.logger.Warn("Failed to parse cached tags", zap.Int("id", id), zap.Error(err))
		return nil, false
	}
	return tags, true
}

func (c *Cache) putToCache(ctx context.Context, id int, tags []booru.Tag) {
	data, err := json.Marshal(tags)
	if err != nil {
		return
	}
	if err := c.store.SetWithTTL(ctx, cacheKey(id), data, c.ttl); err != nil {
		c.logger.Warn("Failed to cache tags", zap.Int("id", id), zap.Error(err))
	}
}
