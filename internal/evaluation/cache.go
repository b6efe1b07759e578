package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/acadex/acadex-api/internal/observability"
)

const cacheKeyPrefix = "evalcache"

// cacheEnvelope is the stored shape of one cache entry. Entries are never
// mutated after creation; a hit returns the whole payload or nothing.
type cacheEnvelope struct {
	Fingerprint string          `json:"fingerprint"`
	Kind        string          `json:"kind"`
	CachedAt    time.Time       `json:"cached_at"`
	Result      json.RawMessage `json:"result"`
}

// CacheStats reports the current cache footprint.
type CacheStats struct {
	Entries    int   `json:"entries"`
	TotalBytes int64 `json:"total_bytes"`
}

// ResultCache is the durable fingerprint-to-result store backing the
// deterministic evaluation layer. Expiry is logical: entries older than the
// TTL are treated as absent even though the record may still exist.
type ResultCache struct {
	client  *redis.Client
	enabled bool
	ttl     time.Duration
	logger  zerolog.Logger
	now     func() time.Time
}

// NewResultCache builds the cache. When enabled is false both Get and Set
// become no-ops, so disabling caching can never serve stale reads.
func NewResultCache(client *redis.Client, enabled bool, ttl time.Duration, logger zerolog.Logger) *ResultCache {
	return &ResultCache{
		client:  client,
		enabled: enabled,
		ttl:     ttl,
		logger:  logger.With().Str("component", "result_cache").Logger(),
		now:     time.Now,
	}
}

func cacheKey(fingerprint, kind string) string {
	return fmt.Sprintf("%s:%s:%s", cacheKeyPrefix, kind, fingerprint)
}

// Get returns the cached payload for fingerprint+kind, or false on a miss.
// Expired and unreadable entries are both reported as misses.
func (c *ResultCache) Get(ctx context.Context, fingerprint, kind string) (json.RawMessage, bool) {
	if !c.enabled || c.client == nil {
		return nil, false
	}

	raw, err := c.client.Get(ctx, cacheKey(fingerprint, kind)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn().Err(err).Str("kind", kind).Msg("cache read failed")
		}
		observability.CacheOperations().WithLabelValues("get", "miss").Inc()
		return nil, false
	}

	var envelope cacheEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		c.logger.Warn().Err(err).Str("kind", kind).Msg("cache entry unreadable")
		return nil, false
	}

	if c.now().Sub(envelope.CachedAt) > c.ttl {
		c.logger.Debug().Str("kind", kind).Str("fingerprint", shortHash(fingerprint)).Msg("cache entry expired")
		observability.CacheOperations().WithLabelValues("get", "expired").Inc()
		return nil, false
	}

	c.logger.Debug().Str("kind", kind).Str("fingerprint", shortHash(fingerprint)).Msg("cache hit")
	observability.CacheOperations().WithLabelValues("get", "hit").Inc()
	return envelope.Result, true
}

// Set stores a freshly computed result. Writes are last-writer-wins: both
// writers racing to fill the same key carry identical content-addressed
// payloads. A failed write degrades to no cache benefit, never to an error.
func (c *ResultCache) Set(ctx context.Context, fingerprint, kind string, result interface{}) {
	if !c.enabled || c.client == nil {
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		c.logger.Warn().Err(err).Str("kind", kind).Msg("cache payload marshal failed")
		return
	}

	envelope, err := json.Marshal(cacheEnvelope{
		Fingerprint: fingerprint,
		Kind:        kind,
		CachedAt:    c.now(),
		Result:      payload,
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("kind", kind).Msg("cache envelope marshal failed")
		return
	}

	if err := c.client.Set(ctx, cacheKey(fingerprint, kind), envelope, 0).Err(); err != nil {
		c.logger.Warn().Err(err).Str("kind", kind).Msg("cache write failed")
		observability.CacheOperations().WithLabelValues("set", "error").Inc()
		return
	}
	observability.CacheOperations().WithLabelValues("set", "written").Inc()
}

// Clear removes every cached evaluation and returns the count removed.
func (c *ResultCache) Clear(ctx context.Context) (int, error) {
	if c.client == nil {
		return 0, nil
	}

	removed := 0
	iter := c.client.Scan(ctx, 0, cacheKeyPrefix+":*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			c.logger.Warn().Err(err).Str("key", iter.Val()).Msg("cache delete failed")
			continue
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("cache scan: %w", err)
	}

	return removed, nil
}

// Stats reports entry count and total stored bytes.
func (c *ResultCache) Stats(ctx context.Context) (CacheStats, error) {
	stats := CacheStats{}
	if c.client == nil {
		return stats, nil
	}

	iter := c.client.Scan(ctx, 0, cacheKeyPrefix+":*", 0).Iterator()
	for iter.Next(ctx) {
		stats.Entries++
		if size, err := c.client.StrLen(ctx, iter.Val()).Result(); err == nil {
			stats.TotalBytes += size
		}
	}
	if err := iter.Err(); err != nil {
		return stats, fmt.Errorf("cache scan: %w", err)
	}

	return stats, nil
}

func shortHash(fingerprint string) string {
	if len(fingerprint) > 8 {
		return fingerprint[:8]
	}
	return fingerprint
}
