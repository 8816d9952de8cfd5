/**
 * Redis result cache
 *
 * Re-uploads of the same parcel photo are common (users retry when the
 * UI feels slow), and each scan costs an OCR pass plus a paid LLM call.
 * Results are cached by SHA-256 of the raw image bytes for the same
 * window the upload files themselves are retained. The cache is an
 * optimization only: any Redis failure is treated as a miss.
 */

package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/parcelscan/parcel-ocr-worker/internal/logging"
)

const keyPrefix = "parcelscan:result:"

// CachedResult is the serialized outcome of a successful scan.
type CachedResult struct {
	Data        json.RawMessage    `json:"data"`
	Timings     map[string]float64 `json:"timings"`
	TextPreview string             `json:"text_preview"`
}

// ResultCache caches successful scan results in Redis.
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewResultCache connects to Redis at redisURL and verifies the
// connection before returning.
func NewResultCache(redisURL string, ttl time.Duration) (*ResultCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &ResultCache{
		client: client,
		ttl:    ttl,
		logger: logging.NewLogger("ResultCache"),
	}, nil
}

// ImageKey derives the cache key for raw image bytes.
func ImageKey(imageData []byte) string {
	sum := sha256.Sum256(imageData)
	return hex.EncodeToString(sum[:])
}

// Get looks up a cached result. A miss or any Redis error returns nil.
func (c *ResultCache) Get(ctx context.Context, imageKey string) *CachedResult {
	raw, err := c.client.Get(ctx, keyPrefix+imageKey).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		c.logger.Warn("Cache lookup failed, treating as miss", "key", imageKey, "error", err)
		return nil
	}

	var result CachedResult
	if err := json.Unmarshal(raw, &result); err != nil {
		c.logger.Warn("Cached result corrupt, treating as miss", "key", imageKey, "error", err)
		return nil
	}
	return &result
}

// Set stores a successful result. Failures are logged and dropped.
func (c *ResultCache) Set(ctx context.Context, imageKey string, result *CachedResult) {
	raw, err := json.Marshal(result)
	if err != nil {
		c.logger.Warn("Failed to serialize result for cache", "key", imageKey, "error", err)
		return
	}

	if err := c.client.Set(ctx, keyPrefix+imageKey, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("Failed to store result in cache", "key", imageKey, "error", err)
	}
}

// Close closes the Redis connection.
func (c *ResultCache) Close() error {
	return c.client.Close()
}
