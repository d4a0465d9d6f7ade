package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	embeddingCachePrefix = "embeddingcache:"
	embeddingCacheTTL    = 7 * 24 * time.Hour
)

// Cache is a byte-value store with expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisCache stores embeddings in redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to addr and verifies the connection.
func NewRedisCache(ctx context.Context, addr string) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("could not connect to Redis: %w", err)
	}
	return &RedisCache{client: rdb}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// CachedEmbedder serves embeddings from a cache and only asks the wrapped
// embedder for misses. Cache failures degrade to uncached embedding.
type CachedEmbedder struct {
	inner Embedder
	cache Cache
	ttl   time.Duration
}

// NewCachedEmbedder wraps inner. A ttl of 0 uses seven days.
func NewCachedEmbedder(inner Embedder, cache Cache, ttl time.Duration) *CachedEmbedder {
	if ttl <= 0 {
		ttl = embeddingCacheTTL
	}
	return &CachedEmbedder{inner: inner, cache: cache, ttl: ttl}
}

func (e *CachedEmbedder) Model() string { return e.inner.Model() }

func (e *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(e.inner.Model() + "\x00" + text))
	return embeddingCachePrefix + hex.EncodeToString(sum[:])
}

func (e *CachedEmbedder) lookup(ctx context.Context, text string) ([]float32, bool) {
	data, ok, err := e.cache.Get(ctx, e.key(text))
	if err != nil {
		log.Printf("⚠️  Embedding cache GET error: %v", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	vec, err := DecodeVector(data)
	if err != nil {
		return nil, false
	}
	return vec, true
}

func (e *CachedEmbedder) store(ctx context.Context, text string, vec []float32) {
	if err := e.cache.Set(ctx, e.key(text), encodeVector(vec), e.ttl); err != nil {
		log.Printf("⚠️  Embedding cache SET error: %v", err)
	}
}

func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := e.lookup(ctx, text); ok {
		return vec, nil
	}
	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.store(ctx, text, vec)
	return vec, nil
}

func (e *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var (
		missTexts []string
		missIdx   []int
	)
	for i, text := range texts {
		if vec, ok := e.lookup(ctx, text); ok {
			out[i] = vec
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := e.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d inputs", len(vectors), len(missTexts))
	}
	for j, vec := range vectors {
		out[missIdx[j]] = vec
		e.store(ctx, missTexts[j], vec)
	}
	return out, nil
}
