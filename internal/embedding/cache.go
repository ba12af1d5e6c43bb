package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/rueidis"
	"go.uber.org/zap"

	"github.com/wearly-labs/stylefeed/internal/domain"
)

const (
	cacheKeyPrefix = "stylefeed:emb_cache:"
	cacheTTL       = 30 * 24 * time.Hour
)

// store is the consumer interface for the embedding cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cached is a caching decorator around an ImageEmbedder. Image URLs are
// stable across runs, so re-embedding the same image on every scrape pass
// would pay the inference cost for nothing. Cache failures degrade to a
// miss; they never fail the item.
type Cached struct {
	inner      domain.ImageEmbedder
	store      store
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// NewCached creates a caching decorator.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func NewCached(
	inner domain.ImageEmbedder,
	s store,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *Cached {
	return &Cached{inner: inner, store: s, cacheTotal: cacheTotal, logger: logger}
}

// Embed returns a cached vector or calls the inner embedder.
func (c *Cached) Embed(ctx context.Context, imageURL string) (domain.Vector, error) {
	key := cacheKey(imageURL)

	if vec, ok := c.getFromCache(ctx, key); ok {
		c.incCache("hit")
		return vec, nil
	}
	c.incCache("miss")

	vec, err := c.inner.Embed(ctx, imageURL)
	if err != nil {
		return nil, err
	}

	c.putToCache(ctx, key, vec)
	return vec, nil
}

func (c *Cached) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func cacheKey(imageURL string) string {
	h := sha256.Sum256([]byte(imageURL))
	return cacheKeyPrefix + hex.EncodeToString(h[:])
}

func (c *Cached) getFromCache(ctx context.Context, key string) (domain.Vector, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !rueidis.IsRedisNil(err) {
			c.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}

	vec, err := bytesToVector(data)
	if err != nil {
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

func (c *Cached) putToCache(ctx context.Context, key string, vec domain.Vector) {
	if err := c.store.Set(ctx, key, vectorToCacheBytes(vec), cacheTTL); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}

func vectorToCacheBytes(v domain.Vector) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) (domain.Vector, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d (not multiple of 4)", len(data))
	}
	vec := make(domain.Vector, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}

// KVStore adapts a rueidis client to the cache store interface.
type KVStore struct {
	client rueidis.Client
}

// NewKVStore connects to the cache backend.
func NewKVStore(addr, password string) (*KVStore, error) {
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{addr},
		Password:    password,
	})
	if err != nil {
		return nil, fmt.Errorf("cache connect %s: %w", addr, err)
	}
	return &KVStore{client: client}, nil
}

// Get returns the value for key; rueidis nil error means not cached.
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	return s.client.Do(ctx, s.client.B().Get().Key(key).Build()).AsBytes()
}

// Set stores value under key with the given TTL.
func (s *KVStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	cmd := s.client.B().Set().Key(key).Value(rueidis.BinaryString(value)).Ex(ttl).Build()
	return s.client.Do(ctx, cmd).Error()
}

// Close releases the cache connection.
func (s *KVStore) Close() { s.client.Close() }
