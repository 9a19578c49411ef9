package external

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/biologic-formulary-engine/internal/domain"
	"github.com/biologic-formulary-engine/internal/ranking"
)

// CacheClient wraps Redis with caching for reasoning-service responses.
// Rankings for the same candidate set and clinical profile are stable for
// the cache window, so a hit skips a rate-limited remote call.
type CacheClient struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// NewCacheClient creates a cache client and verifies connectivity.
func NewCacheClient(config domain.CacheConfig) (*CacheClient, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = config.PoolSize
	opts.PoolTimeout = config.PoolTimeout
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &CacheClient{
		redis:      client,
		defaultTTL: config.DefaultTTL,
	}, nil
}

// cachedRanking wraps a cached reasoning response with its expiry.
type cachedRanking struct {
	Rankings  []ranking.BackendRanking `json:"rankings"`
	CachedAt  time.Time                `json:"cached_at"`
	ExpiresAt time.Time                `json:"expires_at"`
}

// GetRanking retrieves a cached ranking for the candidate set and profile.
func (c *CacheClient) GetRanking(ctx context.Context, candidates []domain.FormularyDrug, profile domain.ClinicalProfile) ([]ranking.BackendRanking, bool, error) {
	key := rankingKey(candidates, profile)

	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get ranking cache: %w", err)
	}

	var cached cachedRanking
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}
	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	return cached.Rankings, true, nil
}

// SetRanking caches a reasoning response. A zero ttl uses the default.
func (c *CacheClient) SetRanking(ctx context.Context, candidates []domain.FormularyDrug, profile domain.ClinicalProfile, rankings []ranking.BackendRanking, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	cached := cachedRanking{
		Rankings:  rankings,
		CachedAt:  time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}

	jsonData, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal ranking cache data: %w", err)
	}

	return c.redis.Set(ctx, rankingKey(candidates, profile), jsonData, ttl).Err()
}

// rankingKey derives a stable cache key from the candidate names and the
// profile fields that influence the ranking.
func rankingKey(candidates []domain.FormularyDrug, profile domain.ClinicalProfile) string {
	h := sha256.New()
	for _, drug := range candidates {
		fmt.Fprintf(h, "%s|%s|%d;", drug.DrugName, drug.GenericName, drug.Tier)
	}
	fmt.Fprintf(h, "%s|%t|%s|%d|%d",
		profile.Diagnosis, profile.HasPsoriaticArthritis, profile.CurrentDrug,
		profile.DLQIScore, profile.MonthsStable)
	for _, ci := range profile.Contraindications {
		fmt.Fprintf(h, "|%s", ci.Type)
	}
	return fmt.Sprintf("ranking:%x", h.Sum(nil))
}

// Close closes the Redis connection.
func (c *CacheClient) Close() error {
	return c.redis.Close()
}
