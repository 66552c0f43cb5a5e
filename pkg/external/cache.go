package external

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trial-match-server/internal/domain"
)

// CacheClient wraps Redis with response caching for external API payloads.
// Entries store their own expiry alongside the Redis TTL so a stale entry is
// never served even when Redis persistence resurrects it.
type CacheClient struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// NewCacheClient creates a new cache client
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

type cachedSearch struct {
	Data      []domain.TrialCandidate `json:"data"`
	CachedAt  time.Time               `json:"cached_at"`
	ExpiresAt time.Time               `json:"expires_at"`
}

type cachedTrial struct {
	Data      *domain.TrialCandidate `json:"data"`
	CachedAt  time.Time              `json:"cached_at"`
	ExpiresAt time.Time              `json:"expires_at"`
}

type cachedLiterature struct {
	Data      *domain.LiteratureResult `json:"data"`
	CachedAt  time.Time                `json:"cached_at"`
	ExpiresAt time.Time                `json:"expires_at"`
}

type cachedSafetyReport struct {
	Data      *domain.DrugSafetyReport `json:"data"`
	CachedAt  time.Time                `json:"cached_at"`
	ExpiresAt time.Time                `json:"expires_at"`
}

// GetSearch retrieves cached trial search results
func (c *CacheClient) GetSearch(ctx context.Context, params domain.SearchParams) ([]domain.TrialCandidate, bool, error) {
	key := searchKey(params)

	var cached cachedSearch
	found, err := c.get(ctx, key, &cached)
	if err != nil || !found {
		return nil, false, err
	}

	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	return cached.Data, true, nil
}

// SetSearch caches trial search results
func (c *CacheClient) SetSearch(ctx context.Context, params domain.SearchParams, trials []domain.TrialCandidate, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	cached := cachedSearch{
		Data:      trials,
		CachedAt:  time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}

	return c.set(ctx, searchKey(params), cached, ttl)
}

// GetTrial retrieves a cached trial detail record
func (c *CacheClient) GetTrial(ctx context.Context, nctID string) (*domain.TrialCandidate, bool, error) {
	key := trialKey(nctID)

	var cached cachedTrial
	found, err := c.get(ctx, key, &cached)
	if err != nil || !found {
		return nil, false, err
	}

	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	return cached.Data, true, nil
}

// SetTrial caches a trial detail record
func (c *CacheClient) SetTrial(ctx context.Context, trial *domain.TrialCandidate, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	cached := cachedTrial{
		Data:      trial,
		CachedAt:  time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}

	return c.set(ctx, trialKey(trial.NCTID), cached, ttl)
}

// GetLiterature retrieves a cached literature result
func (c *CacheClient) GetLiterature(ctx context.Context, query string) (*domain.LiteratureResult, bool, error) {
	key := literatureKey(query)

	var cached cachedLiterature
	found, err := c.get(ctx, key, &cached)
	if err != nil || !found {
		return nil, false, err
	}

	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	return cached.Data, true, nil
}

// SetLiterature caches a literature result
func (c *CacheClient) SetLiterature(ctx context.Context, query string, result *domain.LiteratureResult, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	cached := cachedLiterature{
		Data:      result,
		CachedAt:  time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}

	return c.set(ctx, literatureKey(query), cached, ttl)
}

// GetSafetyReport retrieves a cached drug safety report
func (c *CacheClient) GetSafetyReport(ctx context.Context, drugName string) (*domain.DrugSafetyReport, bool, error) {
	key := safetyKey(drugName)

	var cached cachedSafetyReport
	found, err := c.get(ctx, key, &cached)
	if err != nil || !found {
		return nil, false, err
	}

	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	return cached.Data, true, nil
}

// SetSafetyReport caches a drug safety report
func (c *CacheClient) SetSafetyReport(ctx context.Context, report *domain.DrugSafetyReport, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	cached := cachedSafetyReport{
		Data:      report,
		CachedAt:  time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}

	return c.set(ctx, safetyKey(report.DrugName), cached, ttl)
}

// get fetches and decodes one entry. Corrupted entries are evicted and
// treated as a miss.
func (c *CacheClient) get(ctx context.Context, key string, out interface{}) (bool, error) {
	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get cache entry %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(val), out); err != nil {
		c.redis.Del(ctx, key)
		return false, nil
	}

	return true, nil
}

func (c *CacheClient) set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry %s: %w", key, err)
	}

	return c.redis.Set(ctx, key, jsonData, ttl).Err()
}

// InvalidatePattern removes all cached data matching a pattern
func (c *CacheClient) InvalidatePattern(ctx context.Context, pattern string) error {
	keys, err := c.redis.Keys(ctx, pattern).Result()
	if err != nil {
		return fmt.Errorf("failed to get keys for pattern %s: %w", pattern, err)
	}

	if len(keys) == 0 {
		return nil
	}

	return c.redis.Del(ctx, keys...).Err()
}

// Ping checks if the Redis connection is alive
func (c *CacheClient) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *CacheClient) Close() error {
	return c.redis.Close()
}

func searchKey(params domain.SearchParams) string {
	age := ""
	if params.Age != nil {
		age = fmt.Sprintf("%d", *params.Age)
	}
	data := fmt.Sprintf("%s:%s:%d:%s:%d:%s:%s",
		params.Condition, params.Status, params.MaxResults,
		params.Location, params.Distance, age, params.Gender)

	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("trials:search:%x", hash[:8])
}

func trialKey(nctID string) string {
	return fmt.Sprintf("trials:detail:%s", strings.ToUpper(nctID))
}

func literatureKey(query string) string {
	hash := sha256.Sum256([]byte(strings.ToLower(query)))
	return fmt.Sprintf("literature:query:%x", hash[:8])
}

func safetyKey(drugName string) string {
	hash := sha256.Sum256([]byte(strings.ToLower(drugName)))
	return fmt.Sprintf("safety:drug:%x", hash[:8])
}
