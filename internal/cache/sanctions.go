package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/banking/kyc-risk-service/internal/config"
	"github.com/banking/kyc-risk-service/internal/domain"
)

const (
	entriesKey   = "sanctions:entries"
	updatedAtKey = "sanctions:updated_at"
)

// SanctionsCache keeps the prepared sanctions list in Redis so that replicas
// start from the same snapshot.
type SanctionsCache struct {
	client redis.UniversalClient
	prefix string
}

// NewSanctionsCache connects to Redis and verifies the connection.
func NewSanctionsCache(cfg *config.RedisConfig) (*SanctionsCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewSanctionsCacheWithClient(client, cfg.KeyPrefix), nil
}

// NewSanctionsCacheWithClient wraps an existing client.
func NewSanctionsCacheWithClient(client redis.UniversalClient, prefix string) *SanctionsCache {
	return &SanctionsCache{client: client, prefix: prefix}
}

// Entries returns the cached list. The boolean is false on a cache miss.
func (c *SanctionsCache) Entries(ctx context.Context) ([]domain.SanctionsEntry, bool, error) {
	data, err := c.client.Get(ctx, c.key(entriesKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read sanctions cache: %w", err)
	}

	entries, err := decodeEntries(data)
	if err != nil {
		return nil, false, err
	}
	return entries, true, nil
}

// StoreEntries replaces the cached list and its update timestamp atomically.
// A zero ttl keeps the keys until they are overwritten.
func (c *SanctionsCache) StoreEntries(ctx context.Context, entries []domain.SanctionsEntry, ttl time.Duration) error {
	data, err := encodeEntries(entries)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, c.key(entriesKey), data, ttl)
		pipe.Set(ctx, c.key(updatedAtKey), now, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("write sanctions cache: %w", err)
	}
	return nil
}

// LastUpdate returns when the list was last stored, or the zero time if never.
func (c *SanctionsCache) LastUpdate(ctx context.Context) (time.Time, error) {
	raw, err := c.client.Get(ctx, c.key(updatedAtKey)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, raw)
}

// Ping checks Redis connectivity.
func (c *SanctionsCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *SanctionsCache) Close() error {
	return c.client.Close()
}

func (c *SanctionsCache) key(name string) string {
	return c.prefix + name
}

func encodeEntries(entries []domain.SanctionsEntry) ([]byte, error) {
	if entries == nil {
		entries = []domain.SanctionsEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encode sanctions entries: %w", err)
	}
	return data, nil
}

func decodeEntries(data []byte) ([]domain.SanctionsEntry, error) {
	var entries []domain.SanctionsEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode sanctions entries: %w", err)
	}
	return entries, nil
}
