// Package redis implements the snapshot cache on Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xinguang/signaldesk/pkg/trading"
	"github.com/xinguang/signaldesk/pkg/trading/cache"
)

// Options configures the Redis cache
type Options struct {
	Addr     string
	Password string
	DB       int

	TTL      time.Duration
	MaxTicks int

	// Prefix namespaces keys, e.g. "signaldesk"
	Prefix string
}

// Cache implements cache.Cache with a string key per snapshot and a sorted
// set per symbol for tick history, scored by timestamp in milliseconds.
type Cache struct {
	client   *redis.Client
	ttl      time.Duration
	maxTicks int64
	prefix   string
}

var _ cache.Cache = (*Cache)(nil)

// New connects to Redis and verifies the connection
func New(ctx context.Context, opts Options) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewWithClient(client, opts), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *redis.Client, opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = cache.DefaultTTL
	}
	if opts.MaxTicks <= 0 {
		opts.MaxTicks = cache.DefaultMaxTicks
	}
	if opts.Prefix == "" {
		opts.Prefix = "signaldesk"
	}
	return &Cache{
		client:   client,
		ttl:      opts.TTL,
		maxTicks: int64(opts.MaxTicks),
		prefix:   opts.Prefix,
	}
}

func (c *Cache) snapshotKey(symbol string) string {
	return fmt.Sprintf("%s:snapshot:%s", c.prefix, symbol)
}

func (c *Cache) ticksKey(symbol string) string {
	return fmt.Sprintf("%s:ticks:%s", c.prefix, symbol)
}

// GetSnapshot returns the cached snapshot or nil
func (c *Cache) GetSnapshot(ctx context.Context, symbol string) (*trading.Snapshot, error) {
	data, err := c.client.Get(ctx, c.snapshotKey(symbol)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var snap trading.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// SetSnapshot stores snap with the cache TTL
func (c *Cache) SetSnapshot(ctx context.Context, snap *trading.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.snapshotKey(snap.Symbol), data, c.ttl).Err()
}

// AppendTick adds tick to the symbol's sorted set and trims the oldest
// entries beyond the history bound. A tick with the same timestamp as a held
// one replaces it.
func (c *Cache) AppendTick(ctx context.Context, tick trading.Tick) error {
	data, err := json.Marshal(tick)
	if err != nil {
		return err
	}

	key := c.ticksKey(tick.Symbol)
	score := float64(tick.Timestamp.UnixMilli())
	bound := strconv.FormatInt(tick.Timestamp.UnixMilli(), 10)
	pipe := c.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, bound, bound)
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  score,
		Member: data,
	})
	pipe.ZRemRangeByRank(ctx, key, 0, -c.maxTicks-1)
	pipe.Expire(ctx, key, c.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// RecentTicks returns up to n of the latest ticks, oldest first
func (c *Cache) RecentTicks(ctx context.Context, symbol string, n int) ([]trading.Tick, error) {
	start := int64(0)
	if n > 0 {
		start = -int64(n)
	}

	values, err := c.client.ZRange(ctx, c.ticksKey(symbol), start, -1).Result()
	if err != nil {
		return nil, err
	}

	ticks := make([]trading.Tick, 0, len(values))
	for _, value := range values {
		var tick trading.Tick
		if err := json.Unmarshal([]byte(value), &tick); err != nil {
			continue
		}
		ticks = append(ticks, tick)
	}
	return ticks, nil
}

// Close closes the client
func (c *Cache) Close() error {
	return c.client.Close()
}
