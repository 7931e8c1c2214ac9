// Package cache keeps the latest indicator snapshot and a short tick history
// per symbol, so a restarted engine can resume detection without waiting for
// a full indicator window.
package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xinguang/signaldesk/pkg/trading"
)

// DefaultTTL is how long a snapshot stays valid
const DefaultTTL = 10 * time.Minute

// DefaultMaxTicks bounds the per-symbol tick history
const DefaultMaxTicks = 500

// Cache stores snapshots and tick history by symbol
type Cache interface {
	// GetSnapshot returns the cached snapshot, or nil if absent or expired
	GetSnapshot(ctx context.Context, symbol string) (*trading.Snapshot, error)

	SetSnapshot(ctx context.Context, snap *trading.Snapshot) error

	// AppendTick adds a tick to the symbol's history
	AppendTick(ctx context.Context, tick trading.Tick) error

	// RecentTicks returns up to n of the latest ticks, oldest first
	RecentTicks(ctx context.Context, symbol string, n int) ([]trading.Tick, error)

	Close() error
}

// Memory is an in-process Cache with TTL expiry
type Memory struct {
	mu        sync.RWMutex
	ttl       time.Duration
	maxTicks  int
	snapshots map[string]*trading.Snapshot
	expiry    map[string]time.Time
	ticks     map[string][]trading.Tick
	now       func() time.Time
}

// NewMemory creates a memory cache
func NewMemory(ttl time.Duration, maxTicks int) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxTicks <= 0 {
		maxTicks = DefaultMaxTicks
	}
	return &Memory{
		ttl:       ttl,
		maxTicks:  maxTicks,
		snapshots: make(map[string]*trading.Snapshot),
		expiry:    make(map[string]time.Time),
		ticks:     make(map[string][]trading.Tick),
		now:       time.Now,
	}
}

// GetSnapshot returns a copy of the cached snapshot
func (c *Memory) GetSnapshot(_ context.Context, symbol string) (*trading.Snapshot, error) {
	c.mu.RLock()
	snap, ok := c.snapshots[symbol]
	expiry := c.expiry[symbol]
	c.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	if c.now().After(expiry) {
		c.mu.Lock()
		delete(c.snapshots, symbol)
		delete(c.expiry, symbol)
		c.mu.Unlock()
		return nil, nil
	}

	cp := *snap
	if snap.Bands != nil {
		b := *snap.Bands
		cp.Bands = &b
	}
	return &cp, nil
}

// SetSnapshot stores a copy of snap with the cache TTL
func (c *Memory) SetSnapshot(_ context.Context, snap *trading.Snapshot) error {
	cp := *snap
	if snap.Bands != nil {
		b := *snap.Bands
		cp.Bands = &b
	}

	c.mu.Lock()
	c.snapshots[snap.Symbol] = &cp
	c.expiry[snap.Symbol] = c.now().Add(c.ttl)
	c.mu.Unlock()
	return nil
}

// AppendTick keeps ticks ordered by timestamp and trims to maxTicks. A tick
// with the same timestamp as a held one replaces it.
func (c *Memory) AppendTick(_ context.Context, tick trading.Tick) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, held := range c.ticks[tick.Symbol] {
		if held.Timestamp.Equal(tick.Timestamp) {
			c.ticks[tick.Symbol][i] = tick
			return nil
		}
	}

	ticks := append(c.ticks[tick.Symbol], tick)
	if n := len(ticks); n > 1 && ticks[n-1].Timestamp.Before(ticks[n-2].Timestamp) {
		sort.SliceStable(ticks, func(i, j int) bool { return ticks[i].Timestamp.Before(ticks[j].Timestamp) })
	}
	if len(ticks) > c.maxTicks {
		ticks = ticks[len(ticks)-c.maxTicks:]
	}
	c.ticks[tick.Symbol] = ticks
	return nil
}

// RecentTicks returns up to n ticks, oldest first
func (c *Memory) RecentTicks(_ context.Context, symbol string, n int) ([]trading.Tick, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ticks := c.ticks[symbol]
	if n <= 0 || n > len(ticks) {
		n = len(ticks)
	}
	out := make([]trading.Tick, n)
	copy(out, ticks[len(ticks)-n:])
	return out, nil
}

// Cleanup removes expired snapshots
func (c *Memory) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for symbol, expiry := range c.expiry {
		if now.After(expiry) {
			delete(c.snapshots, symbol)
			delete(c.expiry, symbol)
		}
	}
}

// Close is a no-op
func (c *Memory) Close() error {
	return nil
}
