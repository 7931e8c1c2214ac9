package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/xinguang/signaldesk/pkg/trading"
)

func TestKeys(t *testing.T) {
	c := NewWithClient(nil, Options{})
	if got := c.snapshotKey("SPY"); got != "signaldesk:snapshot:SPY" {
		t.Errorf("unexpected snapshot key %q", got)
	}
	if got := c.ticksKey("SPY"); got != "signaldesk:ticks:SPY" {
		t.Errorf("unexpected ticks key %q", got)
	}
}

// Set SIGNALDESK_TEST_REDIS (e.g. localhost:6379) to run against Redis
func TestRedisCache(t *testing.T) {
	addr := os.Getenv("SIGNALDESK_TEST_REDIS")
	if addr == "" {
		t.Skip("SIGNALDESK_TEST_REDIS not set")
	}

	ctx := context.Background()
	c, err := New(ctx, Options{
		Addr:     addr,
		TTL:      time.Minute,
		MaxTicks: 3,
		Prefix:   fmt.Sprintf("signaldesk-test-%d", time.Now().UnixNano()),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	if snap, err := c.GetSnapshot(ctx, "SPY"); err != nil || snap != nil {
		t.Fatalf("expected empty cache, got %+v, %v", snap, err)
	}

	snap := &trading.Snapshot{Symbol: "SPY", Price: 101, Bands: &trading.Bands{Upper: 102, Middle: 100, Lower: 98}, VWAP: 100.5}
	if err := c.SetSnapshot(ctx, snap); err != nil {
		t.Fatal(err)
	}
	got, err := c.GetSnapshot(ctx, "SPY")
	if err != nil || got == nil || got.Bands == nil || got.Bands.Upper != 102 || got.VWAP != 100.5 {
		t.Fatalf("unexpected snapshot %+v, %v", got, err)
	}

	base := time.Now().Truncate(time.Second)
	for i := 1; i <= 5; i++ {
		tick := trading.Tick{Symbol: "SPY", Price: float64(i), Timestamp: base.Add(time.Duration(i) * time.Second)}
		if err := c.AppendTick(ctx, tick); err != nil {
			t.Fatal(err)
		}
	}

	ticks, err := c.RecentTicks(ctx, "SPY", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(ticks) != 3 || ticks[0].Price != 3 || ticks[2].Price != 5 {
		t.Errorf("expected last three ticks oldest first, got %+v", ticks)
	}

	// Same bar again with a revised price
	revised := trading.Tick{Symbol: "SPY", Price: 6, Timestamp: base.Add(5 * time.Second)}
	if err := c.AppendTick(ctx, revised); err != nil {
		t.Fatal(err)
	}
	ticks, _ = c.RecentTicks(ctx, "SPY", 0)
	if len(ticks) != 3 || ticks[2].Price != 6 {
		t.Errorf("expected revised bar to replace the last, got %+v", ticks)
	}
}
