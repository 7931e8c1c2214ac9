package provider

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xinguang/signaldesk/pkg/trading"
)

// MockProvider is a random-walk data provider for demos and tests
type MockProvider struct {
	mu         sync.Mutex
	rng        *rand.Rand
	basePrice  map[string]float64
	interval   time.Duration
	volatility float64
	now        func() time.Time
	logger     *zap.Logger
}

// MockOptions configures a MockProvider
type MockOptions struct {
	Seed       int64
	Interval   time.Duration
	Volatility float64 // max fractional move per tick, e.g. 0.02
	Logger     *zap.Logger
}

// NewMockProvider creates a new mock data provider
func NewMockProvider(opts MockOptions) *MockProvider {
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.Volatility <= 0 {
		opts.Volatility = 0.02
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &MockProvider{
		rng:        rand.New(rand.NewSource(opts.Seed)),
		basePrice:  make(map[string]float64),
		interval:   opts.Interval,
		volatility: opts.Volatility,
		now:        time.Now,
		logger:     opts.Logger,
	}
}

// SetPrice pins the next base price for symbol
func (m *MockProvider) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.basePrice[symbol] = price
}

// next advances symbol's random walk. Callers hold m.mu.
func (m *MockProvider) next(symbol string, ts time.Time) trading.Tick {
	// Initialize base price if not exists
	if _, exists := m.basePrice[symbol]; !exists {
		m.basePrice[symbol] = 100.0 + m.rng.Float64()*900.0 // random price between 100-1000
	}

	basePrice := m.basePrice[symbol]
	change := (m.rng.Float64() - 0.5) * basePrice * m.volatility
	price := basePrice + change

	tick := trading.Tick{
		Symbol:    symbol,
		Price:     price,
		High:      price * (1 + m.rng.Float64()*0.005),
		Low:       price * (1 - m.rng.Float64()*0.005),
		Volume:    float64(m.rng.Intn(1000000) + 100000),
		Timestamp: ts,
	}

	m.basePrice[symbol] = price
	return tick
}

// Latest implements Provider
func (m *MockProvider) Latest(ctx context.Context, symbols []string) ([]trading.Tick, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	result := make([]trading.Tick, 0, len(symbols))
	for _, symbol := range symbols {
		result = append(result, m.next(symbol, now))
	}
	return result, nil
}

// History implements Provider with a synthetic series ending now
func (m *MockProvider) History(ctx context.Context, symbol string, interval Interval, limit int) ([]trading.Tick, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	step := interval.Duration()
	start := m.now().Add(-time.Duration(limit) * step)
	result := make([]trading.Tick, 0, limit)
	for i := 0; i < limit; i++ {
		result = append(result, m.next(symbol, start.Add(time.Duration(i+1)*step)))
	}
	return result, nil
}

// Quote implements Provider
func (m *MockProvider) Quote(ctx context.Context, symbol string) (*Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, seen := m.basePrice[symbol]
	prev := m.basePrice[symbol]
	tick := m.next(symbol, m.now())
	if !seen {
		prev = tick.Price
	}

	q := &Quote{
		Symbol:    symbol,
		Price:     tick.Price,
		Open:      prev,
		High:      tick.High,
		Low:       tick.Low,
		PrevClose: prev,
		Volume:    tick.Volume,
		Timestamp: tick.Timestamp,
		Change:    tick.Price - prev,
	}
	if prev != 0 {
		q.ChangePercent = q.Change / prev * 100
	}
	return q, nil
}

// Subscribe implements Provider
func (m *MockProvider) Subscribe(ctx context.Context, symbols []string, callback func(trading.Tick)) error {
	Poll(ctx, m, symbols, m.interval, m.logger, callback)
	return nil
}

// Name implements Provider
func (m *MockProvider) Name() string {
	return "mock"
}

// Close implements Provider
func (m *MockProvider) Close() error {
	return nil
}
