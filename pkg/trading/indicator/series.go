package indicator

import (
	"github.com/xinguang/signaldesk/pkg/trading"
)

// Series is an append-only, bounded window of ticks for one symbol.
// Once full, the oldest tick is overwritten. Not safe for concurrent use.
type Series struct {
	buf    []trading.Tick
	start  int
	length int
}

// NewSeries creates a series holding at most capacity ticks
func NewSeries(capacity int) *Series {
	if capacity <= 0 {
		capacity = 1
	}
	return &Series{buf: make([]trading.Tick, capacity)}
}

// Append adds a tick. Missing high/low default to the tick price so the
// typical price stays defined.
//
// A tick stamped the same as the last one replaces it, so a bar polled twice
// is counted once. Ticks older than the last one are dropped. Append reports
// whether the series changed; ticks without a timestamp are always appended.
func (s *Series) Append(t trading.Tick) bool {
	if t.High == 0 {
		t.High = t.Price
	}
	if t.Low == 0 {
		t.Low = t.Price
	}

	if last, ok := s.Last(); ok && !t.Timestamp.IsZero() && !last.Timestamp.IsZero() {
		switch {
		case t.Timestamp.Equal(last.Timestamp):
			s.buf[(s.start+s.length-1)%len(s.buf)] = t
			return true
		case t.Timestamp.Before(last.Timestamp):
			return false
		}
	}

	if s.length < len(s.buf) {
		s.buf[(s.start+s.length)%len(s.buf)] = t
		s.length++
		return true
	}
	s.buf[s.start] = t
	s.start = (s.start + 1) % len(s.buf)
	return true
}

// Len returns the number of ticks held
func (s *Series) Len() int { return s.length }

// Cap returns the window size
func (s *Series) Cap() int { return len(s.buf) }

// Last returns the most recent tick
func (s *Series) Last() (trading.Tick, bool) {
	if s.length == 0 {
		return trading.Tick{}, false
	}
	return s.at(s.length - 1), true
}

func (s *Series) at(i int) trading.Tick {
	return s.buf[(s.start+i)%len(s.buf)]
}

// Columns returns index-aligned close, volume, high and low slices, oldest first
func (s *Series) Columns() (prices, volumes, highs, lows []float64) {
	prices = make([]float64, s.length)
	volumes = make([]float64, s.length)
	highs = make([]float64, s.length)
	lows = make([]float64, s.length)
	for i := 0; i < s.length; i++ {
		t := s.at(i)
		prices[i] = t.Price
		volumes[i] = t.Volume
		highs[i] = t.High
		lows[i] = t.Low
	}
	return prices, volumes, highs, lows
}

// Prices returns the close prices, oldest first
func (s *Series) Prices() []float64 {
	prices, _, _, _ := s.Columns()
	return prices
}

// Compute returns Bollinger Bands and VWAP over the current window.
// Bands are nil when the window is shorter than period; vwap is 0 when
// vwapEnabled is false.
func (s *Series) Compute(period int, stdDev float64, vwapEnabled bool) (*trading.Bands, float64) {
	prices, volumes, highs, lows := s.Columns()
	bands := BollingerBands(prices, period, stdDev)
	if !vwapEnabled {
		return bands, 0
	}
	return bands, VWAP(prices, volumes, highs, lows)
}
