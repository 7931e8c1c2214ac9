// Package indicator computes technical indicators over bounded price series.
//
// All functions are pure and safe to call concurrently for different symbols.
package indicator

import (
	"math"

	"github.com/xinguang/signaldesk/pkg/trading"
)

const (
	// DefaultBBPeriod is the default Bollinger Bands lookback
	DefaultBBPeriod = 20

	// DefaultBBStdDev is the default Bollinger Bands multiplier
	DefaultBBStdDev = 2.0
)

// MovingAverage returns the arithmetic mean of the last period prices.
// ok is false when there are fewer than period prices.
func MovingAverage(prices []float64, period int) (value float64, ok bool) {
	if period <= 0 || len(prices) < period {
		return 0, false
	}

	sum := 0.0
	for _, p := range prices[len(prices)-period:] {
		sum += p
	}
	return sum / float64(period), true
}

// StandardDeviation returns the population standard deviation (divides by
// period) of the last period prices. ok is false on insufficient data.
func StandardDeviation(prices []float64, period int) (value float64, ok bool) {
	mean, ok := MovingAverage(prices, period)
	if !ok {
		return 0, false
	}

	variance := 0.0
	for _, p := range prices[len(prices)-period:] {
		diff := p - mean
		variance += diff * diff
	}
	return math.Sqrt(variance / float64(period)), true
}

// BollingerBands returns mean ± k·σ over the last period prices, or nil
// when there is not enough data.
func BollingerBands(prices []float64, period int, stdDevMultiplier float64) *trading.Bands {
	middle, ok := MovingAverage(prices, period)
	if !ok {
		return nil
	}
	stdDev, _ := StandardDeviation(prices, period)

	return &trading.Bands{
		Upper:  middle + stdDev*stdDevMultiplier,
		Middle: middle,
		Lower:  middle - stdDev*stdDevMultiplier,
	}
}

// VWAP returns Σ(typical·volume)/Σvolume with typical = (high+low+close)/3.
// Empty or mismatched inputs, and zero total volume, yield 0.
// The four slices must be index-aligned by timestamp.
func VWAP(prices, volumes, highs, lows []float64) float64 {
	n := len(prices)
	if n == 0 || len(volumes) != n || len(highs) != n || len(lows) != n {
		return 0
	}

	var cumulativeTPV, cumulativeVolume float64
	for i := 0; i < n; i++ {
		typical := (highs[i] + lows[i] + prices[i]) / 3
		cumulativeTPV += typical * volumes[i]
		cumulativeVolume += volumes[i]
	}

	if cumulativeVolume <= 0 {
		return 0
	}
	return cumulativeTPV / cumulativeVolume
}
