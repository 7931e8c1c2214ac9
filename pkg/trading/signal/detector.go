// Package signal detects Bollinger Band and VWAP crossing events between two
// consecutive snapshots of a symbol.
package signal

import (
	"github.com/xinguang/signaldesk/pkg/trading"
)

// Detect returns every signal type whose crossing condition holds between
// previousPrice and currentPrice, in fixed check order. prevBB may be nil, in
// which case the mean-reversion checks are skipped. A vwap of 0 (VWAP
// disabled) never crosses for positive prices.
//
// Detect has no memory: callers keep the previous snapshot per symbol.
func Detect(currentPrice, previousPrice float64, bb trading.Bands, vwap float64, prevBB *trading.Bands) []trading.SignalType {
	signals := make([]trading.SignalType, 0, 2)

	if previousPrice <= bb.Upper && currentPrice > bb.Upper {
		signals = append(signals, trading.SignalBBBreakoutUp)
	}

	if previousPrice >= bb.Lower && currentPrice < bb.Lower {
		signals = append(signals, trading.SignalBBBreakoutDown)
	}

	// price was outside the previous band and has crossed back in
	if prevBB != nil && previousPrice < prevBB.Lower && currentPrice > bb.Lower {
		signals = append(signals, trading.SignalBBMeanReversionUp)
	}

	if prevBB != nil && previousPrice > prevBB.Upper && currentPrice < bb.Upper {
		signals = append(signals, trading.SignalBBMeanReversionDown)
	}

	if previousPrice <= vwap && currentPrice > vwap {
		signals = append(signals, trading.SignalVWAPCrossUp)
	}

	if previousPrice >= vwap && currentPrice < vwap {
		signals = append(signals, trading.SignalVWAPCrossDown)
	}

	return signals
}

// DetectSnapshots runs Detect on two snapshots. It returns nil when either
// snapshot is missing or the current one has no bands yet.
func DetectSnapshots(current, previous *trading.Snapshot) []trading.SignalType {
	if current == nil || previous == nil || current.Bands == nil {
		return nil
	}
	return Detect(current.Price, previous.Price, *current.Bands, current.VWAP, previous.Bands)
}
