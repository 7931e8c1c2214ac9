package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/xinguang/signaldesk/pkg/trading"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestMovingAverage(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		period int
		want   float64
		ok     bool
	}{
		{"exact window", []float64{1, 2, 3}, 3, 2, true},
		{"uses last period", []float64{100, 1, 2, 3}, 3, 2, true},
		{"insufficient", []float64{1, 2}, 3, 0, false},
		{"empty", nil, 1, 0, false},
		{"zero period", []float64{1, 2}, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MovingAverage(tt.prices, tt.period)
			if ok != tt.ok || !almostEqual(got, tt.want) {
				t.Errorf("MovingAverage() = %v, %v; want %v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestStandardDeviationIsPopulation(t *testing.T) {
	// population σ of 2,4,4,4,5,5,7,9 is exactly 2
	prices := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	got, ok := StandardDeviation(prices, len(prices))
	if !ok || !almostEqual(got, 2) {
		t.Errorf("StandardDeviation() = %v, %v; want 2", got, ok)
	}

	if _, ok := StandardDeviation(prices[:3], 4); ok {
		t.Error("expected insufficient data")
	}
}

func TestBollingerBandsInsufficientData(t *testing.T) {
	for n := 0; n < DefaultBBPeriod; n++ {
		prices := make([]float64, n)
		for i := range prices {
			prices[i] = float64(100 + i)
		}
		if bb := BollingerBands(prices, DefaultBBPeriod, DefaultBBStdDev); bb != nil {
			t.Fatalf("expected nil bands for %d prices, got %+v", n, bb)
		}
	}
}

func TestBollingerBandsConstantSeries(t *testing.T) {
	prices := make([]float64, 25)
	for i := range prices {
		prices[i] = 42.5
	}

	bb := BollingerBands(prices, 20, 2)
	if bb == nil {
		t.Fatal("expected bands")
	}
	if bb.Upper != 42.5 || bb.Middle != 42.5 || bb.Lower != 42.5 {
		t.Errorf("expected all bands at 42.5, got %+v", bb)
	}
}

func TestBollingerBandsValues(t *testing.T) {
	prices := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	bb := BollingerBands(prices, 8, 2)
	if bb == nil {
		t.Fatal("expected bands")
	}
	if !almostEqual(bb.Middle, 5) || !almostEqual(bb.Upper, 9) || !almostEqual(bb.Lower, 1) {
		t.Errorf("unexpected bands %+v", bb)
	}
}

func TestVWAP(t *testing.T) {
	tests := []struct {
		name                        string
		prices, volumes, highs, lows []float64
		want                        float64
	}{
		{"empty", nil, nil, nil, nil, 0},
		{"mismatched volumes", []float64{1, 2}, []float64{1}, []float64{1, 2}, []float64{1, 2}, 0},
		{"mismatched highs", []float64{1}, []float64{1}, []float64{1, 2}, []float64{1}, 0},
		{"zero volume", []float64{10}, []float64{0}, []float64{10}, []float64{10}, 0},
		{
			name:    "weighted typical price",
			prices:  []float64{10, 20},
			volumes: []float64{100, 300},
			highs:   []float64{11, 22},
			lows:    []float64{9, 18},
			// typical 10 and 20 → (10*100 + 20*300) / 400
			want: 17.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VWAP(tt.prices, tt.volumes, tt.highs, tt.lows); !almostEqual(got, tt.want) {
				t.Errorf("VWAP() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSeriesWindow(t *testing.T) {
	s := NewSeries(3)
	now := time.Now()
	for i := 1; i <= 5; i++ {
		s.Append(trading.Tick{Symbol: "SPY", Price: float64(i), Volume: 10, Timestamp: now.Add(time.Duration(i) * time.Second)})
	}

	if s.Len() != 3 || s.Cap() != 3 {
		t.Fatalf("expected len/cap 3, got %d/%d", s.Len(), s.Cap())
	}

	prices, volumes, highs, lows := s.Columns()
	want := []float64{3, 4, 5}
	for i := range want {
		if prices[i] != want[i] {
			t.Errorf("prices[%d] = %v, want %v", i, prices[i], want[i])
		}
		if highs[i] != want[i] || lows[i] != want[i] {
			t.Errorf("high/low should default to price at %d", i)
		}
		if volumes[i] != 10 {
			t.Errorf("volumes[%d] = %v", i, volumes[i])
		}
	}

	last, ok := s.Last()
	if !ok || last.Price != 5 {
		t.Errorf("Last() = %+v, %v", last, ok)
	}
}

func TestSeriesRepeatedTimestamp(t *testing.T) {
	s := NewSeries(10)
	ts := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		if !s.Append(trading.Tick{Symbol: "SPY", Price: 100, Volume: 1000, Timestamp: ts}) {
			t.Errorf("append %d: expected same-timestamp tick to be accepted", i)
		}
	}
	if s.Len() != 1 {
		t.Fatalf("expected one tick for a repeated bar, got %d", s.Len())
	}

	// A revised bar replaces the last one
	s.Append(trading.Tick{Symbol: "SPY", Price: 101, Volume: 1200, Timestamp: ts})
	last, _ := s.Last()
	if s.Len() != 1 || last.Price != 101 || last.Volume != 1200 {
		t.Errorf("expected revised bar to replace the last, got len %d last %+v", s.Len(), last)
	}

	if s.Append(trading.Tick{Symbol: "SPY", Price: 99, Timestamp: ts.Add(-time.Minute)}) {
		t.Error("expected older tick to be dropped")
	}
	s.Append(trading.Tick{Symbol: "SPY", Price: 102, Volume: 800, Timestamp: ts.Add(time.Minute)})
	if s.Len() != 2 {
		t.Errorf("expected 2 ticks, got %d", s.Len())
	}

	// VWAP counts the repeated bar's volume once
	_, vwap := s.Compute(20, 2, true)
	want := (101*1200 + 102*800) / 2000.0
	if !almostEqual(vwap, want) {
		t.Errorf("expected vwap %v, got %v", want, vwap)
	}
}

func TestSeriesCompute(t *testing.T) {
	s := NewSeries(10)
	bands, vwap := s.Compute(3, 2, true)
	if bands != nil || vwap != 0 {
		t.Errorf("empty series should produce nil bands and 0 vwap")
	}

	for _, p := range []float64{10, 10, 10} {
		s.Append(trading.Tick{Price: p, Volume: 5})
	}
	bands, vwap = s.Compute(3, 2, true)
	if bands == nil || bands.Middle != 10 {
		t.Errorf("expected middle 10, got %+v", bands)
	}
	if !almostEqual(vwap, 10) {
		t.Errorf("expected vwap 10, got %v", vwap)
	}

	_, vwap = s.Compute(3, 2, false)
	if vwap != 0 {
		t.Errorf("vwap disabled should be 0, got %v", vwap)
	}
}
