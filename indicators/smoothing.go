package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/tradebook/market"
)

// EMA returns the exponential moving average of values over period, seeded
// with the simple average of the first period values. A NaN input yields
// NaN and restarts the seed.
func EMA(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("period must be positive, got %d", period)
	}
	out := nanSlice(len(values))
	k := 2.0 / float64(period+1)

	var ema, seed float64
	n := 0
	for i, v := range values {
		if math.IsNaN(v) {
			n, seed = 0, 0
			continue
		}
		if n < period {
			seed += v
			n++
			if n == period {
				ema = seed / float64(period)
				out[i] = ema
			}
			continue
		}
		ema = (v-ema)*k + ema
		out[i] = ema
	}
	return out, nil
}

// ATR returns the average true range of s with Wilder smoothing. The first
// value lands on bar period, since true range needs the previous close.
func ATR(s *market.Series, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("period must be positive, got %d", period)
	}
	out := nanSlice(s.Len())
	if s.Len() < period+1 {
		return out, nil
	}

	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += trueRange(s.Bar(i), s.Bar(i-1))
	}
	atr := sum / float64(period)
	out[period] = atr

	for i := period + 1; i < s.Len(); i++ {
		atr = (atr*float64(period-1) + trueRange(s.Bar(i), s.Bar(i-1))) / float64(period)
		out[i] = atr
	}
	return out, nil
}

func trueRange(cur, prev market.Bar) float64 {
	return math.Max(cur.High-cur.Low, math.Max(math.Abs(cur.High-prev.Close), math.Abs(cur.Low-prev.Close)))
}
