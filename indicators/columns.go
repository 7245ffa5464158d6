package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/tradebook/market"
)

// SMA returns the simple moving average of values over period. The first
// period-1 entries are NaN, as is any window containing a NaN.
func SMA(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("period must be positive, got %d", period)
	}
	out := nanSlice(len(values))

	sum := 0.0
	nans := 0
	for i, v := range values {
		if math.IsNaN(v) {
			nans++
		} else {
			sum += v
		}
		if i >= period {
			old := values[i-period]
			if math.IsNaN(old) {
				nans--
			} else {
				sum -= old
			}
		}
		if i >= period-1 && nans == 0 {
			out[i] = sum / float64(period)
		}
	}
	return out, nil
}

// RollingMax returns the maximum of each trailing window of period values.
func RollingMax(values []float64, period int) ([]float64, error) {
	return rolling(values, period, math.Max)
}

// RollingMin returns the minimum of each trailing window of period values.
func RollingMin(values []float64, period int) ([]float64, error) {
	return rolling(values, period, math.Min)
}

func rolling(values []float64, period int, pick func(a, b float64) float64) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("period must be positive, got %d", period)
	}
	out := nanSlice(len(values))
	for i := period - 1; i < len(values); i++ {
		acc := values[i-period+1]
		for _, v := range values[i-period+2 : i+1] {
			acc = pick(acc, v)
		}
		// math.Max/Min propagate NaN, which is what we want during gaps
		out[i] = acc
	}
	return out, nil
}

// Returns gives the simple daily return of each value against the previous
// one. The first entry is NaN.
func Returns(values []float64) []float64 {
	out := nanSlice(len(values))
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			continue
		}
		out[i] = values[i]/values[i-1] - 1
	}
	return out
}

// Crossover counts how long fast has been on one side of slow: +n on the
// n-th consecutive bar above, -n on the n-th below, 0 when they are equal.
// A NaN on either side yields NaN and restarts the count.
func Crossover(fast, slow []float64) ([]float64, error) {
	if len(fast) != len(slow) {
		return nil, fmt.Errorf("crossover: %d fast values for %d slow", len(fast), len(slow))
	}
	out := nanSlice(len(fast))
	run := 0.0
	for i := range fast {
		f, s := fast[i], slow[i]
		switch {
		case math.IsNaN(f) || math.IsNaN(s):
			run = 0
			continue
		case f > s:
			if run < 0 {
				run = 0
			}
			run++
		case f < s:
			if run > 0 {
				run = 0
			}
			run--
		default:
			run = 0
		}
		out[i] = run
	}
	return out, nil
}

// Attach stores values on s as column name.
func Attach(s *market.Series, name string, values []float64) error {
	if err := s.SetColumn(name, values); err != nil {
		return fmt.Errorf("indicator %s: %w", name, err)
	}
	return nil
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
