package portfolio

import (
	"fmt"
	"math"
	"strings"
	"time"

	mstats "github.com/montanaflynn/stats"

	"github.com/rustyeddy/tradebook/indicators"
	"github.com/rustyeddy/tradebook/market"
)

// History maps each symbol to the bars a policy is allowed to see. A symbol
// with no bars yet is absent.
type History map[string]*market.Series

// WeightPolicy decides the fraction of total capital each sleeve should
// hold. Weights may sum to less than one; the rest stays in reserve.
type WeightPolicy interface {
	Name() string
	Weights(date time.Time, symbols []string, h History) (map[string]float64, error)
}

// EqualWeight gives every sleeve 1/max(n, MaxPositions).
type EqualWeight struct {
	MaxPositions int
}

func (EqualWeight) Name() string { return "equal" }

func (e EqualWeight) Weights(_ time.Time, symbols []string, _ History) (map[string]float64, error) {
	slots := len(symbols)
	if e.MaxPositions > slots {
		slots = e.MaxPositions
	}
	out := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		out[s] = 1 / float64(slots)
	}
	return out, nil
}

// FixedFraction uses the configured fractions as given. Missing symbols get
// zero.
type FixedFraction struct {
	Fractions map[string]float64
}

func (FixedFraction) Name() string { return "fixed" }

func (f FixedFraction) Weights(_ time.Time, symbols []string, _ History) (map[string]float64, error) {
	out := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		out[s] = f.Fractions[s]
	}
	return out, nil
}

// VolatilityScaled weights sleeves by the inverse sample standard deviation
// of their last Lookback daily returns. With UseATR it uses the Lookback-day
// average true range as a fraction of the close instead. When any symbol
// lacks enough history, or is flat, it falls back to equal weights.
type VolatilityScaled struct {
	Lookback     int
	MaxPositions int
	UseATR       bool
}

func (v VolatilityScaled) Name() string {
	if v.UseATR {
		return "volatility-atr"
	}
	return "volatility"
}

func (v VolatilityScaled) Weights(date time.Time, symbols []string, h History) (map[string]float64, error) {
	equal := EqualWeight{MaxPositions: v.MaxPositions}
	lookback := v.Lookback
	if lookback < 2 {
		lookback = 20
	}

	inv := make(map[string]float64, len(symbols))
	var sum float64
	for _, sym := range symbols {
		s, ok := h[sym]
		if !ok || s.Len() < lookback+1 {
			return equal.Weights(date, symbols, h)
		}
		vol, err := v.volatility(s, lookback)
		if err != nil || vol == 0 || math.IsNaN(vol) {
			return equal.Weights(date, symbols, h)
		}
		inv[sym] = 1 / vol
		sum += 1 / vol
	}

	budget, _ := equal.Weights(date, symbols, h)
	var invested float64
	for _, w := range budget {
		invested += w
	}
	out := make(map[string]float64, len(symbols))
	for sym, x := range inv {
		out[sym] = x / sum * invested
	}
	return out, nil
}

func (v VolatilityScaled) volatility(s *market.Series, lookback int) (float64, error) {
	if v.UseATR {
		atr, err := indicators.ATR(s, lookback)
		if err != nil {
			return 0, err
		}
		return atr[len(atr)-1] / s.Last().Close, nil
	}
	closes := s.Closes()
	r := indicators.Returns(closes[len(closes)-lookback-1:])[1:]
	return mstats.StandardDeviationSample(r)
}

// PolicyByName builds a policy from configuration.
func PolicyByName(name string, maxPositions, lookback int, weights map[string]float64) (WeightPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "equal":
		return EqualWeight{MaxPositions: maxPositions}, nil
	case "fixed":
		return FixedFraction{Fractions: weights}, nil
	case "volatility":
		return VolatilityScaled{Lookback: lookback, MaxPositions: maxPositions}, nil
	case "volatility-atr":
		return VolatilityScaled{Lookback: lookback, MaxPositions: maxPositions, UseATR: true}, nil
	}
	return nil, fmt.Errorf("unknown weighting policy %q (supported: equal, fixed, volatility, volatility-atr)", name)
}

func validateWeights(w map[string]float64, symbols []string) error {
	sum := 0.0
	for _, s := range symbols {
		x, ok := w[s]
		if !ok {
			return fmt.Errorf("%w: no weight for %s", ErrInvalidWeights, s)
		}
		if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 {
			return fmt.Errorf("%w: %s has weight %v", ErrInvalidWeights, s, x)
		}
		sum += x
	}
	if sum > 1+1e-9 {
		return fmt.Errorf("%w: weights sum to %f", ErrInvalidWeights, sum)
	}
	return nil
}
