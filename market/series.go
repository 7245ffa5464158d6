package market

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrEmptySeries     = errors.New("empty series")
	ErrUnorderedSeries = errors.New("series dates must be strictly increasing")
)

// Series is an ordered daily price table for one symbol.
type Series struct {
	Symbol string
	bars   []Bar
}

// NewSeries validates bars (non-empty, strictly increasing dates, tradable
// prices) and returns a series that owns a copy of them.
func NewSeries(symbol string, bars []Bar) (*Series, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrEmptySeries)
	}
	cp := make([]Bar, len(bars))
	for i, b := range bars {
		if i > 0 && !b.Date.After(bars[i-1].Date) {
			return nil, fmt.Errorf("%s: row %d (%s): %w",
				symbol, i, b.Date.Format(DateLayout), ErrUnorderedSeries)
		}
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("%s: row %d (%s): %w",
				symbol, i, b.Date.Format(DateLayout), err)
		}
		cp[i] = b.clone()
	}
	return &Series{Symbol: symbol, bars: cp}, nil
}

func (s *Series) Len() int { return len(s.bars) }

func (s *Series) Bar(i int) Bar { return s.bars[i] }

func (s *Series) First() Bar { return s.bars[0] }

func (s *Series) Last() Bar { return s.bars[len(s.bars)-1] }

// Dates returns the trading dates in order.
func (s *Series) Dates() []time.Time {
	out := make([]time.Time, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.Date
	}
	return out
}

// Closes returns the close prices in order.
func (s *Series) Closes() []float64 {
	return s.Column("close")
}

// Column returns the named column for every bar (NaN where missing).
func (s *Series) Column(name string) []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.Value(name)
	}
	return out
}

// SetColumn attaches a column. values must have one entry per bar.
func (s *Series) SetColumn(name string, values []float64) error {
	if len(values) != len(s.bars) {
		return fmt.Errorf("column %q: got %d values for %d bars", name, len(values), len(s.bars))
	}
	for i := range s.bars {
		s.bars[i].Set(name, values[i])
	}
	return nil
}

// IndexOf returns the index of the bar dated d, or -1.
func (s *Series) IndexOf(d time.Time) int {
	lo, hi := 0, len(s.bars)
	for lo < hi {
		mid := (lo + hi) / 2
		if s.bars[mid].Date.Before(d) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(s.bars) && s.bars[lo].Date.Equal(d) {
		return lo
	}
	return -1
}

// LastIndexThrough returns the index of the last bar dated on or before d,
// or -1 when the series starts after d.
func (s *Series) LastIndexThrough(d time.Time) int {
	lo, hi := 0, len(s.bars)
	for lo < hi {
		mid := (lo + hi) / 2
		if s.bars[mid].Date.After(d) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo - 1
}

// Truncate returns a copy holding the first n bars.
func (s *Series) Truncate(n int) (*Series, error) {
	if n > len(s.bars) {
		n = len(s.bars)
	}
	if n <= 0 {
		return nil, fmt.Errorf("%s: truncate to %d: %w", s.Symbol, n, ErrEmptySeries)
	}
	return NewSeries(s.Symbol, s.bars[:n])
}

// Between returns a copy limited to bars dated within [start, end]. A zero
// start or end leaves that side open.
func (s *Series) Between(start, end time.Time) (*Series, error) {
	var bars []Bar
	for _, b := range s.bars {
		if !start.IsZero() && b.Date.Before(start) {
			continue
		}
		if !end.IsZero() && b.Date.After(end) {
			continue
		}
		bars = append(bars, b)
	}
	return NewSeries(s.Symbol, bars)
}
