package market

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidBar is returned for a bar whose prices cannot be traded on.
var ErrInvalidBar = errors.New("invalid bar")

// DateLayout is the date format used in CSV inputs and outputs.
const DateLayout = "2006-01-02"

// Bar is one trading session of a daily series. Columns holds the signal
// and indicator values a strategy reads; they are precomputed before the
// run starts.
type Bar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64

	Columns map[string]float64
}

// Value returns the named column, or NaN when the bar does not carry it.
// The price fields are reachable by name too so strategies can compare
// "close" against an indicator uniformly.
func (b Bar) Value(name string) float64 {
	switch name {
	case "open":
		return b.Open
	case "high":
		return b.High
	case "low":
		return b.Low
	case "close":
		return b.Close
	case "volume":
		return b.Volume
	}
	v, ok := b.Columns[name]
	if !ok {
		return math.NaN()
	}
	return v
}

// Set stores a column value on the bar.
func (b *Bar) Set(name string, v float64) {
	if b.Columns == nil {
		b.Columns = make(map[string]float64)
	}
	b.Columns[name] = v
}

// Valid reports whether none of the values is NaN. A condition built on a
// NaN value is treated as false by callers.
func Valid(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) {
			return false
		}
	}
	return true
}

// Validate checks the price fields. Close must be finite and positive.
// Open, High and Low may be zero when the source only carries closes, but
// never negative or non-finite, and High may not sit below Low.
func (b Bar) Validate() error {
	if math.IsNaN(b.Close) || math.IsInf(b.Close, 0) || b.Close <= 0 {
		return fmt.Errorf("close %v: %w", b.Close, ErrInvalidBar)
	}
	for _, p := range []struct {
		name string
		v    float64
	}{{"open", b.Open}, {"high", b.High}, {"low", b.Low}} {
		if math.IsNaN(p.v) || math.IsInf(p.v, 0) || p.v < 0 {
			return fmt.Errorf("%s %v: %w", p.name, p.v, ErrInvalidBar)
		}
	}
	if b.High > 0 && b.Low > 0 && b.High < b.Low {
		return fmt.Errorf("high %v below low %v: %w", b.High, b.Low, ErrInvalidBar)
	}
	return nil
}

func (b Bar) clone() Bar {
	c := b
	if b.Columns != nil {
		c.Columns = make(map[string]float64, len(b.Columns))
		for k, v := range b.Columns {
			c.Columns[k] = v
		}
	}
	return c
}
