// Package strategy drives one symbol through its series a day at a time,
// feeding a trade log and recording a daily balance.
package strategy

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/rustyeddy/tradebook/ledger"
	"github.com/rustyeddy/tradebook/market"
)

// Strategy decides when to trade. Prepare runs once over the whole series
// before the first day and may attach indicator columns; OnDay sees one bar
// at a time and must not look past it.
type Strategy interface {
	Name() string
	Prepare(s *market.Series) error
	OnDay(d Day) error
}

// Day is what a strategy sees on each bar.
type Day struct {
	Index  int
	Bar    market.Bar
	Symbol string
	Last   bool // final bar of the run; open positions should be closed
	Log    *ledger.TradeLog
	Logger *zap.SugaredLogger
}

type Params struct {
	Period       int    `yaml:"period" json:"period"`
	SMAPeriod    int    `yaml:"sma_period" json:"sma_period"`
	MaxPositions int    `yaml:"max_positions" json:"max_positions"`
	Trend        string `yaml:"trend,omitempty" json:"trend,omitempty"`
	TrendDays    int    `yaml:"trend_days,omitempty" json:"trend_days,omitempty"`
}

type Factory func(Params) (Strategy, error)

var registry = map[string]Factory{}

// Register makes a strategy available to New. It is meant to be called
// from init.
func Register(name string, f Factory) {
	registry[strings.ToLower(name)] = f
}

// New builds a fresh strategy instance by registered name.
func New(name string, p Params) (Strategy, error) {
	f, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (supported: %s)", name, strings.Join(Names(), ", "))
	}
	return f(p)
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register(PyramidName, func(p Params) (Strategy, error) { return NewPyramid(p) })
	Register(BuyAndHoldName, func(Params) (Strategy, error) { return &BuyAndHold{}, nil })
}
