package strategy

import (
	"fmt"
	"strings"

	"github.com/rustyeddy/tradebook/indicators"
	"github.com/rustyeddy/tradebook/internal/logger"
	"github.com/rustyeddy/tradebook/market"
)

const (
	PyramidName = "pyramid"

	ColSMA        = "sma"
	ColEMA        = "ema"
	ColRegime     = "regime"
	ColPeriodHigh = "period_high"
	ColPeriodLow  = "period_low"
)

// Pyramid buys pullbacks in an uptrend. While the close has been above its
// long moving average for at least TrendDays bars, each close at a
// Period-day low adds a lot sized at an equal share of the remaining cash,
// up to MaxPositions lots. A close at a Period-day high, or the last day,
// sells everything.
//
// Trend picks the average: "sma" (the default) or "ema", both over
// SMAPeriod bars. A zero TrendDays means one.
type Pyramid struct {
	Period       int
	SMAPeriod    int
	MaxPositions int
	Trend        string
	TrendDays    int
}

func NewPyramid(p Params) (*Pyramid, error) {
	s := &Pyramid{Period: 7, SMAPeriod: 200, MaxPositions: 4}
	if p.Period != 0 {
		s.Period = p.Period
	}
	if p.SMAPeriod != 0 {
		s.SMAPeriod = p.SMAPeriod
	}
	if p.MaxPositions != 0 {
		s.MaxPositions = p.MaxPositions
	}
	if s.Period < 1 || s.SMAPeriod < 1 || s.MaxPositions < 1 {
		return nil, fmt.Errorf("pyramid: period %d, sma_period %d, max_positions %d must be positive",
			s.Period, s.SMAPeriod, s.MaxPositions)
	}
	switch t := strings.ToLower(strings.TrimSpace(p.Trend)); t {
	case "", ColSMA, ColEMA:
		s.Trend = t
	default:
		return nil, fmt.Errorf("pyramid: trend %q must be sma or ema", p.Trend)
	}
	if p.TrendDays < 0 {
		return nil, fmt.Errorf("pyramid: trend_days %d must not be negative", p.TrendDays)
	}
	s.TrendDays = p.TrendDays
	return s, nil
}

func (p *Pyramid) trendColumn() string {
	if p.Trend == ColEMA {
		return ColEMA
	}
	return ColSMA
}

func (p *Pyramid) Name() string { return PyramidName }

func (p *Pyramid) Prepare(s *market.Series) error {
	closes := s.Closes()
	average := indicators.SMA
	if p.trendColumn() == ColEMA {
		average = indicators.EMA
	}
	trend, err := average(closes, p.SMAPeriod)
	if err != nil {
		return err
	}
	regime, err := indicators.Crossover(closes, trend)
	if err != nil {
		return err
	}
	hi, err := indicators.RollingMax(closes, p.Period)
	if err != nil {
		return err
	}
	lo, err := indicators.RollingMin(closes, p.Period)
	if err != nil {
		return err
	}
	cols := map[string][]float64{
		p.trendColumn(): trend,
		ColRegime:       regime,
		ColPeriodHigh:   hi,
		ColPeriodLow:    lo,
	}
	for name, col := range cols {
		if err := indicators.Attach(s, name, col); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pyramid) OnDay(d Day) error {
	price := d.Bar.Close
	regime := d.Bar.Value(ColRegime)
	lo := d.Bar.Value(ColPeriodLow)
	hi := d.Bar.Value(ColPeriodHigh)
	open := d.Log.NumOpenTrades()
	days := float64(max(p.TrendDays, 1))

	switch {
	case open < p.MaxPositions && !d.Last &&
		market.Valid(regime, lo) && regime >= days && price == lo:
		slot := d.Log.Cash() / float64(p.MaxPositions-open)
		shares := d.Log.CalcShares(price, slot)
		if shares == 0 {
			logger.OrNop(d.Logger).Debugw("cannot size", "date", d.Bar.Date.Format(market.DateLayout), "cash", slot)
			return nil
		}
		return d.Log.EnterTrade(d.Bar.Date, price, shares)

	case open > 0 && (d.Last || (market.Valid(hi) && price == hi)):
		_, err := d.Log.ExitTrade(d.Bar.Date, price)
		return err
	}
	return nil
}
