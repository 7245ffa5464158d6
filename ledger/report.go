package ledger

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// RoundTrip is one row of the trade report: a single lot, or several lots
// coalesced when the log is merged.
type RoundTrip struct {
	Symbol     string
	EntryDate  time.Time
	EntryPrice float64 // volume weighted across lots
	ExitDate   time.Time
	ExitPrice  float64 // NaN while open
	Shares     int64
	PnL        float64 // NaN while open
	Lots       int
}

func (r RoundTrip) IsOpen() bool { return r.ExitDate.IsZero() }

// LogRaw returns every fill in the order it happened.
func (tl *TradeLog) LogRaw() []Event {
	return append([]Event(nil), tl.events...)
}

// Log reports one row per lot, or, with merge set, one row per exit: lots
// closed by the same exit call become a single round trip priced at their
// volume weighted entry. Lots still open at the end are reported together
// as one open row. Rows keep the order in which their first lot was
// entered.
func (tl *TradeLog) Log(merge bool) []RoundTrip {
	if !merge {
		out := make([]RoundTrip, 0, len(tl.trades))
		for _, t := range tl.trades {
			out = append(out, roundTrip([]Trade{t}))
		}
		return out
	}

	const openKey = -1
	groups := map[int][]Trade{}
	var order []int
	for _, t := range tl.trades {
		key := t.ExitID
		if t.IsOpen() {
			key = openKey
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], t)
	}

	out := make([]RoundTrip, 0, len(order))
	for _, key := range order {
		out = append(out, roundTrip(groups[key]))
	}
	return out
}

func roundTrip(lots []Trade) RoundTrip {
	first := lots[0]
	r := RoundTrip{
		Symbol:    first.Symbol,
		EntryDate: first.EntryDate,
		ExitDate:  first.ExitDate,
		ExitPrice: math.NaN(),
		PnL:       math.NaN(),
		Lots:      len(lots),
	}

	var cost, pnl decimal.Decimal
	for _, t := range lots {
		if t.EntryDate.Before(r.EntryDate) {
			r.EntryDate = t.EntryDate
		}
		r.Shares += t.Shares
		cost = cost.Add(t.cost())
		if !t.IsOpen() {
			pnl = pnl.Add(t.pnl())
		}
	}
	r.EntryPrice = cost.Div(decimal.NewFromInt(r.Shares)).InexactFloat64()

	if !r.IsOpen() {
		r.ExitPrice = first.ExitPrice
		r.PnL = pnl.InexactFloat64()
	}
	return r
}
