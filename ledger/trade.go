package ledger

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

type State int

const (
	Open State = iota
	Closed
)

func (s State) String() string {
	if s == Closed {
		return "closed"
	}
	return "open"
}

// Trade is one lot. It is created open by EnterTrade and closed once by an
// exit; a closed Trade never changes again.
type Trade struct {
	Seq        int // 1-based position in the log
	Parent     int // Seq of the lot this remainder was split from, 0 if none
	Symbol     string
	EntryDate  time.Time
	EntryPrice float64
	Shares     int64

	ExitID    int // exit call that closed the lot, 0 while open
	ExitDate  time.Time
	ExitPrice float64
}

func (t Trade) State() State {
	if t.ExitDate.IsZero() {
		return Open
	}
	return Closed
}

func (t Trade) IsOpen() bool { return t.State() == Open }

// Cost is the cash paid to open the lot.
func (t Trade) Cost() float64 {
	return t.cost().InexactFloat64()
}

// PnL is the realized profit of a closed lot, NaN while open.
func (t Trade) PnL() float64 {
	if t.IsOpen() {
		return math.NaN()
	}
	return t.pnl().InexactFloat64()
}

// root is the Seq of the original entry this lot descends from.
func (t Trade) root() int {
	if t.Parent != 0 {
		return t.Parent
	}
	return t.Seq
}

func (t Trade) cost() decimal.Decimal {
	return amount(t.EntryPrice, t.Shares)
}

func (t Trade) proceeds() decimal.Decimal {
	return amount(t.ExitPrice, t.Shares)
}

func (t Trade) pnl() decimal.Decimal {
	return t.proceeds().Sub(t.cost())
}

func amount(price float64, shares int64) decimal.Decimal {
	return decimal.NewFromFloat(price).Mul(decimal.NewFromInt(shares))
}
