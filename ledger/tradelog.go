package ledger

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rustyeddy/tradebook/internal/logger"
)

type Action string

const (
	Buy  Action = "buy"
	Sell Action = "sell"
)

// Event is one fill as it was emitted. Shares is always positive; Action
// carries the direction.
type Event struct {
	Date   time.Time
	Action Action
	Symbol string
	Price  float64
	Shares int64
	Lot    int // Seq of the Trade the fill belongs to
}

// Transfer is cash moved into (positive) or out of (negative) the log by
// the portfolio layer.
type Transfer struct {
	Date   time.Time
	Amount float64
}

type cashflow struct {
	date   time.Time
	amount decimal.Decimal
}

// TradeLog owns the cash balance and the append-only lot sequence for one
// symbol. It is not safe for concurrent use.
type TradeLog struct {
	symbol string
	logger *zap.SugaredLogger
	exit   ExitPolicy

	initialized bool
	capital     decimal.Decimal
	cash        decimal.Decimal

	trades    []Trade
	events    []Event
	transfers []Transfer
	flows     []cashflow

	open  int
	exits int
	last  time.Time
}

type Option func(*TradeLog)

// WithLogger routes fill logging to l.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(tl *TradeLog) { tl.logger = logger.OrNop(l) }
}

// WithExitPolicy sets the lot selection used by ExitShares.
func WithExitPolicy(p ExitPolicy) Option {
	return func(tl *TradeLog) {
		if p != nil {
			tl.exit = p
		}
	}
}

func New(symbol string, opts ...Option) *TradeLog {
	tl := &TradeLog{
		symbol: symbol,
		logger: logger.Nop(),
		exit:   FIFO{},
	}
	for _, o := range opts {
		o(tl)
	}
	return tl
}

// Initialize sets the starting cash. It may only be called once.
func (tl *TradeLog) Initialize(capital float64) error {
	if tl.initialized {
		return fmt.Errorf("%s: %w", tl.symbol, ErrAlreadyInitialized)
	}
	if math.IsNaN(capital) || math.IsInf(capital, 0) || capital < 0 {
		return fmt.Errorf("%s: capital %v: %w", tl.symbol, capital, ErrInvalidAmount)
	}
	tl.capital = decimal.NewFromFloat(capital)
	tl.cash = tl.capital
	tl.trades = nil
	tl.events = nil
	tl.transfers = nil
	tl.flows = nil
	tl.open = 0
	tl.initialized = true
	return nil
}

func (tl *TradeLog) Symbol() string         { return tl.symbol }
func (tl *TradeLog) Initialized() bool      { return tl.initialized }
func (tl *TradeLog) ExitPolicy() ExitPolicy { return tl.exit }
func (tl *TradeLog) Capital() float64       { return tl.capital.InexactFloat64() }
func (tl *TradeLog) Cash() float64          { return tl.cash.InexactFloat64() }
func (tl *TradeLog) NumOpenTrades() int     { return tl.open }

// CalcShares is the number of whole shares cashAvailable buys at price.
func (tl *TradeLog) CalcShares(price, cashAvailable float64) int64 {
	return CalcShares(price, cashAvailable)
}

// CalcShares returns floor(cashAvailable/price), or 0 when price is not
// positive, either input is NaN, or one share is unaffordable. Zero means
// "no size" and callers treat it as a no-op.
func CalcShares(price, cashAvailable float64) int64 {
	if math.IsNaN(price) || math.IsNaN(cashAvailable) || math.IsInf(price, 0) || math.IsInf(cashAvailable, 0) {
		return 0
	}
	if price <= 0 || cashAvailable < price {
		return 0
	}
	return decimal.NewFromFloat(cashAvailable).
		Div(decimal.NewFromFloat(price)).
		Floor().
		IntPart()
}

// EnterTrade opens a long lot of shares at price and debits the cost.
func (tl *TradeLog) EnterTrade(date time.Time, price float64, shares int64) error {
	if err := tl.check(date); err != nil {
		return err
	}
	if shares <= 0 {
		return fmt.Errorf("%s: enter %d shares: %w", tl.symbol, shares, ErrInvalidShares)
	}
	if !validPrice(price) {
		return fmt.Errorf("%s: enter at %v: %w", tl.symbol, price, ErrInvalidPrice)
	}

	cost := amount(price, shares)
	if cost.GreaterThan(tl.cash) {
		return fmt.Errorf("%s: %w: %d shares @ %v costs %s, cash %s",
			tl.symbol, ErrInsufficientCash, shares, price, cost.StringFixed(2), tl.cash.StringFixed(2))
	}

	t := Trade{
		Seq:        len(tl.trades) + 1,
		Symbol:     tl.symbol,
		EntryDate:  date,
		EntryPrice: price,
		Shares:     shares,
	}
	tl.trades = append(tl.trades, t)
	tl.events = append(tl.events, Event{
		Date:   date,
		Action: Buy,
		Symbol: tl.symbol,
		Price:  price,
		Shares: shares,
		Lot:    t.Seq,
	})
	tl.flows = append(tl.flows, cashflow{date: date, amount: cost.Neg()})
	tl.cash = tl.cash.Sub(cost)
	tl.open++
	tl.last = date

	tl.logger.Debugw("BUY",
		"date", date.Format("2006-01-02"),
		"symbol", tl.symbol,
		"shares", shares,
		"price", price,
		"cash", tl.cash.InexactFloat64(),
	)
	return nil
}

// ExitTrade liquidates every open lot at price and returns the negative
// total share count.
func (tl *TradeLog) ExitTrade(date time.Time, price float64) (int64, error) {
	if err := tl.checkExit(date, price); err != nil {
		return 0, err
	}

	tl.exits++
	var total int64
	for i := range tl.trades {
		if tl.trades[i].IsOpen() {
			total += tl.close(i, date, price)
		}
	}
	tl.logExit(date, price, total)
	return -total, nil
}

// ExitShares sells shares from the open lots in the order the exit policy
// gives. A lot that is only partly sold is closed for the sold quantity and
// the remainder continues as a new open lot with the same entry date and
// price.
func (tl *TradeLog) ExitShares(date time.Time, price float64, shares int64) (int64, error) {
	if err := tl.checkExit(date, price); err != nil {
		return 0, err
	}
	held := tl.Shares()
	if shares <= 0 || shares > held {
		return 0, fmt.Errorf("%s: exit %d of %d shares: %w", tl.symbol, shares, held, ErrInvalidShares)
	}

	var open []Trade
	var pos []int
	for i, t := range tl.trades {
		if t.IsOpen() {
			open = append(open, t)
			pos = append(pos, i)
		}
	}

	tl.exits++
	remaining := shares
	for _, k := range tl.exit.Order(open) {
		if remaining == 0 {
			break
		}
		i := pos[k]
		lot := tl.trades[i]
		if lot.Shares > remaining {
			rest := Trade{
				Seq:        len(tl.trades) + 1,
				Parent:     lot.root(),
				Symbol:     lot.Symbol,
				EntryDate:  lot.EntryDate,
				EntryPrice: lot.EntryPrice,
				Shares:     lot.Shares - remaining,
			}
			tl.trades[i].Shares = remaining
			tl.trades = append(tl.trades, rest)
			tl.open++
		}
		remaining -= tl.close(i, date, price)
	}
	tl.logExit(date, price, shares)
	return -shares, nil
}

// Transfer moves cash in (amount > 0) or out (amount < 0) without touching
// any lot.
func (tl *TradeLog) Transfer(date time.Time, amt float64) error {
	if err := tl.check(date); err != nil {
		return err
	}
	if math.IsNaN(amt) || math.IsInf(amt, 0) {
		return fmt.Errorf("%s: transfer %v: %w", tl.symbol, amt, ErrInvalidAmount)
	}
	if amt == 0 {
		return nil
	}
	d := decimal.NewFromFloat(amt)
	if d.IsNegative() && d.Neg().GreaterThan(tl.cash) {
		return fmt.Errorf("%s: %w: withdraw %s, cash %s",
			tl.symbol, ErrInsufficientCash, d.Neg().StringFixed(2), tl.cash.StringFixed(2))
	}

	tl.cash = tl.cash.Add(d)
	tl.transfers = append(tl.transfers, Transfer{Date: date, Amount: amt})
	tl.flows = append(tl.flows, cashflow{date: date, amount: d})
	tl.last = date

	tl.logger.Debugw("TRANSFER",
		"date", date.Format("2006-01-02"),
		"symbol", tl.symbol,
		"amount", amt,
		"cash", tl.cash.InexactFloat64(),
	)
	return nil
}

// Shares is the net open position, folded over the open lots.
func (tl *TradeLog) Shares() int64 {
	var n int64
	for _, t := range tl.trades {
		if t.IsOpen() {
			n += t.Shares
		}
	}
	return n
}

// AvgCost is the volume weighted entry price of the open lots, NaN when
// flat.
func (tl *TradeLog) AvgCost() float64 {
	var cost decimal.Decimal
	var n int64
	for _, t := range tl.trades {
		if t.IsOpen() {
			cost = cost.Add(t.cost())
			n += t.Shares
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return cost.Div(decimal.NewFromInt(n)).InexactFloat64()
}

// Trades returns a copy of every lot in insertion order.
func (tl *TradeLog) Trades() []Trade {
	return append([]Trade(nil), tl.trades...)
}

// Transfers returns a copy of the cash transfers in order.
func (tl *TradeLog) Transfers() []Transfer {
	return append([]Transfer(nil), tl.transfers...)
}

// CashAt replays every cash movement dated on or before d.
func (tl *TradeLog) CashAt(d time.Time) float64 {
	cash := tl.capital
	for _, f := range tl.flows {
		if f.date.After(d) {
			break
		}
		cash = cash.Add(f.amount)
	}
	return cash.InexactFloat64()
}

// SharesAt replays the position held at the end of day d.
func (tl *TradeLog) SharesAt(d time.Time) int64 {
	var n int64
	for _, t := range tl.trades {
		if t.EntryDate.After(d) {
			continue
		}
		if !t.IsOpen() && !t.ExitDate.After(d) {
			continue
		}
		n += t.Shares
	}
	return n
}

func (tl *TradeLog) close(i int, date time.Time, price float64) int64 {
	t := &tl.trades[i]
	t.ExitID = tl.exits
	t.ExitDate = date
	t.ExitPrice = price

	tl.events = append(tl.events, Event{
		Date:   date,
		Action: Sell,
		Symbol: tl.symbol,
		Price:  price,
		Shares: t.Shares,
		Lot:    t.Seq,
	})
	proceeds := t.proceeds()
	tl.flows = append(tl.flows, cashflow{date: date, amount: proceeds})
	tl.cash = tl.cash.Add(proceeds)
	tl.open--
	tl.last = date
	return t.Shares
}

func (tl *TradeLog) logExit(date time.Time, price float64, shares int64) {
	tl.logger.Debugw("SELL",
		"date", date.Format("2006-01-02"),
		"symbol", tl.symbol,
		"shares", shares,
		"price", price,
		"cash", tl.cash.InexactFloat64(),
	)
}

func (tl *TradeLog) check(date time.Time) error {
	if !tl.initialized {
		return fmt.Errorf("%s: %w", tl.symbol, ErrNotInitialized)
	}
	if date.Before(tl.last) {
		return fmt.Errorf("%s: %s before %s: %w", tl.symbol,
			date.Format("2006-01-02"), tl.last.Format("2006-01-02"), ErrNonMonotonicDate)
	}
	return nil
}

func (tl *TradeLog) checkExit(date time.Time, price float64) error {
	if err := tl.check(date); err != nil {
		return err
	}
	if tl.open == 0 {
		return fmt.Errorf("%s: %w", tl.symbol, ErrNoOpenPosition)
	}
	if !validPrice(price) {
		return fmt.Errorf("%s: exit at %v: %w", tl.symbol, price, ErrInvalidPrice)
	}
	return nil
}

func validPrice(p float64) bool {
	return !math.IsNaN(p) && !math.IsInf(p, 0) && p > 0
}
