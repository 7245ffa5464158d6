// Package portfolio runs several single-symbol sessions against one pool of
// capital and merges their equity curves.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rustyeddy/tradebook/internal/logger"
	"github.com/rustyeddy/tradebook/ledger"
	"github.com/rustyeddy/tradebook/market"
	"github.com/rustyeddy/tradebook/strategy"
)

var (
	ErrDuplicateSymbol = errors.New("duplicate symbol")
	ErrInvalidWeights  = errors.New("invalid weights")
	ErrNoSleeves       = errors.New("portfolio has no symbols")
	ErrAllocated       = errors.New("portfolio already allocated")
)

// Sleeve is the slice of the portfolio trading one symbol.
type Sleeve struct {
	Symbol    string
	Session   *strategy.Session
	Weight    float64
	Allocated float64
}

func (s *Sleeve) Log() *ledger.TradeLog { return s.Session.Log() }

// Transfer is cash moved between the reserve and a sleeve. Positive amounts
// go into the sleeve.
type Transfer struct {
	Symbol string
	Date   time.Time
	Amount float64
}

type reserveEntry struct {
	date   time.Time
	amount decimal.Decimal
}

type Portfolio struct {
	capital decimal.Decimal
	reserve decimal.Decimal
	history []reserveEntry

	policy   WeightPolicy
	schedule Schedule
	logger   *zap.SugaredLogger

	ledgerOpts  []ledger.Option
	sessionOpts []strategy.Option

	sleeves   []*Sleeve
	bySymbol  map[string]*Sleeve
	allocated bool
}

type Option func(*Portfolio)

func WithPolicy(p WeightPolicy) Option {
	return func(pf *Portfolio) {
		if p != nil {
			pf.policy = p
		}
	}
}

func WithSchedule(s Schedule) Option {
	return func(pf *Portfolio) {
		if s != nil {
			pf.schedule = s
		}
	}
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(pf *Portfolio) { pf.logger = logger.OrNop(l) }
}

// WithLedgerOptions is applied to every sleeve's trade log.
func WithLedgerOptions(opts ...ledger.Option) Option {
	return func(pf *Portfolio) { pf.ledgerOpts = append(pf.ledgerOpts, opts...) }
}

// WithSessionOptions is applied to every sleeve's session.
func WithSessionOptions(opts ...strategy.Option) Option {
	return func(pf *Portfolio) { pf.sessionOpts = append(pf.sessionOpts, opts...) }
}

func New(capital float64, opts ...Option) *Portfolio {
	pf := &Portfolio{
		capital:  decimal.NewFromFloat(capital),
		policy:   EqualWeight{},
		schedule: Never{},
		logger:   logger.Nop(),
		bySymbol: map[string]*Sleeve{},
	}
	for _, o := range opts {
		o(pf)
	}
	return pf
}

// Add registers a sleeve for series driven by strat. Sleeves must be added
// before Allocate.
func (pf *Portfolio) Add(series *market.Series, strat strategy.Strategy) error {
	if pf.allocated {
		return ErrAllocated
	}
	if series == nil {
		return market.ErrEmptySeries
	}
	if _, ok := pf.bySymbol[series.Symbol]; ok {
		return fmt.Errorf("%s: %w", series.Symbol, ErrDuplicateSymbol)
	}

	lopts := append([]ledger.Option{ledger.WithLogger(pf.logger)}, pf.ledgerOpts...)
	tl := ledger.New(series.Symbol, lopts...)
	sopts := append([]strategy.Option{strategy.WithLogger(pf.logger)}, pf.sessionOpts...)
	sess, err := strategy.NewSession(series, strat, tl, sopts...)
	if err != nil {
		return err
	}

	sl := &Sleeve{Symbol: series.Symbol, Session: sess}
	pf.sleeves = append(pf.sleeves, sl)
	pf.bySymbol[sl.Symbol] = sl
	return nil
}

// Symbols lists sleeves in the order they were added.
func (pf *Portfolio) Symbols() []string {
	out := make([]string, len(pf.sleeves))
	for i, s := range pf.sleeves {
		out[i] = s.Symbol
	}
	return out
}

func (pf *Portfolio) Sleeve(symbol string) (*Sleeve, bool) {
	s, ok := pf.bySymbol[symbol]
	return s, ok
}

func (pf *Portfolio) Capital() float64 { return pf.capital.InexactFloat64() }
func (pf *Portfolio) Reserve() float64 { return pf.reserve.InexactFloat64() }

// Allocate splits capital across sleeves with the weighting policy and
// initializes each sleeve's trade log. Whatever the weights leave over is
// held as reserve.
func (pf *Portfolio) Allocate() (map[string]float64, error) {
	if pf.allocated {
		return nil, ErrAllocated
	}
	if len(pf.sleeves) == 0 {
		return nil, ErrNoSleeves
	}

	start := pf.startDate()
	symbols := pf.Symbols()
	weights, err := pf.policy.Weights(start, symbols, pf.historyBefore(start))
	if err != nil {
		return nil, fmt.Errorf("%s weights: %w", pf.policy.Name(), err)
	}
	if err := validateWeights(weights, symbols); err != nil {
		return nil, err
	}

	spent := decimal.Zero
	out := make(map[string]float64, len(symbols))
	for _, sl := range pf.sleeves {
		amt := pf.capital.Mul(decimal.NewFromFloat(weights[sl.Symbol])).RoundFloor(2)
		if err := sl.Log().Initialize(amt.InexactFloat64()); err != nil {
			return nil, err
		}
		sl.Weight = weights[sl.Symbol]
		sl.Allocated = amt.InexactFloat64()
		out[sl.Symbol] = sl.Allocated
		spent = spent.Add(amt)
	}
	pf.reserve = pf.capital.Sub(spent)
	pf.history = []reserveEntry{{amount: pf.reserve}}
	pf.allocated = true

	pf.logger.Infow("allocated",
		"policy", pf.policy.Name(),
		"capital", pf.capital.InexactFloat64(),
		"reserve", pf.reserve.InexactFloat64(),
		"sleeves", len(pf.sleeves),
	)
	return out, nil
}

// Run allocates if needed and drives every sleeve to the end of its
// series. Sleeves advance in parallel between rebalance dates; each
// rebalance waits for all of them.
func (pf *Portfolio) Run(ctx context.Context) error {
	if !pf.allocated {
		if _, err := pf.Allocate(); err != nil {
			return err
		}
	}

	dates := pf.dates()
	for i, d := range dates {
		if i == len(dates)-1 || !pf.schedule.Due(i, d, dates[i+1]) {
			continue
		}
		if err := pf.advance(ctx, d); err != nil {
			return err
		}
		if _, err := pf.Rebalance(d); err != nil {
			return err
		}
	}
	if len(dates) == 0 {
		return nil
	}
	return pf.advance(ctx, dates[len(dates)-1])
}

func (pf *Portfolio) advance(ctx context.Context, through time.Time) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make([]error, len(pf.sleeves))
	var wg sync.WaitGroup
	for i, sl := range pf.sleeves {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sl.Session.AdvanceThrough(ctx, through); err != nil {
				errs[i] = err
				cancel()
			}
		}()
	}
	wg.Wait()

	// Prefer the sleeve that failed over the ones it cancelled.
	var first error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if !errors.Is(err, context.Canceled) {
			return err
		}
		if first == nil {
			first = err
		}
	}
	return first
}

// Rebalance moves cash so each sleeve heads toward its new target weight of
// total equity. Over-weight sleeves give up idle cash only; open positions
// are never sold. The freed cash and the reserve fund under-weight sleeves
// in symbol order, and anything left returns to reserve. Sleeves whose
// series has ended take no part.
func (pf *Portfolio) Rebalance(date time.Time) ([]Transfer, error) {
	if !pf.allocated {
		return nil, fmt.Errorf("rebalance before allocate: %w", ledger.ErrNotInitialized)
	}

	// finished sleeves keep their cash and drop out of the weighting
	var active []*Sleeve
	var symbols []string
	for _, sl := range pf.sleeves {
		if sl.Session.Done() {
			continue
		}
		active = append(active, sl)
		symbols = append(symbols, sl.Symbol)
	}
	if len(active) == 0 {
		return nil, nil
	}

	weights, err := pf.policy.Weights(date, symbols, pf.historyThrough(date))
	if err != nil {
		return nil, fmt.Errorf("%s weights: %w", pf.policy.Name(), err)
	}
	if err := validateWeights(weights, symbols); err != nil {
		return nil, err
	}

	equity := make(map[string]decimal.Decimal, len(active))
	total := pf.reserve
	for _, sl := range active {
		e := pf.sleeveEquity(sl, date)
		equity[sl.Symbol] = e
		total = total.Add(e)
	}

	var transfers []Transfer
	pool := pf.reserve
	want := make(map[string]decimal.Decimal, len(active))
	for _, sl := range active {
		target := total.Mul(decimal.NewFromFloat(weights[sl.Symbol]))
		diff := target.Sub(equity[sl.Symbol])
		if diff.IsPositive() {
			want[sl.Symbol] = diff
			continue
		}
		release := decimal.Min(diff.Neg(), decimal.NewFromFloat(sl.Log().Cash())).RoundFloor(2)
		if !release.IsPositive() {
			continue
		}
		if err := sl.Log().Transfer(date, release.Neg().InexactFloat64()); err != nil {
			return transfers, err
		}
		pool = pool.Add(release)
		transfers = append(transfers, Transfer{Symbol: sl.Symbol, Date: date, Amount: release.Neg().InexactFloat64()})
	}

	for _, sl := range active {
		need, ok := want[sl.Symbol]
		if !ok {
			continue
		}
		fund := decimal.Min(need, pool).RoundFloor(2)
		if !fund.IsPositive() {
			continue
		}
		if err := sl.Log().Transfer(date, fund.InexactFloat64()); err != nil {
			return transfers, err
		}
		pool = pool.Sub(fund)
		transfers = append(transfers, Transfer{Symbol: sl.Symbol, Date: date, Amount: fund.InexactFloat64()})
	}

	for _, sl := range active {
		sl.Weight = weights[sl.Symbol]
	}
	pf.reserve = pool
	pf.history = append(pf.history, reserveEntry{date: date, amount: pool})

	pf.logger.Infow("rebalanced",
		"date", date.Format(market.DateLayout),
		"equity", total.InexactFloat64(),
		"reserve", pool.InexactFloat64(),
		"transfers", len(transfers),
	)
	return transfers, nil
}

// sleeveEquity marks a sleeve to the last close on or before date.
func (pf *Portfolio) sleeveEquity(sl *Sleeve, date time.Time) decimal.Decimal {
	tl := sl.Log()
	e := decimal.NewFromFloat(tl.CashAt(date))
	shares := tl.SharesAt(date)
	if shares == 0 {
		return e
	}
	s := sl.Session.Series()
	if i := s.LastIndexThrough(date); i >= 0 {
		e = e.Add(decimal.NewFromFloat(s.Bar(i).Close).Mul(decimal.NewFromInt(shares)))
	}
	return e
}

func (pf *Portfolio) reserveAt(date time.Time) decimal.Decimal {
	r := decimal.Zero
	for _, h := range pf.history {
		if h.date.After(date) {
			break
		}
		r = h.amount
	}
	return r
}

// dates is the sorted union of every sleeve's trading dates.
func (pf *Portfolio) dates() []time.Time {
	seen := map[time.Time]bool{}
	var out []time.Time
	for _, sl := range pf.sleeves {
		for _, d := range sl.Session.Series().Dates() {
			if !seen[d] {
				seen[d] = true
				out = append(out, d)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func (pf *Portfolio) startDate() time.Time {
	var start time.Time
	for i, sl := range pf.sleeves {
		d := sl.Session.Series().First().Date
		if i == 0 || d.Before(start) {
			start = d
		}
	}
	return start
}

func (pf *Portfolio) historyThrough(date time.Time) History {
	h := History{}
	for _, sl := range pf.sleeves {
		s := sl.Session.Series()
		n := s.LastIndexThrough(date) + 1
		if n == 0 {
			continue
		}
		view, err := s.Truncate(n)
		if err != nil {
			continue
		}
		h[sl.Symbol] = view
	}
	return h
}

func (pf *Portfolio) historyBefore(date time.Time) History {
	return pf.historyThrough(date.Add(-time.Nanosecond))
}
