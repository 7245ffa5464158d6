package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/tradebook/dailybal"
	"github.com/rustyeddy/tradebook/internal/logger"
	"github.com/rustyeddy/tradebook/ledger"
	"github.com/rustyeddy/tradebook/market"
)

// DayError names the bar a run stopped on.
type DayError struct {
	Symbol string
	Date   time.Time
	Index  int
	Err    error
}

func (e *DayError) Error() string {
	return fmt.Sprintf("%s %s (day %d): %v", e.Symbol, e.Date.Format(market.DateLayout), e.Index, e.Err)
}

func (e *DayError) Unwrap() error { return e.Err }

// Session pairs one strategy with one trade log and daily balance over one
// series. It is not safe for concurrent use.
type Session struct {
	series *market.Series
	strat  Strategy
	log    *ledger.TradeLog
	daily  *dailybal.DailyBalance
	logger *zap.SugaredLogger

	start, end time.Time
	next       int
}

type Option func(*Session)

func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Session) { s.logger = logger.OrNop(l) }
}

// WithPeriod limits trading to bars dated within [start, end]. Indicators
// are still prepared over the full series so warm-up uses earlier bars.
func WithPeriod(start, end time.Time) Option {
	return func(s *Session) { s.start, s.end = start, end }
}

// NewSession prepares strat over series and positions the session before
// the first bar of the trading period. The trade log may be initialized
// later but must be before the first Step.
func NewSession(series *market.Series, strat Strategy, tl *ledger.TradeLog, opts ...Option) (*Session, error) {
	if series == nil {
		return nil, market.ErrEmptySeries
	}
	if strat == nil {
		return nil, errors.New("strategy is required")
	}
	if tl == nil {
		return nil, errors.New("trade log is required")
	}

	s := &Session{
		strat:  strat,
		log:    tl,
		daily:  dailybal.New(),
		logger: logger.Nop(),
	}
	for _, o := range opts {
		o(s)
	}

	if err := strat.Prepare(series); err != nil {
		return nil, fmt.Errorf("%s: prepare %s: %w", series.Symbol, strat.Name(), err)
	}
	period, err := series.Between(s.start, s.end)
	if err != nil {
		return nil, err
	}
	s.series = period
	s.logger = s.logger.With("symbol", series.Symbol, "strategy", strat.Name())
	return s, nil
}

func (s *Session) Symbol() string                { return s.series.Symbol }
func (s *Session) Series() *market.Series        { return s.series }
func (s *Session) Strategy() Strategy            { return s.strat }
func (s *Session) Log() *ledger.TradeLog         { return s.log }
func (s *Session) Daily() *dailybal.DailyBalance { return s.daily }

// Done reports whether every bar has been processed.
func (s *Session) Done() bool { return s.next >= s.series.Len() }

// NextDate is the date of the bar the next Step will process.
func (s *Session) NextDate() (time.Time, bool) {
	if s.Done() {
		return time.Time{}, false
	}
	return s.series.Bar(s.next).Date, true
}

// Step runs the strategy on the next bar and records exactly one daily
// snapshot for it.
func (s *Session) Step() error {
	if s.Done() {
		return nil
	}
	i := s.next
	bar := s.series.Bar(i)
	fail := func(err error) error {
		return &DayError{Symbol: s.series.Symbol, Date: bar.Date, Index: i, Err: err}
	}

	if !s.log.Initialized() {
		return fail(ledger.ErrNotInitialized)
	}

	day := Day{
		Index:  i,
		Bar:    bar,
		Symbol: s.series.Symbol,
		Last:   i == s.series.Len()-1,
		Log:    s.log,
		Logger: s.logger,
	}
	if err := s.strat.OnDay(day); err != nil {
		return fail(err)
	}
	if err := s.daily.Append(bar.Date, bar.High, bar.Low, bar.Close, s.log.Shares()); err != nil {
		return fail(err)
	}
	s.next++
	return nil
}

// AdvanceThrough steps every remaining bar dated on or before date.
func (s *Session) AdvanceThrough(ctx context.Context, date time.Time) error {
	for !s.Done() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.series.Bar(s.next).Date.After(date) {
			return nil
		}
		if err := s.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Run steps to the end of the series.
func (s *Session) Run(ctx context.Context) error {
	if err := s.AdvanceThrough(ctx, s.series.Last().Date); err != nil {
		return err
	}
	s.logger.Debugw("session complete",
		"days", s.daily.Len(),
		"cash", s.log.Cash(),
		"round_trips", len(s.log.Log(true)),
	)
	return nil
}
