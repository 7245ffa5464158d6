// Package journal persists the results of a run.
package journal

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rustyeddy/tradebook/dailybal"
	"github.com/rustyeddy/tradebook/internal/id"
	"github.com/rustyeddy/tradebook/ledger"
	"github.com/rustyeddy/tradebook/market"
	"github.com/rustyeddy/tradebook/stats"
)

// Run describes one backtest invocation.
type Run struct {
	RunID    string
	Created  time.Time
	Strategy string
	Symbols  []string
	Policy   string
	Schedule string

	Start time.Time
	End   time.Time

	Capital    float64
	EndBalance float64
	Merged     bool

	Config string // the configuration the run was started with
	Notes  []string
}

// NewRun stamps a fresh run ID.
func NewRun(strategy string, symbols []string) Run {
	now := time.Now().UTC()
	return Run{
		RunID:    id.NewAt(now),
		Created:  now,
		Strategy: strategy,
		Symbols:  append([]string(nil), symbols...),
	}
}

// EventRecord is one raw fill.
type EventRecord struct {
	RunID  string  `csv:"run_id"`
	Date   string  `csv:"date"`
	Action string  `csv:"action"`
	Symbol string  `csv:"symbol"`
	Price  float64 `csv:"price"`
	Shares int64   `csv:"shares"`
	Lot    int     `csv:"lot"`
}

// RoundTripRecord is one row of the trade log. ExitDate is empty and
// ExitPrice and PnL are NaN while the position is open.
type RoundTripRecord struct {
	RunID      string  `csv:"run_id"`
	Seq        int     `csv:"seq"`
	Symbol     string  `csv:"symbol"`
	EntryDate  string  `csv:"entry_date"`
	EntryPrice float64 `csv:"entry_price"`
	ExitDate   string  `csv:"exit_date"`
	ExitPrice  float64 `csv:"exit_price"`
	Shares     int64   `csv:"shares"`
	PnL        float64 `csv:"pnl"`
	Lots       int     `csv:"lots"`
}

type DailyRecord struct {
	RunID  string  `csv:"run_id"`
	Symbol string  `csv:"symbol"`
	Date   string  `csv:"date"`
	High   float64 `csv:"high"`
	Low    float64 `csv:"low"`
	Close  float64 `csv:"close"`
	Shares int64   `csv:"shares"`
	Cash   float64 `csv:"cash"`
	Equity float64 `csv:"equity"`
}

type MetricRecord struct {
	RunID  string  `csv:"run_id"`
	Name   string  `csv:"name"`
	Metric string  `csv:"metric"`
	Value  float64 `csv:"value"`
}

type Journal interface {
	RecordRun(Run) error
	RecordEvents([]EventRecord) error
	RecordRoundTrips([]RoundTripRecord) error
	RecordDaily([]DailyRecord) error
	RecordMetrics([]MetricRecord) error
	Close() error
}

func EventRecords(runID string, events []ledger.Event) []EventRecord {
	out := make([]EventRecord, len(events))
	for i, e := range events {
		out[i] = EventRecord{
			RunID:  runID,
			Date:   e.Date.Format(market.DateLayout),
			Action: string(e.Action),
			Symbol: e.Symbol,
			Price:  e.Price,
			Shares: e.Shares,
			Lot:    e.Lot,
		}
	}
	return out
}

// RoundTripRecords numbers trips from 1 in the order given.
func RoundTripRecords(runID string, trips []ledger.RoundTrip) []RoundTripRecord {
	out := make([]RoundTripRecord, len(trips))
	for i, t := range trips {
		out[i] = RoundTripRecord{
			RunID:      runID,
			Seq:        i + 1,
			Symbol:     t.Symbol,
			EntryDate:  t.EntryDate.Format(market.DateLayout),
			EntryPrice: t.EntryPrice,
			ExitDate:   formatDate(t.ExitDate),
			ExitPrice:  t.ExitPrice,
			Shares:     t.Shares,
			PnL:        t.PnL,
			Lots:       t.Lots,
		}
	}
	return out
}

func DailyRecords(runID, symbol string, rows []dailybal.Row) []DailyRecord {
	out := make([]DailyRecord, len(rows))
	for i, r := range rows {
		out[i] = DailyRecord{
			RunID:  runID,
			Symbol: symbol,
			Date:   r.Date.Format(market.DateLayout),
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Shares: r.SharesHeld,
			Cash:   r.Cash,
			Equity: r.Equity,
		}
	}
	return out
}

// MetricRecords flattens m in the standard metric order, followed by any
// extra keys sorted by name.
func MetricRecords(runID, name string, m stats.Metrics) []MetricRecord {
	out := make([]MetricRecord, 0, len(m))
	seen := map[string]bool{}
	for _, k := range stats.MetricNames {
		if v, ok := m[k]; ok {
			out = append(out, MetricRecord{RunID: runID, Name: name, Metric: k, Value: v})
			seen[k] = true
		}
	}
	var extra []string
	for k := range m {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		out = append(out, MetricRecord{RunID: runID, Name: name, Metric: k, Value: m[k]})
	}
	return out
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(market.DateLayout)
}

func parseDate(s string) time.Time {
	t, err := time.Parse(market.DateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func joinSymbols(s []string) string { return strings.Join(s, ",") }

func splitSymbols(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// nan turns a NULL column back into NaN.
func nan(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
