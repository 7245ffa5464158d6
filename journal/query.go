package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rustyeddy/tradebook/stats"
)

var ErrRunNotFound = errors.New("run not found")

// GetRun returns the run header for runID.
func (j *SQLiteJournal) GetRun(ctx context.Context, runID string) (Run, error) {
	var (
		r              Run
		symbols, notes string
		start, end     string
		endBalance     *float64
	)
	row := j.db.QueryRowContext(ctx, `
		SELECT run_id, created, strategy, symbols, policy, schedule, start_date, end_date, capital, end_balance, merged, config, notes
		FROM runs
		WHERE run_id = ?`, runID)
	err := row.Scan(&r.RunID, &r.Created, &r.Strategy, &symbols, &r.Policy, &r.Schedule,
		&start, &end, &r.Capital, &endBalance, &r.Merged, &r.Config, &notes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, fmt.Errorf("%q: %w", runID, ErrRunNotFound)
		}
		return Run{}, err
	}
	r.Symbols = splitSymbols(symbols)
	r.Start = parseDate(start)
	r.End = parseDate(end)
	r.EndBalance = nan(endBalance)
	if notes != "" {
		r.Notes = strings.Split(notes, "\n")
	}
	return r, nil
}

// ListRuns returns every run ID, oldest first.
func (j *SQLiteJournal) ListRuns(ctx context.Context) ([]string, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT run_id FROM runs ORDER BY run_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (j *SQLiteJournal) ListEvents(ctx context.Context, runID string) ([]EventRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, date, action, symbol, price, shares, lot
		FROM events
		WHERE run_id = ?
		ORDER BY rowid ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var e EventRecord
		if err := rows.Scan(&e.RunID, &e.Date, &e.Action, &e.Symbol, &e.Price, &e.Shares, &e.Lot); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (j *SQLiteJournal) ListRoundTrips(ctx context.Context, runID string) ([]RoundTripRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, seq, symbol, entry_date, entry_price, exit_date, exit_price, shares, pnl, lots
		FROM round_trips
		WHERE run_id = ?
		ORDER BY rowid ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RoundTripRecord
	for rows.Next() {
		var (
			t              RoundTripRecord
			exitPrice, pnl *float64
		)
		if err := rows.Scan(&t.RunID, &t.Seq, &t.Symbol, &t.EntryDate, &t.EntryPrice,
			&t.ExitDate, &exitPrice, &t.Shares, &pnl, &t.Lots); err != nil {
			return nil, err
		}
		t.ExitPrice = nan(exitPrice)
		t.PnL = nan(pnl)
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListDaily returns the daily rows for one symbol of a run. An empty symbol
// returns every symbol.
func (j *SQLiteJournal) ListDaily(ctx context.Context, runID, symbol string) ([]DailyRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, symbol, date, high, low, close, shares, cash, equity
		FROM daily
		WHERE run_id = ? AND (? = '' OR symbol = ?)
		ORDER BY rowid ASC`, runID, symbol, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DailyRecord
	for rows.Next() {
		var (
			d               DailyRecord
			high, low, last *float64
		)
		if err := rows.Scan(&d.RunID, &d.Symbol, &d.Date, &high, &low, &last, &d.Shares, &d.Cash, &d.Equity); err != nil {
			return nil, err
		}
		d.High, d.Low, d.Close = nan(high), nan(low), nan(last)
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetMetrics returns the metrics recorded under name for a run.
func (j *SQLiteJournal) GetMetrics(ctx context.Context, runID, name string) (stats.Metrics, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT metric, value
		FROM metrics
		WHERE run_id = ? AND name = ?`, runID, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	m := stats.Metrics{}
	for rows.Next() {
		var (
			key string
			v   *float64
		)
		if err := rows.Scan(&key, &v); err != nil {
			return nil, err
		}
		m[key] = nan(v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("metrics %q for %q: %w", name, runID, ErrRunNotFound)
	}
	return m, nil
}

// ListMetricNames returns the metric sets recorded for a run in the order
// they were written.
func (j *SQLiteJournal) ListMetricNames(ctx context.Context, runID string) ([]string, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT name
		FROM metrics
		WHERE run_id = ?
		GROUP BY name
		ORDER BY MIN(rowid) ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// LoadReport rebuilds the report of a recorded run. The period tables come
// from the daily rows recorded under curve, when there are any.
func (j *SQLiteJournal) LoadReport(ctx context.Context, runID, curve string) (Report, error) {
	run, err := j.GetRun(ctx, runID)
	if err != nil {
		return Report{}, err
	}
	names, err := j.ListMetricNames(ctx, runID)
	if err != nil {
		return Report{}, err
	}
	sets := make([]stats.NamedMetrics, 0, len(names))
	for _, name := range names {
		m, err := j.GetMetrics(ctx, runID, name)
		if err != nil {
			return Report{}, err
		}
		sets = append(sets, stats.NamedMetrics{Name: name, Metrics: m})
	}
	trips, err := j.ListRoundTrips(ctx, runID)
	if err != nil {
		return Report{}, err
	}
	rep := Report{Run: run, Summary: stats.Summary(sets), Trades: trips}

	if curve == "" {
		return rep, nil
	}
	daily, err := j.ListDaily(ctx, runID, curve)
	if err != nil {
		return Report{}, err
	}
	if len(daily) > 0 {
		pts := make([]stats.Point, len(daily))
		for i, d := range daily {
			pts[i] = stats.Point{Date: parseDate(d.Date), Equity: d.Equity}
		}
		rep.WithPeriods(pts)
	}
	return rep, nil
}
