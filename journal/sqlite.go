package journal

import (
	"database/sql"
	"fmt"
	"math"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteJournal keeps every run in one database so runs can be compared
// later. Rows of a kind come back in the order they were recorded.
type SQLiteJournal struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteJournal{db: db}, nil
}

func (j *SQLiteJournal) RecordRun(r Run) error {
	_, err := j.db.Exec(`
		INSERT INTO runs
		(run_id, created, strategy, symbols, policy, schedule, start_date, end_date, capital, end_balance, merged, config, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Created, r.Strategy, joinSymbols(r.Symbols), r.Policy, r.Schedule,
		formatDate(r.Start), formatDate(r.End), r.Capital, null(r.EndBalance), r.Merged,
		r.Config, strings.Join(r.Notes, "\n"),
	)
	return err
}

func (j *SQLiteJournal) RecordEvents(recs []EventRecord) error {
	return j.insert(`
		INSERT INTO events (run_id, date, action, symbol, price, shares, lot)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, len(recs), func(i int) []any {
		e := recs[i]
		return []any{e.RunID, e.Date, e.Action, e.Symbol, e.Price, e.Shares, e.Lot}
	})
}

func (j *SQLiteJournal) RecordRoundTrips(recs []RoundTripRecord) error {
	return j.insert(`
		INSERT INTO round_trips (run_id, seq, symbol, entry_date, entry_price, exit_date, exit_price, shares, pnl, lots)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, len(recs), func(i int) []any {
		t := recs[i]
		return []any{t.RunID, t.Seq, t.Symbol, t.EntryDate, t.EntryPrice, t.ExitDate,
			null(t.ExitPrice), t.Shares, null(t.PnL), t.Lots}
	})
}

func (j *SQLiteJournal) RecordDaily(recs []DailyRecord) error {
	return j.insert(`
		INSERT INTO daily (run_id, symbol, date, high, low, close, shares, cash, equity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, len(recs), func(i int) []any {
		d := recs[i]
		return []any{d.RunID, d.Symbol, d.Date, null(d.High), null(d.Low), null(d.Close), d.Shares, d.Cash, d.Equity}
	})
}

func (j *SQLiteJournal) RecordMetrics(recs []MetricRecord) error {
	return j.insert(`
		INSERT INTO metrics (run_id, name, metric, value)
		VALUES (?, ?, ?, ?)`, len(recs), func(i int) []any {
		m := recs[i]
		return []any{m.RunID, m.Name, m.Metric, null(m.Value)}
	})
}

// insert runs query once per row inside a single transaction.
func (j *SQLiteJournal) insert(query string, n int, args func(i int) []any) error {
	if n == 0 {
		return nil
	}
	tx, err := j.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(query)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.Exec(args(i)...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// null stores NaN as NULL so it can be read back as NaN.
func null(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
