// Package dailybal records one end-of-day snapshot per bar and turns them
// into an equity curve by replaying a ledger.TradeLog.
package dailybal

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/tradebook/ledger"
)

// ErrNonMonotonicDate is shared with the ledger so callers can match either
// with one errors.Is.
var ErrNonMonotonicDate = ledger.ErrNonMonotonicDate

var ErrShareMismatch = errors.New("snapshot shares differ from trade log")

type Snapshot struct {
	Date       time.Time
	High       float64
	Low        float64
	Close      float64
	SharesHeld int64
}

// Row is a snapshot with the cash and equity it implies.
type Row struct {
	Date       time.Time `csv:"date"`
	High       float64   `csv:"high"`
	Low        float64   `csv:"low"`
	Close      float64   `csv:"close"`
	SharesHeld int64     `csv:"shares"`
	Cash       float64   `csv:"cash"`
	Equity     float64   `csv:"equity"`
}

type DailyBalance struct {
	snaps []Snapshot
}

func New() *DailyBalance {
	return &DailyBalance{}
}

// Append records the end-of-day state. Dates must strictly increase.
func (db *DailyBalance) Append(date time.Time, high, low, close float64, sharesHeld int64) error {
	if n := len(db.snaps); n > 0 && !date.After(db.snaps[n-1].Date) {
		return fmt.Errorf("append %s after %s: %w",
			date.Format("2006-01-02"), db.snaps[n-1].Date.Format("2006-01-02"), ErrNonMonotonicDate)
	}
	db.snaps = append(db.snaps, Snapshot{
		Date:       date,
		High:       high,
		Low:        low,
		Close:      close,
		SharesHeld: sharesHeld,
	})
	return nil
}

func (db *DailyBalance) Len() int { return len(db.snaps) }

func (db *DailyBalance) Snapshots() []Snapshot {
	return append([]Snapshot(nil), db.snaps...)
}

// Last returns the newest snapshot, false when empty.
func (db *DailyBalance) Last() (Snapshot, bool) {
	if len(db.snaps) == 0 {
		return Snapshot{}, false
	}
	return db.snaps[len(db.snaps)-1], true
}

// Log materializes the equity curve. Cash for each row is the trade log's
// balance after every movement dated on or before the row.
func (db *DailyBalance) Log(tl *ledger.TradeLog) []Row {
	rows := make([]Row, 0, len(db.snaps))
	for _, s := range db.snaps {
		cash := tl.CashAt(s.Date)
		equity := decimal.NewFromFloat(cash).
			Add(decimal.NewFromFloat(s.Close).Mul(decimal.NewFromInt(s.SharesHeld)))
		rows = append(rows, Row{
			Date:       s.Date,
			High:       s.High,
			Low:        s.Low,
			Close:      s.Close,
			SharesHeld: s.SharesHeld,
			Cash:       cash,
			Equity:     equity.InexactFloat64(),
		})
	}
	return rows
}

// Verify checks that each snapshot agrees with the position the trade log
// reports for that day.
func (db *DailyBalance) Verify(tl *ledger.TradeLog) error {
	for _, s := range db.snaps {
		if got := tl.SharesAt(s.Date); got != s.SharesHeld {
			return fmt.Errorf("%s %s: snapshot %d, log %d: %w",
				tl.Symbol(), s.Date.Format("2006-01-02"), s.SharesHeld, got, ErrShareMismatch)
		}
	}
	return nil
}
