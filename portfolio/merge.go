package portfolio

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/tradebook/dailybal"
)

// Row is one date of the combined equity curve. Sleeves holds each
// symbol's row. A symbol with no bar on Date carries its last row forward,
// keeping that row's date and price with cash and equity restated at Date.
type Row struct {
	Date    time.Time
	Cash    float64
	Reserve float64
	Equity  float64
	Sleeves map[string]dailybal.Row
}

// MergedDailyBalance combines every sleeve's daily balance over the union
// of their dates. Equity is the sum of sleeve equity plus the reserve.
func (pf *Portfolio) MergedDailyBalance() []Row {
	logs := make([][]dailybal.Row, len(pf.sleeves))
	for i, sl := range pf.sleeves {
		logs[i] = sl.Session.Daily().Log(sl.Log())
	}

	var out []Row
	pos := make([]int, len(pf.sleeves))
	for _, d := range pf.dates() {
		reserve := pf.reserveAt(d)
		cash, equity := reserve, reserve
		row := Row{Date: d, Sleeves: make(map[string]dailybal.Row, len(pf.sleeves))}

		for i, sl := range pf.sleeves {
			rows := logs[i]
			for pos[i] < len(rows) && !rows[pos[i]].Date.After(d) {
				pos[i]++
			}
			tl := sl.Log()
			c := decimal.NewFromFloat(tl.CashAt(d))
			if pos[i] == 0 {
				// not trading yet
				cash = cash.Add(c)
				equity = equity.Add(c)
				continue
			}

			r := rows[pos[i]-1]
			if !r.Date.Equal(d) {
				// carried forward; cash may have moved since
				r.Cash = c.InexactFloat64()
				r.Equity = c.Add(decimal.NewFromFloat(r.Close).Mul(decimal.NewFromInt(r.SharesHeld))).InexactFloat64()
			}
			row.Sleeves[sl.Symbol] = r
			cash = cash.Add(decimal.NewFromFloat(r.Cash))
			equity = equity.Add(decimal.NewFromFloat(r.Equity))
		}

		row.Cash = cash.InexactFloat64()
		row.Reserve = reserve.InexactFloat64()
		row.Equity = equity.InexactFloat64()
		out = append(out, row)
	}
	return out
}
