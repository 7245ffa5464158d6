package stats

import (
	"math"
	"time"
)

// MonthlyReturn is the return of one calendar month of a curve.
type MonthlyReturn struct {
	Year   int
	Month  time.Month
	Return float64
}

// MonthlyReturns measures each calendar month from the last point of the
// month before, or from the first point for the opening month. Flows are
// taken out first.
func MonthlyReturns(curve []Point) []MonthlyReturn {
	g := growth(curve)
	var out []MonthlyReturn
	base := 0.0
	for i, p := range g {
		if i == 0 {
			base = p.Equity
		}
		if i < len(g)-1 && sameMonth(p.Date, g[i+1].Date) {
			continue
		}
		out = append(out, MonthlyReturn{
			Year:   p.Date.Year(),
			Month:  p.Date.Month(),
			Return: change(base, p.Equity),
		})
		base = p.Equity
	}
	return out
}

// YearRow is one row of a month by year grid. Months without data are NaN.
type YearRow struct {
	Year   int
	Months [12]float64
	Total  float64
}

// ByYear lays monthly returns out one row per year. Total compounds the
// months present.
func ByYear(rets []MonthlyReturn) []YearRow {
	var out []YearRow
	for _, r := range rets {
		if len(out) == 0 || out[len(out)-1].Year != r.Year {
			row := YearRow{Year: r.Year, Total: 1}
			for i := range row.Months {
				row.Months[i] = math.NaN()
			}
			out = append(out, row)
		}
		row := &out[len(out)-1]
		row.Months[r.Month-1] = r.Return
		row.Total *= 1 + r.Return
	}
	for i := range out {
		out[i].Total--
	}
	return out
}

// HoldingPeriod is the annualized return of holding from the start of
// Start through the end of End. Partial first and last years count as
// whole years.
type HoldingPeriod struct {
	Start  int
	End    int
	Years  int
	Return float64
}

// HoldingPeriods returns every start and end year pair of the curve,
// ordered by start then end.
func HoldingPeriods(curve []Point) []HoldingPeriod {
	g := growth(curve)
	if len(g) == 0 {
		return nil
	}

	// opening level of each year and closing level of each year
	type bounds struct {
		year        int
		open, close float64
	}
	var years []bounds
	prev := g[0].Equity
	for i, p := range g {
		y := p.Date.Year()
		if i == 0 || y != years[len(years)-1].year {
			years = append(years, bounds{year: y, open: prev})
		}
		years[len(years)-1].close = p.Equity
		prev = p.Equity
	}

	var out []HoldingPeriod
	for i, s := range years {
		for _, e := range years[i:] {
			n := e.year - s.year + 1
			r := math.NaN()
			if s.open > 0 {
				r = math.Pow(e.close/s.open, 1/float64(n)) - 1
			}
			out = append(out, HoldingPeriod{Start: s.year, End: e.year, Years: n, Return: r})
		}
	}
	return out
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

func change(from, to float64) float64 {
	if from == 0 {
		return math.NaN()
	}
	return to/from - 1
}
