package stats

import (
	"fmt"
	"math"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// NamedMetrics is one column of a summary table.
type NamedMetrics struct {
	Name    string
	Metrics Metrics
}

// Table is a metric by run grid. Values[i][j] is Metrics[i] for Runs[j].
type Table struct {
	Metrics []string
	Runs    []string
	Values  [][]float64
}

// Summary lines up several runs side by side. With no names every metric
// in MetricNames is included. Metrics a run lacks are NaN.
func Summary(runs []NamedMetrics, names ...string) Table {
	if len(names) == 0 {
		names = MetricNames
	}
	t := Table{
		Metrics: append([]string(nil), names...),
		Runs:    make([]string, len(runs)),
		Values:  make([][]float64, len(names)),
	}
	for j, r := range runs {
		t.Runs[j] = r.Name
	}
	for i, name := range names {
		row := make([]float64, len(runs))
		for j, r := range runs {
			v, ok := r.Metrics[name]
			if !ok {
				v = math.NaN()
			}
			row[j] = v
		}
		t.Values[i] = row
	}
	return t
}

// Markdown renders the table as a GitHub style pipe table.
func (t Table) Markdown() string {
	var b strings.Builder
	b.WriteString("| metric |")
	for _, r := range t.Runs {
		fmt.Fprintf(&b, " %s |", r)
	}
	b.WriteString("\n|---|")
	for range t.Runs {
		b.WriteString("---:|")
	}
	b.WriteString("\n")
	for i, name := range t.Metrics {
		fmt.Fprintf(&b, "| %s |", name)
		for _, v := range t.Values[i] {
			fmt.Fprintf(&b, " %s |", Format(name, v))
		}
		b.WriteString("\n")
	}
	return b.String()
}

var currencyMetrics = map[string]bool{
	BeginningBalance: true,
	EndingBalance:    true,
	NetTransfers:     true,
	TotalNetProfit:   true,
	AvgWin:           true,
	AvgLoss:          true,
	LargestWin:       true,
	LargestLoss:      true,
}

var countMetrics = map[string]bool{
	TradingDays:     true,
	TotalRoundTrips: true,
	WinningTrades:   true,
	LosingTrades:    true,
}

// Format renders one metric value for display. NaN prints as "n/a".
func Format(name string, v float64) string {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return "n/a"
	case currencyMetrics[name]:
		return Currency(v)
	case countMetrics[name]:
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.4f", v)
}

// Currency formats v as US dollars, e.g. "$1,234.50".
func Currency(v float64) string {
	cur := *money.New(0, "USD").Currency()
	minor := decimal.NewFromFloat(v).Shift(int32(cur.Fraction)).Round(0)
	return cur.Formatter().Format(minor.IntPart())
}
