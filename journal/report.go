package journal

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/rustyeddy/tradebook/market"
	"github.com/rustyeddy/tradebook/stats"
)

// Report is everything the markdown run report shows. Monthly and Holding
// describe the combined equity curve and are left out when empty.
type Report struct {
	Run     Run
	Summary stats.Table
	Trades  []RoundTripRecord
	Monthly []stats.YearRow
	Holding []stats.HoldingPeriod
}

// WithPeriods fills the monthly and holding period tables from curve.
func (r *Report) WithPeriods(curve []stats.Point) {
	r.Monthly = stats.ByYear(stats.MonthlyReturns(curve))
	r.Holding = stats.HoldingPeriods(curve)
}

var reportFuncs = template.FuncMap{
	"money": stats.Currency,
	"date": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Format(market.DateLayout)
	},
	"price": func(v float64) string {
		if math.IsNaN(v) {
			return "-"
		}
		return stats.Format("", v)
	},
	"pnl": func(v float64) string {
		if math.IsNaN(v) {
			return "open"
		}
		return stats.Currency(v)
	},
	"pct": func(v float64) string {
		if math.IsNaN(v) {
			return "-"
		}
		return fmt.Sprintf("%.2f%%", v*100)
	},
	"orDefault": orDefault,
	"join":      strings.Join,
}

var reportTemplate = template.Must(template.New("report").Funcs(reportFuncs).Parse(ReportTemplate))

// RenderMarkdown renders the run report.
func RenderMarkdown(rep Report) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, rep); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// WriteMarkdown renders the report to path.
func WriteMarkdown(path string, rep Report) error {
	s, err := RenderMarkdown(rep)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(s), 0o644)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

const ReportTemplate = `# Backtest: {{orDefault .Run.Strategy "(strategy?)"}} {{join .Run.Symbols ", "}}

| Property | Value |
|---|---|
| Run ID | {{orDefault .Run.RunID "(run-id?)"}} |
| Created | {{.Run.Created.Format "2006-01-02 15:04"}} |
| Period | {{date .Run.Start}} to {{date .Run.End}} |
| Weighting | {{orDefault .Run.Policy "equal"}} |
| Rebalance | {{orDefault .Run.Schedule "never"}} |
| Capital | {{money .Run.Capital}} |
| Ending balance | {{money .Run.EndBalance}} |

## Performance

{{.Summary.Markdown}}
{{- if .Trades}}
## Trades{{if .Run.Merged}} (merged){{end}}

| # | Symbol | Entry | Entry price | Exit | Exit price | Shares | P/L |
|---:|---|---|---:|---|---:|---:|---:|
{{- range .Trades}}
| {{.Seq}} | {{.Symbol}} | {{.EntryDate}} | {{price .EntryPrice}} | {{orDefault .ExitDate "-"}} | {{price .ExitPrice}} | {{.Shares}} | {{pnl .PnL}} |
{{- end}}
{{- end}}
{{- if .Monthly}}

## Monthly returns

| Year | Jan | Feb | Mar | Apr | May | Jun | Jul | Aug | Sep | Oct | Nov | Dec | Year |
|---|---:|---:|---:|---:|---:|---:|---:|---:|---:|---:|---:|---:|---:|
{{- range .Monthly}}
| {{.Year}} |{{range .Months}} {{pct .}} |{{end}} {{pct .Total}} |
{{- end}}
{{- end}}
{{- if .Holding}}

## Holding periods

| From | Through | Years | Annualized |
|---|---|---:|---:|
{{- range .Holding}}
| {{.Start}} | {{.End}} | {{.Years}} | {{pct .Return}} |
{{- end}}
{{- end}}
{{- if .Run.Notes}}

## Notes
{{- range .Run.Notes}}
- {{.}}
{{- end}}
{{- end}}
`
