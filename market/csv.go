package market

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
)

var priceColumns = []string{"open", "high", "low", "close"}

// LoadCSVFile reads a daily series from path. See LoadCSV.
func LoadCSVFile(symbol, path string) (*Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return LoadCSV(symbol, f)
}

// LoadCSV reads rows of
//
//	date,open,high,low,close[,volume][,column...]
//
// Header names are case-insensitive. date is YYYY-MM-DD or RFC3339. Any
// extra column is parsed as a float and attached to the bar; blank and
// "NaN" cells become NaN so warm-up periods survive a round trip.
func LoadCSV(symbol string, r io.Reader) (*Series, error) {
	rows, err := gocsv.CSVToMaps(r)
	if err != nil {
		return nil, fmt.Errorf("%s: read csv: %w", symbol, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrEmptySeries)
	}

	bars := make([]Bar, 0, len(rows))
	for i, raw := range rows {
		row := make(map[string]string, len(raw))
		for k, v := range raw {
			row[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
		}

		b, err := parseBar(row)
		if err != nil {
			// +2: header line plus 1-based numbering
			return nil, fmt.Errorf("%s: line %d: %w", symbol, i+2, err)
		}
		bars = append(bars, b)
	}

	return NewSeries(symbol, bars)
}

func parseBar(row map[string]string) (Bar, error) {
	ds, ok := row["date"]
	if !ok || ds == "" {
		return Bar{}, fmt.Errorf("missing date")
	}
	d, err := parseDate(ds)
	if err != nil {
		return Bar{}, err
	}

	b := Bar{Date: d}
	prices := make([]float64, len(priceColumns))
	for i, col := range priceColumns {
		s, ok := row[col]
		if !ok {
			return Bar{}, fmt.Errorf("missing %s column", col)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Bar{}, fmt.Errorf("bad %s %q: %w", col, s, err)
		}
		prices[i] = v
	}
	b.Open, b.High, b.Low, b.Close = prices[0], prices[1], prices[2], prices[3]
	if err := b.Validate(); err != nil {
		return Bar{}, err
	}

	if s := row["volume"]; s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Bar{}, fmt.Errorf("bad volume %q: %w", s, err)
		}
		b.Volume = v
	}

	// stable column order keeps error messages deterministic
	var extra []string
	for k := range row {
		switch k {
		case "date", "open", "high", "low", "close", "volume":
			continue
		}
		extra = append(extra, k)
	}
	sort.Strings(extra)
	for _, k := range extra {
		v, err := parseCell(row[k])
		if err != nil {
			return Bar{}, fmt.Errorf("bad %s %q: %w", k, row[k], err)
		}
		b.Set(k, v)
	}
	return b, nil
}

func parseCell(s string) (float64, error) {
	if s == "" || strings.EqualFold(s, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad date %q: %w", s, err)
	}
	return t.UTC(), nil
}
