package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
)

// File names written by CSVJournal.
const (
	RunsFile       = "runs.csv"
	EventsFile     = "events.csv"
	RoundTripsFile = "round_trips.csv"
	DailyFile      = "daily.csv"
	MetricsFile    = "metrics.csv"
)

type runRow struct {
	RunID      string  `csv:"run_id"`
	Created    string  `csv:"created"`
	Strategy   string  `csv:"strategy"`
	Symbols    string  `csv:"symbols"`
	Policy     string  `csv:"policy"`
	Schedule   string  `csv:"schedule"`
	Start      string  `csv:"start"`
	End        string  `csv:"end"`
	Capital    float64 `csv:"capital"`
	EndBalance float64 `csv:"end_balance"`
	Merged     bool    `csv:"merged"`
	Notes      string  `csv:"notes"`
}

// CSVJournal writes one CSV file per record kind into a directory. Every
// file gets its header when the journal is opened, so an empty run still
// leaves well formed files behind.
type CSVJournal struct {
	dir   string
	files map[string]*os.File
}

func NewCSV(dir string) (*CSVJournal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	j := &CSVJournal{dir: dir, files: map[string]*os.File{}}
	headers := map[string]any{
		RunsFile:       &[]runRow{},
		EventsFile:     &[]EventRecord{},
		RoundTripsFile: &[]RoundTripRecord{},
		DailyFile:      &[]DailyRecord{},
		MetricsFile:    &[]MetricRecord{},
	}
	for name, empty := range headers {
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			_ = j.Close()
			return nil, err
		}
		j.files[name] = f
		if err := gocsv.Marshal(empty, f); err != nil {
			_ = j.Close()
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	return j, nil
}

func (j *CSVJournal) Dir() string { return j.dir }

func (j *CSVJournal) RecordRun(r Run) error {
	row := []runRow{{
		RunID:      r.RunID,
		Created:    r.Created.Format(time.RFC3339),
		Strategy:   r.Strategy,
		Symbols:    joinSymbols(r.Symbols),
		Policy:     r.Policy,
		Schedule:   r.Schedule,
		Start:      formatDate(r.Start),
		End:        formatDate(r.End),
		Capital:    r.Capital,
		EndBalance: r.EndBalance,
		Merged:     r.Merged,
		Notes:      strings.Join(r.Notes, "; "),
	}}
	return j.write(RunsFile, &row)
}

func (j *CSVJournal) RecordEvents(recs []EventRecord) error {
	return j.write(EventsFile, &recs)
}

func (j *CSVJournal) RecordRoundTrips(recs []RoundTripRecord) error {
	return j.write(RoundTripsFile, &recs)
}

func (j *CSVJournal) RecordDaily(recs []DailyRecord) error {
	return j.write(DailyFile, &recs)
}

func (j *CSVJournal) RecordMetrics(recs []MetricRecord) error {
	return j.write(MetricsFile, &recs)
}

func (j *CSVJournal) write(name string, recs any) error {
	f, ok := j.files[name]
	if !ok {
		return fmt.Errorf("%s: journal closed", name)
	}
	if err := gocsv.MarshalWithoutHeaders(recs, f); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (j *CSVJournal) Close() error {
	var first error
	for name, f := range j.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
		delete(j.files, name)
	}
	return first
}
