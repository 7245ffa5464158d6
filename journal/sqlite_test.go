package journal

import (
	"context"
	"database/sql"
	"math"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradebook/dailybal"
	"github.com/rustyeddy/tradebook/stats"
)

func newTestSQLite(t *testing.T) (*SQLiteJournal, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)
	return j, path
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table'`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	require.NoError(t, rows.Err())

	for _, table := range []string{"runs", "events", "round_trips", "daily", "metrics"} {
		assert.True(t, found[table], table)
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j, _ := newTestSQLite(t)
	defer j.Close()

	tl := sampleLog(t)
	run := NewRun("pyramid", []string{"SPY", "QQQ"})
	run.Start, run.End = day(1), day(3)
	run.Capital = 10000
	run.EndBalance = 11050
	run.Merged = true
	run.Notes = []string{"first", "second"}

	require.NoError(t, j.RecordRun(run))
	require.NoError(t, j.RecordEvents(EventRecords(run.RunID, tl.LogRaw())))
	require.NoError(t, j.RecordRoundTrips(RoundTripRecords(run.RunID, tl.Log(true))))
	require.NoError(t, j.RecordDaily(DailyRecords(run.RunID, "SPY", []dailybal.Row{
		{Date: day(1), High: 51, Low: 49, Close: 50, SharesHeld: 100, Cash: 5000, Equity: 10000},
		{Date: day(2), High: 61, Low: 59, Close: 60, Cash: 11000, Equity: 11000},
	})))
	require.NoError(t, j.RecordDaily(DailyRecords(run.RunID, "QQQ", []dailybal.Row{{Date: day(1), Close: 10, Cash: 1, Equity: 1}})))
	m := stats.Metrics{stats.CAGR: 0.2, stats.ProfitFactor: math.NaN()}
	require.NoError(t, j.RecordMetrics(MetricRecords(run.RunID, "pyramid", m)))

	got, err := j.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, run.Symbols, got.Symbols)
	assert.True(t, got.Start.Equal(day(1)))
	assert.True(t, got.Created.Equal(run.Created))
	assert.Equal(t, 11050.0, got.EndBalance)
	assert.True(t, got.Merged)
	assert.Equal(t, run.Notes, got.Notes)

	events, err := j.ListEvents(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, EventRecords(run.RunID, tl.LogRaw()), events)

	trips, err := j.ListRoundTrips(ctx, run.RunID)
	require.NoError(t, err)
	require.Len(t, trips, 2)
	assert.Equal(t, 1000.0, trips[0].PnL)
	assert.True(t, math.IsNaN(trips[1].PnL))
	assert.True(t, math.IsNaN(trips[1].ExitPrice))

	spy, err := j.ListDaily(ctx, run.RunID, "SPY")
	require.NoError(t, err)
	require.Len(t, spy, 2)
	assert.Equal(t, "2024-05-02", spy[1].Date)
	assert.Equal(t, 11000.0, spy[1].Equity)

	all, err := j.ListDaily(ctx, run.RunID, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	metrics, err := j.GetMetrics(ctx, run.RunID, "pyramid")
	require.NoError(t, err)
	assert.Equal(t, 0.2, metrics[stats.CAGR])
	assert.True(t, math.IsNaN(metrics[stats.ProfitFactor]))

	ids, err := j.ListRuns(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{run.RunID}, ids)

	require.NoError(t, j.RecordMetrics(MetricRecords(run.RunID, "portfolio", stats.Metrics{stats.CAGR: 0.1})))
	names, err := j.ListMetricNames(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, []string{"pyramid", "portfolio"}, names)

	rep, err := j.LoadReport(ctx, run.RunID, "SPY")
	require.NoError(t, err)
	assert.Equal(t, run.RunID, rep.Run.RunID)
	assert.Equal(t, []string{"pyramid", "portfolio"}, rep.Summary.Runs)
	assert.Len(t, rep.Trades, 2)
	require.Len(t, rep.Monthly, 1)
	assert.InDelta(t, 0.1, rep.Monthly[0].Total, 1e-9)
	require.Len(t, rep.Holding, 1)
	md, err := RenderMarkdown(rep)
	require.NoError(t, err)
	assert.Contains(t, md, "| cagr | 0.2000 | 0.1000 |")
	assert.Contains(t, md, "## Monthly returns")
	assert.Contains(t, md, "| 2024 | 2024 | 1 | 10.00% |")

	bare, err := j.LoadReport(ctx, run.RunID, "")
	require.NoError(t, err)
	assert.Empty(t, bare.Monthly)
}

func TestSQLiteMissingRun(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	_, err := j.GetRun(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = j.GetMetrics(context.Background(), "nope", "x")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = j.LoadReport(context.Background(), "nope", "portfolio")
	assert.ErrorIs(t, err, ErrRunNotFound)

	assert.NoError(t, j.RecordEvents(nil))
}
