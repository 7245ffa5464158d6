package journal

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradebook/dailybal"
	"github.com/rustyeddy/tradebook/internal/id"
	"github.com/rustyeddy/tradebook/ledger"
	"github.com/rustyeddy/tradebook/stats"
)

func day(d int) time.Time {
	return time.Date(2024, 5, d, 0, 0, 0, 0, time.UTC)
}

// sampleLog is one closed round trip and one open lot.
func sampleLog(t *testing.T) *ledger.TradeLog {
	t.Helper()
	tl := ledger.New("SPY")
	require.NoError(t, tl.Initialize(10000))
	require.NoError(t, tl.EnterTrade(day(1), 50, 100))
	_, err := tl.ExitTrade(day(2), 60)
	require.NoError(t, err)
	require.NoError(t, tl.EnterTrade(day(3), 55, 10))
	return tl
}

func TestNewRun(t *testing.T) {
	t.Parallel()

	r := NewRun("pyramid", []string{"SPY", "QQQ"})
	assert.Len(t, r.RunID, 26)
	assert.Equal(t, []string{"SPY", "QQQ"}, r.Symbols)

	ts, err := id.Time(r.RunID)
	require.NoError(t, err)
	assert.WithinDuration(t, r.Created, ts, time.Millisecond)
}

func TestRecordConversions(t *testing.T) {
	t.Parallel()

	tl := sampleLog(t)

	events := EventRecords("R1", tl.LogRaw())
	require.Len(t, events, 3)
	assert.Equal(t, EventRecord{RunID: "R1", Date: "2024-05-02", Action: "sell", Symbol: "SPY", Price: 60, Shares: 100, Lot: 1}, events[1])

	trips := RoundTripRecords("R1", tl.Log(true))
	require.Len(t, trips, 2)
	assert.Equal(t, 1, trips[0].Seq)
	assert.Equal(t, 1000.0, trips[0].PnL)
	assert.Equal(t, "", trips[1].ExitDate)
	assert.True(t, math.IsNaN(trips[1].PnL))

	daily := DailyRecords("R1", "SPY", []dailybal.Row{{Date: day(1), Close: 50, SharesHeld: 100, Cash: 5000, Equity: 10000}})
	assert.Equal(t, DailyRecord{RunID: "R1", Symbol: "SPY", Date: "2024-05-01", Close: 50, Shares: 100, Cash: 5000, Equity: 10000}, daily[0])

	metrics := MetricRecords("R1", "pyramid", stats.Metrics{stats.SharpeRatio: 1.5, stats.CAGR: 0.1, "custom": 3})
	require.Len(t, metrics, 3)
	assert.Equal(t, stats.CAGR, metrics[0].Metric)
	assert.Equal(t, stats.SharpeRatio, metrics[1].Metric)
	assert.Equal(t, "custom", metrics[2].Metric)
}
