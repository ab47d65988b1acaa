package collector

import (
	"bytes"
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energy-monitor/backend/internal/clock"
	"github.com/energy-monitor/backend/internal/config"
	"github.com/energy-monitor/backend/internal/logging"
	"github.com/energy-monitor/backend/internal/models"
	"github.com/energy-monitor/backend/internal/source"
	"github.com/energy-monitor/backend/internal/storage"
	"github.com/energy-monitor/backend/internal/testutil"
)

var start = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func newTestCollector(t *testing.T, up *testutil.Upstream, store storage.Store, sensors []string, clk clock.Clock) (*Collector, *bytes.Buffer) {
	t.Helper()
	client, err := source.NewClient(source.Options{BaseURL: up.URL, Timeout: 2 * time.Second})
	require.NoError(t, err)

	var out bytes.Buffer
	c, err := New(client, store, Options{
		Sensors:      sensors,
		RetentionCap: 2880,
		Interval:     30 * time.Second,
		SensorPause:  500 * time.Millisecond,
		Clock:        clk,
		Logger:       logging.Discard(),
		Out:          &out,
	})
	require.NoError(t, err)
	return c, &out
}

func TestNew_Validation(t *testing.T) {
	store := testutil.NewMockStorage()
	client, err := source.NewClient(source.Options{BaseURL: "http://localhost"})
	require.NoError(t, err)

	_, err = New(client, store, Options{Interval: time.Second})
	assert.Error(t, err, "no sensors")

	_, err = New(client, store, Options{Sensors: []string{"A"}})
	assert.Error(t, err, "no interval")

	_, err = New(nil, store, Options{Sensors: []string{"A"}, Interval: time.Second})
	assert.Error(t, err, "no fetcher")

	c, err := New(client, store, Options{Sensors: []string{"A"}, Interval: time.Second})
	require.NoError(t, err)
	assert.NotEmpty(t, c.RunID())
}

func TestPollSensor_Success(t *testing.T) {
	up := testutil.NewUpstream(t)
	up.SetReading("SM_B3_RECT", testutil.FullReading(42.5, 0.93, 2.4))

	dir := t.TempDir()
	store, err := storage.NewLocalStore(filepath.Join(dir, "datos"), filepath.Join(dir, "historico"))
	require.NoError(t, err)

	c, _ := newTestCollector(t, up, store, []string{"SM_B3_RECT"}, clock.Fake(start))
	stats := c.NewStats()

	require.NoError(t, c.PollSensor(context.Background(), "SM_B3_RECT", stats))

	assert.Equal(t, 1, stats.RequestsAttempted)
	assert.Equal(t, 1, stats.RequestsSucceeded)
	assert.Equal(t, 1, stats.WritesSucceeded)
	assert.Equal(t, 1, stats.HistorySucceeded)

	current, err := store.LoadCurrent("SM_B3_RECT")
	require.NoError(t, err)
	v, ok := current.Value(models.FieldActivePower)
	assert.True(t, ok)
	assert.Equal(t, 42.5, v)

	h, err := store.LoadHistory("SM_B3_RECT")
	require.NoError(t, err)
	require.Len(t, h.Records, 1)
	assert.Equal(t, 42.5, h.Records[0].ActivePower)
	assert.Equal(t, 0.93, h.Records[0].TotalPowerFactor)
	assert.True(t, h.Records[0].Timestamp.Equal(start))
}

func TestPollSensor_MissingFieldsUsePayloadDefaults(t *testing.T) {
	up := testutil.NewUpstream(t)
	up.SetBody("SM_B4_PRIM", `{"ActivePower":{"value":"7.5"}}`)
	store := testutil.NewMockStorage()

	c, _ := newTestCollector(t, up, store, []string{"SM_B4_PRIM"}, clock.Fake(start))
	require.NoError(t, c.PollSensor(context.Background(), "SM_B4_PRIM", c.NewStats()))

	h, err := store.LoadHistory("SM_B4_PRIM")
	require.NoError(t, err)
	require.Len(t, h.Records, 1)
	r := h.Records[0]
	assert.Equal(t, 7.5, r.ActivePower)
	assert.Equal(t, 0.0, r.TotalPowerFactor)
	assert.Equal(t, 60.0, r.Frequency)
}

func TestPollSensor_Failures(t *testing.T) {
	up := testutil.NewUpstream(t)
	up.SetStatus("SM_DOWN", http.StatusInternalServerError)
	up.SetBody("SM_GARBLED", "not json")
	store := testutil.NewMockStorage()

	c, _ := newTestCollector(t, up, store, []string{"SM_DOWN"}, clock.Fake(start))
	stats := c.NewStats()

	assert.Error(t, c.PollSensor(context.Background(), "SM_DOWN", stats))
	assert.Error(t, c.PollSensor(context.Background(), "SM_GARBLED", stats))
	assert.Error(t, c.PollSensor(context.Background(), "SM_UNKNOWN", stats))

	assert.Equal(t, 3, stats.RequestsAttempted)
	assert.Equal(t, 3, stats.RequestsFailed)
	assert.Equal(t, 2, stats.HTTPErrors)
	assert.Equal(t, 1, stats.DecodeErrors)
	assert.Zero(t, stats.WritesAttempted)
	assert.Zero(t, store.HistoryCount(), "failed polls must not create history")
}

func TestPollSensor_WriteFailuresAreCounted(t *testing.T) {
	up := testutil.NewUpstream(t)
	up.SetReading("SM_B3_RECT", testutil.FullReading(1, 0.9, 2))
	store := testutil.NewMockStorage()
	store.FailCurrent = true

	c, _ := newTestCollector(t, up, store, []string{"SM_B3_RECT"}, clock.Fake(start))
	stats := c.NewStats()

	require.NoError(t, c.PollSensor(context.Background(), "SM_B3_RECT", stats))
	assert.Equal(t, 1, stats.WritesAttempted)
	assert.Equal(t, 1, stats.WritesFailed)
	assert.Equal(t, 1, stats.HistorySucceeded, "history is appended even when the current write fails")

	store.FailCurrent = false
	store.FailHistory = true
	assert.Error(t, c.PollSensor(context.Background(), "SM_B3_RECT", stats))
	assert.Equal(t, 1, stats.HistoryFailed)
}

func TestRunCycle(t *testing.T) {
	up := testutil.NewUpstream(t)
	up.SetReading("SM_A", testutil.FullReading(1, 0.9, 2))
	up.SetStatus("SM_B", http.StatusNotFound)
	up.SetReading("SM_C", testutil.FullReading(3, 0.9, 2))
	store := testutil.NewMockStorage()

	clk := clock.Fake(start)
	c, out := newTestCollector(t, up, store, []string{"SM_A", "SM_B", "SM_C"}, clk)
	stats := c.NewStats()

	require.NoError(t, c.RunCycle(context.Background(), stats))

	assert.Equal(t, []string{"SM_A", "SM_B", "SM_C"}, up.Requests())
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond}, clk.Waits(), "pause only between sensors")
	assert.Equal(t, 1, stats.Cycles)
	assert.Equal(t, 2, stats.RequestsSucceeded)
	assert.Equal(t, 1, stats.RequestsFailed)
	assert.True(t, stats.LastRun.Equal(start.Add(time.Second)))
	assert.Contains(t, out.String(), "Statistics")
	assert.Equal(t, 2, store.HistoryCount())
	assert.False(t, stats.AllRequestsFailed())
}

func TestRunCycle_CancelledBeforeStart(t *testing.T) {
	up := testutil.NewUpstream(t)
	store := testutil.NewMockStorage()
	c, _ := newTestCollector(t, up, store, []string{"SM_A"}, clock.Fake(start))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats := c.NewStats()
	assert.ErrorIs(t, c.RunCycle(ctx, stats), context.Canceled)
	assert.Zero(t, stats.Cycles)
	assert.Empty(t, up.Requests())
}

func TestRunCycle_CancelBetweenSensorsFinishesCurrentSensor(t *testing.T) {
	up := testutil.NewUpstream(t)
	for _, id := range []string{"SM_A", "SM_B", "SM_C"} {
		up.SetReading(id, testutil.FullReading(1, 0.9, 2))
	}
	store := testutil.NewMockStorage()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := clock.Fake(start)
	clk.OnAfter = func(time.Duration) { cancel() }
	c, _ := newTestCollector(t, up, store, []string{"SM_A", "SM_B", "SM_C"}, clk)
	stats := c.NewStats()

	err := c.RunCycle(ctx, stats)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, stats.Cycles)
	// SM_A completed; cancellation is observed during the pause before SM_B
	// or at the check right after it, never inside a request.
	assert.LessOrEqual(t, stats.RequestsAttempted, 2)
	assert.Equal(t, stats.RequestsAttempted, stats.RequestsSucceeded)
	assert.Equal(t, stats.RequestsSucceeded, stats.HistorySucceeded)
}

func TestRun_StopsAfterCancellation(t *testing.T) {
	up := testutil.NewUpstream(t)
	up.SetReading("SM_A", testutil.FullReading(5, 0.9, 2))
	up.SetReading("SM_B", testutil.FullReading(6, 0.9, 2))
	store := testutil.NewMockStorage()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := clock.Fake(start)
	intervals := 0
	clk.OnAfter = func(d time.Duration) {
		if d == 30*time.Second {
			intervals++
			if intervals == 3 {
				cancel()
			}
		}
	}
	c, out := newTestCollector(t, up, store, []string{"SM_A", "SM_B"}, clk)

	stats, err := c.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Cycles)
	assert.Equal(t, 6, stats.RequestsAttempted)
	assert.Equal(t, c.RunID(), stats.RunID)
	assert.True(t, stats.StartedAt.Equal(start))

	h, err := store.LoadHistory("SM_A")
	require.NoError(t, err)
	require.Len(t, h.Records, 3)
	assert.Equal(t, 30*time.Second+500*time.Millisecond, h.Records[1].Timestamp.Sub(h.Records[0].Timestamp))

	assert.Contains(t, out.String(), "Final summary")
	assert.Contains(t, out.String(), "Cycles completed:   3")
}

func TestRun_PlainOutputKeepsSummary(t *testing.T) {
	up := testutil.NewUpstream(t)
	up.SetReading("SM_A", testutil.FullReading(5, 0.9, 2))
	store := testutil.NewMockStorage()

	client, err := source.NewClient(source.Options{BaseURL: up.URL, Timeout: 2 * time.Second})
	require.NoError(t, err)

	var out, logs bytes.Buffer
	logger, err := logging.New(&logs, config.LoggingConfig{Level: "info", Format: "json"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clk := clock.Fake(start)
	clk.OnAfter = func(d time.Duration) {
		if d == 30*time.Second {
			cancel()
		}
	}

	c, err := New(client, store, Options{
		Sensors:  []string{"SM_A", "SM_X"},
		Interval: 30 * time.Second,
		Clock:    clk,
		Logger:   logger,
		Out:      &out,
		Plain:    true,
	})
	require.NoError(t, err)

	stats, err := c.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Cycles)

	printed := out.String()
	assert.NotContains(t, printed, "🚀")
	assert.Contains(t, printed, "Final summary")
	assert.Contains(t, printed, "Requests ok:        1")
	assert.Contains(t, printed, "Requests failed:    1")
	assert.Contains(t, printed, "http=1")

	logged := logs.String()
	assert.Contains(t, logged, `"msg":"cycle finished"`)
	assert.Contains(t, logged, `"msg":"collector stopped"`)
	assert.Contains(t, logged, `"requests":{"attempted":2,"ok":1,"failed":1}`)
}

func TestRun_RetentionCap(t *testing.T) {
	up := testutil.NewUpstream(t)
	up.SetReading("SM_A", testutil.FullReading(1, 0.9, 2))
	store := testutil.NewMockStorage()

	base := make([]models.HistoryRecord, 2879)
	for i := range base {
		base[i] = models.HistoryRecord{Timestamp: start.Add(-time.Duration(2879-i) * 30 * time.Second), ActivePower: float64(i)}
	}
	store.AddHistory("SM_A", base...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clk := clock.Fake(start)
	waits := 0
	clk.OnAfter = func(time.Duration) {
		waits++
		if waits == 6 {
			cancel()
		}
	}
	c, _ := newTestCollector(t, up, store, []string{"SM_A"}, clk)

	stats, err := c.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, stats.Cycles)

	h, err := store.LoadHistory("SM_A")
	require.NoError(t, err)
	require.Len(t, h.Records, 2880)
	assert.Equal(t, 5.0, h.Records[0].ActivePower)
	assert.Equal(t, 1.0, h.Records[2879].ActivePower)
}

func TestRunStats_AllRequestsFailed(t *testing.T) {
	up := testutil.NewUpstream(t)
	store := testutil.NewMockStorage()
	c, _ := newTestCollector(t, up, store, []string{"SM_X", "SM_Y"}, clock.Fake(start))
	stats := c.NewStats()

	require.NoError(t, c.RunCycle(context.Background(), stats))
	assert.True(t, stats.AllRequestsFailed())
	assert.Equal(t, 2, stats.HTTPErrors)
}
