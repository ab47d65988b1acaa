// Package collector runs the polling loop: fetch every sensor, merge the
// reading into its current-state file and append a record to its history.
package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/energy-monitor/backend/internal/clock"
	"github.com/energy-monitor/backend/internal/models"
	"github.com/energy-monitor/backend/internal/source"
	"github.com/energy-monitor/backend/internal/storage"
)

const rule = 70

// Options configures a Collector.
type Options struct {
	Sensors      []string
	RetentionCap int
	Interval     time.Duration
	SensorPause  time.Duration

	// SourceURL is only shown in the startup banner.
	SourceURL string

	Clock  clock.Clock
	Logger *slog.Logger
	// Out receives the console banners and cycle statistics.
	Out io.Writer
	// Plain drops the decorated startup banner, for output that is not a
	// terminal. Statistics and the final summary are always written.
	Plain bool
}

// Collector polls the configured sensors sequentially.
type Collector struct {
	fetcher source.Fetcher
	store   storage.Store

	sensors  []string
	cap      int
	interval time.Duration
	pause    time.Duration
	srcURL   string

	clock  clock.Clock
	logger *slog.Logger
	out    io.Writer
	plain  bool
	runID  string
}

// New creates a Collector.
func New(fetcher source.Fetcher, store storage.Store, opts Options) (*Collector, error) {
	if fetcher == nil || store == nil {
		return nil, errors.New("collector needs a fetcher and a store")
	}
	if len(opts.Sensors) == 0 {
		return nil, errors.New("no sensors configured")
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("invalid interval: %s", opts.Interval)
	}
	if opts.RetentionCap <= 0 {
		opts.RetentionCap = models.DefaultRetentionCap
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}

	runID := uuid.NewString()
	return &Collector{
		fetcher:  fetcher,
		store:    store,
		sensors:  append([]string(nil), opts.Sensors...),
		cap:      opts.RetentionCap,
		interval: opts.Interval,
		pause:    opts.SensorPause,
		srcURL:   opts.SourceURL,
		clock:    opts.Clock,
		logger:   opts.Logger.With("run", runID),
		out:      opts.Out,
		plain:    opts.Plain,
		runID:    runID,
	}, nil
}

// RunID identifies this collector process in logs and statistics.
func (c *Collector) RunID() string { return c.runID }

// NewStats returns zeroed counters stamped with this run.
func (c *Collector) NewStats() *models.RunStats {
	return models.NewRunStats(c.runID, c.clock.Now())
}

// PollSensor fetches one sensor, merges the reading into its current file
// and appends a history record. Every failure is counted in stats and
// logged; the returned error is only informational.
//
// The request is not cancelled by ctx. It is bounded by the client timeout
// so a shutdown never interrupts a sensor half way.
func (c *Collector) PollSensor(ctx context.Context, sensorID string, stats *models.RunStats) error {
	log := c.logger.With("sensor", sensorID)
	stats.RequestsAttempted++

	payload, err := c.fetcher.Fetch(context.WithoutCancel(ctx), sensorID)
	if err != nil {
		outcome := source.Classify(err)
		countFailure(stats, outcome)
		log.Warn(outcome.Symbol()+" GET failed", "outcome", outcome.String(), "error", err)
		return err
	}
	stats.RequestsSucceeded++
	log.Info(source.OutcomeOK.Symbol()+" GET ok", "fields", len(payload))

	short := storage.ShortID(sensorID)
	stats.WritesAttempted++
	if _, err := c.store.MergeCurrent(sensorID, payload); err != nil {
		stats.WritesFailed++
		log.Error("💾 current state write failed", "file", short, "error", err)
	} else {
		stats.WritesSucceeded++
		log.Debug("current state updated", "file", short)
	}

	rec, missing := models.RecordFromPayload(payload, c.clock.Now())
	if len(missing) > 0 {
		log.Warn("⚠️ fields missing, defaults applied", "fields", strings.Join(missing, ","))
	}

	h, err := c.store.AppendHistory(sensorID, rec, c.cap)
	if err != nil {
		stats.HistoryFailed++
		log.Error("💾 history write failed", "file", short, "error", err)
		return fmt.Errorf("appending history for %s: %w", sensorID, err)
	}
	stats.HistorySucceeded++
	log.Info("📈 history updated", "records", len(h.Records))

	return nil
}

func countFailure(stats *models.RunStats, outcome source.Outcome) {
	stats.RequestsFailed++
	switch outcome {
	case source.OutcomeHTTPStatus:
		stats.HTTPErrors++
	case source.OutcomeTimeout:
		stats.Timeouts++
	case source.OutcomeConnection:
		stats.ConnectionErrors++
	case source.OutcomeDecode:
		stats.DecodeErrors++
	default:
		stats.UnexpectedErrors++
	}
}

// RunCycle polls every sensor once, pausing between sensors. It returns
// ctx.Err() when cancelled before the cycle completes; individual sensor
// failures never abort the cycle.
func (c *Collector) RunCycle(ctx context.Context, stats *models.RunStats) error {
	started := c.clock.Now()
	c.printf("\n%s\n", strings.Repeat("=", rule))
	c.printf("🔄 Cycle %d started %s\n", stats.Cycles+1, started.Format("2006-01-02 15:04:05"))
	c.printf("%s\n", strings.Repeat("=", rule))

	for i, id := range c.sensors {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 && c.pause > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.clock.After(c.pause):
			}
		}
		_ = c.PollSensor(ctx, id, stats)
	}

	stats.Cycles++
	stats.LastRun = c.clock.Now()
	c.logStats("cycle finished", stats)
	c.printStats(stats)
	return nil
}

// Run repeats RunCycle every interval until ctx is cancelled, then prints
// the final summary and returns the counters.
func (c *Collector) Run(ctx context.Context) (*models.RunStats, error) {
	stats := c.NewStats()
	c.printBanner()

	c.logger.Info("collector started", "sensors", len(c.sensors), "interval", c.interval)

loop:
	for {
		if err := c.RunCycle(ctx, stats); err != nil {
			break
		}
		select {
		case <-ctx.Done():
			break loop
		case <-c.clock.After(c.interval):
		}
	}

	c.logStats("collector stopped", stats)
	c.printSummary(stats)
	return stats, nil
}

func (c *Collector) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

// logStats records the counters so they survive redirected output.
func (c *Collector) logStats(msg string, stats *models.RunStats) {
	c.logger.Info(msg,
		"cycles", stats.Cycles,
		slog.Group("requests",
			"attempted", stats.RequestsAttempted,
			"ok", stats.RequestsSucceeded,
			"failed", stats.RequestsFailed),
		slog.Group("failures",
			"http", stats.HTTPErrors,
			"timeout", stats.Timeouts,
			"connection", stats.ConnectionErrors,
			"decode", stats.DecodeErrors,
			"unexpected", stats.UnexpectedErrors),
		slog.Group("writes",
			"attempted", stats.WritesAttempted,
			"ok", stats.WritesSucceeded,
			"failed", stats.WritesFailed,
			"history_ok", stats.HistorySucceeded,
			"history_failed", stats.HistoryFailed),
	)
}

func (c *Collector) printBanner() {
	if c.plain {
		c.printf("Energy collector run %s: %d sensors every %s\n", c.runID, len(c.sensors), c.interval)
		return
	}
	c.printf("\n🚀 Energy collector\n")
	if c.srcURL != "" {
		c.printf("📡 Source:    %s\n", c.srcURL)
	}
	c.printf("⏱️  Interval:  %s\n", c.interval)
	c.printf("🔢 Sensors:   %d\n", len(c.sensors))
	c.printf("🆔 Run:       %s\n", c.runID)
	c.printf("\n⚠️  Press Ctrl+C to stop\n")
}

func (c *Collector) printStats(stats *models.RunStats) {
	c.printf("\n%s\n", strings.Repeat("-", rule))
	c.printf("📊 Statistics:\n")
	c.printf("   Requests:       %d (%d ok, %d failed)\n", stats.RequestsAttempted, stats.RequestsSucceeded, stats.RequestsFailed)
	c.printf("   Failures:       http=%d timeout=%d connection=%d decode=%d unexpected=%d\n",
		stats.HTTPErrors, stats.Timeouts, stats.ConnectionErrors, stats.DecodeErrors, stats.UnexpectedErrors)
	c.printf("   Current writes: %d (%d ok, %d failed)\n", stats.WritesAttempted, stats.WritesSucceeded, stats.WritesFailed)
	c.printf("   History writes: %d ok, %d failed\n", stats.HistorySucceeded, stats.HistoryFailed)
	c.printf("   Next cycle in:  %s\n", c.interval)
	c.printf("%s\n", strings.Repeat("-", rule))
}

func (c *Collector) printSummary(stats *models.RunStats) {
	c.printf("\n🛑 Collector stopped\n")
	c.printf("📊 Final summary:\n")
	c.printf("   Cycles completed:   %d\n", stats.Cycles)
	c.printf("   Requests:           %d\n", stats.RequestsAttempted)
	c.printf("   Requests ok:        %d\n", stats.RequestsSucceeded)
	c.printf("   Requests failed:    %d\n", stats.RequestsFailed)
	c.printf("   Current writes ok:  %d\n", stats.WritesSucceeded)
	c.printf("   Current writes bad: %d\n", stats.WritesFailed)
	c.printf("   History writes ok:  %d\n", stats.HistorySucceeded)
	c.printf("   History writes bad: %d\n", stats.HistoryFailed)
	c.printf("   Failures:           http=%d timeout=%d connection=%d decode=%d unexpected=%d\n",
		stats.HTTPErrors, stats.Timeouts, stats.ConnectionErrors, stats.DecodeErrors, stats.UnexpectedErrors)
	c.printf("   Running since:      %s\n", stats.StartedAt.Format("2006-01-02 15:04:05"))
	c.printf("\n✅ Collector finished\n\n")
}
