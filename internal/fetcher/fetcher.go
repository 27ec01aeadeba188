// Package fetcher runs the fetch-aggregate-persist pipeline, enumerate
// campaigns, pull bounce events per campaign, normalize, window filter,
// dedupe and commit the snapshot together with a run log entry.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alitto/pond"
	"github.com/google/uuid"
	"github.com/modfin/henry/slicez"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/ruthkhan/bouncefeed"
	"github.com/ruthkhan/bouncefeed/internal/dao"
	"github.com/ruthkhan/bouncefeed/internal/metrics"
	"github.com/ruthkhan/bouncefeed/internal/smartlead"
	"github.com/ruthkhan/bouncefeed/tools"
	"github.com/sirupsen/logrus"
)

// ErrFetchInProgress signals that a run was rejected because another run
// holds the run lock. Overlapping runs against the same store are not safe.
var ErrFetchInProgress = errors.New("a fetch run is already in progress")

const runLockKey = "fetch-run"

// Upstream is the slice of the smartlead client the pipeline needs.
type Upstream interface {
	ListCampaigns(ctx context.Context) ([]smartlead.Campaign, error)
	ListBounceEvents(ctx context.Context, campaignID int64) ([]smartlead.RawEvent, error)
}

type Config struct {
	WindowDays int
	Workers    int
	RunTimeout time.Duration
}

func New(cfg Config, db dao.DAO, upstream Upstream, lc *tools.Logger, m *metrics.Metrics) *Fetcher {

	logger := lc.New("fetcher")

	if cfg.WindowDays < 1 {
		cfg.WindowDays = 7
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 10 * time.Minute
	}

	return &Fetcher{
		cfg:      cfg,
		db:       db,
		upstream: upstream,
		log:      logger,
		locks:    tools.NewKeyedMutex(),
		metrics: fetchMetrics{
			runs: m.Register().NewCounterVec(prometheus.CounterOpts{
				Name: "bouncefeed_fetch_runs_total", Help: "Number of completed fetch runs by outcome.",
			}, []string{"status"}),
			campaignFailures: m.Register().NewCounter(prometheus.CounterOpts{
				Name: "bouncefeed_campaign_fetch_failures_total", Help: "Number of campaigns that contributed no records due to upstream failure.",
			}),
			records: m.Register().NewGauge(prometheus.GaugeOpts{
				Name: "bouncefeed_bounce_records", Help: "Number of bounce records in the current snapshot.",
			}),
			runDuration: m.Register().NewHistogram(prometheus.HistogramOpts{
				Name: "bouncefeed_fetch_run_duration_seconds", Help: "Duration of fetch runs in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			}),
		},
	}
}

type fetchMetrics struct {
	runs             *prometheus.CounterVec
	campaignFailures prometheus.Counter
	records          prometheus.Gauge
	runDuration      prometheus.Histogram
}

type Fetcher struct {
	cfg      Config
	db       dao.DAO
	upstream Upstream
	log      *logrus.Logger
	locks    *tools.KeyedMutex
	metrics  fetchMetrics
}

// Run executes one pipeline run and returns its log entry. The entry is
// appended to the store whatever the outcome, errors never propagate to the
// caller beyond ErrFetchInProgress for a rejected overlapping invocation.
func (f *Fetcher) Run(ctx context.Context) (bouncefeed.FetchLog, error) {

	if !f.locks.TryLocked(runLockKey) {
		return bouncefeed.FetchLog{}, ErrFetchInProgress
	}
	defer f.locks.Unlock(runLockKey)

	start := time.Now()
	entry := f.run(ctx)
	f.metrics.runDuration.Observe(time.Since(start).Seconds())
	f.metrics.runs.WithLabelValues(entry.Status.String()).Inc()

	return entry, nil
}

func (f *Fetcher) run(ctx context.Context) bouncefeed.FetchLog {

	now := time.Now().In(time.UTC)
	entry := bouncefeed.FetchLog{
		RunID:     uuid.New().String(),
		FetchedAt: now,
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.RunTimeout)
	defer cancel()

	f.log.WithField("run_id", entry.RunID).Info("starting bounce fetch run")

	campaigns, err := f.upstream.ListCampaigns(ctx)
	if err != nil {
		return f.fail(entry, fmt.Errorf("could not list campaigns, %w", err))
	}
	entry.TotalCampaigns = len(campaigns)
	f.log.Infof("found %d campaigns", len(campaigns))

	// per campaign results keep their campaign list position, so the dedup
	// pass below sees campaign order then event order
	results := make([][]bouncefeed.BounceRecord, len(campaigns))

	pool := pond.New(f.cfg.Workers, 0, pond.Context(ctx))
	for i, campaign := range campaigns {
		i, campaign := i, campaign
		pool.Submit(func() {
			results[i] = f.fetchCampaign(ctx, campaign)
		})
	}
	pool.StopAndWait()

	if ctx.Err() != nil {
		// partially fetched data is discarded, not partially merged
		return f.fail(entry, fmt.Errorf("run abandoned, %w", ctx.Err()))
	}

	combined := slicez.Concat(results...)
	filtered := filterAndDedupe(combined, now, f.cfg.WindowDays)

	entry.Status = bouncefeed.FetchSuccess
	entry.TotalBounced = len(filtered)

	err = f.db.CommitFetch(filtered, entry)
	if err != nil {
		entry.TotalBounced = 0
		return f.fail(entry, fmt.Errorf("could not commit bounce snapshot, %w", err))
	}

	f.metrics.records.Set(float64(len(filtered)))
	f.log.WithField("run_id", entry.RunID).
		Infof("stored %d bounce records from %d campaigns", len(filtered), len(campaigns))

	return entry
}

// fetchCampaign pulls and normalizes the bounce events of one campaign. An
// upstream failure makes the campaign contribute zero records but does not
// abort the run.
func (f *Fetcher) fetchCampaign(ctx context.Context, campaign smartlead.Campaign) []bouncefeed.BounceRecord {

	log := f.log.WithField("campaign_id", campaign.ID).WithField("campaign_name", campaign.Name)

	events, err := f.upstream.ListBounceEvents(ctx, campaign.ID)
	if err != nil {
		log.WithError(err).Warn("could not fetch bounce events, campaign contributes no records")
		f.metrics.campaignFailures.Inc()
		return nil
	}

	var records []bouncefeed.BounceRecord
	for _, raw := range events {
		record, err := normalize(raw, campaign.ID, campaign.Name)
		if err != nil {
			log.WithError(err).Warn("skipping event")
			continue
		}
		records = append(records, record)
	}

	log.Debugf("normalized %d of %d bounce events", len(records), len(events))
	return records
}

func (f *Fetcher) fail(entry bouncefeed.FetchLog, err error) bouncefeed.FetchLog {

	entry.Status = bouncefeed.FetchError
	entry.ErrorDetail = err.Error()

	f.log.WithField("run_id", entry.RunID).WithError(err).Error("fetch run failed")

	aerr := f.db.AddFetchLog(entry)
	if aerr != nil {
		f.log.WithField("run_id", entry.RunID).WithError(aerr).Error("could not append error log entry")
	}
	return entry
}
