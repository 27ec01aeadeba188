// Package scheduler triggers one fetch run per day at a fixed UTC hour. The
// pipeline itself knows nothing about timers, it only exposes Run.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ruthkhan/bouncefeed"
	"github.com/ruthkhan/bouncefeed/internal/fetcher"
	"github.com/ruthkhan/bouncefeed/tools"
	"github.com/sirupsen/logrus"
)

type Config struct {
	HourUTC int
}

// Runner is the single entry point the scheduler invokes.
type Runner interface {
	Run(ctx context.Context) (bouncefeed.FetchLog, error)
}

type Info struct {
	Trigger string    `json:"trigger"`
	NextRun time.Time `json:"next_run"`
}

func New(cfg Config, runner Runner, lc *tools.Logger) *Scheduler {

	logger := lc.New("scheduler")

	if cfg.HourUTC < 0 || cfg.HourUTC > 23 {
		logger.WithField("hour", cfg.HourUTC).Warn("invalid fetch hour, falling back to 03:00 UTC")
		cfg.HourUTC = 3
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:     cfg,
		runner:  runner,
		log:     logger,
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
}

type Scheduler struct {
	cfg    Config
	runner Runner
	log    *logrus.Logger

	ctx    context.Context
	cancel func()

	ostart sync.Once
	ostop  sync.Once

	stopped chan struct{}
}

func (s *Scheduler) Start() {
	s.ostart.Do(func() {
		s.log.Infof("starting scheduler, daily fetch at %02d:00 UTC", s.cfg.HourUTC)
		go s.loop()
	})
}

func (s *Scheduler) loop() {
	defer close(s.stopped)

	for {
		next := NextRun(time.Now().In(time.UTC), s.cfg.HourUTC)

		select {
		case <-s.ctx.Done():
			s.log.Info("scheduler stopping")
			return
		case <-time.After(time.Until(next)):
		}

		entry, err := s.runner.Run(s.ctx)
		if errors.Is(err, fetcher.ErrFetchInProgress) {
			s.log.Warn("skipping scheduled fetch, a run is already in progress")
			continue
		}
		if err != nil {
			s.log.WithError(err).Error("scheduled fetch could not be started")
			continue
		}
		s.log.WithField("run_id", entry.RunID).
			WithField("status", entry.Status).
			Info("scheduled fetch completed")
	}
}

func (s *Scheduler) Stop(ctx context.Context) error {
	var err error
	s.ostop.Do(func() {
		s.cancel()
		select {
		case <-s.stopped:
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	return err
}

// Info describes the configured trigger for the schedule-info endpoint.
func (s *Scheduler) Info() Info {
	return Info{
		Trigger: fmt.Sprintf("daily at %02d:00 UTC", s.cfg.HourUTC),
		NextRun: NextRun(time.Now().In(time.UTC), s.cfg.HourUTC),
	}
}

// NextRun returns the next occurrence of the given hour, UTC.
func NextRun(now time.Time, hourUTC int) time.Time {
	now = now.In(time.UTC)
	next := time.Date(now.Year(), now.Month(), now.Day(), hourUTC, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
