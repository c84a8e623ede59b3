package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"study_delivery_bot/internal/app"
)

// Ticker runs one engine pass.
type Ticker interface {
	Tick(ctx context.Context) (*app.TickSummary, error)
}

// EngineScheduler drives the engine from a cron spec. A tick that is still
// running when the next one is due is skipped rather than queued.
type EngineScheduler struct {
	cronEngine  *cron.Cron
	ticker      Ticker
	logger      *logrus.Entry
	tickSpec    string
	tickTimeout time.Duration
}

func NewEngineScheduler(ticker Ticker, logger *logrus.Entry, tickSpec string, tickTimeout time.Duration) *EngineScheduler {
	return &EngineScheduler{
		cronEngine: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(logger))),
		),
		ticker:      ticker,
		logger:      logger,
		tickSpec:    tickSpec,
		tickTimeout: tickTimeout,
	}
}

func (s *EngineScheduler) Start() error {
	s.logger.Info("Starting engine scheduler...")

	if _, err := s.cronEngine.AddFunc(s.tickSpec, s.runTick); err != nil {
		return fmt.Errorf("could not add engine tick job %q: %w", s.tickSpec, err)
	}

	s.cronEngine.Start()
	s.logger.WithField("spec", s.tickSpec).Info("Engine scheduler started.")
	return nil
}

func (s *EngineScheduler) runTick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.tickTimeout)
	defer cancel()

	summary, err := s.ticker.Tick(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Engine tick failed")
		return
	}
	if summary.Skipped {
		s.logger.WithField("tick_id", summary.TickID).Debug("Engine tick skipped")
	}
}

func (s *EngineScheduler) Stop() {
	s.logger.Info("Stopping engine scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()
	s.logger.Info("Engine scheduler gracefully stopped.")
}
