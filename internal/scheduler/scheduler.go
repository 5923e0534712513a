// Package scheduler runs recurring collection passes on a cron schedule,
// replacing the external-crontab deployment mode with an in-process option.
// At most one run is active at a time; a tick that fires while a run is in
// flight is skipped.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/agrovale/climate-collector/internal/domain"
)

// Runner executes one collection run. Implemented by collector.Collector.
type Runner interface {
	Run(ctx context.Context, mode domain.Mode, regions []domain.Region) domain.Report
}

// Scheduler triggers a Runner on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	mode    domain.Mode
	regions []domain.Region
	logger  *slog.Logger

	mu         sync.Mutex
	running    bool
	lastReport *domain.Report

	baseCtx context.Context
}

// New creates a scheduler for the given mode and region set.
func New(runner Runner, mode domain.Mode, regions []domain.Region, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		runner:  runner,
		mode:    mode,
		regions: regions,
		logger:  logger,
		baseCtx: context.Background(),
	}
}

// Start registers the cron entry and begins ticking. Runs inherit ctx, so
// cancelling it interrupts an in-flight run.
func (s *Scheduler) Start(ctx context.Context, spec string) error {
	s.baseCtx = ctx
	if _, err := s.cron.AddFunc(spec, s.RunNow); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("scheduler started", "schedule", spec, "mode", s.mode, "regions", len(s.regions))
	return nil
}

// Stop halts the cron ticker and waits for an in-flight run's cron slot to
// drain or the context to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
}

// RunNow triggers a collection run immediately, unless one is already in
// flight.
func (s *Scheduler) RunNow() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("previous collection run still in flight, skipping tick")
		return
	}
	s.running = true
	s.mu.Unlock()

	report := s.runner.Run(s.baseCtx, s.mode, s.regions)

	s.mu.Lock()
	s.running = false
	s.lastReport = &report
	s.mu.Unlock()

	s.logger.Info("scheduled run finished", "summary", report.Summary())
}

// LastReport returns the most recent completed run's report, or nil.
func (s *Scheduler) LastReport() *domain.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReport
}

// CheckReadiness reports ready once at least one run has completed.
func (s *Scheduler) CheckReadiness(_ context.Context) error {
	if s.LastReport() == nil {
		return errors.New("no collection run has completed yet")
	}
	return nil
}
