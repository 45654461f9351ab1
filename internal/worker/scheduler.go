package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/unidesk/request-service/internal/config"
	"github.com/unidesk/request-service/internal/service"
)

// Scheduler drives the periodic jobs: the SLA sweep, stale-ticket
// auto-reassignment, and the daily management digest.
type Scheduler struct {
	cron    *cron.Cron
	sweeps  *service.SweepService
	reports *service.ReportService
	cfg     config.SLAConfig
	logger  *zap.Logger
}

// NewScheduler builds the scheduler; Start registers and runs the jobs.
func NewScheduler(sweeps *service.SweepService, reports *service.ReportService, cfg config.SLAConfig, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		sweeps:  sweeps,
		reports: reports,
		cfg:     cfg,
		logger:  logger,
	}
}

// Start registers the jobs and launches the cron loop.
func (s *Scheduler) Start() error {
	sweepSpec := fmt.Sprintf("@every %s", s.cfg.SweepInterval())
	if _, err := s.cron.AddFunc(sweepSpec, s.runSweep); err != nil {
		return fmt.Errorf("register sla sweep: %w", err)
	}
	if _, err := s.cron.AddFunc("@hourly", s.runAutoReassign); err != nil {
		return fmt.Errorf("register auto-reassign: %w", err)
	}
	// management digest goes out each morning
	if _, err := s.cron.AddFunc("0 7 * * *", s.runDailySummary); err != nil {
		return fmt.Errorf("register daily summary: %w", err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.String("sweep_interval", s.cfg.SweepInterval().String()),
		zap.Int("auto_reassign_after_hours", s.cfg.AutoReassignAfterHrs))
	return nil
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if _, err := s.sweeps.SweepSLAViolations(ctx, time.Now()); err != nil {
		s.logger.Error("sla sweep failed", zap.Error(err))
	}
}

func (s *Scheduler) runAutoReassign() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	threshold := time.Duration(s.cfg.AutoReassignAfterHrs) * time.Hour
	if threshold <= 0 {
		return
	}
	if _, err := s.sweeps.AutoReassignStale(ctx, time.Now(), threshold); err != nil {
		s.logger.Error("auto-reassign failed", zap.Error(err))
	}
}

func (s *Scheduler) runDailySummary() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := s.reports.SendDailySummary(ctx); err != nil {
		s.logger.Error("daily summary failed", zap.Error(err))
	}
}
