package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"schedule-sync-go/internal/config"
	"schedule-sync-go/internal/pipeline"
)

// Runner executes one pipeline pass
type Runner interface {
	Run(ctx context.Context) (*pipeline.Report, error)
}

// Scheduler triggers periodic pipeline runs
type Scheduler struct {
	cron      *cron.Cron
	entryID   cron.EntryID
	config    *config.SchedulerConfig
	runner    Runner
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
	mu        sync.RWMutex

	lastReport *pipeline.Report
}

// NewScheduler creates a new scheduler
func NewScheduler(cfg *config.SchedulerConfig, runner Runner) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		config: cfg,
		runner: runner,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	// Recreate the context in case a previous Stop cancelled it
	if s.ctx.Err() != nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}

	schedule := fmt.Sprintf("0 */%d * * * *", s.config.IntervalMinutes)

	entryID, err := s.cron.AddFunc(schedule, s.runPipeline)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.entryID = entryID
	s.cron.Start()
	s.isRunning = true

	logrus.Infof("Scheduler started with interval: %d minutes", s.config.IntervalMinutes)
	return nil
}

// Stop stops the scheduler. In-flight runs are cancelled between batch
// boundaries; atomic writes in progress complete.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	s.cancel()
	s.cron.Remove(s.entryID)

	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
		logrus.Info("Scheduler stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Scheduler stop timeout, forcing shutdown")
	}

	s.isRunning = false
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// runPipeline is the periodic entry point
func (s *Scheduler) runPipeline() {
	s.wg.Add(1)
	defer s.wg.Done()

	s.mu.RLock()
	if !s.isRunning {
		s.mu.RUnlock()
		logrus.Info("Scheduler not running, skipping pipeline run")
		return
	}
	ctx := s.ctx
	s.mu.RUnlock()

	logrus.Info("Starting pipeline run")
	startTime := time.Now()

	report, err := s.runner.Run(ctx)
	if err != nil {
		logrus.Errorf("Pipeline run failed: %v", err)
		return
	}

	s.mu.Lock()
	s.lastReport = report
	s.mu.Unlock()

	logrus.Infof("Pipeline run completed in %v", time.Since(startTime))
}

// RunOnce runs the pipeline once (for manual triggering)
func (s *Scheduler) RunOnce() error {
	logrus.Info("Running pipeline once")
	s.runPipeline()
	return nil
}

// LastReport returns the most recent run report, or nil before the first run
func (s *Scheduler) LastReport() *pipeline.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReport
}

// GetNextRun returns the time of the next scheduled run
func (s *Scheduler) GetNextRun() time.Time {
	if !s.IsRunning() {
		return time.Time{}
	}
	entry := s.cron.Entry(s.entryID)
	return entry.Next
}

// GetLastRun returns the time of the last run
func (s *Scheduler) GetLastRun() time.Time {
	if !s.IsRunning() {
		return time.Time{}
	}
	entry := s.cron.Entry(s.entryID)
	return entry.Prev
}

// Wait waits for in-flight runs to finish
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
