package scheduler

import (
	"context"
	"sync/atomic"
	"testing"

	"schedule-sync-go/internal/config"
	"schedule-sync-go/internal/pipeline"
)

type countingRunner struct {
	runs int32
}

func (r *countingRunner) Run(context.Context) (*pipeline.Report, error) {
	atomic.AddInt32(&r.runs, 1)
	return &pipeline.Report{}, nil
}

// TestSchedulerRestart verifies the scheduler survives a stop/start cycle,
// which exercises the context recreation in Start.
func TestSchedulerRestart(t *testing.T) {
	cfg := &config.SchedulerConfig{IntervalMinutes: 60}
	s := NewScheduler(cfg, &countingRunner{})

	if err := s.Start(); err != nil {
		t.Fatalf("First start failed: %v", err)
	}
	if !s.IsRunning() {
		t.Fatal("Scheduler should be running after start")
	}
	if err := s.Start(); err == nil {
		t.Fatal("Second start should have failed while running")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if s.IsRunning() {
		t.Fatal("Scheduler should not be running after stop")
	}

	// The stored context was cancelled by Stop; a restart must still work
	if err := s.Start(); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	if !s.IsRunning() {
		t.Fatal("Scheduler should be running after restart")
	}
	if s.GetNextRun().IsZero() {
		t.Fatal("Next run should be scheduled after restart")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Final stop failed: %v", err)
	}
}

func TestSchedulerRunOnce(t *testing.T) {
	cfg := &config.SchedulerConfig{IntervalMinutes: 60}
	runner := &countingRunner{}
	s := NewScheduler(cfg, runner)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	if err := s.RunOnce(); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	s.Wait()

	if got := atomic.LoadInt32(&runner.runs); got != 1 {
		t.Fatalf("Expected exactly one run, got %d", got)
	}
	if s.LastReport() == nil {
		t.Fatal("RunOnce should store the report")
	}
}
