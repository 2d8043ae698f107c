package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/movebox/customerdupes/internal/dedupe"
	"github.com/movebox/customerdupes/internal/models"
)

// Merger is the part of the dedupe engine the scheduler drives.
type Merger interface {
	Detect(ctx context.Context) ([]dedupe.Group, []models.Customer, error)
	AutoMergeExact(ctx context.Context, groups []dedupe.Group) dedupe.BatchResult
}

// RunStatus describes the most recent scheduled run.
type RunStatus struct {
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Error     string    `json:"error,omitempty"`
}

type Scheduler struct {
	merger   Merger
	interval time.Duration
	mu       sync.Mutex // held for the duration of a run

	statusMu sync.RWMutex
	last     *RunStatus
}

// New returns a scheduler that auto-merges exact duplicates every interval.
// A non-positive interval disables Run.
func New(m Merger, interval time.Duration) *Scheduler {
	return &Scheduler{merger: m, interval: interval}
}

// Run starts the scheduler loop and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	if s.interval <= 0 {
		slog.Info("Scheduler disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("Scheduler started", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single detection and auto-merge pass. It returns false
// without doing anything when a previous pass is still running.
func (s *Scheduler) RunOnce(ctx context.Context) bool {
	if !s.mu.TryLock() {
		slog.Debug("Auto-merge still running, skipping tick")
		return false
	}
	defer s.mu.Unlock()

	status := &RunStatus{StartedAt: time.Now()}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic in scheduled auto-merge", "panic", r, "stack", string(debug.Stack()))
			status.Error = fmt.Sprintf("panic: %v", r)
		}
		status.Duration = time.Since(status.StartedAt).Round(time.Millisecond).String()
		s.setStatus(status)
	}()

	groups, _, err := s.merger.Detect(ctx)
	if err != nil {
		slog.Error("Scheduled detection failed", "error", err)
		status.Error = err.Error()
		return true
	}

	res := s.merger.AutoMergeExact(ctx, groups)
	status.Succeeded = res.Succeeded
	status.Failed = res.Failed
	if res.Succeeded > 0 || res.Failed > 0 {
		slog.Info("Scheduled auto-merge finished", "merged", res.Succeeded, "failed", res.Failed)
	}
	return true
}

// LastRun returns the status of the most recent run, or nil before the first.
func (s *Scheduler) LastRun() *RunStatus {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	if s.last == nil {
		return nil
	}
	cp := *s.last
	return &cp
}

func (s *Scheduler) setStatus(st *RunStatus) {
	s.statusMu.Lock()
	s.last = st
	s.statusMu.Unlock()
}
