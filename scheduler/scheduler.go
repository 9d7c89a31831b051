// Package scheduler runs the periodic summary warm-up.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"market-pulse/models"
	"market-pulse/observability"
)

// Summarizer produces a market summary
type Summarizer interface {
	Summary(ctx context.Context) models.MarketSummary
}

// SnapshotRecorder stores posture readings
type SnapshotRecorder interface {
	CreatePostureSnapshot(ctx context.Context, snap *models.PostureSnapshot) error
}

// Scheduler refreshes the summary caches on a cron schedule and records the
// resulting posture
type Scheduler struct {
	cron       *cron.Cron
	summarizer Summarizer
	recorder   SnapshotRecorder
	ctx        context.Context
	now        func() time.Time

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a new Scheduler. recorder may be nil.
func NewScheduler(ctx context.Context, summarizer Summarizer, recorder SnapshotRecorder) *Scheduler {
	return &Scheduler{
		cron:       cron.New(cron.WithSeconds()),
		summarizer: summarizer,
		recorder:   recorder,
		ctx:        ctx,
		now:        time.Now,
	}
}

// Register adds the warm-up job. spec is a cron expression with a seconds field.
func (s *Scheduler) Register(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.warmup); err != nil {
		return fmt.Errorf("register warm-up task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	observability.Info("scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop stops the scheduler and waits for a running job to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	observability.Info("scheduler stopped")
}

// RunNow executes the warm-up immediately
func (s *Scheduler) RunNow() {
	s.warmup()
}

// warmup skips a run while the previous one is still going
func (s *Scheduler) warmup() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		observability.Warn("warm-up still running, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	start := time.Now()
	summary := s.summarizer.Summary(s.ctx)
	observability.Info("summary warmed",
		"duration", time.Since(start),
		"posture", summary.SessionPosture.Label,
		"fallbacks", len(summary.Notes))

	if s.recorder == nil {
		return
	}
	snap := models.NewPostureSnapshot(summary.SessionPosture, summary.Sources, s.now().UTC())
	if err := s.recorder.CreatePostureSnapshot(s.ctx, snap); err != nil {
		observability.WithError(err).Error("failed to record posture snapshot")
	}
}
