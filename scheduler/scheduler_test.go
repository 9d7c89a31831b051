package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"market-pulse/models"
)

type fakeSummarizer struct {
	mu    sync.Mutex
	calls int
	block chan struct{}
}

func (f *fakeSummarizer) Summary(context.Context) models.MarketSummary {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.block != nil {
		<-f.block
	}
	return models.MarketSummary{
		Sources: map[string]string{models.CategoryVIX: "YahooFinance"},
		SessionPosture: models.SessionPosture{
			Score: 42.5,
			Label: models.PostureRiskOn,
		},
	}
}

func (f *fakeSummarizer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRecorder struct {
	mu    sync.Mutex
	snaps []*models.PostureSnapshot
	err   error
}

func (f *fakeRecorder) CreatePostureSnapshot(_ context.Context, snap *models.PostureSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps = append(f.snaps, snap)
	return f.err
}

func TestRegister_InvalidSpec(t *testing.T) {
	s := NewScheduler(context.Background(), &fakeSummarizer{}, nil)

	if err := s.Register("not a cron spec"); err == nil {
		t.Error("expected error for invalid cron spec")
	}
	if err := s.Register("*/30 * * * * *"); err != nil {
		t.Errorf("Register() error = %v", err)
	}
}

func TestRunNow_RecordsSnapshot(t *testing.T) {
	summarizer := &fakeSummarizer{}
	recorder := &fakeRecorder{}
	s := NewScheduler(context.Background(), summarizer, recorder)
	at := time.Date(2024, 3, 11, 14, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return at }

	s.RunNow()

	if summarizer.Calls() != 1 {
		t.Errorf("Summary called %d times, want 1", summarizer.Calls())
	}
	if len(recorder.snaps) != 1 {
		t.Fatalf("recorded %d snapshots, want 1", len(recorder.snaps))
	}

	snap := recorder.snaps[0]
	if snap.Score != 42.5 || snap.Label != models.PostureRiskOn {
		t.Errorf("snapshot = %v %v, want 42.5 Risk-On", snap.Score, snap.Label)
	}
	if snap.Sources[models.CategoryVIX] != "YahooFinance" {
		t.Errorf("sources = %v", snap.Sources)
	}
	if !snap.TakenAt.Equal(at) {
		t.Errorf("TakenAt = %v, want %v", snap.TakenAt, at)
	}
}

func TestRunNow_RecorderErrorIsLogged(t *testing.T) {
	recorder := &fakeRecorder{err: errors.New("db down")}
	s := NewScheduler(context.Background(), &fakeSummarizer{}, recorder)

	s.RunNow()

	if len(recorder.snaps) != 1 {
		t.Errorf("recorded %d snapshots, want 1 attempt", len(recorder.snaps))
	}
}

func TestRunNow_WithoutRecorder(t *testing.T) {
	summarizer := &fakeSummarizer{}
	s := NewScheduler(context.Background(), summarizer, nil)

	s.RunNow()

	if summarizer.Calls() != 1 {
		t.Errorf("Summary called %d times, want 1", summarizer.Calls())
	}
}

func TestWarmup_SkipsOverlappingRun(t *testing.T) {
	summarizer := &fakeSummarizer{block: make(chan struct{})}
	s := NewScheduler(context.Background(), summarizer, nil)

	done := make(chan struct{})
	go func() {
		s.RunNow()
		close(done)
	}()

	deadline := time.After(time.Second)
	for summarizer.Calls() == 0 {
		select {
		case <-deadline:
			t.Fatal("first run never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	s.RunNow()
	close(summarizer.block)
	<-done

	if summarizer.Calls() != 1 {
		t.Errorf("Summary called %d times, want 1", summarizer.Calls())
	}
}

func TestStartStop(t *testing.T) {
	s := NewScheduler(context.Background(), &fakeSummarizer{}, nil)
	if err := s.Register("0 0 0 1 1 *"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	s.Start()
	s.Stop()
}
