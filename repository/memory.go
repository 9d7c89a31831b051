package repository

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"market-pulse/models"
)

// memorySnapshotCap bounds the posture history kept in memory
const memorySnapshotCap = 1000

// MemoryStore keeps the watchlist and posture history in process memory.
// It is used when no database is configured; nothing survives a restart.
type MemoryStore struct {
	mu        sync.RWMutex
	items     []models.WatchlistItem
	updatedAt time.Time
	snapshots []models.PostureSnapshot // oldest first
	now       func() time.Time
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: []models.WatchlistItem{},
		now:   time.Now,
	}
}

// Close is a no-op
func (s *MemoryStore) Close() {}

// Health always succeeds
func (s *MemoryStore) Health(context.Context) error {
	return nil
}

// GetWatchlist returns a copy of the watchlist
func (s *MemoryStore) GetWatchlist(context.Context) (*models.Watchlist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	updatedAt := s.updatedAt
	if updatedAt.IsZero() {
		updatedAt = s.now()
	}
	return &models.Watchlist{Symbols: slices.Clone(s.items), UpdatedAt: updatedAt}, nil
}

// AddWatchlistItems merges entries into the watchlist
func (s *MemoryStore) AddWatchlistItems(_ context.Context, entries []models.WatchlistItem) (*models.Watchlist, error) {
	return s.rewrite(func(existing []models.WatchlistItem, now time.Time) []models.WatchlistItem {
		return models.MergeWatchlistItems(existing, entries, now)
	}), nil
}

// RemoveWatchlistSymbol drops symbol from the watchlist
func (s *MemoryStore) RemoveWatchlistSymbol(_ context.Context, symbol string) (*models.Watchlist, error) {
	return s.rewrite(func(existing []models.WatchlistItem, _ time.Time) []models.WatchlistItem {
		return models.RemoveWatchlistSymbol(existing, symbol)
	}), nil
}

// ReplaceWatchlist discards the current watchlist and stores entries, deduplicated
func (s *MemoryStore) ReplaceWatchlist(_ context.Context, entries []models.WatchlistItem) (*models.Watchlist, error) {
	return s.rewrite(func(_ []models.WatchlistItem, now time.Time) []models.WatchlistItem {
		return models.DedupeWatchlistItems(entries, now)
	}), nil
}

func (s *MemoryStore) rewrite(update func([]models.WatchlistItem, time.Time) []models.WatchlistItem) *models.Watchlist {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	s.items = update(s.items, now)
	s.updatedAt = now
	return &models.Watchlist{Symbols: slices.Clone(s.items), UpdatedAt: now}
}

// CreatePostureSnapshot records a posture reading, dropping the oldest once
// the history is full
func (s *MemoryStore) CreatePostureSnapshot(_ context.Context, snap *models.PostureSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *snap
	stored.Sources = maps.Clone(snap.Sources)
	s.snapshots = append(s.snapshots, stored)
	if len(s.snapshots) > memorySnapshotCap {
		s.snapshots = slices.Delete(s.snapshots, 0, len(s.snapshots)-memorySnapshotCap)
	}
	return nil
}

// GetPostureSnapshots returns the most recent readings, newest first
func (s *MemoryStore) GetPostureSnapshots(_ context.Context, limit int) ([]models.PostureSnapshot, error) {
	if limit <= 0 {
		limit = DefaultSnapshotLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.PostureSnapshot, 0, min(limit, len(s.snapshots)))
	for i := len(s.snapshots) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.snapshots[i])
	}
	return out, nil
}

// GetLatestPostureSnapshot returns the newest reading or ErrNotFound
func (s *MemoryStore) GetLatestPostureSnapshot(context.Context) (*models.PostureSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.snapshots) == 0 {
		return nil, ErrNotFound
	}
	snap := s.snapshots[len(s.snapshots)-1]
	return &snap, nil
}
