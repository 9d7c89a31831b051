package repository

import (
	"context"
	"errors"

	"market-pulse/models"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("not found")

// Store defines the persistence operations used by the API and scheduler
type Store interface {
	// Health and lifecycle
	Close()
	Health(ctx context.Context) error

	// Watchlist. Every write returns the list as stored.
	GetWatchlist(ctx context.Context) (*models.Watchlist, error)
	AddWatchlistItems(ctx context.Context, entries []models.WatchlistItem) (*models.Watchlist, error)
	RemoveWatchlistSymbol(ctx context.Context, symbol string) (*models.Watchlist, error)
	ReplaceWatchlist(ctx context.Context, entries []models.WatchlistItem) (*models.Watchlist, error)

	// Posture history
	CreatePostureSnapshot(ctx context.Context, snap *models.PostureSnapshot) error
	GetPostureSnapshots(ctx context.Context, limit int) ([]models.PostureSnapshot, error)
	GetLatestPostureSnapshot(ctx context.Context) (*models.PostureSnapshot, error)
}

// Compile-time interface verification
var _ Store = (*Repository)(nil)
var _ Store = (*MemoryStore)(nil)
