package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"market-pulse/models"
)

const watchlistStateID = 1

// GetWatchlist returns the watchlist in insertion order. An empty watchlist
// reports the current time as its update time.
func (r *Repository) GetWatchlist(ctx context.Context) (*models.Watchlist, error) {
	items, err := r.listWatchlistItems(ctx)
	if err != nil {
		return nil, err
	}

	timer := r.metrics.NewTimer()
	var updatedAt time.Time
	err = r.db.QueryRow(ctx, `
		SELECT updated_at FROM watchlist_state WHERE id = $1
	`, watchlistStateID).Scan(&updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		err = nil
		updatedAt = r.now()
	}
	r.observe(timer, "select", "watchlist_state", err)
	if err != nil {
		return nil, fmt.Errorf("failed to query watchlist state: %w", err)
	}

	return &models.Watchlist{Symbols: items, UpdatedAt: updatedAt}, nil
}

// AddWatchlistItems merges entries into the watchlist. Existing symbols keep
// their position and only take non-empty notes.
func (r *Repository) AddWatchlistItems(ctx context.Context, entries []models.WatchlistItem) (*models.Watchlist, error) {
	return r.rewriteWatchlist(ctx, func(existing []models.WatchlistItem, now time.Time) []models.WatchlistItem {
		return models.MergeWatchlistItems(existing, entries, now)
	})
}

// RemoveWatchlistSymbol drops symbol from the watchlist. Removing a symbol
// that is not listed is not an error.
func (r *Repository) RemoveWatchlistSymbol(ctx context.Context, symbol string) (*models.Watchlist, error) {
	return r.rewriteWatchlist(ctx, func(existing []models.WatchlistItem, _ time.Time) []models.WatchlistItem {
		return models.RemoveWatchlistSymbol(existing, symbol)
	})
}

// ReplaceWatchlist discards the current watchlist and stores entries, deduplicated
func (r *Repository) ReplaceWatchlist(ctx context.Context, entries []models.WatchlistItem) (*models.Watchlist, error) {
	return r.rewriteWatchlist(ctx, func(_ []models.WatchlistItem, now time.Time) []models.WatchlistItem {
		return models.DedupeWatchlistItems(entries, now)
	})
}

// rewriteWatchlist applies update to the stored items and writes the result
// back in a single transaction
func (r *Repository) rewriteWatchlist(ctx context.Context, update func([]models.WatchlistItem, time.Time) []models.WatchlistItem) (*models.Watchlist, error) {
	now := r.now().UTC()
	var result *models.Watchlist

	err := r.inTx(ctx, func(tx *Repository) error {
		if _, err := tx.db.Exec(ctx, `LOCK TABLE watchlist_items IN EXCLUSIVE MODE`); err != nil {
			return fmt.Errorf("failed to lock watchlist: %w", err)
		}

		existing, err := tx.listWatchlistItems(ctx)
		if err != nil {
			return err
		}

		items := update(existing, now)
		if err := tx.storeWatchlistItems(ctx, items, now); err != nil {
			return err
		}

		result = &models.Watchlist{Symbols: items, UpdatedAt: now}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Repository) listWatchlistItems(ctx context.Context) ([]models.WatchlistItem, error) {
	timer := r.metrics.NewTimer()
	rows, err := r.db.Query(ctx, `
		SELECT id, symbol, notes, added_at
		FROM watchlist_items
		ORDER BY position
	`)
	r.observe(timer, "select", "watchlist_items", err)
	if err != nil {
		return nil, fmt.Errorf("failed to query watchlist: %w", err)
	}
	defer rows.Close()

	items := []models.WatchlistItem{}
	for rows.Next() {
		var item models.WatchlistItem
		if err := rows.Scan(&item.ID, &item.Symbol, &item.Notes, &item.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan watchlist item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read watchlist: %w", err)
	}

	return items, nil
}

func (r *Repository) storeWatchlistItems(ctx context.Context, items []models.WatchlistItem, now time.Time) error {
	timer := r.metrics.NewTimer()
	_, err := r.db.Exec(ctx, `DELETE FROM watchlist_items`)
	r.observe(timer, "delete", "watchlist_items", err)
	if err != nil {
		return fmt.Errorf("failed to clear watchlist: %w", err)
	}

	for i, item := range items {
		timer := r.metrics.NewTimer()
		_, err := r.db.Exec(ctx, `
			INSERT INTO watchlist_items (id, symbol, notes, added_at, position)
			VALUES ($1, $2, $3, $4, $5)
		`, item.ID, item.Symbol, item.Notes, item.AddedAt, i)
		r.observe(timer, "insert", "watchlist_items", err)
		if err != nil {
			return fmt.Errorf("failed to store watchlist item %s: %w", item.Symbol, err)
		}
	}

	timer = r.metrics.NewTimer()
	_, err = r.db.Exec(ctx, `
		INSERT INTO watchlist_state (id, updated_at) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET updated_at = EXCLUDED.updated_at
	`, watchlistStateID, now)
	r.observe(timer, "upsert", "watchlist_state", err)
	if err != nil {
		return fmt.Errorf("failed to update watchlist state: %w", err)
	}

	return nil
}
