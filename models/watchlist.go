package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// WatchlistItem is a tracked symbol with optional free-form notes
type WatchlistItem struct {
	ID      uuid.UUID `json:"id"`
	Symbol  string    `json:"symbol" validate:"required,max=10,ticker"`
	Notes   *string   `json:"notes,omitempty" validate:"omitempty,max=500"`
	AddedAt time.Time `json:"added_at"`
}

// Watchlist is the user's full list of tracked symbols
type Watchlist struct {
	Symbols   []WatchlistItem `json:"symbols"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NormalizeSymbol upper-cases and trims a ticker
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// MergeWatchlistItems adds entries to existing items. Symbols are matched
// case-insensitively; a repeated symbol keeps its original ID and AddedAt and
// only takes the new notes when they are non-empty. Blank symbols are skipped.
func MergeWatchlistItems(existing, entries []WatchlistItem, now time.Time) []WatchlistItem {
	merged := make([]WatchlistItem, 0, len(existing)+len(entries))
	index := make(map[string]int, len(existing)+len(entries))

	for _, item := range existing {
		sym := NormalizeSymbol(item.Symbol)
		if sym == "" {
			continue
		}
		if _, ok := index[sym]; ok {
			continue
		}
		item.Symbol = sym
		index[sym] = len(merged)
		merged = append(merged, item)
	}

	for _, entry := range entries {
		sym := NormalizeSymbol(entry.Symbol)
		if sym == "" {
			continue
		}
		if i, ok := index[sym]; ok {
			if entry.Notes != nil && *entry.Notes != "" {
				merged[i].Notes = entry.Notes
			}
			continue
		}
		index[sym] = len(merged)
		merged = append(merged, WatchlistItem{
			ID:      uuid.New(),
			Symbol:  sym,
			Notes:   entry.Notes,
			AddedAt: now,
		})
	}

	return merged
}

// DedupeWatchlistItems builds a fresh list from entries, keeping the first
// occurrence of each symbol. Every kept item gets a new ID and AddedAt.
func DedupeWatchlistItems(entries []WatchlistItem, now time.Time) []WatchlistItem {
	cleaned := make([]WatchlistItem, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		sym := NormalizeSymbol(entry.Symbol)
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		cleaned = append(cleaned, WatchlistItem{
			ID:      uuid.New(),
			Symbol:  sym,
			Notes:   entry.Notes,
			AddedAt: now,
		})
	}
	return cleaned
}

// RemoveWatchlistSymbol returns items without the given symbol
func RemoveWatchlistSymbol(items []WatchlistItem, symbol string) []WatchlistItem {
	symbol = NormalizeSymbol(symbol)
	kept := make([]WatchlistItem, 0, len(items))
	for _, item := range items {
		if NormalizeSymbol(item.Symbol) != symbol {
			kept = append(kept, item)
		}
	}
	return kept
}

// SymbolList returns the tickers in list order
func (w Watchlist) SymbolList() []string {
	out := make([]string, 0, len(w.Symbols))
	for _, item := range w.Symbols {
		out = append(out, item.Symbol)
	}
	return out
}
