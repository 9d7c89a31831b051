package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"market-pulse/models"
)

// getTestDB returns a repository connected to the test database.
// If DATABASE_URL is not set, the test is skipped.
func getTestDB(t *testing.T) *Repository {
	t.Helper()

	connString := os.Getenv("DATABASE_URL")
	if connString == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	repo, err := NewRepository(ctx, connString)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	return repo
}

// cleanupWatchlist empties the watchlist tables
func cleanupWatchlist(t *testing.T, repo *Repository) {
	t.Helper()
	ctx := context.Background()
	repo.pool.Exec(ctx, "DELETE FROM watchlist_items")
	repo.pool.Exec(ctx, "DELETE FROM watchlist_state")
}

// cleanupSnapshots removes all posture snapshots
func cleanupSnapshots(t *testing.T, repo *Repository) {
	t.Helper()
	ctx := context.Background()
	repo.pool.Exec(ctx, "DELETE FROM posture_snapshots")
}

// =============================================================================
// Watchlist Tests
// =============================================================================

func TestRepository_Watchlist(t *testing.T) {
	repo := getTestDB(t)
	defer repo.Close()
	cleanupWatchlist(t, repo)
	defer cleanupWatchlist(t, repo)

	ctx := context.Background()

	wl, err := repo.GetWatchlist(ctx)
	if err != nil {
		t.Fatalf("GetWatchlist() error = %v", err)
	}
	if len(wl.Symbols) != 0 {
		t.Errorf("expected empty watchlist, got %v", wl.SymbolList())
	}

	wl, err = repo.AddWatchlistItems(ctx, []models.WatchlistItem{
		{Symbol: "aapl", Notes: strPtr("earnings")},
		{Symbol: "MSFT"},
	})
	if err != nil {
		t.Fatalf("AddWatchlistItems() error = %v", err)
	}
	if got := wl.SymbolList(); len(got) != 2 || got[0] != "AAPL" {
		t.Fatalf("symbols = %v", got)
	}

	wl, err = repo.AddWatchlistItems(ctx, []models.WatchlistItem{{Symbol: "MSFT", Notes: strPtr("cloud")}, {Symbol: "NVDA"}})
	if err != nil {
		t.Fatalf("AddWatchlistItems() error = %v", err)
	}

	stored, err := repo.GetWatchlist(ctx)
	if err != nil {
		t.Fatalf("GetWatchlist() error = %v", err)
	}
	if got := stored.SymbolList(); len(got) != 3 || got[0] != "AAPL" || got[1] != "MSFT" || got[2] != "NVDA" {
		t.Errorf("stored symbols = %v, want [AAPL MSFT NVDA]", got)
	}
	if stored.Symbols[1].Notes == nil || *stored.Symbols[1].Notes != "cloud" {
		t.Errorf("MSFT notes = %v, want cloud", stored.Symbols[1].Notes)
	}
	if stored.Symbols[0].ID != wl.Symbols[0].ID {
		t.Error("stored ID does not match returned ID")
	}

	wl, err = repo.RemoveWatchlistSymbol(ctx, "msft")
	if err != nil {
		t.Fatalf("RemoveWatchlistSymbol() error = %v", err)
	}
	if got := wl.SymbolList(); len(got) != 2 || got[1] != "NVDA" {
		t.Errorf("symbols after remove = %v", got)
	}

	wl, err = repo.ReplaceWatchlist(ctx, []models.WatchlistItem{{Symbol: "tsla"}, {Symbol: "TSLA"}})
	if err != nil {
		t.Fatalf("ReplaceWatchlist() error = %v", err)
	}
	if got := wl.SymbolList(); len(got) != 1 || got[0] != "TSLA" {
		t.Errorf("symbols after replace = %v", got)
	}
}

// =============================================================================
// Posture Snapshot Tests
// =============================================================================

func TestRepository_PostureSnapshots(t *testing.T) {
	repo := getTestDB(t)
	defer repo.Close()
	cleanupSnapshots(t, repo)
	defer cleanupSnapshots(t, repo)

	ctx := context.Background()

	if _, err := repo.GetLatestPostureSnapshot(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetLatestPostureSnapshot() error = %v, want ErrNotFound", err)
	}

	base := time.Now().UTC().Truncate(time.Second)
	for i, score := range []float64{-35.2, 60} {
		p := models.SessionPosture{
			Score:      score,
			Label:      models.PostureRiskOn,
			Components: models.PostureComponents{Breadth: 50, Dispersion: 75, VolOverlay: 50},
		}
		snap := models.NewPostureSnapshot(p, map[string]string{"sectors": "YahooFinance"}, base.Add(time.Duration(i)*time.Minute))
		if err := repo.CreatePostureSnapshot(ctx, snap); err != nil {
			t.Fatalf("CreatePostureSnapshot() error = %v", err)
		}
	}

	latest, err := repo.GetLatestPostureSnapshot(ctx)
	if err != nil {
		t.Fatalf("GetLatestPostureSnapshot() error = %v", err)
	}
	if latest.Score != 60 || latest.Label != models.PostureRiskOn {
		t.Errorf("latest = %v %v, want 60 Risk-On", latest.Score, latest.Label)
	}
	if latest.Components.Dispersion != 75 {
		t.Errorf("dispersion = %v, want 75", latest.Components.Dispersion)
	}
	if latest.Sources["sectors"] != "YahooFinance" {
		t.Errorf("sources = %v", latest.Sources)
	}

	snaps, err := repo.GetPostureSnapshots(ctx, 10)
	if err != nil {
		t.Fatalf("GetPostureSnapshots() error = %v", err)
	}
	if len(snaps) != 2 || snaps[0].Score != 60 {
		t.Errorf("snapshots = %+v", snaps)
	}
}
