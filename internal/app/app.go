package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"market-pulse/aggregator"
	"market-pulse/cache"
	"market-pulse/config"
	"market-pulse/models"
	"market-pulse/observability"
	"market-pulse/repository"
	"market-pulse/scheduler"
)

// MarketService defines the market data operations needed by App
type MarketService interface {
	Summary(ctx context.Context) models.MarketSummary
	Posture(breadth map[string]models.BreadthData, sectors []models.SectorData, vix models.VIXData) models.SessionPosture
	GetQuotes(ctx context.Context, symbols []string) (map[string]models.Quote, string, error)
	GetSparkline(ctx context.Context, symbol string) ([]float64, string, error)
	MiniQuotes(ctx context.Context, symbols []string) ([]models.MiniQuote, error)
	Health() map[string]bool
}

// Database states reported by the health endpoint
const (
	DatabaseConnected     = "connected"
	DatabaseDisconnected  = "disconnected"
	DatabaseNotConfigured = "not_configured"
)

// App struct holds application dependencies using interfaces for testability
type App struct {
	cfg       *config.Config
	market    MarketService
	store     repository.Store
	persisted bool // store is backed by the database

	scheduler  *scheduler.Scheduler
	cacheStore *cache.RedisStore
}

// New creates a new App. A nil store means an in-memory one.
func New(cfg *config.Config, market MarketService, store repository.Store) *App {
	a := &App{cfg: cfg, market: market, store: store}
	if store == nil {
		a.store = repository.NewMemoryStore()
	} else {
		_, a.persisted = store.(*repository.Repository)
	}
	return a
}

// Build wires the application from configuration. Optional backends that
// cannot be reached are logged and skipped.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	universe, err := cfg.Universe()
	if err != nil {
		return nil, fmt.Errorf("failed to load universe: %w", err)
	}

	var cacheOpts []cache.Option
	var redisStore *cache.RedisStore
	if cfg.HasRedis() {
		redisStore, err = cache.NewRedisStore(ctx, cfg.Redis.URL)
		if err != nil {
			observability.Warn("redis unavailable, using in-process cache only", "error", err)
		} else {
			cacheOpts = append(cacheOpts, cache.WithStore(redisStore))
			observability.Info("redis cache store connected")
		}
	}

	caches, err := cache.NewSet(cfg.Cache, cacheOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create caches: %w", err)
	}

	providers, err := aggregator.NewProviders(cfg, universe)
	if err != nil {
		return nil, err
	}
	if !cfg.HasAlphaVantage() {
		observability.Warn("Alpha Vantage API key not set, provider disabled")
	}
	if !cfg.HasFinnhub() {
		observability.Warn("Finnhub API key not set, provider disabled")
	}
	if !cfg.HasFRED() {
		observability.Warn("FRED API key not set, using placeholder macro calendar")
	}

	market := aggregator.NewMarketService(providers, universe, caches)

	var store repository.Store
	if cfg.HasDatabase() {
		repo, err := repository.NewRepository(ctx, cfg.Database.URL)
		if err != nil {
			observability.Warn("failed to initialize database, using in-memory store", "error", err)
		} else {
			store = repo
			observability.Info("connected to database")
		}
	}

	a := New(cfg, market, store)
	a.cacheStore = redisStore

	if cfg.HasWarmup() {
		a.scheduler = scheduler.NewScheduler(context.Background(), market, a.store)
		if err := a.scheduler.Register(cfg.Scheduler.WarmupCron); err != nil {
			a.Shutdown(ctx)
			return nil, err
		}
	}

	return a, nil
}

// Start starts background jobs
func (a *App) Start() {
	if a.scheduler != nil {
		a.scheduler.Start()
	}
}

// Shutdown stops background jobs and closes backing stores
func (a *App) Shutdown(ctx context.Context) {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.cacheStore != nil {
		if err := a.cacheStore.Close(); err != nil {
			observability.Warn("failed to close redis store", "error", err)
		}
	}
	a.store.Close()
}

// Config returns the application configuration
func (a *App) Config() *config.Config {
	return a.cfg
}

// Summary returns the aggregated market summary
func (a *App) Summary(ctx context.Context) models.MarketSummary {
	return a.market.Summary(ctx)
}

// Posture scores explicit inputs
func (a *App) Posture(breadth map[string]models.BreadthData, sectors []models.SectorData, vix models.VIXData) models.SessionPosture {
	return a.market.Posture(breadth, sectors, vix)
}

// Quotes resolves ad-hoc symbols
func (a *App) Quotes(ctx context.Context, symbols []string) (map[string]models.Quote, string, error) {
	return a.market.GetQuotes(ctx, symbols)
}

// Sparkline returns recent intraday closes for symbol
func (a *App) Sparkline(ctx context.Context, symbol string) ([]float64, string, error) {
	return a.market.GetSparkline(ctx, symbol)
}

// MiniQuotes returns a compact quote with sparkline for every symbol
func (a *App) MiniQuotes(ctx context.Context, symbols []string) ([]models.MiniQuote, error) {
	return a.market.MiniQuotes(ctx, symbols)
}

// Watchlist returns the stored watchlist
func (a *App) Watchlist(ctx context.Context) (*models.Watchlist, error) {
	return a.store.GetWatchlist(ctx)
}

// AddToWatchlist merges entries into the watchlist
func (a *App) AddToWatchlist(ctx context.Context, entries []models.WatchlistItem) (*models.Watchlist, error) {
	return a.store.AddWatchlistItems(ctx, entries)
}

// RemoveFromWatchlist drops symbol from the watchlist
func (a *App) RemoveFromWatchlist(ctx context.Context, symbol string) (*models.Watchlist, error) {
	return a.store.RemoveWatchlistSymbol(ctx, symbol)
}

// ReplaceWatchlist stores entries as the whole watchlist
func (a *App) ReplaceWatchlist(ctx context.Context, entries []models.WatchlistItem) (*models.Watchlist, error) {
	return a.store.ReplaceWatchlist(ctx, entries)
}

// WatchlistQuotes returns a mini quote with sparkline for every watchlist symbol
func (a *App) WatchlistQuotes(ctx context.Context) ([]models.MiniQuote, error) {
	wl, err := a.store.GetWatchlist(ctx)
	if err != nil {
		return nil, err
	}
	return a.market.MiniQuotes(ctx, wl.SymbolList())
}

// PostureHistory returns recorded posture readings, newest first
func (a *App) PostureHistory(ctx context.Context, limit int) ([]models.PostureSnapshot, error) {
	return a.store.GetPostureSnapshots(ctx, limit)
}

// LatestPosture returns the newest recorded posture, or nil if none exists
func (a *App) LatestPosture(ctx context.Context) (*models.PostureSnapshot, error) {
	snap, err := a.store.GetLatestPostureSnapshot(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return snap, err
}

// Health reports the health flag of every data source
func (a *App) Health() models.HealthStatus {
	return models.HealthStatus{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Sources:   a.market.Health(),
	}
}

// DatabaseStatus reports the state of the persistent store
func (a *App) DatabaseStatus(ctx context.Context) string {
	if !a.persisted {
		return DatabaseNotConfigured
	}
	if err := a.store.Health(ctx); err != nil {
		return DatabaseDisconnected
	}
	return DatabaseConnected
}
