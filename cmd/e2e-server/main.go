// Package main provides a standalone HTTP server for E2E testing.
// It runs the same routes and handlers as cmd/server, but every upstream
// market data provider is replaced by the in-process mock, making it
// suitable for browser tests of a dashboard.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"market-pulse/aggregator"
	"market-pulse/cache"
	"market-pulse/config"
	"market-pulse/e2e/mocks"
	"market-pulse/internal/api"
	"market-pulse/internal/app"
	"market-pulse/observability"
	"market-pulse/repository"
	"market-pulse/services"
)

func main() {
	// Initialize logger in development mode for tests
	observability.InitLogger(false)
	observability.InitMetrics()

	// Get configuration from environment
	port := os.Getenv("E2E_SERVER_PORT")
	if port == "" {
		port = "9090"
	}

	// Every keyed provider is enabled against the mock
	cfg := config.NewTestConfig()
	cfg.AlphaVantage.APIKey = "e2e-alpha-key"
	cfg.Finnhub.APIKey = "e2e-finnhub-key"
	cfg.FRED.APIKey = "e2e-fred-key"

	ctx := context.Background()

	upstream := mocks.NewMockServer()
	defer upstream.Close()
	observability.Info("mock upstreams started", "url", upstream.URL())

	universe, err := cfg.Universe()
	if err != nil {
		observability.Fatal("failed to load universe", "error", err)
	}
	providers, err := aggregator.NewProviders(cfg, universe, services.WithHTTPClient(upstream.Client()))
	if err != nil {
		observability.Fatal("failed to create providers", "error", err)
	}
	caches, err := cache.NewSet(cfg.Cache)
	if err != nil {
		observability.Fatal("failed to create caches", "error", err)
	}
	market := aggregator.NewMarketService(providers, universe, caches)

	// Persist to the test database when one is given
	var store repository.Store
	if databaseURL := os.Getenv("E2E_DATABASE_URL"); databaseURL != "" {
		repo, err := repository.NewRepository(ctx, databaseURL)
		if err != nil {
			observability.Fatal("failed to connect to database", "error", err)
		}
		store = repo
		observability.Info("connected to test database")
	}

	application := app.New(cfg, market, store)

	// Create HTTP router
	handler := api.NewHandler(application, cfg)
	router := api.NewRouter(handler, cfg)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Start server in goroutine
	go func() {
		observability.Info("starting E2E test server", "port", port, "url", fmt.Sprintf("http://localhost:%s", port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			observability.Fatal("server error", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	observability.Info("shutting down E2E test server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		observability.Error("server forced to shutdown", "error", err)
	}

	application.Shutdown(shutdownCtx)
	observability.Info("E2E test server stopped")
}
