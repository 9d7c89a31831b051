// Package e2e provides end-to-end testing infrastructure for market-pulse:
// the real provider adapters, caches, aggregator and HTTP router, wired
// against a mock of every upstream data provider.
package e2e

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

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

// TestHarness provides the infrastructure for running E2E tests.
type TestHarness struct {
	t          *testing.T
	ctx        context.Context
	cancel     context.CancelFunc
	mockServer *mocks.MockServer
	repo       *repository.Repository
	store      repository.Store
	metrics    *observability.Metrics
	breakers   *services.Breakers
	caches     *cache.Set
	market     *aggregator.MarketService
	app        *app.App
	router     http.Handler
	config     *config.Config
}

// NewTestHarness creates a new test harness with all dependencies initialized.
func NewTestHarness(t *testing.T) *TestHarness {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)

	h := &TestHarness{
		t:      t,
		ctx:    ctx,
		cancel: cancel,
	}

	return h
}

// Setup initializes all test dependencies. The watchlist and posture history
// use Postgres when E2E_DATABASE_URL is set and memory otherwise.
func (h *TestHarness) Setup() error {
	// Start mock server for external APIs
	h.mockServer = mocks.NewMockServer()

	h.config = h.createTestConfig()
	h.metrics = observability.NewMetrics(prometheus.NewRegistry())
	h.breakers = services.NewBreakers(services.DefaultBreakerConfig).WithMetrics(h.metrics)

	universe, err := h.config.Universe()
	if err != nil {
		return fmt.Errorf("failed to load universe: %w", err)
	}

	providers, err := aggregator.NewProviders(h.config, universe,
		services.WithHTTPClient(h.mockServer.Client()),
		services.WithBreakers(h.breakers),
		services.WithClientMetrics(h.metrics),
	)
	if err != nil {
		return fmt.Errorf("failed to create providers: %w", err)
	}

	h.caches, err = cache.NewSet(h.config.Cache, cache.WithMetrics(h.metrics))
	if err != nil {
		return fmt.Errorf("failed to create caches: %w", err)
	}

	h.market = aggregator.NewMarketService(providers, universe, h.caches, aggregator.WithMetrics(h.metrics))

	h.store = repository.NewMemoryStore()
	if dbURL := os.Getenv("E2E_DATABASE_URL"); dbURL != "" {
		h.repo, err = repository.NewRepository(h.ctx, dbURL)
		if err != nil {
			return fmt.Errorf("failed to connect to test database: %w", err)
		}
		if err := h.cleanupTestData(); err != nil {
			return err
		}
		h.store = h.repo
	}

	// Create application
	h.app = app.New(h.config, h.market, h.store)

	// Create router
	handler := api.NewHandler(h.app, h.config)
	h.router = api.NewRouter(handler, h.config)

	return nil
}

// Teardown cleans up all test resources.
func (h *TestHarness) Teardown() {
	if h.cancel != nil {
		h.cancel()
	}

	if h.repo != nil {
		if err := h.cleanupTestData(); err != nil {
			h.t.Logf("cleanup failed: %v", err)
		}
	}

	if h.app != nil {
		h.app.Shutdown(context.Background())
	}

	if h.mockServer != nil {
		h.mockServer.Close()
	}
}

// Context returns the test context.
func (h *TestHarness) Context() context.Context {
	return h.ctx
}

// MockServer returns the mock server for configuring responses.
func (h *TestHarness) MockServer() *mocks.MockServer {
	return h.mockServer
}

// Market returns the aggregator.
func (h *TestHarness) Market() *aggregator.MarketService {
	return h.market
}

// PurgeCaches drops every cached category so the next request reaches the
// upstream mocks again.
func (h *TestHarness) PurgeCaches() {
	h.caches.Purge()
}

// Store returns the watchlist and posture store backing the app.
func (h *TestHarness) Store() repository.Store {
	return h.store
}

// Metrics returns the isolated metrics the harness records into.
func (h *TestHarness) Metrics() *observability.Metrics {
	return h.metrics
}

// App returns the application instance.
func (h *TestHarness) App() *app.App {
	return h.app
}

// Router returns the HTTP router for making requests.
func (h *TestHarness) Router() http.Handler {
	return h.router
}

// Config returns the test configuration.
func (h *TestHarness) Config() *config.Config {
	return h.config
}

// DoRequest performs an HTTP request and returns the response.
func (h *TestHarness) DoRequest(method, path string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

// ResetDatabase clears all test data from the database.
func (h *TestHarness) ResetDatabase() error {
	if h.repo == nil {
		return nil
	}
	return h.cleanupTestData()
}

func (h *TestHarness) createTestConfig() *config.Config {
	cfg := config.NewTestConfig()

	// Every keyed provider is enabled so the full fallback chain is exercised
	cfg.AlphaVantage.APIKey = "e2e-alpha-key"
	cfg.Finnhub.APIKey = "e2e-finnhub-key"
	cfg.FRED.APIKey = "e2e-fred-key"

	return cfg
}

func (h *TestHarness) cleanupTestData() error {
	queries := []string{
		"DELETE FROM watchlist_items",
		"DELETE FROM watchlist_state",
		"DELETE FROM posture_snapshots",
	}

	for _, q := range queries {
		if _, err := h.repo.Pool().Exec(h.ctx, q); err != nil {
			return fmt.Errorf("cleanup query failed: %s: %w", q, err)
		}
	}

	return nil
}
