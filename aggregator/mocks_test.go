package aggregator

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"market-pulse/cache"
	"market-pulse/config"
	"market-pulse/models"
	"market-pulse/observability"
	"market-pulse/services"
)

var errProviderDown = errors.New("provider down")

// mockQuoteProvider serves canned quotes. It panics when asked for panicOn.
type mockQuoteProvider struct {
	name    string
	quotes  map[string]models.Quote
	err     error
	panicOn string

	calls atomic.Int32
}

func (m *mockQuoteProvider) Name() string {
	return m.name
}

func (m *mockQuoteProvider) FetchQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	quotes, err := m.FetchQuotes(ctx, []string{symbol})
	if err != nil {
		return nil, err
	}
	q, ok := quotes[symbol]
	if !ok {
		return nil, nil
	}
	return &q, nil
}

func (m *mockQuoteProvider) FetchQuotes(_ context.Context, symbols []string) (map[string]models.Quote, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	if m.panicOn != "" && slices.Contains(symbols, m.panicOn) {
		panic("unexpected payload for " + m.panicOn)
	}

	out := make(map[string]models.Quote)
	for _, sym := range symbols {
		if q, ok := m.quotes[sym]; ok {
			out[sym] = q
		}
	}
	return out, nil
}

func (m *mockQuoteProvider) Healthy() bool {
	return m.err == nil
}

type mockSparklineProvider struct {
	name   string
	points map[string][]float64
	err    error
}

func (m *mockSparklineProvider) Name() string {
	return m.name
}

func (m *mockSparklineProvider) FetchSparkline(_ context.Context, symbol string, _ int) ([]float64, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.points[symbol], nil
}

type mockSeriesProvider struct {
	value *float64
	err   error
}

func (m *mockSeriesProvider) FetchLatestValue(context.Context, string) (*float64, error) {
	return m.value, m.err
}

type mockCalendarProvider struct {
	events []models.MacroEvent
	err    error
	panics bool
}

func (m *mockCalendarProvider) FetchCalendar(context.Context) ([]models.MacroEvent, error) {
	if m.panics {
		panic("malformed calendar payload")
	}
	return m.events, m.err
}

type mockHeadlineProvider struct {
	mu        sync.Mutex
	headlines []models.SECHeadline
	calls     int
}

func (m *mockHeadlineProvider) FetchHeadlines(context.Context) ([]models.SECHeadline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.headlines, nil
}

func quote(symbol string, price, pct float64) models.Quote {
	return models.Quote{Symbol: symbol, Price: price, Pct: pct}
}

func float64Ptr(v float64) *float64 {
	return &v
}

// universeQuotes prices every instrument in the default universe
func universeQuotes() map[string]models.Quote {
	u := config.DefaultUniverse()
	quotes := map[string]models.Quote{
		models.VIXSymbol: quote(models.VIXSymbol, 14.2, -3.1),
	}
	for i, idx := range u.Indices {
		quotes[idx.Proxy] = quote(idx.Proxy, 400+float64(i), 0.5)
	}
	for i, s := range u.Sectors {
		quotes[s.Symbol] = quote(s.Symbol, 50+float64(i), 0.2+float64(i)*0.1)
	}
	return quotes
}

var testNow = time.Date(2024, 3, 11, 14, 30, 0, 0, time.UTC)

// newTestService wires a MarketService with fresh caches and isolated metrics
func newTestService(t *testing.T, p Providers) *MarketService {
	t.Helper()

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	caches, err := cache.NewSet(config.NewTestConfig().Cache, cache.WithMetrics(metrics))
	if err != nil {
		t.Fatalf("NewSet() error = %v", err)
	}

	if p.Index == nil && len(p.Quotes) > 0 {
		p.Index = p.Quotes[0]
	}
	if p.VIX == nil && len(p.Quotes) > 0 {
		p.VIX = p.Quotes[0]
	}

	return NewMarketService(p, config.DefaultUniverse(), caches,
		WithMetrics(metrics),
		WithClock(func() time.Time { return testNow }))
}

var _ services.QuoteProvider = (*mockQuoteProvider)(nil)
var _ services.SparklineProvider = (*mockSparklineProvider)(nil)
var _ services.SeriesProvider = (*mockSeriesProvider)(nil)
var _ services.MacroCalendarProvider = (*mockCalendarProvider)(nil)
var _ services.HeadlineProvider = (*mockHeadlineProvider)(nil)
var _ services.HealthReporter = (*mockQuoteProvider)(nil)
