package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"market-pulse/observability"
)

// tripConfig opens after two requests at a 50% failure ratio
var tripConfig = BreakerConfig{
	MaxRequests:  1,
	Interval:     time.Minute,
	Timeout:      time.Minute,
	MinRequests:  2,
	FailureRatio: 0.5,
}

// countingServer answers 500 until healthy is set
func countingServer(t *testing.T, healthy *atomic.Bool, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if !healthy.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

// newBreakerYahoo builds a Yahoo adapter with no retries behind breakers
func newBreakerYahoo(server *httptest.Server, breakers *Breakers, metrics *observability.Metrics) *YahooService {
	cfg := testProviderConfig()
	cfg.Retries = 0
	s := NewYahooService(cfg, WithBreakers(breakers), WithClientMetrics(metrics))
	s.quoteURL = server.URL + "/v7/finance/quote"
	s.chartURL = server.URL + "/v8/finance/chart"
	return s
}

func TestBreakers_OpenYahooStopsUpstreamCalls(t *testing.T) {
	var healthy atomic.Bool
	server, hits := countingServer(t, &healthy, yahooQuoteJSON)

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	breakers := NewBreakers(tripConfig).WithMetrics(metrics)
	yahoo := newBreakerYahoo(server, breakers, metrics)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		quotes, err := yahoo.FetchQuotes(ctx, []string{"SPY"})
		if err != nil || len(quotes) != 0 {
			t.Fatalf("FetchQuotes() = %v, %v, want empty result and no error", quotes, err)
		}
	}
	if got := breakers.OpenProviders(); !reflect.DeepEqual(got, []string{ProviderYahoo}) {
		t.Fatalf("open providers = %v, want [%s]", got, ProviderYahoo)
	}

	healthy.Store(true)
	quotes, err := yahoo.FetchQuotes(ctx, []string{"SPY"})
	if err != nil || len(quotes) != 0 {
		t.Errorf("FetchQuotes() while open = %v, %v, want empty result", quotes, err)
	}
	if hits.Load() != 2 {
		t.Errorf("upstream hit %d times, want 2", hits.Load())
	}
	if yahoo.Healthy() {
		t.Error("yahoo should stay unhealthy while its breaker is open")
	}

	if got := testutil.ToFloat64(metrics.ProviderErrorsTotal.WithLabelValues(ProviderYahoo, "quote", "unavailable")); got != 1 {
		t.Errorf("unavailable errors = %f, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.CircuitBreakerTrips.WithLabelValues(ProviderYahoo)); got != 1 {
		t.Errorf("trips = %f, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.CircuitBreakerState.WithLabelValues(ProviderYahoo)); got != 2 {
		t.Errorf("state gauge = %f, want 2 (open)", got)
	}
}

func TestBreakers_HalfOpenCallRecovers(t *testing.T) {
	var healthy atomic.Bool
	server, _ := countingServer(t, &healthy, yahooQuoteJSON)

	cfg := tripConfig
	cfg.Timeout = 20 * time.Millisecond
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	breakers := NewBreakers(cfg).WithMetrics(metrics)
	yahoo := newBreakerYahoo(server, breakers, metrics)
	ctx := context.Background()

	_, _ = yahoo.FetchQuotes(ctx, []string{"SPY"})
	_, _ = yahoo.FetchQuotes(ctx, []string{"SPY"})
	if len(breakers.OpenProviders()) != 1 {
		t.Fatal("expected the breaker to be open")
	}

	healthy.Store(true)
	time.Sleep(40 * time.Millisecond)

	quotes, err := yahoo.FetchQuotes(ctx, []string{"SPY", "QQQ"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(quotes) != 2 {
		t.Errorf("expected 2 quotes after recovery, got %d", len(quotes))
	}
	if st := breakers.Status()[ProviderYahoo].State; st != "closed" {
		t.Errorf("state = %s, want closed", st)
	}
	if !yahoo.Healthy() {
		t.Error("yahoo should be healthy after the half-open call succeeds")
	}
}

func TestBreakers_AreIsolatedPerProvider(t *testing.T) {
	var yahooUp atomic.Bool
	yahooServer, _ := countingServer(t, &yahooUp, yahooQuoteJSON)

	var finnhubUp atomic.Bool
	finnhubUp.Store(true)
	finnhubServer, finnhubHits := countingServer(t, &finnhubUp, `{"c":101.5,"h":102,"l":99.8,"o":100,"pc":100}`)

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	breakers := NewBreakers(tripConfig).WithMetrics(metrics)
	yahoo := newBreakerYahoo(yahooServer, breakers, metrics)

	cfg := testProviderConfig()
	cfg.Retries = 0
	finnhub := NewFinnhubService("key", cfg, WithBreakers(breakers), WithClientMetrics(metrics))
	finnhub.baseURL = finnhubServer.URL

	ctx := context.Background()
	_, _ = yahoo.FetchQuotes(ctx, []string{"SPY"})
	_, _ = yahoo.FetchQuotes(ctx, []string{"SPY"})

	q, err := finnhub.FetchQuote(ctx, "SPY")
	if err != nil || q == nil {
		t.Fatalf("FetchQuote() = %v, %v, want a quote", q, err)
	}
	if finnhubHits.Load() != 1 {
		t.Errorf("finnhub hit %d times, want 1", finnhubHits.Load())
	}

	status := breakers.Status()
	if status[ProviderYahoo].State != "open" || status[ProviderFinnhub].State != "closed" {
		t.Errorf("states = yahoo %s, finnhub %s; want open, closed",
			status[ProviderYahoo].State, status[ProviderFinnhub].State)
	}
	if status[ProviderFinnhub].Requests != 1 {
		t.Errorf("finnhub requests = %d, want 1", status[ProviderFinnhub].Requests)
	}
}

func TestBreakers_CancelledCallsDoNotTrip(t *testing.T) {
	breakers := NewBreakers(tripConfig).WithMetrics(observability.NewMetrics(prometheus.NewRegistry()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 5; i++ {
		_, err := breakers.Do(ctx, ProviderSEC, func() ([]byte, error) {
			t.Error("fetch should not run with a cancelled context")
			return nil, nil
		})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	}

	if st := breakers.Status()[ProviderSEC].State; st != "closed" {
		t.Errorf("state = %s, want closed", st)
	}
	if open := breakers.OpenProviders(); len(open) != 0 {
		t.Errorf("open providers = %v, want none", open)
	}
}

func TestBreakers_RejectionWrapsUnavailable(t *testing.T) {
	breakers := NewBreakers(tripConfig).WithMetrics(observability.NewMetrics(prometheus.NewRegistry()))
	ctx := context.Background()
	upstream := errors.New("502 from upstream")

	for i := 0; i < 2; i++ {
		if _, err := breakers.Do(ctx, ProviderFRED, func() ([]byte, error) { return nil, upstream }); !errors.Is(err, upstream) {
			t.Fatalf("err = %v, want the upstream error", err)
		}
	}

	_, err := breakers.Do(ctx, ProviderFRED, func() ([]byte, error) {
		t.Error("fetch should not run while open")
		return nil, nil
	})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("err = %v, want ErrProviderUnavailable", err)
	}
	if errorType(err) != "unavailable" {
		t.Errorf("errorType = %s, want unavailable", errorType(err))
	}
}

func TestBreakers_BelowMinRequestsStaysClosed(t *testing.T) {
	cfg := DefaultBreakerConfig
	breakers := NewBreakers(cfg).WithMetrics(observability.NewMetrics(prometheus.NewRegistry()))

	for i := uint32(0); i < cfg.MinRequests-1; i++ {
		_, _ = breakers.Do(context.Background(), ProviderAlphaVantage, func() ([]byte, error) {
			return nil, errors.New("rate limited")
		})
	}
	if st := breakers.Status()[ProviderAlphaVantage].State; st != "closed" {
		t.Errorf("state = %s, want closed below MinRequests", st)
	}
}

func TestNewClient_UsesDefaultBreakers(t *testing.T) {
	c := NewClient("defaults", testProviderConfig(),
		WithClientMetrics(observability.NewMetrics(prometheus.NewRegistry())))

	if c.breakers != DefaultBreakers() {
		t.Error("client without WithBreakers should share DefaultBreakers")
	}
	if DefaultBreakers() != DefaultBreakers() {
		t.Error("DefaultBreakers should return one instance")
	}
}
