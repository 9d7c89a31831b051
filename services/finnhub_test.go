package services

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func newTestFinnhub(t *testing.T, apiKey string, handler http.HandlerFunc) *FinnhubService {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	_, opts := testClientOptions()
	s := NewFinnhubService(apiKey, testProviderConfig(), opts...)
	s.baseURL = server.URL + "/api/v1"
	return s
}

func TestNewFinnhubService(t *testing.T) {
	s := NewFinnhubService("key", testProviderConfig())
	if s.baseURL != "https://finnhub.io/api/v1" {
		t.Errorf("baseURL = %v", s.baseURL)
	}
	if s.Name() != ProviderFinnhub {
		t.Errorf("Name() = %v, want %v", s.Name(), ProviderFinnhub)
	}
}

func TestFinnhubService_FetchQuote(t *testing.T) {
	var gotToken, gotPath string
	s := newTestFinnhub(t, "token-1", func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.URL.Query().Get("token")
		w.Write([]byte(`{"c": 102, "h": 103.5, "l": 99.25, "o": 100, "pc": 100, "t": 1705330800}`))
	})

	q, err := s.FetchQuote(context.Background(), "DIA")
	if err != nil || q == nil {
		t.Fatalf("FetchQuote() = %v, %v", q, err)
	}
	if gotPath != "/api/v1/quote" || gotToken != "token-1" {
		t.Errorf("path=%q token=%q", gotPath, gotToken)
	}
	if q.Price != 102 {
		t.Errorf("Price = %v, want 102", q.Price)
	}
	if math.Abs(q.Pct-2.0) > 1e-9 {
		t.Errorf("Pct = %v, want 2.0", q.Pct)
	}
	if q.Volume != nil {
		t.Error("Finnhub quotes carry no volume")
	}
	if q.Low == nil || *q.Low != 99.25 {
		t.Errorf("Low = %v, want 99.25", q.Low)
	}
}

func TestFinnhubService_FetchQuote_ZeroPreviousClose(t *testing.T) {
	s := newTestFinnhub(t, "k", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"c": 5, "pc": 0}`))
	})

	q, err := s.FetchQuote(context.Background(), "NEW")
	if err != nil || q == nil {
		t.Fatalf("FetchQuote() = %v, %v", q, err)
	}
	if q.Pct != 0 {
		t.Errorf("Pct = %v, want 0 when previous close is zero", q.Pct)
	}
}

func TestFinnhubService_FetchQuote_MissingCurrent(t *testing.T) {
	s := newTestFinnhub(t, "k", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": "You don't have access to this resource."}`))
	})

	q, err := s.FetchQuote(context.Background(), "SPY")
	if err != nil || q != nil {
		t.Errorf("expected absent quote, got %v, %v", q, err)
	}
}

func TestFinnhubService_FetchQuotes_Partial(t *testing.T) {
	s := newTestFinnhub(t, "k", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") == "BAD" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"c": 10, "pc": 8}`))
	})

	quotes, err := s.FetchQuotes(context.Background(), []string{"SPY", "BAD", "QQQ"})
	if err != nil {
		t.Fatalf("a bad symbol must not fail the batch: %v", err)
	}
	if len(quotes) != 2 {
		t.Errorf("expected 2 quotes, got %d", len(quotes))
	}
	if _, ok := quotes["BAD"]; ok {
		t.Error("BAD should be omitted")
	}
}

func TestFinnhubService_NoCredentials(t *testing.T) {
	var calls atomic.Int32
	s := newTestFinnhub(t, "", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	quotes, err := s.FetchQuotes(context.Background(), []string{"SPY"})
	if err != nil || len(quotes) != 0 {
		t.Errorf("expected empty result, got %v, %v", quotes, err)
	}
	if calls.Load() != 0 {
		t.Errorf("expected no requests, got %d", calls.Load())
	}
}
