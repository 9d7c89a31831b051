package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"market-pulse/config"
)

func atomEntries(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, `<entry>
	<title>8-K - Company %d (0000%d) (Filer)</title>
	<link rel="alternate" type="text/html" href="https://www.sec.gov/Archives/edgar/data/%d/index.htm"/>
	<updated>2024-03-11T16:0%d:00-04:00</updated>
</entry>`, i, i, i, i%10)
	}
	return b.String()
}

func newTestSEC(t *testing.T, handler http.HandlerFunc) *SECService {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	_, opts := testClientOptions()
	s := NewSECService("", testProviderConfig(), opts...)
	s.feedURL = server.URL + "/cgi-bin/browse-edgar?action=getcurrent&output=atom"
	return s
}

func TestSECService_FetchHeadlines(t *testing.T) {
	var gotUA string
	s := newTestSEC(t, func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/atom+xml")
		fmt.Fprintf(w, `<?xml version="1.0" encoding="ISO-8859-1" ?>
<feed xmlns="http://www.w3.org/2005/Atom">
<title>Latest Filings</title>
%s
</feed>`, atomEntries(8))
	})

	headlines, err := s.FetchHeadlines(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotUA != config.DefaultSECUserAgent {
		t.Errorf("User-Agent = %q, want %q", gotUA, config.DefaultSECUserAgent)
	}
	if len(headlines) != 5 {
		t.Fatalf("expected top 5 headlines, got %d", len(headlines))
	}
	first := headlines[0]
	if first.Title != "8-K - Company 1 (00001) (Filer)" {
		t.Errorf("Title = %q", first.Title)
	}
	if first.URL != "https://www.sec.gov/Archives/edgar/data/1/index.htm" {
		t.Errorf("URL = %q", first.URL)
	}
	if first.Time != "2024-03-11T16:01:00-04:00" {
		t.Errorf("Time = %q", first.Time)
	}
	if !s.Healthy() {
		t.Error("expected healthy after a good feed")
	}
}

func TestSECService_FetchHeadlines_MissingUpdated(t *testing.T) {
	now := time.Date(2024, 3, 11, 20, 0, 0, 0, time.UTC)
	s := newTestSEC(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<feed xmlns="http://www.w3.org/2005/Atom">
<entry><title>10-Q - Example Corp</title><link href="https://example.com/f"/></entry>
<entry><title>no link</title></entry>
</feed>`))
	})
	s.now = func() time.Time { return now }

	headlines, err := s.FetchHeadlines(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(headlines) != 1 {
		t.Fatalf("entries without a link are skipped, got %d", len(headlines))
	}
	if headlines[0].Time != "2024-03-11T20:00:00Z" {
		t.Errorf("Time = %q, want now", headlines[0].Time)
	}
}

func TestSECService_FetchHeadlines_ParseFailure(t *testing.T) {
	s := newTestSEC(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>Request Rate Threshold Exceeded`))
	})

	headlines, err := s.FetchHeadlines(context.Background())
	if err != nil {
		t.Fatalf("failures must not be returned, got %v", err)
	}
	if headlines == nil || len(headlines) != 0 {
		t.Errorf("expected empty non-nil list, got %#v", headlines)
	}
	if s.Healthy() {
		t.Error("expected unhealthy after parse failure")
	}
}

func TestSECService_FetchHeadlines_NetworkFailure(t *testing.T) {
	s := newTestSEC(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	headlines, err := s.FetchHeadlines(context.Background())
	if err != nil || len(headlines) != 0 {
		t.Errorf("expected empty list, got %v, %v", headlines, err)
	}
	if s.Healthy() {
		t.Error("expected unhealthy after network failure")
	}
}
