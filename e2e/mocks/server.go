// Package mocks provides an HTTP mock of every upstream market data provider
// used in E2E tests.
package mocks

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
)

// MockServer serves canned Yahoo, Alpha Vantage, Finnhub, FRED and SEC
// responses. Point providers at it with Client.
type MockServer struct {
	mu     sync.RWMutex
	server *httptest.Server

	// Response configurations
	yahooQuotes  map[string]Quote
	alphaQuotes  map[string]Quote
	finnhub      map[string]Quote
	sparklines   map[string][]float64
	alphaSeries  map[string][]float64
	observations map[string][]Observation
	filings      []Filing

	// Error injection: host -> status code
	failures map[string]int

	// Request tracking for assertions
	requestLog []RequestLog
}

// RequestLog records incoming requests for test assertions.
type RequestLog struct {
	Host  string
	Path  string
	Query url.Values
}

// NewMockServer creates a new mock server with default responses.
func NewMockServer() *MockServer {
	m := &MockServer{
		yahooQuotes:  make(map[string]Quote),
		alphaQuotes:  make(map[string]Quote),
		finnhub:      make(map[string]Quote),
		sparklines:   make(map[string][]float64),
		alphaSeries:  make(map[string][]float64),
		observations: make(map[string][]Observation),
		failures:     make(map[string]int),
		requestLog:   make([]RequestLog, 0),
	}
	m.setDefaults()
	m.server = httptest.NewServer(m)
	return m
}

// URL returns the mock server's base URL.
func (m *MockServer) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockServer) Close() {
	m.server.Close()
}

// Client returns an http.Client that sends every request to the mock server,
// whatever host it was addressed to.
func (m *MockServer) Client() *http.Client {
	target, _ := url.Parse(m.server.URL)
	return &http.Client{Transport: &rewriteTransport{target: target, base: m.server.Client().Transport}}
}

type rewriteTransport struct {
	target *url.URL
	base   http.RoundTripper
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.Header.Set(UpstreamHeader, req.URL.Host)
	out.URL.Scheme = t.target.Scheme
	out.URL.Host = t.target.Host
	out.Host = t.target.Host
	return t.base.RoundTrip(out)
}

// ServeHTTP implements http.Handler to route requests to the matching upstream mock.
func (m *MockServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	host := r.Header.Get(UpstreamHeader)

	m.mu.Lock()
	m.requestLog = append(m.requestLog, RequestLog{
		Host:  host,
		Path:  r.URL.Path,
		Query: r.URL.Query(),
	})
	status, failing := m.failures[host]
	m.mu.Unlock()

	if failing {
		http.Error(w, "upstream unavailable", status)
		return
	}

	path := r.URL.Path

	switch {
	case host == YahooHost && path == "/v7/finance/quote":
		m.handleYahooQuote(w, r)
	case host == YahooHost && strings.HasPrefix(path, "/v8/finance/chart/"):
		m.handleYahooChart(w, r)
	case host == AlphaVantageHost && path == "/query":
		m.handleAlphaVantage(w, r)
	case host == FinnhubHost && path == "/api/v1/quote":
		m.handleFinnhub(w, r)
	case host == FREDHost && path == "/fred/series/observations":
		m.handleFRED(w, r)
	case host == SECHost && path == "/cgi-bin/browse-edgar":
		m.handleSEC(w, r)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// GetRequestLog returns all logged requests for assertions.
func (m *MockServer) GetRequestLog() []RequestLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RequestLog{}, m.requestLog...)
}

// RequestsTo returns the logged requests addressed to host.
func (m *MockServer) RequestsTo(host string) []RequestLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []RequestLog
	for _, l := range m.requestLog {
		if l.Host == host {
			out = append(out, l)
		}
	}
	return out
}

// ClearRequestLog clears the request log.
func (m *MockServer) ClearRequestLog() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestLog = make([]RequestLog, 0)
}

// SetYahooQuote configures the Yahoo quote for q.Symbol.
func (m *MockServer) SetYahooQuote(q Quote) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.yahooQuotes[q.Symbol] = q
}

// RemoveYahooQuote makes Yahoo omit symbol from quote results.
func (m *MockServer) RemoveYahooQuote(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.yahooQuotes, symbol)
}

// SetAlphaVantageQuote configures the Alpha Vantage GLOBAL_QUOTE for q.Symbol.
func (m *MockServer) SetAlphaVantageQuote(q Quote) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alphaQuotes[q.Symbol] = q
}

// SetFinnhubQuote configures the Finnhub quote for q.Symbol.
func (m *MockServer) SetFinnhubQuote(q Quote) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finnhub[q.Symbol] = q
}

// SetYahooSparkline configures the Yahoo intraday closes for symbol.
func (m *MockServer) SetYahooSparkline(symbol string, closes []float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sparklines[symbol] = closes
}

// SetAlphaVantageSparkline configures the Alpha Vantage intraday closes for symbol.
func (m *MockServer) SetAlphaVantageSparkline(symbol string, closes []float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alphaSeries[symbol] = closes
}

// SetObservations configures a FRED series, newest first.
func (m *MockServer) SetObservations(seriesID string, obs []Observation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observations[seriesID] = obs
}

// SetFilings configures the EDGAR feed entries.
func (m *MockServer) SetFilings(filings []Filing) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filings = filings
}

// SetUpstreamError makes every request to host fail with status.
func (m *MockServer) SetUpstreamError(host string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[host] = status
}

// ClearUpstreamError restores normal responses for host.
func (m *MockServer) ClearUpstreamError(host string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failures, host)
}

func (m *MockServer) setDefaults() {
	// Index proxies, VIX and the eleven sector funds on Yahoo
	for _, q := range []Quote{
		{Symbol: "SPY", Price: 512.30, Pct: 0.84, High: 513.10, Low: 508.20, Volume: 61000000},
		{Symbol: "QQQ", Price: 441.75, Pct: 1.12, High: 442.60, Low: 436.90, Volume: 38000000},
		{Symbol: "DIA", Price: 389.40, Pct: 0.35, High: 390.00, Low: 387.10, Volume: 2900000},
		{Symbol: "^VIX", Price: 13.80, Pct: -6.2},
		{Symbol: "XLY", Price: 181.20, Pct: 0.9},
		{Symbol: "XLP", Price: 75.10, Pct: 0.3},
		{Symbol: "XLE", Price: 92.40, Pct: 1.1},
		{Symbol: "XLF", Price: 41.30, Pct: 0.6},
		{Symbol: "XLV", Price: 146.80, Pct: 0.4},
		{Symbol: "XLI", Price: 122.50, Pct: 0.7},
		{Symbol: "XLB", Price: 89.90, Pct: 0.5},
		{Symbol: "XLK", Price: 210.60, Pct: 0.8},
		{Symbol: "XLU", Price: 64.20, Pct: -0.2},
		{Symbol: "XLRE", Price: 39.80, Pct: -0.1},
		{Symbol: "XLC", Price: 80.10, Pct: 0.2},
		{Symbol: "AAPL", Price: 172.50, Pct: 1.4, High: 173.00, Low: 170.10, Volume: 52000000},
		{Symbol: "MSFT", Price: 409.10, Pct: -0.3, High: 412.00, Low: 407.50, Volume: 21000000},
	} {
		m.yahooQuotes[q.Symbol] = q
	}

	m.sparklines["AAPL"] = []float64{170.1, 170.9, 171.6, 172.5}
	m.sparklines["MSFT"] = []float64{410.2, 409.8, 409.1}

	m.observations["VIXCLS"] = []Observation{
		{Date: "2024-03-11", Value: "."},
		{Date: "2024-03-08", Value: "14.74"},
	}

	m.filings = []Filing{
		{Title: "8-K - Apple Inc. (0000320193) (Filer)", Updated: "2024-03-11T10:02:11-04:00", Link: "https://www.sec.gov/Archives/edgar/data/320193/0000320193-24-000001-index.htm"},
		{Title: "10-Q - Microsoft Corp (0000789019) (Filer)", Updated: "2024-03-11T09:58:40-04:00", Link: "https://www.sec.gov/Archives/edgar/data/789019/0000789019-24-000002-index.htm"},
		{Title: "4 - NVIDIA CORP (0001045810) (Issuer)", Updated: "2024-03-11T09:55:03-04:00", Link: "https://www.sec.gov/Archives/edgar/data/1045810/0001045810-24-000003-index.htm"},
		{Title: "SC 13G - Tesla, Inc. (0001318605) (Subject)", Updated: "2024-03-11T09:51:27-04:00", Link: "https://www.sec.gov/Archives/edgar/data/1318605/0001318605-24-000004-index.htm"},
		{Title: "S-1 - Example Holdings (0009999999) (Filer)", Updated: "2024-03-11T09:47:12-04:00", Link: "https://www.sec.gov/Archives/edgar/data/9999999/0009999999-24-000005-index.htm"},
		{Title: "424B2 - Goldman Sachs (0000886982) (Filer)", Updated: "2024-03-11T09:45:00-04:00", Link: "https://www.sec.gov/Archives/edgar/data/886982/0000886982-24-000006-index.htm"},
	}
}

func (m *MockServer) handleYahooQuote(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var resp yahooQuoteResponse
	resp.QuoteResponse.Result = []yahooQuote{}
	for _, sym := range strings.Split(r.URL.Query().Get("symbols"), ",") {
		q, ok := m.yahooQuotes[sym]
		if !ok {
			continue
		}
		resp.QuoteResponse.Result = append(resp.QuoteResponse.Result, yahooQuote{
			Symbol:                     q.Symbol,
			RegularMarketPrice:         q.Price,
			RegularMarketChangePercent: q.Pct,
			RegularMarketDayHigh:       q.High,
			RegularMarketDayLow:        q.Low,
			RegularMarketVolume:        q.Volume,
		})
	}

	writeJSON(w, resp)
}

func (m *MockServer) handleYahooChart(w http.ResponseWriter, r *http.Request) {
	symbol, _ := url.PathUnescape(strings.TrimPrefix(r.URL.Path, "/v8/finance/chart/"))

	m.mu.RLock()
	closes, ok := m.sparklines[symbol]
	m.mu.RUnlock()

	var resp yahooChartResponse
	resp.Chart.Result = []yahooChartResult{}
	if ok {
		// Yahoo pads the series with nulls for intervals without trades
		series := []*float64{nil}
		for i := range closes {
			series = append(series, &closes[i])
		}
		var result yahooChartResult
		result.Indicators.Quote = []yahooChartQuote{{Close: series}}
		resp.Chart.Result = append(resp.Chart.Result, result)
	}

	writeJSON(w, resp)
}

func (m *MockServer) handleAlphaVantage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	symbol := q.Get("symbol")

	m.mu.RLock()
	defer m.mu.RUnlock()

	switch q.Get("function") {
	case "GLOBAL_QUOTE":
		resp := alphaGlobalQuote{GlobalQuote: map[string]string{}}
		if quote, ok := m.alphaQuotes[symbol]; ok {
			resp.GlobalQuote = map[string]string{
				"01. symbol":         quote.Symbol,
				"03. high":           formatFloat(quote.High),
				"04. low":            formatFloat(quote.Low),
				"05. price":          formatFloat(quote.Price),
				"06. volume":         fmt.Sprintf("%d", quote.Volume),
				"10. change percent": formatFloat(quote.Pct) + "%",
			}
		}
		writeJSON(w, resp)
	case "TIME_SERIES_INTRADAY":
		resp := alphaIntraday{TimeSeries: map[string]map[string]string{}}
		for i, c := range m.alphaSeries[symbol] {
			stamp := fmt.Sprintf("2024-03-11 %02d:%02d:00", 9+(30+5*i)/60, (30+5*i)%60)
			resp.TimeSeries[stamp] = map[string]string{"4. close": formatFloat(c)}
		}
		writeJSON(w, resp)
	default:
		writeJSON(w, map[string]string{"Error Message": "Invalid API call."})
	}
}

func (m *MockServer) handleFinnhub(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	q, ok := m.finnhub[r.URL.Query().Get("symbol")]
	m.mu.RUnlock()

	if !ok {
		writeJSON(w, finnhubQuote{})
		return
	}
	writeJSON(w, finnhubQuote{C: q.Price, H: q.High, L: q.Low, O: q.Price, PC: q.PreviousClose()})
}

func (m *MockServer) handleFRED(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	obs := m.observations[r.URL.Query().Get("series_id")]
	m.mu.RUnlock()

	if obs == nil {
		http.Error(w, `{"error_code":400,"error_message":"Bad Request. The series does not exist."}`, http.StatusBadRequest)
		return
	}
	writeJSON(w, fredObservations{Observations: obs})
}

type atomLink struct {
	Href string `xml:"href,attr"`
}

type atomEntry struct {
	Title   string   `xml:"title"`
	Updated string   `xml:"updated"`
	Link    atomLink `xml:"link"`
}

type atomFeed struct {
	XMLName xml.Name    `xml:"http://www.w3.org/2005/Atom feed"`
	Title   string      `xml:"title"`
	Entries []atomEntry `xml:"entry"`
}

func (m *MockServer) handleSEC(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("User-Agent") == "" {
		http.Error(w, "Undeclared Automated Tool", http.StatusForbidden)
		return
	}

	m.mu.RLock()
	feed := atomFeed{Title: "Latest Filings"}
	for _, f := range m.filings {
		feed.Entries = append(feed.Entries, atomEntry{Title: f.Title, Updated: f.Updated, Link: atomLink{Href: f.Link}})
	}
	m.mu.RUnlock()

	w.Header().Set("Content-Type", "application/atom+xml")
	fmt.Fprint(w, xml.Header)
	if err := xml.NewEncoder(w).Encode(feed); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%.4f", f)
}
