package services

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"market-pulse/config"
	"market-pulse/models"

	"github.com/shopspring/decimal"
)

// alphaVantageBatchLimit caps per-request symbol fan-out; the free tier
// allows only a handful of calls per minute
const alphaVantageBatchLimit = 5

// AlphaVantageService handles communication with Alpha Vantage API
type AlphaVantageService struct {
	*Client
	apiKey  string
	baseURL string
}

// NewAlphaVantageService creates a new AlphaVantageService instance
func NewAlphaVantageService(apiKey string, cfg config.ProviderConfig, opts ...ClientOption) *AlphaVantageService {
	return &AlphaVantageService{
		Client:  NewClient(ProviderAlphaVantage, cfg, opts...),
		apiKey:  apiKey,
		baseURL: "https://www.alphavantage.co/query",
	}
}

// HasCredentials reports whether an API key is configured
func (s *AlphaVantageService) HasCredentials() bool {
	return s.apiKey != ""
}

// QuoteResponse represents a quote from Alpha Vantage
type QuoteResponse struct {
	GlobalQuote struct {
		Symbol        string `json:"01. symbol"`
		Open          string `json:"02. open"`
		High          string `json:"03. high"`
		Low           string `json:"04. low"`
		Price         string `json:"05. price"`
		Volume        string `json:"06. volume"`
		LatestDay     string `json:"07. latest trading day"`
		PreviousClose string `json:"08. previous close"`
		Change        string `json:"09. change"`
		ChangePercent string `json:"10. change percent"`
	} `json:"Global Quote"`
}

// IntradayResponse represents a 5-minute intraday series from Alpha Vantage
type IntradayResponse struct {
	TimeSeries map[string]struct {
		Close string `json:"4. close"`
	} `json:"Time Series (5min)"`
}

// FetchQuote returns the latest quote for a symbol, or nil if unavailable
func (s *AlphaVantageService) FetchQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	if !s.HasCredentials() {
		return nil, nil
	}

	params := url.Values{}
	params.Set("function", "GLOBAL_QUOTE")
	params.Set("symbol", symbol)
	params.Set("apikey", s.apiKey)

	var quoteResp QuoteResponse
	if err := s.getJSON(ctx, "quote", s.baseURL+"?"+params.Encode(), nil, &quoteResp); err != nil {
		return nil, nil
	}

	gq := quoteResp.GlobalQuote
	price, err := decimal.NewFromString(gq.Price)
	if err != nil {
		return nil, nil
	}

	quote := &models.Quote{
		Symbol: symbol,
		Price:  price.InexactFloat64(),
		Pct:    ParsePercent(gq.ChangePercent),
	}
	if gq.Symbol != "" {
		quote.Symbol = gq.Symbol
	}
	if high, err := decimal.NewFromString(gq.High); err == nil {
		h := high.InexactFloat64()
		quote.High = &h
	}
	if low, err := decimal.NewFromString(gq.Low); err == nil {
		l := low.InexactFloat64()
		quote.Low = &l
	}
	if volume, err := decimal.NewFromString(gq.Volume); err == nil {
		v := volume.IntPart()
		quote.Volume = &v
	}
	return quote, nil
}

// FetchQuotes fetches the first five symbols one at a time.
// Symbols that fail are omitted.
func (s *AlphaVantageService) FetchQuotes(ctx context.Context, symbols []string) (map[string]models.Quote, error) {
	quotes := make(map[string]models.Quote)
	if !s.HasCredentials() {
		return quotes, nil
	}

	if len(symbols) > alphaVantageBatchLimit {
		symbols = symbols[:alphaVantageBatchLimit]
	}
	for _, symbol := range symbols {
		q, err := s.FetchQuote(ctx, symbol)
		if err != nil || q == nil {
			continue
		}
		quotes[symbol] = *q
	}
	return quotes, nil
}

// FetchSparkline returns up to points of the latest 5-minute closes, oldest first
func (s *AlphaVantageService) FetchSparkline(ctx context.Context, symbol string, points int) ([]float64, error) {
	if !s.HasCredentials() {
		return nil, ErrNoCredentials
	}

	params := url.Values{}
	params.Set("function", "TIME_SERIES_INTRADAY")
	params.Set("symbol", symbol)
	params.Set("interval", "5min")
	params.Set("apikey", s.apiKey)

	var resp IntradayResponse
	if err := s.getJSON(ctx, "intraday", s.baseURL+"?"+params.Encode(), nil, &resp); err != nil {
		return nil, nil
	}

	// Timestamps are "YYYY-MM-DD hh:mm:ss" and sort lexically; newest first here
	stamps := make([]string, 0, len(resp.TimeSeries))
	for ts := range resp.TimeSeries {
		stamps = append(stamps, ts)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(stamps)))
	if points > 0 && len(stamps) > points {
		stamps = stamps[:points]
	}

	closes := make([]float64, 0, len(stamps))
	for i := len(stamps) - 1; i >= 0; i-- {
		c, err := decimal.NewFromString(resp.TimeSeries[stamps[i]].Close)
		if err != nil {
			continue
		}
		closes = append(closes, c.InexactFloat64())
	}
	return closes, nil
}

// ParsePercent parses a percent-change string such as "1.35%". Anything
// unparseable yields 0.
func ParsePercent(s string) float64 {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}
