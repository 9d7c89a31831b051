package services

import (
	"context"
	"net/url"

	"market-pulse/config"
	"market-pulse/models"
)

// FinnhubService handles communication with the Finnhub quote API
type FinnhubService struct {
	*Client
	apiKey  string
	baseURL string
}

// NewFinnhubService creates a new FinnhubService instance
func NewFinnhubService(apiKey string, cfg config.ProviderConfig, opts ...ClientOption) *FinnhubService {
	return &FinnhubService{
		Client:  NewClient(ProviderFinnhub, cfg, opts...),
		apiKey:  apiKey,
		baseURL: "https://finnhub.io/api/v1",
	}
}

// HasCredentials reports whether an API key is configured
func (s *FinnhubService) HasCredentials() bool {
	return s.apiKey != ""
}

// finnhubQuote is the /quote payload: current, high, low, open, previous close
type finnhubQuote struct {
	C  *float64 `json:"c"`
	H  *float64 `json:"h"`
	L  *float64 `json:"l"`
	O  *float64 `json:"o"`
	PC *float64 `json:"pc"`
}

// FetchQuote returns the latest quote for a symbol, or nil if unavailable.
// Finnhub does not report volume.
func (s *FinnhubService) FetchQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	if !s.HasCredentials() {
		return nil, nil
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("token", s.apiKey)

	var raw finnhubQuote
	if err := s.getJSON(ctx, "quote", s.baseURL+"/quote?"+params.Encode(), nil, &raw); err != nil {
		return nil, nil
	}
	if raw.C == nil {
		return nil, nil
	}

	current := *raw.C
	prevClose := current
	if raw.PC != nil {
		prevClose = *raw.PC
	}

	var pct float64
	if prevClose != 0 {
		pct = (current - prevClose) / prevClose * 100
	}

	return &models.Quote{
		Symbol: symbol,
		Price:  current,
		Pct:    pct,
		High:   raw.H,
		Low:    raw.L,
	}, nil
}

// FetchQuotes fetches each symbol in turn, omitting failures
func (s *FinnhubService) FetchQuotes(ctx context.Context, symbols []string) (map[string]models.Quote, error) {
	quotes := make(map[string]models.Quote)
	if !s.HasCredentials() {
		return quotes, nil
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
