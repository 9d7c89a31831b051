package services

import (
	"context"
	"net/url"
	"strings"

	"market-pulse/config"
	"market-pulse/models"
)

// SparklinePoints is the number of closes returned for a sparkline
const SparklinePoints = 50

var yahooHeaders = map[string]string{
	"User-Agent": "Mozilla/5.0",
	"Accept":     "application/json",
}

// YahooService handles communication with the unofficial Yahoo Finance API.
// It needs no credentials and is the primary quote provider.
type YahooService struct {
	*Client
	quoteURL string
	chartURL string
}

// NewYahooService creates a new YahooService instance
func NewYahooService(cfg config.ProviderConfig, opts ...ClientOption) *YahooService {
	return &YahooService{
		Client:   NewClient(ProviderYahoo, cfg, opts...),
		quoteURL: "https://query1.finance.yahoo.com/v7/finance/quote",
		chartURL: "https://query1.finance.yahoo.com/v8/finance/chart",
	}
}

// yahooQuoteResponse represents the v7 quote response
type yahooQuoteResponse struct {
	QuoteResponse struct {
		Result []yahooQuote `json:"result"`
	} `json:"quoteResponse"`
}

type yahooQuote struct {
	Symbol                     string   `json:"symbol"`
	RegularMarketPrice         *float64 `json:"regularMarketPrice"`
	RegularMarketChangePercent *float64 `json:"regularMarketChangePercent"`
	RegularMarketDayHigh       *float64 `json:"regularMarketDayHigh"`
	RegularMarketDayLow        *float64 `json:"regularMarketDayLow"`
	RegularMarketVolume        *float64 `json:"regularMarketVolume"`
}

// yahooChartResponse represents the v8 chart response
type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
	} `json:"chart"`
}

func (q yahooQuote) toQuote() (models.Quote, bool) {
	if q.Symbol == "" || q.RegularMarketPrice == nil {
		return models.Quote{}, false
	}
	quote := models.Quote{
		Symbol: q.Symbol,
		Price:  *q.RegularMarketPrice,
		High:   q.RegularMarketDayHigh,
		Low:    q.RegularMarketDayLow,
	}
	if q.RegularMarketChangePercent != nil {
		quote.Pct = *q.RegularMarketChangePercent
	}
	if q.RegularMarketVolume != nil {
		v := int64(*q.RegularMarketVolume)
		quote.Volume = &v
	}
	return quote, true
}

// FetchQuote returns the quote for a single symbol, or nil if unavailable
func (s *YahooService) FetchQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	quotes, err := s.FetchQuotes(ctx, []string{symbol})
	if err != nil {
		return nil, err
	}
	if q, ok := quotes[symbol]; ok {
		return &q, nil
	}
	return nil, nil
}

// FetchQuotes returns quotes for all symbols in one batch request.
// Symbols Yahoo does not resolve are omitted.
func (s *YahooService) FetchQuotes(ctx context.Context, symbols []string) (map[string]models.Quote, error) {
	quotes := make(map[string]models.Quote)
	if len(symbols) == 0 {
		return quotes, nil
	}

	params := url.Values{}
	params.Set("symbols", strings.Join(symbols, ","))

	var resp yahooQuoteResponse
	if err := s.getJSON(ctx, "quote", s.quoteURL+"?"+params.Encode(), yahooHeaders, &resp); err != nil {
		return quotes, nil
	}

	for _, raw := range resp.QuoteResponse.Result {
		if q, ok := raw.toQuote(); ok {
			quotes[q.Symbol] = q
		}
	}
	return quotes, nil
}

// FetchSparkline returns up to points of the latest non-null 5-minute closes
// for today's session, oldest first
func (s *YahooService) FetchSparkline(ctx context.Context, symbol string, points int) ([]float64, error) {
	params := url.Values{}
	params.Set("interval", "5m")
	params.Set("range", "1d")

	var resp yahooChartResponse
	rawURL := s.chartURL + "/" + url.PathEscape(symbol) + "?" + params.Encode()
	if err := s.getJSON(ctx, "chart", rawURL, yahooHeaders, &resp); err != nil {
		return nil, nil
	}
	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}

	var closes []float64
	for _, c := range resp.Chart.Result[0].Indicators.Quote[0].Close {
		if c != nil {
			closes = append(closes, *c)
		}
	}
	if points > 0 && len(closes) > points {
		closes = closes[len(closes)-points:]
	}
	return closes, nil
}
