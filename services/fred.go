package services

import (
	"context"
	"net/url"
	"time"

	"market-pulse/config"
	"market-pulse/models"

	"github.com/shopspring/decimal"
)

// FREDHomeURL is linked from calendar events
const FREDHomeURL = "https://fred.stlouisfed.org"

// FREDService handles communication with the St. Louis Fed FRED API
type FREDService struct {
	*Client
	apiKey  string
	baseURL string
	now     func() time.Time
}

// NewFREDService creates a new FREDService instance
func NewFREDService(apiKey string, cfg config.ProviderConfig, opts ...ClientOption) *FREDService {
	return &FREDService{
		Client:  NewClient(ProviderFRED, cfg, opts...),
		apiKey:  apiKey,
		baseURL: "https://api.stlouisfed.org/fred",
		now:     time.Now,
	}
}

// HasCredentials reports whether an API key is configured
func (s *FREDService) HasCredentials() bool {
	return s.apiKey != ""
}

// FetchCalendar returns upcoming macro releases.
//
// Without an API key it returns a fixed pair of placeholder events (CPI in
// one day, the employment report in three). With a key no release dates are
// fetched and the list is empty.
func (s *FREDService) FetchCalendar(ctx context.Context) ([]models.MacroEvent, error) {
	if !s.HasCredentials() {
		now := s.now()
		return []models.MacroEvent{
			{Time: now.AddDate(0, 0, 1).Format(time.RFC3339), Label: "CPI (m/m)", URL: FREDHomeURL},
			{Time: now.AddDate(0, 0, 3).Format(time.RFC3339), Label: "Employment Report", URL: FREDHomeURL},
		}, nil
	}
	return []models.MacroEvent{}, nil
}

// observationsResponse is the series/observations payload
type observationsResponse struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

// FetchLatestValue returns the most recent observation of a series, or nil
// when the series has no usable value. FRED reports missing values as ".".
func (s *FREDService) FetchLatestValue(ctx context.Context, seriesID string) (*float64, error) {
	if !s.HasCredentials() {
		return nil, ErrNoCredentials
	}

	params := url.Values{}
	params.Set("series_id", seriesID)
	params.Set("api_key", s.apiKey)
	params.Set("file_type", "json")
	params.Set("sort_order", "desc")
	params.Set("limit", "5")

	var resp observationsResponse
	if err := s.getJSON(ctx, "observations", s.baseURL+"/series/observations?"+params.Encode(), nil, &resp); err != nil {
		return nil, nil
	}

	for _, obs := range resp.Observations {
		d, err := decimal.NewFromString(obs.Value)
		if err != nil {
			continue
		}
		v := d.InexactFloat64()
		return &v, nil
	}
	return nil, nil
}
