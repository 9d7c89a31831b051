package services

import (
	"context"

	"market-pulse/models"
)

// QuoteProvider defines the interface for a quote source in a fallback chain.
// Unresolvable symbols are omitted from FetchQuotes rather than reported as errors.
type QuoteProvider interface {
	Name() string
	FetchQuote(ctx context.Context, symbol string) (*models.Quote, error)
	FetchQuotes(ctx context.Context, symbols []string) (map[string]models.Quote, error)
}

// SparklineProvider defines the interface for intraday close series
type SparklineProvider interface {
	Name() string
	FetchSparkline(ctx context.Context, symbol string, points int) ([]float64, error)
}

// MacroCalendarProvider defines the interface for upcoming economic releases
type MacroCalendarProvider interface {
	FetchCalendar(ctx context.Context) ([]models.MacroEvent, error)
}

// SeriesProvider defines the interface for economic series lookups
type SeriesProvider interface {
	FetchLatestValue(ctx context.Context, seriesID string) (*float64, error)
}

// HeadlineProvider defines the interface for regulatory filing headlines
type HeadlineProvider interface {
	FetchHeadlines(ctx context.Context) ([]models.SECHeadline, error)
}

// HealthReporter is implemented by every adapter
type HealthReporter interface {
	Name() string
	Healthy() bool
}

// Compile-time interface verification
var _ QuoteProvider = (*YahooService)(nil)
var _ QuoteProvider = (*AlphaVantageService)(nil)
var _ QuoteProvider = (*FinnhubService)(nil)
var _ SparklineProvider = (*YahooService)(nil)
var _ SparklineProvider = (*AlphaVantageService)(nil)
var _ MacroCalendarProvider = (*FREDService)(nil)
var _ SeriesProvider = (*FREDService)(nil)
var _ HeadlineProvider = (*SECService)(nil)
var _ HealthReporter = (*SECService)(nil)
