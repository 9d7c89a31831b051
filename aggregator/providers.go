package aggregator

import (
	"fmt"

	"market-pulse/config"
	"market-pulse/services"
)

// Providers is the set of adapters the aggregator draws from
type Providers struct {
	// Quotes is the generic fallback chain, in priority order
	Quotes []services.QuoteProvider
	// Index is the single provider used for index proxies
	Index services.QuoteProvider
	// VIX is the single provider asked for the volatility index before Series
	VIX services.QuoteProvider
	// Sparklines is tried in order for intraday series
	Sparklines []services.SparklineProvider

	Series    services.SeriesProvider
	Calendar  services.MacroCalendarProvider
	Headlines services.HeadlineProvider

	// Health lists every adapter reported by the health endpoint
	Health []services.HealthReporter
}

// NewProviders builds the adapters from configuration. Keyed providers
// without credentials are left out of the fallback chains; they still appear
// in the health report.
func NewProviders(cfg *config.Config, universe *config.Universe, opts ...services.ClientOption) (Providers, error) {
	yahoo := services.NewYahooService(cfg.Provider, opts...)
	av := services.NewAlphaVantageService(cfg.AlphaVantage.APIKey, cfg.Provider, opts...)
	finnhub := services.NewFinnhubService(cfg.Finnhub.APIKey, cfg.Provider, opts...)
	fred := services.NewFREDService(cfg.FRED.APIKey, cfg.Provider, opts...)
	sec := services.NewSECService(cfg.SEC.UserAgent, cfg.Provider, opts...)

	p := Providers{
		Quotes:     []services.QuoteProvider{yahoo},
		Sparklines: []services.SparklineProvider{yahoo},
		Series:     fred,
		Calendar:   fred,
		Headlines:  sec,
		Health:     []services.HealthReporter{yahoo, av, finnhub, fred, sec},
	}
	if av.HasCredentials() {
		p.Quotes = append(p.Quotes, av)
		p.Sparklines = append(p.Sparklines, av)
	}
	if finnhub.HasCredentials() {
		p.Quotes = append(p.Quotes, finnhub)
	}

	var err error
	if p.Index, err = p.designated("index", universe.IndexProvider); err != nil {
		return Providers{}, err
	}
	if p.VIX, err = p.designated("VIX", universe.VIX.Provider); err != nil {
		return Providers{}, err
	}

	return p, nil
}

// designated picks the named provider out of the quote chain
func (p Providers) designated(role, name string) (services.QuoteProvider, error) {
	for _, q := range p.Quotes {
		if q.Name() == name {
			return q, nil
		}
	}
	return nil, fmt.Errorf("%s provider %q is not configured", role, name)
}
