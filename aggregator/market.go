// Package aggregator resolves each market data category through its provider
// chain and cache, and assembles the market summary.
package aggregator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"market-pulse/cache"
	"market-pulse/config"
	"market-pulse/models"
	"market-pulse/observability"
	"market-pulse/services"
)

// sparklineConcurrency bounds parallel sparkline fetches for a watchlist
const sparklineConcurrency = 4

// Sourced is a cached category value together with its provenance
type Sourced[T any] struct {
	Value  T      `json:"value"`
	Source string `json:"source"`
}

// MarketService serves every market data category. Caches are owned by the
// caller and shared for the life of the process.
type MarketService struct {
	providers Providers
	universe  *config.Universe
	caches    *cache.Set
	metrics   *observability.Metrics
	now       func() time.Time
}

// Option configures a MarketService
type Option func(*MarketService)

// WithMetrics sets the metrics sink
func WithMetrics(m *observability.Metrics) Option {
	return func(s *MarketService) {
		s.metrics = m
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(s *MarketService) {
		s.now = now
	}
}

// NewMarketService creates a new MarketService instance
func NewMarketService(providers Providers, universe *config.Universe, caches *cache.Set, opts ...Option) *MarketService {
	s := &MarketService{
		providers: providers,
		universe:  universe,
		caches:    caches,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observability.GetMetrics()
	}
	return s
}

// Universe returns the instrument universe the service covers
func (s *MarketService) Universe() *config.Universe {
	return s.universe
}

func quotesEmpty(m map[string]models.Quote) bool {
	return len(m) == 0
}

func fetchQuotes(symbols []string) func(context.Context, services.QuoteProvider) (map[string]models.Quote, error) {
	return func(ctx context.Context, p services.QuoteProvider) (map[string]models.Quote, error) {
		return p.FetchQuotes(ctx, symbols)
	}
}

// GetIndices returns the major indices, priced through their proxy ETFs on
// the designated index provider. Indices without a quote are reported with
// zero price and change.
func (s *MarketService) GetIndices(ctx context.Context) ([]models.Quote, string, error) {
	v, err := cache.GetOrLoad(ctx, s.caches.Quotes, cache.Key(models.CategoryIndices),
		func(ctx context.Context) (Sourced[[]models.Quote], error) {
			var chain []services.QuoteProvider
			if s.providers.Index != nil {
				chain = []services.QuoteProvider{s.providers.Index}
			}

			quotes, source := Resolve(ctx, models.CategoryIndices, chain,
				fetchQuotes(s.universe.ProxySymbols()), quotesEmpty)

			out := make([]models.Quote, 0, len(s.universe.Indices))
			for _, idx := range s.universe.Indices {
				q, ok := quotes[idx.Proxy]
				if !ok {
					out = append(out, models.Quote{Symbol: idx.Symbol})
					continue
				}
				q.Symbol = idx.Symbol
				out = append(out, q)
			}
			return Sourced[[]models.Quote]{Value: out, Source: source}, nil
		})
	if err != nil {
		return nil, "", err
	}
	return v.Value, v.Source, nil
}

// GetVIX returns the volatility index from the designated VIX provider. When
// that provider has no usable level, the latest FRED close is used with a
// zero change; the rest of the quote chain is not consulted.
func (s *MarketService) GetVIX(ctx context.Context) (models.VIXData, string, error) {
	symbol := s.universe.VIX.Symbol

	v, err := cache.GetOrLoad(ctx, s.caches.Quotes, cache.Key(models.CategoryVIX),
		func(ctx context.Context) (Sourced[models.VIXData], error) {
			var chain []services.QuoteProvider
			if s.providers.VIX != nil {
				chain = []services.QuoteProvider{s.providers.VIX}
			}

			quotes, source := Resolve(ctx, models.CategoryVIX, chain,
				fetchQuotes([]string{symbol}),
				func(m map[string]models.Quote) bool {
					q, ok := m[symbol]
					return !ok || q.IsZero()
				})
			if q, ok := quotes[symbol]; ok && !q.IsZero() {
				return Sourced[models.VIXData]{
					Value:  models.VIXData{Symbol: symbol, Price: q.Price, Pct: q.Pct},
					Source: source,
				}, nil
			}

			empty := models.VIXData{Symbol: symbol}
			if s.providers.Series == nil || s.universe.VIX.FREDSeries == "" {
				return Sourced[models.VIXData]{Value: empty, Source: models.SourceNone}, nil
			}

			level, err := s.providers.Series.FetchLatestValue(ctx, s.universe.VIX.FREDSeries)
			switch {
			case err != nil:
				observability.WithProvider(services.ProviderFRED).Warn("VIX series unavailable", "error", err)
				s.metrics.RecordResolverAttempt(models.CategoryVIX, services.ProviderFRED, outcomeError)
			case level == nil || *level <= 0:
				s.metrics.RecordResolverAttempt(models.CategoryVIX, services.ProviderFRED, outcomeEmpty)
			default:
				s.metrics.RecordResolverAttempt(models.CategoryVIX, services.ProviderFRED, outcomeHit)
				return Sourced[models.VIXData]{
					Value:  models.VIXData{Symbol: symbol, Price: *level},
					Source: services.ProviderFRED,
				}, nil
			}
			return Sourced[models.VIXData]{Value: empty, Source: models.SourceNone}, nil
		})
	if err != nil {
		return models.VIXData{}, "", err
	}
	return v.Value, v.Source, nil
}

// GetSectors returns the daily change of every sector ETF in universe order.
// A sector without a quote reports a zero change.
func (s *MarketService) GetSectors(ctx context.Context) ([]models.SectorData, string, error) {
	v, err := cache.GetOrLoad(ctx, s.caches.Sectors, cache.Key(models.CategorySectors),
		func(ctx context.Context) (Sourced[[]models.SectorData], error) {
			quotes, source := Resolve(ctx, models.CategorySectors, s.providers.Quotes,
				fetchQuotes(s.universe.SectorSymbols()), quotesEmpty)

			out := make([]models.SectorData, 0, len(s.universe.Sectors))
			for _, sec := range s.universe.Sectors {
				out = append(out, models.SectorData{
					Symbol: sec.Symbol,
					Name:   sec.Name,
					Pct:    quotes[sec.Symbol].Pct,
				})
			}
			return Sourced[[]models.SectorData]{Value: out, Source: source}, nil
		})
	if err != nil {
		return nil, "", err
	}
	return v.Value, v.Source, nil
}

// GetBreadth returns advance/decline statistics. No provider supplies them,
// so every count is reported as unavailable.
func (s *MarketService) GetBreadth(ctx context.Context) (map[string]models.BreadthData, string, error) {
	v, err := cache.GetOrLoad(ctx, s.caches.Breadth, cache.Key(models.CategoryBreadth),
		func(ctx context.Context) (Sourced[map[string]models.BreadthData], error) {
			return Sourced[map[string]models.BreadthData]{Value: models.NewBreadth(), Source: models.SourceMockData}, nil
		})
	if err != nil {
		return nil, "", err
	}
	return v.Value, v.Source, nil
}

// GetMovers returns the gainers, losers and most-active lists. No provider
// supplies them, so every list is empty.
func (s *MarketService) GetMovers(ctx context.Context) (map[string][]models.Mover, string, error) {
	v, err := cache.GetOrLoad(ctx, s.caches.Movers, cache.Key(models.CategoryMovers),
		func(ctx context.Context) (Sourced[map[string][]models.Mover], error) {
			return Sourced[map[string][]models.Mover]{Value: models.NewMovers(), Source: models.SourceMockData}, nil
		})
	if err != nil {
		return nil, "", err
	}
	return v.Value, v.Source, nil
}

// GetMacroCalendar returns upcoming economic releases
func (s *MarketService) GetMacroCalendar(ctx context.Context) ([]models.MacroEvent, string, error) {
	if s.providers.Calendar == nil {
		return []models.MacroEvent{}, models.SourceNone, nil
	}

	v, err := cache.GetOrLoad(ctx, s.caches.Macro, cache.Key(models.CategoryMacro),
		func(ctx context.Context) (Sourced[[]models.MacroEvent], error) {
			events, err := s.providers.Calendar.FetchCalendar(ctx)
			if err != nil {
				return Sourced[[]models.MacroEvent]{}, fmt.Errorf("failed to fetch macro calendar: %w", err)
			}
			if events == nil {
				events = []models.MacroEvent{}
			}
			return Sourced[[]models.MacroEvent]{Value: events, Source: services.ProviderFRED}, nil
		})
	if err != nil {
		return nil, "", err
	}
	return v.Value, v.Source, nil
}

// GetSECHeadlines returns the latest regulatory filings
func (s *MarketService) GetSECHeadlines(ctx context.Context) ([]models.SECHeadline, string, error) {
	if s.providers.Headlines == nil {
		return []models.SECHeadline{}, models.SourceNone, nil
	}

	v, err := cache.GetOrLoad(ctx, s.caches.Macro, cache.Key(models.CategorySEC),
		func(ctx context.Context) (Sourced[[]models.SECHeadline], error) {
			headlines, err := s.providers.Headlines.FetchHeadlines(ctx)
			if err != nil {
				return Sourced[[]models.SECHeadline]{}, fmt.Errorf("failed to fetch SEC headlines: %w", err)
			}
			if headlines == nil {
				headlines = []models.SECHeadline{}
			}
			return Sourced[[]models.SECHeadline]{Value: headlines, Source: services.ProviderSEC}, nil
		})
	if err != nil {
		return nil, "", err
	}
	return v.Value, v.Source, nil
}

// GetQuotes resolves ad-hoc symbols through the quote chain. Symbols are
// normalized and deduplicated; the cache key does not depend on their order.
func (s *MarketService) GetQuotes(ctx context.Context, symbols []string) (map[string]models.Quote, string, error) {
	normalized := normalizeSymbols(symbols)
	if len(normalized) == 0 {
		return map[string]models.Quote{}, models.SourceNone, nil
	}

	v, err := cache.GetOrLoad(ctx, s.caches.Quotes, cache.Key("quotes", normalized),
		func(ctx context.Context) (Sourced[map[string]models.Quote], error) {
			quotes, source := Resolve(ctx, "quotes", s.providers.Quotes, fetchQuotes(normalized), quotesEmpty)
			if quotes == nil {
				quotes = map[string]models.Quote{}
			}
			return Sourced[map[string]models.Quote]{Value: quotes, Source: source}, nil
		})
	if err != nil {
		return nil, "", err
	}
	return v.Value, v.Source, nil
}

// GetSparkline returns recent intraday closes for symbol, oldest first
func (s *MarketService) GetSparkline(ctx context.Context, symbol string) ([]float64, string, error) {
	symbol = models.NormalizeSymbol(symbol)

	v, err := cache.GetOrLoad(ctx, s.caches.Quotes, cache.Key("sparkline", symbol),
		func(ctx context.Context) (Sourced[[]float64], error) {
			points, source := Resolve(ctx, "sparkline", s.providers.Sparklines,
				func(ctx context.Context, p services.SparklineProvider) ([]float64, error) {
					return p.FetchSparkline(ctx, symbol, services.SparklinePoints)
				},
				func(p []float64) bool { return len(p) == 0 })
			if points == nil {
				points = []float64{}
			}
			return Sourced[[]float64]{Value: points, Source: source}, nil
		})
	if err != nil {
		return nil, "", err
	}
	return v.Value, v.Source, nil
}

// MiniQuotes returns a compact quote with sparkline for every symbol, in the
// order given. Blank symbols are dropped and symbols without a quote are
// reported with zero price.
func (s *MarketService) MiniQuotes(ctx context.Context, symbols []string) ([]models.MiniQuote, error) {
	quotes, _, err := s.GetQuotes(ctx, symbols)
	if err != nil {
		return nil, err
	}

	ordered := make([]string, 0, len(symbols))
	for _, raw := range symbols {
		if sym := models.NormalizeSymbol(raw); sym != "" {
			ordered = append(ordered, sym)
		}
	}

	out := make([]models.MiniQuote, len(ordered))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sparklineConcurrency)

	for i, symbol := range ordered {
		q := quotes[symbol]
		out[i] = models.MiniQuote{
			Symbol:    symbol,
			Price:     q.Price,
			Pct:       q.Pct,
			Volume:    q.Volume,
			Sparkline: []float64{},
		}

		g.Go(func() error {
			points, _, err := s.GetSparkline(gctx, symbol)
			if err != nil {
				return err
			}
			out[i].Sparkline = points
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Health reports the health flag of every adapter by provider name
func (s *MarketService) Health() map[string]bool {
	out := make(map[string]bool, len(s.providers.Health))
	for _, h := range s.providers.Health {
		out[h.Name()] = h.Healthy()
	}
	return out
}

func normalizeSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, raw := range symbols {
		sym := models.NormalizeSymbol(raw)
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
