package aggregator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"market-pulse/models"
	"market-pulse/observability"
	"market-pulse/posture"
)

// delayedLatencyMin is reported for categories served from a default
const delayedLatencyMin = 15

// Result is the outcome of fetching one summary category
type Result[T any] struct {
	Value  T
	Source string
	Err    error
}

// capture runs fn and converts a panic into an error Result
func capture[T any](ctx context.Context, category string, fn func(context.Context) (T, string, error)) (r Result[T]) {
	defer func() {
		if p := recover(); p != nil {
			r = Result[T]{Err: fmt.Errorf("%s: recovered panic: %v", category, p)}
		}
	}()

	v, source, err := fn(ctx)
	return Result[T]{Value: v, Source: source, Err: err}
}

// fallbackFor returns the default value reported for a category that failed
func fallbackFor(category string) any {
	switch category {
	case models.CategoryIndices:
		return []models.Quote{}
	case models.CategoryVIX:
		return models.NewVIXData()
	case models.CategorySectors:
		return []models.SectorData{}
	case models.CategoryBreadth:
		return models.NewBreadth()
	case models.CategoryMovers:
		return models.NewMovers()
	case models.CategoryMacro:
		return []models.MacroEvent{}
	case models.CategorySEC:
		return []models.SECHeadline{}
	default:
		return nil
	}
}

// settle records the provenance of r in summary and returns the value to
// report, substituting the category default on failure
func settle[T any](s *MarketService, summary *models.MarketSummary, category string, r Result[T]) T {
	if r.Err != nil {
		observability.WithCategory(category).Error("category failed, using default", "error", r.Err)
		s.metrics.RecordCategoryFallback(category)

		summary.Sources[category] = models.SourceStatic
		summary.LatencyMin[category] = delayedLatencyMin
		summary.Notes = append(summary.Notes, fmt.Sprintf("%s unavailable: using static default", category))
		return fallbackFor(category).(T)
	}

	summary.Sources[category] = r.Source
	if r.Source == models.SourceNone || r.Source == models.SourceStatic {
		summary.LatencyMin[category] = delayedLatencyMin
	} else {
		summary.LatencyMin[category] = 0
	}
	return r.Value
}

// Summary fetches every category concurrently and assembles the market
// summary. A failing category is replaced by its default and never affects
// the others. Provider calls are not cancelled when ctx is.
func (s *MarketService) Summary(ctx context.Context) models.MarketSummary {
	ctx = context.WithoutCancel(ctx)

	var (
		indices   Result[[]models.Quote]
		vix       Result[models.VIXData]
		sectors   Result[[]models.SectorData]
		breadth   Result[map[string]models.BreadthData]
		movers    Result[map[string][]models.Mover]
		macro     Result[[]models.MacroEvent]
		headlines Result[[]models.SECHeadline]
	)

	var g errgroup.Group
	g.Go(func() error {
		indices = capture(ctx, models.CategoryIndices, s.GetIndices)
		return nil
	})
	g.Go(func() error {
		vix = capture(ctx, models.CategoryVIX, s.GetVIX)
		return nil
	})
	g.Go(func() error {
		sectors = capture(ctx, models.CategorySectors, s.GetSectors)
		return nil
	})
	g.Go(func() error {
		breadth = capture(ctx, models.CategoryBreadth, s.GetBreadth)
		return nil
	})
	g.Go(func() error {
		movers = capture(ctx, models.CategoryMovers, s.GetMovers)
		return nil
	})
	g.Go(func() error {
		macro = capture(ctx, models.CategoryMacro, s.GetMacroCalendar)
		return nil
	})
	g.Go(func() error {
		headlines = capture(ctx, models.CategorySEC, s.GetSECHeadlines)
		return nil
	})
	_ = g.Wait()

	summary := models.MarketSummary{
		AsOf:       s.now().UTC().Format(time.RFC3339),
		Sources:    make(map[string]string, len(models.SummaryCategories)),
		LatencyMin: make(map[string]int, len(models.SummaryCategories)),
		Notes:      []string{},
	}

	summary.Indices = settle(s, &summary, models.CategoryIndices, indices)
	summary.VIX = settle(s, &summary, models.CategoryVIX, vix)
	summary.Sectors = settle(s, &summary, models.CategorySectors, sectors)
	summary.Breadth = settle(s, &summary, models.CategoryBreadth, breadth)
	summary.Movers = settle(s, &summary, models.CategoryMovers, movers)
	summary.Macro = settle(s, &summary, models.CategoryMacro, macro)
	summary.SECHeadlines = settle(s, &summary, models.CategorySEC, headlines)

	p, err := s.score(summary.Breadth, summary.Sectors, summary.VIX)
	if err != nil {
		observability.Error("posture scoring failed, using neutral", "error", err)
		summary.Notes = append(summary.Notes, "session posture unavailable: using neutral")
	}
	summary.SessionPosture = p

	return summary
}

// Posture scores explicit inputs. It falls back to the neutral posture if
// scoring fails.
func (s *MarketService) Posture(breadth map[string]models.BreadthData, sectors []models.SectorData, vix models.VIXData) models.SessionPosture {
	p, err := s.score(breadth, sectors, vix)
	if err != nil {
		observability.Error("posture scoring failed, using neutral", "error", err)
	}
	return p
}

func (s *MarketService) score(breadth map[string]models.BreadthData, sectors []models.SectorData, vix models.VIXData) (p models.SessionPosture, err error) {
	defer func() {
		if r := recover(); r != nil {
			p = posture.Neutral()
			err = fmt.Errorf("recovered panic: %v", r)
		}
	}()

	p = posture.Score(breadth, sectors, vix)
	s.metrics.RecordPosture(string(p.Label), p.Score)
	return p, nil
}
