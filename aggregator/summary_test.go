package aggregator

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"market-pulse/models"
	"market-pulse/posture"
	"market-pulse/services"
)

func liveProviders(q *mockQuoteProvider) Providers {
	return Providers{
		Quotes:    []services.QuoteProvider{q},
		Index:     q,
		VIX:       q,
		Series:    &mockSeriesProvider{err: services.ErrNoCredentials},
		Calendar:  &mockCalendarProvider{events: []models.MacroEvent{}},
		Headlines: &mockHeadlineProvider{headlines: []models.SECHeadline{}},
		Health:    []services.HealthReporter{q},
	}
}

func TestSummary_AllLive(t *testing.T) {
	q := &mockQuoteProvider{name: services.ProviderYahoo, quotes: universeQuotes()}
	s := newTestService(t, liveProviders(q))

	got := s.Summary(context.Background())

	if got.AsOf != "2024-03-11T14:30:00Z" {
		t.Errorf("AsOf = %v", got.AsOf)
	}
	wantSources := map[string]string{
		models.CategoryIndices: services.ProviderYahoo,
		models.CategoryVIX:     services.ProviderYahoo,
		models.CategorySectors: services.ProviderYahoo,
		models.CategoryBreadth: models.SourceMockData,
		models.CategoryMovers:  models.SourceMockData,
		models.CategoryMacro:   services.ProviderFRED,
		models.CategorySEC:     services.ProviderSEC,
	}
	if !reflect.DeepEqual(got.Sources, wantSources) {
		t.Errorf("Sources = %v, want %v", got.Sources, wantSources)
	}
	for _, category := range models.SummaryCategories {
		if got.LatencyMin[category] != 0 {
			t.Errorf("LatencyMin[%s] = %d, want 0", category, got.LatencyMin[category])
		}
	}
	if len(got.Notes) != 0 {
		t.Errorf("Notes = %v, want none", got.Notes)
	}
	if len(got.Indices) != 3 || len(got.Sectors) != 11 {
		t.Errorf("indices=%d sectors=%d, want 3 and 11", len(got.Indices), len(got.Sectors))
	}

	want := posture.Score(got.Breadth, got.Sectors, got.VIX)
	if !reflect.DeepEqual(got.SessionPosture, want) {
		t.Errorf("SessionPosture = %+v, want %+v", got.SessionPosture, want)
	}
}

func TestSummary_CategoryFailureIsIsolated(t *testing.T) {
	q := &mockQuoteProvider{name: services.ProviderYahoo, quotes: universeQuotes()}
	p := liveProviders(q)
	p.Calendar = &mockCalendarProvider{panics: true}
	s := newTestService(t, p)

	got := s.Summary(context.Background())

	if got.Sources[models.CategoryMacro] != models.SourceStatic {
		t.Errorf("macro source = %v, want %v", got.Sources[models.CategoryMacro], models.SourceStatic)
	}
	if got.Macro == nil || len(got.Macro) != 0 {
		t.Errorf("Macro = %v, want empty default", got.Macro)
	}
	if got.LatencyMin[models.CategoryMacro] != delayedLatencyMin {
		t.Errorf("macro latency = %d, want %d", got.LatencyMin[models.CategoryMacro], delayedLatencyMin)
	}
	if !slices.Contains(got.Notes, "macro unavailable: using static default") {
		t.Errorf("Notes = %v, want macro fallback note", got.Notes)
	}

	for _, category := range []string{models.CategoryIndices, models.CategoryVIX, models.CategorySectors} {
		if got.Sources[category] != services.ProviderYahoo {
			t.Errorf("%s source = %v, want %v", category, got.Sources[category], services.ProviderYahoo)
		}
	}
	if got.Sources[models.CategorySEC] != services.ProviderSEC {
		t.Errorf("sec source = %v, want %v", got.Sources[models.CategorySEC], services.ProviderSEC)
	}
	if len(got.Sectors) != 11 || got.VIX.Price != 14.2 {
		t.Errorf("sectors=%d VIX=%v, want live data", len(got.Sectors), got.VIX.Price)
	}

	if v := testutil.ToFloat64(s.metrics.CategoryFallbacks.WithLabelValues(models.CategoryMacro)); v != 1 {
		t.Errorf("macro fallbacks = %v, want 1", v)
	}
}

func TestSummary_PanickingProviderFallsThrough(t *testing.T) {
	a := &mockQuoteProvider{name: "A", quotes: universeQuotes(), panicOn: "XLK"}
	b := &mockQuoteProvider{name: "B", quotes: universeQuotes()}
	p := liveProviders(a)
	p.Quotes = []services.QuoteProvider{a, b}
	s := newTestService(t, p)

	got := s.Summary(context.Background())

	if got.Sources[models.CategorySectors] != "B" {
		t.Errorf("sectors source = %v, want B", got.Sources[models.CategorySectors])
	}
	if len(got.Sectors) != 11 {
		t.Fatalf("sectors = %d, want 11", len(got.Sectors))
	}
	for _, sec := range got.Sectors {
		if sec.Pct == 0 {
			t.Errorf("%s pct = 0, want live value from B", sec.Symbol)
		}
	}
	if got.LatencyMin[models.CategorySectors] != 0 {
		t.Errorf("sectors latency = %d, want 0", got.LatencyMin[models.CategorySectors])
	}
	if slices.Contains(got.Notes, "sectors unavailable: using static default") {
		t.Errorf("Notes = %v, sectors should not fall back", got.Notes)
	}
	if got.Sources[models.CategoryIndices] != "A" {
		t.Errorf("indices source = %v, want A", got.Sources[models.CategoryIndices])
	}
}

func TestSummary_CalendarErrorFallsBack(t *testing.T) {
	q := &mockQuoteProvider{name: services.ProviderYahoo, quotes: universeQuotes()}
	p := liveProviders(q)
	p.Calendar = &mockCalendarProvider{err: errors.New("calendar down")}
	s := newTestService(t, p)

	got := s.Summary(context.Background())

	if got.Sources[models.CategoryMacro] != models.SourceStatic {
		t.Errorf("macro source = %v, want static", got.Sources[models.CategoryMacro])
	}
	if got.Macro == nil || len(got.Macro) != 0 {
		t.Errorf("Macro = %v, want empty default", got.Macro)
	}
	if got.Sources[models.CategorySEC] != services.ProviderSEC {
		t.Errorf("sec source = %v, want %v", got.Sources[models.CategorySEC], services.ProviderSEC)
	}
}

func TestSummary_AllProvidersDown(t *testing.T) {
	q := &mockQuoteProvider{name: services.ProviderYahoo, err: errProviderDown}
	s := newTestService(t, liveProviders(q))

	got := s.Summary(context.Background())

	for _, category := range []string{models.CategoryIndices, models.CategoryVIX, models.CategorySectors} {
		if got.Sources[category] != models.SourceNone {
			t.Errorf("%s source = %v, want none", category, got.Sources[category])
		}
		if got.LatencyMin[category] != delayedLatencyMin {
			t.Errorf("%s latency = %d, want %d", category, got.LatencyMin[category], delayedLatencyMin)
		}
	}
	// Every sector reported flat gives full negative dispersion
	if got.SessionPosture.Score != -40 || got.SessionPosture.Label != models.PostureRiskOff {
		t.Errorf("posture = %v %v, want -40 Risk-Off", got.SessionPosture.Score, got.SessionPosture.Label)
	}
}

func TestSummary_IgnoresCancellation(t *testing.T) {
	q := &mockQuoteProvider{name: services.ProviderYahoo, quotes: universeQuotes()}
	s := newTestService(t, liveProviders(q))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := s.Summary(ctx)
	if got.Sources[models.CategoryIndices] != services.ProviderYahoo {
		t.Errorf("indices source = %v, want %v", got.Sources[models.CategoryIndices], services.ProviderYahoo)
	}
}

func TestFallbackFor(t *testing.T) {
	for _, category := range models.SummaryCategories {
		t.Run(category, func(t *testing.T) {
			if fallbackFor(category) == nil {
				t.Errorf("fallbackFor(%s) = nil", category)
			}
		})
	}

	if got := fallbackFor(models.CategoryVIX).(models.VIXData); got.Symbol != models.VIXSymbol {
		t.Errorf("VIX default symbol = %v", got.Symbol)
	}
	if fallbackFor("unknown") != nil {
		t.Error("unknown category should have no default")
	}
}

func TestCapture_RecoversPanic(t *testing.T) {
	r := capture(context.Background(), "test", func(context.Context) (int, string, error) {
		panic("boom")
	})
	if r.Err == nil {
		t.Fatal("expected error from panic")
	}
	if r.Value != 0 || r.Source != "" {
		t.Errorf("Result = %+v, want zero value", r)
	}
}

func TestPosture_MatchesScorer(t *testing.T) {
	s := newTestService(t, Providers{})

	breadth := models.NewBreadth()
	sectors := []models.SectorData{{Symbol: "XLK", Pct: 1.2}, {Symbol: "XLF", Pct: 0.4}}
	vix := models.VIXData{Symbol: models.VIXSymbol, Price: 13, Pct: -6}

	got := s.Posture(breadth, sectors, vix)
	want := posture.Score(breadth, sectors, vix)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Posture() = %+v, want %+v", got, want)
	}

	label := testutil.ToFloat64(s.metrics.PostureLabels.WithLabelValues(string(want.Label)))
	if label != 1 {
		t.Errorf("posture label count = %v, want 1", label)
	}
}
