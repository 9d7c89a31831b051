package aggregator

import (
	"context"
	"fmt"

	"market-pulse/models"
	"market-pulse/observability"
)

// Named is anything that can appear in a fallback chain
type Named interface {
	Name() string
}

// Resolver outcomes recorded per attempt
const (
	outcomeHit   = "hit"
	outcomeEmpty = "empty"
	outcomeError = "error"
)

// Resolve tries providers strictly in order and returns the first non-empty
// result together with the name of the provider that produced it. Errors,
// panics and empty results move on to the next provider; later providers are
// never called once one succeeds. If every provider fails the zero value and
// models.SourceNone are returned. Resolve itself never fails.
func Resolve[P Named, T any](
	ctx context.Context,
	category string,
	providers []P,
	fetch func(context.Context, P) (T, error),
	empty func(T) bool,
) (T, string) {
	metrics := observability.GetMetrics()

	for _, p := range providers {
		v, err := attempt(ctx, p, fetch)
		if err != nil {
			metrics.RecordResolverAttempt(category, p.Name(), outcomeError)
			observability.WithProvider(p.Name()).Warn("provider failed, trying next",
				"category", category,
				"error", err)
			continue
		}
		if empty(v) {
			metrics.RecordResolverAttempt(category, p.Name(), outcomeEmpty)
			continue
		}

		metrics.RecordResolverAttempt(category, p.Name(), outcomeHit)
		return v, p.Name()
	}

	observability.WithCategory(category).Warn("all providers exhausted")
	var zero T
	return zero, models.SourceNone
}

// attempt runs one provider call, converting a panic into an error
func attempt[P Named, T any](ctx context.Context, p P, fetch func(context.Context, P) (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v, err = zero, fmt.Errorf("recovered panic: %v", r)
		}
	}()
	return fetch(ctx, p)
}
