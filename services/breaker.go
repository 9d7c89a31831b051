package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"market-pulse/observability"
)

// ErrProviderUnavailable is returned without contacting the provider while
// its breaker is open or its half-open call budget is spent
var ErrProviderUnavailable = errors.New("provider unavailable")

// BreakerConfig holds the per-provider circuit breaker settings
type BreakerConfig struct {
	MaxRequests  uint32        // calls allowed while half-open
	Interval     time.Duration // closed-state window after which counts reset
	Timeout      time.Duration // how long the breaker stays open
	MinRequests  uint32        // requests in the window before the ratio is considered
	FailureRatio float64       // trip at or above this share of failed requests
}

// DefaultBreakerConfig is used for every upstream data provider
var DefaultBreakerConfig = BreakerConfig{
	MaxRequests:  5,
	Interval:     time.Minute,
	Timeout:      30 * time.Second,
	MinRequests:  5,
	FailureRatio: 0.5,
}

// Breakers holds one circuit breaker per provider. A breaker guards the raw
// response body fetch; decoding happens outside it.
type Breakers struct {
	mu       sync.RWMutex
	breakers map[string]*gobreaker.CircuitBreaker[[]byte]
	config   BreakerConfig
	metrics  *observability.Metrics
}

// NewBreakers creates an empty set of breakers
func NewBreakers(cfg BreakerConfig) *Breakers {
	return &Breakers{
		breakers: make(map[string]*gobreaker.CircuitBreaker[[]byte]),
		config:   cfg,
	}
}

// WithMetrics routes state change metrics to m instead of the global metrics
func (b *Breakers) WithMetrics(m *observability.Metrics) *Breakers {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics = m
	return b
}

func (b *Breakers) forProvider(provider string) *gobreaker.CircuitBreaker[[]byte] {
	b.mu.RLock()
	cb, ok := b.breakers[provider]
	b.mu.RUnlock()
	if ok {
		return cb
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok = b.breakers[provider]; ok {
		return cb
	}

	metrics := b.metrics
	if metrics == nil {
		metrics = observability.GetMetrics()
	}
	cfg := b.config

	cb = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        provider,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		// A caller giving up says nothing about the provider
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.WithProvider(name).Warn("circuit breaker state change",
				"from", from.String(),
				"to", to.String())
			metrics.SetCircuitBreakerState(name, stateToInt(to))
			if to == gobreaker.StateOpen {
				metrics.RecordCircuitBreakerTrip(name)
			}
		},
	})
	b.breakers[provider] = cb
	return cb
}

// Do runs fetch under the provider's breaker. While the breaker rejects
// calls the error wraps ErrProviderUnavailable and fetch is not run.
func (b *Breakers) Do(ctx context.Context, provider string, fetch func() ([]byte, error)) ([]byte, error) {
	body, err := b.forProvider(provider).Execute(func() ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return fetch()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%s: %w (%v)", provider, ErrProviderUnavailable, err)
	}
	return body, err
}

// BreakerStatus is the health endpoint view of one provider's breaker
type BreakerStatus struct {
	Provider            string `json:"provider"`
	State               string `json:"state"`
	Requests            uint32 `json:"requests"`
	TotalFailures       uint32 `json:"total_failures"`
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
}

// Status reports every breaker that has seen traffic, keyed by provider
func (b *Breakers) Status() map[string]BreakerStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]BreakerStatus, len(b.breakers))
	for provider, cb := range b.breakers {
		counts := cb.Counts()
		out[provider] = BreakerStatus{
			Provider:            provider,
			State:               cb.State().String(),
			Requests:            counts.Requests,
			TotalFailures:       counts.TotalFailures,
			ConsecutiveFailures: counts.ConsecutiveFailures,
		}
	}
	return out
}

// OpenProviders lists the providers whose breaker is open, sorted
func (b *Breakers) OpenProviders() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var open []string
	for provider, cb := range b.breakers {
		if cb.State() == gobreaker.StateOpen {
			open = append(open, provider)
		}
	}
	sort.Strings(open)
	return open
}

var (
	defaultBreakers     *Breakers
	defaultBreakersOnce sync.Once
)

// DefaultBreakers returns the process-wide breakers used by clients built
// without WithBreakers
func DefaultBreakers() *Breakers {
	defaultBreakersOnce.Do(func() {
		defaultBreakers = NewBreakers(DefaultBreakerConfig)
	})
	return defaultBreakers
}

// stateToInt maps a breaker state to the gauge value: 0 closed, 1 half-open, 2 open
func stateToInt(state gobreaker.State) int {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
