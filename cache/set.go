package cache

import (
	"market-pulse/config"
)

// Set holds one cache per data category. Macro calendar and filing
// headlines share the macro cache.
type Set struct {
	Quotes  *Cache
	Movers  *Cache
	Breadth *Cache
	Sectors *Cache
	Macro   *Cache
}

// Category names for metrics and store keys
const (
	CategoryQuotes  = "quotes"
	CategoryMovers  = "movers"
	CategoryBreadth = "breadth"
	CategorySectors = "sectors"
	CategoryMacro   = "macro"
)

// NewSet creates the five category caches. Options apply to all of them.
func NewSet(cfg config.CacheConfig, opts ...Option) (*Set, error) {
	var s Set
	var err error

	if s.Quotes, err = New(CategoryQuotes, cfg.Quotes, opts...); err != nil {
		return nil, err
	}
	if s.Movers, err = New(CategoryMovers, cfg.Movers, opts...); err != nil {
		return nil, err
	}
	if s.Breadth, err = New(CategoryBreadth, cfg.Breadth, opts...); err != nil {
		return nil, err
	}
	if s.Sectors, err = New(CategorySectors, cfg.Sectors, opts...); err != nil {
		return nil, err
	}
	if s.Macro, err = New(CategoryMacro, cfg.Macro, opts...); err != nil {
		return nil, err
	}
	return &s, nil
}

// Purge empties every category cache
func (s *Set) Purge() {
	for _, c := range []*Cache{s.Quotes, s.Movers, s.Breadth, s.Sectors, s.Macro} {
		c.Purge()
	}
}
