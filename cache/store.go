package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by a Store when the key is absent
var ErrCacheMiss = errors.New("cache: key not found")

// Store is a shared second-level cache behind the in-process LRU
type Store interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
}
