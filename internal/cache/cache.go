package cache

import (
	"context"
	"time"
)

// EstimateCache caches dry-run row counts per scope/target. Estimates are
// advisory only, so a short TTL and a lossy cache are acceptable.
type EstimateCache interface {
	Get(ctx context.Context, key string) (map[string]int64, bool, error)
	Set(ctx context.Context, key string, counts map[string]int64, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

type NoopEstimateCache struct{}

func (NoopEstimateCache) Get(_ context.Context, _ string) (map[string]int64, bool, error) {
	return nil, false, nil
}

func (NoopEstimateCache) Set(_ context.Context, _ string, _ map[string]int64, _ time.Duration) error {
	return nil
}

func (NoopEstimateCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
