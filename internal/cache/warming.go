package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Prefetcher resolves and caches one city. Implemented by the geo resolver;
// the interface keeps this package free of a dependency on it.
type Prefetcher interface {
	Prefetch(ctx context.Context, city string) error
}

// maxConcurrentWarm bounds concurrent geocoding calls during warming.
const maxConcurrentWarm = 4

// CacheWarmer pre-resolves a list of cities so first requests hit the cache.
type CacheWarmer struct {
	prefetcher Prefetcher
	logger     *zap.Logger
}

// NewCacheWarmer creates a CacheWarmer that uses the given prefetcher and logger.
func NewCacheWarmer(prefetcher Prefetcher, logger *zap.Logger) *CacheWarmer {
	return &CacheWarmer{prefetcher: prefetcher, logger: logger}
}

// Warm resolves each city with bounded concurrency. Every city is attempted;
// the returned error joins all failures.
func (w *CacheWarmer) Warm(ctx context.Context, cities []string) error {
	start := time.Now()
	if w.logger != nil {
		w.logger.Info("warming geocode cache", zap.Int("cities", len(cities)))
	}

	errs := make([]error, len(cities))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentWarm)
	for i, city := range cities {
		i, city := i, city
		g.Go(func() error {
			if err := w.prefetcher.Prefetch(gctx, city); err != nil {
				errs[i] = fmt.Errorf("warm %s: %w", city, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	err := errors.Join(errs...)
	if w.logger != nil {
		w.logger.Info("geocode cache warming complete",
			zap.Int("cities", len(cities)),
			zap.Bool("errors", err != nil),
			zap.Float64("duration_seconds", time.Since(start).Seconds()),
		)
	}
	return err
}
