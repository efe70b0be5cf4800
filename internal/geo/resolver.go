// Package geo resolves city names to coordinates and coordinates to
// administrative addresses. Lookups never fail: upstream problems are
// answered with fallback values.
package geo

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/weather-analytics-service/internal/cache"
	"github.com/kjstillabower/weather-analytics-service/internal/client"
	"github.com/kjstillabower/weather-analytics-service/internal/models"
	"github.com/kjstillabower/weather-analytics-service/internal/observability"
)

// FallbackLocation is used, and cached, when geocoding fails (Beijing).
var FallbackLocation = models.Location{Latitude: 39.9042, Longitude: 116.4074}

// provincesKeyword is the region search keyword that lists provinces.
const provincesKeyword = "中国"

// Resolver is a cache-aside geocoder over a map provider.
type Resolver struct {
	provider client.MapProvider
	cache    cache.GeoCache
	group    singleflight.Group
	logger   *zap.Logger
}

// NewResolver creates a Resolver. logger may be nil.
func NewResolver(provider client.MapProvider, geoCache cache.GeoCache, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{provider: provider, cache: geoCache, logger: logger}
}

// resolveResult carries the outcome of one coalesced geocode.
type resolveResult struct {
	loc      models.Location
	fallback bool
}

// Resolve returns the coordinates for city. A cached entry is returned without
// an upstream call. Concurrent misses for the same city share one call.
func (r *Resolver) Resolve(ctx context.Context, city string) models.Location {
	loc, _ := r.resolve(ctx, city)
	return loc
}

// Prefetch resolves city into the cache. It returns an error when the
// fallback location had to be used, so warmers can report it.
func (r *Resolver) Prefetch(ctx context.Context, city string) error {
	if _, fallback := r.resolve(ctx, city); fallback {
		return fmt.Errorf("geocode %q: using fallback location", city)
	}
	return nil
}

func (r *Resolver) resolve(ctx context.Context, city string) (models.Location, bool) {
	key := normalizeCity(city)
	logger := observability.LoggerFromContext(ctx, r.logger)

	cached, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		logger.Warn("geocode cache get failed", zap.String("city", key), zap.Error(err))
	} else if ok {
		observability.GeoCacheLookupsTotal.WithLabelValues("hit").Inc()
		return cached, false
	}
	observability.GeoCacheLookupsTotal.WithLabelValues("miss").Inc()

	// The flight ignores caller cancellation. A caller that gives up gets the
	// fallback without caching it.
	flightCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (interface{}, error) {
		res := resolveResult{}
		loc, err := r.provider.Geocode(flightCtx, city)
		if err != nil {
			observability.GeoFallbackTotal.WithLabelValues("geocode").Inc()
			logger.Warn("geocoding failed, using fallback location",
				zap.String("city", key),
				zap.String("error_category", string(client.CategorizeError(err))),
				zap.Error(err),
			)
			res.loc, res.fallback = FallbackLocation, true
		} else {
			res.loc = loc
		}
		if setErr := r.cache.Set(flightCtx, key, res.loc); setErr != nil {
			logger.Warn("geocode cache set failed", zap.String("city", key), zap.Error(setErr))
		}
		return res, nil
	})
	select {
	case out := <-ch:
		res := out.Val.(resolveResult)
		return res.loc, res.fallback
	case <-ctx.Done():
		observability.GeoFallbackTotal.WithLabelValues("geocode").Inc()
		logger.Warn("geocoding abandoned, using fallback location",
			zap.String("city", key),
			zap.Error(ctx.Err()),
		)
		return FallbackLocation, true
	}
}

// Reverse returns the administrative address of a coordinate. Any failure
// yields an AddressInfo with all fields empty. Results are not cached.
func (r *Resolver) Reverse(ctx context.Context, lat, lon float64) models.AddressInfo {
	info, err := r.provider.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		observability.GeoFallbackTotal.WithLabelValues("reverse").Inc()
		observability.LoggerFromContext(ctx, r.logger).Warn("reverse geocoding failed",
			zap.Float64("latitude", lat),
			zap.Float64("longitude", lon),
			zap.Error(err),
		)
		return models.AddressInfo{}
	}
	return info
}

// Provinces lists the provinces of China.
func (r *Resolver) Provinces(ctx context.Context) []models.Region {
	return r.regions(ctx, provincesKeyword)
}

// Cities lists the cities of the province identified by adcode.
func (r *Resolver) Cities(ctx context.Context, adcode string) []models.Region {
	return r.regions(ctx, adcode)
}

// Districts lists the districts of the city identified by adcode.
func (r *Resolver) Districts(ctx context.Context, adcode string) []models.Region {
	return r.regions(ctx, adcode)
}

func (r *Resolver) regions(ctx context.Context, keyword string) []models.Region {
	regions, err := r.provider.RegionSearch(ctx, keyword)
	if err != nil {
		observability.GeoFallbackTotal.WithLabelValues("region").Inc()
		observability.LoggerFromContext(ctx, r.logger).Warn("region search failed",
			zap.String("keyword", keyword),
			zap.Error(err),
		)
		return []models.Region{}
	}
	if regions == nil {
		return []models.Region{}
	}
	return regions
}

// CachedCities lists the normalized city names currently cached.
func (r *Resolver) CachedCities(ctx context.Context) []string {
	keys, err := r.cache.Keys(ctx)
	if err != nil {
		observability.LoggerFromContext(ctx, r.logger).Warn("list cached cities failed", zap.Error(err))
		return []string{}
	}
	return keys
}

// normalizeCity trims and lowercases a city name for use as a cache key.
func normalizeCity(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}
