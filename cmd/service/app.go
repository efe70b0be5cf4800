package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-analytics-service/internal/cache"
	"github.com/kjstillabower/weather-analytics-service/internal/client"
	"github.com/kjstillabower/weather-analytics-service/internal/config"
	"github.com/kjstillabower/weather-analytics-service/internal/dataset"
	"github.com/kjstillabower/weather-analytics-service/internal/geo"
	"github.com/kjstillabower/weather-analytics-service/internal/store"
)

// app holds the components shared by every command.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	weather   *client.OpenMeteoClient
	resolver  *geo.Resolver
	collector *dataset.Collector
	runs      *store.Store          // nil when model_store.path is empty
	memcached *cache.MemcachedCache // nil unless backend is memcached
}

func newApp(ctx context.Context, configDir string, logger *zap.Logger) (*app, error) {
	cfg, err := config.LoadDir(configDir)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	upstreamOpts := func(timeout time.Duration) client.Options {
		return client.Options{
			Timeout:          timeout,
			RetryAttempts:    cfg.RetryAttempts,
			RetryBaseDelay:   cfg.RetryBaseDelay,
			RetryMaxDelay:    cfg.RetryMaxDelay,
			FailureThreshold: cfg.BreakerFailureThreshold,
			OpenTimeout:      cfg.BreakerOpenTimeout,
			Logger:           logger,
		}
	}

	weather, err := client.NewOpenMeteoClient(cfg.ArchiveAPIURL, cfg.ForecastAPIURL, cfg.Timezone, upstreamOpts(cfg.WeatherAPITimeout))
	if err != nil {
		return nil, fmt.Errorf("weather client: %w", err)
	}
	mapClient, err := client.NewBaiduMapClient(cfg.MapAPIKey, cfg.GeocodingURL, cfg.ReverseGeoURL, cfg.RegionSearchURL, upstreamOpts(cfg.MapAPITimeout))
	if err != nil {
		return nil, fmt.Errorf("map client: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, weather: weather}

	var geoCache cache.GeoCache
	switch cfg.GeoCacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.GeoCacheTTL, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return nil, fmt.Errorf("memcached cache: %w", err)
		}
		a.memcached = mc
		geoCache = mc
		logger.Info("geo cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		geoCache = cache.NewInMemoryCache(cfg.GeoCacheTTL)
		logger.Info("geo cache backend: in_memory")
	}

	a.resolver = geo.NewResolver(mapClient, geoCache, logger)
	tz, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	a.collector = dataset.NewCollector(a.resolver, weather, tz, logger)

	if cfg.ModelStorePath != "" {
		runs, err := store.Open(ctx, cfg.ModelStorePath, logger)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("model store: %w", err)
		}
		a.runs = runs
		logger.Info("training runs persisted", zap.String("path", cfg.ModelStorePath))
	}
	return a, nil
}

func (a *app) close() {
	if a.runs != nil {
		if err := a.runs.Close(); err != nil {
			a.logger.Error("model store close", zap.Error(err))
		}
	}
	if a.memcached != nil {
		if err := a.memcached.Close(); err != nil {
			a.logger.Error("memcached close", zap.Error(err))
		}
	}
}
