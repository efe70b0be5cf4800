package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-analytics-service/internal/cache"
	httphandler "github.com/kjstillabower/weather-analytics-service/internal/http"
	"github.com/kjstillabower/weather-analytics-service/internal/lifecycle"
	"github.com/kjstillabower/weather-analytics-service/internal/observability"
	"github.com/kjstillabower/weather-analytics-service/internal/service"
	"github.com/kjstillabower/weather-analytics-service/internal/state"
)

// ServeCmd runs the HTTP API until SIGINT or SIGTERM.
type ServeCmd struct {
	Port   string `help:"Listen port; overrides server.port." env:"PORT"`
	NoWarm bool   `help:"Skip geocode cache warming at startup."`
}

func (c *ServeCmd) Run(g *Globals) error {
	logger := g.Logger
	a, err := newApp(context.Background(), g.ConfigDir, logger)
	if err != nil {
		return err
	}
	defer a.close()
	cfg := a.cfg

	if len(cfg.WarmCities) > 0 {
		observability.SetTrackedCities(cfg.WarmCities)
		if !c.NoWarm {
			warmer := cache.NewCacheWarmer(a.resolver, logger)
			warmCtx, warmCancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := warmer.Warm(warmCtx, cfg.WarmCities); err != nil {
				logger.Warn("geocode cache warming incomplete", zap.Error(err))
			}
			warmCancel()
		}
	}

	var runs service.RunRecorder
	if a.runs != nil {
		runs = a.runs
	}
	analytics := service.NewAnalyticsService(a.collector, a.weather, a.resolver, state.NewMemoryStore(), runs, logger)

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:   cfg.DegradedWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
	}
	if a.memcached != nil {
		healthConfig.CachePing = a.memcached.Ping
	}
	handler := httphandler.NewHandler(analytics, healthConfig, httphandler.Defaults{
		City:    cfg.DefaultCity,
		Days:    cfg.DefaultDays,
		MaxDays: cfg.MaxDays,
	}, logger)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	router := httphandler.NewRouter(handler, httphandler.RouterOptions{
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
	}, logger)

	port := cfg.ServerPort
	if c.Port != "" {
		port = c.Port
	}
	srv := &http.Server{
		Addr:        ":" + port,
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// Training and forecast requests run up to the request timeout.
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}
