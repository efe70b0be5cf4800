package dataset

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-analytics-service/internal/client"
	"github.com/kjstillabower/weather-analytics-service/internal/models"
	"github.com/kjstillabower/weather-analytics-service/internal/observability"
)

// ErrNoData is returned when historical data could not be obtained.
var ErrNoData = errors.New("no historical data")

// LocationResolver resolves a city name to coordinates. It never fails.
type LocationResolver interface {
	Resolve(ctx context.Context, city string) models.Location
}

// Collector fetches and prepares training data for a city.
type Collector struct {
	resolver LocationResolver
	fetcher  client.WeatherFetcher
	loc      *time.Location
	now      func() time.Time
	logger   *zap.Logger
}

// NewCollector creates a Collector. Date windows are computed in tz.
func NewCollector(resolver LocationResolver, fetcher client.WeatherFetcher, tz *time.Location, logger *zap.Logger) *Collector {
	if tz == nil {
		tz = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{resolver: resolver, fetcher: fetcher, loc: tz, now: time.Now, logger: logger}
}

// Window returns the [today-days, today] date range in the collector's timezone.
func (c *Collector) Window(days int) (start, end time.Time) {
	now := c.now().In(c.loc)
	end = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, c.loc)
	return end.AddDate(0, 0, -days), end
}

// PrepareTrainingData resolves city, fetches [today-days, today] and runs
// feature engineering. A failed or empty fetch returns ErrNoData.
func (c *Collector) PrepareTrainingData(ctx context.Context, city string, days int) ([]models.WeatherRecord, error) {
	logger := observability.LoggerFromContext(ctx, c.logger)
	loc := c.resolver.Resolve(ctx, city)
	start, end := c.Window(days)

	records, err := c.fetcher.FetchHistorical(ctx, loc, start, end)
	if err != nil {
		logger.Warn("historical fetch failed",
			zap.String("city", city),
			zap.String("error_category", string(client.CategorizeError(err))),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w for %s: %v", ErrNoData, city, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w for %s: empty response", ErrNoData, city)
	}

	prepared, unfilled := Engineer(records)
	if len(unfilled) > 0 {
		logger.Warn("columns with no observed values left missing",
			zap.String("city", city),
			zap.Strings("columns", unfilled),
		)
	}
	logger.Info("training data prepared",
		zap.String("city", city),
		zap.Int("records", len(prepared)),
		zap.String("start", start.Format(models.DateLayout)),
		zap.String("end", end.Format(models.DateLayout)),
	)
	return prepared, nil
}
