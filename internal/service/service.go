package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-analytics-service/internal/advice"
	"github.com/kjstillabower/weather-analytics-service/internal/classify"
	"github.com/kjstillabower/weather-analytics-service/internal/client"
	"github.com/kjstillabower/weather-analytics-service/internal/dataset"
	"github.com/kjstillabower/weather-analytics-service/internal/models"
	"github.com/kjstillabower/weather-analytics-service/internal/observability"
	"github.com/kjstillabower/weather-analytics-service/internal/state"
	"github.com/kjstillabower/weather-analytics-service/internal/weathercode"
)

var (
	// ErrNoHistory is returned when an operation needs collected data.
	ErrNoHistory = errors.New("no historical data")
	// ErrNoForecast is returned by Advice before a forecast has been produced.
	ErrNoForecast = errors.New("no forecast data")
	// ErrCollectFailed is returned when historical data could not be collected.
	ErrCollectFailed = errors.New("failed to collect data")
)

const forecastDays = 7

// HistoryCollector prepares engineered history for a city.
type HistoryCollector interface {
	PrepareTrainingData(ctx context.Context, city string, days int) ([]models.WeatherRecord, error)
}

// Geo resolves places. Lookups never fail; they degrade to fallback values.
type Geo interface {
	Resolve(ctx context.Context, city string) models.Location
	Reverse(ctx context.Context, lat, lon float64) models.AddressInfo
	Provinces(ctx context.Context) []models.Region
	Cities(ctx context.Context, adcode string) []models.Region
	Districts(ctx context.Context, adcode string) []models.Region
	CachedCities(ctx context.Context) []string
}

// RunRecorder persists training runs.
type RunRecorder interface {
	SaveRun(ctx context.Context, result models.ModelResult) (int64, error)
}

// AnalyticsService orchestrates collection, training, forecasting and advice
// over a shared state store.
type AnalyticsService struct {
	collector HistoryCollector
	fetcher   client.WeatherFetcher
	geo       Geo
	state     state.Store
	runs      RunRecorder
	train     TrainOptions
	logger    *zap.Logger
}

// NewAnalyticsService wires the service. runs may be nil to disable persistence.
func NewAnalyticsService(collector HistoryCollector, fetcher client.WeatherFetcher, geo Geo, store state.Store, runs RunRecorder, logger *zap.Logger) *AnalyticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsService{
		collector: collector,
		fetcher:   fetcher,
		geo:       geo,
		state:     store,
		runs:      runs,
		train:     DefaultTrainOptions(),
		logger:    logger,
	}
}

// WeatherShare is the count of days with one weather type.
type WeatherShare struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// CollectResult is the outcome of a collection.
type CollectResult struct {
	City         string
	Records      []models.WeatherRecord
	Distribution []WeatherShare
}

// Collect fetches and stores history for city, replacing any previous history.
func (s *AnalyticsService) Collect(ctx context.Context, city string, days int) (CollectResult, error) {
	observability.RecordCollect(city)
	records, err := s.collector.PrepareTrainingData(ctx, city, days)
	if err != nil {
		return CollectResult{}, fmt.Errorf("%w: %v", ErrCollectFailed, err)
	}
	if len(records) == 0 {
		return CollectResult{}, ErrCollectFailed
	}
	s.state.SetHistory(city, records)
	return CollectResult{City: city, Records: records, Distribution: distribution(records)}, nil
}

// distribution counts weather types, most frequent first.
func distribution(records []models.WeatherRecord) []WeatherShare {
	counts := map[models.WeatherType]int{}
	for _, r := range records {
		counts[r.WeatherType]++
	}
	out := make([]WeatherShare, 0, len(counts))
	for t, n := range counts {
		out = append(out, WeatherShare{Name: weathercode.DisplayName(t), Value: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Train fits models on the stored history and stores the result.
func (s *AnalyticsService) Train(ctx context.Context) (models.ModelResult, error) {
	snap := s.state.Snapshot()
	if !snap.HasData() {
		return models.ModelResult{}, ErrNoHistory
	}
	result, clf, err := TrainModels(ctx, snap.City, snap.History, s.train, s.logger)
	if err != nil {
		observability.TrainingRunsTotal.WithLabelValues("error").Inc()
		return models.ModelResult{}, err
	}
	observability.TrainingRunsTotal.WithLabelValues("success").Inc()
	s.state.SetModel(result, clf)

	if s.runs != nil {
		logger := observability.LoggerFromContext(ctx, s.logger)
		if id, err := s.runs.SaveRun(ctx, result); err != nil {
			logger.Warn("training run not persisted", zap.Error(err))
		} else {
			logger.Debug("training run persisted", zap.Int64("run_id", id))
		}
	}
	return result, nil
}

var (
	mockWeather     = []models.WeatherType{models.Cloudy, models.Sunny, models.Rain}
	mockRainChance  = []float64{10, 5, 70}
	cannedAIWeather = []models.WeatherType{
		models.Cloudy, models.Sunny, models.Rain, models.Rain,
		models.Cloudy, models.Sunny, models.Sunny,
	}
)

// Forecast combines the official forecast for the stored city with the
// model forecast and stores the bundle. Upstream failures and missing models
// degrade to fixed fallback series.
func (s *AnalyticsService) Forecast(ctx context.Context) (models.ForecastBundle, error) {
	snap := s.state.Snapshot()
	if !snap.HasData() {
		return models.ForecastBundle{}, ErrNoHistory
	}
	logger := observability.LoggerFromContext(ctx, s.logger)

	loc := s.geo.Resolve(ctx, snap.City)
	records, err := s.fetcher.FetchForecast(ctx, loc, forecastDays)
	var official []map[string]interface{}
	if err != nil || len(records) == 0 {
		logger.Warn("official forecast unavailable, using mock forecast",
			zap.String("city", snap.City),
			zap.String("error_category", string(client.CategorizeError(err))),
			zap.Error(err),
		)
		observability.ForecastFallbackTotal.WithLabelValues("official").Inc()
		records = nil
		official = mockOfficial(snap.History[len(snap.History)-1].Date)
	} else {
		official = make([]map[string]interface{}, len(records))
		for i, r := range records {
			official[i] = camelFields(r, forecastColumns)
		}
	}

	bundle := models.ForecastBundle{
		Official:      official,
		AITemperature: aiTemperature(snap.ModelResult),
		AIWeather:     s.aiWeather(snap.Classifier, records, logger),
	}
	s.state.SetForecast(bundle)
	return bundle, nil
}

// mockOfficial is the seven-day substitute for an unavailable official forecast.
func mockOfficial(last time.Time) []map[string]interface{} {
	out := make([]map[string]interface{}, forecastDays)
	for i := range out {
		out[i] = map[string]interface{}{
			"date":            last.AddDate(0, 0, i+1).Format(models.DateLayout),
			"temperature":     2.0 + float64(i%3),
			"weatherType":     string(mockWeather[i%3]),
			"rainProbability": mockRainChance[i%3],
		}
	}
	return out
}

func aiTemperature(result *models.ModelResult) []float64 {
	if result != nil && len(result.TemperatureForecast) >= forecastDays {
		return append([]float64(nil), result.TemperatureForecast...)
	}
	observability.ForecastFallbackTotal.WithLabelValues("ai_temperature").Inc()
	out := make([]float64, forecastDays)
	for i := range out {
		out[i] = math.Round((2.1+float64(i%5)*0.3)*10) / 10
	}
	return out
}

// aiWeather predicts the forecast days' weather types with the decision
// tree, or returns the canned sequence when it cannot.
func (s *AnalyticsService) aiWeather(clf *classify.Classifier, records []models.WeatherRecord, logger *zap.Logger) []models.WeatherType {
	canned := func() []models.WeatherType {
		observability.ForecastFallbackTotal.WithLabelValues("ai_weather").Inc()
		return append([]models.WeatherType(nil), cannedAIWeather...)
	}
	if clf == nil || !clf.Fitted(classify.DecisionTree) || len(records) < forecastDays {
		return canned()
	}
	prepared, _ := dataset.Engineer(records[:forecastDays])
	X, _ := dataset.Matrix(prepared)
	if len(X) != forecastDays {
		return canned()
	}
	labels, err := clf.Predict(X, classify.DecisionTree)
	if err != nil {
		logger.Warn("weather type prediction failed", zap.Error(err))
		return canned()
	}
	out := make([]models.WeatherType, len(labels))
	for i, l := range labels {
		out[i] = models.WeatherType(l)
	}
	return out
}

// forecastColumns are the official forecast fields returned to clients.
var forecastColumns = []string{
	"date", "temp_max", "temp_min", "temperature", "humidity", "rainfall",
	"rain_probability", "wind_speed", "pressure", "weather_code", "weather_type",
}

// Fields returns the named columns of r keyed by column name. Dates are
// YYYY-MM-DD; missing measurements are nil.
func Fields(r models.WeatherRecord, columns []string) map[string]interface{} {
	out := make(map[string]interface{}, len(columns))
	for _, col := range columns {
		out[col] = field(r, col)
	}
	return out
}

func camelFields(r models.WeatherRecord, columns []string) map[string]interface{} {
	out := make(map[string]interface{}, len(columns))
	for _, col := range columns {
		out[toCamel(col)] = field(r, col)
	}
	return out
}

func field(r models.WeatherRecord, col string) interface{} {
	ptr := func(p *float64) interface{} {
		if p == nil {
			return nil
		}
		return *p
	}
	switch col {
	case "date":
		return r.Date.Format(models.DateLayout)
	case "temperature":
		return ptr(r.Temperature)
	case "temp_max":
		return ptr(r.TempMax)
	case "temp_min":
		return ptr(r.TempMin)
	case "humidity":
		return ptr(r.Humidity)
	case "rainfall":
		return ptr(r.Rainfall)
	case "rain_probability":
		return ptr(r.RainProbability)
	case "wind_speed":
		return ptr(r.WindSpeed)
	case "pressure":
		return ptr(r.Pressure)
	case "weather_code":
		return r.WeatherCode
	case "weather_type":
		return string(r.WeatherType)
	case "year":
		return r.Year
	case "month":
		return r.Month
	case "day":
		return r.Day
	case "weekday":
		return r.Weekday
	case "is_weekend":
		return r.IsWeekend
	}
	return nil
}

// toCamel converts snake_case to camelCase.
func toCamel(s string) string {
	parts := strings.Split(s, "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}

// Advice builds per-day advice from the stored official forecast.
func (s *AnalyticsService) Advice(ctx context.Context) (string, []models.DailyAdvice, error) {
	snap := s.state.Snapshot()
	if !snap.HasForecast() {
		return "", nil, ErrNoForecast
	}
	days := make(map[string]advice.Day, len(snap.Forecast.Official))
	for _, entry := range snap.Forecast.Official {
		date, _ := entry["date"].(string)
		if date == "" {
			continue
		}
		temp := math.NaN()
		if v, ok := entry["temperature"].(float64); ok {
			temp = v
		}
		wt, _ := entry["weatherType"].(string)
		days[date] = advice.Day{Temperature: temp, WeatherType: models.WeatherType(wt)}
	}
	return snap.City, advice.Generate(days), nil
}

// Results is a summary of the stored state.
type Results struct {
	HasData      bool                `json:"has_data"`
	HasModel     bool                `json:"has_model"`
	HasForecast  bool                `json:"has_forecast"`
	ModelResults *models.ModelResult `json:"model_results"`
	City         *string             `json:"city"`
	CachedCities []string            `json:"cached_cities"`
}

// Results reports what the state currently holds.
func (s *AnalyticsService) Results(ctx context.Context) Results {
	snap := s.state.Snapshot()
	r := Results{
		HasData:      snap.HasData(),
		HasModel:     snap.HasModel(),
		HasForecast:  snap.HasForecast(),
		ModelResults: snap.ModelResult,
		CachedCities: s.geo.CachedCities(ctx),
	}
	if snap.City != "" {
		city := snap.City
		r.City = &city
	}
	return r
}

// Clear resets all stored state.
func (s *AnalyticsService) Clear() {
	s.state.Clear()
}

// ReverseGeocode returns the address for a coordinate; empty on failure.
func (s *AnalyticsService) ReverseGeocode(ctx context.Context, lat, lon float64) models.AddressInfo {
	return s.geo.Reverse(ctx, lat, lon)
}

// Provinces lists provinces.
func (s *AnalyticsService) Provinces(ctx context.Context) []models.Region {
	return s.geo.Provinces(ctx)
}

// Cities lists the cities of the province with adcode.
func (s *AnalyticsService) Cities(ctx context.Context, adcode string) []models.Region {
	return s.geo.Cities(ctx, adcode)
}

// Districts lists the districts of the city with adcode.
func (s *AnalyticsService) Districts(ctx context.Context, adcode string) []models.Region {
	return s.geo.Districts(ctx, adcode)
}
