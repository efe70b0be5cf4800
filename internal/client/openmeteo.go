package client

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/weather-analytics-service/internal/models"
	"github.com/kjstillabower/weather-analytics-service/internal/weathercode"
)

// WeatherFetcher fetches daily weather series for a coordinate.
type WeatherFetcher interface {
	FetchHistorical(ctx context.Context, loc models.Location, start, end time.Time) ([]models.WeatherRecord, error)
	FetchForecast(ctx context.Context, loc models.Location, days int) ([]models.WeatherRecord, error)
}

var archiveDailyFields = []string{
	"temperature_2m_mean",
	"temperature_2m_max",
	"temperature_2m_min",
	"relative_humidity_2m_mean",
	"precipitation_sum",
	"precipitation_probability_mean",
	"wind_speed_10m_mean",
	"surface_pressure_mean",
	"weather_code",
}

var forecastDailyFields = []string{
	"temperature_2m_max",
	"temperature_2m_min",
	"relative_humidity_2m_mean",
	"precipitation_sum",
	"precipitation_probability_max",
	"wind_speed_10m_max",
	"surface_pressure_mean",
	"weather_code",
}

// OpenMeteoClient reads the Open-Meteo archive and forecast APIs.
type OpenMeteoClient struct {
	archiveURL  string
	forecastURL string
	timezone    string
	archive     *upstream
	forecast    *upstream
}

// NewOpenMeteoClient returns a client for the archive and forecast endpoints.
// Each endpoint gets its own breaker.
func NewOpenMeteoClient(archiveURL, forecastURL, timezone string, opts Options) (*OpenMeteoClient, error) {
	if archiveURL == "" || forecastURL == "" {
		return nil, fmt.Errorf("archive and forecast URLs are required")
	}
	if timezone == "" {
		timezone = "Asia/Shanghai"
	}
	return &OpenMeteoClient{
		archiveURL:  archiveURL,
		forecastURL: forecastURL,
		timezone:    timezone,
		archive:     newUpstream("archive", opts),
		forecast:    newUpstream("forecast", opts),
	}, nil
}

// dailyResponse is the "daily" block shared by both endpoints. Values are
// nullable per day.
type dailyResponse struct {
	Daily struct {
		Time                         []string   `json:"time"`
		Temperature2mMean            []*float64 `json:"temperature_2m_mean"`
		Temperature2mMax             []*float64 `json:"temperature_2m_max"`
		Temperature2mMin             []*float64 `json:"temperature_2m_min"`
		RelativeHumidity2mMean       []*float64 `json:"relative_humidity_2m_mean"`
		PrecipitationSum             []*float64 `json:"precipitation_sum"`
		PrecipitationProbabilityMean []*float64 `json:"precipitation_probability_mean"`
		PrecipitationProbabilityMax  []*float64 `json:"precipitation_probability_max"`
		WindSpeed10mMean             []*float64 `json:"wind_speed_10m_mean"`
		WindSpeed10mMax              []*float64 `json:"wind_speed_10m_max"`
		SurfacePressureMean          []*float64 `json:"surface_pressure_mean"`
		WeatherCode                  []*float64 `json:"weather_code"`
	} `json:"daily"`
}

// FetchHistorical returns one record per day in [start, end], sorted by date.
func (c *OpenMeteoClient) FetchHistorical(ctx context.Context, loc models.Location, start, end time.Time) ([]models.WeatherRecord, error) {
	params := c.baseParams(loc, archiveDailyFields)
	params.Set("start_date", start.Format(models.DateLayout))
	params.Set("end_date", end.Format(models.DateLayout))

	var resp dailyResponse
	if err := c.archive.getJSON(ctx, c.archiveURL, params, &resp); err != nil {
		return nil, fmt.Errorf("fetch historical: %w", err)
	}
	return mapDaily(resp, false)
}

// FetchForecast returns up to days forecast records. Temperature is the
// midpoint of the daily max and min.
func (c *OpenMeteoClient) FetchForecast(ctx context.Context, loc models.Location, days int) ([]models.WeatherRecord, error) {
	if days <= 0 {
		days = 7
	}
	params := c.baseParams(loc, forecastDailyFields)
	params.Set("forecast_days", strconv.Itoa(days))

	var resp dailyResponse
	if err := c.forecast.getJSON(ctx, c.forecastURL, params, &resp); err != nil {
		return nil, fmt.Errorf("fetch forecast: %w", err)
	}
	return mapDaily(resp, true)
}

func (c *OpenMeteoClient) baseParams(loc models.Location, fields []string) url.Values {
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(loc.Latitude, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(loc.Longitude, 'f', -1, 64))
	params.Set("daily", strings.Join(fields, ","))
	params.Set("timezone", c.timezone)
	return params
}

// mapDaily converts the columnar daily block into records, sorted and
// de-duplicated by date (last occurrence wins).
func mapDaily(resp dailyResponse, forecast bool) ([]models.WeatherRecord, error) {
	d := resp.Daily
	byDate := make(map[string]models.WeatherRecord, len(d.Time))
	for i, day := range d.Time {
		date, err := time.Parse(models.DateLayout, day)
		if err != nil {
			return nil, fmt.Errorf("parse response: date %q: %w", day, err)
		}
		rec := models.WeatherRecord{
			Date:     date,
			TempMax:  at(d.Temperature2mMax, i),
			TempMin:  at(d.Temperature2mMin, i),
			Humidity: at(d.RelativeHumidity2mMean, i),
			Rainfall: at(d.PrecipitationSum, i),
			Pressure: at(d.SurfacePressureMean, i),
		}
		if forecast {
			rec.RainProbability = at(d.PrecipitationProbabilityMax, i)
			rec.WindSpeed = at(d.WindSpeed10mMax, i)
			if rec.TempMax != nil && rec.TempMin != nil {
				rec.Temperature = models.Float((*rec.TempMax + *rec.TempMin) / 2)
			}
		} else {
			rec.Temperature = at(d.Temperature2mMean, i)
			rec.RainProbability = at(d.PrecipitationProbabilityMean, i)
			rec.WindSpeed = at(d.WindSpeed10mMean, i)
		}
		if code := at(d.WeatherCode, i); code != nil {
			rec.WeatherCode = int(*code)
		} else {
			rec.WeatherCode = -1
		}
		rec.WeatherType = weathercode.Classify(rec.WeatherCode)
		byDate[day] = rec
	}

	records := make([]models.WeatherRecord, 0, len(byDate))
	for _, rec := range byDate {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Date.Before(records[j].Date)
	})
	return records, nil
}

func at(values []*float64, i int) *float64 {
	if i >= len(values) || values[i] == nil {
		return nil
	}
	v := *values[i]
	return &v
}
