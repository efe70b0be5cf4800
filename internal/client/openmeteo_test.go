package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kjstillabower/weather-analytics-service/internal/models"
)

const archiveBody = `{
  "daily": {
    "time": ["2024-01-02", "2024-01-01", "2024-01-02"],
    "temperature_2m_mean": [1.5, -2.0, 3.0],
    "temperature_2m_max": [5.0, 1.0, 6.0],
    "temperature_2m_min": [-1.0, -5.0, 0.0],
    "relative_humidity_2m_mean": [40, null, 45],
    "precipitation_sum": [0, 0.2, 0],
    "precipitation_probability_mean": [null, null, null],
    "wind_speed_10m_mean": [10.1, 8.2, 9.9],
    "surface_pressure_mean": [1020.5, 1018.0, 1019.0],
    "weather_code": [0, 61, 3]
  }
}`

func TestOpenMeteoClient_FetchHistorical(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("start_date") != "2024-01-01" || q.Get("end_date") != "2024-01-02" {
			t.Errorf("unexpected date range %q..%q", q.Get("start_date"), q.Get("end_date"))
		}
		if q.Get("timezone") != "Asia/Shanghai" {
			t.Errorf("timezone = %q, want Asia/Shanghai", q.Get("timezone"))
		}
		if !strings.Contains(q.Get("daily"), "precipitation_probability_mean") {
			t.Errorf("daily = %q, want archive fields", q.Get("daily"))
		}
		if q.Get("latitude") != "39.9042" {
			t.Errorf("latitude = %q", q.Get("latitude"))
		}
		_, _ = w.Write([]byte(archiveBody))
	}))
	defer server.Close()

	c, err := NewOpenMeteoClient(server.URL, server.URL, "", testOptions())
	if err != nil {
		t.Fatalf("NewOpenMeteoClient() error = %v", err)
	}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)
	recs, err := c.FetchHistorical(context.Background(), models.Location{Latitude: 39.9042, Longitude: 116.4074}, start, end)
	if err != nil {
		t.Fatalf("FetchHistorical() error = %v", err)
	}

	if len(recs) != 2 {
		t.Fatalf("len(records) = %d, want 2 (duplicate date collapsed)", len(recs))
	}
	if !recs[0].Date.Equal(start) {
		t.Errorf("records not sorted: first date = %v", recs[0].Date)
	}
	if recs[0].WeatherType != models.Rain {
		t.Errorf("records[0].WeatherType = %q, want rain", recs[0].WeatherType)
	}
	if recs[0].Humidity != nil {
		t.Errorf("records[0].Humidity = %v, want nil", *recs[0].Humidity)
	}
	if recs[1].Temperature == nil || *recs[1].Temperature != 3.0 {
		t.Errorf("records[1].Temperature = %v, want last duplicate value 3.0", recs[1].Temperature)
	}
	if recs[1].WeatherType != models.Cloudy {
		t.Errorf("records[1].WeatherType = %q, want cloudy", recs[1].WeatherType)
	}
}

func TestOpenMeteoClient_FetchForecast_TemperatureMidpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("forecast_days"); got != "7" {
			t.Errorf("forecast_days = %q, want 7", got)
		}
		_, _ = w.Write([]byte(`{"daily": {
			"time": ["2024-03-01", "2024-03-02"],
			"temperature_2m_max": [10, null],
			"temperature_2m_min": [2, 1],
			"precipitation_probability_max": [80, 10],
			"wind_speed_10m_max": [20, 12],
			"weather_code": [95, 71]
		}}`))
	}))
	defer server.Close()

	c, err := NewOpenMeteoClient(server.URL, server.URL, "UTC", testOptions())
	if err != nil {
		t.Fatalf("NewOpenMeteoClient() error = %v", err)
	}
	recs, err := c.FetchForecast(context.Background(), models.Location{}, 7)
	if err != nil {
		t.Fatalf("FetchForecast() error = %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(recs))
	}
	if recs[0].Temperature == nil || *recs[0].Temperature != 6 {
		t.Errorf("Temperature = %v, want 6", recs[0].Temperature)
	}
	if recs[1].Temperature != nil {
		t.Errorf("Temperature = %v, want nil when max missing", *recs[1].Temperature)
	}
	if *recs[0].RainProbability != 80 || *recs[0].WindSpeed != 20 {
		t.Error("forecast should map precipitation_probability_max and wind_speed_10m_max")
	}
	if recs[0].WeatherType != models.Thunderstorm || recs[1].WeatherType != models.Snow {
		t.Errorf("weather types = %q, %q", recs[0].WeatherType, recs[1].WeatherType)
	}
}

func TestOpenMeteoClient_FetchHistorical_UpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c, _ := NewOpenMeteoClient(server.URL, server.URL, "", testOptions())
	_, err := c.FetchHistorical(context.Background(), models.Location{}, time.Now(), time.Now())
	if !errors.Is(err, ErrUpstreamFailure) {
		t.Fatalf("FetchHistorical() error = %v, want ErrUpstreamFailure", err)
	}
}

func TestNewOpenMeteoClient_RequiresURLs(t *testing.T) {
	if _, err := NewOpenMeteoClient("", "http://x", "", testOptions()); err == nil {
		t.Error("NewOpenMeteoClient() expected error for empty archive URL")
	}
}
