package models

import "time"

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// WeatherType is the categorical label derived from a WMO weather code.
type WeatherType string

const (
	Sunny        WeatherType = "sunny"
	PartlyCloudy WeatherType = "partly_cloudy"
	Cloudy       WeatherType = "cloudy"
	Overcast     WeatherType = "overcast"
	Foggy        WeatherType = "foggy"
	Rain         WeatherType = "rain"
	FreezingRain WeatherType = "freezing_rain"
	Snow         WeatherType = "snow"
	Thunderstorm WeatherType = "thunderstorm"
	Unknown      WeatherType = "unknown"
)

// WeatherRecord is one calendar day of observed or forecast weather.
// Metric fields are nil when the upstream returned null for that day.
type WeatherRecord struct {
	Date            time.Time   `json:"date"`
	Temperature     *float64    `json:"temperature"`
	TempMax         *float64    `json:"temp_max"`
	TempMin         *float64    `json:"temp_min"`
	Humidity        *float64    `json:"humidity"`
	Rainfall        *float64    `json:"rainfall"`
	RainProbability *float64    `json:"rain_probability"`
	WindSpeed       *float64    `json:"wind_speed"`
	Pressure        *float64    `json:"pressure"`
	WeatherCode     int         `json:"weather_code"`
	WeatherType     WeatherType `json:"weather_type"`
	Year            int         `json:"year"`
	Month           int         `json:"month"`
	Day             int         `json:"day"`
	Weekday         int         `json:"weekday"` // 0=Monday..6=Sunday
	IsWeekend       int         `json:"is_weekend"`
}

// RecordColumns lists WeatherRecord fields in table order.
var RecordColumns = []string{
	"date", "temperature", "temp_max", "temp_min", "humidity", "rainfall",
	"rain_probability", "wind_speed", "pressure", "weather_code", "weather_type",
	"year", "month", "day", "weekday", "is_weekend",
}

// Location is a resolved coordinate pair.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// AddressInfo is the result of a reverse geocoding lookup.
type AddressInfo struct {
	Province         string `json:"province"`
	City             string `json:"city"`
	District         string `json:"district"`
	FormattedAddress string `json:"formatted_address"`
}

// Region is an administrative division returned by the map provider.
type Region struct {
	Name   string `json:"name"`
	Adcode string `json:"adcode"`
}

// ARIMAOrder is the (p, d, q) order of an ARIMA model.
type ARIMAOrder struct {
	P int
	D int
	Q int
}

// Slice returns the order as [p, d, q], the shape clients expect.
func (o ARIMAOrder) Slice() []int {
	return []int{o.P, o.D, o.Q}
}

// ClassifierMetrics summarizes one classifier's hold-out evaluation.
// Estimated is true when the values are fallback constants rather than computed.
type ClassifierMetrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1Score   float64 `json:"f1_score"`
	Estimated bool    `json:"estimated"`
}

// ForecastErrors holds hold-out error metrics for the temperature model.
type ForecastErrors struct {
	MAE  float64 `json:"mae"`
	MSE  float64 `json:"mse"`
	RMSE float64 `json:"rmse"`
}

// FeatureImportance is the relative weight of one input feature.
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// ModelResult is the outcome of one training call.
type ModelResult struct {
	City                string                         `json:"city"`
	ARIMAOrder          []int                          `json:"arima_order"`
	TemperatureForecast []float64                      `json:"temperature_forecast"`
	ARIMAEvaluation     *ForecastErrors                `json:"arima_evaluation,omitempty"`
	LogisticRegression  ClassifierMetrics              `json:"logistic_regression"`
	DecisionTree        ClassifierMetrics              `json:"decision_tree"`
	FeatureImportance   map[string][]FeatureImportance `json:"feature_importance,omitempty"`
	Warnings            []string                       `json:"warnings,omitempty"`
	TrainedAt           time.Time                      `json:"trained_at"`
}

// ForecastBundle is the combined official and model forecast.
type ForecastBundle struct {
	Official      []map[string]interface{} `json:"official"`
	AITemperature []float64                `json:"ai_temperature"`
	AIWeather     []WeatherType            `json:"ai_weather"`
}

// DailyAdvice is the lifestyle advice generated for one forecast date.
type DailyAdvice struct {
	Date           string   `json:"date"`
	WeatherSummary string   `json:"weather_summary"`
	ClothingAdvice string   `json:"clothing_advice"`
	TravelAdvice   string   `json:"travel_advice"`
	ActivityAdvice []string `json:"activity_advice"`
	WeekendAdvice  string   `json:"weekend_advice,omitempty"`
}

// Float returns a pointer to v. Convenience for building records.
func Float(v float64) *float64 {
	return &v
}
