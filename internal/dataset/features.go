// Package dataset turns fetched weather records into modelling input:
// calendar features, imputed numeric columns and classifier matrices.
package dataset

import (
	"fmt"
	"time"

	"github.com/kjstillabower/weather-analytics-service/internal/models"
)

// ImputedColumns are the numeric columns filled with their mean when missing.
var ImputedColumns = []string{"temperature", "humidity", "rainfall", "wind_speed", "pressure"}

// ClassifierFeatures are the classifier input columns, in matrix order.
var ClassifierFeatures = []string{
	"year", "month", "day", "weekday", "is_weekend",
	"temperature", "humidity", "rainfall", "wind_speed", "pressure",
}

// Weekday returns the Monday-based weekday (0=Monday..6=Sunday) of t.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// IsWeekend reports whether a Monday-based weekday is Saturday or Sunday.
// It panics when weekday is outside [0,6].
func IsWeekend(weekday int) bool {
	if weekday < 0 || weekday > 6 {
		panic(fmt.Sprintf("dataset: weekday %d out of range [0,6]", weekday))
	}
	return weekday >= 5
}

// Engineer derives calendar features and imputes missing numeric values.
// It returns a new slice and leaves records unchanged. Columns with no
// observed values stay nil and are listed in the second return value.
func Engineer(records []models.WeatherRecord) ([]models.WeatherRecord, []string) {
	out := make([]models.WeatherRecord, len(records))
	copy(out, records)

	for i := range out {
		r := &out[i]
		r.Year = r.Date.Year()
		r.Month = int(r.Date.Month())
		r.Day = r.Date.Day()
		r.Weekday = Weekday(r.Date)
		r.IsWeekend = 0
		if IsWeekend(r.Weekday) {
			r.IsWeekend = 1
		}
	}

	var unfilled []string
	for _, col := range ImputedColumns {
		if !imputeMean(out, col) {
			unfilled = append(unfilled, col)
		}
	}
	return out, unfilled
}

// imputeMean fills nil values of col with the mean of the non-nil values.
// It returns false when no value of col was observed.
func imputeMean(records []models.WeatherRecord, col string) bool {
	var sum float64
	n := 0
	for i := range records {
		if v := *column(&records[i], col); v != nil {
			sum += *v
			n++
		}
	}
	if n == 0 {
		return len(records) == 0
	}
	mean := sum / float64(n)
	for i := range records {
		p := column(&records[i], col)
		if *p == nil {
			*p = models.Float(mean)
		} else {
			// Copy so the output never aliases the caller's values.
			*p = models.Float(**p)
		}
	}
	return true
}

// column returns the address of a nullable numeric field by column name.
func column(r *models.WeatherRecord, col string) **float64 {
	switch col {
	case "temperature":
		return &r.Temperature
	case "humidity":
		return &r.Humidity
	case "rainfall":
		return &r.Rainfall
	case "wind_speed":
		return &r.WindSpeed
	case "pressure":
		return &r.Pressure
	case "temp_max":
		return &r.TempMax
	case "temp_min":
		return &r.TempMin
	case "rain_probability":
		return &r.RainProbability
	}
	panic("dataset: unknown column " + col)
}

// Temperatures returns the temperature series. Records without a temperature are skipped.
func Temperatures(records []models.WeatherRecord) []float64 {
	out := make([]float64, 0, len(records))
	for _, r := range records {
		if r.Temperature != nil {
			out = append(out, *r.Temperature)
		}
	}
	return out
}

// FeatureRow returns the classifier input for one record in ClassifierFeatures
// order. ok is false when a numeric feature is missing.
func FeatureRow(r models.WeatherRecord) (row []float64, ok bool) {
	row = []float64{
		float64(r.Year), float64(r.Month), float64(r.Day),
		float64(r.Weekday), float64(r.IsWeekend),
	}
	for _, p := range []*float64{r.Temperature, r.Humidity, r.Rainfall, r.WindSpeed, r.Pressure} {
		if p == nil {
			return nil, false
		}
		row = append(row, *p)
	}
	return row, true
}

// Matrix builds the classifier design matrix and labels. Rows with missing
// features are dropped.
func Matrix(records []models.WeatherRecord) (X [][]float64, y []string) {
	for _, r := range records {
		row, ok := FeatureRow(r)
		if !ok {
			continue
		}
		X = append(X, row)
		y = append(y, string(r.WeatherType))
	}
	return X, y
}
