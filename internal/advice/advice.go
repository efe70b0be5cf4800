// Package advice turns forecast temperatures and weather types into
// clothing, travel and activity suggestions.
package advice

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/kjstillabower/weather-analytics-service/internal/models"
)

// Band names a clothing temperature band.
type Band string

const (
	VeryCold Band = "very_cold"
	Cold     Band = "cold"
	Cool     Band = "cool"
	Mild     Band = "mild"
	Warm     Band = "warm"
	Hot      Band = "hot"
)

// Bands are upper-inclusive: a band covers (previous upper, upper].
var clothingBands = []struct {
	band   Band
	upper  float64
	advice string
}{
	{VeryCold, 5, "Wear a heavy down coat, sweater and thick trousers, with a hat, gloves and scarf"},
	{Cold, 12, "Wear a heavy jacket, sweater and long trousers"},
	{Cool, 18, "Wear a light jacket, long-sleeved shirt and long trousers"},
	{Mild, 25, "Wear a T-shirt or shirt with light trousers or jeans"},
	{Warm, 30, "Wear short sleeves, shorts, skirts or other cool clothing"},
	{Hot, math.Inf(1), "Wear light breathable clothing and protect against the sun"},
}

const (
	defaultClothing = "Dress according to the actual conditions"
	defaultTravel   = "Adjust travel plans to the actual weather"
	defaultActivity = "Plan activities according to the actual weather"
)

var travelRules = map[models.WeatherType]string{
	models.Sunny:        "Clear skies, good for outdoor activities; remember sun protection",
	models.PartlyCloudy: "Fair weather, good for going out",
	models.Cloudy:       "Average weather, normal travel is fine",
	models.Overcast:     "Gloomy skies, consider carrying rain gear",
	models.Rain:         "Rain expected; carry an umbrella and limit outdoor activities",
	models.Thunderstorm: "Thunderstorms expected; avoid going out and stay safe",
	models.Snow:         "Snow expected; watch for slippery surfaces and dress warmly",
}

var activityRules = map[models.WeatherType][]string{
	models.Sunny:        {"Good for outdoor sports, picnics and walks", "Use sunscreen and wear a sun hat"},
	models.PartlyCloudy: {"Good for most outdoor activities", "Take moderate sun protection"},
	models.Cloudy:       {"Fine for outdoor activities, but conditions may change"},
	models.Overcast:     {"Better suited to indoor activities or short trips"},
	models.Rain:         {"Good for indoor activities such as reading or films", "Avoid going out"},
	models.Thunderstorm: {"Stay indoors, away from windows and electrical appliances"},
	models.Snow:         {"Good for skiing, building snowmen and other winter activities", "Keep warm and watch your footing"},
}

// ClothingBand returns the band containing temperature. NaN has no band.
func ClothingBand(temperature float64) (Band, bool) {
	lower := math.Inf(-1)
	for _, b := range clothingBands {
		if lower < temperature && temperature <= b.upper {
			return b.band, true
		}
		lower = b.upper
	}
	return "", false
}

// Clothing returns clothing advice for a temperature in °C.
func Clothing(temperature float64) string {
	band, ok := ClothingBand(temperature)
	if !ok {
		return defaultClothing
	}
	for _, b := range clothingBands {
		if b.band == band {
			return b.advice
		}
	}
	return defaultClothing
}

// Travel returns travel advice for a weather type.
func Travel(t models.WeatherType) string {
	if s, ok := travelRules[t]; ok {
		return s
	}
	return defaultTravel
}

// Activity returns activity suggestions for a weather type.
func Activity(t models.WeatherType) []string {
	if s, ok := activityRules[t]; ok {
		return append([]string(nil), s...)
	}
	return []string{defaultActivity}
}

// Day is the forecast input for one date.
type Day struct {
	Temperature float64
	WeatherType models.WeatherType
}

// Generate returns advice for each date (YYYY-MM-DD), sorted by date.
// Saturdays and Sundays also carry weekend advice.
func Generate(forecast map[string]Day) []models.DailyAdvice {
	dates := make([]string, 0, len(forecast))
	for d := range forecast {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	out := make([]models.DailyAdvice, 0, len(dates))
	for _, date := range dates {
		day := forecast[date]
		a := models.DailyAdvice{
			Date:           date,
			WeatherSummary: fmt.Sprintf("Forecast for %s: %s, %.1f°C", date, day.WeatherType, day.Temperature),
			ClothingAdvice: Clothing(day.Temperature),
			TravelAdvice:   Travel(day.WeatherType),
			ActivityAdvice: Activity(day.WeatherType),
		}
		if t, err := time.Parse(models.DateLayout, date); err == nil {
			if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
				a.WeekendAdvice = Weekend(day.WeatherType, day.Temperature)
			}
		}
		out = append(out, a)
	}
	return out
}

// Weekend returns the weekend suggestion for a weather type and temperature.
func Weekend(t models.WeatherType, temperature float64) string {
	const prefix = "It's the weekend, "
	switch t {
	case models.Sunny, models.PartlyCloudy:
		return prefix + "the weather is good for an outing. " + Clothing(temperature)
	case models.Rain:
		return prefix + "with rain expected; plan indoor activities such as films or shopping."
	case models.Snow:
		return prefix + "with snow expected; good for winter sports like skiing, but keep warm and safe."
	default:
		return prefix + "plan activities to your liking. " + Clothing(temperature)
	}
}
