// Package weathercode maps WMO weather interpretation codes to weather types.
package weathercode

import "github.com/kjstillabower/weather-analytics-service/internal/models"

// Checked in order; the first set containing the code wins.
var codeSets = []struct {
	codes []int
	typ   models.WeatherType
}{
	{[]int{0}, models.Sunny},
	{[]int{1, 2, 3}, models.Cloudy},
	{[]int{45, 48}, models.Foggy},
	{[]int{51, 53, 55, 61, 63, 65, 80, 81, 82}, models.Rain},
	{[]int{56, 57, 66, 67}, models.FreezingRain},
	{[]int{71, 73, 75, 77, 85, 86}, models.Snow},
	{[]int{95, 96, 99}, models.Thunderstorm},
}

// Classify returns the weather type for a WMO code. Codes outside the known
// sets map to models.Unknown.
func Classify(code int) models.WeatherType {
	for _, set := range codeSets {
		for _, c := range set.codes {
			if c == code {
				return set.typ
			}
		}
	}
	return models.Unknown
}

var displayNames = map[models.WeatherType]string{
	models.Sunny:        "Sunny",
	models.Cloudy:       "Cloudy",
	models.Rain:         "Rainy",
	models.Snow:         "Snowy",
	models.Foggy:        "Foggy",
	models.Thunderstorm: "Thunderstorm",
	models.FreezingRain: "Freezing rain",
	models.Unknown:      "Unknown",
}

// DisplayName returns the human label for a weather type, or the raw value
// when no label is defined.
func DisplayName(t models.WeatherType) string {
	if name, ok := displayNames[t]; ok {
		return name
	}
	return string(t)
}
