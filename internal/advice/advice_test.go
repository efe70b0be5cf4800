package advice

import (
	"math"
	"strings"
	"testing"

	"github.com/kjstillabower/weather-analytics-service/internal/models"
)

func TestClothingBand_Boundaries(t *testing.T) {
	tests := []struct {
		temp float64
		want Band
	}{
		{-20, VeryCold},
		{5.0, VeryCold},
		{5.01, Cold},
		{12, Cold},
		{12.5, Cool},
		{18, Cool},
		{25, Mild},
		{30, Warm},
		{30.1, Hot},
	}
	for _, tt := range tests {
		got, ok := ClothingBand(tt.temp)
		if !ok || got != tt.want {
			t.Errorf("ClothingBand(%v) = %q, %v; want %q", tt.temp, got, ok, tt.want)
		}
	}
}

func TestClothing_NaNUsesDefault(t *testing.T) {
	if _, ok := ClothingBand(math.NaN()); ok {
		t.Error("NaN should have no band")
	}
	if got := Clothing(math.NaN()); got != defaultClothing {
		t.Errorf("Clothing(NaN) = %q", got)
	}
}

func TestTravelAndActivity_Defaults(t *testing.T) {
	if got := Travel(models.Foggy); got != defaultTravel {
		t.Errorf("Travel(foggy) = %q", got)
	}
	if got := Activity(models.Unknown); len(got) != 1 || got[0] != defaultActivity {
		t.Errorf("Activity(unknown) = %v", got)
	}
	if got := Activity(models.Sunny); len(got) != 2 {
		t.Errorf("Activity(sunny) = %v", got)
	}
}

func TestActivity_ReturnsCopy(t *testing.T) {
	a := Activity(models.Rain)
	a[0] = "changed"
	if Activity(models.Rain)[0] == "changed" {
		t.Error("Activity leaked the rule table")
	}
}

func TestGenerate_SortedWithWeekend(t *testing.T) {
	advice := Generate(map[string]Day{
		"2024-03-04": {Temperature: 8, WeatherType: models.Rain},   // Monday
		"2024-03-02": {Temperature: 20, WeatherType: models.Sunny}, // Saturday
		"2024-03-03": {Temperature: -1, WeatherType: models.Snow},  // Sunday
	})
	if len(advice) != 3 {
		t.Fatalf("len = %d, want 3", len(advice))
	}
	wantDates := []string{"2024-03-02", "2024-03-03", "2024-03-04"}
	for i, d := range wantDates {
		if advice[i].Date != d {
			t.Errorf("advice[%d].Date = %s, want %s", i, advice[i].Date, d)
		}
	}
	if !strings.Contains(advice[0].WeatherSummary, "20.0°C") {
		t.Errorf("summary = %q", advice[0].WeatherSummary)
	}
	if !strings.Contains(advice[0].WeekendAdvice, Clothing(20)) {
		t.Errorf("saturday weekend advice = %q", advice[0].WeekendAdvice)
	}
	if !strings.Contains(advice[1].WeekendAdvice, "snow") {
		t.Errorf("sunday weekend advice = %q", advice[1].WeekendAdvice)
	}
	if advice[2].WeekendAdvice != "" {
		t.Errorf("monday should have no weekend advice, got %q", advice[2].WeekendAdvice)
	}
	if advice[2].TravelAdvice != Travel(models.Rain) {
		t.Errorf("travel = %q", advice[2].TravelAdvice)
	}
}

func TestWeekend(t *testing.T) {
	if got := Weekend(models.Rain, 10); !strings.Contains(got, "indoor") {
		t.Errorf("Weekend(rain) = %q", got)
	}
	if got := Weekend(models.Cloudy, 10); !strings.HasSuffix(got, Clothing(10)) {
		t.Errorf("Weekend(cloudy) = %q", got)
	}
}
