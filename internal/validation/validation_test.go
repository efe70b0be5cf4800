package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateCity_EmptyAndWhitespace(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"spaces", "   "},
		{"tab", "\t"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateCity(tc.input)
			if !errors.Is(err, ErrCityEmpty) {
				t.Errorf("error = %v, want ErrCityEmpty", err)
			}
		})
	}
}

func TestValidateCity_TooLong(t *testing.T) {
	_, err := ValidateCity(strings.Repeat("a", MaxCityLength+1))
	if !errors.Is(err, ErrCityTooLong) {
		t.Errorf("error = %v, want ErrCityTooLong", err)
	}
}

func TestValidateCity_InvalidChars(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"slash", "bei/jing"},
		{"angle", "<script>"},
		{"semicolon", "beijing;drop"},
		{"newline", "bei\njing"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateCity(tc.input)
			if !errors.Is(err, ErrCityInvalidChars) {
				t.Errorf("error = %v, want ErrCityInvalidChars", err)
			}
		})
	}
}

func TestValidateCity_Valid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple", "beijing", "beijing"},
		{"trimmed", "  Shanghai ", "Shanghai"},
		{"chinese", "北京", "北京"},
		{"comma and hyphen", "Xi'an, Shaanxi-CN", "Xi'an, Shaanxi-CN"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateCity(tc.input)
			if err != nil {
				t.Fatalf("ValidateCity(%q) error = %v", tc.input, err)
			}
			if got != tc.want {
				t.Errorf("ValidateCity(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestValidateDays(t *testing.T) {
	tests := []struct {
		days, max int
		ok        bool
	}{
		{30, 3650, true},
		{1, 3650, true},
		{3650, 3650, true},
		{0, 3650, false},
		{-5, 3650, false},
		{3651, 3650, false},
		{100000, 0, true},
	}
	for _, tc := range tests {
		err := ValidateDays(tc.days, tc.max)
		if (err == nil) != tc.ok {
			t.Errorf("ValidateDays(%d, %d) = %v, want ok=%v", tc.days, tc.max, err, tc.ok)
		}
	}
}

func ptr(v float64) *float64 { return &v }

func TestValidateCoordinates(t *testing.T) {
	if _, _, err := ValidateCoordinates(nil, ptr(116)); !errors.Is(err, ErrCoordinatesMissing) {
		t.Errorf("missing lat: %v", err)
	}
	if _, _, err := ValidateCoordinates(ptr(39), nil); !errors.Is(err, ErrCoordinatesMissing) {
		t.Errorf("missing lon: %v", err)
	}
	if _, _, err := ValidateCoordinates(ptr(91), ptr(0)); !errors.Is(err, ErrCoordinatesOutOfRange) {
		t.Errorf("lat 91: %v", err)
	}
	if _, _, err := ValidateCoordinates(ptr(0), ptr(-181)); !errors.Is(err, ErrCoordinatesOutOfRange) {
		t.Errorf("lon -181: %v", err)
	}
	lat, lon, err := ValidateCoordinates(ptr(39.9), ptr(116.4))
	if err != nil || lat != 39.9 || lon != 116.4 {
		t.Errorf("valid = %v, %v, %v", lat, lon, err)
	}
}

func TestValidateAdcode(t *testing.T) {
	if _, err := ValidateAdcode(""); !errors.Is(err, ErrAdcodeMissing) {
		t.Errorf("empty: %v", err)
	}
	if _, err := ValidateAdcode("11a"); !errors.Is(err, ErrAdcodeInvalid) {
		t.Errorf("letters: %v", err)
	}
	if _, err := ValidateAdcode(strings.Repeat("1", 13)); !errors.Is(err, ErrAdcodeInvalid) {
		t.Errorf("too long: %v", err)
	}
	if got, err := ValidateAdcode(" 110000 "); err != nil || got != "110000" {
		t.Errorf("valid = %q, %v", got, err)
	}
}
