package validation

import (
	"errors"
	"strings"
	"unicode"
)

// ErrCityEmpty is returned when city is empty or whitespace-only after trim.
var ErrCityEmpty = errors.New("city is required")

// ErrCityTooLong is returned when city length exceeds MaxCityLength runes.
var ErrCityTooLong = errors.New("city too long")

// ErrCityInvalidChars is returned when city contains disallowed characters.
var ErrCityInvalidChars = errors.New("city contains invalid characters")

// ErrDaysOutOfRange is returned when days is not in [1, max].
var ErrDaysOutOfRange = errors.New("days out of range")

// ErrCoordinatesMissing is returned when latitude or longitude is absent.
var ErrCoordinatesMissing = errors.New("Missing latitude or longitude")

// ErrCoordinatesOutOfRange is returned for latitude outside [-90, 90] or
// longitude outside [-180, 180].
var ErrCoordinatesOutOfRange = errors.New("latitude or longitude out of range")

// ErrAdcodeMissing is returned when the adcode query parameter is absent.
var ErrAdcodeMissing = errors.New("Missing adcode parameter")

// ErrAdcodeInvalid is returned when adcode is not a short run of digits.
var ErrAdcodeInvalid = errors.New("adcode must be digits")

// MaxCityLength bounds city names in runes.
const MaxCityLength = 64

const maxAdcodeLength = 12

// ValidateCity trims the input and restricts it to letters (Unicode),
// digits, space, comma, hyphen and apostrophe. Returns the trimmed string.
// Normalization (e.g. lowercase) is left to the geo resolver.
func ValidateCity(input string) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) == 0 {
		return "", ErrCityEmpty
	}
	if len(r) > MaxCityLength {
		return "", ErrCityTooLong
	}
	for _, c := range r {
		if !isAllowedCityRune(c) {
			return "", ErrCityInvalidChars
		}
	}
	return s, nil
}

func isAllowedCityRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '\'':
		return true
	}
	return false
}

// ValidateDays checks 1 <= days <= max.
func ValidateDays(days, max int) error {
	if days < 1 || (max > 0 && days > max) {
		return ErrDaysOutOfRange
	}
	return nil
}

// ValidateCoordinates checks that both coordinates are present and in range.
func ValidateCoordinates(lat, lon *float64) (float64, float64, error) {
	if lat == nil || lon == nil {
		return 0, 0, ErrCoordinatesMissing
	}
	if *lat < -90 || *lat > 90 || *lon < -180 || *lon > 180 {
		return 0, 0, ErrCoordinatesOutOfRange
	}
	return *lat, *lon, nil
}

// ValidateAdcode trims the input and requires 1-12 ASCII digits.
func ValidateAdcode(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", ErrAdcodeMissing
	}
	if len(s) > maxAdcodeLength {
		return "", ErrAdcodeInvalid
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return "", ErrAdcodeInvalid
		}
	}
	return s, nil
}
