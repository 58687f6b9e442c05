package validation

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/kjstillabower/weather-screen-service/internal/models"
)

// ErrCoordinateIncomplete is returned when only one of latitude and longitude is given.
var ErrCoordinateIncomplete = errors.New("latitude and longitude must be given together")

// ErrCoordinateNotNumeric is returned when a coordinate is not a finite number.
var ErrCoordinateNotNumeric = errors.New("coordinate is not a number")

// ErrLatitudeOutOfRange is returned when latitude is outside [-90, 90].
var ErrLatitudeOutOfRange = errors.New("latitude out of range")

// ErrLongitudeOutOfRange is returned when longitude is outside [-180, 180].
var ErrLongitudeOutOfRange = errors.New("longitude out of range")

// ParseCoordinate parses a latitude/longitude pair from query strings.
// present is false when both inputs are blank; that is not an error.
// Errors are suitable for 400 INVALID_COORDINATE responses.
func ParseCoordinate(latStr, lonStr string) (coord models.Coordinate, present bool, err error) {
	latStr = strings.TrimSpace(latStr)
	lonStr = strings.TrimSpace(lonStr)
	if latStr == "" && lonStr == "" {
		return models.Coordinate{}, false, nil
	}
	if latStr == "" || lonStr == "" {
		return models.Coordinate{}, true, ErrCoordinateIncomplete
	}
	lat, err := parseFinite(latStr)
	if err != nil {
		return models.Coordinate{}, true, err
	}
	lon, err := parseFinite(lonStr)
	if err != nil {
		return models.Coordinate{}, true, err
	}
	coord = models.Coordinate{Latitude: lat, Longitude: lon}
	if err := ValidateCoordinate(coord); err != nil {
		return models.Coordinate{}, true, err
	}
	return coord, true, nil
}

// ValidateCoordinate enforces latitude in [-90, 90] and longitude in [-180, 180].
func ValidateCoordinate(c models.Coordinate) error {
	if math.IsNaN(c.Latitude) || c.Latitude < -90 || c.Latitude > 90 {
		return ErrLatitudeOutOfRange
	}
	if math.IsNaN(c.Longitude) || c.Longitude < -180 || c.Longitude > 180 {
		return ErrLongitudeOutOfRange
	}
	return nil
}

func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrCoordinateNotNumeric
	}
	return v, nil
}
