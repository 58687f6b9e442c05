//go:build integration
// +build integration

// Package testhelpers sets up live OpenWeather clients for integration runs:
//
//	WEATHER_API_KEY=... go test -tags integration ./...
package testhelpers

import (
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/weather-screen-service/internal/client"
	"github.com/kjstillabower/weather-screen-service/internal/models"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey     string
	APIURL     string
	Coordinate models.Coordinate
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips the test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}
	apiURL := os.Getenv("WEATHER_API_URL")
	if apiURL == "" {
		apiURL = client.DefaultBaseURL
	}
	return IntegrationTestConfig{
		APIKey: apiKey,
		APIURL: apiURL,
		// Seattle; any populated coordinate works.
		Coordinate: models.Coordinate{Latitude: 47.6062, Longitude: -122.3321},
	}
}

// SetupIntegrationClient creates a live weather client.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) *client.OpenWeatherClient {
	t.Helper()
	c, err := client.NewOpenWeatherClient(cfg.APIKey, cfg.APIURL, 5*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	return c
}
