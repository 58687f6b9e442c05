package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-screen-service/internal/render"
)

// fakeOpenWeather serves one current reading and a two-day forecast.
func fakeOpenWeather(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/weather":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"name":    "Seattle",
				"main":    map[string]interface{}{"temp": 11.2},
				"weather": []map[string]interface{}{{"icon": "04d", "description": "broken clouds"}},
			})
		case "/forecast":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"list": []map[string]interface{}{
					{"dt": 1704099600, "main": map[string]interface{}{"temp": 10.0}, "weather": []map[string]interface{}{{"icon": "01d", "description": "clear sky"}}},
					{"dt": 1704110400, "main": map[string]interface{}{"temp": 9.0}, "weather": []map[string]interface{}{{"icon": "02d", "description": "few clouds"}}},
					{"dt": 1704186000, "main": map[string]interface{}{"temp": 7.5}, "weather": []map[string]interface{}{{"icon": "10d", "description": "light rain"}}},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, baseURL, location string) string {
	t.Helper()
	t.Setenv("ENV_NAME", "")
	t.Setenv("WEATHER_API_KEY", "test-api-key-12345")
	dir := t.TempDir()
	yaml := "weather_api:\n  base_url: \"" + baseURL + "\"\n  timeout: \"2s\"\n" +
		"display:\n  locale: \"und\"\n  timezone: \"UTC\"\n" + location
	if err := os.WriteFile(filepath.Join(dir, "dev.yaml"), []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestRun_TextScreenForFlagCoordinates(t *testing.T) {
	var calls int32
	srv := fakeOpenWeather(t, &calls)
	dir := writeConfig(t, srv.URL, "")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-config-dir", dir, "-lat", "47.6062", "-lon", "-122.3321"}, &stdout, &stderr, zap.NewNop())

	if code != exitOK {
		t.Fatalf("run() = %d, want 0; stderr=%s", code, stderr.String())
	}
	out := stdout.String()
	for _, want := range []string{"Seattle", "broken clouds", "2024-01-01", "2024-01-02", "09:00", "12:00", "light rain"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if calls != 2 {
		t.Errorf("upstream calls = %d, want 2", calls)
	}
}

func TestRun_JSONOutput(t *testing.T) {
	var calls int32
	srv := fakeOpenWeather(t, &calls)
	dir := writeConfig(t, srv.URL, "")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-config-dir", dir, "-lat", "47.6", "-lon", "-122.3", "-json", "-locale", "en-US", "-tz", "America/Los_Angeles"}, &stdout, &stderr, zap.NewNop())
	if code != exitOK {
		t.Fatalf("run() = %d; stderr=%s", code, stderr.String())
	}

	var v render.View
	if err := json.Unmarshal(stdout.Bytes(), &v); err != nil {
		t.Fatalf("stdout is not a view: %v\n%s", err, stdout.String())
	}
	if v.Outcome != "complete" {
		t.Errorf("Outcome = %q, want complete", v.Outcome)
	}
	// 09:00 and 12:00 UTC on Jan 1 are 01:00 and 04:00 in Los Angeles; Jan 2 09:00 UTC is Jan 2 01:00.
	if len(v.Forecast) != 2 || v.Forecast[0].Date != "1/1/2024" || v.Forecast[0].Cards[0].Time != "01:00 AM" {
		t.Errorf("Forecast = %+v", v.Forecast)
	}
}

func TestRun_DeniedPrintsHeaderOnly(t *testing.T) {
	var calls int32
	srv := fakeOpenWeather(t, &calls)
	dir := writeConfig(t, srv.URL, "location:\n  mode: none\n")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-config-dir", dir}, &stdout, &stderr, zap.NewNop())

	if code != exitOK {
		t.Fatalf("run() = %d, want 0", code)
	}
	if got := strings.TrimSpace(stdout.String()); got != "Weather (location unavailable)" {
		t.Errorf("output = %q, want header only", got)
	}
	if calls != 0 {
		t.Errorf("upstream calls = %d, want 0 after denial", calls)
	}
}

func TestRun_ConfiguredStaticLocation(t *testing.T) {
	var calls int32
	srv := fakeOpenWeather(t, &calls)
	dir := writeConfig(t, srv.URL, "location:\n  mode: static\n  latitude: 47.6062\n  longitude: -122.3321\n")

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"-config-dir", dir}, &stdout, &stderr, zap.NewNop()); code != exitOK {
		t.Fatalf("run() = %d; stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "Weather at 47.6062, -122.3321") {
		t.Errorf("output = %s", stdout.String())
	}
}

func TestRun_UpstreamFailureLeavesSectionsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)
	dir := writeConfig(t, srv.URL, "")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-config-dir", dir, "-lat", "1", "-lon", "1"}, &stdout, &stderr, zap.NewNop())
	if code != exitOK {
		t.Fatalf("run() = %d, want 0 (fetch failures are not fatal)", code)
	}
	if got := strings.TrimSpace(stdout.String()); got != "Weather at 1.0000, 1.0000" {
		t.Errorf("output = %q, want header only", got)
	}
}

func TestRun_UsageErrors(t *testing.T) {
	dir := writeConfig(t, "http://127.0.0.1:1", "")
	tests := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"-nope"}},
		{"lat without lon", []string{"-config-dir", dir, "-lat", "10"}},
		{"non-numeric", []string{"-config-dir", dir, "-lat", "x", "-lon", "1"}},
		{"bad locale", []string{"-config-dir", dir, "-lat", "1", "-lon", "1", "-locale", "!!"}},
		{"extra args", []string{"-config-dir", dir, "extra"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := run(context.Background(), tt.args, &stdout, &stderr, zap.NewNop()); code != exitUsage {
				t.Errorf("run(%v) = %d, want %d", tt.args, code, exitUsage)
			}
			if stdout.Len() != 0 {
				t.Errorf("stdout = %q, want empty", stdout.String())
			}
		})
	}
}

func TestRun_MissingConfig(t *testing.T) {
	t.Setenv("ENV_NAME", "")
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-config-dir", t.TempDir()}, &stdout, &stderr, zap.NewNop())
	if code != exitError {
		t.Errorf("run() = %d, want %d", code, exitError)
	}
}
