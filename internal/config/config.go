package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/weather-screen-service/internal/forecast"
	"github.com/kjstillabower/weather-screen-service/internal/location"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	TestingMode bool

	ServerPort string

	WeatherAPIKey            string
	WeatherAPIURL            string
	WeatherAPITimeout        time.Duration
	WeatherAPIRateLimitRPS   float64 // outbound; 0 disables
	WeatherAPIRateLimitBurst int

	RequestTimeout time.Duration

	RateLimitRPS   int // inbound; 0 disables
	RateLimitBurst int

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	Location location.Config

	DisplayLocale   string
	DisplayTimezone string
	IconURLTemplate string

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	OverloadWindow    time.Duration
	OverloadDeniedPct int
	DegradedWindow    time.Duration
	DegradedErrorPct  int
}

type fileConfig struct {
	TestingMode *bool `yaml:"testing_mode"`

	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		BaseURL        string  `yaml:"base_url"`
		Timeout        string  `yaml:"timeout"`
		RateLimitRPS   float64 `yaml:"rate_limit_rps"`
		RateLimitBurst int     `yaml:"rate_limit_burst"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	CircuitBreaker struct {
		Enabled          *bool  `yaml:"enabled"`
		FailureThreshold int    `yaml:"failure_threshold"`
		SuccessThreshold int    `yaml:"success_threshold"`
		Timeout          string `yaml:"timeout"`
	} `yaml:"circuit_breaker"`

	Location struct {
		Mode        string   `yaml:"mode"`
		Latitude    *float64 `yaml:"latitude"`
		Longitude   *float64 `yaml:"longitude"`
		IPLookupURL string   `yaml:"ip_lookup_url"`
		Timeout     string   `yaml:"timeout"`
	} `yaml:"location"`

	Display struct {
		Locale          string `yaml:"locale"`
		Timezone        string `yaml:"timezone"`
		IconURLTemplate string `yaml:"icon_url_template"`
	} `yaml:"display"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		OverloadWindow    string `yaml:"overload_window"`
		OverloadDeniedPct *int   `yaml:"overload_denied_pct"`
		DegradedWindow    string `yaml:"degraded_window"`
		DegradedErrorPct  *int   `yaml:"degraded_error_pct"`
	} `yaml:"lifecycle"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
}

// Load reads configuration from ./config relative to the working directory,
// after loading ./.env if present. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	if err := loadDotEnv(filepath.Join(cwd, ".env")); err != nil {
		return nil, err
	}
	return LoadFrom(filepath.Join(cwd, "config"))
}

// LoadFrom reads {ENV_NAME}.yaml (default dev) and secrets.yaml from dir.
// A .env file in dir is loaded first; it never overrides variables already set.
// The API key comes from WEATHER_API_KEY or secrets.yaml weather_api_key.
func LoadFrom(dir string) (*Config, error) {
	if err := loadDotEnv(filepath.Join(dir, ".env")); err != nil {
		return nil, err
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(dir, env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}
	if fc.TestingMode != nil {
		cfg.TestingMode = *fc.TestingMode
	}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.WeatherAPIKey, err = loadAPIKey(dir)
	if err != nil {
		return nil, err
	}
	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY required (set env or %s weather_api_key)", filepath.Join(dir, "secrets.yaml"))
	}

	cfg.WeatherAPIURL = strings.TrimSpace(fc.WeatherAPI.BaseURL)
	if cfg.WeatherAPIURL == "" {
		cfg.WeatherAPIURL = "https://api.openweathermap.org/data/2.5"
	}
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 2*time.Second)
	cfg.WeatherAPIRateLimitRPS = fc.WeatherAPI.RateLimitRPS
	cfg.WeatherAPIRateLimitBurst = fc.WeatherAPI.RateLimitBurst
	if cfg.WeatherAPIRateLimitBurst <= 0 {
		cfg.WeatherAPIRateLimitBurst = 2
	}

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 5*time.Second)

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS < 0 {
		cfg.RateLimitRPS = 0
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = cfg.RateLimitRPS * 2
	}

	cfg.CircuitBreakerEnabled = true
	if fc.CircuitBreaker.Enabled != nil {
		cfg.CircuitBreakerEnabled = *fc.CircuitBreaker.Enabled
	}
	cfg.CircuitBreakerFailureThreshold = fc.CircuitBreaker.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerSuccessThreshold = fc.CircuitBreaker.SuccessThreshold
	if cfg.CircuitBreakerSuccessThreshold <= 0 {
		cfg.CircuitBreakerSuccessThreshold = 2
	}
	cfg.CircuitBreakerTimeout = parseDuration(fc.CircuitBreaker.Timeout, 30*time.Second)

	cfg.Location = location.Config{
		Mode:        strings.ToLower(strings.TrimSpace(fc.Location.Mode)),
		IPLookupURL: strings.TrimSpace(fc.Location.IPLookupURL),
		Timeout:     parseDuration(fc.Location.Timeout, 2*time.Second),
	}
	if cfg.Location.Mode == "" {
		cfg.Location.Mode = "none"
	}
	if cfg.Location.Mode == "static" {
		if fc.Location.Latitude == nil || fc.Location.Longitude == nil {
			return nil, fmt.Errorf("location.mode static requires latitude and longitude")
		}
		cfg.Location.Latitude = *fc.Location.Latitude
		cfg.Location.Longitude = *fc.Location.Longitude
	}

	cfg.DisplayLocale = strings.TrimSpace(fc.Display.Locale)
	if cfg.DisplayLocale == "" {
		cfg.DisplayLocale = "und"
	}
	cfg.DisplayTimezone = strings.TrimSpace(fc.Display.Timezone)
	if cfg.DisplayTimezone == "" {
		cfg.DisplayTimezone = "UTC"
	}
	cfg.IconURLTemplate = strings.TrimSpace(fc.Display.IconURLTemplate)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.OverloadWindow = parseDuration(fc.Lifecycle.OverloadWindow, 60*time.Second)
	cfg.OverloadDeniedPct = 50
	if fc.Lifecycle.OverloadDeniedPct != nil {
		cfg.OverloadDeniedPct = *fc.Lifecycle.OverloadDeniedPct
	}
	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = 25
	if fc.Lifecycle.DegradedErrorPct != nil {
		cfg.DegradedErrorPct = *fc.Lifecycle.DegradedErrorPct
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv loads path into the process environment if it exists.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// loadAPIKey prefers WEATHER_API_KEY and falls back to dir/secrets.yaml.
// A missing secrets file is not an error.
func loadAPIKey(dir string) (string, error) {
	if key := strings.TrimSpace(os.Getenv("WEATHER_API_KEY")); key != "" {
		return key, nil
	}
	data, err := os.ReadFile(filepath.Join(dir, "secrets.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	return strings.TrimSpace(sec.WeatherAPIKey), nil
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero or negative durations are returned as-is for validate to reject.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load checks. RequestTimeout is raised above
// WeatherAPITimeout so a screen request can outlive its upstream calls.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.WeatherAPIRateLimitRPS < 0 {
		return fmt.Errorf("weather_api.rate_limit_rps must not be negative")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	switch cfg.Location.Mode {
	case "static", "ip", "none":
	default:
		return fmt.Errorf("location.mode must be static, ip or none, got %q", cfg.Location.Mode)
	}
	if _, err := forecast.NewFormatter(cfg.DisplayLocale, cfg.DisplayTimezone); err != nil {
		return fmt.Errorf("display: %w", err)
	}
	if cfg.IconURLTemplate != "" && !strings.Contains(cfg.IconURLTemplate, "{icon}") {
		return fmt.Errorf("display.icon_url_template must contain {icon}")
	}
	if cfg.OverloadDeniedPct < 0 || cfg.OverloadDeniedPct > 100 {
		return fmt.Errorf("lifecycle.overload_denied_pct must be between 0 and 100, got %d", cfg.OverloadDeniedPct)
	}
	if cfg.DegradedErrorPct < 0 || cfg.DegradedErrorPct > 100 {
		return fmt.Errorf("lifecycle.degraded_error_pct must be between 0 and 100, got %d", cfg.DegradedErrorPct)
	}
	return nil
}
