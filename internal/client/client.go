package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-screen-service/internal/circuitbreaker"
	"github.com/kjstillabower/weather-screen-service/internal/models"
	"github.com/kjstillabower/weather-screen-service/internal/observability"
)

// WeatherClient fetches the two independent payloads a screen needs.
type WeatherClient interface {
	FetchCurrent(ctx context.Context, coord models.Coordinate) (models.CurrentConditions, error)
	FetchForecast(ctx context.Context, coord models.Coordinate) ([]models.ForecastSample, error)
	ValidateAPIKey(ctx context.Context) error
}

// Endpoint labels, also used in metrics.
const (
	EndpointCurrent  = "current"
	EndpointForecast = "forecast"
)

var endpointPaths = map[string]string{
	EndpointCurrent:  "/weather",
	EndpointForecast: "/forecast",
}

var (
	ErrInvalidAPIKey     = errors.New("invalid API key")
	ErrLocationNotFound  = errors.New("location not found")
	ErrUpstreamFailure   = errors.New("upstream failure")
	ErrRateLimited       = errors.New("rate limited")
	ErrMalformedResponse = errors.New("malformed response")
	ErrCircuitOpen       = circuitbreaker.ErrOpen
)

// FetchError wraps any failure of a single weather fetch: network, non-2xx or
// undecodable payload. The screen slot for Endpoint stays empty.
type FetchError struct {
	Endpoint string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s weather: %v", e.Endpoint, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// OpenWeatherClient talks to the OpenWeather 2.5 API. It never retries.
type OpenWeatherClient struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	client  *http.Client
	limiter *rate.Limiter
	breaker *circuitbreaker.CircuitBreaker
}

// DefaultBaseURL is the OpenWeather 2.5 API root.
const DefaultBaseURL = "https://api.openweathermap.org/data/2.5"

func NewOpenWeatherClient(apiKey, baseURL string, timeout time.Duration) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	return &OpenWeatherClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetRateLimiter makes every call wait for a token first. Nil disables limiting.
func (c *OpenWeatherClient) SetRateLimiter(l *rate.Limiter) {
	c.limiter = l
}

// SetCircuitBreaker routes every call through cb. Nil disables the breaker.
func (c *OpenWeatherClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

type weatherElement struct {
	Icon        string `json:"icon"`
	Description string `json:"description"`
}

type currentResponse struct {
	Name string `json:"name"`
	Main struct {
		Temp *float64 `json:"temp"`
	} `json:"main"`
	Weather []weatherElement `json:"weather"`
}

type forecastEntry struct {
	Dt   int64 `json:"dt"`
	Main struct {
		Temp *float64 `json:"temp"`
	} `json:"main"`
	Weather []weatherElement `json:"weather"`
}

type forecastResponse struct {
	List *[]forecastEntry `json:"list"`
}

// FetchCurrent returns current conditions at coord. A payload without
// main.temp is malformed; a missing weather element leaves icon and description empty.
func (c *OpenWeatherClient) FetchCurrent(ctx context.Context, coord models.Coordinate) (models.CurrentConditions, error) {
	var body currentResponse
	if err := c.fetch(ctx, EndpointCurrent, coord, &body); err != nil {
		return models.CurrentConditions{}, err
	}
	if body.Main.Temp == nil {
		return models.CurrentConditions{}, c.fail(EndpointCurrent, fmt.Errorf("%w: main.temp missing", ErrMalformedResponse))
	}

	current := models.CurrentConditions{
		Name:        body.Name,
		Temperature: *body.Main.Temp,
	}
	if len(body.Weather) > 0 {
		current.Icon = body.Weather[0].Icon
		current.Description = body.Weather[0].Description
	}
	return current, nil
}

// FetchForecast returns the forecast list at coord in upstream order.
// Entries without a weather element, a temperature or a timestamp are skipped
// and counted; a payload without a list is malformed.
func (c *OpenWeatherClient) FetchForecast(ctx context.Context, coord models.Coordinate) ([]models.ForecastSample, error) {
	var body forecastResponse
	if err := c.fetch(ctx, EndpointForecast, coord, &body); err != nil {
		return nil, err
	}
	if body.List == nil {
		return nil, c.fail(EndpointForecast, fmt.Errorf("%w: list missing", ErrMalformedResponse))
	}

	entries := *body.List
	samples := make([]models.ForecastSample, 0, len(entries))
	skipped := 0
	for _, e := range entries {
		if e.Dt == 0 || e.Main.Temp == nil || len(e.Weather) == 0 {
			skipped++
			continue
		}
		samples = append(samples, models.ForecastSample{
			Timestamp:   e.Dt,
			Temperature: *e.Main.Temp,
			Icon:        e.Weather[0].Icon,
			Description: e.Weather[0].Description,
		})
	}
	if skipped > 0 {
		observability.ForecastSamplesSkippedTotal.Add(float64(skipped))
		observability.LoggerFromContext(ctx).Warn("forecast entries skipped",
			zap.Int("skipped", skipped), zap.Int("kept", len(samples)))
	}
	return samples, nil
}

func (c *OpenWeatherClient) fetch(ctx context.Context, endpoint string, coord models.Coordinate, out interface{}) error {
	call := func() error { return c.callAPI(ctx, endpoint, coord, out) }
	var err error
	if c.breaker != nil {
		err = c.breaker.Call(call)
	} else {
		err = call()
	}
	if err != nil {
		return c.fail(endpoint, err)
	}
	return nil
}

func (c *OpenWeatherClient) fail(endpoint string, err error) error {
	observability.WeatherAPIErrorsTotal.WithLabelValues(endpoint, string(CategorizeError(err))).Inc()
	return &FetchError{Endpoint: endpoint, Err: err}
}

func (c *OpenWeatherClient) callAPI(ctx context.Context, endpoint string, coord models.Coordinate, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, endpoint, coord)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("build request: %w", err)
	}

	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.WeatherAPIDuration.WithLabelValues(endpoint, "error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("request timeout: %w", err)
		}
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(endpoint, status).Observe(duration)

	if err := handleErrorResponse(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, endpoint string, coord models.Coordinate) (*http.Request, error) {
	u, err := url.Parse(c.baseURL + endpointPaths[endpoint])
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(coord.Latitude, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(coord.Longitude, 'f', -1, 64))
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: HTTP 401", ErrInvalidAPIKey)
	case http.StatusNotFound:
		return fmt.Errorf("%w", ErrLocationNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	return nil
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// validationCoordinate is a well-known point used to check the API key.
var validationCoordinate = models.Coordinate{Latitude: 51.5074, Longitude: -0.1278}

// ValidateAPIKey issues one current-weather request and reports whether the key is accepted.
func (c *OpenWeatherClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := c.buildRequest(ctx, EndpointCurrent, validationCoordinate)
	if err != nil {
		return fmt.Errorf("build validation request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: API key is invalid or not activated", ErrInvalidAPIKey)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("validation failed: HTTP %d", resp.StatusCode)
	}

	return nil
}
