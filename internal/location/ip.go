package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-screen-service/internal/models"
	"github.com/kjstillabower/weather-screen-service/internal/validation"
)

// DefaultIPLookupURL answers with the caller's approximate position.
const DefaultIPLookupURL = "http://ip-api.com/json/?fields=status,message,lat,lon,city"

// ErrLookupFailed is returned when the geolocation service cannot place the caller.
var ErrLookupFailed = errors.New("ip geolocation failed")

// IPResolver reads an approximate coordinate from an IP geolocation service.
// It is a single-shot read: no retry, no tracking.
type IPResolver struct {
	client *resty.Client
	url    string
}

type ipLookupResponse struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
	City    string   `json:"city"`
}

// NewIPResolver creates an IPResolver. Empty url uses DefaultIPLookupURL; zero timeout means 5s.
func NewIPResolver(url string, timeout time.Duration, logger *zap.Logger) *IPResolver {
	if url == "" {
		url = DefaultIPLookupURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	client.OnAfterResponse(func(c *resty.Client, resp *resty.Response) error {
		logger.Debug("ip geolocation response",
			zap.Int("status_code", resp.StatusCode()),
			zap.Duration("duration", resp.Time()),
			zap.Int("bytes", len(resp.Body())))
		return nil
	})
	return &IPResolver{client: client, url: url}
}

// Resolve implements Resolver.
func (r *IPResolver) Resolve(ctx context.Context) (models.Coordinate, error) {
	coord, err := r.lookup(ctx)
	recordLookup("ip", err)
	return coord, err
}

func (r *IPResolver) lookup(ctx context.Context) (models.Coordinate, error) {
	resp, err := r.client.R().SetContext(ctx).Get(r.url)
	if err != nil {
		return models.Coordinate{}, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	if resp.IsError() {
		return models.Coordinate{}, fmt.Errorf("%w: HTTP %d", ErrLookupFailed, resp.StatusCode())
	}

	var body ipLookupResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return models.Coordinate{}, fmt.Errorf("%w: parse response: %v", ErrLookupFailed, err)
	}
	if body.Status != "success" {
		return models.Coordinate{}, fmt.Errorf("%w: %s", ErrLookupFailed, body.Message)
	}
	if body.Lat == nil || body.Lon == nil {
		return models.Coordinate{}, fmt.Errorf("%w: response has no coordinates", ErrLookupFailed)
	}

	coord := models.Coordinate{Latitude: *body.Lat, Longitude: *body.Lon}
	if err := validation.ValidateCoordinate(coord); err != nil {
		return models.Coordinate{}, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	return coord, nil
}
