// Package location yields the single coordinate a screen session is built for.
package location

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-screen-service/internal/models"
	"github.com/kjstillabower/weather-screen-service/internal/observability"
	"github.com/kjstillabower/weather-screen-service/internal/validation"
)

// ErrPermissionDenied is returned when the location may not be read.
// Callers must not fetch weather after it.
var ErrPermissionDenied = errors.New("location permission denied")

// Resolver yields a coordinate or ErrPermissionDenied.
type Resolver interface {
	Resolve(ctx context.Context) (models.Coordinate, error)
}

// Static always resolves to a fixed, pre-granted coordinate.
type Static struct {
	Coordinate models.Coordinate
}

// Resolve implements Resolver.
func (s Static) Resolve(ctx context.Context) (models.Coordinate, error) {
	if err := validation.ValidateCoordinate(s.Coordinate); err != nil {
		recordLookup("static", err)
		return models.Coordinate{}, fmt.Errorf("static location: %w", err)
	}
	recordLookup("static", nil)
	return s.Coordinate, nil
}

// Denied models a refused permission prompt.
type Denied struct{}

// Resolve implements Resolver.
func (Denied) Resolve(ctx context.Context) (models.Coordinate, error) {
	recordLookup("none", ErrPermissionDenied)
	return models.Coordinate{}, ErrPermissionDenied
}

type onceResolver struct {
	next  Resolver
	mu    sync.Mutex
	done  bool
	coord models.Coordinate
	err   error
}

// Once wraps r so a final answer is kept: a coordinate or a denial. Any other
// error is returned as-is and the next call asks r again.
func Once(r Resolver) Resolver {
	return &onceResolver{next: r}
}

func (o *onceResolver) Resolve(ctx context.Context) (models.Coordinate, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.done {
		return o.coord, o.err
	}
	coord, err := o.next.Resolve(ctx)
	if err != nil && !errors.Is(err, ErrPermissionDenied) {
		return models.Coordinate{}, err
	}
	o.coord, o.err, o.done = coord, err, true
	return coord, err
}

// AtStartup resolves r once under its own deadline and returns a resolver that
// replays the answer. If the lookup fails transiently the returned resolver
// retries on later calls instead of remembering the failure.
func AtStartup(r Resolver, timeout time.Duration, logger *zap.Logger) Resolver {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	coord, err := r.Resolve(ctx)
	switch {
	case err == nil:
		logger.Info("default location resolved",
			zap.Float64("lat", coord.Latitude),
			zap.Float64("lon", coord.Longitude))
		return &onceResolver{next: r, done: true, coord: coord}
	case errors.Is(err, ErrPermissionDenied):
		logger.Info("default location denied; screens without coordinates stay empty")
		return Denied{}
	default:
		logger.Warn("default location unavailable at startup; will retry per request", zap.Error(err))
		return Once(r)
	}
}

// Config selects and configures the default resolver.
type Config struct {
	Mode        string // "static", "ip" or "none"
	Latitude    float64
	Longitude   float64
	IPLookupURL string
	Timeout     time.Duration
}

// FromConfig builds the resolver named by cfg.Mode.
func FromConfig(cfg Config, logger *zap.Logger) (Resolver, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case "static":
		c := models.Coordinate{Latitude: cfg.Latitude, Longitude: cfg.Longitude}
		if err := validation.ValidateCoordinate(c); err != nil {
			return nil, fmt.Errorf("location.static: %w", err)
		}
		return Static{Coordinate: c}, nil
	case "ip":
		return NewIPResolver(cfg.IPLookupURL, cfg.Timeout, logger), nil
	case "", "none":
		return Denied{}, nil
	default:
		return nil, fmt.Errorf("location.mode must be static, ip or none, got %q", cfg.Mode)
	}
}

func recordLookup(source string, err error) {
	status := "success"
	switch {
	case errors.Is(err, ErrPermissionDenied):
		status = "denied"
	case err != nil:
		status = "error"
	}
	observability.LocationLookupsTotal.WithLabelValues(source, status).Inc()
}
