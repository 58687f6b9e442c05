// Package screen runs one weather screen session: locate, fetch, organize.
package screen

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-screen-service/internal/forecast"
	"github.com/kjstillabower/weather-screen-service/internal/location"
	"github.com/kjstillabower/weather-screen-service/internal/models"
	"github.com/kjstillabower/weather-screen-service/internal/observability"
)

// Session outcomes, also used as the screenSessionsTotal label.
const (
	OutcomeLocationDenied = "location_denied"
	OutcomeLocationFailed = "location_failed"
	OutcomeComplete       = "complete"
	OutcomePartial        = "partial"
	OutcomeEmpty          = "empty"
)

// Fetcher is the part of the weather client a session needs.
type Fetcher interface {
	FetchCurrent(ctx context.Context, coord models.Coordinate) (models.CurrentConditions, error)
	FetchForecast(ctx context.Context, coord models.Coordinate) ([]models.ForecastSample, error)
}

// Session holds everything one screen shows. Each slot is written once by its
// own stage; a nil slot means "nothing to render".
type Session struct {
	Coordinate *models.Coordinate
	Current    *models.CurrentConditions
	Forecast   models.ForecastView
	// Date is today's date in the session locale, shown with current conditions.
	Date string

	LocationErr error
	CurrentErr  error
	ForecastErr error
}

// Outcome summarizes which slots were filled.
func (s *Session) Outcome() string {
	switch {
	case errors.Is(s.LocationErr, location.ErrPermissionDenied):
		return OutcomeLocationDenied
	case s.LocationErr != nil:
		return OutcomeLocationFailed
	case s.Current != nil && s.Forecast != nil:
		return OutcomeComplete
	case s.Current != nil || s.Forecast != nil:
		return OutcomePartial
	default:
		return OutcomeEmpty
	}
}

// Pipeline wires a Fetcher to the forecast organizer.
type Pipeline struct {
	fetcher Fetcher
	now     func() time.Time
}

// NewPipeline returns a Pipeline using the wall clock for the displayed date.
func NewPipeline(fetcher Fetcher) *Pipeline {
	return &Pipeline{fetcher: fetcher, now: time.Now}
}

// Run resolves the location once and, if granted, fetches current conditions
// and the forecast concurrently. Failures are logged and leave their slot
// empty; nothing is retried. A denied or failed location stops the session
// before any fetch.
func (p *Pipeline) Run(ctx context.Context, resolver location.Resolver, f forecast.Formatter) *Session {
	logger := observability.LoggerFromContext(ctx)
	s := &Session{}
	defer func() {
		observability.ScreenSessionsTotal.WithLabelValues(s.Outcome()).Inc()
	}()

	coord, err := resolver.Resolve(ctx)
	if err != nil {
		s.LocationErr = err
		if errors.Is(err, location.ErrPermissionDenied) {
			logger.Info("location permission denied; nothing to fetch")
		} else {
			logger.Warn("location unavailable", zap.Error(err))
		}
		return s
	}
	s.Coordinate = &coord
	s.Date = f.DateOf(p.now())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		current, err := p.fetcher.FetchCurrent(ctx, coord)
		if err != nil {
			s.CurrentErr = err
			logger.Warn("error fetching current weather", zap.Error(err))
			return
		}
		s.Current = &current
	}()
	go func() {
		defer wg.Done()
		samples, err := p.fetcher.FetchForecast(ctx, coord)
		if err != nil {
			s.ForecastErr = err
			logger.Warn("error fetching forecast", zap.Error(err))
			return
		}
		s.Forecast = forecast.Organize(samples, f)
		observability.ForecastDayGroups.Observe(float64(len(s.Forecast)))
	}()
	wg.Wait()

	logger.Debug("screen session done",
		zap.String("outcome", s.Outcome()),
		zap.Float64("lat", coord.Latitude),
		zap.Float64("lon", coord.Longitude),
		zap.Int("day_groups", len(s.Forecast)))
	return s
}
