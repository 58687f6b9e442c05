package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-screen-service/internal/circuitbreaker"
	"github.com/kjstillabower/weather-screen-service/internal/client"
	"github.com/kjstillabower/weather-screen-service/internal/config"
	httphandler "github.com/kjstillabower/weather-screen-service/internal/http"
	"github.com/kjstillabower/weather-screen-service/internal/lifecycle"
	"github.com/kjstillabower/weather-screen-service/internal/location"
	"github.com/kjstillabower/weather-screen-service/internal/observability"
	"github.com/kjstillabower/weather-screen-service/internal/screen"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	router, err := newRouter(cfg, logger)
	if err != nil {
		logger.Fatal("setup", zap.Error(err))
	}

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if err := observability.FlushTelemetry(flushCtx, logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// newRouter builds the weather client, default resolver and screen pipeline
// from cfg and mounts them on the service router.
func newRouter(cfg *config.Config, logger *zap.Logger) (*mux.Router, error) {
	weatherClient, err := client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout)
	if err != nil {
		return nil, fmt.Errorf("weather client: %w", err)
	}
	if cfg.WeatherAPIRateLimitRPS > 0 {
		weatherClient.SetRateLimiter(rate.NewLimiter(rate.Limit(cfg.WeatherAPIRateLimitRPS), cfg.WeatherAPIRateLimitBurst))
		logger.Info("weather api rate limit enabled",
			zap.Float64("rps", cfg.WeatherAPIRateLimitRPS),
			zap.Int("burst", cfg.WeatherAPIRateLimitBurst))
	}
	if cfg.CircuitBreakerEnabled {
		cb := circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			IsFailure:        client.IsBreakerFailure,
			OnStateChange: func(from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition("weather_api", from.String(), to.String(), int(to))
				logger.Warn("circuit breaker transition",
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
		weatherClient.SetCircuitBreaker(cb)
		observability.CircuitBreakerState.WithLabelValues("weather_api").Set(0)
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	startupCtx, startupCancel := context.WithTimeout(context.Background(), cfg.WeatherAPITimeout)
	if err := weatherClient.ValidateAPIKey(startupCtx); err != nil {
		logger.Warn("weather api key check failed", zap.Error(err))
	}
	startupCancel()

	resolver, err := location.FromConfig(cfg.Location, logger)
	if err != nil {
		return nil, fmt.Errorf("location: %w", err)
	}
	logger.Info("default location", zap.String("mode", cfg.Location.Mode))
	resolver = location.AtStartup(resolver, cfg.Location.Timeout, logger)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(
		screen.NewPipeline(weatherClient),
		resolver,
		httphandler.Display{
			Locale:          cfg.DisplayLocale,
			Timezone:        cfg.DisplayTimezone,
			IconURLTemplate: cfg.IconURLTemplate,
		},
		lifecycle.Policy{
			OverloadWindow:    cfg.OverloadWindow,
			OverloadDeniedPct: cfg.OverloadDeniedPct,
			DegradedWindow:    cfg.DegradedWindow,
			DegradedErrorPct:  cfg.DegradedErrorPct,
		},
		logger,
		limiter,
	)
	return httphandler.NewRouter(handler, logger, httphandler.RouterConfig{
		RequestTimeout: cfg.RequestTimeout,
		RateLimiter:    limiter,
		TestingMode:    cfg.TestingMode,
	}), nil
}
