package http

import (
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-screen-service/internal/observability"
)

// RouterConfig controls the middleware applied to /screen and whether the
// testing endpoints are exposed.
type RouterConfig struct {
	RequestTimeout time.Duration
	RateLimiter    *rate.Limiter
	TestingMode    bool
}

// NewRouter mounts every route of the service on a fresh router.
func NewRouter(h *Handler, logger *zap.Logger, cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler()).Methods("GET")

	screenRouter := router.PathPrefix("/screen").Subrouter()
	screenRouter.Use(RateLimitMiddleware(cfg.RateLimiter))
	if cfg.RequestTimeout > 0 {
		screenRouter.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	screenRouter.HandleFunc("", h.GetScreen).Methods("GET")

	if cfg.TestingMode {
		logger.Warn("Testing mode enabled; /test endpoint exposed")
		router.HandleFunc("/test", h.GetTestStatus).Methods("GET")
		router.HandleFunc("/test/{action}", h.PostTestAction).Methods("POST")
	}
	return router
}
