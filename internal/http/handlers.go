package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-screen-service/internal/forecast"
	"github.com/kjstillabower/weather-screen-service/internal/lifecycle"
	"github.com/kjstillabower/weather-screen-service/internal/location"
	"github.com/kjstillabower/weather-screen-service/internal/observability"
	"github.com/kjstillabower/weather-screen-service/internal/render"
	"github.com/kjstillabower/weather-screen-service/internal/screen"
	"github.com/kjstillabower/weather-screen-service/internal/traffic"
	"github.com/kjstillabower/weather-screen-service/internal/validation"
)

// ScreenRunner runs one screen session.
type ScreenRunner interface {
	Run(ctx context.Context, resolver location.Resolver, f forecast.Formatter) *screen.Session
}

// Display holds the per-request display defaults, overridable by query params.
type Display struct {
	Locale          string
	Timezone        string
	IconURLTemplate string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	runner           ScreenRunner
	defaultResolver  location.Resolver
	display          Display
	health           lifecycle.Policy
	logger           *zap.Logger
	rateLimiter      *rate.Limiter
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. A nil defaultResolver behaves as a denied
// location permission.
func NewHandler(
	runner ScreenRunner,
	defaultResolver location.Resolver,
	display Display,
	health lifecycle.Policy,
	logger *zap.Logger,
	rateLimiter *rate.Limiter,
) *Handler {
	if defaultResolver == nil {
		defaultResolver = location.Denied{}
	}
	return &Handler{
		runner:          runner,
		defaultResolver: defaultResolver,
		display:         display,
		health:          health,
		logger:          logger,
		rateLimiter:     rateLimiter,
	}
}

// GetScreen handles GET /screen. lat/lon stand for a granted device location;
// without them the configured default resolver decides.
func (h *Handler) GetScreen(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	coord, present, err := validation.ParseCoordinate(q.Get("lat"), q.Get("lon"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATE", err.Error())
		return
	}

	localeTag := firstNonEmpty(q.Get("locale"), h.display.Locale)
	zone := firstNonEmpty(q.Get("tz"), h.display.Timezone)
	formatter, err := forecast.NewFormatter(localeTag, zone)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCALE", err.Error())
		return
	}

	format := strings.ToLower(strings.TrimSpace(q.Get("format")))
	if format != "" && format != "json" && format != "text" {
		writeError(w, r, http.StatusBadRequest, "INVALID_FORMAT", "format must be json or text")
		return
	}

	var resolver location.Resolver = h.defaultResolver
	if present {
		resolver = location.Static{Coordinate: coord}
	}

	session := h.runner.Run(r.Context(), resolver, formatter)
	recordOutcome(session)

	view := render.NewView(session, h.display.IconURLTemplate)
	if format == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if err := render.Text(w, view); err != nil {
			observability.LoggerFromContext(r.Context()).Debug("write text screen", zap.Error(err))
		}
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// recordOutcome feeds the health window. A denied location is the user's
// choice, not a failure.
func recordOutcome(s *screen.Session) {
	switch {
	case s.LocationErr != nil && !errors.Is(s.LocationErr, location.ErrPermissionDenied):
		traffic.Record(traffic.Failure)
	case s.CurrentErr != nil || s.ForecastErr != nil:
		traffic.Record(traffic.Failure)
	default:
		traffic.Record(traffic.Success)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.health.Evaluate()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.Status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.Status),
			zap.String("reason", result.Reason))
	}
	h.healthStatusPrev = result.Status
	h.healthStatusMu.Unlock()

	statusCode := http.StatusOK
	if result.Status != lifecycle.StatusHealthy {
		statusCode = http.StatusServiceUnavailable
	}
	checks := map[string]string{"weatherApi": "healthy"}
	if result.Status == lifecycle.StatusDegraded {
		checks["weatherApi"] = "unhealthy"
	}
	writeJSON(w, statusCode, map[string]interface{}{
		"status":    result.Status,
		"service":   "weather-screen-service",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the standard error envelope with the request's correlation id.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// GetTestStatus handles GET /test. Returns the current health window.
func (h *Handler) GetTestStatus(w http.ResponseWriter, r *http.Request) {
	window := h.testWindow()
	failures, served := traffic.FailureRate(window)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_requests_in_window":  traffic.Total(window),
		"denied_requests_in_window": traffic.Count(traffic.Denied, window),
		"errors_in_window":          failures,
		"served_in_window":          served,
		"window_length":             window.String(),
		"state":                     h.health.Evaluate().Status,
		"config": map[string]interface{}{
			"degraded_error_pct":  h.health.DegradedErrorPct,
			"overload_denied_pct": h.health.OverloadDeniedPct,
			"rate_limited":        h.rateLimiter != nil,
		},
	})
}

// PostTestAction handles POST /test/{action} for load, error, reset and shutdown.
func (h *Handler) PostTestAction(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]
	switch action {
	case "load":
		h.postTestLoad(w, r)
	case "error":
		h.postTestError(w, r)
	case "reset":
		traffic.Reset()
		lifecycle.SetShuttingDown(false)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok": true, "action": "reset", "message": "All simulated state cleared",
		})
	case "shutdown":
		lifecycle.SetShuttingDown(true)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok": true, "action": "shutdown", "message": "Shutting-down flag set",
		})
	default:
		writeError(w, r, http.StatusNotFound, "UNKNOWN_ACTION", "unknown test action: "+action)
	}
}

// postTestLoad records synthetic successful screens, passing each through the
// inbound limiter when one is configured.
func (h *Handler) postTestLoad(w http.ResponseWriter, r *http.Request) {
	count := decodeCount(r, 10)
	var accepted, denied int
	if h.rateLimiter == nil {
		traffic.RecordN(traffic.Success, count)
		accepted = count
	} else {
		for i := 0; i < count; i++ {
			if h.rateLimiter.Allow() {
				traffic.Record(traffic.Success)
				accepted++
			} else {
				traffic.Record(traffic.Denied)
				observability.RateLimitDeniedTotal.Inc()
				denied++
			}
		}
	}
	msg := "Recorded " + strconv.Itoa(accepted) + " accepted"
	if denied > 0 {
		msg += ", " + strconv.Itoa(denied) + " denied"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":       true,
		"action":   "load",
		"message":  msg,
		"state":    h.health.Evaluate().Status,
		"accepted": accepted,
		"denied":   denied,
	})
}

// postTestError records synthetic failed screens.
func (h *Handler) postTestError(w http.ResponseWriter, r *http.Request) {
	count := decodeCount(r, 1)
	traffic.RecordN(traffic.Failure, count)
	failures, served := traffic.FailureRate(h.testWindow())
	pct := 0
	if served > 0 {
		pct = failures * 100 / served
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":             true,
		"action":         "error",
		"message":        "Recorded " + strconv.Itoa(count) + " errors",
		"state":          h.health.Evaluate().Status,
		"error_rate_pct": pct,
	})
}

func (h *Handler) testWindow() time.Duration {
	if h.health.DegradedWindow > 0 {
		return h.health.DegradedWindow
	}
	return 60 * time.Second
}

// decodeCount reads {"count": n} from the body, falling back to def.
func decodeCount(r *http.Request, def int) int {
	var body struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Count <= 0 {
		return def
	}
	return body.Count
}
