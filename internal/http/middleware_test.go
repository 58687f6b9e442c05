package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-screen-service/internal/observability"
	"github.com/kjstillabower/weather-screen-service/internal/traffic"
)

func TestCorrelationIDMiddleware_GeneratesAndEchoes(t *testing.T) {
	var seen string
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.NewNop()))
	router.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {
		seen = observability.CorrelationID(r.Context())
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/x", nil))

	got := w.Header().Get("X-Correlation-ID")
	if got == "" {
		t.Fatal("X-Correlation-ID header missing")
	}
	if seen != got {
		t.Errorf("context id = %q, header id = %q", seen, got)
	}
}

func TestCorrelationIDMiddleware_PropagatesInboundIDToLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.New(core)))
	router.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {
		observability.LoggerFromContext(r.Context()).Info("handled")
	})

	req := httptest.NewRequest("GET", "/x", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Correlation-ID"); got != "abc-123" {
		t.Errorf("X-Correlation-ID = %q, want abc-123", got)
	}
	entries := logs.FilterMessage("handled").All()
	if len(entries) != 1 || entries[0].ContextMap()["correlation_id"] != "abc-123" {
		t.Errorf("log entries = %+v, want correlation_id=abc-123", entries)
	}
}

func TestErrorEnvelope_CarriesRequestID(t *testing.T) {
	router := NewRouter(newTestHandler(&fakeRunner{}, nil), zap.NewNop(), RouterConfig{})
	req := httptest.NewRequest("GET", "/screen?lat=999&lon=0", nil)
	req.Header.Set("X-Correlation-ID", "req-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var body struct {
		Error struct {
			Code      string `json:"code"`
			RequestID string `json:"requestId"`
		} `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Error.Code != "INVALID_COORDINATE" || body.Error.RequestID != "req-42" {
		t.Errorf("error = %+v", body.Error)
	}
}

func TestMetricsMiddleware_TracksInFlight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	h := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
	}))

	before := InFlightCount()
	done := make(chan struct{})
	go func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/screen", nil))
		close(done)
	}()

	<-entered
	if got := InFlightCount(); got != before+1 {
		t.Errorf("InFlightCount() during request = %d, want %d", got, before+1)
	}
	close(release)
	<-done
	if got := InFlightCount(); got != before {
		t.Errorf("InFlightCount() after request = %d, want %d", got, before)
	}
}

func TestGetRoute(t *testing.T) {
	router := mux.NewRouter()
	var route string
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route = getRoute(r)
		})
	})
	router.HandleFunc("/test/{action}", func(http.ResponseWriter, *http.Request) {})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/test/load", nil))
	if route != "/test/{action}" {
		t.Errorf("getRoute() = %q, want /test/{action}", route)
	}

	if got := getRoute(httptest.NewRequest("GET", "/screen", nil)); got != "/screen" {
		t.Errorf("getRoute(/screen) = %q", got)
	}
	if got := getRoute(httptest.NewRequest("GET", "/random/path", nil)); got != "other" {
		t.Errorf("getRoute(unknown) = %q, want other", got)
	}
}

func TestStatusCodeString(t *testing.T) {
	for code, want := range map[int]string{200: "2xx", 404: "4xx", 429: "4xx", 503: "5xx"} {
		if got := statusCodeString(code); got != want {
			t.Errorf("statusCodeString(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestTimeoutMiddleware_SetsDeadline(t *testing.T) {
	var deadline time.Time
	var ok bool
	h := TimeoutMiddleware(50 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
		<-r.Context().Done()
		if r.Context().Err() != context.DeadlineExceeded {
			t.Errorf("ctx.Err() = %v, want DeadlineExceeded", r.Context().Err())
		}
	}))

	start := time.Now()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/screen", nil))

	if !ok {
		t.Fatal("request context has no deadline")
	}
	if deadline.Sub(start) > time.Second {
		t.Errorf("deadline %v too far out", deadline.Sub(start))
	}
}

func TestRateLimitMiddleware_Returns429WhenExceeded(t *testing.T) {
	traffic.Reset()
	defer traffic.Reset()
	limiter := rate.NewLimiter(rate.Limit(1), 1)
	runner := &fakeRunner{session: completeSession()}
	router := NewRouter(newTestHandler(runner, nil), zap.NewNop(), RouterConfig{RateLimiter: limiter, RequestTimeout: time.Second})

	codes := make([]int, 3)
	for i := range codes {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/screen?lat=1&lon=1", nil))
		codes[i] = w.Code
		if w.Code == http.StatusTooManyRequests {
			var body struct {
				Error struct{ Code string } `json:"error"`
			}
			_ = json.NewDecoder(w.Body).Decode(&body)
			if body.Error.Code != "RATE_LIMITED" {
				t.Errorf("429 code = %q, want RATE_LIMITED", body.Error.Code)
			}
		}
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 429 429]", codes)
	}
	if runner.calls != 1 {
		t.Errorf("runner calls = %d, want 1", runner.calls)
	}
	if n := traffic.Count(traffic.Denied, time.Minute); n != 2 {
		t.Errorf("denied = %d, want 2", n)
	}
}

func TestRateLimitMiddleware_HealthNotLimited(t *testing.T) {
	limiter := rate.NewLimiter(rate.Limit(1), 1)
	router := NewRouter(newTestHandler(&fakeRunner{}, nil), zap.NewNop(), RouterConfig{RateLimiter: limiter})
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
		if w.Code == http.StatusTooManyRequests {
			t.Fatalf("health request %d was rate limited", i)
		}
	}
}

func TestRateLimitMiddleware_NilLimiterPassesThrough(t *testing.T) {
	called := 0
	h := RateLimitMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called++
	}))
	for i := 0; i < 5; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/screen", nil))
	}
	if called != 5 {
		t.Errorf("handler called %d times, want 5", called)
	}
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	router := NewRouter(newTestHandler(&fakeRunner{}, nil), zap.NewNop(), RouterConfig{})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Errorf("GET /metrics status = %d", w.Code)
	}
}
