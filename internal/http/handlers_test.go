package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/climate-api/internal/circuitbreaker"
	"github.com/kjstillabower/climate-api/internal/health"
	"github.com/kjstillabower/climate-api/internal/models"
	"github.com/kjstillabower/climate-api/internal/service"
	"github.com/kjstillabower/climate-api/internal/testhelpers"
	"github.com/kjstillabower/climate-api/internal/traffic"
)

// mockClimate returns canned results; err, when set, is returned by every method.
type mockClimate struct {
	err error
}

func (m *mockClimate) Precipitation(ctx context.Context) (map[string]float64, error) {
	return nil, m.err
}

func (m *mockClimate) Stations(ctx context.Context) ([]string, error) {
	return nil, m.err
}

func (m *mockClimate) TemperatureObservations(ctx context.Context) ([]float64, error) {
	return nil, m.err
}

func (m *mockClimate) TemperatureRange(ctx context.Context, start, end string) (models.TemperatureSummary, error) {
	return models.TemperatureSummary{}, m.err
}

// newFixtureRouter serves the full route table over a SQLite fixture.
func newFixtureRouter(t *testing.T, f testhelpers.Fixture) (http.Handler, *traffic.Tracker) {
	t.Helper()
	st := testhelpers.OpenStore(t, f)
	tracker := traffic.NewTracker()
	checker := health.NewChecker(health.Config{}, st, tracker, nil)
	h := NewHandler(service.NewClimateService(st, nil), checker, tracker, zap.NewNop(), "test")
	return NewRouter(h, RouterConfig{Traffic: tracker}), tracker
}

func get(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestHandler_Index(t *testing.T) {
	router, _ := newFixtureRouter(t, testhelpers.Hawaii())

	w := get(t, router, "/")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
	body := w.Body.String()
	for _, route := range []string{"/api/v1.0/precipitation", "/api/v1.0/stations", "/api/v1.0/tobs", "/api/v1.0/&lt;start&gt;/&lt;end&gt;"} {
		if !strings.Contains(body, route) {
			t.Errorf("index missing route %q", route)
		}
	}
}

func TestHandler_GetPrecipitation(t *testing.T) {
	router, _ := newFixtureRouter(t, testhelpers.Hawaii())

	w := get(t, router, "/api/v1.0/precipitation")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var got map[string]float64
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := map[string]float64{"2016-08-23": 1.79, "2017-03-15": 0.02, "2017-08-18": 0.06, "2017-08-23": 0}
	if len(got) != len(want) {
		t.Fatalf("precipitation = %v, want %v", got, want)
	}
	for date, prcp := range want {
		if v, ok := got[date]; !ok || v != prcp {
			t.Errorf("precipitation[%s] = %v (present %v), want %v", date, v, ok, prcp)
		}
	}
	if _, ok := got["2016-08-22"]; ok {
		t.Error("date before the trailing window returned")
	}
}

func TestHandler_GetStations(t *testing.T) {
	router, _ := newFixtureRouter(t, testhelpers.Hawaii())

	w := get(t, router, "/api/v1.0/stations")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var got []string
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []string{"USC00519397", "USC00513117", "USC00519281"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("stations = %v, want %v", got, want)
	}
}

func TestHandler_GetStations_EmptyIsArray(t *testing.T) {
	router, _ := newFixtureRouter(t, testhelpers.Fixture{})

	w := get(t, router, "/api/v1.0/stations")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestHandler_GetTemperatureObservations(t *testing.T) {
	router, _ := newFixtureRouter(t, testhelpers.Hawaii())

	w := get(t, router, "/api/v1.0/tobs")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var got []float64
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []float64{77, 62, 79, 79}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("tobs = %v, want %v", got, want)
	}
}

func TestHandler_EmptyDatabaseNotFound(t *testing.T) {
	router, _ := newFixtureRouter(t, testhelpers.Fixture{})

	for _, path := range []string{"/api/v1.0/precipitation", "/api/v1.0/tobs"} {
		t.Run(path, func(t *testing.T) {
			w := get(t, router, path)
			if w.Code != http.StatusNotFound {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
			}
			if body := decodeError(t, w); body["code"] != "NOT_FOUND" {
				t.Errorf("code = %q, want NOT_FOUND", body["code"])
			}
		})
	}
}

func TestHandler_GetTemperatureRange(t *testing.T) {
	router, _ := newFixtureRouter(t, testhelpers.Hawaii())

	tests := []struct {
		name             string
		path             string
		tmin, tavg, tmax float64
	}{
		{"open ended", "/api/v1.0/2017-01-01", 62, 74.4, 81},
		{"single day", "/api/v1.0/2016-08-23/2016-08-23", 76, 78, 81},
		{"whole dataset", "/api/v1.0/2016-01-01/2017-12-31", 62, 75.8, 81},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, router, tt.path)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}
			var got models.TemperatureSummary
			if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.TMIN == nil || got.TAVG == nil || got.TMAX == nil {
				t.Fatalf("summary has nil fields: %+v", got)
			}
			if *got.TMIN != tt.tmin || *got.TAVG != tt.tavg || *got.TMAX != tt.tmax {
				t.Errorf("summary = %v/%v/%v, want %v/%v/%v", *got.TMIN, *got.TAVG, *got.TMAX, tt.tmin, tt.tavg, tt.tmax)
			}
		})
	}
}

func TestHandler_GetTemperatureRange_NoMatchesIsNull(t *testing.T) {
	router, _ := newFixtureRouter(t, testhelpers.Hawaii())

	for _, path := range []string{"/api/v1.0/2030-01-01", "/api/v1.0/2017-08-23/2016-08-23"} {
		t.Run(path, func(t *testing.T) {
			w := get(t, router, path)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}
			var got map[string]*float64
			if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			for _, key := range []string{"TMIN", "TAVG", "TMAX"} {
				v, ok := got[key]
				if !ok || v != nil {
					t.Errorf("%s = %v (present %v), want null", key, v, ok)
				}
			}
		})
	}
}

func TestHandler_GetTemperatureRange_InvalidDate(t *testing.T) {
	router, _ := newFixtureRouter(t, testhelpers.Hawaii())

	tests := []struct {
		path    string
		message string
	}{
		{"/api/v1.0/2021-13-40", "Invalid start date format. Please use YYYY-MM-DD."},
		{"/api/v1.0/not-a-date/2017-01-01", "Invalid start date format. Please use YYYY-MM-DD."},
		{"/api/v1.0/2017-01-01/not-a-date", "Invalid end date format. Please use YYYY-MM-DD."},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := get(t, router, tt.path)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			body := decodeError(t, w)
			if body["error"] != tt.message {
				t.Errorf("error = %q, want %q", body["error"], tt.message)
			}
			if body["code"] != "INVALID_DATE_FORMAT" {
				t.Errorf("code = %q, want INVALID_DATE_FORMAT", body["code"])
			}
		})
	}
}

func TestHandler_RepeatedRequestsIdentical(t *testing.T) {
	router, _ := newFixtureRouter(t, testhelpers.Hawaii())

	for _, path := range []string{"/api/v1.0/precipitation", "/api/v1.0/stations", "/api/v1.0/tobs", "/api/v1.0/2017-01-01"} {
		first := get(t, router, path).Body.String()
		second := get(t, router, path).Body.String()
		if first != second {
			t.Errorf("%s: responses differ:\n%s\n%s", path, first, second)
		}
	}
}

func TestHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"breaker open", fmt.Errorf("precipitation: %w", circuitbreaker.ErrOpen), http.StatusServiceUnavailable, "DATA_SOURCE_UNAVAILABLE"},
		{"deadline", fmt.Errorf("precipitation: %w", context.DeadlineExceeded), http.StatusServiceUnavailable, "DATA_SOURCE_UNAVAILABLE"},
		{"not found", fmt.Errorf("precipitation: %w", service.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"unexpected", errors.New("disk I/O error"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(&mockClimate{err: tt.err}, nil, nil, nil, "")
			router := NewRouter(h, RouterConfig{})

			req := httptest.NewRequest(http.MethodGet, "/api/v1.0/precipitation", nil)
			req.Header.Set("X-Correlation-ID", "test-correlation-id")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			body := decodeError(t, w)
			if body["code"] != tt.code {
				t.Errorf("code = %q, want %q", body["code"], tt.code)
			}
			if body["requestId"] != "test-correlation-id" {
				t.Errorf("requestId = %q, want test-correlation-id", body["requestId"])
			}
		})
	}
}

func TestHandler_UnexpectedErrorLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := NewHandler(&mockClimate{err: errors.New("disk I/O error")}, nil, nil, nil, "")
	router := NewRouter(h, RouterConfig{Logger: zap.New(core)})

	get(t, router, "/api/v1.0/tobs")

	entries := logs.FilterMessage("climate query failed").All()
	if len(entries) != 1 {
		t.Fatalf("logged %d entries, want 1", len(entries))
	}
	if _, ok := entries[0].ContextMap()["correlation_id"]; !ok {
		t.Error("log entry missing correlation_id")
	}
}

func TestHandler_TrafficOutcomes(t *testing.T) {
	router, tracker := newFixtureRouter(t, testhelpers.Hawaii())

	get(t, router, "/api/v1.0/stations")
	get(t, router, "/api/v1.0/bad-date")

	counts := tracker.Counts(time.Minute)
	if counts.Success != 2 || counts.Failure != 0 {
		t.Errorf("counts = %+v, want 2 successes and no failures", counts)
	}

	tracker.Reset()
	h := NewHandler(&mockClimate{err: errors.New("boom")}, nil, tracker, nil, "")
	get(t, NewRouter(h, RouterConfig{}), "/api/v1.0/stations")
	if got := tracker.Counts(time.Minute).Failure; got != 1 {
		t.Errorf("Failure = %d, want 1", got)
	}
}

func TestHandler_GetHealth(t *testing.T) {
	router, _ := newFixtureRouter(t, testhelpers.Hawaii())

	w := get(t, router, "/health")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body struct {
		Status  string            `json:"status"`
		Service string            `json:"service"`
		Version string            `json:"version"`
		Checks  map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != health.StatusHealthy || body.Service != "climate-api" || body.Version != "test" {
		t.Errorf("health = %+v", body)
	}
	if body.Checks["database"] != "healthy" {
		t.Errorf("checks.database = %q, want healthy", body.Checks["database"])
	}
}

func TestHandler_GetHealth_DatabaseClosed(t *testing.T) {
	st := testhelpers.OpenStore(t, testhelpers.Hawaii())
	checker := health.NewChecker(health.Config{}, st, nil, nil)
	h := NewHandler(service.NewClimateService(st, nil), checker, nil, nil, "")
	router := NewRouter(h, RouterConfig{})
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	w := get(t, router, "/health")

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != health.StatusDegraded {
		t.Errorf("status = %v, want degraded", body["status"])
	}
}

func TestHandler_GetHealth_ShuttingDown(t *testing.T) {
	st := testhelpers.OpenStore(t, testhelpers.Hawaii())
	checker := health.NewChecker(health.Config{}, st, nil, nil)
	checker.SetShuttingDown(true)
	router := NewRouter(NewHandler(service.NewClimateService(st, nil), checker, nil, nil, ""), RouterConfig{})

	w := get(t, router, "/health")

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}
