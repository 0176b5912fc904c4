package http

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/climate-api/internal/circuitbreaker"
	"github.com/kjstillabower/climate-api/internal/health"
	"github.com/kjstillabower/climate-api/internal/models"
	"github.com/kjstillabower/climate-api/internal/observability"
	"github.com/kjstillabower/climate-api/internal/service"
	"github.com/kjstillabower/climate-api/internal/traffic"
	"github.com/kjstillabower/climate-api/internal/validation"
)

// ClimateQuerier answers the climate routes. Implemented by *service.ClimateService.
type ClimateQuerier interface {
	Precipitation(ctx context.Context) (map[string]float64, error)
	Stations(ctx context.Context) ([]string, error)
	TemperatureObservations(ctx context.Context) ([]float64, error)
	TemperatureRange(ctx context.Context, start, end string) (models.TemperatureSummary, error)
}

// HealthEvaluator computes the /health report. Implemented by *health.Checker.
type HealthEvaluator interface {
	Evaluate(ctx context.Context) health.Report
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	climate ClimateQuerier
	health  HealthEvaluator
	traffic *traffic.Tracker
	logger  *zap.Logger
	version string
}

// NewHandler returns a new Handler. checker and tracker may be nil.
func NewHandler(climate ClimateQuerier, checker HealthEvaluator, tracker *traffic.Tracker, logger *zap.Logger, version string) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if version == "" {
		version = "dev"
	}
	return &Handler{
		climate: climate,
		health:  checker,
		traffic: tracker,
		logger:  logger,
		version: version,
	}
}

type routeLink struct {
	Path string
	Href string
	Note string
}

var indexRoutes = []routeLink{
	{Path: "/api/v1.0/precipitation", Href: "/api/v1.0/precipitation", Note: "Precipitation for the last 12 months of data"},
	{Path: "/api/v1.0/stations", Href: "/api/v1.0/stations", Note: "Weather station identifiers"},
	{Path: "/api/v1.0/tobs", Href: "/api/v1.0/tobs", Note: "Last 12 months of temperature observations at the most active station"},
	{Path: "/api/v1.0/<start>", Href: "/api/v1.0/2017-01-01", Note: "TMIN, TAVG and TMAX for all dates on or after start (YYYY-MM-DD)"},
	{Path: "/api/v1.0/<start>/<end>", Href: "/api/v1.0/2017-01-01/2017-01-07", Note: "TMIN, TAVG and TMAX for dates between start and end inclusive"},
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>Hawaii Climate API</title></head>
<body>
<h1>Hawaii Climate API</h1>
<p>Available routes:</p>
<ul>
{{- range . }}
<li><a href="{{ .Href }}">{{ .Path }}</a> {{ .Note }}</li>
{{- end }}
</ul>
</body>
</html>
`))

// Index handles GET /. Lists the API routes.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := indexTemplate.Execute(w, indexRoutes); err != nil {
		observability.LoggerFromContext(r.Context()).Error("render index", zap.Error(err))
	}
}

// GetPrecipitation handles GET /api/v1.0/precipitation.
func (h *Handler) GetPrecipitation(w http.ResponseWriter, r *http.Request) {
	result, err := h.climate.Precipitation(r.Context())
	h.recordOutcome(err)
	if err != nil {
		h.writeQueryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetStations handles GET /api/v1.0/stations.
func (h *Handler) GetStations(w http.ResponseWriter, r *http.Request) {
	result, err := h.climate.Stations(r.Context())
	h.recordOutcome(err)
	if err != nil {
		h.writeQueryError(w, r, err)
		return
	}
	if result == nil {
		result = []string{}
	}
	writeJSON(w, http.StatusOK, result)
}

// GetTemperatureObservations handles GET /api/v1.0/tobs.
func (h *Handler) GetTemperatureObservations(w http.ResponseWriter, r *http.Request) {
	result, err := h.climate.TemperatureObservations(r.Context())
	h.recordOutcome(err)
	if err != nil {
		h.writeQueryError(w, r, err)
		return
	}
	if result == nil {
		result = []float64{}
	}
	writeJSON(w, http.StatusOK, result)
}

// GetTemperatureRange handles GET /api/v1.0/{start} and GET /api/v1.0/{start}/{end}.
func (h *Handler) GetTemperatureRange(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	result, err := h.climate.TemperatureRange(r.Context(), vars["start"], vars["end"])
	h.recordOutcome(err)
	if err != nil {
		h.writeQueryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	report := health.Report{
		Status:     health.StatusHealthy,
		StatusCode: http.StatusOK,
		Checks:     map[string]string{"database": "healthy"},
	}
	if h.health != nil {
		report = h.health.Evaluate(r.Context())
	}
	resp := map[string]interface{}{
		"status":    report.Status,
		"service":   observability.ServiceName,
		"version":   h.version,
		"checks":    report.Checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	writeJSON(w, report.StatusCode, resp)
}

// recordOutcome feeds the traffic tracker. Client errors count as answered requests.
func (h *Handler) recordOutcome(err error) {
	if h.traffic == nil {
		return
	}
	var dateErr *validation.DateError
	switch {
	case err == nil, errors.Is(err, service.ErrNotFound), errors.As(err, &dateErr):
		h.traffic.Record(traffic.Success)
	default:
		h.traffic.Record(traffic.Failure)
	}
}

// writeQueryError maps a service error to a status code and error body.
func (h *Handler) writeQueryError(w http.ResponseWriter, r *http.Request, err error) {
	logger := observability.LoggerFromContext(r.Context())

	var dateErr *validation.DateError
	switch {
	case errors.As(err, &dateErr):
		observability.InvalidDateRequestsTotal.WithLabelValues(dateErr.Field).Inc()
		logger.Debug("invalid date", zap.String("field", dateErr.Field), zap.String("value", dateErr.Value))
		writeError(w, r, http.StatusBadRequest, "INVALID_DATE_FORMAT", dateErr.Error())
	case errors.Is(err, service.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "No climate data found")
	case errors.Is(err, circuitbreaker.ErrOpen), errors.Is(err, context.DeadlineExceeded):
		logger.Warn("data source unavailable", zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "DATA_SOURCE_UNAVAILABLE", "Climate data source unavailable")
	default:
		logger.Error("climate query failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error": message, "code": code, "requestId": id}.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":     message,
		"code":      code,
		"requestId": observability.CorrelationIDFromContext(r.Context()),
	})
}
