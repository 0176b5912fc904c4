package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/climate-api/internal/observability"
	"github.com/kjstillabower/climate-api/internal/traffic"
)

// APIPrefix is the versioned path prefix of the climate routes.
const APIPrefix = "/api/v1.0"

// RouterConfig holds what NewRouter needs beyond the handler.
type RouterConfig struct {
	Logger         *zap.Logger
	Limiter        *rate.Limiter // nil disables rate limiting
	Traffic        *traffic.Tracker
	InFlight       *InFlightTracker
	RequestTimeout time.Duration
}

// NewRouter registers every route. Rate limiting and the request timeout apply to the API
// routes only. Fixed API paths are registered before the date patterns so they win.
func NewRouter(h *Handler, cfg RouterConfig) *mux.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware(cfg.InFlight))

	router.HandleFunc("/", h.Index).Methods(http.MethodGet)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	api := router.PathPrefix(APIPrefix).Subrouter()
	api.Use(RateLimitMiddleware(cfg.Limiter, cfg.Traffic))
	api.Use(TimeoutMiddleware(cfg.RequestTimeout))
	api.HandleFunc("/precipitation", h.GetPrecipitation).Methods(http.MethodGet)
	api.HandleFunc("/stations", h.GetStations).Methods(http.MethodGet)
	api.HandleFunc("/tobs", h.GetTemperatureObservations).Methods(http.MethodGet)
	api.HandleFunc("/{start}", h.GetTemperatureRange).Methods(http.MethodGet)
	api.HandleFunc("/{start}/{end}", h.GetTemperatureRange).Methods(http.MethodGet)

	return router
}
