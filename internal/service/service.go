package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/climate-api/internal/circuitbreaker"
	"github.com/kjstillabower/climate-api/internal/models"
	"github.com/kjstillabower/climate-api/internal/observability"
	"github.com/kjstillabower/climate-api/internal/store"
	"github.com/kjstillabower/climate-api/internal/validation"
)

// ErrNotFound is returned when the database holds no measurements to answer a query.
var ErrNotFound = errors.New("no climate data found")

// Operation names used in logs and the climateQueriesTotal metric.
const (
	OpPrecipitation           = "precipitation"
	OpStations                = "stations"
	OpTemperatureObservations = "tobs"
	OpTemperatureRange        = "temperature_range"
)

// ClimateService answers the fixed climate queries. Every call runs inside one
// read session that is released before returning.
type ClimateService struct {
	store   store.Store
	breaker *circuitbreaker.CircuitBreaker
}

// NewClimateService creates a ClimateService. breaker may be nil to disable circuit breaking.
func NewClimateService(s store.Store, breaker *circuitbreaker.CircuitBreaker) *ClimateService {
	return &ClimateService{store: s, breaker: breaker}
}

// IsBreakerFailure reports whether err should count against the data-source circuit.
// Missing data and caller cancellation say nothing about database health.
func IsBreakerFailure(err error) bool {
	return err != nil &&
		!errors.Is(err, store.ErrNoData) &&
		!errors.Is(err, context.Canceled)
}

// withSession acquires a session, runs fn and always closes the session.
func (s *ClimateService) withSession(ctx context.Context, op string, fn func(ctx context.Context, sess store.Session) error) error {
	start := time.Now()
	logger := observability.LoggerFromContext(ctx)

	err := s.breaker.Call(ctx, func(ctx context.Context) (err error) {
		sess, err := s.store.Session(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := sess.Close(); closeErr != nil {
				logger.Warn("session close", zap.String("operation", op), zap.Error(closeErr))
			}
		}()
		return fn(ctx, sess)
	})

	outcome := outcomeOf(err)
	observability.RecordClimateQuery(op, outcome)
	logger.Debug("climate query",
		zap.String("operation", op),
		zap.String("outcome", outcome),
		zap.Duration("duration", time.Since(start)))

	if errors.Is(err, store.ErrNoData) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, store.ErrNoData):
		return "not_found"
	case errors.Is(err, validation.ErrInvalidDateFormat):
		return "invalid_input"
	case errors.Is(err, circuitbreaker.ErrOpen):
		return "unavailable"
	default:
		return "error"
	}
}

// trailingYearStart returns the first date of the trailing-365-day window ending at the latest measurement.
func trailingYearStart(ctx context.Context, sess store.Session) (string, error) {
	latest, err := sess.LatestDate(ctx)
	if err != nil {
		return "", err
	}
	return validation.YearBefore(latest)
}

// Precipitation returns date -> precipitation for the trailing 365 days ending at the latest
// measurement date. Null readings are skipped; when several stations report the same date
// the reading stored last wins. Returns ErrNotFound when there are no measurements.
func (s *ClimateService) Precipitation(ctx context.Context) (map[string]float64, error) {
	out := make(map[string]float64)
	err := s.withSession(ctx, OpPrecipitation, func(ctx context.Context, sess store.Session) error {
		since, err := trailingYearStart(ctx, sess)
		if err != nil {
			return err
		}
		readings, err := sess.Precipitation(ctx, since)
		if err != nil {
			return err
		}
		for _, r := range readings {
			out[r.Date] = r.Prcp
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Stations returns the distinct station identifiers. Never nil on success.
func (s *ClimateService) Stations(ctx context.Context) ([]string, error) {
	ids := []string{}
	err := s.withSession(ctx, OpStations, func(ctx context.Context, sess store.Session) error {
		found, err := sess.StationIDs(ctx)
		if err != nil {
			return err
		}
		ids = append(ids, found...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// TemperatureObservations returns the trailing-year tobs readings of the most active station.
// Returns ErrNotFound when there are no measurements.
func (s *ClimateService) TemperatureObservations(ctx context.Context) ([]float64, error) {
	tobs := []float64{}
	err := s.withSession(ctx, OpTemperatureObservations, func(ctx context.Context, sess store.Session) error {
		active, err := sess.MostActiveStation(ctx)
		if err != nil {
			return err
		}
		since, err := trailingYearStart(ctx, sess)
		if err != nil {
			return err
		}
		found, err := sess.TemperatureObservations(ctx, active.Station, since)
		if err != nil {
			return err
		}
		observability.LoggerFromContext(ctx).Debug("most active station",
			zap.String("station", active.Station),
			zap.Int("measurements", active.Count),
			zap.String("since", since))
		tobs = append(tobs, found...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tobs, nil
}

// TemperatureRange returns min, average (one decimal) and max tobs for dates >= start and,
// when end is non-empty, <= end. Both dates must be YYYY-MM-DD; otherwise the error wraps
// validation.ErrInvalidDateFormat. An empty range yields a summary with all fields nil.
func (s *ClimateService) TemperatureRange(ctx context.Context, start, end string) (models.TemperatureSummary, error) {
	from, err := validation.NormalizeDate("start", start)
	if err != nil {
		observability.RecordClimateQuery(OpTemperatureRange, outcomeOf(err))
		return models.TemperatureSummary{}, err
	}
	var to string
	if end != "" {
		to, err = validation.NormalizeDate("end", end)
		if err != nil {
			observability.RecordClimateQuery(OpTemperatureRange, outcomeOf(err))
			return models.TemperatureSummary{}, err
		}
	}

	var stats models.TemperatureStats
	err = s.withSession(ctx, OpTemperatureRange, func(ctx context.Context, sess store.Session) error {
		var err error
		stats, err = sess.TemperatureStats(ctx, from, to)
		return err
	})
	if err != nil {
		return models.TemperatureSummary{}, err
	}
	return summarize(stats), nil
}

func summarize(st models.TemperatureStats) models.TemperatureSummary {
	if !st.Valid {
		return models.TemperatureSummary{}
	}
	lo, hi := st.Min, st.Max
	// Rounding must not push the average outside [min, max].
	avg := math.Min(math.Max(roundTenth(st.Avg), lo), hi)
	return models.TemperatureSummary{TMIN: &lo, TAVG: &avg, TMAX: &hi}
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
