// Package store is the read-only data-access layer over the climate database:
// a measurement table and a station table, queried through per-request sessions.
package store

import (
	"context"
	"errors"

	"github.com/kjstillabower/climate-api/internal/models"
)

// ErrNoData is returned when the measurement table has no rows to answer a query.
var ErrNoData = errors.New("no measurements")

// Store hands out read sessions. Implementations must be safe for concurrent use.
type Store interface {
	// Session acquires a read session. Callers must Close it on every path.
	Session(ctx context.Context) (Session, error)
	// Ping checks that the database is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// Session is a consistent read view of the database held for one request.
// Dates are YYYY-MM-DD strings and compare lexically.
type Session interface {
	// LatestDate returns the greatest measurement date, or ErrNoData when the table is empty.
	LatestDate(ctx context.Context) (string, error)
	// Precipitation returns non-null readings with date >= since, ordered by date then storage order.
	Precipitation(ctx context.Context, since string) ([]models.PrecipitationReading, error)
	// StationIDs returns distinct station identifiers in storage order.
	StationIDs(ctx context.Context) ([]string, error)
	// MostActiveStation returns the station with the most measurements; ties go to the
	// station stored first. ErrNoData when there are no measurements.
	MostActiveStation(ctx context.Context) (models.StationActivity, error)
	// TemperatureObservations returns tobs for station with date >= since, in storage order.
	TemperatureObservations(ctx context.Context, station, since string) ([]float64, error)
	// TemperatureStats aggregates tobs over date >= start and, when end is non-empty, date <= end.
	TemperatureStats(ctx context.Context, start, end string) (models.TemperatureStats, error)
	Close() error
}
