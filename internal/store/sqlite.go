package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/kjstillabower/climate-api/internal/models"
	"github.com/kjstillabower/climate-api/internal/observability"
)

//go:embed sql/latest-date.sql
var latestDateSQL string

//go:embed sql/precipitation-since.sql
var precipitationSQL string

//go:embed sql/station-ids.sql
var stationIDsSQL string

//go:embed sql/most-active-station.sql
var mostActiveStationSQL string

//go:embed sql/temperature-observations.sql
var temperatureObservationsSQL string

//go:embed sql/temperature-stats.sql
var temperatureStatsSQL string

//go:embed sql/schema-check.sql
var schemaCheckSQL string

// Options configures the SQLite connection pool.
type Options struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	BusyTimeout     time.Duration
}

// SQLiteStore reads the climate database through database/sql and mattn/go-sqlite3.
// The file is opened read-only; the service never writes.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens the database file read-only, verifies connectivity and that both
// the measurement and station tables exist.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (*SQLiteStore, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("store: database path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite3", buildDSN(opts))
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns >= 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping %s: %w", opts.Path, err)
	}
	if err := s.checkSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// buildDSN turns a plain path or file: URI into a read-only sqlite URI.
func buildDSN(opts Options) string {
	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	params := []string{
		"mode=ro",
		fmt.Sprintf("_busy_timeout=%d", busy.Milliseconds()),
	}
	path := opts.Path
	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + strings.Join(params, "&")
	}
	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&"))
}

func (s *SQLiteStore) checkSchema(ctx context.Context) error {
	var n int
	if err := s.db.QueryRowContext(ctx, schemaCheckSQL).Scan(&n); err != nil {
		return fmt.Errorf("store: schema check: %w", err)
	}
	if n != 2 {
		return errors.New("store: database must contain measurement and station tables")
	}
	return nil
}

// Ping implements Store.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Session implements Store with a read-only transaction, giving every query of
// one request the same snapshot.
func (s *SQLiteStore) Session(ctx context.Context) (Session, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		observability.DBQueryErrorsTotal.WithLabelValues("begin", string(CategorizeError(err))).Inc()
		return nil, fmt.Errorf("store: begin session: %w", err)
	}
	return &sqliteSession{tx: tx, logger: s.logger}, nil
}

type sqliteSession struct {
	tx     *sql.Tx
	logger *zap.Logger
}

// observe records latency and outcome for one statement.
func (s *sqliteSession) observe(query string, start time.Time, err error) {
	observability.DBQueryDuration.WithLabelValues(query).Observe(time.Since(start).Seconds())
	if err != nil && !errors.Is(err, ErrNoData) {
		observability.DBQueriesTotal.WithLabelValues(query, "error").Inc()
		observability.DBQueryErrorsTotal.WithLabelValues(query, string(CategorizeError(err))).Inc()
		return
	}
	observability.DBQueriesTotal.WithLabelValues(query, "success").Inc()
}

func (s *sqliteSession) closeRows(query string, rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		s.logger.Error("close rows", zap.String("query", query), zap.Error(err))
	}
}

func (s *sqliteSession) LatestDate(ctx context.Context) (date string, err error) {
	defer func(start time.Time) { s.observe("latest_date", start, err) }(time.Now())

	var latest sql.NullString
	if err := s.tx.QueryRowContext(ctx, latestDateSQL).Scan(&latest); err != nil {
		return "", fmt.Errorf("latest date: %w", err)
	}
	if !latest.Valid || latest.String == "" {
		return "", ErrNoData
	}
	return latest.String, nil
}

func (s *sqliteSession) Precipitation(ctx context.Context, since string) (out []models.PrecipitationReading, err error) {
	defer func(start time.Time) { s.observe("precipitation", start, err) }(time.Now())

	rows, err := s.tx.QueryContext(ctx, precipitationSQL, since)
	if err != nil {
		return nil, fmt.Errorf("precipitation since %s: %w", since, err)
	}
	defer s.closeRows("precipitation", rows)
	for rows.Next() {
		var r models.PrecipitationReading
		if err := rows.Scan(&r.Date, &r.Prcp); err != nil {
			return nil, fmt.Errorf("scan precipitation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteSession) StationIDs(ctx context.Context) (out []string, err error) {
	defer func(start time.Time) { s.observe("station_ids", start, err) }(time.Now())

	rows, err := s.tx.QueryContext(ctx, stationIDsSQL)
	if err != nil {
		return nil, fmt.Errorf("station ids: %w", err)
	}
	defer s.closeRows("station_ids", rows)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan station id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *sqliteSession) MostActiveStation(ctx context.Context) (a models.StationActivity, err error) {
	defer func(start time.Time) { s.observe("most_active_station", start, err) }(time.Now())

	err = s.tx.QueryRowContext(ctx, mostActiveStationSQL).Scan(&a.Station, &a.Count)
	if errors.Is(err, sql.ErrNoRows) {
		return models.StationActivity{}, ErrNoData
	}
	if err != nil {
		return models.StationActivity{}, fmt.Errorf("most active station: %w", err)
	}
	return a, nil
}

func (s *sqliteSession) TemperatureObservations(ctx context.Context, station, since string) (out []float64, err error) {
	defer func(start time.Time) { s.observe("temperature_observations", start, err) }(time.Now())

	rows, err := s.tx.QueryContext(ctx, temperatureObservationsSQL, station, since)
	if err != nil {
		return nil, fmt.Errorf("temperature observations for %s: %w", station, err)
	}
	defer s.closeRows("temperature_observations", rows)
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan tobs: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *sqliteSession) TemperatureStats(ctx context.Context, start, end string) (st models.TemperatureStats, err error) {
	defer func(t time.Time) { s.observe("temperature_stats", t, err) }(time.Now())

	upper := sql.NullString{String: end, Valid: end != ""}
	var lo, avg, hi sql.NullFloat64
	if err := s.tx.QueryRowContext(ctx, temperatureStatsSQL, start, upper, upper).Scan(&lo, &avg, &hi); err != nil {
		return models.TemperatureStats{}, fmt.Errorf("temperature stats %s..%s: %w", start, end, err)
	}
	if !lo.Valid || !avg.Valid || !hi.Valid {
		return models.TemperatureStats{}, nil
	}
	return models.TemperatureStats{Min: lo.Float64, Avg: avg.Float64, Max: hi.Float64, Valid: true}, nil
}

// Close ends the read transaction.
func (s *sqliteSession) Close() error {
	if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("store: end session: %w", err)
	}
	return nil
}
