// Package testhelpers builds throwaway climate databases for tests.
package testhelpers

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/kjstillabower/climate-api/internal/models"
	"github.com/kjstillabower/climate-api/internal/store"
)

// Schema mirrors the columns of the published hawaii.sqlite tables.
const Schema = `
CREATE TABLE measurement (
  id      INTEGER PRIMARY KEY,
  station TEXT,
  date    TEXT,
  prcp    FLOAT,
  tobs    FLOAT
);
CREATE TABLE station (
  id        INTEGER PRIMARY KEY,
  station   TEXT,
  name      TEXT,
  latitude  FLOAT,
  longitude FLOAT,
  elevation FLOAT
);
`

// Fixture describes database contents. Rows are inserted in slice order, which
// defines storage (rowid) order.
type Fixture struct {
	Stations     []string
	Measurements []models.Measurement
}

// Prcp returns a pointer to v for Measurement.Prcp literals.
func Prcp(v float64) *float64 {
	return &v
}

// WriteFixture creates a SQLite file in t.TempDir() holding f and returns its path.
func WriteFixture(t testing.TB, f Fixture) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "climate.sqlite")
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		t.Fatalf("open fixture db: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			t.Fatalf("close fixture db: %v", err)
		}
	}()
	if _, err := db.Exec(Schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	for _, s := range f.Stations {
		if _, err := tx.Exec(`INSERT INTO station (station, name) VALUES (?, ?)`, s, s+" station"); err != nil {
			t.Fatalf("insert station %s: %v", s, err)
		}
	}
	for _, m := range f.Measurements {
		var prcp sql.NullFloat64
		if m.Prcp != nil {
			prcp = sql.NullFloat64{Float64: *m.Prcp, Valid: true}
		}
		if _, err := tx.Exec(`INSERT INTO measurement (station, date, prcp, tobs) VALUES (?, ?, ?, ?)`,
			m.Station, m.Date, prcp, m.Tobs); err != nil {
			t.Fatalf("insert measurement %+v: %v", m, err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return path
}

// OpenStore writes f and opens it read-only. The store is closed on test cleanup.
func OpenStore(t testing.TB, f Fixture) *store.SQLiteStore {
	t.Helper()
	s, err := store.Open(context.Background(), store.Options{Path: WriteFixture(t, f), MaxOpenConns: 4, MaxIdleConns: 2}, zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Hawaii returns a small fixture shaped like the real dataset:
//
//   - latest date 2017-08-23, so the trailing window starts at 2016-08-23
//   - USC00519281 has the most measurements (4), USC00519397 has 3, USC00513117 has 2
//   - one null precipitation inside the window and one row just before it
func Hawaii() Fixture {
	return Fixture{
		Stations: []string{"USC00519397", "USC00513117", "USC00519281"},
		Measurements: []models.Measurement{
			{Station: "USC00519397", Date: "2016-08-22", Prcp: Prcp(0.40), Tobs: 76},
			{Station: "USC00519397", Date: "2016-08-23", Prcp: Prcp(0.00), Tobs: 81},
			{Station: "USC00513117", Date: "2016-08-23", Prcp: Prcp(0.15), Tobs: 76},
			{Station: "USC00519281", Date: "2016-08-23", Prcp: Prcp(1.79), Tobs: 77},
			{Station: "USC00519281", Date: "2017-01-01", Prcp: nil, Tobs: 62},
			{Station: "USC00513117", Date: "2017-03-15", Prcp: Prcp(0.02), Tobs: 71},
			{Station: "USC00519281", Date: "2017-08-18", Prcp: Prcp(0.06), Tobs: 79},
			{Station: "USC00519281", Date: "2017-08-18", Prcp: Prcp(0.06), Tobs: 79},
			{Station: "USC00519397", Date: "2017-08-23", Prcp: Prcp(0.00), Tobs: 81},
		},
	}
}
