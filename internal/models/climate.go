package models

// Measurement is one observation row of the measurement table.
type Measurement struct {
	Station string   `json:"station"`
	Date    string   `json:"date"`
	Prcp    *float64 `json:"prcp"` // nil when precipitation was not recorded
	Tobs    float64  `json:"tobs"`
}

// PrecipitationReading is a (date, prcp) pair with a recorded precipitation value.
type PrecipitationReading struct {
	Date string
	Prcp float64
}

// StationActivity is a station with its measurement count.
type StationActivity struct {
	Station string
	Count   int
}

// TemperatureStats holds raw aggregates over a date range. Valid is false when no rows matched.
type TemperatureStats struct {
	Min   float64
	Avg   float64
	Max   float64
	Valid bool
}

// TemperatureSummary is the response body for the temperature range routes.
// All fields are null when no measurement falls inside the range.
type TemperatureSummary struct {
	TMIN *float64 `json:"TMIN"`
	TAVG *float64 `json:"TAVG"`
	TMAX *float64 `json:"TMAX"`
}
