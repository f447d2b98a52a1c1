package models

import (
	"database/sql"
	"time"
)

// Reserved model names for daily rows that do not belong to a forecast model.
const (
	ModelObs          = "obs"
	ModelVerification = "verification"
	ModelClimo        = "climo"
	ModelPersistence  = "persistence"
)

type Station struct {
	ID           string
	Name         string
	Timezone     string
	Latitude     float64
	Longitude    float64
	HistoryStart time.Time
	ForecastDays int
}

// ModelConfig describes one logical data source. Driver names the registered
// driver implementation; Params carries driver-specific settings the engine
// does not interpret.
type ModelConfig struct {
	Name       string
	Driver     string
	Historical bool
	Params     map[string]string
}

type DateRange struct {
	Start time.Time
	End   time.Time
}

func (r DateRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// TimeSeriesRecord is one hourly row keyed by (station, model, valid time).
// Null fields are preserved on upsert; only non-null fields overwrite.
type TimeSeriesRecord struct {
	StationID     string
	Model         string
	ValidTime     time.Time
	Temperature   sql.NullFloat64
	Dewpoint      sql.NullFloat64
	Cloud         sql.NullFloat64
	WindSpeed     sql.NullFloat64
	WindDirection sql.NullFloat64
	RainHour      sql.NullFloat64
	Pressure      sql.NullFloat64
	Condition     sql.NullString
}

// HasValues reports whether at least one variable is set.
func (r TimeSeriesRecord) HasValues() bool {
	return r.Temperature.Valid || r.Dewpoint.Valid || r.Cloud.Valid ||
		r.WindSpeed.Valid || r.WindDirection.Valid || r.RainHour.Valid ||
		r.Pressure.Valid || r.Condition.Valid
}

// Validate rejects records that cannot be keyed or carry no data. A failed
// record is skipped individually; it never aborts the batch it arrived in.
func (r TimeSeriesRecord) Validate() error {
	if r.ValidTime.IsZero() {
		return &DataIntegrityError{Reason: "timeseries record has no valid time"}
	}
	if !r.HasValues() {
		return &DataIntegrityError{Reason: "timeseries record has no variables"}
	}
	return nil
}

// DailyRecord is one day's aggregate keyed by (station, model, date). Model
// is a forecast model name or one of the reserved names above.
type DailyRecord struct {
	StationID string
	Model     string
	Date      time.Time
	High      sql.NullFloat64
	Low       sql.NullFloat64
	Wind      sql.NullFloat64
	Rain      sql.NullFloat64
}

func (d DailyRecord) HasValues() bool {
	return d.High.Valid || d.Low.Valid || d.Wind.Valid || d.Rain.Valid
}

func (d DailyRecord) Validate() error {
	if d.Date.IsZero() {
		return &DataIntegrityError{Reason: "daily record has no date"}
	}
	if !d.HasValues() {
		return &DataIntegrityError{Reason: "daily record has no values"}
	}
	return nil
}

func Float(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: true}
}

func String(v string) sql.NullString {
	return sql.NullString{String: v, Valid: true}
}
