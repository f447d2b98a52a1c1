package models

import (
	"fmt"
	"time"
)

// ConfigError is fatal: it aborts the run before any retrieval I/O.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "config: " + e.Reason
}

// RetrievalError wraps a driver failure for one (station, model) unit. In
// lenient mode the unit is logged and skipped; in strict mode it stops the
// run.
type RetrievalError struct {
	Model     string
	StationID string
	Err       error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieve %s for %s: %v", e.Model, e.StationID, e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// DataIntegrityError marks a single malformed record; the record is skipped
// and the rest of the batch proceeds.
type DataIntegrityError struct {
	Reason string
}

func (e *DataIntegrityError) Error() string {
	return "bad record: " + e.Reason
}

// CalcError covers incomplete observations or missing climatology for a
// station-day. These degrade rather than fail the pipeline.
type CalcError struct {
	StationID string
	Date      time.Time
	Err       error
}

func (e *CalcError) Error() string {
	return fmt.Sprintf("calc %s %s: %v", e.StationID, e.Date.Format("2006-01-02"), e.Err)
}

func (e *CalcError) Unwrap() error {
	return e.Err
}
