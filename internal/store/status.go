package store

import (
	"database/sql"
	"time"
)

// Calc states for a station-day. ObsReady is never persisted: it is derived
// from the archive at calc time. Skipped is terminal.
const (
	CalcPending  = "pending"
	CalcComputed = "computed"
	CalcSkipped  = "skipped"
)

type CalcStatus struct {
	StationID      string
	Date           time.Time
	State          string
	FirstPendingAt time.Time
	ComputedAt     sql.NullTime
}

func (s *Store) GetCalcStatus(stationID string, date time.Time) (*CalcStatus, error) {
	row := s.db.QueryRow(`
		SELECT station_id, date, state, first_pending_at, computed_at
		FROM calc_status WHERE station_id = ? AND date = ?
	`, stationID, date.UTC().Format(dateFormat))

	var cs CalcStatus
	var firstPending sql.NullTime
	err := row.Scan(&cs.StationID, &cs.Date, &cs.State, &firstPending, &cs.ComputedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cs.Date = cs.Date.UTC()
	if firstPending.Valid {
		cs.FirstPendingAt = firstPending.Time.UTC()
	}
	return &cs, nil
}

// MarkCalcPending records the first time a station-day was seen incomplete.
// Re-marking never moves first_pending_at, so the refresh interval is
// measured from the first sighting.
func (s *Store) MarkCalcPending(stationID string, date, now time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO calc_status (station_id, date, state, first_pending_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(station_id, date) DO NOTHING
	`, stationID, date.UTC().Format(dateFormat), CalcPending, fmtTime(now))
	return err
}

func (s *Store) MarkCalcState(stationID string, date time.Time, state string, now time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO calc_status (station_id, date, state, first_pending_at, computed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(station_id, date) DO UPDATE SET
			state = excluded.state,
			computed_at = excluded.computed_at
	`, stationID, date.UTC().Format(dateFormat), state, fmtTime(now), fmtTime(now))
	return err
}
