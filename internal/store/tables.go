package store

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"wxvault/internal/models"
)

const (
	timeFormat = "2006-01-02 15:04:05"
	dateFormat = "2006-01-02"
)

// Data older than this means the archive for a station is effectively dead
// and gets rebuilt from the historical range.
const staleAfter = 30 * 24 * time.Hour

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func (s *Store) timeseriesDDL(table string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS "%s" (
    model TEXT NOT NULL,
    valid_time DATETIME NOT NULL,
    temperature REAL,
    dewpoint REAL,
    cloud REAL,
    wind_speed REAL,
    wind_direction REAL,
    rain_hour REAL,
    pressure REAL,
    condition TEXT,
    retrieved_at DATETIME,
    PRIMARY KEY (model, valid_time)
);
CREATE INDEX IF NOT EXISTS "idx_%s_time" ON "%s"(valid_time);
`, table, table, table)
}

func (s *Store) dailyDDL(table string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS "%s" (
    model TEXT NOT NULL,
    date DATE NOT NULL,
    high REAL,
    low REAL,
    wind REAL,
    rain REAL,
    retrieved_at DATETIME,
    PRIMARY KEY (model, date)
);
`, table)
}

// ensureStationTables lazily creates the per-station data tables. Safe to
// call from concurrent retrieval units.
func (s *Store) ensureStationTables(stationID string) error {
	key := strings.ToUpper(stationID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured[key] {
		return nil
	}

	tsTable, err := tableName(stationID, "TIMESERIES")
	if err != nil {
		return err
	}
	dailyTable, err := tableName(stationID, "DAILY")
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(s.timeseriesDDL(tsTable)); err != nil {
		return fmt.Errorf("create %s: %w", tsTable, err)
	}
	if _, err := s.db.Exec(s.dailyDDL(dailyTable)); err != nil {
		return fmt.Errorf("create %s: %w", dailyTable, err)
	}

	s.ensured[key] = true
	return nil
}

// InitStation prepares a station's tables and reports whether the station
// needs the historical range retrieved: true when the tables are empty or
// the newest row is older than the staleness cutoff, in which case the
// tables are rebuilt.
func (s *Store) InitStation(st models.Station, now time.Time) (bool, error) {
	if err := s.ensureStationTables(st.ID); err != nil {
		return false, err
	}

	latest, ok, err := s.latestAnyTimestamp(st.ID)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	if now.Sub(latest) > staleAfter {
		log.Printf("store: %s archive is stale (newest %s), rebuilding", st.ID, latest.Format(timeFormat))
		if err := s.resetStationData(st.ID); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// latestAnyTimestamp returns the newest valid_time across all models in a
// station's timeseries table. Selecting the column itself rather than
// MAX(valid_time) keeps the declared column type, which the driver needs to
// hand back a time.Time.
func (s *Store) latestAnyTimestamp(stationID string) (time.Time, bool, error) {
	tsTable, err := tableName(stationID, "TIMESERIES")
	if err != nil {
		return time.Time{}, false, err
	}
	var latest time.Time
	q := fmt.Sprintf(`SELECT valid_time FROM "%s" ORDER BY valid_time DESC LIMIT 1`, tsTable)
	err = s.db.QueryRow(q).Scan(&latest)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return latest.UTC(), true, nil
}

// resetStationData drops and recreates the data tables, keeping climatology
// rows, which age on a multi-year scale rather than days.
func (s *Store) resetStationData(stationID string) error {
	tsTable, err := tableName(stationID, "TIMESERIES")
	if err != nil {
		return err
	}
	dailyTable, err := tableName(stationID, "DAILY")
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(fmt.Sprintf(`DELETE FROM "%s"`, tsTable)); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf(`DELETE FROM "%s" WHERE model != ?`, dailyTable), models.ModelClimo); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM calc_status WHERE station_id = ?`, stationID); err != nil {
		return err
	}
	return tx.Commit()
}

// HasClimo reports whether any climatology rows exist for a station.
func (s *Store) HasClimo(stationID string) (bool, error) {
	if err := s.ensureStationTables(stationID); err != nil {
		return false, err
	}
	dailyTable, err := tableName(stationID, "DAILY")
	if err != nil {
		return false, err
	}
	var n int
	q := fmt.Sprintf(`SELECT COUNT(*) FROM "%s" WHERE model = ?`, dailyTable)
	if err := s.db.QueryRow(q, models.ModelClimo).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}
