// Package store owns the SQLite archive: one file, meta tables created by
// migrations, and per-station data tables created lazily on first write.
package store

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"wxvault/internal/models"
)

type Store struct {
	db *sql.DB

	mu      sync.Mutex
	ensured map[string]bool // station IDs whose data tables exist
}

func New(db *sql.DB) *Store {
	return &Store{db: db, ensured: make(map[string]bool)}
}

// Open opens (creating if necessary) the archive at path with the pragmas
// the archive relies on. SQLite serializes writers; a single connection
// keeps batch transactions from tripping over each other.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")
	return db, nil
}

var stationIDPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// tableName builds the per-station table identifier, e.g. KSEA_TIMESERIES.
// Station IDs come from config and must be plain identifiers since they are
// spliced into DDL.
func tableName(stationID, suffix string) (string, error) {
	if !stationIDPattern.MatchString(stationID) {
		return "", &models.ConfigError{Reason: fmt.Sprintf("station id %q is not a valid identifier", stationID)}
	}
	return strings.ToUpper(stationID) + "_" + suffix, nil
}

func (s *Store) UpsertStation(st models.Station) error {
	var historyStart interface{}
	if !st.HistoryStart.IsZero() {
		historyStart = st.HistoryStart.UTC().Format("2006-01-02")
	}
	_, err := s.db.Exec(`
		INSERT INTO stations (station_id, name, timezone, latitude, longitude, history_start)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(station_id) DO UPDATE SET
			name = excluded.name,
			timezone = excluded.timezone,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			history_start = excluded.history_start
	`, st.ID, st.Name, st.Timezone, st.Latitude, st.Longitude, historyStart)
	return err
}

func (s *Store) GetStations() ([]models.Station, error) {
	rows, err := s.db.Query(`SELECT station_id, name, timezone, latitude, longitude, history_start FROM stations ORDER BY station_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stations []models.Station
	for rows.Next() {
		var st models.Station
		var historyStart sql.NullTime
		if err := rows.Scan(&st.ID, &st.Name, &st.Timezone, &st.Latitude, &st.Longitude, &historyStart); err != nil {
			return nil, err
		}
		if historyStart.Valid {
			st.HistoryStart = historyStart.Time.UTC()
		}
		stations = append(stations, st)
	}
	return stations, rows.Err()
}

// RemoveStation drops a station's data tables and meta rows. Used by the
// --remove flag.
func (s *Store) RemoveStation(stationID string) error {
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

	for _, stmt := range []string{
		fmt.Sprintf(`DROP TABLE IF EXISTS "%s"`, tsTable),
		fmt.Sprintf(`DROP TABLE IF EXISTS "%s"`, dailyTable),
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`DELETE FROM calc_status WHERE station_id = ?`, stationID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM stations WHERE station_id = ?`, stationID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.ensured, strings.ToUpper(stationID))
	s.mu.Unlock()
	return nil
}
