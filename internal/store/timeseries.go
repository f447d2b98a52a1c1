package store

import (
	"database/sql"
	"fmt"
	"time"

	"wxvault/internal/models"
)

// WriteTimeSeries upserts a batch of records for one (station, model) unit
// inside a single transaction. Conflicting keys merge per field: a non-null
// incoming value wins, a null incoming value preserves what is stored. A
// failed batch leaves no partial rows, so the next run's resume point stays
// consistent.
func (s *Store) WriteTimeSeries(stationID string, records []models.TimeSeriesRecord, retrievedAt time.Time) error {
	if len(records) == 0 {
		return nil
	}
	if err := s.ensureStationTables(stationID); err != nil {
		return err
	}
	tsTable, err := tableName(stationID, "TIMESERIES")
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	q := fmt.Sprintf(`
		INSERT INTO "%s" (model, valid_time, temperature, dewpoint, cloud, wind_speed, wind_direction, rain_hour, pressure, condition, retrieved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(model, valid_time) DO UPDATE SET
			temperature = COALESCE(excluded.temperature, temperature),
			dewpoint = COALESCE(excluded.dewpoint, dewpoint),
			cloud = COALESCE(excluded.cloud, cloud),
			wind_speed = COALESCE(excluded.wind_speed, wind_speed),
			wind_direction = COALESCE(excluded.wind_direction, wind_direction),
			rain_hour = COALESCE(excluded.rain_hour, rain_hour),
			pressure = COALESCE(excluded.pressure, pressure),
			condition = COALESCE(excluded.condition, condition),
			retrieved_at = excluded.retrieved_at
	`, tsTable)
	stmt, err := tx.Prepare(q)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.Exec(
			r.Model, fmtTime(r.ValidTime),
			r.Temperature, r.Dewpoint, r.Cloud,
			r.WindSpeed, r.WindDirection, r.RainHour,
			r.Pressure, r.Condition, fmtTime(retrievedAt),
		); err != nil {
			return fmt.Errorf("upsert %s %s: %w", r.Model, r.ValidTime.Format(timeFormat), err)
		}
	}
	return tx.Commit()
}

// LatestTimestamp returns the newest stored valid_time for a (station,
// model) pair, used as the incremental resume point.
func (s *Store) LatestTimestamp(stationID, model string) (time.Time, bool, error) {
	if err := s.ensureStationTables(stationID); err != nil {
		return time.Time{}, false, err
	}
	tsTable, err := tableName(stationID, "TIMESERIES")
	if err != nil {
		return time.Time{}, false, err
	}
	var latest time.Time
	q := fmt.Sprintf(`SELECT valid_time FROM "%s" WHERE model = ? ORDER BY valid_time DESC LIMIT 1`, tsTable)
	err = s.db.QueryRow(q, model).Scan(&latest)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return latest.UTC(), true, nil
}

// ReadTimeSeries returns the records for a (station, model) pair inside the
// range, ordered by time. This is the read surface output services consume.
func (s *Store) ReadTimeSeries(stationID, model string, dr models.DateRange) ([]models.TimeSeriesRecord, error) {
	if err := s.ensureStationTables(stationID); err != nil {
		return nil, err
	}
	tsTable, err := tableName(stationID, "TIMESERIES")
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`
		SELECT model, valid_time, temperature, dewpoint, cloud, wind_speed, wind_direction, rain_hour, pressure, condition
		FROM "%s"
		WHERE model = ? AND valid_time >= ? AND valid_time <= ?
		ORDER BY valid_time ASC
	`, tsTable)
	rows, err := s.db.Query(q, model, fmtTime(dr.Start), fmtTime(dr.End))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.TimeSeriesRecord
	for rows.Next() {
		var r models.TimeSeriesRecord
		if err := rows.Scan(&r.Model, &r.ValidTime, &r.Temperature, &r.Dewpoint, &r.Cloud,
			&r.WindSpeed, &r.WindDirection, &r.RainHour, &r.Pressure, &r.Condition); err != nil {
			return nil, err
		}
		r.StationID = stationID
		r.ValidTime = r.ValidTime.UTC()
		records = append(records, r)
	}
	return records, rows.Err()
}

// CountTimeSeries returns the number of stored rows for a (station, model)
// pair.
func (s *Store) CountTimeSeries(stationID, model string) (int, error) {
	if err := s.ensureStationTables(stationID); err != nil {
		return 0, err
	}
	tsTable, err := tableName(stationID, "TIMESERIES")
	if err != nil {
		return 0, err
	}
	var n int
	q := fmt.Sprintf(`SELECT COUNT(*) FROM "%s" WHERE model = ?`, tsTable)
	err = s.db.QueryRow(q, model).Scan(&n)
	return n, err
}
