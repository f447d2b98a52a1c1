package store

import (
	"fmt"
	"time"

	"wxvault/internal/models"
)

// WriteDaily upserts daily rows for one station in a single transaction,
// with the same per-field merge discipline as timeseries rows.
func (s *Store) WriteDaily(stationID string, records []models.DailyRecord, retrievedAt time.Time) error {
	if len(records) == 0 {
		return nil
	}
	if err := s.ensureStationTables(stationID); err != nil {
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

	q := fmt.Sprintf(`
		INSERT INTO "%s" (model, date, high, low, wind, rain, retrieved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(model, date) DO UPDATE SET
			high = COALESCE(excluded.high, high),
			low = COALESCE(excluded.low, low),
			wind = COALESCE(excluded.wind, wind),
			rain = COALESCE(excluded.rain, rain),
			retrieved_at = excluded.retrieved_at
	`, dailyTable)
	stmt, err := tx.Prepare(q)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, d := range records {
		if _, err := stmt.Exec(
			d.Model, d.Date.UTC().Format(dateFormat),
			d.High, d.Low, d.Wind, d.Rain, fmtTime(retrievedAt),
		); err != nil {
			return fmt.Errorf("upsert daily %s %s: %w", d.Model, d.Date.Format(dateFormat), err)
		}
	}
	return tx.Commit()
}

// ReadDaily returns daily rows for a (station, model) pair with dates inside
// the range (inclusive), ordered by date.
func (s *Store) ReadDaily(stationID, model string, dr models.DateRange) ([]models.DailyRecord, error) {
	if err := s.ensureStationTables(stationID); err != nil {
		return nil, err
	}
	dailyTable, err := tableName(stationID, "DAILY")
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`
		SELECT model, date, high, low, wind, rain
		FROM "%s"
		WHERE model = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, dailyTable)
	rows, err := s.db.Query(q, model, dr.Start.UTC().Format(dateFormat), dr.End.UTC().Format(dateFormat))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.DailyRecord
	for rows.Next() {
		var d models.DailyRecord
		if err := rows.Scan(&d.Model, &d.Date, &d.High, &d.Low, &d.Wind, &d.Rain); err != nil {
			return nil, err
		}
		d.StationID = stationID
		d.Date = d.Date.UTC()
		records = append(records, d)
	}
	return records, rows.Err()
}

// ReadDailyOn returns the single daily row for a (station, model, date) key,
// or nil when absent.
func (s *Store) ReadDailyOn(stationID, model string, date time.Time) (*models.DailyRecord, error) {
	records, err := s.ReadDaily(stationID, model, models.DateRange{Start: date, End: date})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}
