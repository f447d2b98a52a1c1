// Package dummy is a stand-in data source producing synthetic forecasts.
// It exists so a fresh install can exercise the whole pipeline before any
// real driver is configured, and it documents the driver contract.
package dummy

import (
	"context"
	"math/rand"
	"time"

	"wxvault/internal/driver"
	"wxvault/internal/models"
)

func init() {
	driver.Register("dummy", &Driver{})
}

type Driver struct{}

func (d *Driver) Retrieve(ctx context.Context, station models.Station, model models.ModelConfig, dr models.DateRange) ([]models.TimeSeriesRecord, []models.DailyRecord, error) {
	var ts []models.TimeSeriesRecord
	var daily []models.DailyRecord

	day := time.Date(dr.Start.Year(), dr.Start.Month(), dr.Start.Day(), 0, 0, 0, 0, time.UTC)
	for ; !day.After(dr.End); day = day.AddDate(0, 0, 1) {
		high := 50 + rand.Float64()*40
		daily = append(daily, models.DailyRecord{
			Date: day,
			High: models.Float(high),
			Low:  models.Float(high - 10 - rand.Float64()*15),
			Wind: models.Float(rand.Float64() * 25),
			Rain: models.Float(rand.Float64()),
		})
		for hour := 0; hour < 24; hour += 3 {
			t := day.Add(time.Duration(hour) * time.Hour)
			if t.Before(dr.Start) || t.After(dr.End) {
				continue
			}
			ts = append(ts, models.TimeSeriesRecord{
				ValidTime:   t,
				Temperature: models.Float(high - rand.Float64()*12),
				Dewpoint:    models.Float(high - 15 - rand.Float64()*10),
				WindSpeed:   models.Float(rand.Float64() * 20),
			})
		}
	}
	return ts, daily, nil
}
