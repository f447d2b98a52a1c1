package engine

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"wxvault/internal/driver"
	"wxvault/internal/metrics"
	"wxvault/internal/models"
)

// incrementalStep is the archive's native timeseries resolution. A resume
// range starts one step after the last stored timestamp so an already
// covered range is never re-requested.
const incrementalStep = time.Hour

// defaultLookback is the starting window for a historical model with no
// archived data when backfill is not requested.
const defaultLookback = 24 * time.Hour

type unit struct {
	station  models.Station
	model    models.ModelConfig
	ret      driver.Retriever
	backfill bool
}

// retrieveAll fans the (station, model) units out over a bounded worker
// pool. Units write to disjoint (station, model) keys, so they only share
// the database connection, which serializes writes. In strict mode the
// first failure cancels the remaining units.
func (e *Engine) retrieveAll(ctx context.Context, backfillFor map[string]bool) error {
	units := e.buildUnits(backfillFor)
	if len(units) == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, e.cfg.Concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, u := range units {
		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
			wg.Add(1)
			go func(u unit) {
				defer wg.Done()
				defer func() { <-sem }()
				err := e.runUnit(ctx, u)
				e.addUnit(err != nil)
				if err == nil {
					return
				}
				rerr := &models.RetrievalError{Model: u.model.Name, StationID: u.station.ID, Err: err}
				if e.opts.Strict {
					mu.Lock()
					if firstErr == nil {
						firstErr = rerr
					}
					mu.Unlock()
					cancel()
					return
				}
				log.Printf("engine: %v (unit skipped)", rerr)
			}(u)
		}
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	if e.opts.Strict && ctx.Err() != nil && !errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	return nil
}

func (e *Engine) buildUnits(backfillFor map[string]bool) []unit {
	var units []unit
	for _, mc := range e.cfg.Models {
		ret := e.retrievers[mc.Name]
		for _, st := range e.cfg.Stations {
			units = append(units, unit{
				station:  st,
				model:    mc,
				ret:      ret,
				backfill: mc.Historical && backfillFor[st.ID],
			})
		}
	}
	if e.obs != nil {
		// Observations behave like a historical model: they resume from the
		// last stored timestamp and backfill from history start.
		obsModel := models.ModelConfig{Name: models.ModelObs, Driver: e.cfg.ObsDriver, Historical: true}
		for _, st := range e.cfg.Stations {
			units = append(units, unit{
				station:  st,
				model:    obsModel,
				ret:      e.obs,
				backfill: backfillFor[st.ID],
			})
		}
	}
	return units
}

func (e *Engine) runUnit(ctx context.Context, u unit) error {
	dr, err := e.rangeFor(u)
	if err != nil {
		return err
	}

	start := time.Now()
	ts, daily, err := u.ret.Retrieve(ctx, u.station, u.model, dr)
	metrics.RetrievalLatency.WithLabelValues(u.model.Name, u.station.ID).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RetrievalsTotal.WithLabelValues(u.model.Name, u.station.ID, "error").Inc()
		return err
	}
	metrics.RetrievalsTotal.WithLabelValues(u.model.Name, u.station.ID, "ok").Inc()

	tsValid, dailyValid, skipped := e.validate(u, ts, daily)

	now := e.clock.Now().UTC()
	if err := e.store.WriteTimeSeries(u.station.ID, tsValid, now); err != nil {
		return err
	}
	if err := e.store.WriteDaily(u.station.ID, dailyValid, now); err != nil {
		return err
	}

	metrics.RecordsWritten.WithLabelValues(u.model.Name, u.station.ID, "timeseries").Add(float64(len(tsValid)))
	metrics.RecordsWritten.WithLabelValues(u.model.Name, u.station.ID, "daily").Add(float64(len(dailyValid)))
	e.addRecords(len(tsValid)+len(dailyValid), skipped)
	return nil
}

// validate stamps the unit's key onto each record and drops malformed ones.
// A bad record is logged and counted; it never fails the batch.
func (e *Engine) validate(u unit, ts []models.TimeSeriesRecord, daily []models.DailyRecord) ([]models.TimeSeriesRecord, []models.DailyRecord, int) {
	skipped := 0
	tsValid := ts[:0]
	for _, r := range ts {
		r.StationID = u.station.ID
		r.Model = u.model.Name
		if err := r.Validate(); err != nil {
			log.Printf("engine: %s/%s: %v", u.model.Name, u.station.ID, err)
			skipped++
			continue
		}
		if flags := r.QualityFlags(); len(flags) > 0 {
			log.Printf("engine: %s/%s %s: quality flags %v", u.model.Name, u.station.ID,
				r.ValidTime.Format("2006-01-02 15:04"), flags)
		}
		tsValid = append(tsValid, r)
	}
	dailyValid := daily[:0]
	for _, d := range daily {
		d.StationID = u.station.ID
		d.Model = u.model.Name
		if err := d.Validate(); err != nil {
			log.Printf("engine: %s/%s: %v", u.model.Name, u.station.ID, err)
			skipped++
			continue
		}
		dailyValid = append(dailyValid, d)
	}
	if skipped > 0 {
		metrics.RecordsSkipped.WithLabelValues(u.model.Name, u.station.ID).Add(float64(skipped))
	}
	return tsValid, dailyValid, skipped
}

// rangeFor computes the date range a unit needs.
//
// Historical models resume one step after the last stored timestamp. With no
// prior data they either backfill from the station's history start (when
// requested) or take the default lookback. Live models always get the
// current cycle window, today through the forecast horizon, and are never
// backfilled.
func (e *Engine) rangeFor(u unit) (models.DateRange, error) {
	now := e.clock.Now().UTC()

	if !u.model.Historical {
		day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		end := now.Add(time.Duration(u.station.ForecastDays) * 24 * time.Hour)
		return models.DateRange{Start: day, End: end}, nil
	}

	latest, ok, err := e.store.LatestTimestamp(u.station.ID, u.model.Name)
	if err != nil {
		return models.DateRange{}, err
	}
	if ok {
		return models.DateRange{Start: latest.Add(incrementalStep), End: now}, nil
	}
	if u.backfill && !u.station.HistoryStart.IsZero() {
		return models.DateRange{Start: u.station.HistoryStart, End: now}, nil
	}
	return models.DateRange{Start: now.Add(-defaultLookback), End: now}, nil
}
