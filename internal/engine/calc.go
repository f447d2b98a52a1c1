package engine

import (
	"context"
	"log"
	"time"

	"wxvault/internal/metrics"
	"wxvault/internal/models"
	"wxvault/internal/store"
)

// calcWindowDays is how far back each run re-examines station-days that are
// not yet in a terminal state.
const calcWindowDays = 7

// minObsHours is the coverage needed before a day's observations count as
// complete. METAR feeds drop the odd hour; demanding all 24 would leave
// most days pending forever.
const minObsHours = 20

// runCalc walks each station-day in the window through the state machine:
// pending until observations cover the day, then computed; or skipped
// (terminal, best-available aggregate) once the refresh interval runs out.
func (e *Engine) runCalc(ctx context.Context) error {
	now := e.clock.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	for _, st := range e.cfg.Stations {
		for off := calcWindowDays; off >= 1; off-- {
			if err := ctx.Err(); err != nil {
				return err
			}
			date := today.AddDate(0, 0, -off)
			if err := e.calcDay(st, date, now); err != nil {
				cerr := &models.CalcError{StationID: st.ID, Date: date, Err: err}
				if e.opts.Strict {
					return cerr
				}
				log.Printf("engine: %v", cerr)
			}
		}
	}
	return nil
}

func (e *Engine) calcDay(st models.Station, date, now time.Time) error {
	status, err := e.store.GetCalcStatus(st.ID, date)
	if err != nil {
		return err
	}
	if status != nil && (status.State == store.CalcComputed || status.State == store.CalcSkipped) {
		return nil
	}

	dayRange := models.DateRange{Start: date, End: date.Add(24*time.Hour - time.Second)}
	obs, err := e.store.ReadTimeSeries(st.ID, models.ModelObs, dayRange)
	if err != nil {
		return err
	}

	if !obsCoverDay(obs) {
		if status == nil {
			if err := e.store.MarkCalcPending(st.ID, date, now); err != nil {
				return err
			}
			metrics.CalcTransitions.WithLabelValues(st.ID, store.CalcPending).Inc()
			return nil
		}
		refresh := time.Duration(e.cfg.ObsRefreshHours) * time.Hour
		if now.Sub(status.FirstPendingAt) < refresh {
			return nil
		}
		// Refresh interval elapsed without complete obs: take what there is
		// and never revisit this day. With zero observations there is no
		// verification row to write, but the day still terminates.
		log.Printf("engine: %s %s: incomplete obs after %dh, computing best-available",
			st.ID, date.Format("2006-01-02"), e.cfg.ObsRefreshHours)
		if len(obs) > 0 {
			if err := e.computeDay(st, date, obs, now); err != nil {
				return err
			}
		}
		if err := e.store.MarkCalcState(st.ID, date, store.CalcSkipped, now); err != nil {
			return err
		}
		metrics.CalcTransitions.WithLabelValues(st.ID, store.CalcSkipped).Inc()
		e.addDay(true)
		return nil
	}

	if err := e.computeDay(st, date, obs, now); err != nil {
		return err
	}
	if err := e.store.MarkCalcState(st.ID, date, store.CalcComputed, now); err != nil {
		return err
	}
	metrics.CalcTransitions.WithLabelValues(st.ID, store.CalcComputed).Inc()
	e.addDay(false)
	return nil
}

// computeDay aggregates the day's observations into the verification row.
func (e *Engine) computeDay(st models.Station, date time.Time, obs []models.TimeSeriesRecord, now time.Time) error {
	if len(obs) == 0 {
		return &models.DataIntegrityError{Reason: "no observations for day"}
	}

	verif := aggregateDaily(st.ID, date, obs)
	return e.store.WriteDaily(st.ID, []models.DailyRecord{verif}, now)
}

// aggregateDaily reduces hourly observations to the day's verification
// values: max temperature, min temperature, max wind speed, summed hourly
// rain.
func aggregateDaily(stationID string, date time.Time, obs []models.TimeSeriesRecord) models.DailyRecord {
	d := models.DailyRecord{StationID: stationID, Model: models.ModelVerification, Date: date}
	var rain float64
	var hasRain bool
	for _, r := range obs {
		if r.Temperature.Valid {
			if !d.High.Valid || r.Temperature.Float64 > d.High.Float64 {
				d.High = r.Temperature
			}
			if !d.Low.Valid || r.Temperature.Float64 < d.Low.Float64 {
				d.Low = r.Temperature
			}
		}
		if r.WindSpeed.Valid {
			if !d.Wind.Valid || r.WindSpeed.Float64 > d.Wind.Float64 {
				d.Wind = r.WindSpeed
			}
		}
		if r.RainHour.Valid {
			rain += r.RainHour.Float64
			hasRain = true
		}
	}
	if hasRain {
		d.Rain = models.Float(rain)
	}
	return d
}

// obsCoverDay reports whether the observations cover enough distinct hours
// to call the day complete.
func obsCoverDay(obs []models.TimeSeriesRecord) bool {
	hours := make(map[int]bool)
	for _, r := range obs {
		hours[r.ValidTime.UTC().Hour()] = true
	}
	return len(hours) >= minObsHours
}
