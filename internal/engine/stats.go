package engine

import (
	"encoding/json"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"wxvault/internal/models"
)

// statsWindowDays is the scoring window for the statistics artifact.
const statsWindowDays = 31

const statsFileName = "wxvault-stats.json"

var statVars = []string{"high", "low", "wind", "rain"}

type varStats struct {
	Bias         *float64 `json:"bias"`
	RMSE         *float64 `json:"rmse"`
	RMSENoBias   *float64 `json:"rmseNoBias"`
	SkillClimo   *float64 `json:"skillClimo,omitempty"`
	SkillPersist *float64 `json:"skillPersist,omitempty"`
}

type modelStats struct {
	NumDays int                 `json:"numDays"`
	Days    []string            `json:"verifyingDays"`
	Stats   map[string]varStats `json:"stats"`
}

// writeStats scores every model against verification over the stats window
// and writes the JSON artifact next to the archive. Skill is measured
// against climatology and persistence; with no climatology the scores
// degrade to raw errors rather than failing.
func (e *Engine) writeStats() error {
	now := e.clock.Now().UTC()
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -statsWindowDays)

	out := make(map[string]map[string]modelStats)
	for _, st := range e.cfg.Stations {
		verif, err := e.readDailyMap(st.ID, models.ModelVerification, models.DateRange{Start: start, End: end})
		if err != nil {
			return err
		}
		if len(verif) == 0 {
			continue
		}

		climo, err := e.climoByDay(st.ID, start, end, now)
		if err != nil {
			log.Printf("engine: stats: climo for %s unavailable: %v", st.ID, err)
			climo = nil
		}

		// Persistence forecasts day D with day D-1's verification.
		persist := make(map[string]models.DailyRecord, len(verif))
		for _, v := range verif {
			persist[dayKey(v.Date.AddDate(0, 0, 1))] = v
		}

		stationStats := make(map[string]modelStats)
		for _, mc := range e.cfg.Models {
			forecasts, err := e.readDailyMap(st.ID, mc.Name, models.DateRange{Start: start.AddDate(0, 0, 1), End: end})
			if err != nil {
				return err
			}
			days := verifyingDays(forecasts, verif, persist)
			if len(days) == 0 {
				continue
			}

			ms := scoreModel(forecasts, verif, days)
			persistStats := scoreModel(persist, verif, days).Stats
			var climoStats map[string]varStats
			if climo != nil {
				climoStats = scoreModel(climo, verif, days).Stats
			}

			for _, v := range statVars {
				s := ms.Stats[v]
				if climoStats != nil {
					s.SkillClimo = skill(s.RMSE, climoStats[v].RMSE)
				}
				s.SkillPersist = skill(s.RMSE, persistStats[v].RMSE)
				ms.Stats[v] = s
			}
			stationStats[mc.Name] = ms
		}
		if len(stationStats) > 0 {
			out[st.ID] = stationStats
		}
	}

	path := filepath.Join(filepath.Dir(e.cfg.Database), statsFileName)
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (e *Engine) readDailyMap(stationID, model string, dr models.DateRange) (map[string]models.DailyRecord, error) {
	records, err := e.store.ReadDaily(stationID, model, dr)
	if err != nil {
		return nil, err
	}
	m := make(map[string]models.DailyRecord, len(records))
	for _, d := range records {
		m[dayKey(d.Date)] = d
	}
	return m, nil
}

// climoByDay reads the station's climatology (stored against the last leap
// year) and keys it by the real dates in [start, end].
func (e *Engine) climoByDay(stationID string, start, end, now time.Time) (map[string]models.DailyRecord, error) {
	leap := lastLeapYear(now)
	full := models.DateRange{
		Start: time.Date(leap, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(leap, 12, 31, 0, 0, 0, 0, time.UTC),
	}
	rows, err := e.store.ReadDaily(stationID, models.ModelClimo, full)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	type md struct{ m time.Month; d int }
	byMonthDay := make(map[md]models.DailyRecord, len(rows))
	for _, r := range rows {
		byMonthDay[md{r.Date.Month(), r.Date.Day()}] = r
	}

	out := make(map[string]models.DailyRecord)
	for date := start; !date.After(end); date = date.AddDate(0, 0, 1) {
		if r, ok := byMonthDay[md{date.Month(), date.Day()}]; ok {
			r.Date = date
			out[dayKey(date)] = r
		}
	}
	return out, nil
}

func scoreModel(forecasts, verifs map[string]models.DailyRecord, days []string) modelStats {
	ms := modelStats{NumDays: len(days), Days: days, Stats: make(map[string]varStats, len(statVars))}
	for _, v := range statVars {
		var diffs []float64
		for _, day := range days {
			f, fok := varValue(forecasts[day], v)
			o, ook := varValue(verifs[day], v)
			if fok && ook {
				diffs = append(diffs, f-o)
			}
		}
		ms.Stats[v] = diffStats(diffs)
	}
	return ms
}

func diffStats(diffs []float64) varStats {
	if len(diffs) == 0 {
		return varStats{}
	}
	var sum float64
	for _, d := range diffs {
		sum += d
	}
	bias := sum / float64(len(diffs))

	var sq, sqNoBias float64
	for _, d := range diffs {
		sq += d * d
		sqNoBias += (d - bias) * (d - bias)
	}
	rmse := math.Sqrt(sq / float64(len(diffs)))
	rmseNoBias := math.Sqrt(sqNoBias / float64(len(diffs)))
	return varStats{Bias: &bias, RMSE: &rmse, RMSENoBias: &rmseNoBias}
}

// skill returns 1 - rmse/baseline, nil when either side is unusable.
func skill(rmse, baseline *float64) *float64 {
	if rmse == nil || baseline == nil || *baseline == 0 {
		return nil
	}
	s := 1 - *rmse / *baseline
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return nil
	}
	return &s
}

func verifyingDays(forecasts, verifs, persist map[string]models.DailyRecord) []string {
	var days []string
	for day := range forecasts {
		if _, ok := verifs[day]; !ok {
			continue
		}
		if _, ok := persist[day]; !ok {
			continue
		}
		days = append(days, day)
	}
	sort.Strings(days)
	return days
}

func varValue(d models.DailyRecord, v string) (float64, bool) {
	switch v {
	case "high":
		return d.High.Float64, d.High.Valid
	case "low":
		return d.Low.Float64, d.Low.Valid
	case "wind":
		return d.Wind.Float64, d.Wind.Valid
	case "rain":
		return d.Rain.Float64, d.Rain.Valid
	}
	return 0, false
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func lastLeapYear(now time.Time) int {
	y := now.Year()
	for !(y%4 == 0 && (y%100 != 0 || y%400 == 0)) {
		y--
	}
	return y
}
