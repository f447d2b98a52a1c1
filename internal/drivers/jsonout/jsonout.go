// Package jsonout is the built-in output service: it dumps each station's
// recent daily archive to a JSON file under the site data directory.
// Heavier renderers (plots, web pages) register the same way.
package jsonout

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jonboulle/clockwork"

	"wxvault/internal/driver"
	"wxvault/internal/models"
)

// windowDays is how much daily history each dump includes.
const windowDays = 31

type Service struct {
	dir   string
	clock clockwork.Clock
}

func New(dir string, clock clockwork.Clock) *Service {
	return &Service{dir: dir, clock: clock}
}

type dayValues struct {
	High *float64 `json:"high,omitempty"`
	Low  *float64 `json:"low,omitempty"`
	Wind *float64 `json:"wind,omitempty"`
	Rain *float64 `json:"rain,omitempty"`
}

// stationDump maps model name -> date -> values. Verification is included
// alongside the forecast models so consumers can score locally.
type stationDump map[string]map[string]dayValues

func (s *Service) Output(ctx context.Context, reader driver.Reader, stations []models.Station, modelNames []string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}

	now := s.clock.Now().UTC()
	dr := models.DateRange{
		Start: now.AddDate(0, 0, -windowDays),
		End:   now.AddDate(0, 0, 7),
	}

	for _, st := range stations {
		if err := ctx.Err(); err != nil {
			return err
		}
		dump := make(stationDump)
		for _, model := range append([]string{models.ModelVerification}, modelNames...) {
			records, err := reader.ReadDaily(st.ID, model, dr)
			if err != nil {
				return fmt.Errorf("read daily %s/%s: %w", st.ID, model, err)
			}
			if len(records) == 0 {
				continue
			}
			days := make(map[string]dayValues, len(records))
			for _, r := range records {
				days[r.Date.Format("2006-01-02")] = dayValues{
					High: floatPtr(r.High),
					Low:  floatPtr(r.Low),
					Wind: floatPtr(r.Wind),
					Rain: floatPtr(r.Rain),
				}
			}
			dump[model] = days
		}

		data, err := json.MarshalIndent(dump, "", "  ")
		if err != nil {
			return err
		}
		path := filepath.Join(s.dir, st.ID+"_daily.json")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
