package config

import (
	"errors"
	"testing"

	"wxvault/internal/models"
)

const validYAML = `
database: /var/lib/wxvault/archive.db
obs_refresh_hours: 24
forecast_days: 5
stations:
  - id: KSEA
    name: Seattle-Tacoma
    timezone: America/Los_Angeles
    latitude: 47.444
    longitude: -122.314
    history_start: "2018-01-01"
  - id: KPDX
    timezone: America/Los_Angeles
models:
  - name: GFS MOS
    driver: mos
    historical: true
    params:
      product: GFS
  - name: NWS
    driver: nws
verify:
  obs_driver: metar
output:
  services:
    - json
`

func TestParse_Valid(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Database != "/var/lib/wxvault/archive.db" {
		t.Errorf("Database = %q", cfg.Database)
	}
	if cfg.ObsRefreshHours != 24 {
		t.Errorf("ObsRefreshHours = %d, want 24", cfg.ObsRefreshHours)
	}
	if cfg.ForecastDays != 5 {
		t.Errorf("ForecastDays = %d, want 5", cfg.ForecastDays)
	}
	if len(cfg.Stations) != 2 {
		t.Fatalf("len(Stations) = %d, want 2", len(cfg.Stations))
	}
	if cfg.Stations[0].ForecastDays != 5 {
		t.Errorf("station ForecastDays = %d, want config default", cfg.Stations[0].ForecastDays)
	}
	if cfg.Stations[0].HistoryStart.IsZero() {
		t.Error("KSEA HistoryStart should be set")
	}
	if !cfg.Stations[1].HistoryStart.IsZero() {
		t.Error("KPDX HistoryStart should be zero")
	}
	if len(cfg.Models) != 2 {
		t.Fatalf("len(Models) = %d, want 2", len(cfg.Models))
	}
	if cfg.Models[0].Params["product"] != "GFS" {
		t.Errorf("Params = %v", cfg.Models[0].Params)
	}
	if cfg.ObsDriver != "metar" {
		t.Errorf("ObsDriver = %q, want metar", cfg.ObsDriver)
	}
	if len(cfg.OutputServices) != 1 || cfg.OutputServices[0] != "json" {
		t.Errorf("OutputServices = %v", cfg.OutputServices)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`
database: archive.db
stations:
  - id: KSEA
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.ObsRefreshHours != DefaultObsRefreshHours {
		t.Errorf("ObsRefreshHours = %d, want default %d", cfg.ObsRefreshHours, DefaultObsRefreshHours)
	}
	if cfg.ForecastDays != DefaultForecastDays {
		t.Errorf("ForecastDays = %d, want default %d", cfg.ForecastDays, DefaultForecastDays)
	}
	if cfg.Concurrency != DefaultConcurrency {
		t.Errorf("Concurrency = %d, want default %d", cfg.Concurrency, DefaultConcurrency)
	}
	if cfg.ClimoStartYear != DefaultClimoStartYear {
		t.Errorf("ClimoStartYear = %d, want default %d", cfg.ClimoStartYear, DefaultClimoStartYear)
	}
}

func TestParse_Errors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing database", `
stations:
  - id: KSEA
`},
		{"no stations", `
database: archive.db
`},
		{"duplicate station", `
database: archive.db
stations:
  - id: KSEA
  - id: KSEA
`},
		{"bad timezone", `
database: archive.db
stations:
  - id: KSEA
    timezone: America/Nowhere
`},
		{"bad history_start", `
database: archive.db
stations:
  - id: KSEA
    history_start: "01/01/2018"
`},
		{"model without driver", `
database: archive.db
stations:
  - id: KSEA
models:
  - name: GFS MOS
`},
		{"duplicate model", `
database: archive.db
stations:
  - id: KSEA
models:
  - name: GFS MOS
    driver: mos
  - name: GFS MOS
    driver: mos
`},
		{"invalid yaml", "database: [unclosed"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			var cerr *models.ConfigError
			if !errors.As(err, &cerr) {
				t.Errorf("error type = %T, want *models.ConfigError", err)
			}
		})
	}
}

func TestStationLookup(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if st, ok := cfg.Station("KPDX"); !ok || st.ID != "KPDX" {
		t.Errorf("Station(KPDX) = %+v, %v", st, ok)
	}
	if _, ok := cfg.Station("KLAX"); ok {
		t.Error("Station(KLAX) should not be found")
	}
}
