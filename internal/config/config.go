// Package config loads and validates the YAML configuration file. The rest
// of the system consumes the parsed structs and never re-reads the file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"wxvault/internal/models"
)

const (
	DefaultObsRefreshHours = 36
	DefaultForecastDays    = 7
	DefaultConcurrency     = 4
	DefaultClimoStartYear  = 1980
)

type Config struct {
	Database        string
	SiteDataDir     string
	Strict          bool
	ObsRefreshHours int
	ForecastDays    int
	Concurrency     int
	ClimoStartYear  int
	Stations        []models.Station
	Models          []models.ModelConfig
	ObsDriver       string
	OutputServices  []string
}

type rawConfig struct {
	Database        string            `yaml:"database"`
	SiteDataDir     string            `yaml:"site_data_dir"`
	Strict          bool              `yaml:"strict"`
	ObsRefreshHours int               `yaml:"obs_refresh_hours"`
	ForecastDays    int               `yaml:"forecast_days"`
	Concurrency     int               `yaml:"concurrency"`
	ClimoStartYear  int               `yaml:"climo_start_year"`
	Stations        []rawStation      `yaml:"stations"`
	Models          []rawModel        `yaml:"models"`
	Verify          rawVerify         `yaml:"verify"`
	Output          rawOutput         `yaml:"output"`
}

type rawStation struct {
	ID           string  `yaml:"id"`
	Name         string  `yaml:"name"`
	Timezone     string  `yaml:"timezone"`
	Latitude     float64 `yaml:"latitude"`
	Longitude    float64 `yaml:"longitude"`
	HistoryStart string  `yaml:"history_start"`
}

type rawModel struct {
	Name       string            `yaml:"name"`
	Driver     string            `yaml:"driver"`
	Historical bool              `yaml:"historical"`
	Params     map[string]string `yaml:"params"`
}

type rawVerify struct {
	ObsDriver string `yaml:"obs_driver"`
}

type rawOutput struct {
	Services []string `yaml:"services"`
}

// Load reads, parses and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &models.ConfigError{Reason: fmt.Sprintf("read %s: %v", path, err)}
	}
	return Parse(data)
}

// Parse validates a raw YAML document. Structural problems are ConfigErrors;
// nothing touches the network or the archive before they surface.
func Parse(data []byte) (*Config, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &models.ConfigError{Reason: fmt.Sprintf("parse yaml: %v", err)}
	}

	cfg := &Config{
		Database:        raw.Database,
		SiteDataDir:     raw.SiteDataDir,
		Strict:          raw.Strict,
		ObsRefreshHours: raw.ObsRefreshHours,
		ForecastDays:    raw.ForecastDays,
		Concurrency:     raw.Concurrency,
		ClimoStartYear:  raw.ClimoStartYear,
		ObsDriver:       raw.Verify.ObsDriver,
		OutputServices:  raw.Output.Services,
	}

	if cfg.Database == "" {
		return nil, &models.ConfigError{Reason: "database path is required"}
	}
	if cfg.SiteDataDir == "" {
		cfg.SiteDataDir = "site_data"
	}
	if cfg.ObsRefreshHours <= 0 {
		cfg.ObsRefreshHours = DefaultObsRefreshHours
	}
	if cfg.ForecastDays <= 0 {
		cfg.ForecastDays = DefaultForecastDays
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.ClimoStartYear <= 0 {
		cfg.ClimoStartYear = DefaultClimoStartYear
	}

	if len(raw.Stations) == 0 {
		return nil, &models.ConfigError{Reason: "at least one station is required"}
	}
	seen := make(map[string]bool)
	for _, rs := range raw.Stations {
		st, err := parseStation(rs, cfg.ForecastDays)
		if err != nil {
			return nil, err
		}
		if seen[st.ID] {
			return nil, &models.ConfigError{Reason: fmt.Sprintf("duplicate station %s", st.ID)}
		}
		seen[st.ID] = true
		cfg.Stations = append(cfg.Stations, st)
	}

	seenModels := make(map[string]bool)
	for _, rm := range raw.Models {
		if rm.Name == "" {
			return nil, &models.ConfigError{Reason: "model without a name"}
		}
		if rm.Driver == "" {
			return nil, &models.ConfigError{Reason: fmt.Sprintf("model %s has no driver", rm.Name)}
		}
		if seenModels[rm.Name] {
			return nil, &models.ConfigError{Reason: fmt.Sprintf("duplicate model %s", rm.Name)}
		}
		seenModels[rm.Name] = true
		cfg.Models = append(cfg.Models, models.ModelConfig{
			Name:       rm.Name,
			Driver:     rm.Driver,
			Historical: rm.Historical,
			Params:     rm.Params,
		})
	}

	return cfg, nil
}

func parseStation(rs rawStation, forecastDays int) (models.Station, error) {
	if rs.ID == "" {
		return models.Station{}, &models.ConfigError{Reason: "station without an id"}
	}
	if rs.Timezone != "" {
		if _, err := time.LoadLocation(rs.Timezone); err != nil {
			return models.Station{}, &models.ConfigError{
				Reason: fmt.Sprintf("station %s: unknown timezone %q", rs.ID, rs.Timezone),
			}
		}
	}
	st := models.Station{
		ID:           rs.ID,
		Name:         rs.Name,
		Timezone:     rs.Timezone,
		Latitude:     rs.Latitude,
		Longitude:    rs.Longitude,
		ForecastDays: forecastDays,
	}
	if rs.HistoryStart != "" {
		t, err := time.Parse("2006-01-02", rs.HistoryStart)
		if err != nil {
			return models.Station{}, &models.ConfigError{
				Reason: fmt.Sprintf("station %s: bad history_start %q", rs.ID, rs.HistoryStart),
			}
		}
		st.HistoryStart = t
	}
	return st, nil
}

// Station returns the station with the given id, or false.
func (c *Config) Station(id string) (models.Station, bool) {
	for _, st := range c.Stations {
		if st.ID == id {
			return st, true
		}
	}
	return models.Station{}, false
}
