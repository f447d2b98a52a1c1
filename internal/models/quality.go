package models

// Plausibility flags for retrieved records. Flagged values are archived
// anyway (drivers own their QC); the flags surface in logs so a broken feed
// is noticed. Archive units are F, kt, in and mb.
const (
	FlagTempOutOfRange     = "temp_out_of_range"
	FlagDewpointAboveTemp  = "dewpoint_above_temp"
	FlagCloudInvalid       = "cloud_invalid"
	FlagWindDirInvalid     = "wind_dir_invalid"
	FlagWindSpeedUnlikely  = "wind_speed_unlikely"
	FlagPressureOutOfRange = "pressure_out_of_range"
	FlagRainNegative       = "rain_negative"
)

func (r TimeSeriesRecord) QualityFlags() []string {
	var flags []string

	if r.Temperature.Valid {
		if r.Temperature.Float64 < -80 || r.Temperature.Float64 > 135 {
			flags = append(flags, FlagTempOutOfRange)
		}
	}

	if r.Temperature.Valid && r.Dewpoint.Valid {
		if r.Dewpoint.Float64 > r.Temperature.Float64+1 {
			flags = append(flags, FlagDewpointAboveTemp)
		}
	}

	if r.Cloud.Valid {
		if r.Cloud.Float64 < 0 || r.Cloud.Float64 > 100 {
			flags = append(flags, FlagCloudInvalid)
		}
	}

	if r.WindDirection.Valid {
		if r.WindDirection.Float64 < 0 || r.WindDirection.Float64 > 360 {
			flags = append(flags, FlagWindDirInvalid)
		}
	}

	if r.WindSpeed.Valid {
		if r.WindSpeed.Float64 < 0 || r.WindSpeed.Float64 > 200 {
			flags = append(flags, FlagWindSpeedUnlikely)
		}
	}

	if r.Pressure.Valid {
		if r.Pressure.Float64 < 850 || r.Pressure.Float64 > 1100 {
			flags = append(flags, FlagPressureOutOfRange)
		}
	}

	if r.RainHour.Valid && r.RainHour.Float64 < 0 {
		flags = append(flags, FlagRainNegative)
	}

	return flags
}
