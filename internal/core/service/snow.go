package service

import (
	"time"

	"github.com/nijel/pvgis2mqtt/internal/adapter/weather"
	"github.com/nijel/pvgis2mqtt/internal/config"
	"github.com/nijel/pvgis2mqtt/pkg/pvgis"
)

const (
	// SnowFactorCovered scales production of a snow covered array.
	SnowFactorCovered = 0.1

	// snowLookbackHours is how far back snowfall events are considered.
	snowLookbackHours = 24
)

// SnowDetector estimates whether panels are covered by snow from recent
// snowfall, temperature and the radiation accumulated since.
type SnowDetector struct {
	// TempThreshold in °C, below it precipitation counts as snow and
	// accumulated melt radiation resets.
	TempThreshold float64
	// MeltRadiationThreshold in W/m², an hour above it counts towards
	// melting.
	MeltRadiationThreshold float64
	// MeltHours is the number of radiation hours needed to clear panels.
	MeltHours float64
	// SlideInclination in degrees, steeper panels shed snow earlier.
	SlideInclination float64
}

func DefaultSnowDetector() SnowDetector {
	return SnowDetector{
		TempThreshold:          0.5,
		MeltRadiationThreshold: 150,
		MeltHours:              4,
		SlideInclination:       45,
	}
}

// Detect reports whether the array is likely snow covered right now. A manual
// override short-circuits the detection.
func (d SnowDetector) Detect(series *pvgis.Series, wx weather.HourlyForecast,
	arrayCfg config.ArrayConfig, override *bool, now time.Time) bool {

	if override != nil {
		return *override
	}
	return d.Predict(series, wx, arrayCfg, now)
}

// Predict reports whether the array will be snow covered at the target hour,
// looking back over recent snowfall and the melt radiation since.
func (d SnowDetector) Predict(series *pvgis.Series, wx weather.HourlyForecast,
	arrayCfg config.ArrayConfig, target time.Time) bool {

	targetHour := target.Truncate(time.Hour)

	if !d.recentSnow(wx, targetHour) {
		return false
	}

	var meltHours float64
	for offset := -snowLookbackHours; offset <= 0; offset++ {
		dt := targetHour.Add(time.Duration(offset) * time.Hour)

		if temp, ok := lookupHour(wx.Temperature, dt); ok && temp < d.TempThreshold {
			// snow does not melt while it stays cold
			meltHours = 0
			continue
		}

		power := series.Power(int(dt.Month()), dt.Day(), dt.Hour())
		radiation := estimateRadiation(power, arrayCfg.ModulesPower)
		if radiation > d.MeltRadiationThreshold {
			meltHours++
		}
	}

	return meltHours < d.meltHoursNeeded(arrayCfg.Declination)
}

func (d SnowDetector) recentSnow(wx weather.HourlyForecast, targetHour time.Time) bool {
	for offset := -snowLookbackHours; offset <= 0; offset++ {
		dt := targetHour.Add(time.Duration(offset) * time.Hour)

		if snow, ok := lookupHour(wx.Snowfall, dt); ok && snow > 0 {
			return true
		}
		if temp, ok := lookupHour(wx.Temperature, dt); ok && temp < d.TempThreshold {
			if precip, ok := lookupHour(wx.Precipitation, dt); ok && precip > 0 {
				return true
			}
		}
	}
	return false
}

// meltHoursNeeded reduces the melt time for panels steeper than the slide
// inclination, down to half.
func (d SnowDetector) meltHoursNeeded(inclination float64) float64 {
	needed := d.MeltHours
	if inclination > d.SlideInclination {
		angleFactor := (inclination - d.SlideInclination) / 60
		multiplier := 1 - angleFactor
		if multiplier < 0.5 {
			multiplier = 0.5
		}
		needed *= multiplier
	}
	return needed
}

// estimateRadiation roughly converts panel power to in-plane irradiance,
// assuming about 200 W/m² per kW of rated power in good conditions.
func estimateRadiation(powerWatt, modulesPowerKWp float64) float64 {
	if modulesPowerKWp <= 0 {
		return 0
	}
	return powerWatt / (modulesPowerKWp * 1000) * 200
}
