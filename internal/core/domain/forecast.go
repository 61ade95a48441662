package domain

import "time"

// TimestampLayout keys hourly forecast values, RFC 3339 with the local
// offset.
const TimestampLayout = time.RFC3339

// DetailedForecastEntry is one hour of the detailed forecast, power in kW.
type DetailedForecastEntry struct {
	PeriodStart        string  `json:"period_start"`
	PVEstimate         float64 `json:"pv_estimate"`
	PVEstimateClearSky float64 `json:"pv_estimate_clear_sky,omitempty"`
	CloudCoverage      float64 `json:"cloud_coverage,omitempty"`
	SnowCovered        bool    `json:"snow_covered,omitempty"`
}

// ArrayForecast is the computed forecast of one array or the plant total.
type ArrayForecast struct {
	// WhHours maps hour start timestamps to expected production in Wh.
	WhHours  map[string]float64      `json:"wh_hours"`
	Detailed []DetailedForecastEntry `json:"detailed_forecast,omitempty"`

	EnergyProductionToday          float64         `json:"energy_production_today"`
	EnergyProductionTodayRemaining float64         `json:"energy_production_today_remaining"`
	EnergyProductionTomorrow       float64         `json:"energy_production_tomorrow"`
	EnergyProductionDays           map[int]float64 `json:"energy_production_days"`
	PowerProductionNow             float64         `json:"power_production_now"`
	EnergyCurrentHour              float64         `json:"energy_current_hour"`
	EnergyNextHour                 float64         `json:"energy_next_hour"`
	PeakPowerToday                 float64         `json:"peak_power_today"`
	PeakPowerTomorrow              float64         `json:"peak_power_tomorrow"`
	PeakTimeToday                  *time.Time      `json:"power_highest_peak_time_today,omitempty"`
	PeakTimeTomorrow               *time.Time      `json:"power_highest_peak_time_tomorrow,omitempty"`

	ClearSkyPowerNow    float64 `json:"clear_sky_power_now"`
	ClearSkyEnergyToday float64 `json:"clear_sky_energy_today"`
	SnowCovered         bool    `json:"snow_covered"`
}

// ForecastSnapshot preserves one computed total forecast so past hours stay
// available after newer runs overwrite them.
type ForecastSnapshot struct {
	Timestamp time.Time          `json:"timestamp"`
	WhHours   map[string]float64 `json:"wh_hours"`
}

// ForecastData is a full forecast run over all arrays.
type ForecastData struct {
	Arrays map[string]*ArrayForecast `json:"arrays"`
	Total  *ArrayForecast            `json:"total"`

	CloudCoverageUsed *float64  `json:"cloud_coverage_used,omitempty"`
	WeatherAvailable  bool      `json:"weather_available"`
	GeneratedAt       time.Time `json:"generated_at"`
}
