package domain

import "time"

// PersistedState is everything worth surviving a restart.
type PersistedState struct {
	SavedAt       time.Time          `json:"saved_at"`
	Forecast      *ForecastData      `json:"forecast,omitempty"`
	Snapshots     []ForecastSnapshot `json:"snapshots,omitempty"`
	SnowOverrides map[string]*bool   `json:"snow_overrides,omitempty"`
}
