package weather

import (
	"context"
	"time"
)

// HourlyForecast carries weather variables keyed by the start of the hour.
// Cloud cover is in percent, temperature in °C, precipitation and snowfall
// in mm per hour.
type HourlyForecast struct {
	CloudCover    map[time.Time]float64
	Temperature   map[time.Time]float64
	Precipitation map[time.Time]float64
	Snowfall      map[time.Time]float64
}

func NewHourlyForecast() HourlyForecast {
	return HourlyForecast{
		CloudCover:    map[time.Time]float64{},
		Temperature:   map[time.Time]float64{},
		Precipitation: map[time.Time]float64{},
		Snowfall:      map[time.Time]float64{},
	}
}

func (f HourlyForecast) Empty() bool {
	return len(f.CloudCover) == 0 && len(f.Temperature) == 0 &&
		len(f.Precipitation) == 0 && len(f.Snowfall) == 0
}

// Horizon returns the latest hour covered by the forecast.
func (f HourlyForecast) Horizon() time.Time {
	var max time.Time
	for _, m := range []map[time.Time]float64{f.CloudCover, f.Temperature, f.Precipitation, f.Snowfall} {
		for ts := range m {
			if ts.After(max) {
				max = ts
			}
		}
	}
	return max
}

// Merge combines two forecasts. The primary value wins for every hour both
// providers cover, the secondary only fills gaps.
func Merge(primary, secondary HourlyForecast) HourlyForecast {
	out := NewHourlyForecast()
	mergeMap(out.CloudCover, primary.CloudCover, secondary.CloudCover)
	mergeMap(out.Temperature, primary.Temperature, secondary.Temperature)
	mergeMap(out.Precipitation, primary.Precipitation, secondary.Precipitation)
	mergeMap(out.Snowfall, primary.Snowfall, secondary.Snowfall)
	return out
}

func mergeMap(dst, primary, secondary map[time.Time]float64) {
	for ts, v := range secondary {
		dst[ts] = v
	}
	for ts, v := range primary {
		dst[ts] = v
	}
}

// Provider hands out hourly weather forecasts for a fixed location.
type Provider interface {
	Name() string
	Forecast(ctx context.Context) (HourlyForecast, error)
}
