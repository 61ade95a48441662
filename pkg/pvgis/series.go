package pvgis

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/reugn/go-quartz/logger"
)

// timeLayout is the PVGIS hourly timestamp format, e.g. "20200101:0010".
const timeLayout = "20060102:1504"

// HourKey addresses one hour of the typical meteorological year.
type HourKey struct {
	Month int
	Day   int
	Hour  int
}

// Series holds hourly PV production averaged over the years covered by a
// PVGIS seriescalc response, keyed by (month, day, hour).
type Series struct {
	power      map[HourKey]float64
	irradiance map[HourKey]float64
	sunHeight  map[HourKey]float64
}

func NewSeries(power, irradiance, sunHeight map[HourKey]float64) *Series {
	if power == nil {
		power = map[HourKey]float64{}
	}
	return &Series{
		power:      power,
		irradiance: irradiance,
		sunHeight:  sunHeight,
	}
}

// Power returns the typical production in watts for the given hour,
// or 0 if the series has no sample for it.
func (s *Series) Power(month, day, hour int) float64 {
	return s.power[HourKey{month, day, hour}]
}

// Irradiance returns the typical global in-plane irradiance in W/m².
func (s *Series) Irradiance(month, day, hour int) (float64, bool) {
	v, ok := s.irradiance[HourKey{month, day, hour}]
	return v, ok
}

// SunHeight returns the typical sun elevation angle in degrees.
func (s *Series) SunHeight(month, day, hour int) (float64, bool) {
	v, ok := s.sunHeight[HourKey{month, day, hour}]
	return v, ok
}

// ClearSkyPower returns the production the array would deliver under a
// cloudless sky. The typical-year power is scaled by the ratio between the
// modeled clear-sky irradiance and the typical irradiance. Without
// irradiance and sun height samples it falls back to the typical-year power.
func (s *Series) ClearSkyPower(month, day, hour int) float64 {
	power := s.Power(month, day, hour)
	if power <= 0 {
		return power
	}
	irr, okIrr := s.Irradiance(month, day, hour)
	sunH, okSun := s.SunHeight(month, day, hour)
	if !okIrr || !okSun || irr <= 0 {
		return power
	}
	dayOfYear := time.Date(2001, time.Month(month), day, 0, 0, 0, 0, time.UTC).YearDay()
	clearIrr := ClearSkyIrradiance(sunH, dayOfYear)
	if clearIrr <= 0 {
		return power
	}
	scale := clearIrr / irr
	if scale < 1 {
		scale = 1
	}
	return power * scale
}

// Len returns the number of hourly power samples.
func (s *Series) Len() int {
	return len(s.power)
}

type hourlyItem struct {
	Time       string   `json:"time"`
	Power      *float64 `json:"P"`
	Irradiance *float64 `json:"G(i)"`
	SunHeight  *float64 `json:"H_sun"`
}

type seriesResponse struct {
	Outputs struct {
		Hourly []hourlyItem `json:"hourly"`
	} `json:"outputs"`
}

// ParseSeries decodes a seriescalc JSON response. The response covers several
// years of hourly samples. Samples sharing the same (month, day, hour) are
// folded together with a running pairwise average. Malformed items are
// skipped.
func ParseSeries(data []byte) (*Series, error) {
	var resp seriesResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unexpected response format: %w", err)
	}
	if resp.Outputs.Hourly == nil {
		return nil, fmt.Errorf("unexpected response format: missing outputs.hourly")
	}

	power := map[HourKey]float64{}
	irradiance := map[HourKey]float64{}
	sunHeight := map[HourKey]float64{}

	for _, item := range resp.Outputs.Hourly {
		if item.Power == nil {
			logger.Warnf("skipping hourly item without power: %+v", item)
			continue
		}
		t, err := time.Parse(timeLayout, item.Time)
		if err != nil {
			logger.Warnf("skipping hourly item with invalid time %q: %s", item.Time, err)
			continue
		}
		key := HourKey{int(t.Month()), t.Day(), t.Hour()}
		average(power, key, *item.Power)
		if item.Irradiance != nil {
			average(irradiance, key, *item.Irradiance)
		}
		if item.SunHeight != nil {
			average(sunHeight, key, *item.SunHeight)
		}
	}

	return NewSeries(power, irradiance, sunHeight), nil
}

func average(m map[HourKey]float64, key HourKey, value float64) {
	if prev, ok := m[key]; ok {
		m[key] = (prev + value) / 2
	} else {
		m[key] = value
	}
}
