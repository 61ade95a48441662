package service

import (
	"testing"
	"time"

	"github.com/nijel/pvgis2mqtt/internal/adapter/weather"
	"github.com/nijel/pvgis2mqtt/internal/config"
	"github.com/nijel/pvgis2mqtt/pkg/pvgis"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constantTemp(temp float64, from time.Time, hours int) weather.HourlyForecast {
	wx := weather.NewHourlyForecast()
	start := from.Truncate(time.Hour)
	for h := 0; h < hours; h++ {
		wx.Temperature[start.Add(time.Duration(h)*time.Hour)] = temp
	}
	return wx
}

func TestNoSnowWithoutRecentSnowfall(t *testing.T) {
	detector := DefaultSnowDetector()
	cfg := config.ArrayConfig{Name: "south", ModulesPower: 1, Declination: 35}

	wx := constantTemp(-5, testNow.Add(-30*time.Hour), 40)

	assert.False(t, detector.Detect(flatSeries(), wx, cfg, nil, testNow))
}

func TestSnowfallWhileColdCoversPanels(t *testing.T) {
	detector := DefaultSnowDetector()
	cfg := config.ArrayConfig{Name: "south", ModulesPower: 1, Declination: 35}

	wx := constantTemp(-5, testNow.Add(-30*time.Hour), 40)
	wx.Snowfall[testNow.Truncate(time.Hour).Add(-2*time.Hour)] = 3

	assert.True(t, detector.Detect(flatSeries(), wx, cfg, nil, testNow))
}

func TestColdPrecipitationCountsAsSnow(t *testing.T) {
	detector := DefaultSnowDetector()
	cfg := config.ArrayConfig{Name: "south", ModulesPower: 1, Declination: 35}

	wx := constantTemp(-1, testNow.Add(-30*time.Hour), 40)
	wx.Precipitation[testNow.Truncate(time.Hour).Add(-5*time.Hour)] = 1.2

	assert.True(t, detector.Detect(flatSeries(), wx, cfg, nil, testNow))

	// the same precipitation above the temperature threshold is rain
	warm := constantTemp(4, testNow.Add(-30*time.Hour), 40)
	warm.Precipitation[testNow.Truncate(time.Hour).Add(-5*time.Hour)] = 1.2

	assert.False(t, detector.Detect(flatSeries(), warm, cfg, nil, testNow))
}

func TestSnowMeltsAfterEnoughRadiation(t *testing.T) {
	detector := DefaultSnowDetector()
	cfg := config.ArrayConfig{Name: "south", ModulesPower: 1, Declination: 35}

	// old snowfall followed by warm sunny hours
	wx := constantTemp(5, testNow.Add(-30*time.Hour), 40)
	wx.Snowfall[testNow.Truncate(time.Hour).Add(-20*time.Hour)] = 3

	// flatSeries yields 200 W/m² estimated radiation during 10:00-14:00,
	// six such hours fall in the lookback window
	assert.False(t, detector.Detect(flatSeries(), wx, cfg, nil, testNow))
}

func TestSnowStaysWhileCold(t *testing.T) {
	detector := DefaultSnowDetector()
	cfg := config.ArrayConfig{Name: "south", ModulesPower: 1, Declination: 35}

	wx := constantTemp(-3, testNow.Add(-30*time.Hour), 40)
	wx.Snowfall[testNow.Truncate(time.Hour).Add(-20*time.Hour)] = 3

	// cold hours keep resetting the melt counter
	assert.True(t, detector.Detect(flatSeries(), wx, cfg, nil, testNow))
}

func TestSteepPanelsShedSnowEarlier(t *testing.T) {
	detector := DefaultSnowDetector()

	// exactly three radiation hours in the lookback window
	power := map[pvgis.HourKey]float64{}
	for _, hour := range []int{9, 10, 11} {
		power[pvgis.HourKey{Month: 6, Day: 10, Hour: hour}] = 1000
	}
	series := pvgis.NewSeries(power, nil, nil)

	wx := constantTemp(5, testNow.Add(-30*time.Hour), 40)
	wx.Snowfall[testNow.Truncate(time.Hour).Add(-20*time.Hour)] = 3

	flat := config.ArrayConfig{Name: "flat", ModulesPower: 1, Declination: 35}
	steep := config.ArrayConfig{Name: "steep", ModulesPower: 1, Declination: 75}

	// three melt hours are not enough at 35° but clear a 75° panel
	assert.True(t, detector.Detect(series, wx, flat, nil, testNow))
	assert.False(t, detector.Detect(series, wx, steep, nil, testNow))
}

func TestManualOverrideShortCircuits(t *testing.T) {
	detector := DefaultSnowDetector()
	cfg := config.ArrayConfig{Name: "south", ModulesPower: 1, Declination: 35}

	wx := constantTemp(-5, testNow.Add(-30*time.Hour), 40)
	wx.Snowfall[testNow.Truncate(time.Hour).Add(-2*time.Hour)] = 3

	covered := true
	clear := false
	assert.True(t, detector.Detect(flatSeries(), wx, cfg, &covered, testNow))
	assert.False(t, detector.Detect(flatSeries(), wx, cfg, &clear, testNow))
}

func TestSnowFactorAppliedToForecast(t *testing.T) {
	svc := testService()
	cfg := config.ArrayConfig{Name: "south", ModulesPower: 1, Declination: 35}

	// keep future hours covered too, cold the whole window
	wx := constantTemp(-5, testNow.Add(-30*time.Hour), 10*24)
	wx.Snowfall[testNow.Truncate(time.Hour).Add(-2*time.Hour)] = 3

	clear := svc.ComputeArray(flatSeries(), weather.NewHourlyForecast(), cfg, false, testNow)
	snowy := svc.ComputeArray(flatSeries(), wx, cfg, true, testNow)

	require.Greater(t, clear.PowerProductionNow, 0.0)
	assert.InDelta(t, clear.PowerProductionNow*SnowFactorCovered, snowy.PowerProductionNow, 0.1)
	assert.True(t, snowy.Detailed[0].SnowCovered)
}
