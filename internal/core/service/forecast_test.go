package service

import (
	"testing"
	"time"

	"github.com/nijel/pvgis2mqtt/internal/adapter/weather"
	"github.com/nijel/pvgis2mqtt/internal/config"
	"github.com/nijel/pvgis2mqtt/internal/core/domain"
	"github.com/nijel/pvgis2mqtt/pkg/pvgis"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testNow is 2024-06-10 12:30 UTC, so a 7 day window stays inside June.
var testNow = time.Date(2024, 6, 10, 12, 30, 0, 0, time.UTC)

// flatSeries produces 1000 W during hours 10 to 14 on every June day.
func flatSeries() *pvgis.Series {
	power := map[pvgis.HourKey]float64{}
	for day := 1; day <= 30; day++ {
		for hour := 10; hour <= 14; hour++ {
			power[pvgis.HourKey{Month: 6, Day: day, Hour: hour}] = 1000
		}
	}
	return pvgis.NewSeries(power, nil, nil)
}

func constantClouds(coverage float64, from time.Time, hours int) weather.HourlyForecast {
	wx := weather.NewHourlyForecast()
	start := from.Truncate(time.Hour)
	for h := 0; h < hours; h++ {
		wx.CloudCover[start.Add(time.Duration(h)*time.Hour)] = coverage
	}
	return wx
}

func testService() *ForecastService {
	return NewForecastService(7, zap.NewNop())
}

func TestCloudFactor(t *testing.T) {
	now := testNow.Truncate(time.Hour)

	assert.Equal(t, 1.0, CloudFactor(now, nil))

	clouds := map[time.Time]float64{now: 0}
	assert.Equal(t, 1.0, CloudFactor(now, clouds))

	clouds[now] = 100
	assert.InDelta(t, 0.2, CloudFactor(now, clouds), 1e-9)

	clouds[now] = 50
	assert.InDelta(t, 0.6, CloudFactor(now, clouds), 1e-9)

	// values outside 0..100 are clamped
	clouds[now] = 140
	assert.InDelta(t, 0.2, CloudFactor(now, clouds), 1e-9)

	// samples further than three hours away fall back to clear sky
	far := map[time.Time]float64{now.Add(-4 * time.Hour): 100}
	assert.Equal(t, 1.0, CloudFactor(now, far))

	near := map[time.Time]float64{now.Add(-2 * time.Hour): 100}
	assert.InDelta(t, 0.2, CloudFactor(now, near), 1e-9)
}

func TestComputeArrayClearSky(t *testing.T) {
	svc := testService()
	cfg := config.ArrayConfig{Name: "south", ModulesPower: 1, Declination: 35}

	forecast := svc.ComputeArray(flatSeries(), weather.NewHourlyForecast(), cfg, false, testNow)

	// the window starts at the current hour, today covers 12:00 to 14:00
	assert.Equal(t, 3000.0, forecast.EnergyProductionToday)
	assert.Equal(t, 3000.0, forecast.EnergyProductionTodayRemaining)
	assert.Equal(t, 5000.0, forecast.EnergyProductionTomorrow)
	assert.Equal(t, 1000.0, forecast.PowerProductionNow)
	assert.Equal(t, 1000.0, forecast.EnergyCurrentHour)
	assert.Equal(t, 1000.0, forecast.EnergyNextHour)
	assert.Equal(t, 1000.0, forecast.PeakPowerToday)
	assert.Equal(t, 1000.0, forecast.PeakPowerTomorrow)

	require.NotNil(t, forecast.PeakTimeToday)
	assert.Equal(t, 12, forecast.PeakTimeToday.Hour())
	require.NotNil(t, forecast.PeakTimeTomorrow)
	assert.Equal(t, 10, forecast.PeakTimeTomorrow.Hour())

	assert.Equal(t, 3000.0, forecast.EnergyProductionDays[0])
	for day := 1; day < 7; day++ {
		assert.Equal(t, 5000.0, forecast.EnergyProductionDays[day], "day %d", day)
	}

	assert.Len(t, forecast.Detailed, 7*24)
	noon := forecast.Detailed[0]
	assert.Equal(t, 1.0, noon.PVEstimate)
	assert.Equal(t, 0.0, noon.CloudCoverage)
}

func TestComputeArrayOvercast(t *testing.T) {
	svc := testService()
	cfg := config.ArrayConfig{Name: "south", ModulesPower: 1, Declination: 35}

	midnight := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	wx := constantClouds(100, midnight, 8*24)

	forecast := svc.ComputeArray(flatSeries(), wx, cfg, false, testNow)

	assert.InDelta(t, 600.0, forecast.EnergyProductionToday, 0.1)
	assert.InDelta(t, 1000.0, forecast.EnergyProductionTomorrow, 0.1)
	assert.InDelta(t, 200.0, forecast.PowerProductionNow, 0.1)

	noon := forecast.Detailed[0]
	assert.InDelta(t, 0.2, noon.PVEstimate, 1e-4)
	assert.Equal(t, 100.0, noon.CloudCoverage)
}

func TestClearSkyEstimateIndependentOfClouds(t *testing.T) {
	svc := testService()
	cfg := config.ArrayConfig{Name: "south", ModulesPower: 1, Declination: 35}

	midnight := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	clear := svc.ComputeArray(flatSeries(), weather.NewHourlyForecast(), cfg, false, testNow)
	cloudy := svc.ComputeArray(flatSeries(), constantClouds(100, midnight, 8*24), cfg, false, testNow)

	require.Equal(t, len(clear.Detailed), len(cloudy.Detailed))
	for i := range clear.Detailed {
		assert.Equal(t, clear.Detailed[i].PVEstimateClearSky, cloudy.Detailed[i].PVEstimateClearSky)
		if clear.Detailed[i].PVEstimate > 0 {
			assert.Less(t, cloudy.Detailed[i].PVEstimate, clear.Detailed[i].PVEstimate)
		}
	}
}

func TestBuildForecastTotals(t *testing.T) {
	svc := testService()
	arrays := []config.ArrayConfig{
		{Name: "south", ModulesPower: 1, Declination: 35},
		{Name: "east", ModulesPower: 1, Declination: 35},
	}
	series := map[string]*pvgis.Series{
		"south": flatSeries(),
		"east":  flatSeries(),
	}

	data := svc.BuildForecast(series, arrays, weather.NewHourlyForecast(), true, nil, testNow)

	require.Len(t, data.Arrays, 2)
	require.NotNil(t, data.Total)
	assert.Equal(t, 6000.0, data.Total.EnergyProductionToday)
	assert.Equal(t, 10000.0, data.Total.EnergyProductionTomorrow)
	assert.Equal(t, 2000.0, data.Total.PowerProductionNow)
	assert.Equal(t, 2000.0, data.Total.PeakPowerToday)
	assert.True(t, data.WeatherAvailable)
	assert.Nil(t, data.CloudCoverageUsed)

	// arrays without cached series are skipped
	dataMissing := svc.BuildForecast(map[string]*pvgis.Series{"south": flatSeries()}, arrays,
		weather.NewHourlyForecast(), true, nil, testNow)
	assert.Len(t, dataMissing.Arrays, 1)
}

func TestBuildForecastCloudCoverageUsed(t *testing.T) {
	svc := testService()
	arrays := []config.ArrayConfig{{Name: "south", ModulesPower: 1, Declination: 35}}
	series := map[string]*pvgis.Series{"south": flatSeries()}

	wx := weather.NewHourlyForecast()
	wx.CloudCover[testNow.Truncate(time.Hour)] = 42

	data := svc.BuildForecast(series, arrays, wx, true, nil, testNow)
	require.NotNil(t, data.CloudCoverageUsed)
	assert.Equal(t, 42.0, *data.CloudCoverageUsed)
}

func TestComputeTotalOrdersByTime(t *testing.T) {
	svc := testService()
	nowHour := testNow.Truncate(time.Hour)

	totalWh := map[string]float64{
		nowHour.Format(domain.TimestampLayout):                     1500,
		nowHour.Add(time.Hour).Format(domain.TimestampLayout):      800,
		nowHour.Add(-time.Hour).Format(domain.TimestampLayout):     400,
		nowHour.Add(24 * time.Hour).Format(domain.TimestampLayout): 2000,
	}

	total := svc.ComputeTotal(totalWh, testNow)

	assert.Equal(t, 2700.0, total.EnergyProductionToday)
	assert.Equal(t, 2300.0, total.EnergyProductionTodayRemaining)
	assert.Equal(t, 2000.0, total.EnergyProductionTomorrow)
	assert.Equal(t, 1500.0, total.PeakPowerToday)
	assert.Equal(t, 2000.0, total.PeakPowerTomorrow)
	require.NotNil(t, total.PeakTimeToday)
	assert.Equal(t, nowHour.Hour(), total.PeakTimeToday.Hour())
	// entries are walked in time order
	assert.Equal(t, 400.0, total.PowerProductionNow)
	assert.Equal(t, 1500.0, total.EnergyNextHour)
}

func TestPruneSnapshots(t *testing.T) {
	snapshots := []domain.ForecastSnapshot{
		{Timestamp: testNow.AddDate(0, 0, -8)},
		{Timestamp: testNow.AddDate(0, 0, -2)},
		{Timestamp: testNow},
	}

	kept := PruneSnapshots(snapshots, 7, testNow)
	require.Len(t, kept, 2)
	assert.Equal(t, testNow.AddDate(0, 0, -2), kept[0].Timestamp)
}

func TestEnergyWhHoursBackfillsPastHours(t *testing.T) {
	nowHour := testNow.Truncate(time.Hour)
	current := nowHour.Format(domain.TimestampLayout)
	past := nowHour.Add(-3 * time.Hour).Format(domain.TimestampLayout)
	future := nowHour.Add(2 * time.Hour).Format(domain.TimestampLayout)

	total := &domain.ArrayForecast{WhHours: map[string]float64{current: 900}}
	snapshots := []domain.ForecastSnapshot{{
		Timestamp: testNow.Add(-3 * time.Hour),
		WhHours: map[string]float64{
			past:    700,
			current: 111,
			future:  333,
		},
	}}

	whHours := EnergyWhHours(total, snapshots, testNow)

	// past hours come from the snapshot, the current forecast wins elsewhere
	assert.Equal(t, 700.0, whHours[past])
	assert.Equal(t, 900.0, whHours[current])
	_, hasFuture := whHours[future]
	assert.False(t, hasFuture)
}
