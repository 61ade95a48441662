package service

import (
	"math"
	"sort"
	"time"

	"github.com/nijel/pvgis2mqtt/internal/adapter/weather"
	"github.com/nijel/pvgis2mqtt/internal/config"
	"github.com/nijel/pvgis2mqtt/internal/core/domain"
	"github.com/nijel/pvgis2mqtt/pkg/pvgis"

	"go.uber.org/zap"
)

const (
	// CloudFactorClear scales clear-sky production at 0% cloud cover,
	// CloudFactorOvercast at 100%.
	CloudFactorClear    = 1.0
	CloudFactorOvercast = 0.2

	// cloudFactorMaxGap is the largest distance to a cloud sample before
	// falling back to clear sky.
	cloudFactorMaxGap = 3 * time.Hour
)

type ForecastService struct {
	Days   uint
	Snow   SnowDetector
	Logger *zap.Logger
}

func NewForecastService(days uint, logger *zap.Logger) *ForecastService {
	if days == 0 {
		days = domain.ForecastDayCount
	}
	return &ForecastService{
		Days:   days,
		Snow:   DefaultSnowDetector(),
		Logger: logger,
	}
}

// CloudFactor maps the cloud cover closest to t to a production factor.
// Without a sample within three hours the sky counts as clear.
func CloudFactor(t time.Time, cloudCover map[time.Time]float64) float64 {
	if len(cloudCover) == 0 {
		return CloudFactorClear
	}

	var best float64
	bestDiff := time.Duration(math.MaxInt64)
	for ts, coverage := range cloudCover {
		diff := t.Sub(ts)
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff {
			bestDiff = diff
			best = coverage
		}
	}

	if bestDiff > cloudFactorMaxGap {
		return CloudFactorClear
	}

	cloudPct := math.Min(100, math.Max(0, best)) / 100
	return CloudFactorClear - cloudPct*(CloudFactorClear-CloudFactorOvercast)
}

// BuildForecast computes a full forecast run over all arrays.
func (s *ForecastService) BuildForecast(series map[string]*pvgis.Series, arrays []config.ArrayConfig,
	wx weather.HourlyForecast, weatherAvailable bool, overrides map[string]*bool, now time.Time) *domain.ForecastData {

	result := &domain.ForecastData{
		Arrays:           map[string]*domain.ArrayForecast{},
		WeatherAvailable: weatherAvailable,
		GeneratedAt:      now,
	}

	nowHour := now.Truncate(time.Hour)
	if coverage, ok := lookupHour(wx.CloudCover, nowHour); ok {
		result.CloudCoverageUsed = &coverage
	} else if len(wx.CloudCover) > 0 {
		coverage := closestValue(wx.CloudCover, nowHour)
		result.CloudCoverageUsed = &coverage
	}

	totalWh := map[string]float64{}
	var totalClearSkyNow, totalClearSkyToday float64

	for _, arrayCfg := range arrays {
		arraySeries := series[arrayCfg.Name]
		if arraySeries == nil {
			continue
		}

		snowCovered := s.Snow.Detect(arraySeries, wx, arrayCfg, overrides[arrayCfg.Name], now)

		forecast := s.ComputeArray(arraySeries, wx, arrayCfg, snowCovered, now)
		forecast.SnowCovered = snowCovered

		clearSkyNow := arraySeries.ClearSkyPower(int(now.Month()), now.Day(), now.Hour())
		var clearSkyToday float64
		for h := 0; h < 24; h++ {
			clearSkyToday += arraySeries.ClearSkyPower(int(now.Month()), now.Day(), h)
		}
		forecast.ClearSkyPowerNow = math.Round(clearSkyNow)
		forecast.ClearSkyEnergyToday = roundTo(clearSkyToday/1000, 2)

		result.Arrays[arrayCfg.Name] = forecast

		for ts, wh := range forecast.WhHours {
			totalWh[ts] += wh
		}
		totalClearSkyNow += clearSkyNow
		totalClearSkyToday += clearSkyToday
	}

	result.Total = s.ComputeTotal(totalWh, now)
	result.Total.ClearSkyPowerNow = math.Round(totalClearSkyNow)
	result.Total.ClearSkyEnergyToday = roundTo(totalClearSkyToday/1000, 2)

	return result
}

// ComputeArray computes the hourly forecast of one array over the forecast
// window, blending the typical-year baseline with cloud cover and predicted
// snow coverage.
func (s *ForecastService) ComputeArray(series *pvgis.Series, wx weather.HourlyForecast,
	arrayCfg config.ArrayConfig, snowCovered bool, now time.Time) *domain.ArrayForecast {

	forecast := newArrayForecast()
	today := dateOf(now)
	tomorrow := today.AddDate(0, 0, 1)
	nowHour := now.Truncate(time.Hour)

	totalHours := int(s.Days) * 24
	var todayTotal, todayRemaining, tomorrowTotal float64
	var peakToday, peakTomorrow float64
	var peakTimeToday, peakTimeTomorrow *time.Time

	for hourOffset := 0; hourOffset < totalHours; hourOffset++ {
		dt := nowHour.Add(time.Duration(hourOffset) * time.Hour)

		clearSkyPower := series.ClearSkyPower(int(dt.Month()), dt.Day(), dt.Hour())
		basePower := series.Power(int(dt.Month()), dt.Day(), dt.Hour())

		cloudFactor := CloudFactor(dt, wx.CloudCover)
		adjustedPower := basePower * cloudFactor

		hourSnowCovered := snowCovered
		if hourOffset > 0 {
			hourSnowCovered = s.Snow.Predict(series, wx, arrayCfg, dt)
		}
		if hourSnowCovered {
			adjustedPower *= SnowFactorCovered
		}

		tsKey := dt.Format(domain.TimestampLayout)
		forecast.WhHours[tsKey] = adjustedPower

		entry := domain.DetailedForecastEntry{
			PeriodStart:        tsKey,
			PVEstimate:         roundTo(adjustedPower/1000, 4),
			PVEstimateClearSky: roundTo(clearSkyPower/1000, 4),
			SnowCovered:        hourSnowCovered,
		}
		if cloudFactor < CloudFactorClear {
			entry.CloudCoverage = roundTo((CloudFactorClear-cloudFactor)/(CloudFactorClear-CloudFactorOvercast)*100, 1)
		}
		forecast.Detailed = append(forecast.Detailed, entry)

		dayOffset := daysBetween(today, dateOf(dt))
		if dayOffset >= 0 && dayOffset < int(s.Days) {
			forecast.EnergyProductionDays[dayOffset] += adjustedPower
		}

		switch {
		case dateOf(dt).Equal(today):
			todayTotal += adjustedPower
			if !dt.Before(nowHour) {
				todayRemaining += adjustedPower
			}
			if adjustedPower > peakToday {
				peakToday = adjustedPower
				peak := dt
				peakTimeToday = &peak
			}
		case dateOf(dt).Equal(tomorrow):
			tomorrowTotal += adjustedPower
			if adjustedPower > peakTomorrow {
				peakTomorrow = adjustedPower
				peak := dt
				peakTimeTomorrow = &peak
			}
		}

		switch hourOffset {
		case 0:
			forecast.PowerProductionNow = roundTo(adjustedPower, 1)
			forecast.EnergyCurrentHour = roundTo(adjustedPower, 1)
		case 1:
			forecast.EnergyNextHour = roundTo(adjustedPower, 1)
		}
	}

	forecast.EnergyProductionToday = roundTo(todayTotal, 1)
	forecast.EnergyProductionTodayRemaining = roundTo(todayRemaining, 1)
	forecast.EnergyProductionTomorrow = roundTo(tomorrowTotal, 1)
	roundDays(forecast.EnergyProductionDays)
	forecast.PeakPowerToday = roundTo(peakToday, 1)
	forecast.PeakPowerTomorrow = roundTo(peakTomorrow, 1)
	forecast.PeakTimeToday = peakTimeToday
	forecast.PeakTimeTomorrow = peakTimeTomorrow

	return forecast
}

// ComputeTotal derives summary values from per-hour totals accumulated over
// all arrays.
func (s *ForecastService) ComputeTotal(totalWh map[string]float64, now time.Time) *domain.ArrayForecast {

	forecast := newArrayForecast()
	forecast.WhHours = totalWh

	today := dateOf(now)
	tomorrow := today.AddDate(0, 0, 1)
	nowHour := now.Truncate(time.Hour)

	var todayTotal, todayRemaining, tomorrowTotal float64
	var peakToday, peakTomorrow float64
	var peakTimeToday, peakTimeTomorrow *time.Time

	keys := make([]string, 0, len(totalWh))
	for ts := range totalWh {
		keys = append(keys, ts)
	}
	sort.Strings(keys)

	for i, ts := range keys {
		wh := totalWh[ts]
		dt, err := time.Parse(domain.TimestampLayout, ts)
		if err != nil {
			s.Logger.Warn("skipping total forecast entry with invalid timestamp", zap.String("timestamp", ts))
			continue
		}
		dt = dt.In(now.Location())

		forecast.Detailed = append(forecast.Detailed, domain.DetailedForecastEntry{
			PeriodStart: ts,
			PVEstimate:  roundTo(wh/1000, 4),
		})

		dayOffset := daysBetween(today, dateOf(dt))
		if dayOffset >= 0 && dayOffset < int(s.Days) {
			forecast.EnergyProductionDays[dayOffset] += wh
		}

		switch {
		case dateOf(dt).Equal(today):
			todayTotal += wh
			if !dt.Before(nowHour) {
				todayRemaining += wh
			}
			if wh > peakToday {
				peakToday = wh
				peak := dt
				peakTimeToday = &peak
			}
		case dateOf(dt).Equal(tomorrow):
			tomorrowTotal += wh
			if wh > peakTomorrow {
				peakTomorrow = wh
				peak := dt
				peakTimeTomorrow = &peak
			}
		}

		switch i {
		case 0:
			forecast.PowerProductionNow = roundTo(wh, 1)
			forecast.EnergyCurrentHour = roundTo(wh, 1)
		case 1:
			forecast.EnergyNextHour = roundTo(wh, 1)
		}
	}

	forecast.EnergyProductionToday = roundTo(todayTotal, 1)
	forecast.EnergyProductionTodayRemaining = roundTo(todayRemaining, 1)
	forecast.EnergyProductionTomorrow = roundTo(tomorrowTotal, 1)
	roundDays(forecast.EnergyProductionDays)
	forecast.PeakPowerToday = roundTo(peakToday, 1)
	forecast.PeakPowerTomorrow = roundTo(peakTomorrow, 1)
	forecast.PeakTimeToday = peakTimeToday
	forecast.PeakTimeTomorrow = peakTimeTomorrow

	return forecast
}

// PruneSnapshots drops snapshots older than the retention window.
func PruneSnapshots(snapshots []domain.ForecastSnapshot, retentionDays uint, now time.Time) []domain.ForecastSnapshot {
	cutoff := now.AddDate(0, 0, -int(retentionDays))
	kept := make([]domain.ForecastSnapshot, 0, len(snapshots))
	for _, s := range snapshots {
		if !s.Timestamp.Before(cutoff) {
			kept = append(kept, s)
		}
	}
	return kept
}

// EnergyWhHours merges the current total forecast with past hours recovered
// from historical snapshots, so consumers can compare forecasts against
// actual production.
func EnergyWhHours(total *domain.ArrayForecast, snapshots []domain.ForecastSnapshot, now time.Time) map[string]float64 {
	whHours := map[string]float64{}
	if total != nil {
		for ts, wh := range total.WhHours {
			whHours[ts] = wh
		}
	}

	nowHour := now.Truncate(time.Hour)
	for _, snapshot := range snapshots {
		for ts, wh := range snapshot.WhHours {
			if _, ok := whHours[ts]; ok {
				continue
			}
			dt, err := time.Parse(domain.TimestampLayout, ts)
			if err != nil {
				continue
			}
			if dt.Truncate(time.Hour).Before(nowHour) {
				whHours[ts] = wh
			}
		}
	}

	return whHours
}

func newArrayForecast() *domain.ArrayForecast {
	return &domain.ArrayForecast{
		WhHours:              map[string]float64{},
		EnergyProductionDays: map[int]float64{},
	}
}

func roundDays(days map[int]float64) {
	for d, v := range days {
		days[d] = roundTo(v, 1)
	}
}

func roundTo(v float64, decimals int) float64 {
	factor := math.Pow(10, float64(decimals))
	return math.Round(v*factor) / factor
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func daysBetween(from, to time.Time) int {
	return int(math.Round(to.Sub(from).Hours() / 24))
}

// lookupHour fetches a map value tolerating location pointer differences in
// the keys.
func lookupHour(m map[time.Time]float64, t time.Time) (float64, bool) {
	if v, ok := m[t]; ok {
		return v, true
	}
	for ts, v := range m {
		if ts.Equal(t) {
			return v, true
		}
	}
	return 0, false
}

func closestValue(m map[time.Time]float64, t time.Time) float64 {
	var best float64
	bestDiff := time.Duration(math.MaxInt64)
	for ts, v := range m {
		diff := t.Sub(ts)
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff {
			bestDiff = diff
			best = v
		}
	}
	return best
}
