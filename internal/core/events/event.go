package events

import (
	"encoding/json"
	"time"

	. "github.com/nijel/pvgis2mqtt/internal/core/domain"
)

// ForecastToUpdateEvents maps a full forecast run to sensor update events,
// one set for the plant total and one per array.
func ForecastToUpdateEvents(data *ForecastData) []any {
	var events []any

	if data.Total != nil {
		events = append(events, arrayForecastToUpdateEvents(data.Total, "")...)
		events = append(events, clearSkyToUpdateEvents(data.Total, "")...)
	}

	for name, forecast := range data.Arrays {
		events = append(events, arrayForecastToUpdateEvents(forecast, name)...)
		events = append(events, clearSkyToUpdateEvents(forecast, name)...)
		events = append(events, BinarySensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: ArraySensorId(name, SENSOR_ID_SNOW_COVERED),
			},
			Value: forecast.SnowCovered,
		})
	}

	if data.CloudCoverageUsed != nil {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_CLOUD_COVERAGE,
			},
			Value:    *data.CloudCoverageUsed,
			Decimals: 0,
		})
	}
	events = append(events, BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_WEATHER_AVAILABLE,
		},
		Value: data.WeatherAvailable,
	})

	return events
}

// SnowOverridesToUpdateEvents reflects the manual override switches back to
// their state topics. An active override reads "on".
func SnowOverridesToUpdateEvents(arrays []string, overrides map[string]*bool) []any {
	var events []any
	for _, name := range arrays {
		override := overrides[name]
		events = append(events, SwitchSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: ArraySensorId(name, SWITCH_ID_SNOW_OVERRIDE),
			},
			Value: override != nil && *override,
		})
	}
	return events
}

func arrayForecastToUpdateEvents(forecast *ArrayForecast, prefix string) []any {
	var events []any

	id := func(sensorId string) string {
		if prefix == "" {
			return sensorId
		}
		return ArraySensorId(prefix, sensorId)
	}
	energyEvent := func(sensorId string, value float64) FloatSensorUpdateEvent {
		return FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: id(sensorId),
			},
			Value:    value,
			Decimals: 1,
		}
	}
	powerEvent := func(sensorId string, value float64) FloatSensorUpdateEvent {
		return FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: id(sensorId),
			},
			Value:    value,
			Decimals: 0,
		}
	}

	events = append(events,
		energyEvent(SENSOR_ID_ENERGY_TODAY, forecast.EnergyProductionToday),
		energyEvent(SENSOR_ID_ENERGY_TODAY_REMAINING, forecast.EnergyProductionTodayRemaining),
		energyEvent(SENSOR_ID_ENERGY_TOMORROW, forecast.EnergyProductionTomorrow),
	)
	for day := 0; day < ForecastDayCount; day++ {
		events = append(events, energyEvent(EnergyDaySensorId(day), forecast.EnergyProductionDays[day]))
	}
	events = append(events,
		powerEvent(SENSOR_ID_POWER_NOW, forecast.PowerProductionNow),
		energyEvent(SENSOR_ID_ENERGY_CURRENT_HOUR, forecast.EnergyCurrentHour),
		energyEvent(SENSOR_ID_ENERGY_NEXT_HOUR, forecast.EnergyNextHour),
		powerEvent(SENSOR_ID_PEAK_POWER_TODAY, forecast.PeakPowerToday),
		powerEvent(SENSOR_ID_PEAK_POWER_TOMORROW, forecast.PeakPowerTomorrow),
	)
	if forecast.PeakTimeToday != nil {
		events = append(events, peakTimeEvent(id(SENSOR_ID_PEAK_TIME_TODAY), *forecast.PeakTimeToday))
	}
	if forecast.PeakTimeTomorrow != nil {
		events = append(events, peakTimeEvent(id(SENSOR_ID_PEAK_TIME_TOMORROW), *forecast.PeakTimeTomorrow))
	}
	if len(forecast.Detailed) > 0 {
		if attrs := detailedForecastAttributes(forecast); attrs != "" {
			events = append(events, AttributesSensorUpdateEvent{
				SensorUpdateEventMixIn: SensorUpdateEventMixIn{
					Id: id(SENSOR_ID_POWER_NOW),
				},
				JSON: attrs,
			})
		}
	}

	return events
}

func clearSkyToUpdateEvents(forecast *ArrayForecast, prefix string) []any {
	powerId := SENSOR_ID_CLEAR_SKY_POWER_NOW
	energyId := SENSOR_ID_CLEAR_SKY_ENERGY_TODAY
	if prefix != "" {
		powerId = ArraySensorId(prefix, powerId)
		energyId = ArraySensorId(prefix, energyId)
	}
	return []any{
		FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: powerId,
			},
			Value:    forecast.ClearSkyPowerNow,
			Decimals: 0,
		},
		FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: energyId,
			},
			Value:    forecast.ClearSkyEnergyToday,
			Decimals: 2,
		},
	}
}

func peakTimeEvent(sensorId string, at time.Time) TextSensorUpdateEvent {
	return TextSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: sensorId,
		},
		Value: at.Format(TimestampLayout),
	}
}

func detailedForecastAttributes(forecast *ArrayForecast) string {
	doc := struct {
		Detailed []DetailedForecastEntry `json:"detailed_forecast"`
	}{
		Detailed: forecast.Detailed,
	}
	bytes, err := json.Marshal(doc)
	if err != nil {
		return ""
	}
	return string(bytes)
}
