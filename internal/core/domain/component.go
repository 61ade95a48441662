package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/carlmjohnson/versioninfo"
)

type Device struct {
	Id           string
	Name         string
	Version      string
	Model        string
	Manufacturer string
	ViaDevice    string
}

type GenericSensor struct {
	Device            Device
	Id                string
	SensorType        string
	Name              string
	UniqueId          string
	UnitOfMeasurement string
	StateClass        string // measurement, duration, total_increasing (for acc energy)
	DeviceClass       string // voltage, current, power, energy
	EntityCategory    string // diagnostic, config, nil
	EnabledByDefault  *bool
	Icon              string
	WithAttributes    bool
}

type GenericSwitch struct {
	Device   Device
	Id       string
	Name     string
	UniqueId string
	Icon     string
}

const (
	SENSOR_ID_BRIDGE_STATE                     = "bridge"
	SENSOR_ID_ENERGY_TODAY                     = "energy_production_today"
	SENSOR_ID_ENERGY_TODAY_REMAINING           = "energy_production_today_remaining"
	SENSOR_ID_ENERGY_TOMORROW                  = "energy_production_tomorrow"
	SENSOR_ID_ENERGY_DAY_PREFIX                = "energy_production_day_"
	SENSOR_ID_POWER_NOW                        = "power_production_now"
	SENSOR_ID_ENERGY_CURRENT_HOUR              = "energy_current_hour"
	SENSOR_ID_ENERGY_NEXT_HOUR                 = "energy_next_hour"
	SENSOR_ID_PEAK_POWER_TODAY                 = "peak_power_today"
	SENSOR_ID_PEAK_POWER_TOMORROW              = "peak_power_tomorrow"
	SENSOR_ID_PEAK_TIME_TODAY                  = "power_highest_peak_time_today"
	SENSOR_ID_PEAK_TIME_TOMORROW               = "power_highest_peak_time_tomorrow"
	SENSOR_ID_CLOUD_COVERAGE                   = "cloud_coverage"
	SENSOR_ID_WEATHER_AVAILABLE                = "weather_available"
	SENSOR_ID_CLEAR_SKY_POWER_NOW              = "clear_sky_power_now"
	SENSOR_ID_CLEAR_SKY_ENERGY_TODAY           = "clear_sky_energy_today"
	SENSOR_ID_SNOW_COVERED                     = "snow_covered"
	SWITCH_ID_SNOW_OVERRIDE                    = "snow_override"

	STATE_CLASS_MEASUREMENT      = "measurement"
	STATE_CLASS_TOTAL_INCREASING = "total_increasing"
	DEVICE_CLASS_ENERGY          = "energy"
	DEVICE_CLASS_POWER           = "power"
	DEVICE_CLASS_TIMESTAMP       = "timestamp"
	DEVICE_CLASS_CONNECTIVITY    = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC      = "diagnostic"
	SENSOR_TYPE_SENSOR           = "sensor"
	SENSOR_TYPE_BINARY           = "binary_sensor"
)

// ForecastDayCount is the number of forecasted days exposed as sensors.
const ForecastDayCount = 7

func EnergyDaySensorId(day int) string {
	return fmt.Sprintf("%s%d", SENSOR_ID_ENERGY_DAY_PREFIX, day)
}

func ArraySensorId(arrayName, sensorId string) string {
	return fmt.Sprintf("%s_%s", arrayName, sensorId)
}

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("pvgis2mqtt_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "nijel",
		Model:        "PVGIS2MQTT",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("PVGIS2MQTT %s", md5HashShort(baseTopic)),
	}
}

func ForecastDevice(baseTopic string, bridge Device) Device {
	return Device{
		Id:           fmt.Sprintf("pvgis_forecast_%s", md5HashShort(baseTopic)),
		Manufacturer: "nijel",
		Model:        "PVGIS Solar Forecast",
		Version:      versioninfo.Short(),
		Name:         "Solar forecast",
		ViaDevice:    bridge.Id,
	}
}

func ArrayDevice(baseTopic, arrayName string, bridge Device) Device {
	return Device{
		Id:           fmt.Sprintf("pvgis_array_%s_%s", arrayName, md5HashShort(baseTopic)),
		Manufacturer: "nijel",
		Model:        "PVGIS Solar Forecast",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Solar array %s", arrayName),
		ViaDevice:    bridge.Id,
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

// ForecastSensors builds the production sensor set for a device. With an
// empty prefix the ids address the plant total, otherwise one array.
func ForecastSensors(device Device, prefix string) []GenericSensor {

	var sensors []GenericSensor

	id := func(sensorId string) string {
		if prefix == "" {
			return sensorId
		}
		return ArraySensorId(prefix, sensorId)
	}

	energySensor := func(sensorId, name string) GenericSensor {
		return GenericSensor{
			Device:            device,
			Id:                id(sensorId),
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              name,
			StateClass:        STATE_CLASS_MEASUREMENT,
			DeviceClass:       DEVICE_CLASS_ENERGY,
			UnitOfMeasurement: "Wh",
			UniqueId:          uniqueId(device.Id, id(sensorId)),
		}
	}
	powerSensor := func(sensorId, name string) GenericSensor {
		return GenericSensor{
			Device:            device,
			Id:                id(sensorId),
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              name,
			StateClass:        STATE_CLASS_MEASUREMENT,
			DeviceClass:       DEVICE_CLASS_POWER,
			UnitOfMeasurement: "W",
			UniqueId:          uniqueId(device.Id, id(sensorId)),
		}
	}
	powerSensorWithDetail := func(sensorId, name string) GenericSensor {
		s := powerSensor(sensorId, name)
		s.WithAttributes = true
		return s
	}
	timestampSensor := func(sensorId, name string) GenericSensor {
		return GenericSensor{
			Device:      device,
			Id:          id(sensorId),
			SensorType:  SENSOR_TYPE_SENSOR,
			Name:        name,
			DeviceClass: DEVICE_CLASS_TIMESTAMP,
			UniqueId:    uniqueId(device.Id, id(sensorId)),
		}
	}

	sensors = append(sensors,
		energySensor(SENSOR_ID_ENERGY_TODAY, "Energy production today"),
		energySensor(SENSOR_ID_ENERGY_TODAY_REMAINING, "Energy production today remaining"),
		energySensor(SENSOR_ID_ENERGY_TOMORROW, "Energy production tomorrow"),
	)
	for day := 0; day < ForecastDayCount; day++ {
		sensors = append(sensors, energySensor(EnergyDaySensorId(day), fmt.Sprintf("Energy production day %d", day)))
	}
	sensors = append(sensors,
		powerSensorWithDetail(SENSOR_ID_POWER_NOW, "Power production now"),
		energySensor(SENSOR_ID_ENERGY_CURRENT_HOUR, "Energy current hour"),
		energySensor(SENSOR_ID_ENERGY_NEXT_HOUR, "Energy next hour"),
		powerSensor(SENSOR_ID_PEAK_POWER_TODAY, "Peak power today"),
		powerSensor(SENSOR_ID_PEAK_POWER_TOMORROW, "Peak power tomorrow"),
		timestampSensor(SENSOR_ID_PEAK_TIME_TODAY, "Highest peak time today"),
		timestampSensor(SENSOR_ID_PEAK_TIME_TOMORROW, "Highest peak time tomorrow"),
	)

	return sensors
}

// DiagnosticSensors builds the plant-wide diagnostic sensor set.
func DiagnosticSensors(device Device) []GenericSensor {

	var sensors []GenericSensor

	sensors = append(sensors, GenericSensor{
		Device:            device,
		Id:                SENSOR_ID_CLOUD_COVERAGE,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Cloud coverage used",
		StateClass:        STATE_CLASS_MEASUREMENT,
		UnitOfMeasurement: "%",
		EntityCategory:    ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:          uniqueId(device.Id, SENSOR_ID_CLOUD_COVERAGE),
		Icon:              "mdi:weather-cloudy",
	})
	sensors = append(sensors, GenericSensor{
		Device:         device,
		Id:             SENSOR_ID_WEATHER_AVAILABLE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Weather source available",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(device.Id, SENSOR_ID_WEATHER_AVAILABLE),
	})
	sensors = append(sensors, clearSkySensors(device, "")...)

	return sensors
}

// ArrayExtraSensors builds the per-array diagnostics on top of the forecast
// sensor set.
func ArrayExtraSensors(device Device, arrayName string) []GenericSensor {

	sensors := clearSkySensors(device, arrayName)

	snowId := ArraySensorId(arrayName, SENSOR_ID_SNOW_COVERED)
	sensors = append(sensors, GenericSensor{
		Device:         device,
		Id:             snowId,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Snow covered",
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(device.Id, snowId),
		Icon:           "mdi:snowflake",
	})

	return sensors
}

func clearSkySensors(device Device, prefix string) []GenericSensor {

	var sensors []GenericSensor

	powerId := SENSOR_ID_CLEAR_SKY_POWER_NOW
	energyId := SENSOR_ID_CLEAR_SKY_ENERGY_TODAY
	if prefix != "" {
		powerId = ArraySensorId(prefix, powerId)
		energyId = ArraySensorId(prefix, energyId)
	}

	sensors = append(sensors, GenericSensor{
		Device:            device,
		Id:                powerId,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Clear sky power now",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		EntityCategory:    ENTITY_CLASS_DIAGNOSTIC,
		EnabledByDefault:  optionalBool(false),
		UniqueId:          uniqueId(device.Id, powerId),
		Icon:              "mdi:weather-sunny",
	})
	sensors = append(sensors, GenericSensor{
		Device:            device,
		Id:                energyId,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Clear sky energy today",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_ENERGY,
		UnitOfMeasurement: "kWh",
		EntityCategory:    ENTITY_CLASS_DIAGNOSTIC,
		EnabledByDefault:  optionalBool(false),
		UniqueId:          uniqueId(device.Id, energyId),
		Icon:              "mdi:weather-sunny",
	})

	return sensors
}

// SnowOverrideSwitch forces the snow state of one array.
func SnowOverrideSwitch(device Device, arrayName string) GenericSwitch {
	id := ArraySensorId(arrayName, SWITCH_ID_SNOW_OVERRIDE)
	return GenericSwitch{
		Device:   device,
		Id:       id,
		Name:     "Snow override",
		UniqueId: uniqueId(device.Id, id),
		Icon:     "mdi:snowflake-alert",
	}
}

// BridgeStateSensor exposes the bridge connectivity state.
func BridgeStateSensor(bridgeDevice Device) GenericSensor {
	return GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Bridge state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	}
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}
