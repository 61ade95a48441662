package util

import (
	"github.com/nijel/pvgis2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Location: config.LocationConfig{
			Latitude:  48.2,
			Longitude: 16.37,
		},
		Arrays: []config.ArrayConfig{
			{
				Name:          "south",
				Declination:   30,
				Azimuth:       0,
				ModulesPower:  5,
				Loss:          14,
				MountingPlace: "free",
				PVTech:        "crystsi",
			},
		},
		MQTT: config.MQTTConfig{
			Host: "localhost",
			Port: 1883,
		},
		WeatherConfig: config.WeatherConfig{
			Enable: true,
		},
		ForecastConfig: config.ForecastConfig{
			Days:                   7,
			RefreshIntervalMinutes: 30,
			StartupRetryMinutes:    1,
			PVGISRefreshDays:       30,
			HistoricalDays:         7,
		},
		StateFile: "/tmp/pvgis2mqtt_test_state.json",
		Port:      8080,
	}
}
