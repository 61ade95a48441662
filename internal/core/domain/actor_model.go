package domain

import (
	"time"

	"github.com/nijel/pvgis2mqtt/internal/adapter/weather"
	"github.com/nijel/pvgis2mqtt/pkg/pvgis"
)

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_PVGIS        = "pvgis"
	ACTOR_ID_WEATHER      = "weather"
	ACTOR_ID_FORECAST     = "forecast"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

type GetSeriesRequest struct {
	ActorRequestMixIn
	// ForceRefresh bypasses the monthly cache.
	ForceRefresh bool
}

type GetSeriesResponse struct {
	ActorResponseMixIn
	Series map[string]*pvgis.Series
}

type GetWeatherRequest struct {
	ActorRequestMixIn
}

type GetWeatherResponse struct {
	ActorResponseMixIn
	Forecast  weather.HourlyForecast
	Available bool
}

type GetForecastRequest struct {
	ActorRequestMixIn
}

type GetForecastResponse struct {
	ActorResponseMixIn
	Forecast *ForecastData
}

type GetEnergyForecastRequest struct {
	ActorRequestMixIn
}

type GetEnergyForecastResponse struct {
	ActorResponseMixIn
	// WhHours includes past hours back-filled from historical snapshots.
	WhHours map[string]float64
}

type RefreshForecastRequest struct {
	ActorRequestMixIn
}

type RefreshForecastResponse struct {
	ActorResponseMixIn
	Forecast *ForecastData
}

type SnowOverrideRequest struct {
	ActorRequestMixIn
	Array string
	// Covered forces snow state. A nil value returns to automatic detection.
	Covered *bool
}

type SnowOverrideResponse struct {
	ActorResponseMixIn
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors  []GenericSensor
	Switches []GenericSwitch
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}

// ForecastTick triggers a forecast recomputation.
type ForecastTick struct {
	At time.Time
}
