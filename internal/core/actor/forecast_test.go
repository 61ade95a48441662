package actor

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	adactor "github.com/nijel/pvgis2mqtt/internal/adapter/actor"
	"github.com/nijel/pvgis2mqtt/internal/adapter/store"
	"github.com/nijel/pvgis2mqtt/internal/core/domain"
	"github.com/nijel/pvgis2mqtt/internal/util"
	"github.com/nijel/pvgis2mqtt/pkg/pvgis"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestForecastActorCycle(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	cfg.StateFile = filepath.Join(t.TempDir(), "state.json")

	logger := zap.Must(zap.NewDevelopment())

	as := actor.NewActorSystem()
	context := as.Root

	pvgisPID := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewPVGISActor(&cfg, pvgis.TestClient{}, logger)
	}))
	weatherPID := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewWeatherActor(false, nil, nil, logger)
	}))

	es := &eventstream.EventStream{}

	var mu sync.Mutex
	seen := map[string]bool{}
	sub := es.Subscribe(func(evt any) {
		if sensorEvt, ok := evt.(domain.SensorUpdateEvent); ok {
			mu.Lock()
			seen[sensorEvt.SensorId()] = true
			mu.Unlock()
		}
	})
	defer es.Unsubscribe(sub)

	stateStore := store.NewFileStateStore(cfg.StateFile, logger)

	pid := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewForecastActor(&cfg, pvgisPID, weatherPID, es, stateStore, logger)
	}))

	time.Sleep(2 * time.Second)

	result, err := context.RequestFuture(pid, domain.GetForecastRequest{}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.GetForecastResponse)
	if !assert.NotNil(resp.Forecast) {
		return
	}
	assert.Len(resp.Forecast.Arrays, len(cfg.Arrays))
	assert.False(resp.Forecast.WeatherAvailable)
	assert.NotEmpty(resp.Forecast.Total.WhHours)

	mu.Lock()
	assert.True(seen[domain.SENSOR_ID_ENERGY_TODAY], "total energy sensor published")
	assert.True(seen[domain.SENSOR_ID_POWER_NOW], "total power sensor published")
	assert.True(seen[domain.SENSOR_ID_WEATHER_AVAILABLE], "weather availability published")
	mu.Unlock()

	energyResult, err := context.RequestFuture(pid, domain.GetEnergyForecastRequest{}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	energyResp := energyResult.(domain.GetEnergyForecastResponse)
	assert.NotEmpty(energyResp.WhHours)

	context.Stop(pid)
	context.Stop(weatherPID)
	context.Stop(pvgisPID)

	as.Shutdown()
}

func TestForecastActorSnowOverride(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	cfg.StateFile = filepath.Join(t.TempDir(), "state.json")

	logger := zap.Must(zap.NewDevelopment())

	as := actor.NewActorSystem()
	context := as.Root

	pvgisPID := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewPVGISActor(&cfg, pvgis.TestClient{}, logger)
	}))
	weatherPID := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewWeatherActor(false, nil, nil, logger)
	}))

	es := &eventstream.EventStream{}
	stateStore := store.NewFileStateStore(cfg.StateFile, logger)

	pid := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewForecastActor(&cfg, pvgisPID, weatherPID, es, stateStore, logger)
	}))

	time.Sleep(2 * time.Second)

	arrayName := cfg.Arrays[0].Name
	covered := true

	result, err := context.RequestFuture(pid, domain.SnowOverrideRequest{
		Array:   arrayName,
		Covered: &covered,
	}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.SnowOverrideResponse)
	assert.Nil(resp.ResponseError)

	// wait for the recompute the override triggers
	time.Sleep(2 * time.Second)

	forecastResult, err := context.RequestFuture(pid, domain.GetForecastRequest{}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	forecastResp := forecastResult.(domain.GetForecastResponse)
	if assert.NotNil(forecastResp.Forecast) {
		assert.True(forecastResp.Forecast.Arrays[arrayName].SnowCovered, "forced snow cover applied")
	}

	// unknown array names are rejected
	result, err = context.RequestFuture(pid, domain.SnowOverrideRequest{
		Array:   "does_not_exist",
		Covered: &covered,
	}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp = result.(domain.SnowOverrideResponse)
	assert.NotNil(resp.ResponseError)

	context.Stop(pid)
	context.Stop(weatherPID)
	context.Stop(pvgisPID)

	as.Shutdown()
}
