package actor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nijel/pvgis2mqtt/internal/adapter/weather"
	"github.com/nijel/pvgis2mqtt/internal/core/domain"
	"github.com/nijel/pvgis2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeProvider struct {
	name     string
	forecast weather.HourlyForecast
	err      error
}

func (p fakeProvider) Name() string {
	return p.name
}

func (p fakeProvider) Forecast(ctx context.Context) (weather.HourlyForecast, error) {
	return p.forecast, p.err
}

func hourlyForecastAt(ts time.Time, cloudCover float64) weather.HourlyForecast {
	f := weather.NewHourlyForecast()
	f.CloudCover[ts] = cloudCover
	f.Temperature[ts] = 10
	return f
}

func TestGetWeatherActor(t *testing.T) {

	assert := assert.New(t)

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	now := time.Now().Truncate(time.Hour)
	primary := fakeProvider{name: "primary", forecast: hourlyForecastAt(now, 42)}

	props := actor.PropsFromProducer(func() actor.Actor { return NewWeatherActor(true, primary, nil, logger) })
	pid := context.Spawn(props)

	time.Sleep(1 * time.Second)

	result, err := context.RequestFuture(pid, domain.GetWeatherRequest{}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.GetWeatherResponse)

	assert.True(resp.Available)
	assert.Equal(42.0, resp.Forecast.CloudCover[now])

	context.Stop(pid)

	as.Shutdown()
}

func TestGetWeatherPrimaryWinsActor(t *testing.T) {

	assert := assert.New(t)

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	now := time.Now().Truncate(time.Hour)
	later := now.Add(6 * time.Hour)

	primary := fakeProvider{name: "primary", forecast: hourlyForecastAt(now, 20)}
	secondaryForecast := hourlyForecastAt(now, 80)
	secondaryForecast.CloudCover[later] = 55
	secondary := fakeProvider{name: "secondary", forecast: secondaryForecast}

	props := actor.PropsFromProducer(func() actor.Actor { return NewWeatherActor(true, primary, secondary, logger) })
	pid := context.Spawn(props)

	time.Sleep(1 * time.Second)

	result, err := context.RequestFuture(pid, domain.GetWeatherRequest{}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.GetWeatherResponse)

	assert.True(resp.Available)
	// the primary value wins for shared hours, the secondary fills gaps
	assert.Equal(20.0, resp.Forecast.CloudCover[now])
	assert.Equal(55.0, resp.Forecast.CloudCover[later])

	context.Stop(pid)

	as.Shutdown()
}

func TestGetWeatherPrimaryFailureActor(t *testing.T) {

	assert := assert.New(t)

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	now := time.Now().Truncate(time.Hour)
	primary := fakeProvider{name: "primary", err: errors.New("weather api down")}
	secondary := fakeProvider{name: "secondary", forecast: hourlyForecastAt(now, 65)}

	props := actor.PropsFromProducer(func() actor.Actor { return NewWeatherActor(true, primary, secondary, logger) })
	pid := context.Spawn(props)

	time.Sleep(1 * time.Second)

	result, err := context.RequestFuture(pid, domain.GetWeatherRequest{}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.GetWeatherResponse)

	assert.True(resp.Available)
	assert.Equal(65.0, resp.Forecast.CloudCover[now])

	context.Stop(pid)

	as.Shutdown()
}

func TestGetWeatherDisabledActor(t *testing.T) {

	assert := assert.New(t)

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	props := actor.PropsFromProducer(func() actor.Actor { return NewWeatherActor(false, nil, nil, logger) })
	pid := context.Spawn(props)

	time.Sleep(1 * time.Second)

	result, err := context.RequestFuture(pid, domain.GetWeatherRequest{}, 5*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.GetWeatherResponse)

	assert.False(resp.Available)
	assert.True(resp.Forecast.Empty())

	context.Stop(pid)

	as.Shutdown()
}
