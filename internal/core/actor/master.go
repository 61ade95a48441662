package actor

import (
	"fmt"
	"log"
	"time"

	adactor "github.com/nijel/pvgis2mqtt/internal/adapter/actor"
	"github.com/nijel/pvgis2mqtt/internal/config"
	"github.com/nijel/pvgis2mqtt/internal/core/domain"
	"github.com/nijel/pvgis2mqtt/internal/core/port"
	. "github.com/nijel/pvgis2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

type PVGISActorProvider func() *adactor.PVGISActor

type WeatherActorProvider func() *adactor.WeatherActor

type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck   healthCheckResult
	eventStream          *eventstream.EventStream
	pvgisActor           *actor.PID
	weatherActor         *actor.PID
	mqttActor            *actor.PID
	forecastActor        *actor.PID
	stateStore           port.StateStore
	pvgisActorProvider   PVGISActorProvider
	weatherActorProvider WeatherActorProvider
	mqttActorProvider    MQTTActorProvider
	logger               *zap.Logger
}

type healthCheckResult struct {
	pvgisActorHealthy    bool
	weatherActorHealthy  bool
	mqttActorHealthy     bool
	forecastActorHealthy bool
	checksReceived       int
	respondTo            *actor.PID
}

func NewMasterOfPuppetsActor(config config.Config, pvgisActorProvider PVGISActorProvider,
	weatherActorProvider WeatherActorProvider, mqttActorProvider MQTTActorProvider,
	stateStore port.StateStore, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:               config,
		behavior:             actor.NewBehavior(),
		stash:                &Stash{},
		logger:               ActorLogger("master", logger),
		eventStream:          &eventstream.EventStream{},
		stateStore:           stateStore,
		pvgisActorProvider:   pvgisActorProvider,
		weatherActorProvider: weatherActorProvider,
		mqttActorProvider:    mqttActorProvider,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		state.currentHealthCheck = healthCheckResult{}
		state.currentHealthCheck.reset()

		// start PVGIS child
		pvgisActorPID, err := state.startPVGISActor(ctx)
		if err != nil {
			panic(err)
		}
		state.pvgisActor = pvgisActorPID

		// start Weather child
		weatherActorPID, err := state.startWeatherActor(ctx)
		if err != nil {
			panic(err)
		}
		state.weatherActor = weatherActorPID

		// start MQTT child
		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		// start Forecast child
		forecastActorPID, err := state.startForecastActor(ctx)
		if err != nil {
			panic(err)
		}
		state.forecastActor = forecastActorPID

		// start HA Discovery
		if state.config.MQTT.HADiscoveryEnable {
			_, err := state.startHADiscoveryActor(ctx)
			if err != nil {
				panic(err)
			}
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ctx.Sender()
		// PVGIS Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.pvgisActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_PVGIS,
				Healthy: false,
			}
		})
		// Weather Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.weatherActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_WEATHER,
				Healthy: false,
			}
		})
		// MQTT Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		// Forecast Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.forecastActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_FORECAST,
				Healthy: false,
			}
		})

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case adactor.ParsedCommand:
		// redirect parsedCommand to actor
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil {
			cmd, err := ParsedMQTTCommandToCommand(*msg.Command)
			if err == nil && cmd != nil {
				switch pcmd := cmd.(type) {
				case domain.SnowOverrideRequest:
					ctx.Send(state.forecastActor, pcmd)
				}
			}
		}
	case domain.GetForecastRequest:
		ctx.Forward(state.forecastActor)
	case domain.GetEnergyForecastRequest:
		ctx.Forward(state.forecastActor)
	case domain.RefreshForecastRequest:
		ctx.Forward(state.forecastActor)
	case domain.SnowOverrideRequest:
		ctx.Forward(state.forecastActor)
	default:
		state.logger.Debug("master@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		if msg.Healthy {
			switch msg.Id {
			case domain.ACTOR_ID_PVGIS:
				state.currentHealthCheck.pvgisActorHealthy = true
			case domain.ACTOR_ID_WEATHER:
				state.currentHealthCheck.weatherActorHealthy = true
			case domain.ACTOR_ID_MQTT:
				state.currentHealthCheck.mqttActorHealthy = true
			case domain.ACTOR_ID_FORECAST:
				state.currentHealthCheck.forecastActorHealthy = true
			}
		}
		if state.currentHealthCheck.allReceived() {

			state.currentHealthCheck.respond(ctx)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) startPVGISActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	pvgisProps := actor.PropsFromProducer(func() actor.Actor {
		return state.pvgisActorProvider()
	}, actor.WithSupervisor(supervisor))
	pvgisActorPID, err := ctx.SpawnNamed(pvgisProps, domain.ACTOR_ID_PVGIS)
	if err != nil {
		return nil, err
	}

	return pvgisActorPID, nil
}

func (state *MasterOfPuppetsActor) startWeatherActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	weatherProps := actor.PropsFromProducer(func() actor.Actor {
		return state.weatherActorProvider()
	}, actor.WithSupervisor(supervisor))
	weatherActorPID, err := ctx.SpawnNamed(weatherProps, domain.ACTOR_ID_WEATHER)
	if err != nil {
		return nil, err
	}

	return weatherActorPID, nil
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	mqttActorPID, err := ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
	if err != nil {
		return nil, err
	}

	return mqttActorPID, nil
}

func (state *MasterOfPuppetsActor) startForecastActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	forecastProps := actor.PropsFromProducer(func() actor.Actor {
		return NewForecastActor(&state.config, state.pvgisActor, state.weatherActor, state.eventStream, state.stateStore, state.logger)
	}, actor.WithSupervisor(supervisor))
	forecastActorPID, err := ctx.SpawnNamed(forecastProps, domain.ACTOR_ID_FORECAST)
	if err != nil {
		return nil, err
	}

	return forecastActorPID, nil
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&state.config, state.forecastActor, state.mqttActor, state.logger)
	}, actor.WithSupervisor(supervisor))
	haDiscPID, err := ctx.SpawnNamed(haDiscProps, domain.ACTOR_ID_HA_DISCOVERY)
	if err != nil {
		return nil, err
	}

	return haDiscPID, nil
}

func (state *healthCheckResult) reset() {
	state.pvgisActorHealthy = false
	state.weatherActorHealthy = false
	state.mqttActorHealthy = false
	state.forecastActorHealthy = false
	state.checksReceived = 0
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived == 4
}

func (state *healthCheckResult) allHealthy() bool {
	return state.pvgisActorHealthy && state.weatherActorHealthy &&
		state.mqttActorHealthy && state.forecastActorHealthy
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      "master",
		Healthy: state.allHealthy(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
