package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/nijel/pvgis2mqtt/internal/config"
	"github.com/nijel/pvgis2mqtt/internal/core/domain"
	"github.com/nijel/pvgis2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// HADiscoveryActor waits for the forecast and MQTT actors to come up, then
// publishes the Home Assistant discovery documents for the bridge, the plant
// total and every configured array.
type HADiscoveryActor struct {
	config               *config.Config
	behavior             actor.Behavior
	stash                *actorutil.Stash
	forecastActor        *actor.PID
	mqttActor            *actor.PID
	forecastActorHealthy bool
	mqttActorHealthy     bool
	healthyRecv          int

	logger *zap.Logger
}

func NewHADiscoveryActor(config *config.Config, forecastActor *actor.PID, mqttActor *actor.PID, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:        config,
		forecastActor: forecastActor,
		mqttActor:     mqttActor,
		behavior:      actor.NewBehavior(),
		stash:         &actorutil.Stash{},
		logger:        actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")

		// Check Forecast and MQTT actor healthy
		state.healthyRecv = 0
		state.forecastActorHealthy = false
		state.mqttActorHealthy = false
		// Forecast Actor Request
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.forecastActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_FORECAST,
				Healthy: false,
			}
		})
		// MQTT Actor Request
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("hadiscovery@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.healthyRecv++
		if msg.Healthy {
			switch msg.Id {
			case domain.ACTOR_ID_FORECAST:
				state.forecastActorHealthy = true
			case domain.ACTOR_ID_MQTT:
				state.mqttActorHealthy = true
			}
		}
		if state.healthyRecv == 2 {

			if state.forecastActorHealthy && state.mqttActorHealthy {
				state.publishDiscovery(ctx)
				state.behavior.Become(state.Done)
				state.stash.UnstashAll(ctx)
			} else {
				panic(errors.New("MQTT Actor or Forecast Actor are not healthy"))
			}
		}
	default:
		state.logger.Debug("hadiscovery@healthcheck: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) Done(ctx actor.Context) {

}

func (state *HADiscoveryActor) publishDiscovery(ctx actor.Context) {
	var sensors []domain.GenericSensor
	var switches []domain.GenericSwitch

	baseTopic := state.config.MQTT.BaseTopic

	bridgeDevice := domain.BridgeDevice(baseTopic)
	sensors = append(sensors, domain.BridgeStateSensor(bridgeDevice))

	forecastDevice := domain.ForecastDevice(baseTopic, bridgeDevice)
	forecastSensors := domain.ForecastSensors(forecastDevice, "")
	forecastSensors = append(forecastSensors, domain.DiagnosticSensors(domain.IdDevice(forecastDevice))...)
	for i := range forecastSensors {
		if i > 0 {
			forecastSensors[i].Device = domain.IdDevice(forecastDevice)
		}
		sensors = append(sensors, forecastSensors[i])
	}

	for _, array := range state.config.Arrays {
		arrayDevice := domain.ArrayDevice(baseTopic, array.Name, bridgeDevice)
		arraySensors := domain.ForecastSensors(arrayDevice, array.Name)
		arraySensors = append(arraySensors, domain.ArrayExtraSensors(domain.IdDevice(arrayDevice), array.Name)...)
		for i := range arraySensors {
			if i > 0 {
				arraySensors[i].Device = domain.IdDevice(arrayDevice)
			}
			sensors = append(sensors, arraySensors[i])
		}
		switches = append(switches, domain.SnowOverrideSwitch(domain.IdDevice(arrayDevice), array.Name))
	}

	state.logger.Info("hadiscovery: publishing discovery",
		zap.Int("sensors", len(sensors)), zap.Int("switches", len(switches)))

	ctx.Send(state.mqttActor, domain.PublishDiscoveryRequest{
		Sensors:  sensors,
		Switches: switches,
	})
}
