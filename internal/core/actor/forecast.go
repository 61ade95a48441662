package actor

import (
	"fmt"
	"time"

	"github.com/nijel/pvgis2mqtt/internal/adapter/weather"
	"github.com/nijel/pvgis2mqtt/internal/config"
	"github.com/nijel/pvgis2mqtt/internal/core/domain"
	"github.com/nijel/pvgis2mqtt/internal/core/events"
	"github.com/nijel/pvgis2mqtt/internal/core/port"
	"github.com/nijel/pvgis2mqtt/internal/core/service"
	. "github.com/nijel/pvgis2mqtt/internal/util/actorutil"
	"github.com/nijel/pvgis2mqtt/pkg/pvgis"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

const seriesRequestTimeout = 5 * time.Minute

// ForecastActor drives the forecast cycle. On every tick it collects the
// cached PVGIS series and the weather forecast, recomputes the production
// forecast, publishes the sensor updates and persists the state. While the
// weather source has never been reachable it retries on a short interval.
type ForecastActor struct {
	behavior   actor.Behavior
	stash      *Stash
	scheduler  *scheduler.TimerScheduler
	cancelTick scheduler.CancelFunc

	config       *config.Config
	pvgisActor   *actor.PID
	weatherActor *actor.PID
	eventStream  *eventstream.EventStream
	service      *service.ForecastService
	store        port.StateStore

	current   *domain.ForecastData
	snapshots []domain.ForecastSnapshot
	overrides map[string]*bool

	cycleSeries  map[string]*pvgis.Series
	replyTargets []*actor.PID

	logger *zap.Logger
}

func NewForecastActor(config *config.Config, pvgisActor, weatherActor *actor.PID,
	eventStream *eventstream.EventStream, store port.StateStore, logger *zap.Logger) *ForecastActor {
	act := &ForecastActor{
		config:       config,
		pvgisActor:   pvgisActor,
		weatherActor: weatherActor,
		eventStream:  eventStream,
		service:      service.NewForecastService(config.ForecastConfig.Days, logger),
		store:        store,
		overrides:    map[string]*bool{},
		behavior:     actor.NewBehavior(),
		stash:        &Stash{},
		logger:       ActorLogger(domain.ACTOR_ID_FORECAST, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *ForecastActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *ForecastActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("forecast@default started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		state.restoreState()
		ctx.Send(ctx.Self(), domain.ForecastTick{At: time.Now()})
	case domain.ActorHealthRequest:
		state.logger.Debug("forecast@default ActorHealthRequest")
		healthState := "idle"
		if state.current == nil {
			healthState = "no forecast"
		}
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_FORECAST,
			Healthy: true,
			State:   healthState,
		})
	case domain.ForecastTick:
		state.logger.Debug("forecast@default tick")
		state.startCycle(ctx, nil)
	case domain.RefreshForecastRequest:
		state.logger.Debug("forecast@default RefreshForecastRequest")
		state.startCycle(ctx, ForRequest(msg).ReplyTo(ctx))
	case domain.SnowOverrideRequest:
		state.logger.Debug("forecast@default SnowOverrideRequest",
			zap.String("array", msg.Array), zap.Any("covered", msg.Covered))
		state.applySnowOverride(ctx, msg)
	case domain.GetForecastRequest:
		state.logger.Debug("forecast@default GetForecastRequest")
		ForRequest(msg).Respond(ctx, domain.GetForecastResponse{
			Forecast: state.current,
		})
	case domain.GetEnergyForecastRequest:
		state.logger.Debug("forecast@default GetEnergyForecastRequest")
		var total *domain.ArrayForecast
		if state.current != nil {
			total = state.current.Total
		}
		ForRequest(msg).Respond(ctx, domain.GetEnergyForecastResponse{
			WhHours: service.EnergyWhHours(total, state.snapshots, time.Now()),
		})
	default:
		state.logger.Debug("forecast@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *ForecastActor) startCycle(ctx actor.Context, replyTo *actor.PID) {
	if replyTo != nil {
		state.replyTargets = append(state.replyTargets, replyTo)
	}
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.pvgisActor, domain.GetSeriesRequest{}, seriesRequestTimeout), func(err error) any {
		return domain.GetSeriesResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
		}
	})
	state.behavior.BecomeStacked(state.WaitingSeries)
}

func (state *ForecastActor) WaitingSeries(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetSeriesResponse:
		if msg.HasResponseError() {
			state.logger.Error("forecast@waitingSeries series unavailable", zap.Error(msg.GetResponseError()))
			state.finishCycle(ctx, nil, msg.GetResponseError())
			return
		}
		state.logger.Debug("forecast@waitingSeries GetSeriesResponse", zap.Int("arrays", len(msg.Series)))
		state.cycleSeries = msg.Series
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.weatherActor, domain.GetWeatherRequest{}, seriesRequestTimeout), func(err error) any {
			return domain.GetWeatherResponse{
				Forecast:  weather.NewHourlyForecast(),
				Available: false,
			}
		})
		state.behavior.UnbecomeStacked()
		state.behavior.BecomeStacked(state.WaitingWeather)
	default:
		state.logger.Debug("forecast@waitingSeries stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *ForecastActor) WaitingWeather(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetWeatherResponse:
		state.logger.Debug("forecast@waitingWeather GetWeatherResponse", zap.Bool("available", msg.Available))
		state.computeForecast(ctx, msg.Forecast, msg.Available)
	default:
		state.logger.Debug("forecast@waitingWeather stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *ForecastActor) computeForecast(ctx actor.Context, wx weather.HourlyForecast, weatherAvailable bool) {
	now := time.Now()
	forecast := state.service.BuildForecast(state.cycleSeries, state.config.Arrays, wx, weatherAvailable, state.overrides, now)
	state.current = forecast

	if forecast.Total != nil {
		state.snapshots = append(state.snapshots, domain.ForecastSnapshot{
			Timestamp: now,
			WhHours:   forecast.Total.WhHours,
		})
		state.snapshots = service.PruneSnapshots(state.snapshots, state.config.ForecastConfig.HistoricalDays, now)
	}

	state.publishForecast(forecast)
	state.saveState()

	state.finishCycle(ctx, forecast, nil)

	if !weatherAvailable && state.config.WeatherConfig.Enable {
		state.scheduleTick(ctx, time.Duration(state.config.ForecastConfig.StartupRetryMinutes)*time.Minute)
	} else {
		state.scheduleTick(ctx, time.Duration(state.config.ForecastConfig.RefreshIntervalMinutes)*time.Minute)
	}
}

func (state *ForecastActor) finishCycle(ctx actor.Context, forecast *domain.ForecastData, err error) {
	for _, target := range state.replyTargets {
		ctx.Send(target, domain.RefreshForecastResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
			Forecast: forecast,
		})
	}
	state.replyTargets = nil
	state.cycleSeries = nil

	if err != nil {
		state.scheduleTick(ctx, time.Duration(state.config.ForecastConfig.StartupRetryMinutes)*time.Minute)
	}

	state.behavior.UnbecomeStacked()
	state.stash.UnstashAll(ctx)
}

func (state *ForecastActor) scheduleTick(ctx actor.Context, delay time.Duration) {
	if state.cancelTick != nil {
		state.cancelTick()
	}
	state.cancelTick = state.scheduler.RequestOnce(delay, ctx.Self(), domain.ForecastTick{At: time.Now().Add(delay)})
}

func (state *ForecastActor) applySnowOverride(ctx actor.Context, msg domain.SnowOverrideRequest) {
	known := false
	for _, array := range state.config.Arrays {
		if array.Name == msg.Array {
			known = true
			break
		}
	}
	if !known {
		ForRequest(msg).Respond(ctx, domain.SnowOverrideResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: fmt.Errorf("unknown array %q", msg.Array),
			},
		})
		return
	}

	if msg.Covered == nil {
		delete(state.overrides, msg.Array)
	} else {
		state.overrides[msg.Array] = msg.Covered
	}
	state.saveState()

	for _, ev := range events.SnowOverridesToUpdateEvents(state.arrayNames(), state.overrides) {
		state.eventStream.Publish(ev)
	}

	ForRequest(msg).Respond(ctx, domain.SnowOverrideResponse{})

	// recompute with the new override
	ctx.Send(ctx.Self(), domain.ForecastTick{At: time.Now()})
}

func (state *ForecastActor) publishForecast(forecast *domain.ForecastData) {
	for _, ev := range events.ForecastToUpdateEvents(forecast) {
		state.eventStream.Publish(ev)
	}
	for _, ev := range events.SnowOverridesToUpdateEvents(state.arrayNames(), state.overrides) {
		state.eventStream.Publish(ev)
	}
}

func (state *ForecastActor) restoreState() {
	if state.store == nil {
		return
	}
	persisted, err := state.store.Restore(time.Now())
	if err != nil {
		state.logger.Error("forecast: could not restore state", zap.Error(err))
		return
	}
	state.snapshots = persisted.Snapshots
	if persisted.SnowOverrides != nil {
		state.overrides = persisted.SnowOverrides
	}
	if persisted.Forecast != nil {
		state.logger.Info("forecast: restored persisted forecast",
			zap.Time("generated_at", persisted.Forecast.GeneratedAt))
		state.current = persisted.Forecast
		state.publishForecast(persisted.Forecast)
	}
}

func (state *ForecastActor) saveState() {
	if state.store == nil {
		return
	}
	err := state.store.Save(domain.PersistedState{
		Forecast:      state.current,
		Snapshots:     state.snapshots,
		SnowOverrides: state.overrides,
	})
	if err != nil {
		state.logger.Error("forecast: could not save state", zap.Error(err))
	}
}

func (state *ForecastActor) arrayNames() []string {
	names := make([]string, 0, len(state.config.Arrays))
	for _, array := range state.config.Arrays {
		names = append(names, array.Name)
	}
	return names
}
