package actor

import (
	"context"
	"fmt"

	"github.com/nijel/pvgis2mqtt/internal/adapter/weather"
	"github.com/nijel/pvgis2mqtt/internal/core/domain"
	"github.com/nijel/pvgis2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// WeatherActor fetches the hourly forecast from the configured providers and
// merges them. Values of the primary provider win over secondary ones.
type WeatherActor struct {
	behavior  actor.Behavior
	stash     *actorutil.Stash
	primary   weather.Provider
	secondary weather.Provider
	enabled   bool
	logger    *zap.Logger
}

type mergedForecast struct {
	forecast  weather.HourlyForecast
	available bool
}

type weatherFetchResult struct {
	forecast  weather.HourlyForecast
	available bool
	replyTo   *actor.PID
}

func NewWeatherActor(enabled bool, primary, secondary weather.Provider, logger *zap.Logger) *WeatherActor {
	act := &WeatherActor{
		primary:   primary,
		secondary: secondary,
		enabled:   enabled,
		behavior:  actor.NewBehavior(),
		stash:     &actorutil.Stash{},
		logger:    actorutil.ActorLogger(domain.ACTOR_ID_WEATHER, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *WeatherActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *WeatherActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("weather@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_WEATHER,
			Healthy: true,
			State:   "idle",
		})
	case domain.GetWeatherRequest:
		state.logger.Debug("weather@default: GetWeatherRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)

		// with no weather source the forecast runs on clear sky alone and
		// the availability sensor stays off
		if !state.enabled {
			ctx.Send(sender, domain.GetWeatherResponse{
				Forecast:  weather.NewHourlyForecast(),
				Available: false,
			})
			return
		}

		actorutil.MapBackgroundTask(
			actorutil.NewBackgroundTaskNoError(ctx, state.fetchForecast),
			func(merged *mergedForecast) *weatherFetchResult {
				return &weatherFetchResult{
					forecast:  merged.forecast,
					available: merged.available,
					replyTo:   sender,
				}
			}).Recover(func(err error) weatherFetchResult {
			state.logger.Error("weather: fetch task failed", zap.Error(err))
			return weatherFetchResult{forecast: weather.NewHourlyForecast(), replyTo: sender}
		}).WithTimeout(fetchTaskTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingFetch)
	default:
		state.logger.Debug("weather@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *WeatherActor) WaitingFetch(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case weatherFetchResult:
		state.logger.Debug("weather@waitingFetch weatherFetchResult", zap.Bool("available", msg.available))
		ctx.Send(msg.replyTo, domain.GetWeatherResponse{
			Forecast:  msg.forecast,
			Available: msg.available,
		})
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("weather@waitingFetch stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *WeatherActor) fetchForecast() *mergedForecast {
	result := &mergedForecast{
		forecast: weather.NewHourlyForecast(),
	}

	primary, primaryErr := state.primary.Forecast(context.Background())
	if primaryErr != nil {
		state.logger.Warn("weather: primary provider failed",
			zap.String("provider", state.primary.Name()), zap.Error(primaryErr))
	}

	if state.secondary != nil {
		secondary, err := state.secondary.Forecast(context.Background())
		if err != nil {
			state.logger.Warn("weather: secondary provider failed",
				zap.String("provider", state.secondary.Name()), zap.Error(err))
		} else {
			result.forecast = secondary
			result.available = true
		}
	}

	if primaryErr == nil {
		result.forecast = weather.Merge(primary, result.forecast)
		result.available = true
	}

	return result
}
