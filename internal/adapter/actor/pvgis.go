package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/nijel/pvgis2mqtt/internal/config"
	"github.com/nijel/pvgis2mqtt/internal/core/domain"
	"github.com/nijel/pvgis2mqtt/internal/util/actorutil"
	"github.com/nijel/pvgis2mqtt/pkg/pvgis"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const fetchTaskTimeout = 5 * time.Minute

// PVGISActor caches the typical-year series of every array and refreshes
// them when they grow older than the configured refresh interval. A failed
// refresh keeps serving the stale series, only arrays without any cached
// series make the request fail.
type PVGISActor struct {
	actorutil.ActorWithStates
	stash           *actorutil.Stash
	client          pvgis.Client
	location        config.LocationConfig
	arrays          []config.ArrayConfig
	refreshInterval time.Duration
	series          map[string]*pvgis.Series
	fetchedAt       map[string]time.Time
	logger          *zap.Logger
}

type seriesFetchResult struct {
	fetched map[string]*pvgis.Series
	err     error
	replyTo *actor.PID
}

func NewPVGISActor(cfg *config.Config, client pvgis.Client, logger *zap.Logger) *PVGISActor {
	act := &PVGISActor{
		client:          client,
		location:        cfg.Location,
		arrays:          cfg.Arrays,
		refreshInterval: time.Duration(cfg.ForecastConfig.PVGISRefreshDays) * 24 * time.Hour,
		series:          make(map[string]*pvgis.Series),
		fetchedAt:       make(map[string]time.Time),
		stash:           &actorutil.Stash{},
		logger:          actorutil.ActorLogger(domain.ACTOR_ID_PVGIS, logger),
		ActorWithStates: actorutil.ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(PVIdleState{
		actor: act,
	})
	return act
}

func (state *PVGISActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Idle state

type PVIdleState struct {
	actorutil.ActorState
	actor *PVGISActor
}

func (state PVIdleState) Name() string {
	return "idle"
}

func (state PVIdleState) Receive(ctx actor.Context) {
	act := state.actor
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		act.logger.Debug("pvgis@idle: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_PVGIS,
			Healthy: true,
			State:   state.Name(),
		})
	case domain.GetSeriesRequest:
		act.logger.Debug("pvgis@idle: GetSeriesRequest", zap.Bool("force", msg.ForceRefresh))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)

		pending := act.pendingArrays(msg.ForceRefresh, time.Now())
		if len(pending) == 0 {
			ctx.Send(sender, domain.GetSeriesResponse{
				Series: act.cachedSeries(),
			})
			return
		}

		actorutil.NewBackgroundTask(ctx, func() (*seriesFetchResult, error) {
			return act.fetchSeries(pending, sender), nil
		}).Recover(func(err error) seriesFetchResult {
			return seriesFetchResult{err: err, replyTo: sender}
		}).WithTimeout(fetchTaskTimeout).PipeTo(ctx.Self())
		act.BecomeStacked(PVFetchingState{
			actor: act,
		})
	default:
		act.logger.Debug("pvgis@idle default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Fetching state

type PVFetchingState struct {
	actorutil.ActorState
	actor *PVGISActor
}

func (state PVFetchingState) Name() string {
	return "fetchingSeries"
}

func (state PVFetchingState) Receive(ctx actor.Context) {
	act := state.actor
	switch msg := ctx.Message().(type) {
	case seriesFetchResult:
		act.logger.Debug("pvgis@fetchingSeries seriesFetchResult",
			zap.Int("fetched", len(msg.fetched)), zap.Error(msg.err))
		now := time.Now()
		for name, series := range msg.fetched {
			act.series[name] = series
			act.fetchedAt[name] = now
		}
		resp := domain.GetSeriesResponse{
			Series: act.cachedSeries(),
		}
		if msg.err != nil && len(resp.Series) < len(act.arrays) {
			resp.ResponseError = msg.err
		}
		ctx.Send(msg.replyTo, resp)
		act.UnbecomeStacked()
		act.stash.UnstashAll(ctx)
	default:
		act.logger.Debug("pvgis@fetchingSeries stash", zap.String("type", fmt.Sprintf("%T", msg)))
		act.stash.Stash(ctx, msg)
	}
}

// pendingArrays returns the arrays whose cached series is missing, stale or
// force-invalidated.
func (state *PVGISActor) pendingArrays(force bool, now time.Time) []config.ArrayConfig {
	var pending []config.ArrayConfig
	for _, array := range state.arrays {
		if force {
			pending = append(pending, array)
			continue
		}
		fetchedAt, ok := state.fetchedAt[array.Name]
		if !ok || now.Sub(fetchedAt) >= state.refreshInterval {
			pending = append(pending, array)
		}
	}
	return pending
}

func (state *PVGISActor) cachedSeries() map[string]*pvgis.Series {
	result := make(map[string]*pvgis.Series, len(state.series))
	for name, series := range state.series {
		result[name] = series
	}
	return result
}

func (state *PVGISActor) fetchSeries(pending []config.ArrayConfig, replyTo *actor.PID) *seriesFetchResult {
	result := &seriesFetchResult{
		fetched: make(map[string]*pvgis.Series),
		replyTo: replyTo,
	}
	for _, array := range pending {
		series, err := state.client.FetchSeries(context.Background(), state.arrayParams(array))
		if err != nil {
			if _, cached := state.series[array.Name]; cached {
				state.logger.Warn("pvgis: refresh failed, keeping cached series",
					zap.String("array", array.Name), zap.Error(err))
			} else {
				state.logger.Error("pvgis: fetch failed",
					zap.String("array", array.Name), zap.Error(err))
				result.err = err
			}
			continue
		}
		result.fetched[array.Name] = series
	}
	return result
}

func (state *PVGISActor) arrayParams(array config.ArrayConfig) pvgis.ArrayParams {
	return pvgis.ArrayParams{
		Latitude:      state.location.Latitude,
		Longitude:     state.location.Longitude,
		PeakPowerKWp:  array.ModulesPower,
		Loss:          array.Loss,
		Angle:         array.Declination,
		Aspect:        array.Azimuth,
		MountingPlace: array.MountingPlace,
		PVTech:        array.PVTech,
	}
}
