package actor

import (
	"errors"
	"fmt"
	"log"
	"time"

	adactor "github.com/sebmartin/ve-renogy-rover/internal/adapter/actor"
	"github.com/sebmartin/ve-renogy-rover/internal/config"
	"github.com/sebmartin/ve-renogy-rover/internal/core/domain"
	"github.com/sebmartin/ve-renogy-rover/internal/core/service"
	"github.com/sebmartin/ve-renogy-rover/internal/core/store"
	"github.com/sebmartin/ve-renogy-rover/internal/settings"
	"github.com/sebmartin/ve-renogy-rover/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type RoverActorProvider func() *adactor.RoverActor

type DBusActorProvider func(*store.PathStore, *eventstream.EventStream) *adactor.DBusActor

// MasterOfPuppetsActor supervises the actor tree: the rover actor owning the
// serial link, the poller driving it, and the dbus actor exporting the store.
// It owns the event stream and the path store the children share.
type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *actorutil.Stash

	currentHealthCheck healthCheckResult
	eventStream        *eventstream.EventStream
	store              *store.PathStore
	roverActor         *actor.PID
	pollerActor        *actor.PID
	dbusActor          *actor.PID
	roverActorProvider RoverActorProvider
	dbusActorProvider  DBusActorProvider
	logger             *zap.Logger
}

type healthCheckResult struct {
	roverHealth    *domain.ActorHealthResponse
	pollerHealth   *domain.ActorHealthResponse
	dbusHealth     *domain.ActorHealthResponse
	checksReceived int
	respondTo      *actor.PID
}

func NewMasterOfPuppetsActor(config config.Config, identity domain.DeviceIdentity, sett *settings.Store,
	roverActorProvider RoverActorProvider, dbusActorProvider DBusActorProvider, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:             config,
		behavior:           actor.NewBehavior(),
		stash:              &actorutil.Stash{},
		logger:             actorutil.ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:        &eventstream.EventStream{},
		roverActorProvider: roverActorProvider,
		dbusActorProvider:  dbusActorProvider,
	}
	act.store = store.NewPathStore(identity, sett, act.eventStream, logger)
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

		// start rover child
		roverActorPID, err := state.startRoverActor(ctx)
		if err != nil {
			panic(err)
		}
		state.roverActor = roverActorPID

		// start dbus child
		dbusActorPID, err := state.startDBusActor(ctx)
		if err != nil {
			panic(err)
		}
		state.dbusActor = dbusActorPID

		// start poller child
		pollerActorPID, err := state.startPollerActor(ctx)
		if err != nil {
			panic(err)
		}
		state.pollerActor = pollerActorPID

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
		// rover actor request
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.roverActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_ROVER,
				Healthy: false,
				State:   "unresponsive",
			}
		})
		// poller actor request
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.pollerActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_POLLER,
				Healthy: false,
				State:   "unresponsive",
			}
		})
		// dbus actor request
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.dbusActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_DBUS,
				Healthy: false,
				State:   "unresponsive",
			}
		})

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case *actor.ReceiveTimeout:
		// stale timeout from an already answered health check
		state.logger.Debug("master@default stale ReceiveTimeout")
	case *actor.Terminated:
		// a child that burned through its restart budget leaves the bridge useless
		if msg.Who.Id == fmt.Sprintf("%s/%s", domain.ACTOR_ID_MASTER, domain.ACTOR_ID_ROVER) {
			state.logger.Error("master@default rover terminated")
			panic(errors.New("rover terminated"))
		}
		if msg.Who.Id == fmt.Sprintf("%s/%s", domain.ACTOR_ID_MASTER, domain.ACTOR_ID_DBUS) {
			state.logger.Error("master@default dbus terminated")
			panic(errors.New("dbus terminated"))
		}
	default:
		state.logger.Debug("master@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some child does not respond to the health check, assume not healthy
		state.currentHealthCheck.respond(ctx)
		ctx.CancelReceiveTimeout()
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		if msg.Id == domain.ACTOR_ID_ROVER {
			state.currentHealthCheck.roverHealth = &msg
		} else if msg.Id == domain.ACTOR_ID_POLLER {
			state.currentHealthCheck.pollerHealth = &msg
		} else if msg.Id == domain.ACTOR_ID_DBUS {
			state.currentHealthCheck.dbusHealth = &msg
		}
		if state.currentHealthCheck.allReceived() {

			state.currentHealthCheck.respond(ctx)

			ctx.CancelReceiveTimeout()
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

func (state *MasterOfPuppetsActor) startRoverActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	roverProps := actor.PropsFromProducer(func() actor.Actor {
		return state.roverActorProvider()
	}, actor.WithSupervisor(supervisor))
	roverActorPID, err := ctx.SpawnNamed(roverProps, domain.ACTOR_ID_ROVER)
	if err != nil {
		return nil, err
	}

	return roverActorPID, nil
}

func (state *MasterOfPuppetsActor) startDBusActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	dbusProps := actor.PropsFromProducer(func() actor.Actor {
		return state.dbusActorProvider(state.store, state.eventStream)
	}, actor.WithSupervisor(supervisor))
	dbusActorPID, err := ctx.SpawnNamed(dbusProps, domain.ACTOR_ID_DBUS)
	if err != nil {
		return nil, err
	}

	return dbusActorPID, nil
}

func (state *MasterOfPuppetsActor) startPollerActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	pollerProps := actor.PropsFromProducer(func() actor.Actor {
		policy := service.NewExponentialReconnectPolicy(
			time.Duration(state.config.Monitor.ReconnectDelayMillis)*time.Millisecond,
			time.Duration(state.config.Monitor.ReconnectMaxDelayMillis)*time.Millisecond)
		return NewPollerActor(&state.config, state.roverActor, state.store, policy, state.logger)
	}, actor.WithSupervisor(supervisor))
	pollerActorPID, err := ctx.SpawnNamed(pollerProps, domain.ACTOR_ID_POLLER)
	if err != nil {
		return nil, err
	}

	return pollerActorPID, nil
}

func (state *healthCheckResult) reset() {
	state.roverHealth = nil
	state.pollerHealth = nil
	state.dbusHealth = nil
	state.checksReceived = 0
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived == 3
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	components := []domain.ActorHealthResponse{
		componentHealth(domain.ACTOR_ID_ROVER, state.roverHealth),
		componentHealth(domain.ACTOR_ID_POLLER, state.pollerHealth),
		componentHealth(domain.ACTOR_ID_DBUS, state.dbusHealth),
	}
	healthy := true
	for _, comp := range components {
		healthy = healthy && comp.Healthy
	}
	resp := domain.ActorHealthResponse{
		Id:         domain.ACTOR_ID_MASTER,
		Healthy:    healthy,
		Components: components,
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}

func componentHealth(id string, resp *domain.ActorHealthResponse) domain.ActorHealthResponse {
	if resp == nil {
		return domain.ActorHealthResponse{Id: id, Healthy: false, State: "unresponsive"}
	}
	return *resp
}
