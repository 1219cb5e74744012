package actor

import (
	"fmt"
	"time"

	"github.com/sebmartin/ve-renogy-rover/internal/config"
	"github.com/sebmartin/ve-renogy-rover/internal/core/domain"
	"github.com/sebmartin/ve-renogy-rover/internal/core/mapper"
	"github.com/sebmartin/ve-renogy-rover/internal/core/port"
	"github.com/sebmartin/ve-renogy-rover/internal/core/store"
	"github.com/sebmartin/ve-renogy-rover/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

const (
	// openRequestTimeout must outlast the rover actor's own open deadline so
	// the real failure cause wins over a bare future timeout.
	openRequestTimeout = 12 * time.Second
	readRequestTimeout = 3 * time.Second
)

// PollerActor drives the poll loop and owns the connection state machine.
// One tick fires per poll interval regardless of state: while connected a
// tick reads the dynamic registers and publishes the decoded values, while
// disconnected it checks whether the reconnect gate has expired and starts a
// new open attempt. Retry waits are timestamps checked on ticks, never
// sleeps, so the mailbox stays responsive and shutdown is immediate.
type PollerActor struct {
	behavior   actor.Behavior
	stash      *actorutil.Stash
	scheduler  *scheduler.TimerScheduler
	cancelTick scheduler.CancelFunc

	roverActor *actor.PID
	config     *config.Config
	store      *store.PathStore
	policy     port.ReconnectPolicy

	connState domain.ConnectionState
	retryAt   time.Time

	logger *zap.Logger
}

type pollTick struct {
}

func NewPollerActor(config *config.Config, roverActor *actor.PID, pathStore *store.PathStore,
	policy port.ReconnectPolicy, logger *zap.Logger) *PollerActor {
	act := &PollerActor{
		config:     config,
		roverActor: roverActor,
		store:      pathStore,
		policy:     policy,
		behavior:   actor.NewBehavior(),
		stash:      &actorutil.Stash{},
		connState:  domain.Disconnected,
		logger:     actorutil.ActorLogger(domain.ACTOR_ID_POLLER, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *PollerActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *PollerActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("poller@starting started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		state.scheduleNextTick(ctx)
		// first connection attempt happens right away, not on the first tick
		state.beginOpen(ctx)
	case *actor.Restarting:
	default:
		state.logger.Debug("poller@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// ConnectingReceive is active while an open request is in flight.
func (state *PollerActor) ConnectingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.OpenResponse:
		if msg.HasResponseError() {
			state.scheduleRetry(msg.GetResponseError())
			state.setConnState(domain.Disconnected)
			state.behavior.Become(state.DisconnectedReceive)
			state.stash.UnstashAll(ctx)
			return
		}
		state.logger.Debug("poller@connecting OpenResponse")
		if msg.Info != nil {
			state.store.ApplyIdentity(msg.Info)
		}
		state.store.SetConnected(true)
		state.policy.Reset()
		state.setConnState(domain.Connected)
		state.behavior.Become(state.ConnectedReceive)
		state.stash.UnstashAll(ctx)
	case pollTick:
		state.scheduleNextTick(ctx)
	case domain.ActorHealthRequest:
		state.respondHealth(ctx)
	case *actor.Restarting:
		state.stopTicking()
	case *actor.Stopping:
		state.stopTicking()
	default:
		state.logger.Debug("poller@connecting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// DisconnectedReceive is active between a failed attempt and the next one.
func (state *PollerActor) DisconnectedReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case pollTick:
		state.scheduleNextTick(ctx)
		if !time.Now().Before(state.retryAt) {
			state.beginOpen(ctx)
		}
	case domain.ActorHealthRequest:
		state.respondHealth(ctx)
	case *actor.Restarting:
		state.stopTicking()
	case *actor.Stopping:
		state.stopTicking()
	default:
		state.logger.Debug("poller@disconnected default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *PollerActor) ConnectedReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case pollTick:
		state.logger.Debug("poller@connected tick")
		state.scheduleNextTick(ctx)
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.roverActor, domain.ReadDynamicDataRequest{}, readRequestTimeout), func(err error) any {
			return domain.ReadDynamicDataResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
		state.behavior.BecomeStacked(state.WaitingReadReceive)
	case domain.ActorHealthRequest:
		state.respondHealth(ctx)
	case *actor.Restarting:
		state.stopTicking()
	case *actor.Stopping:
		state.stopTicking()
	default:
		state.logger.Debug("poller@connected default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// WaitingReadReceive is stacked while a register read is in flight.
func (state *PollerActor) WaitingReadReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ReadDynamicDataResponse:
		if msg.HasResponseError() {
			state.afterReadError(msg.GetResponseError())
			state.stash.UnstashAll(ctx)
			return
		}
		state.logger.Debug("poller@waiting ReadDynamicDataResponse")
		if msg.Reading != nil {
			state.store.Apply(mapper.MapReading(msg.Reading))
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case pollTick:
		// previous read still in flight, skip this cycle
		state.scheduleNextTick(ctx)
	case domain.ActorHealthRequest:
		state.respondHealth(ctx)
	case *actor.Restarting:
		state.stopTicking()
	case *actor.Stopping:
		state.stopTicking()
	default:
		state.logger.Debug("poller@waiting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// afterReadError keeps the link up through isolated timeouts and protocol
// hiccups. Anything else tears the published values down to null and sends
// the loop back through the reconnect gate.
func (state *PollerActor) afterReadError(err error) {
	if domain.IsTransientReadError(err) {
		state.logger.Warn("poll skipped", zap.Error(err))
		state.behavior.UnbecomeStacked()
		return
	}
	state.setConnState(domain.Faulted)
	state.store.InvalidateDynamic()
	state.scheduleRetry(err)
	state.setConnState(domain.Disconnected)
	state.behavior.Become(state.DisconnectedReceive)
}

func (state *PollerActor) beginOpen(ctx actor.Context) {
	state.setConnState(domain.Connecting)
	actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.roverActor, domain.OpenRequest{}, openRequestTimeout), func(err error) any {
		return domain.OpenResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
		}
	})
	state.behavior.Become(state.ConnectingReceive)
}

func (state *PollerActor) scheduleNextTick(ctx actor.Context) {
	if state.config.Monitor.PollIntervalMillis > 0 {
		state.cancelTick = state.scheduler.RequestOnce(time.Duration(state.config.Monitor.PollIntervalMillis)*time.Millisecond, ctx.Self(), pollTick{})
	}
}

func (state *PollerActor) stopTicking() {
	if state.cancelTick != nil {
		state.cancelTick()
		state.cancelTick = nil
	}
}

func (state *PollerActor) scheduleRetry(reason error) {
	delay := state.policy.NextDelay()
	state.retryAt = time.Now().Add(delay)
	state.logger.Warn("controller unavailable", zap.Duration("retry_in", delay), zap.Error(reason))
}

func (state *PollerActor) setConnState(next domain.ConnectionState) {
	if state.connState == next {
		return
	}
	state.logger.Info("connection state",
		zap.String("from", state.connState.String()),
		zap.String("to", next.String()))
	state.connState = next
}

func (state *PollerActor) respondHealth(ctx actor.Context) {
	ctx.Respond(domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_POLLER,
		Healthy: true,
		State:   state.connState.String(),
	})
}
