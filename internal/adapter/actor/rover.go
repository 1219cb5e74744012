package actor

import (
	"fmt"
	"time"

	"github.com/sebmartin/ve-renogy-rover/internal/core/domain"
	"github.com/sebmartin/ve-renogy-rover/internal/util/actorutil"
	"github.com/sebmartin/ve-renogy-rover/pkg/rover_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/reugn/go-quartz/logger"
	"go.uber.org/zap"
)

// maxReadFaults is how many consecutive transient read failures are
// tolerated before the serial handle is considered gone.
const maxReadFaults = 3

// RoverActor owns the serial handle to the charge controller. It starts with
// the port closed: the controller being absent at boot is a normal
// condition, not a failure. All register traffic runs in background tasks so
// a slow or dead RS-485 line never blocks the mailbox.
type RoverActor struct {
	behavior actor.Behavior
	stash    *actorutil.Stash
	reader   rover_modbus.RoverRegisterReader
	info     *rover_modbus.DeviceInfo
	faults   int
	logger   *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewRoverActor(reader rover_modbus.RoverRegisterReader, logger *zap.Logger) *RoverActor {
	act := &RoverActor{
		reader:   reader,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_ROVER, logger),
	}
	act.behavior.Become(act.ClosedReceive)
	return act
}

func (state *RoverActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

// ClosedReceive is active while no serial handle is open.
func (state *RoverActor) ClosedReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("rover@closed started")
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_ROVER,
			Healthy: true,
			State:   "closed",
		})
	case domain.OpenRequest:
		state.logger.Debug("rover@closed: OpenRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.openAndIdentify),
			mapTaskResult[domain.OpenResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.OpenResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(10 * time.Second).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingRover)
	case domain.ReadDynamicDataRequest:
		state.logger.Debug("rover@closed: ReadDynamicDataRequest rejected")
		actorutil.ForRequest(msg).Respond(ctx, domain.ReadDynamicDataResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: domain.ErrDeviceNotFound,
			},
		})
	case domain.CloseRequest:
		actorutil.ForRequest(msg).Respond(ctx, domain.CloseResponse{})
	case *actor.Stopping:
	default:
		state.logger.Debug("rover@closed default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// OpenReceive is active while the controller is connected and identified.
func (state *RoverActor) OpenReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_ROVER,
			Healthy: true,
			State:   "open",
		})
	case domain.OpenRequest:
		// already open, hand back the identity from the handshake
		state.logger.Debug("rover@open: OpenRequest (already open)")
		actorutil.ForRequest(msg).Respond(ctx, domain.OpenResponse{Info: state.info})
	case domain.ReadDynamicDataRequest:
		state.logger.Debug("rover@open: ReadDynamicDataRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.readDynamicData),
			mapTaskResult[domain.ReadDynamicDataResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.ReadDynamicDataResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(2 * time.Second).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingRover)
	case domain.CloseRequest:
		state.logger.Debug("rover@open: CloseRequest")
		state.close()
		actorutil.ForRequest(msg).Respond(ctx, domain.CloseResponse{})
		state.behavior.Become(state.ClosedReceive)
	case *actor.Restarting:
		state.close()
	case *actor.Stopping:
		state.close()
	default:
		state.logger.Debug("rover@open default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// WaitingRover is stacked while a background task owns the serial line.
func (state *RoverActor) WaitingRover(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("rover@waiting backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		state.afterTask(ctx, msg)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.close()
	case *actor.Stopping:
		state.close()
	default:
		state.logger.Debug("rover@waiting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// afterTask settles the actor into its next state based on the task outcome
// and forwards the response, rewriting the error once the fault budget is
// spent so callers learn the handle is gone.
func (state *RoverActor) afterTask(ctx actor.Context, result backgroundTaskResult) {
	switch resp := result.message.(type) {
	case domain.OpenResponse:
		if resp.HasResponseError() {
			state.logger.Warn("open failed", zap.Error(resp.GetResponseError()))
			state.behavior.Become(state.ClosedReceive)
			ctx.Send(result.replyTo, resp)
			return
		}
		state.info = resp.Info
		state.faults = 0
		state.logger.Info("controller connected",
			zap.String("model", resp.Info.ProductModel),
			zap.String("firmware", resp.Info.SoftwareVersion),
			zap.String("serial", resp.Info.SerialNumber))
		state.behavior.Become(state.OpenReceive)
		ctx.Send(result.replyTo, resp)
	case domain.ReadDynamicDataResponse:
		if !resp.HasResponseError() {
			state.faults = 0
			state.behavior.Become(state.OpenReceive)
			ctx.Send(result.replyTo, resp)
			return
		}
		classified := classifyReadError(resp.GetResponseError())
		if domain.IsTransientReadError(classified) {
			state.faults++
			if state.faults < maxReadFaults {
				state.logger.Warn("transient read failure",
					zap.Int("faults", state.faults), zap.Error(classified))
				resp.ResponseError = classified
				state.behavior.Become(state.OpenReceive)
				ctx.Send(result.replyTo, resp)
				return
			}
		}
		// fault budget spent, or a failure the modbus layer cannot explain
		state.logger.Error("connection faulted",
			zap.Int("faults", state.faults), zap.Error(classified))
		state.close()
		state.info = nil
		state.faults = 0
		resp.ResponseError = fmt.Errorf("%w: %w", domain.ErrConnectionFaulted, classified)
		state.behavior.Become(state.ClosedReceive)
		ctx.Send(result.replyTo, resp)
	default:
		ctx.Send(result.replyTo, result.message)
		state.behavior.UnbecomeStacked()
	}
}

// openAndIdentify runs on a background goroutine. It leaves no half-open
// handle behind: a failed handshake closes the port before returning.
func (state *RoverActor) openAndIdentify() (*domain.OpenResponse, error) {
	if err := state.reader.Open(); err != nil {
		logger.Error(err)
		return nil, err
	}
	if err := state.reader.Validate(); err != nil {
		logger.Error(err)
		state.reader.Close()
		return nil, err
	}
	info, err := state.reader.GetDeviceInfo()
	if err != nil {
		logger.Error(err)
		state.reader.Close()
		return nil, err
	}
	return &domain.OpenResponse{Info: info}, nil
}

func (state *RoverActor) readDynamicData() (*domain.ReadDynamicDataResponse, error) {
	reading, err := state.reader.ReadDynamicData()
	if err != nil {
		logger.Error(err)
		return nil, err
	}
	return &domain.ReadDynamicDataResponse{Reading: reading}, nil
}

func (state *RoverActor) close() {
	if err := state.reader.Close(); err != nil {
		logger.Error(err)
	}
}

func classifyReadError(err error) error {
	switch {
	case rover_modbus.IsTimeoutError(err):
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	case rover_modbus.IsProtocolError(err):
		return fmt.Errorf("%w: %w", domain.ErrProtocolError, err)
	default:
		return err
	}
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
