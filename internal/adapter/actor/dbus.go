package actor

import (
	"errors"
	"fmt"

	"github.com/sebmartin/ve-renogy-rover/internal/core/domain"
	"github.com/sebmartin/ve-renogy-rover/internal/core/mapper"
	"github.com/sebmartin/ve-renogy-rover/internal/core/store"
	"github.com/sebmartin/ve-renogy-rover/internal/util/actorutil"
	"github.com/sebmartin/ve-renogy-rover/pkg/vedbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// DBusActor owns the exported bus service. It registers every path with its
// current value before the service name is claimed, so the first GetItems a
// client sees is already complete, then mirrors store change batches into
// ItemsChanged signals. Inbound SetValue calls run on the bus dispatch
// goroutine and go straight to the store, which is safe to share; the
// resulting change event flows back here and out as the confirming signal.
type DBusActor struct {
	behavior actor.Behavior
	stash    *actorutil.Stash

	store       *store.PathStore
	eventStream *eventstream.EventStream
	factory     vedbus.ServiceFactory

	service        vedbus.ItemService
	eventStreamSub *eventstream.Subscription

	logger *zap.Logger
}

func NewDBusActor(pathStore *store.PathStore, es *eventstream.EventStream, factory vedbus.ServiceFactory, logger *zap.Logger) *DBusActor {
	act := &DBusActor{
		store:       pathStore,
		eventStream: es,
		factory:     factory,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_DBUS, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *DBusActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *DBusActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("dbus@starting started")

		// subscribe before snapshotting so no change batch can fall between
		state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
			if changed, ok := value.(*store.StoreChangedEvent); ok {
				ctx.Send(ctx.Self(), changed)
			}
		})

		service, err := state.factory(itemSpecs(state.store.Snapshot()), state.onSetValue)
		if err != nil {
			// cannot claim the service name, let the supervisor decide
			state.logger.Error("dbus@starting could not register service", zap.Error(err))
			panic(err)
		}
		state.service = service

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.stop()
	default:
		state.logger.Debug("dbus@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *DBusActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *store.StoreChangedEvent:
		state.logger.Debug("dbus@default StoreChangedEvent", zap.Int("changes", len(msg.Changes)))
		state.service.Update(changesFromStore(msg.Changes))
	case domain.ActorHealthRequest:
		state.logger.Debug("dbus@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_DBUS,
			Healthy: true,
			State:   "exported",
		})
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("dbus@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// onSetValue handles a remote write. It runs on the bus dispatch goroutine.
// A name that cannot be saved to disk is still accepted for the session.
func (state *DBusActor) onSetValue(path string, value any) error {
	v, err := valueFromWire(value)
	if err != nil {
		return err
	}
	err = state.store.SetFromExternal(path, v)
	if errors.Is(err, domain.ErrPersistenceFailure) {
		return nil
	}
	return err
}

func (state *DBusActor) stop() {
	state.logger.Debug("dbus: release service")
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
	if state.service != nil {
		if err := state.service.Close(); err != nil {
			state.logger.Error("dbus: close failed", zap.Error(err))
		}
		state.service = nil
	}
}

func itemSpecs(snapshot []store.PublishedValue) []vedbus.ItemSpec {
	specs := make([]vedbus.ItemSpec, 0, len(snapshot))
	for _, pv := range snapshot {
		specs = append(specs, vedbus.ItemSpec{
			Path:     pv.Path,
			Value:    pv.Value.Native(),
			Text:     mapper.FormatText(pv.Path, pv.Value),
			Writable: mapper.Writable(pv.Path),
		})
	}
	return specs
}

func changesFromStore(changes []store.PublishedValue) []vedbus.Change {
	out := make([]vedbus.Change, 0, len(changes))
	for _, pv := range changes {
		out = append(out, vedbus.Change{
			Path:  pv.Path,
			Value: pv.Value.Native(),
			Text:  mapper.FormatText(pv.Path, pv.Value),
		})
	}
	return out
}

// valueFromWire lifts a flattened bus value into a domain value. The bus
// layer already folds every integer width into int64.
func valueFromWire(value any) (domain.Value, error) {
	switch v := value.(type) {
	case string:
		return domain.TextValue(v), nil
	case float64:
		return domain.FloatValue(v), nil
	case int64:
		return domain.IntValue(v), nil
	case nil:
		return domain.InvalidValue(), nil
	default:
		return domain.Value{}, fmt.Errorf("unsupported value type %T", value)
	}
}
