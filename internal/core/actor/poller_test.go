package actor

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	adactor "github.com/sebmartin/ve-renogy-rover/internal/adapter/actor"
	"github.com/sebmartin/ve-renogy-rover/internal/config"
	"github.com/sebmartin/ve-renogy-rover/internal/core/domain"
	"github.com/sebmartin/ve-renogy-rover/internal/core/mapper"
	"github.com/sebmartin/ve-renogy-rover/internal/core/service"
	"github.com/sebmartin/ve-renogy-rover/internal/core/store"
	"github.com/sebmartin/ve-renogy-rover/internal/settings"
	"github.com/sebmartin/ve-renogy-rover/internal/util"
	"github.com/sebmartin/ve-renogy-rover/internal/util/actorutil"
	"github.com/sebmartin/ve-renogy-rover/pkg/rover_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/simonvetter/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type pollerRig struct {
	as     *actor.ActorSystem
	ctx    *actor.RootContext
	reader *rover_modbus.TestRoverReader
	store  *store.PathStore
	events *changeRecorder
	rover  *actor.PID
	poller *actor.PID
}

type changeRecorder struct {
	mu      sync.Mutex
	changes []store.PublishedValue
}

func (r *changeRecorder) record(evt any) {
	if changed, ok := evt.(*store.StoreChangedEvent); ok {
		r.mu.Lock()
		r.changes = append(r.changes, changed.Changes...)
		r.mu.Unlock()
	}
}

func (r *changeRecorder) sawValue(path string, value domain.Value) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.changes {
		if c.Path == path && c.Value.Equal(value) {
			return true
		}
	}
	return false
}

func fastTestConfig() config.Config {
	cfg := util.LoadTestConfig()
	cfg.Monitor.PollIntervalMillis = 100
	cfg.Monitor.ReconnectDelayMillis = 200
	cfg.Monitor.ReconnectMaxDelayMillis = 1000
	return cfg
}

func startPollerRig(t *testing.T, cfg config.Config, reader *rover_modbus.TestRoverReader) *pollerRig {
	t.Helper()

	logger := zap.Must(zap.NewDevelopment())

	id, err := domain.IdentityFromDevicePath(cfg.Device.Path)
	require.NoError(t, err)

	es := &eventstream.EventStream{}
	recorder := &changeRecorder{}
	es.Subscribe(recorder.record)

	sett := settings.NewStore(filepath.Join(t.TempDir(), "rover.json"), logger)
	pathStore := store.NewPathStore(id, sett, es, logger)

	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	roverPID := ctx.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewRoverActor(reader, logger)
	}))

	policy := service.NewExponentialReconnectPolicy(
		time.Duration(cfg.Monitor.ReconnectDelayMillis)*time.Millisecond,
		time.Duration(cfg.Monitor.ReconnectMaxDelayMillis)*time.Millisecond)

	pollerPID := ctx.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewPollerActor(&cfg, roverPID, pathStore, policy, logger)
	}))

	return &pollerRig{
		as:     as,
		ctx:    ctx,
		reader: reader,
		store:  pathStore,
		events: recorder,
		rover:  roverPID,
		poller: pollerPID,
	}
}

func (rig *pollerRig) stop() {
	rig.ctx.Stop(rig.poller)
	rig.ctx.Stop(rig.rover)
	rig.as.Shutdown()
}

func waitForValue(t *testing.T, pathStore *store.PathStore, path string, want domain.Value, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if pv, ok := pathStore.Get(path); ok && pv.Value.Equal(want) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	pv, _ := pathStore.Get(path)
	t.Fatalf("path %s never became %v, last value %v", path, want, pv.Value)
}

func TestPollerPublishesReadings(t *testing.T) {

	assert := assert.New(t)

	rig := startPollerRig(t, fastTestConfig(), rover_modbus.CreateTestRoverReader())
	defer rig.stop()

	waitForValue(t, rig.store, mapper.PathConnected, domain.IntValue(1), 5*time.Second)
	waitForValue(t, rig.store, mapper.PathSoc, domain.FloatValue(87), 5*time.Second)
	waitForValue(t, rig.store, mapper.PathYieldPower, domain.FloatValue(70), 5*time.Second)

	// identity refreshed from the handshake
	serial, ok := rig.store.Get(mapper.PathSerial)
	assert.True(ok)
	assert.Equal("RNG-CTRL-RVR40_41218156", serial.Value.Text)

	result, err := rig.ctx.RequestFuture(rig.poller, domain.ActorHealthRequest{}, 10*time.Second).Result()
	require.NoError(t, err)
	resp := result.(domain.ActorHealthResponse)
	assert.Equal(domain.ACTOR_ID_POLLER, resp.Id)
	assert.True(resp.Healthy)
	assert.Equal("connected", resp.State)
}

func TestPollerRetriesUntilControllerAppears(t *testing.T) {

	assert := assert.New(t)

	reader := rover_modbus.CreateTestRoverReader()
	reader.FailOpen(errors.New("no such device"))

	rig := startPollerRig(t, fastTestConfig(), reader)
	defer rig.stop()

	time.Sleep(500 * time.Millisecond)

	connected, ok := rig.store.Get(mapper.PathConnected)
	assert.True(ok)
	assert.Equal(int64(0), connected.Value.Int)
	assert.GreaterOrEqual(reader.OpenCount(), 1)

	// plug the controller in
	reader.FailOpen(nil)

	waitForValue(t, rig.store, mapper.PathConnected, domain.IntValue(1), 5*time.Second)
	waitForValue(t, rig.store, mapper.PathSoc, domain.FloatValue(87), 5*time.Second)
}

func TestPollerInvalidatesOnConnectionFault(t *testing.T) {

	assert := assert.New(t)

	reader := rover_modbus.CreateTestRoverReader()

	rig := startPollerRig(t, fastTestConfig(), reader)
	defer rig.stop()

	waitForValue(t, rig.store, mapper.PathConnected, domain.IntValue(1), 5*time.Second)
	waitForValue(t, rig.store, mapper.PathSoc, domain.FloatValue(87), 5*time.Second)

	// the serial line goes dead and stays dead
	reader.FailReads(modbus.ErrRequestTimedOut, -1)

	waitForValue(t, rig.store, mapper.PathConnected, domain.IntValue(0), 5*time.Second)

	soc, ok := rig.store.Get(mapper.PathSoc)
	assert.True(ok)
	assert.True(soc.Value.IsInvalid(), "quantities must be nulled after a fault")
	name, ok := rig.store.Get(mapper.PathProductName)
	assert.True(ok)
	assert.False(name.Value.IsInvalid(), "identity must survive a fault")

	// the line comes back, the poller must find its way to connected again
	reader.FailReads(nil, 0)

	waitForValue(t, rig.store, mapper.PathConnected, domain.IntValue(1), 10*time.Second)
	waitForValue(t, rig.store, mapper.PathSoc, domain.FloatValue(87), 10*time.Second)
	assert.GreaterOrEqual(reader.OpenCount(), 2)
}

func TestPollerKeepsValuesThroughTransientFaults(t *testing.T) {

	assert := assert.New(t)

	reader := rover_modbus.CreateTestRoverReader()

	rig := startPollerRig(t, fastTestConfig(), reader)
	defer rig.stop()

	waitForValue(t, rig.store, mapper.PathConnected, domain.IntValue(1), 5*time.Second)
	waitForValue(t, rig.store, mapper.PathSoc, domain.FloatValue(87), 5*time.Second)

	// two isolated timeouts stay under the fault budget
	reader.FailReads(modbus.ErrRequestTimedOut, 2)

	time.Sleep(600 * time.Millisecond)

	connected, ok := rig.store.Get(mapper.PathConnected)
	assert.True(ok)
	assert.Equal(int64(1), connected.Value.Int)
	assert.False(rig.events.sawValue(mapper.PathConnected, domain.IntValue(0)),
		"transient faults must not drop the connection")
	assert.False(rig.events.sawValue(mapper.PathSoc, domain.InvalidValue()),
		"transient faults must not null the values")
	soc, ok := rig.store.Get(mapper.PathSoc)
	assert.True(ok)
	assert.Equal(float64(87), soc.Value.Float)
}
