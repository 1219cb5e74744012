package actor

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	adactor "github.com/sebmartin/ve-renogy-rover/internal/adapter/actor"
	"github.com/sebmartin/ve-renogy-rover/internal/config"
	"github.com/sebmartin/ve-renogy-rover/internal/core/domain"
	"github.com/sebmartin/ve-renogy-rover/internal/core/mapper"
	"github.com/sebmartin/ve-renogy-rover/internal/core/store"
	"github.com/sebmartin/ve-renogy-rover/internal/settings"
	"github.com/sebmartin/ve-renogy-rover/internal/util/actorutil"
	"github.com/sebmartin/ve-renogy-rover/pkg/rover_modbus"
	"github.com/sebmartin/ve-renogy-rover/pkg/vedbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type masterRig struct {
	as     *actor.ActorSystem
	ctx    *actor.RootContext
	reader *rover_modbus.TestRoverReader
	svc    *vedbus.TestDbusService
	master *actor.PID
}

func startMasterRig(t *testing.T, cfg config.Config, reader *rover_modbus.TestRoverReader) *masterRig {
	t.Helper()

	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	identity, err := domain.IdentityFromDevicePath(cfg.Device.Path)
	require.NoError(t, err)
	sett := settings.NewStore(filepath.Join(t.TempDir(), "rover.json"), logger)
	svc := vedbus.CreateTestDbusService()

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, identity, sett, func() *adactor.RoverActor {
			return adactor.NewRoverActor(reader, logger)
		}, func(pathStore *store.PathStore, es *eventstream.EventStream) *adactor.DBusActor {
			return adactor.NewDBusActor(pathStore, es, svc.Factory(), logger)
		}, logger)
	})
	pid, err := as.Root.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	require.NoError(t, err)

	rig := &masterRig{as: as, ctx: as.Root, reader: reader, svc: svc, master: pid}
	t.Cleanup(func() {
		rig.ctx.Stop(rig.master)
		rig.as.Shutdown()
	})
	return rig
}

func waitForServiceItem(t *testing.T, svc *vedbus.TestDbusService, path string, want any, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if item, ok := svc.Item(path); ok && item.Value == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	item, _ := svc.Item(path)
	t.Fatalf("service item %s never became %v, last value %v", path, want, item.Value)
}

func TestMasterActorHealthCheck(t *testing.T) {

	rig := startMasterRig(t, fastTestConfig(), rover_modbus.CreateTestRoverReader())

	time.Sleep(1 * time.Second)

	res, err := rig.ctx.RequestFuture(rig.master, domain.ActorHealthRequest{}, 10*time.Second).Result()
	require.NoError(t, err)
	healthResp, ok := res.(domain.ActorHealthResponse)
	require.True(t, ok)

	assert.Equal(t, domain.ACTOR_ID_MASTER, healthResp.Id)
	assert.True(t, healthResp.Healthy, "healthy is true")
	require.Len(t, healthResp.Components, 3)

	byId := make(map[string]domain.ActorHealthResponse)
	for _, comp := range healthResp.Components {
		byId[comp.Id] = comp
	}
	assert.True(t, byId[domain.ACTOR_ID_ROVER].Healthy)
	assert.Equal(t, "open", byId[domain.ACTOR_ID_ROVER].State)
	assert.True(t, byId[domain.ACTOR_ID_POLLER].Healthy)
	assert.Equal(t, "connected", byId[domain.ACTOR_ID_POLLER].State)
	assert.True(t, byId[domain.ACTOR_ID_DBUS].Healthy)
	assert.Equal(t, "exported", byId[domain.ACTOR_ID_DBUS].State)
}

func TestMasterActorBridgesReadingsToDBus(t *testing.T) {

	reader := rover_modbus.CreateTestRoverReader()
	rig := startMasterRig(t, fastTestConfig(), reader)

	waitForServiceItem(t, rig.svc, mapper.PathConnected, int64(1), 5*time.Second)
	waitForServiceItem(t, rig.svc, mapper.PathSoc, float64(87), 5*time.Second)

	serial, ok := rig.svc.Item(mapper.PathSerial)
	require.True(t, ok)
	assert.Equal(t, "RNG-CTRL-RVR40_41218156", serial.Value)

	assert.GreaterOrEqual(t, reader.OpenCount(), 1)
	assert.GreaterOrEqual(t, reader.ReadCount(), 1)
}

func TestMasterActorHealthCheckSurvivesFailingController(t *testing.T) {

	reader := rover_modbus.CreateTestRoverReader()
	reader.FailOpen(errors.New("no such device"))
	rig := startMasterRig(t, fastTestConfig(), reader)

	time.Sleep(500 * time.Millisecond)

	res, err := rig.ctx.RequestFuture(rig.master, domain.ActorHealthRequest{}, 10*time.Second).Result()
	require.NoError(t, err)
	healthResp, ok := res.(domain.ActorHealthResponse)
	require.True(t, ok)

	// children stay responsive while the serial link is down
	assert.True(t, healthResp.Healthy)

	byId := make(map[string]domain.ActorHealthResponse)
	for _, comp := range healthResp.Components {
		byId[comp.Id] = comp
	}
	assert.Equal(t, "closed", byId[domain.ACTOR_ID_ROVER].State)
	assert.Equal(t, "disconnected", byId[domain.ACTOR_ID_POLLER].State)
}
