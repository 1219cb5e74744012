package actor

import (
	"errors"
	"testing"
	"time"

	"github.com/sebmartin/ve-renogy-rover/internal/core/domain"
	"github.com/sebmartin/ve-renogy-rover/internal/util/actorutil"
	"github.com/sebmartin/ve-renogy-rover/pkg/rover_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/simonvetter/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func spawnRoverActor(t *testing.T, reader *rover_modbus.TestRoverReader) (*actor.ActorSystem, *actor.RootContext, *actor.PID) {
	t.Helper()

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	props := actor.PropsFromProducer(func() actor.Actor { return NewRoverActor(reader, logger) })
	pid := ctx.Spawn(props)

	time.Sleep(100 * time.Millisecond)
	return as, ctx, pid
}

func TestRoverActorOpenAndRead(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	reader := rover_modbus.CreateTestRoverReader()
	as, ctx, pid := spawnRoverActor(t, reader)
	defer as.Shutdown()
	defer ctx.Stop(pid)

	result, err := ctx.RequestFuture(pid, domain.OpenRequest{}, 15*time.Second).Result()
	require.NoError(err)
	open := result.(domain.OpenResponse)
	require.False(open.HasResponseError())
	require.NotNil(open.Info)
	assert.Equal("RNG-CTRL-RVR40", open.Info.ProductModel)
	assert.Equal("1.0.3", open.Info.SoftwareVersion)
	assert.Equal("41218156", open.Info.SerialNumber)
	assert.True(reader.IsOpen())

	result, err = ctx.RequestFuture(pid, domain.ReadDynamicDataRequest{}, 15*time.Second).Result()
	require.NoError(err)
	read := result.(domain.ReadDynamicDataResponse)
	require.False(read.HasResponseError())
	require.NotNil(read.Reading)
	assert.EqualValues(87, read.Reading.BatterySOC)
	assert.EqualValues(188, read.Reading.SolarVoltage)

	// opening an open handle hands back the cached identity
	result, err = ctx.RequestFuture(pid, domain.OpenRequest{}, 15*time.Second).Result()
	require.NoError(err)
	open = result.(domain.OpenResponse)
	require.False(open.HasResponseError())
	assert.Equal("RNG-CTRL-RVR40", open.Info.ProductModel)
	assert.Equal(1, reader.OpenCount())

	result, err = ctx.RequestFuture(pid, domain.ActorHealthRequest{}, 15*time.Second).Result()
	require.NoError(err)
	health := result.(domain.ActorHealthResponse)
	assert.Equal(domain.ACTOR_ID_ROVER, health.Id)
	assert.True(health.Healthy)
	assert.Equal("open", health.State)
}

func TestRoverActorOpenFailureStaysClosed(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	reader := rover_modbus.CreateTestRoverReader()
	reader.FailOpen(errors.New("no such device"))

	as, ctx, pid := spawnRoverActor(t, reader)
	defer as.Shutdown()
	defer ctx.Stop(pid)

	result, err := ctx.RequestFuture(pid, domain.OpenRequest{}, 15*time.Second).Result()
	require.NoError(err)
	open := result.(domain.OpenResponse)
	assert.True(open.HasResponseError())
	assert.False(reader.IsOpen())

	// reads are rejected while closed
	result, err = ctx.RequestFuture(pid, domain.ReadDynamicDataRequest{}, 15*time.Second).Result()
	require.NoError(err)
	read := result.(domain.ReadDynamicDataResponse)
	require.True(read.HasResponseError())
	assert.True(errors.Is(read.GetResponseError(), domain.ErrDeviceNotFound))

	// the failure is not sticky
	reader.FailOpen(nil)
	result, err = ctx.RequestFuture(pid, domain.OpenRequest{}, 15*time.Second).Result()
	require.NoError(err)
	open = result.(domain.OpenResponse)
	assert.False(open.HasResponseError())
	assert.True(reader.IsOpen())
}

func TestRoverActorValidateFailureClosesHandle(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	reader := rover_modbus.CreateTestRoverReader()
	reader.FailValidate(errors.New("garbage on the line"))

	as, ctx, pid := spawnRoverActor(t, reader)
	defer as.Shutdown()
	defer ctx.Stop(pid)

	result, err := ctx.RequestFuture(pid, domain.OpenRequest{}, 15*time.Second).Result()
	require.NoError(err)
	open := result.(domain.OpenResponse)
	assert.True(open.HasResponseError())
	assert.False(reader.IsOpen(), "a failed handshake must not leave a half-open handle")
	assert.Equal(1, reader.CloseCount())
}

func TestRoverActorFaultBudget(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	reader := rover_modbus.CreateTestRoverReader()
	as, ctx, pid := spawnRoverActor(t, reader)
	defer as.Shutdown()
	defer ctx.Stop(pid)

	result, err := ctx.RequestFuture(pid, domain.OpenRequest{}, 15*time.Second).Result()
	require.NoError(err)
	require.False(result.(domain.OpenResponse).HasResponseError())

	reader.FailReads(modbus.ErrRequestTimedOut, -1)

	// two strikes keep the handle open
	for i := 0; i < 2; i++ {
		result, err = ctx.RequestFuture(pid, domain.ReadDynamicDataRequest{}, 15*time.Second).Result()
		require.NoError(err)
		read := result.(domain.ReadDynamicDataResponse)
		require.True(read.HasResponseError())
		assert.True(errors.Is(read.GetResponseError(), domain.ErrTimeout), "strike %d", i+1)
		assert.True(reader.IsOpen(), "strike %d", i+1)
	}

	// the third tears the connection down
	result, err = ctx.RequestFuture(pid, domain.ReadDynamicDataRequest{}, 15*time.Second).Result()
	require.NoError(err)
	read := result.(domain.ReadDynamicDataResponse)
	require.True(read.HasResponseError())
	assert.True(errors.Is(read.GetResponseError(), domain.ErrConnectionFaulted))
	assert.False(reader.IsOpen())

	// once closed, reads report the device as gone
	result, err = ctx.RequestFuture(pid, domain.ReadDynamicDataRequest{}, 15*time.Second).Result()
	require.NoError(err)
	read = result.(domain.ReadDynamicDataResponse)
	require.True(read.HasResponseError())
	assert.True(errors.Is(read.GetResponseError(), domain.ErrDeviceNotFound))
}

func TestRoverActorSuccessResetsFaultBudget(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	reader := rover_modbus.CreateTestRoverReader()
	as, ctx, pid := spawnRoverActor(t, reader)
	defer as.Shutdown()
	defer ctx.Stop(pid)

	result, err := ctx.RequestFuture(pid, domain.OpenRequest{}, 15*time.Second).Result()
	require.NoError(err)
	require.False(result.(domain.OpenResponse).HasResponseError())

	// 2 failures, then success, then 2 more failures: never reaches the budget
	for round := 0; round < 2; round++ {
		reader.FailReads(modbus.ErrRequestTimedOut, 2)
		for i := 0; i < 2; i++ {
			result, err = ctx.RequestFuture(pid, domain.ReadDynamicDataRequest{}, 15*time.Second).Result()
			require.NoError(err)
			require.True(result.(domain.ReadDynamicDataResponse).HasResponseError())
		}
		result, err = ctx.RequestFuture(pid, domain.ReadDynamicDataRequest{}, 15*time.Second).Result()
		require.NoError(err)
		require.False(result.(domain.ReadDynamicDataResponse).HasResponseError())
	}
	assert.True(reader.IsOpen())
}

func TestRoverActorCloseIsIdempotent(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	reader := rover_modbus.CreateTestRoverReader()
	as, ctx, pid := spawnRoverActor(t, reader)
	defer as.Shutdown()
	defer ctx.Stop(pid)

	result, err := ctx.RequestFuture(pid, domain.CloseRequest{}, 15*time.Second).Result()
	require.NoError(err)
	assert.False(result.(domain.CloseResponse).HasResponseError())

	result, err = ctx.RequestFuture(pid, domain.OpenRequest{}, 15*time.Second).Result()
	require.NoError(err)
	require.False(result.(domain.OpenResponse).HasResponseError())

	result, err = ctx.RequestFuture(pid, domain.CloseRequest{}, 15*time.Second).Result()
	require.NoError(err)
	assert.False(result.(domain.CloseResponse).HasResponseError())
	assert.False(reader.IsOpen())

	result, err = ctx.RequestFuture(pid, domain.CloseRequest{}, 15*time.Second).Result()
	require.NoError(err)
	assert.False(result.(domain.CloseResponse).HasResponseError())
}
