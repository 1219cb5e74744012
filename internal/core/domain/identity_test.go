package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityFromDevicePath(t *testing.T) {
	id, err := IdentityFromDevicePath("/dev/ttyUSB0")
	require.NoError(t, err)
	assert.Equal(t, "ttyUSB0", id.TTYName)
	assert.Equal(t, 0, id.USBOrdinal)
	assert.Equal(t, "com.victronenergy.solarcharger.ttyUSB0", id.ServiceName)
	assert.Equal(t, 288, id.DeviceInstance)
	assert.Equal(t, "Renogy Rover MPPT on USB0", id.Connection())
}

func TestIdentityFromDevicePathOrdinal(t *testing.T) {
	id, err := IdentityFromDevicePath("/dev/ttyUSB3")
	require.NoError(t, err)
	assert.Equal(t, 3, id.USBOrdinal)
	assert.Equal(t, 291, id.DeviceInstance)
	assert.Equal(t, "com.victronenergy.solarcharger.ttyUSB3", id.ServiceName)
}

func TestIdentityFromDevicePathUnsupported(t *testing.T) {
	for _, path := range []string{"/dev/ttyACM0", "/dev/ttyS1", "/dev/ttyUSB", "/dev/ttyUSBx", "ttyUSB-1"} {
		_, err := IdentityFromDevicePath(path)
		assert.Error(t, err, "expected error for %s", path)
	}
}

func TestValueEqual(t *testing.T) {
	assert.True(t, FloatValue(12.5).Equal(FloatValue(12.5)))
	assert.False(t, FloatValue(12.5).Equal(FloatValue(12.6)))
	assert.False(t, FloatValue(1).Equal(IntValue(1)))
	assert.True(t, InvalidValue().Equal(InvalidValue()))
	assert.True(t, TextValue("a").Equal(TextValue("a")))
	assert.False(t, TextValue("a").Equal(TextValue("b")))
}

func TestValueNative(t *testing.T) {
	assert.Equal(t, 12.5, FloatValue(12.5).Native())
	assert.Equal(t, int64(3), IntValue(3).Native())
	assert.Equal(t, "name", TextValue("name").Native())
	assert.Nil(t, InvalidValue().Native())
}
