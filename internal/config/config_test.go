package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckDevicePath(t *testing.T) {
	path, err := CheckDevicePath("/dev/ttyUSB0")
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", path)

	// bare device names gain the /dev prefix
	path, err = CheckDevicePath("ttyUSB1")
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB1", path)

	path, err = CheckDevicePath("  /dev/ttyUSB2 ")
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB2", path)

	_, err = CheckDevicePath("")
	assert.Error(t, err)
	_, err = CheckDevicePath("   ")
	assert.Error(t, err)
}
