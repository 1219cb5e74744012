package rover_modbus

import (
	"fmt"
	"testing"

	"github.com/simonvetter/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDynamicRegs() []uint16 {
	regs := make([]uint16, DynamicBlockLength)
	set := func(addr uint16, v uint16) {
		regs[addr-DynamicBlockStart] = v
	}
	set(regBatterySOC, 87)
	set(regBatteryVoltage, 133)
	set(regChargingCurrent, 512)
	set(regTemperatures, 0x1F98) // controller 31, battery -24
	set(regLoadVoltage, 132)
	set(regLoadCurrent, 150)
	set(regLoadPower, 19)
	set(regSolarVoltage, 188)
	set(regSolarCurrent, 371)
	set(regChargingPower, 68)
	set(regBatteryVoltageMinToday, 126)
	set(regBatteryVoltageMaxToday, 144)
	set(regChargingCurrentMaxToday, 1150)
	set(regChargingPowerMaxToday, 142)
	set(regChargingAmpHoursToday, 27)
	set(regPowerGenerationToday, 354)
	set(regChargingState, 0x8002) // street light on, mppt
	set(regFaultBits, 0x0002)     // battery over-voltage (bit 17)
	set(regFaultBits+1, 0x0000)
	return regs
}

func TestDecodeDynamicBlock(t *testing.T) {
	reading, err := decodeDynamicBlock(testDynamicRegs())
	require.NoError(t, err)

	assert.Equal(t, uint16(87), reading.BatterySOC)
	assert.Equal(t, uint16(133), reading.BatteryVoltage)
	assert.Equal(t, uint16(512), reading.ChargingCurrent)
	assert.Equal(t, int16(31), reading.ControllerTemperature)
	assert.Equal(t, int16(-24), reading.BatteryTemperature)
	assert.Equal(t, uint16(132), reading.LoadVoltage)
	assert.Equal(t, uint16(150), reading.LoadCurrent)
	assert.Equal(t, uint16(19), reading.LoadPower)
	assert.Equal(t, uint16(188), reading.SolarVoltage)
	assert.Equal(t, uint16(371), reading.SolarCurrent)
	assert.Equal(t, uint16(68), reading.ChargingPower)
	assert.Equal(t, uint16(126), reading.BatteryVoltageMinToday)
	assert.Equal(t, uint16(144), reading.BatteryVoltageMaxToday)
	assert.Equal(t, uint16(1150), reading.ChargingCurrentMaxToday)
	assert.Equal(t, uint16(142), reading.ChargingPowerMaxToday)
	assert.Equal(t, uint16(27), reading.ChargingAmpHoursToday)
	assert.Equal(t, uint16(354), reading.PowerGenerationToday)
	assert.Equal(t, uint8(ChargingStateMPPT), reading.ChargingState)
	assert.True(t, reading.StreetLightOn)
	assert.Equal(t, FaultBatteryOverVoltage, reading.FaultBits)
	assert.True(t, reading.HasFault(FaultBatteryOverVoltage))
	assert.False(t, reading.HasFault(FaultControllerTempTooHigh))
}

func TestDecodeDynamicBlockFaultWordOrder(t *testing.T) {
	regs := testDynamicRegs()
	regs[regFaultBits-DynamicBlockStart] = 0x0220 // bits 21 and 25 of the assembled word
	regs[regFaultBits+1-DynamicBlockStart] = 0x0000

	reading, err := decodeDynamicBlock(regs)
	require.NoError(t, err)
	assert.True(t, reading.HasFault(FaultControllerTempTooHigh))
	assert.True(t, reading.HasFault(FaultPVInputOverVoltage))
	assert.False(t, reading.HasFault(FaultBatteryOverVoltage))
}

func TestDecodeDynamicBlockShort(t *testing.T) {
	_, err := decodeDynamicBlock(make([]uint16, 10))
	require.Error(t, err)
	assert.True(t, IsProtocolError(err))
}

func TestDecodeSignMagnitude(t *testing.T) {
	assert.Equal(t, int16(0), decodeSignMagnitude(0x00))
	assert.Equal(t, int16(25), decodeSignMagnitude(0x19))
	assert.Equal(t, int16(-25), decodeSignMagnitude(0x99))
	assert.Equal(t, int16(127), decodeSignMagnitude(0x7F))
	assert.Equal(t, int16(-127), decodeSignMagnitude(0xFF))
}

func TestRenderVersion(t *testing.T) {
	assert.Equal(t, "1.2.3", renderVersion(0x00010203))
	assert.Equal(t, "0.0.0", renderVersion(0))
	assert.Equal(t, "16.10.5", renderVersion(0x00100A05))
}

func TestChargingStateToString(t *testing.T) {
	assert.Equal(t, "deactivated", ChargingStateToString(ChargingStateDeactivated))
	assert.Equal(t, "activated", ChargingStateToString(ChargingStateActivated))
	assert.Equal(t, "mppt", ChargingStateToString(ChargingStateMPPT))
	assert.Equal(t, "equalizing", ChargingStateToString(ChargingStateEqualizing))
	assert.Equal(t, "boost", ChargingStateToString(ChargingStateBoost))
	assert.Equal(t, "floating", ChargingStateToString(ChargingStateFloating))
	assert.Equal(t, "current limiting", ChargingStateToString(ChargingStateCurrentLimiting))
	assert.Equal(t, "unknown(42)", ChargingStateToString(42))
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, IsTimeoutError(modbus.ErrRequestTimedOut))
	assert.True(t, IsTimeoutError(fmt.Errorf("read: %w", modbus.ErrRequestTimedOut)))
	assert.False(t, IsTimeoutError(modbus.ErrBadCRC))

	assert.True(t, IsProtocolError(modbus.ErrBadCRC))
	assert.True(t, IsProtocolError(modbus.ErrShortFrame))
	assert.True(t, IsProtocolError(modbus.ErrIllegalDataAddress))
	assert.False(t, IsProtocolError(modbus.ErrRequestTimedOut))
}

func TestTestRoverReaderScripting(t *testing.T) {
	reader := CreateTestRoverReader()

	// closed reader refuses reads
	_, err := reader.ReadDynamicData()
	require.Error(t, err)

	require.NoError(t, reader.Open())
	info, err := reader.GetDeviceInfo()
	require.NoError(t, err)
	assert.Equal(t, "RNG-CTRL-RVR40", info.ProductModel)

	reader.FailReads(modbus.ErrBadCRC, 2)
	_, err = reader.ReadDynamicData()
	assert.Error(t, err)
	_, err = reader.ReadDynamicData()
	assert.Error(t, err)
	reading, err := reader.ReadDynamicData()
	require.NoError(t, err)
	assert.Equal(t, uint16(87), reading.BatterySOC)

	require.NoError(t, reader.Close())
	assert.False(t, reader.IsOpen())
	assert.Equal(t, 1, reader.OpenCount())
	assert.Equal(t, 1, reader.CloseCount())
}
