package rover_modbus

import (
	"fmt"
)

// Register map of the Renogy Rover / Wanderer MPPT controller family.
// Identity registers are read once per connection, the dynamic block is
// polled as a single range so every snapshot is coherent.
const (
	// identity registers
	RegProductModel    = 0x000C // 8 registers, 16 ASCII bytes
	RegSoftwareVersion = 0x0014 // uint32
	RegHardwareVersion = 0x0016 // uint32
	RegSerialNumber    = 0x0018 // uint32

	// dynamic block, read as one range
	DynamicBlockStart  = 0x0100
	DynamicBlockLength = 35

	regBatterySOC              = 0x0100
	regBatteryVoltage          = 0x0101 // x0.1 V
	regChargingCurrent         = 0x0102 // x0.01 A
	regTemperatures            = 0x0103 // sign-magnitude bytes, controller high, battery low
	regLoadVoltage             = 0x0104 // x0.1 V
	regLoadCurrent             = 0x0105 // x0.01 A
	regLoadPower               = 0x0106 // W
	regSolarVoltage            = 0x0107 // x0.1 V
	regSolarCurrent            = 0x0108 // x0.01 A
	regChargingPower           = 0x0109 // W
	regBatteryVoltageMinToday  = 0x010B // x0.1 V
	regBatteryVoltageMaxToday  = 0x010C // x0.1 V
	regChargingCurrentMaxToday = 0x010D // x0.01 A
	regChargingPowerMaxToday   = 0x010F // W
	regChargingAmpHoursToday   = 0x0111 // Ah
	regPowerGenerationToday    = 0x0113 // Wh
	regChargingState           = 0x0120 // low byte state, bit 15 street light
	regFaultBits               = 0x0121 // uint32 over 0x0121..0x0122
)

// Charging state codes reported in the low byte of register 0x0120.
const (
	ChargingStateDeactivated     = 0
	ChargingStateActivated       = 1
	ChargingStateMPPT            = 2
	ChargingStateEqualizing      = 3
	ChargingStateBoost           = 4
	ChargingStateFloating        = 5
	ChargingStateCurrentLimiting = 6
)

// Fault bits within the 32 bit word assembled from registers 0x0121 (high)
// and 0x0122 (low).
const (
	FaultBatteryOverDischarge  = uint32(1) << 16
	FaultBatteryOverVoltage    = uint32(1) << 17
	FaultBatteryUnderVoltage   = uint32(1) << 18
	FaultLoadShortCircuit      = uint32(1) << 19
	FaultLoadOverPower         = uint32(1) << 20
	FaultControllerTempTooHigh = uint32(1) << 21
	FaultAmbientTempTooHigh    = uint32(1) << 22
	FaultPVInputOverPower      = uint32(1) << 23
	FaultArrayShortCircuit     = uint32(1) << 24
	FaultPVInputOverVoltage    = uint32(1) << 25
	FaultCounterCurrent        = uint32(1) << 26
	FaultWorkingPointOverVolt  = uint32(1) << 27
	FaultPVReverselyConnected  = uint32(1) << 28
	FaultAntiReverseMOSShort   = uint32(1) << 29
	FaultChargeCircuitMOSShort = uint32(1) << 30
)

// DeviceInfo is the identity read once after opening the connection.
type DeviceInfo struct {
	// ProductModel is the ASCII model string, e.g. "RNG-CTRL-RVR40".
	ProductModel string
	// SoftwareVersion rendered as major.minor.patch.
	SoftwareVersion string
	// HardwareVersion rendered as major.minor.patch.
	HardwareVersion string
	// SerialNumber rendered as the decimal value of the serial register.
	SerialNumber string
}

// RegisterReading is one decoded snapshot of the dynamic block. Values are
// raw register integers, scaling to engineering units is left to the caller.
type RegisterReading struct {
	BatterySOC              uint16
	BatteryVoltage          uint16
	ChargingCurrent         uint16
	ControllerTemperature   int16
	BatteryTemperature      int16
	LoadVoltage             uint16
	LoadCurrent             uint16
	LoadPower               uint16
	SolarVoltage            uint16
	SolarCurrent            uint16
	ChargingPower           uint16
	BatteryVoltageMinToday  uint16
	BatteryVoltageMaxToday  uint16
	ChargingCurrentMaxToday uint16
	ChargingPowerMaxToday   uint16
	ChargingAmpHoursToday   uint16
	PowerGenerationToday    uint16
	ChargingState           uint8
	StreetLightOn           bool
	FaultBits               uint32
}

func (r *RegisterReading) HasFault(mask uint32) bool {
	return r.FaultBits&mask != 0
}

// RoverRegisterReader reads identity and live data from a Rover charge
// controller over its serial register protocol.
type RoverRegisterReader interface {
	// Open opens the underlying serial connection
	Open() error
	// Close closes the underlying serial connection
	Close() error
	// Validate checks the connected device answers the identity handshake
	// like a Rover charge controller
	Validate() error
	// GetDeviceInfo reads the device identity registers
	GetDeviceInfo() (*DeviceInfo, error)
	// ReadDynamicData returns one coherent snapshot of the dynamic block
	ReadDynamicData() (*RegisterReading, error)
}

func ChargingStateToString(state uint8) string {
	switch state {
	case ChargingStateDeactivated:
		return "deactivated"
	case ChargingStateActivated:
		return "activated"
	case ChargingStateMPPT:
		return "mppt"
	case ChargingStateEqualizing:
		return "equalizing"
	case ChargingStateBoost:
		return "boost"
	case ChargingStateFloating:
		return "floating"
	case ChargingStateCurrentLimiting:
		return "current limiting"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}
