package mapper

import (
	"github.com/sebmartin/ve-renogy-rover/pkg/rover_modbus"
)

// Venus OS solar charger /State vocabulary.
const (
	StateOff             = 0
	StateFault           = 2
	StateBulk            = 3
	StateAbsorption      = 4
	StateFloat           = 5
	StateStorage         = 6
	StateEqualize        = 7
	StateExternalControl = 252
)

// Venus OS /MppOperationMode vocabulary.
const (
	MppModeOff          = 0
	MppModeLimited      = 1
	MppModeActive       = 2
	MppModeNotAvailable = 255
)

// Venus OS /ErrorCode vocabulary, limited to the conditions the Rover fault
// register can express.
const (
	ErrorNone               = 0
	ErrorBatteryOverVoltage = 2
	ErrorChargerOverTemp    = 17
	ErrorPvOverVoltage      = 33
	ErrorPvOverCurrent      = 34
)

// VenusState maps a Rover charging state code onto the platform /State
// vocabulary. Unrecognized codes map to Off so a firmware surprise never
// fails a poll cycle.
func VenusState(chargingState uint8) int64 {
	switch chargingState {
	case rover_modbus.ChargingStateDeactivated:
		return StateOff
	case rover_modbus.ChargingStateActivated:
		return StateBulk
	case rover_modbus.ChargingStateMPPT:
		return StateBulk
	case rover_modbus.ChargingStateEqualizing:
		return StateEqualize
	case rover_modbus.ChargingStateBoost:
		return StateAbsorption
	case rover_modbus.ChargingStateFloating:
		return StateFloat
	case rover_modbus.ChargingStateCurrentLimiting:
		return StateBulk
	default:
		return StateOff
	}
}

// MppOperationMode maps a Rover charging state code onto /MppOperationMode.
func MppOperationMode(chargingState uint8) int64 {
	switch chargingState {
	case rover_modbus.ChargingStateDeactivated:
		return MppModeOff
	case rover_modbus.ChargingStateCurrentLimiting:
		return MppModeLimited
	case rover_modbus.ChargingStateMPPT:
		return MppModeActive
	default:
		return MppModeNotAvailable
	}
}

// VenusErrorCode maps the Rover fault word onto /ErrorCode. The platform
// shows one error at a time, priority follows the table order. Faults the
// vocabulary cannot express report no error.
func VenusErrorCode(faults uint32) int64 {
	switch {
	case faults&rover_modbus.FaultBatteryOverVoltage != 0:
		return ErrorBatteryOverVoltage
	case faults&rover_modbus.FaultControllerTempTooHigh != 0:
		return ErrorChargerOverTemp
	case faults&rover_modbus.FaultPVInputOverVoltage != 0:
		return ErrorPvOverVoltage
	case faults&rover_modbus.FaultPVInputOverPower != 0:
		return ErrorPvOverCurrent
	default:
		return ErrorNone
	}
}
