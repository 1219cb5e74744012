package rover_modbus

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// Serial parameters of the Rover register protocol. The controller does not
// negotiate, these are fixed by the device.
const (
	serialSpeed    = 9600
	serialDataBits = 8
	serialStopBits = 1
)

type RoverModbusReader struct {
	ModbusClient
}

func CreateRoverModbusReader(devicePath string, unitId uint8, timeout time.Duration,
	logger *zap.Logger, instrumentation *ModbusInstrument) (RoverRegisterReader, error) {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:      fmt.Sprintf("rtu://%s", devicePath),
		Speed:    serialSpeed,
		DataBits: serialDataBits,
		Parity:   modbus.PARITY_NONE,
		StopBits: serialStopBits,
		Timeout:  timeout,
	})
	if err != nil {
		return nil, err
	}
	// instrumentation
	var inst []ModbusInstrument
	logInst := traceLoggerInstrumentation(logger.With(zap.String("target", "rover")).With(zap.String("device", devicePath)))
	if logInst != nil {
		inst = append(inst, *logInst)
	}
	if instrumentation != nil {
		inst = append(inst, *instrumentation)
	}

	// set controller station address
	err = client.SetUnitId(unitId)
	if err != nil {
		return nil, err
	}
	// create reader instance
	rover := RoverModbusReader{
		ModbusClient: ModbusClient{
			client:     client,
			instrument: inst,
		},
	}
	return &rover, nil
}

func (reader *RoverModbusReader) Open() error {
	return reader.client.Open()
}

func (reader RoverModbusReader) Close() error {
	return reader.client.Close()
}

func (reader RoverModbusReader) Validate() error {
	model, err := reader.readProductModel()
	if err != nil {
		return err
	}
	if model == "" {
		return errors.New("could not find a Renogy Rover charge controller")
	}
	return nil
}

func (reader RoverModbusReader) GetDeviceInfo() (*DeviceInfo, error) {
	model, err := reader.readProductModel()
	if err != nil {
		return nil, err
	}
	software, err := reader.readUint32(RegSoftwareVersion, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	hardware, err := reader.readUint32(RegHardwareVersion, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	serial, err := reader.readUint32(RegSerialNumber, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}

	return &DeviceInfo{
		ProductModel:    model,
		SoftwareVersion: renderVersion(software),
		HardwareVersion: renderVersion(hardware),
		SerialNumber:    strconv.FormatUint(uint64(serial), 10),
	}, nil
}

func (reader RoverModbusReader) ReadDynamicData() (*RegisterReading, error) {
	regs, err := reader.readRegisters(DynamicBlockStart, DynamicBlockLength, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	return decodeDynamicBlock(regs)
}

// readProductModel reads the 16 byte model string. The register bank pads
// with spaces, some firmwares pad with NULs.
func (reader RoverModbusReader) readProductModel() (string, error) {
	str, err := reader.readString(RegProductModel, 16)
	if err != nil {
		return "", err
	}
	str = strings.TrimSpace(str)
	for _, r := range str {
		if r < 0x20 || r > 0x7E {
			return "", fmt.Errorf("%w: product model contains non printable bytes", modbus.ErrProtocolError)
		}
	}
	return str, nil
}

func decodeDynamicBlock(regs []uint16) (*RegisterReading, error) {
	if len(regs) < DynamicBlockLength {
		return nil, fmt.Errorf("%w: dynamic block too short (%d registers)", modbus.ErrProtocolError, len(regs))
	}
	at := func(addr uint16) uint16 {
		return regs[addr-DynamicBlockStart]
	}
	temps := at(regTemperatures)
	state := at(regChargingState)
	return &RegisterReading{
		BatterySOC:              at(regBatterySOC),
		BatteryVoltage:          at(regBatteryVoltage),
		ChargingCurrent:         at(regChargingCurrent),
		ControllerTemperature:   decodeSignMagnitude(uint8(temps >> 8)),
		BatteryTemperature:      decodeSignMagnitude(uint8(temps & 0xFF)),
		LoadVoltage:             at(regLoadVoltage),
		LoadCurrent:             at(regLoadCurrent),
		LoadPower:               at(regLoadPower),
		SolarVoltage:            at(regSolarVoltage),
		SolarCurrent:            at(regSolarCurrent),
		ChargingPower:           at(regChargingPower),
		BatteryVoltageMinToday:  at(regBatteryVoltageMinToday),
		BatteryVoltageMaxToday:  at(regBatteryVoltageMaxToday),
		ChargingCurrentMaxToday: at(regChargingCurrentMaxToday),
		ChargingPowerMaxToday:   at(regChargingPowerMaxToday),
		ChargingAmpHoursToday:   at(regChargingAmpHoursToday),
		PowerGenerationToday:    at(regPowerGenerationToday),
		ChargingState:           uint8(state & 0x00FF),
		StreetLightOn:           state&0x8000 != 0,
		FaultBits:               uint32(at(regFaultBits))<<16 | uint32(at(regFaultBits+1)),
	}, nil
}

// decodeSignMagnitude decodes the temperature byte convention: bit 7 is the
// sign, bits 0..6 the magnitude in degrees Celsius.
func decodeSignMagnitude(b uint8) int16 {
	v := int16(b & 0x7F)
	if b&0x80 != 0 {
		return -v
	}
	return v
}

// renderVersion renders a version register pair. The low three bytes hold
// major, minor and patch.
func renderVersion(v uint32) string {
	return fmt.Sprintf("%d.%d.%d", (v>>16)&0xFF, (v>>8)&0xFF, v&0xFF)
}

// IsTimeoutError reports whether the device failed to answer in time.
func IsTimeoutError(err error) bool {
	return errors.Is(err, modbus.ErrRequestTimedOut)
}

// IsProtocolError reports whether the device answered with a malformed or
// unexpected frame. The link itself is still considered usable.
func IsProtocolError(err error) bool {
	for _, e := range []error{
		modbus.ErrProtocolError,
		modbus.ErrBadCRC,
		modbus.ErrShortFrame,
		modbus.ErrBadUnitId,
		modbus.ErrIllegalFunction,
		modbus.ErrIllegalDataAddress,
		modbus.ErrIllegalDataValue,
		modbus.ErrServerDeviceFailure,
		modbus.ErrUnexpectedParameters,
	} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
