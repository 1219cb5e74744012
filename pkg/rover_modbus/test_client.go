package rover_modbus

import (
	"errors"
	"sync"
)

// TestRoverReader is a canned in-memory reader for tests. Failure modes can
// be rescripted from the test goroutine while an actor owns the reader.
type TestRoverReader struct {
	mu sync.Mutex

	openErr     error
	validateErr error
	readErr     error
	readErrLeft int

	opened     bool
	openCount  int
	closeCount int
	readCount  int

	info    DeviceInfo
	reading RegisterReading
}

func CreateTestRoverReader() *TestRoverReader {
	return &TestRoverReader{
		info: DeviceInfo{
			ProductModel:    "RNG-CTRL-RVR40",
			SoftwareVersion: "1.0.3",
			HardwareVersion: "1.0.2",
			SerialNumber:    "41218156",
		},
		reading: RegisterReading{
			BatterySOC:              87,
			BatteryVoltage:          133,
			ChargingCurrent:         512,
			ControllerTemperature:   31,
			BatteryTemperature:      24,
			LoadVoltage:             133,
			LoadCurrent:             150,
			LoadPower:               19,
			SolarVoltage:            188,
			SolarCurrent:            371,
			ChargingPower:           68,
			BatteryVoltageMinToday:  126,
			BatteryVoltageMaxToday:  144,
			ChargingCurrentMaxToday: 1150,
			ChargingPowerMaxToday:   142,
			ChargingAmpHoursToday:   27,
			PowerGenerationToday:    354,
			ChargingState:           ChargingStateMPPT,
		},
	}
}

func (r *TestRoverReader) Open() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openCount++
	if r.openErr != nil {
		return r.openErr
	}
	r.opened = true
	return nil
}

func (r *TestRoverReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeCount++
	r.opened = false
	return nil
}

func (r *TestRoverReader) Validate() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.validateErr
}

func (r *TestRoverReader) GetDeviceInfo() (*DeviceInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.opened {
		return nil, errors.New("reader not open")
	}
	info := r.info
	return &info, nil
}

func (r *TestRoverReader) ReadDynamicData() (*RegisterReading, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readCount++
	if !r.opened {
		return nil, errors.New("reader not open")
	}
	if r.readErr != nil && r.readErrLeft != 0 {
		if r.readErrLeft > 0 {
			r.readErrLeft--
		}
		return nil, r.readErr
	}
	reading := r.reading
	return &reading, nil
}

// FailOpen makes every following Open call fail with err. Pass nil to let
// opens succeed again.
func (r *TestRoverReader) FailOpen(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openErr = err
}

// FailValidate makes the identity handshake fail with err.
func (r *TestRoverReader) FailValidate(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validateErr = err
}

// FailReads makes the next n reads fail with err. n < 0 means fail forever.
func (r *TestRoverReader) FailReads(err error, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readErr = err
	r.readErrLeft = n
}

func (r *TestRoverReader) SetReading(reading RegisterReading) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reading = reading
}

func (r *TestRoverReader) SetInfo(info DeviceInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.info = info
}

func (r *TestRoverReader) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opened
}

func (r *TestRoverReader) OpenCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.openCount
}

func (r *TestRoverReader) CloseCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeCount
}

func (r *TestRoverReader) ReadCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readCount
}
