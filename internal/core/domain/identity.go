package domain

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	ProductId          = 0xF102
	ProductName        = "Renogy Rover MPPT"
	DeviceInstanceBase = 288

	serviceNamePrefix = "com.victronenergy.solarcharger"
)

// DeviceIdentity is everything derived from the serial device path. It is
// fixed for the lifetime of the process.
type DeviceIdentity struct {
	// DevicePath is the absolute device node, e.g. /dev/ttyUSB0.
	DevicePath string
	// TTYName is the device basename, e.g. ttyUSB0.
	TTYName string
	// USBOrdinal is the N in ttyUSB<N>.
	USBOrdinal int
	// ServiceName is the bus name claimed on D-Bus.
	ServiceName string
	// DeviceInstance disambiguates multiple chargers on one system.
	DeviceInstance int
}

// IdentityFromDevicePath derives the service identity from a tty device
// path. Only ttyUSB<N> device names are supported; anything else is a
// configuration error, not a runtime condition.
func IdentityFromDevicePath(devicePath string) (DeviceIdentity, error) {
	tty := filepath.Base(devicePath)
	parts := strings.Split(strings.ToLower(tty), "ttyusb")
	if len(parts) != 2 || parts[0] != "" {
		return DeviceIdentity{}, fmt.Errorf("unsupported device name %q: expected ttyUSB<N>", tty)
	}
	ordinal, err := strconv.Atoi(parts[1])
	if err != nil || ordinal < 0 {
		return DeviceIdentity{}, fmt.Errorf("unsupported device name %q: expected ttyUSB<N>", tty)
	}
	return DeviceIdentity{
		DevicePath:     devicePath,
		TTYName:        tty,
		USBOrdinal:     ordinal,
		ServiceName:    fmt.Sprintf("%s.%s", serviceNamePrefix, tty),
		DeviceInstance: DeviceInstanceBase + ordinal,
	}, nil
}

// Connection is the human readable link description published under /Mgmt.
func (d DeviceIdentity) Connection() string {
	return fmt.Sprintf("%s on USB%d", ProductName, d.USBOrdinal)
}

// ConnectionState tracks the poller's view of the serial link. Faulted is
// the reported cause of a torn-down link; the poller folds it back into
// Disconnected once the transition is published.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Faulted
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Faulted:
		return "faulted"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}
