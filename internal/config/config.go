package config

import (
	"errors"
	"strings"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel zapcore.Level
	Device   DeviceConfig  `mapstructure:"device"`
	Monitor  MonitorConfig `mapstructure:"monitor"`
	DBus     DBusConfig    `mapstructure:"dbus"`

	SettingsPath string `mapstructure:"settings_path"`
	Port         uint   `mapstructure:"port"`
	HttpLog      bool   `mapstructure:"http_log"`
}

type DeviceConfig struct {
	Path              string `mapstructure:"path"`
	UnitId            uint   `mapstructure:"unit_id"`
	ReadTimeoutMillis uint32 `mapstructure:"read_timeout_millis"`
}

type MonitorConfig struct {
	PollIntervalMillis      uint32 `mapstructure:"poll_interval_millis"`
	ReconnectDelayMillis    uint32 `mapstructure:"reconnect_delay_millis"`
	ReconnectMaxDelayMillis uint32 `mapstructure:"reconnect_max_delay_millis"`
}

type DBusConfig struct {
	UseSessionBus bool `mapstructure:"use_session_bus"`
}

// CheckDevicePath normalizes a serial device argument to an absolute /dev
// path. serial-starter passes "/dev/ttyUSB0" but bare names like "ttyUSB0"
// are accepted too.
func CheckDevicePath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", errors.New("device path cannot be empty")
	}
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/dev/" + trimmed
	}
	return trimmed, nil
}
