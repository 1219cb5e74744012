package util

import (
	"github.com/sebmartin/ve-renogy-rover/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Device: config.DeviceConfig{
			Path:              "/dev/ttyUSB0",
			UnitId:            1,
			ReadTimeoutMillis: 500,
		},
		Monitor: config.MonitorConfig{
			PollIntervalMillis:      1000,
			ReconnectDelayMillis:    1000,
			ReconnectMaxDelayMillis: 30000,
		},
		Port: 8080,
	}
}
