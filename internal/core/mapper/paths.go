package mapper

// D-Bus paths of the Venus OS solar charger schema.
const (
	PathMgmtProcessName        = "/Mgmt/ProcessName"
	PathMgmtProcessVersion     = "/Mgmt/ProcessVersion"
	PathMgmtConnection         = "/Mgmt/Connection"
	PathDeviceInstance         = "/DeviceInstance"
	PathProductId              = "/ProductId"
	PathProductName            = "/ProductName"
	PathFirmwareVersion        = "/FirmwareVersion"
	PathHardwareVersion        = "/HardwareVersion"
	PathSerial                 = "/Serial"
	PathCustomName             = "/CustomName"
	PathConnected              = "/Connected"
	PathNrOfTrackers           = "/NrOfTrackers"
	PathMode                   = "/Mode"
	PathDeviceOffReason        = "/DeviceOffReason"
	PathTemperatureSenseActive = "/Link/TemperatureSenseActive"

	PathPvVoltage              = "/Pv/V"
	PathPvCurrent              = "/Pv/I"
	PathYieldPower             = "/Yield/Power"
	PathBatteryVoltage         = "/Dc/0/Voltage"
	PathBatteryCurrent         = "/Dc/0/Current"
	PathTemperatureSense       = "/Link/TemperatureSense"
	PathSoc                    = "/Soc"
	PathLoadState              = "/Load/State"
	PathLoadCurrent            = "/Load/I"
	PathDailyYield             = "/History/Daily/0/Yield"
	PathDailyMaxPower          = "/History/Daily/0/MaxPower"
	PathDailyPvYield           = "/History/Daily/0/Pv/0/Yield"
	PathDailyPvMaxPower        = "/History/Daily/0/Pv/0/MaxPower"
	PathDailyMinBatteryVoltage = "/History/Daily/0/MinBatteryVoltage"
	PathDailyMaxBatteryVoltage = "/History/Daily/0/MaxBatteryVoltage"
	PathDailyMaxBatteryCurrent = "/History/Daily/0/MaxBatteryCurrent"
	PathState                  = "/State"
	PathMppOperationMode       = "/MppOperationMode"
	PathErrorCode              = "/ErrorCode"
)
