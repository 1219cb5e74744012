package mapper

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/carlmjohnson/versioninfo"

	"github.com/sebmartin/ve-renogy-rover/internal/core/domain"
	"github.com/sebmartin/ve-renogy-rover/pkg/rover_modbus"
)

const ProcessName = "ve-renogy-rover"

const customNameMaxBytes = 64

type Kind uint8

const (
	// KindGauge is a scaled float quantity.
	KindGauge Kind = iota
	// KindEnum is an integer of a platform vocabulary.
	KindEnum
	// KindStatic is an identity value seeded at start and never nulled.
	KindStatic
)

// Mapping binds one logical quantity to its published path. The table is
// static, loaded once, never mutated.
type Mapping struct {
	Quantity string
	Path     string
	Scale    float64
	Unit     string
	Decimals int
	Writable bool
	Kind     Kind

	raw func(*rover_modbus.RegisterReading) float64
}

var quantityTable = []Mapping{
	{Quantity: "solar_voltage", Path: PathPvVoltage, Scale: 0.1, Unit: "V", Decimals: 1, Kind: KindGauge,
		raw: func(r *rover_modbus.RegisterReading) float64 { return float64(r.SolarVoltage) }},
	{Quantity: "solar_current", Path: PathPvCurrent, Scale: 0.01, Unit: "A", Decimals: 2, Kind: KindGauge,
		raw: func(r *rover_modbus.RegisterReading) float64 { return float64(r.SolarCurrent) }},
	{Quantity: "pv_power", Path: PathYieldPower, Unit: "W", Decimals: 0, Kind: KindGauge},
	{Quantity: "battery_voltage", Path: PathBatteryVoltage, Scale: 0.1, Unit: "V", Decimals: 1, Kind: KindGauge,
		raw: func(r *rover_modbus.RegisterReading) float64 { return float64(r.BatteryVoltage) }},
	{Quantity: "charging_current", Path: PathBatteryCurrent, Scale: 0.01, Unit: "A", Decimals: 2, Kind: KindGauge,
		raw: func(r *rover_modbus.RegisterReading) float64 { return float64(r.ChargingCurrent) }},
	{Quantity: "battery_temperature", Path: PathTemperatureSense, Scale: 1, Unit: "°C", Decimals: 0, Kind: KindGauge,
		raw: func(r *rover_modbus.RegisterReading) float64 { return float64(r.BatteryTemperature) }},
	{Quantity: "battery_soc", Path: PathSoc, Scale: 1, Unit: "%", Decimals: 0, Kind: KindGauge,
		raw: func(r *rover_modbus.RegisterReading) float64 { return float64(r.BatterySOC) }},
	{Quantity: "load_state", Path: PathLoadState, Kind: KindEnum},
	{Quantity: "load_current", Path: PathLoadCurrent, Scale: 0.01, Unit: "A", Decimals: 2, Kind: KindGauge,
		raw: func(r *rover_modbus.RegisterReading) float64 { return float64(r.LoadCurrent) }},
	{Quantity: "yield_today", Path: PathDailyYield, Scale: 0.001, Unit: "kWh", Decimals: 2, Kind: KindGauge,
		raw: func(r *rover_modbus.RegisterReading) float64 { return float64(r.PowerGenerationToday) }},
	{Quantity: "max_power_today", Path: PathDailyMaxPower, Scale: 1, Unit: "W", Decimals: 0, Kind: KindGauge,
		raw: func(r *rover_modbus.RegisterReading) float64 { return float64(r.ChargingPowerMaxToday) }},
	{Quantity: "pv_yield_today", Path: PathDailyPvYield, Scale: 0.001, Unit: "kWh", Decimals: 2, Kind: KindGauge,
		raw: func(r *rover_modbus.RegisterReading) float64 { return float64(r.PowerGenerationToday) }},
	{Quantity: "pv_max_power_today", Path: PathDailyPvMaxPower, Scale: 1, Unit: "W", Decimals: 0, Kind: KindGauge,
		raw: func(r *rover_modbus.RegisterReading) float64 { return float64(r.ChargingPowerMaxToday) }},
	{Quantity: "min_battery_voltage_today", Path: PathDailyMinBatteryVoltage, Scale: 0.1, Unit: "V", Decimals: 1, Kind: KindGauge,
		raw: func(r *rover_modbus.RegisterReading) float64 { return float64(r.BatteryVoltageMinToday) }},
	{Quantity: "max_battery_voltage_today", Path: PathDailyMaxBatteryVoltage, Scale: 0.1, Unit: "V", Decimals: 1, Kind: KindGauge,
		raw: func(r *rover_modbus.RegisterReading) float64 { return float64(r.BatteryVoltageMaxToday) }},
	{Quantity: "max_charging_current_today", Path: PathDailyMaxBatteryCurrent, Scale: 0.01, Unit: "A", Decimals: 2, Kind: KindGauge,
		raw: func(r *rover_modbus.RegisterReading) float64 { return float64(r.ChargingCurrentMaxToday) }},
	{Quantity: "charging_state", Path: PathState, Kind: KindEnum},
	{Quantity: "mpp_operation_mode", Path: PathMppOperationMode, Kind: KindEnum},
	{Quantity: "error_code", Path: PathErrorCode, Kind: KindEnum},
}

var tableByPath = func() map[string]Mapping {
	m := make(map[string]Mapping, len(quantityTable))
	for _, e := range quantityTable {
		m[e.Path] = e
	}
	return m
}()

// MapReading translates one register snapshot into the full outbound update
// set. Pure function, one call per poll cycle.
func MapReading(r *rover_modbus.RegisterReading) []domain.PathValue {
	updates := make([]domain.PathValue, 0, len(quantityTable))
	for _, m := range quantityTable {
		if m.raw == nil {
			continue
		}
		updates = append(updates, domain.PathValue{
			Path:  m.Path,
			Value: domain.FloatValue(roundTo(m.raw(r)*m.Scale, m.Decimals)),
		})
	}

	// the device reports battery-side charging power but not PV-side power
	pvVolt := roundTo(float64(r.SolarVoltage)*0.1, 1)
	pvCurr := roundTo(float64(r.SolarCurrent)*0.01, 2)
	updates = append(updates,
		domain.PathValue{Path: PathYieldPower, Value: domain.FloatValue(math.Round(pvVolt * pvCurr))},
		domain.PathValue{Path: PathLoadState, Value: domain.IntValue(loadState(r.StreetLightOn))},
		domain.PathValue{Path: PathState, Value: domain.IntValue(VenusState(r.ChargingState))},
		domain.PathValue{Path: PathMppOperationMode, Value: domain.IntValue(MppOperationMode(r.ChargingState))},
		domain.PathValue{Path: PathErrorCode, Value: domain.IntValue(VenusErrorCode(r.FaultBits))},
	)
	return updates
}

// IdentityValues builds the static path seed: management info, device
// identity and the persisted details. /Connected starts at 0 until the
// poller reports the first successful open.
func IdentityValues(id domain.DeviceIdentity, details domain.DeviceDetails) []domain.PathValue {
	values := []domain.PathValue{
		{Path: PathMgmtProcessName, Value: domain.TextValue(ProcessName)},
		{Path: PathMgmtProcessVersion, Value: domain.TextValue(versioninfo.Short())},
		{Path: PathMgmtConnection, Value: domain.TextValue(id.Connection())},
		{Path: PathDeviceInstance, Value: domain.IntValue(int64(id.DeviceInstance))},
		{Path: PathProductId, Value: domain.IntValue(domain.ProductId)},
		{Path: PathCustomName, Value: domain.TextValue(details.CustomName)},
		{Path: PathConnected, Value: domain.IntValue(0)},
		{Path: PathNrOfTrackers, Value: domain.IntValue(1)},
		{Path: PathMode, Value: domain.IntValue(1)},
		{Path: PathDeviceOffReason, Value: domain.IntValue(0)},
		{Path: PathTemperatureSenseActive, Value: domain.IntValue(1)},
	}
	return append(values, DetailsValues(details)...)
}

// DetailsValues builds the identity paths refreshed after each successful
// handshake.
func DetailsValues(details domain.DeviceDetails) []domain.PathValue {
	return []domain.PathValue{
		{Path: PathProductName, Value: domain.TextValue(details.ProductName)},
		{Path: PathFirmwareVersion, Value: domain.TextValue(details.FirmwareVersion)},
		{Path: PathHardwareVersion, Value: domain.TextValue(details.HardwareVersion)},
		{Path: PathSerial, Value: domain.TextValue(details.Serial)},
	}
}

// DynamicPaths lists every quantity-derived path, the set nulled on
// disconnect. Order matches the mapping table.
func DynamicPaths() []string {
	paths := make([]string, 0, len(quantityTable))
	for _, m := range quantityTable {
		paths = append(paths, m.Path)
	}
	return paths
}

// Writable reports whether external writes to path are allowed.
func Writable(path string) bool {
	return path == PathCustomName
}

// NormalizeExternalWrite validates an inbound write and returns the value
// to store. Only /CustomName is writable: strings only, trimmed, bounded.
func NormalizeExternalWrite(path string, value domain.Value) (domain.Value, error) {
	if !Writable(path) {
		return domain.Value{}, domain.ErrReadOnlyPath
	}
	if value.Kind != domain.KindText {
		return domain.Value{}, errors.New("custom name must be a string")
	}
	name := strings.TrimSpace(value.Text)
	if len(name) > customNameMaxBytes {
		return domain.Value{}, fmt.Errorf("custom name exceeds %d bytes", customNameMaxBytes)
	}
	return domain.TextValue(name), nil
}

// FormatText renders the display text of a value the way the platform GUI
// expects: decimals and unit for gauges, plain decimal for enums, "---" for
// the invalid value.
func FormatText(path string, v domain.Value) string {
	if v.IsInvalid() {
		return "---"
	}
	if m, ok := tableByPath[path]; ok && m.Kind == KindGauge && v.Kind == domain.KindFloat {
		return fmt.Sprintf("%.*f%s", m.Decimals, v.Float, m.Unit)
	}
	switch v.Kind {
	case domain.KindFloat:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	case domain.KindInt:
		return strconv.FormatInt(v.Int, 10)
	default:
		return v.Text
	}
}

func loadState(on bool) int64 {
	if on {
		return 1
	}
	return 0
}

// roundTo keeps published floats at their display precision so repeated
// identical readings compare equal in the store.
func roundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
