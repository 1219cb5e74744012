package domain

// ValueKind discriminates the payload of a Value.
type ValueKind uint8

const (
	KindInvalid ValueKind = iota
	KindFloat
	KindInt
	KindText
)

// Value is a published property value. The zero value is the invalid value,
// which stands for "no data" on the bus.
type Value struct {
	Kind  ValueKind
	Float float64
	Int   int64
	Text  string
}

func FloatValue(v float64) Value {
	return Value{Kind: KindFloat, Float: v}
}

func IntValue(v int64) Value {
	return Value{Kind: KindInt, Int: v}
}

func TextValue(s string) Value {
	return Value{Kind: KindText, Text: s}
}

func InvalidValue() Value {
	return Value{Kind: KindInvalid}
}

func (v Value) IsInvalid() bool {
	return v.Kind == KindInvalid
}

func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindFloat:
		return v.Float == o.Float
	case KindInt:
		return v.Int == o.Int
	case KindText:
		return v.Text == o.Text
	default:
		return true
	}
}

// Native returns the value as a plain Go type, nil for the invalid value.
func (v Value) Native() any {
	switch v.Kind {
	case KindFloat:
		return v.Float
	case KindInt:
		return v.Int
	case KindText:
		return v.Text
	default:
		return nil
	}
}

// PathValue is a single property update addressed by its bus path.
type PathValue struct {
	Path  string
	Value Value
}

// DeviceDetails is the identity record cached on disk between runs so the
// service can publish a stable identity while the controller is offline.
type DeviceDetails struct {
	ProductName     string
	CustomName      string
	Serial          string
	FirmwareVersion string
	HardwareVersion string
}
