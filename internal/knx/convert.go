package knx

import (
	"fmt"
	"math"
	"strings"
)

// Kind identifies the shape a Value is converted to.
type Kind int

// Supported conversion targets.
const (
	KindInvalid Kind = iota
	KindPercent
	KindByte
	KindBool
)

var kindNames = map[Kind]string{
	KindPercent: "percent",
	KindByte:    "byte",
	KindBool:    "bool",
}

// String returns the lower-case kind name.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind parses a kind name ("percent", "byte", "bool").
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "percent", "percentage", "%":
		return KindPercent, nil
	case "byte", "raw", "uint8":
		return KindByte, nil
	case "bool", "boolean":
		return KindBool, nil
	default:
		return KindInvalid, fmt.Errorf("%w: %q", ErrUnsupportedType, s)
	}
}

// KindForDPT returns the conversion kind matching a datapoint type.
//
//   - 1.xxx  → KindBool
//   - 5.004  → KindByte
//   - other 5.xxx → KindPercent
//
// Every other DPT returns ErrUnsupportedType.
func KindForDPT(dpt DPT) (Kind, error) {
	main, err := dpt.Main()
	if err != nil {
		return KindInvalid, err
	}
	switch {
	case main == 1:
		return KindBool, nil
	case dpt == DPTPercentU8:
		return KindByte, nil
	case main == 5:
		return KindPercent, nil
	default:
		return KindInvalid, fmt.Errorf("%w: no kind for DPT %s", ErrUnsupportedType, dpt)
	}
}

// Typed is the result of a shape-directed conversion: exactly one of a
// Percent, a byte or a bool, tagged by Kind.
type Typed struct {
	kind    Kind
	percent Percent
	raw     byte
	flag    bool
}

// TypedPercent wraps a Percent.
func TypedPercent(p Percent) Typed { return Typed{kind: KindPercent, percent: p} }

// TypedByte wraps a byte.
func TypedByte(b byte) Typed { return Typed{kind: KindByte, raw: b} }

// TypedBool wraps a bool.
func TypedBool(b bool) Typed { return Typed{kind: KindBool, flag: b} }

// Kind returns which variant is populated.
func (t Typed) Kind() Kind { return t.kind }

// Percent returns the percentage and whether t holds one.
func (t Typed) Percent() (Percent, bool) { return t.percent, t.kind == KindPercent }

// Byte returns the raw byte and whether t holds one.
func (t Typed) Byte() (byte, bool) { return t.raw, t.kind == KindByte }

// Bool returns the boolean and whether t holds one.
func (t Typed) Bool() (bool, bool) { return t.flag, t.kind == KindBool }

// Any returns the held value as an interface (Percent, byte or bool).
func (t Typed) Any() any {
	switch t.kind {
	case KindPercent:
		return t.percent
	case KindByte:
		return t.raw
	case KindBool:
		return t.flag
	default:
		return nil
	}
}

// String renders the held value.
func (t Typed) String() string {
	switch t.kind {
	case KindPercent:
		return t.percent.String()
	case KindByte:
		return fmt.Sprintf("%d", t.raw)
	case KindBool:
		return fmt.Sprintf("%t", t.flag)
	default:
		return "<invalid>"
	}
}

// AutoConvert reinterprets the value as the requested shape using the same
// rules as AsPercent, AsByte and AsBoolean.
func (v Value) AutoConvert(kind Kind) (Typed, error) {
	switch kind {
	case KindPercent:
		return TypedPercent(v.AsPercent()), nil
	case KindByte:
		return TypedByte(v.AsByte()), nil
	case KindBool:
		return TypedBool(v.AsBoolean()), nil
	default:
		return Typed{}, fmt.Errorf("%w: %s", ErrUnsupportedType, kind)
	}
}

// Convert returns v as T, resolved at the call site:
//
//	p, _ := knx.Convert[knx.Percent](v)
//	b, _ := knx.Convert[bool](v)
func Convert[T Percent | byte | bool](v Value) (T, error) {
	var zero T
	var out any
	switch any(zero).(type) {
	case Percent:
		out = v.AsPercent()
	case byte:
		out = v.AsByte()
	case bool:
		out = v.AsBoolean()
	default:
		return zero, fmt.Errorf("%w: %T", ErrUnsupportedType, zero)
	}
	return out.(T), nil
}

// EncodeForDPT encodes a native value with the codec for dpt.
//
// Accepted natives per DPT family:
//   - 1.xxx: bool, or anything FromNative accepts (non-zero is true)
//   - 3.xxx: Step
//   - 5.001: percentage as float64, Percent or int
//   - 5.003: angle in degrees as float64 or int
//   - 5.004: a whole number 0-255 as byte, int or float64 (taken as is,
//     not scaled)
//   - 9.xxx: float64 or int
func EncodeForDPT(dpt DPT, native any) (Value, error) {
	main, err := dpt.Main()
	if err != nil {
		return Value{}, err
	}

	switch main {
	case 1:
		if b, ok := native.(bool); ok {
			return FromBool(b), nil
		}
		v, convErr := FromNative(native)
		if convErr != nil {
			return Value{}, convErr
		}
		return Value{raw: EncodeDPT1(v.AsBoolean()), native: native}, nil

	case 3:
		step, ok := native.(Step)
		if !ok {
			return Value{}, fmt.Errorf("%w: DPT %s needs a Step, got %T", ErrEncodingFailed, dpt, native)
		}
		return Value{raw: EncodeDPT3(step.Increase, step.Code), native: step}, nil

	case 5:
		return encodeDPT5Family(dpt, native)

	case 9:
		f, ok := toFloat(native)
		if !ok {
			return Value{}, fmt.Errorf("%w: DPT %s needs a number, got %T", ErrEncodingFailed, dpt, native)
		}
		data, encErr := EncodeDPT9(f)
		if encErr != nil {
			return Value{}, encErr
		}
		return Value{raw: data, native: f}, nil
	}

	return Value{}, fmt.Errorf("%w: %s", ErrInvalidDPT, dpt)
}

func encodeDPT5Family(dpt DPT, native any) (Value, error) {
	switch dpt {
	case DPTPercentU8:
		f, ok := toFloat(native)
		if !ok || f != math.Trunc(f) || f < 0 || f > dpt5MaxValue {
			return Value{}, fmt.Errorf("%w: DPT %s needs a whole number 0-255, got %v", ErrEncodingFailed, dpt, native)
		}
		return FromByte(byte(f)), nil
	case DPTAngle:
		f, ok := toFloat(native)
		if !ok {
			return Value{}, fmt.Errorf("%w: DPT %s needs a number, got %T", ErrEncodingFailed, dpt, native)
		}
		return Value{raw: EncodeDPT5Angle(f), native: f}, nil
	default:
		f, ok := toFloat(native)
		if !ok {
			return Value{}, fmt.Errorf("%w: DPT %s needs a number, got %T", ErrEncodingFailed, dpt, native)
		}
		return FromPercent(f), nil
	}
}

// Decode interprets the value with the codec for dpt and returns a native
// Go value: bool, Step, Percent, float64 (angle, DPT 9) or byte.
// Unlike the As* accessors, missing data is a decoding error here.
func (v Value) Decode(dpt DPT) (any, error) {
	main, err := dpt.Main()
	if err != nil {
		return nil, err
	}

	switch main {
	case 1:
		return DecodeDPT1(v.raw)
	case 3:
		increase, code, decErr := DecodeDPT3(v.raw)
		if decErr != nil {
			return nil, decErr
		}
		return Step{Increase: increase, Code: code}, nil
	case 5:
		if len(v.raw) < 1 {
			return nil, fmt.Errorf("%w: DPT5 requires 1 byte, got 0", ErrDecodingFailed)
		}
		switch dpt {
		case DPTPercentU8:
			return v.raw[0], nil
		case DPTAngle:
			return DecodeDPT5Angle(v.raw)
		default:
			return v.AsPercent(), nil
		}
	case 9:
		return DecodeDPT9(v.raw)
	}

	return nil, fmt.Errorf("%w: %s", ErrInvalidDPT, dpt)
}

// Step is a DPT 3.007/3.008 relative control command. Code 0 is stop;
// codes 1-7 select an interval of 100%/2^(code-1).
type Step struct {
	Increase bool
	Code     uint8
}

// Percent returns the relative change requested by the step, signed by
// direction. Stop (code 0) returns 0.
func (s Step) Percent() float64 {
	code := s.Code & 0x07
	if code == 0 {
		return 0
	}
	delta := percentMax / float64(uint(1)<<(code-1))
	if !s.Increase {
		return -delta
	}
	return delta
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case Percent:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case byte:
		return float64(n), true
	default:
		return 0, false
	}
}
