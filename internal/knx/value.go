package knx

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Percent is a DPT 5.001 percentage in the range 0-100.
//
// Decoded percentages keep full precision; String rounds to one decimal.
type Percent float64

// String renders the percentage with one decimal, e.g. "66.7%".
func (p Percent) String() string {
	return strconv.FormatFloat(float64(p), 'f', 1, 64) + "%"
}

// Byte re-encodes the percentage on the DPT 5.001 scale.
func (p Percent) Byte() byte {
	return EncodeDPT5(float64(p))[0]
}

// Value is a single KNX datapoint value.
//
// It holds the canonical KNX-encoded bytes and, when built from a native Go
// value, that original value. A Value is immutable; all accessors derive
// their result from the stored bytes. The zero Value carries no data and
// decodes to false / 0%.
type Value struct {
	raw    []byte
	native any
}

// NewValue wraps raw datapoint bytes as received from a device.
// The slice is copied.
func NewValue(raw []byte) Value {
	if len(raw) == 0 {
		return Value{}
	}
	return Value{raw: append([]byte(nil), raw...)}
}

// FromBool builds a 1-bit value: 0x01 for true, 0x00 for false.
func FromBool(b bool) Value {
	return Value{raw: EncodeDPT1(b), native: b}
}

// FromByte stores b verbatim as a single byte.
func FromByte(b byte) Value {
	return Value{raw: []byte{b}, native: b}
}

// FromPercent builds a DPT 5.001 value from a percentage.
//
// The byte is round(p / 100 * 255) clamped to 0-255, so 0 decodes back to
// exactly 0 and 100 to exactly 100.
func FromPercent(p float64) Value {
	return Value{raw: EncodeDPT5(p), native: Percent(p)}
}

// booleanLiterals extends strconv.ParseBool with the switching words used
// in device documentation.
var booleanLiterals = map[string]bool{
	"on":  true,
	"off": false,
}

// FromString builds a value from text.
//
// Boolean literals ("1", "0", "true", "false", "on", "off", ...) become
// 1-bit values; other decimal numbers are treated as percentages. Anything
// else returns ErrConversionFailed.
func FromString(s string) (Value, error) {
	text := strings.TrimSpace(s)

	if b, err := strconv.ParseBool(text); err == nil {
		return Value{raw: EncodeDPT1(b), native: s}, nil
	}
	if b, ok := booleanLiterals[strings.ToLower(text)]; ok {
		return Value{raw: EncodeDPT1(b), native: s}, nil
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, fmt.Errorf("%w: %q is neither a boolean nor a number", ErrConversionFailed, s)
	}
	return Value{raw: EncodeDPT5(f), native: s}, nil
}

// FromNative builds a value from a Go primitive.
//
// Supported inputs:
//   - bool                   → FromBool
//   - byte                   → FromByte
//   - other integers 0-255   → single raw byte
//   - float32, float64       → FromPercent
//   - Percent                → FromPercent
//   - string                 → FromString
//   - []byte                 → NewValue
//   - Value                  → returned unchanged
//   - nil                    → empty value
//
// Anything else returns ErrConversionFailed.
func FromNative(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Value{}, nil
	case Value:
		return val, nil
	case bool:
		return FromBool(val), nil
	case byte:
		return FromByte(val), nil
	case int:
		return fromInteger(int64(val), v)
	case int8:
		return fromInteger(int64(val), v)
	case int16:
		return fromInteger(int64(val), v)
	case int32:
		return fromInteger(int64(val), v)
	case int64:
		return fromInteger(val, v)
	case uint:
		return fromUnsigned(uint64(val), v)
	case uint16:
		return fromUnsigned(uint64(val), v)
	case uint32:
		return fromUnsigned(uint64(val), v)
	case uint64:
		return fromUnsigned(val, v)
	case float32:
		return FromPercent(float64(val)), nil
	case float64:
		return FromPercent(val), nil
	case Percent:
		return FromPercent(float64(val)), nil
	case string:
		return FromString(val)
	case []byte:
		return NewValue(val), nil
	default:
		return Value{}, fmt.Errorf("%w: unsupported native type %T", ErrConversionFailed, v)
	}
}

func fromInteger(n int64, original any) (Value, error) {
	if n < 0 || n > dpt5MaxValue {
		return Value{}, fmt.Errorf("%w: integer %d does not fit in one byte", ErrConversionFailed, n)
	}
	return Value{raw: []byte{byte(n)}, native: original}, nil
}

func fromUnsigned(n uint64, original any) (Value, error) {
	if n > dpt5MaxValue {
		return Value{}, fmt.Errorf("%w: integer %d does not fit in one byte", ErrConversionFailed, n)
	}
	return Value{raw: []byte{byte(n)}, native: original}, nil
}

// Raw returns a copy of the encoded bytes.
func (v Value) Raw() []byte {
	if len(v.raw) == 0 {
		return nil
	}
	return append([]byte(nil), v.raw...)
}

// Native returns the value the Value was constructed from, or nil when it
// was built from raw bytes.
func (v Value) Native() any {
	return v.native
}

// Len returns the number of encoded bytes.
func (v Value) Len() int {
	return len(v.raw)
}

// IsEmpty reports whether the value carries no data.
func (v Value) IsEmpty() bool {
	return len(v.raw) == 0
}

// AsBoolean reports whether any raw byte is non-zero or the value was built
// from boolean true. Empty values are false.
func (v Value) AsBoolean() bool {
	if b, ok := v.native.(bool); ok && b {
		return true
	}
	for _, b := range v.raw {
		if b != 0 {
			return true
		}
	}
	return false
}

// AsByte returns the first raw byte, or 0 for empty values.
func (v Value) AsByte() byte {
	if len(v.raw) == 0 {
		return 0
	}
	return v.raw[0]
}

// AsPercent decodes the first raw byte on the DPT 5.001 scale.
// Empty values decode to 0%.
func (v Value) AsPercent() Percent {
	if len(v.raw) == 0 {
		return 0
	}
	return Percent(float64(v.raw[0]) * percentMax / dpt5MaxValue)
}

// AsPercentageValue is an alias of AsPercent.
func (v Value) AsPercentageValue() Percent {
	return v.AsPercent()
}

// TypedValue decodes the value according to the role the default address
// type map assigns to address. See TypeMap.Decode.
func (v Value) TypedValue(address string) (Typed, error) {
	return DefaultTypeMap().Decode(address, v)
}

// Equal reports whether two values carry the same encoded bytes.
func (v Value) Equal(other Value) bool {
	return bytes.Equal(v.raw, other.raw)
}

// String renders the decoded percentage, the first raw byte and the data
// length, e.g. "66.7% (Raw: 170, Length: 1)".
func (v Value) String() string {
	return fmt.Sprintf("%s (Raw: %d, Length: %d)", v.AsPercent(), v.AsByte(), len(v.raw))
}
