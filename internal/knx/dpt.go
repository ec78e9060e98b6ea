package knx

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	dpt5MaxValue = 255 // full scale of every 1-byte unsigned type
	dpt5AngleMax = 360
	percentMax   = 100

	// 2-byte float: SEEEEMMM MMMMMMMM, value = 0.01 * M * 2^E with M a
	// 12-bit two's complement mantissa.
	dpt9MaxExponent  = 15
	dpt9MantissaMask = 0x07FF
	dpt9MaxMantissa  = 2047
	dpt9Invalid      = 0x7FFF // "no data" on every 9.xxx type

	byteShift = 8
)

// DPT is a KNX datapoint type identifier in "major.minor" form, e.g. "5.001".
type DPT string

// Datapoint types the codec and the device model understand.
const (
	// 1-bit types (DPT 1.xxx)
	DPTSwitch    DPT = "1.001" // 0=Off, 1=On
	DPTBool      DPT = "1.002" // 0=False, 1=True
	DPTEnable    DPT = "1.003" // 0=Disable, 1=Enable
	DPTStep      DPT = "1.007" // 0=Decrease, 1=Increase
	DPTUpDown    DPT = "1.008" // 0=Up, 1=Down
	DPTOpenClose DPT = "1.009" // 0=Open, 1=Close
	DPTStart     DPT = "1.010" // 0=Stop, 1=Start
	DPTTrigger   DPT = "1.017" // 1=Trigger

	// 4-bit types (DPT 3.xxx)
	DPTDimmingControl DPT = "3.007" // Direction + steps
	DPTBlindControl   DPT = "3.008" // Direction + steps

	// 1-byte unsigned types (DPT 5.xxx)
	DPTPercentage DPT = "5.001" // 0-100%
	DPTAngle      DPT = "5.003" // 0-360°
	DPTPercentU8  DPT = "5.004" // 0-255 raw

	// 2-byte float types (DPT 9.xxx)
	DPTTemperature DPT = "9.001" // °C
	DPTLux         DPT = "9.004" // lux
	DPTSpeed       DPT = "9.005" // m/s
	DPTHumidity    DPT = "9.007" // %
)

// Main returns the major number of the DPT ("5.001" → 5).
// Returns ErrInvalidDPT if the identifier is malformed.
func (d DPT) Main() (int, error) {
	major, _, ok := strings.Cut(string(d), ".")
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDPT, string(d))
	}
	n, err := strconv.Atoi(major)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDPT, string(d))
	}
	return n, nil
}

// EncodeDPT1 encodes a boolean to 1-bit KNX format.
func EncodeDPT1(value bool) []byte {
	if value {
		return []byte{0x01}
	}
	return []byte{0x00}
}

// DecodeDPT1 decodes a 1-bit KNX value. Only bit 0 is significant.
func DecodeDPT1(data []byte) (bool, error) {
	if len(data) < 1 {
		return false, fmt.Errorf("%w: DPT1 requires 1 byte, got %d", ErrDecodingFailed, len(data))
	}
	return (data[0] & 0x01) != 0, nil
}

// EncodeDPT3 encodes a relative dimming/blind step.
//
// Bit 3 carries the direction (1=increase/down), bits 0-2 the step code,
// where 0 means stop.
func EncodeDPT3(increase bool, steps uint8) []byte {
	var value byte
	if increase {
		value = 0x08
	}
	value |= steps & 0x07
	return []byte{value}
}

// DecodeDPT3 decodes a relative dimming/blind step.
func DecodeDPT3(data []byte) (increase bool, steps uint8, err error) {
	if len(data) < 1 {
		return false, 0, fmt.Errorf("%w: DPT3 requires 1 byte, got %d", ErrDecodingFailed, len(data))
	}
	return (data[0] & 0x08) != 0, data[0] & 0x07, nil
}

// scaleToByte maps v from 0..full onto 0..255, rounding to nearest.
// Out-of-range input clamps and NaN reads as 0.
func scaleToByte(v, full float64) byte {
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= full:
		return dpt5MaxValue
	}
	return uint8(math.Round(v * dpt5MaxValue / full))
}

func byteToScale(data []byte, full float64, name string) (float64, error) {
	if len(data) < 1 {
		return 0, fmt.Errorf("%w: %s needs 1 byte, got %d", ErrDecodingFailed, name, len(data))
	}
	return float64(data[0]) * full / dpt5MaxValue, nil
}

// EncodeDPT5 encodes a percentage on the 5.001 scale: 0 is exactly 0x00,
// 100 exactly 0xFF, and the steps between are round(p * 2.55).
func EncodeDPT5(percent float64) []byte {
	return []byte{scaleToByte(percent, percentMax)}
}

// DecodeDPT5 returns the 5.001 byte as 0..100.
func DecodeDPT5(data []byte) (float64, error) {
	return byteToScale(data, percentMax, "DPT 5.001")
}

// EncodeDPT5Angle encodes degrees on the 5.003 scale (0..360).
func EncodeDPT5Angle(angle float64) []byte {
	return []byte{scaleToByte(angle, dpt5AngleMax)}
}

func DecodeDPT5Angle(data []byte) (float64, error) {
	return byteToScale(data, dpt5AngleMax, "DPT 5.003")
}

// EncodeDPT9 encodes value as a 2-byte float, picking the smallest
// exponent whose mantissa fits.
func EncodeDPT9(value float64) ([]byte, error) {
	if math.IsNaN(value) || value < -671088.64 || value > 670760.96 {
		return nil, fmt.Errorf("%w: DPT9 value out of range: %.2f (valid: -671088.64 to 670760.96)", ErrEncodingFailed, value)
	}

	mantissa := value * 100
	limit := float64(dpt9MaxMantissa)
	if mantissa < 0 {
		limit++
	}

	exp := 0
	for math.Abs(math.Round(mantissa)) > limit {
		mantissa /= 2
		exp++
	}
	if exp > dpt9MaxExponent {
		return nil, fmt.Errorf("%w: DPT9 exponent overflow for value %.2f", ErrEncodingFailed, value)
	}

	m := int16(math.Round(mantissa))
	var encoded uint16
	if m < 0 {
		encoded = 0x8000
	}
	encoded |= uint16(exp)<<11 | uint16(m)&dpt9MantissaMask //nolint:gosec // exp ≤ 15, m masked
	return []byte{byte(encoded >> byteShift), byte(encoded)}, nil
}

// DecodeDPT9 decodes a KNX 2-byte float. 0x7FFF ("invalid data") is
// reported as ErrDecodingFailed.
func DecodeDPT9(data []byte) (float64, error) {
	if len(data) < 2 {
		return 0, fmt.Errorf("%w: DPT9 requires 2 bytes, got %d", ErrDecodingFailed, len(data))
	}

	raw := uint16(data[0])<<byteShift | uint16(data[1])
	if raw == dpt9Invalid {
		return 0, fmt.Errorf("%w: DPT9 invalid value 0x7FFF (sensor error or not available)", ErrDecodingFailed)
	}

	exp := (raw >> 11) & 0x0F
	mantissa := int16(raw & dpt9MantissaMask) //nolint:gosec // 11-bit value
	if raw&0x8000 != 0 {
		mantissa |= -0x800
	}

	return float64(mantissa) * 0.01 * math.Pow(2, float64(exp)), nil
}
