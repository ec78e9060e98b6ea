package knx

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// GroupAddress is a KNX group address in 3-level notation.
//
// Levels:
//   - Main:   0-31 (5 bits)
//   - Middle: 0-7  (3 bits)
//   - Sub:    0-255 (8 bits)
//
// The packed form is 16 bits: MMMM MSSS SSSS SSSS.
type GroupAddress struct {
	Main   uint8
	Middle uint8
	Sub    uint8
}

// Group address limits.
const (
	maxMain   = 31
	maxMiddle = 7
	maxSub    = 255

	gaLevelCount = 3

	gaMainMask   = 0x1F
	gaMiddleMask = 0x07
	gaSubMask    = 0xFF
)

// ParseGroupAddress parses a "main/middle/sub" group address string.
//
// Surrounding whitespace is ignored. Any other deviation from the 3-level
// format returns ErrInvalidGroupAddress.
//
// Example:
//
//	ga, err := knx.ParseGroupAddress("2/1/17")
//	if err != nil {
//	    return err
//	}
func ParseGroupAddress(s string) (GroupAddress, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != gaLevelCount {
		return GroupAddress{}, fmt.Errorf("%w: expected main/middle/sub, got %q", ErrInvalidGroupAddress, s)
	}

	main, err := parseLevel("main", parts[0], maxMain)
	if err != nil {
		return GroupAddress{}, err
	}
	middle, err := parseLevel("middle", parts[1], maxMiddle)
	if err != nil {
		return GroupAddress{}, err
	}
	sub, err := parseLevel("sub", parts[2], maxSub)
	if err != nil {
		return GroupAddress{}, err
	}

	return GroupAddress{Main: main, Middle: middle, Sub: sub}, nil
}

// MustParseGroupAddress is like ParseGroupAddress but panics on error.
// Intended for package-level tables and tests with literal addresses.
func MustParseGroupAddress(s string) GroupAddress {
	ga, err := ParseGroupAddress(s)
	if err != nil {
		panic(err)
	}
	return ga
}

func parseLevel(name, s string, maxValue uint64) (uint8, error) {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil || v > maxValue {
		return 0, fmt.Errorf("%w: %s group must be 0-%d, got %q", ErrInvalidGroupAddress, name, maxValue, s)
	}
	return uint8(v), nil //nolint:gosec // bounded by maxValue
}

// String returns the address in 3-level format, e.g. "1/2/3".
func (ga GroupAddress) String() string {
	return fmt.Sprintf("%d/%d/%d", ga.Main, ga.Middle, ga.Sub)
}

// MarshalText implements encoding.TextMarshaler so addresses render as
// "1/2/3" in JSON reports.
func (ga GroupAddress) MarshalText() ([]byte, error) {
	return []byte(ga.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (ga *GroupAddress) UnmarshalText(text []byte) error {
	parsed, err := ParseGroupAddress(string(text))
	if err != nil {
		return err
	}
	*ga = parsed
	return nil
}

// ToUint16 packs the address into its 16-bit wire form.
func (ga GroupAddress) ToUint16() uint16 {
	return uint16(ga.Main&gaMainMask)<<11 | uint16(ga.Middle&gaMiddleMask)<<8 | uint16(ga.Sub)
}

// GroupAddressFromUint16 unpacks a 16-bit group address.
func GroupAddressFromUint16(value uint16) GroupAddress {
	return GroupAddress{
		Main:   uint8((value >> 11) & gaMainMask),  //nolint:gosec // masked to 5 bits
		Middle: uint8((value >> 8) & gaMiddleMask), //nolint:gosec // masked to 3 bits
		Sub:    uint8(value & gaSubMask),           //nolint:gosec // masked to 8 bits
	}
}

// URLEncode returns the address with "/" escaped, for use as a single MQTT
// topic level.
//
// Example: "1/2/3" → "1%2F2%2F3"
func (ga GroupAddress) URLEncode() string {
	return url.PathEscape(ga.String())
}

// ParseGroupAddressFromURL parses an address produced by URLEncode.
func ParseGroupAddressFromURL(encoded string) (GroupAddress, error) {
	decoded, err := url.PathUnescape(encoded)
	if err != nil {
		return GroupAddress{}, fmt.Errorf("%w: URL decode failed: %w", ErrInvalidGroupAddress, err)
	}
	return ParseGroupAddress(decoded)
}

// IsValid reports whether every level is within its KNX range.
func (ga GroupAddress) IsValid() bool {
	return ga.Main <= maxMain && ga.Middle <= maxMiddle
}
