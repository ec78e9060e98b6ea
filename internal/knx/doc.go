// Package knx implements the KNX datapoint value codec used by the device
// test harness.
//
// The central type is Value: a datapoint payload that can be built from raw
// bytes delivered by a device or from a native Go value, and read back as a
// boolean, a percentage or a raw byte.
//
// # Values
//
//	v := knx.NewValue([]byte{170})
//	fmt.Println(v)             // "66.7% (Raw: 170, Length: 1)"
//	fmt.Println(v.AsBoolean()) // true
//
//	zero := knx.FromPercent(0)
//	zero.AsPercent() == 0      // exactly, no rounding residue
//
// Empty payloads are not errors: they decode to false and 0%.
//
// # Address-driven typing
//
// A TypeMap assigns a function (and so a decode kind) to group addresses by
// pattern. The same bytes decode to a Percent on a position feedback address
// and to a bool on a lock feedback address:
//
//	v := knx.NewValue([]byte{1})
//	v.TypedValue("2/1/17") // Percent 0.4%
//	v.TypedValue("2/1/20") // bool true
//
// # Datapoint Types
//
// The DPT codecs cover what switches, dimmers and shutters exchange:
//
//   - DPT 1.xxx: 1-bit (switch, enable, up/down, step)
//   - DPT 3.xxx: relative dimming / blind control
//   - DPT 5.xxx: 1-byte unsigned (percentage, angle, raw)
//   - DPT 9.xxx: 2-byte float (lux, temperature, wind speed)
//
// # Thread Safety
//
// Values are immutable and every function in this package is pure, so all
// of it is safe for concurrent use.
package knx
