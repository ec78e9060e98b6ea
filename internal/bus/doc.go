// Package bus carries KNX group values between the test harness and the
// simulated devices.
//
// Two implementations are provided:
//
//   - Memory: in-process, synchronous delivery, with a write history
//   - MQTT: one retained topic per group address on an MQTT broker, so the
//     harness and devices can run in different processes
//
// Payloads are raw KNX bytes; use the knx package to encode and decode.
package bus
