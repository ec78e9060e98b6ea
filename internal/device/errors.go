package device

import "errors"

// Sentinels for errors.Is. Registry and binding errors wrap them with the
// offending device ID or group address.
var (
	ErrDeviceNotFound    = errors.New("device: no such device")
	ErrDeviceExists      = errors.New("device: duplicate device id")
	ErrInvalidDeviceType = errors.New("device: unknown device type")

	// ErrInvalidAddress covers a missing required function as well as a
	// malformed group address.
	ErrInvalidAddress = errors.New("device: invalid function address")

	ErrNotAttached     = errors.New("device: not attached to a bus")
	ErrAlreadyAttached = errors.New("device: already attached to a bus")
)
