package harness

import "errors"

var (
	// ErrTimeout is returned when WaitFor gives up.
	ErrTimeout = errors.New("harness: timed out waiting for value")

	// ErrExpectation is returned when a group address does not carry the
	// expected value.
	ErrExpectation = errors.New("harness: expectation failed")

	// ErrSkip marks a case that cannot run, e.g. because the device lacks
	// a binding the case needs. Wrap it to give a reason.
	ErrSkip = errors.New("harness: case skipped")

	// ErrMissingBinding is returned when a device has no address for a
	// function a case requires.
	ErrMissingBinding = errors.New("harness: missing binding")
)
