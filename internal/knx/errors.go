package knx

import "errors"

// Domain errors for the KNX codec package.
var (
	// ErrInvalidGroupAddress is returned when a group address string
	// cannot be parsed.
	ErrInvalidGroupAddress = errors.New("knx: invalid group address")

	// ErrInvalidDPT is returned when a datapoint type identifier is invalid
	// or not supported by the codec.
	ErrInvalidDPT = errors.New("knx: invalid datapoint type")

	// ErrEncodingFailed is returned when encoding a value to KNX format fails.
	ErrEncodingFailed = errors.New("knx: encoding failed")

	// ErrDecodingFailed is returned when decoding KNX data to a value fails.
	ErrDecodingFailed = errors.New("knx: decoding failed")

	// ErrConversionFailed is returned when a native value cannot be
	// represented as a KNX value (e.g. text that is neither a boolean
	// literal nor a number).
	ErrConversionFailed = errors.New("knx: conversion failed")

	// ErrUnsupportedType is returned when a conversion to an unsupported
	// target shape is requested.
	ErrUnsupportedType = errors.New("knx: unsupported target type")
)
