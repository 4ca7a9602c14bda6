package piezo

import (
	"errors"
	"fmt"
)

// ErrorCode is a numeric protocol error code returned by a device in an
// "error,<code>" frame.
type ErrorCode int

// Error codes shared by all device families. Codes 11 and 12 are family
// extensions reported by d-Drive systems as error substrings rather than
// numeric codes.
const (
	CodeNotSpecified           ErrorCode = 1
	CodeUnknownCommand         ErrorCode = 2
	CodeParameterMissing       ErrorCode = 3
	CodeParameterRangeExceeded ErrorCode = 4
	CodeParameterCountExceeded ErrorCode = 5
	CodeParameterLocked        ErrorCode = 6
	CodeUnderload              ErrorCode = 7
	CodeOverload               ErrorCode = 8
	CodeParameterTooLow        ErrorCode = 9
	CodeParameterTooHigh       ErrorCode = 10
	CodeUnknownChannel         ErrorCode = 11
	CodeActuatorNotConnected   ErrorCode = 12
)

// errorDescriptions maps each error code to its human-readable description.
// Kept as a separate lookup table rather than attached to the code values.
var errorDescriptions = map[ErrorCode]string{
	CodeNotSpecified:           "error not specified",
	CodeUnknownCommand:         "unknown command",
	CodeParameterMissing:       "parameter missing",
	CodeParameterRangeExceeded: "admissible parameter range exceeded",
	CodeParameterCountExceeded: "command's parameter count exceeded",
	CodeParameterLocked:        "parameter is locked or read only",
	CodeUnderload:              "underload",
	CodeOverload:               "overload",
	CodeParameterTooLow:        "parameter too low",
	CodeParameterTooHigh:       "parameter too high",
	CodeUnknownChannel:         "unknown channel",
	CodeActuatorNotConnected:   "actuator not connected",
}

// String returns the description for the code, or a placeholder for codes
// with no mapping.
func (c ErrorCode) String() string {
	if desc, ok := errorDescriptions[c]; ok {
		return desc
	}

	return fmt.Sprintf("unknown error code %d", int(c))
}

// DeviceError is a protocol-level error frame classified into a semantic kind.
//
// The sentinel instances below are the only DeviceError values the library
// produces, so errors.Is comparisons against them identify the kind.
type DeviceError struct {
	code ErrorCode
}

// Code returns the semantic error code.
func (e *DeviceError) Code() ErrorCode { return e.code }

func (e *DeviceError) Error() string {
	return fmt.Sprintf("piezo: %s (error code %d)", e.code.String(), int(e.code))
}

// Sentinel device errors, one per semantic kind.
var (
	ErrNotSpecified           = &DeviceError{CodeNotSpecified}
	ErrUnknownCommand         = &DeviceError{CodeUnknownCommand}
	ErrParameterMissing       = &DeviceError{CodeParameterMissing}
	ErrParameterRangeExceeded = &DeviceError{CodeParameterRangeExceeded}
	ErrParameterCountExceeded = &DeviceError{CodeParameterCountExceeded}
	ErrParameterLocked        = &DeviceError{CodeParameterLocked}
	ErrUnderload              = &DeviceError{CodeUnderload}
	ErrOverload               = &DeviceError{CodeOverload}
	ErrParameterTooLow        = &DeviceError{CodeParameterTooLow}
	ErrParameterTooHigh       = &DeviceError{CodeParameterTooHigh}
	ErrUnknownChannel         = &DeviceError{CodeUnknownChannel}
	ErrActuatorNotConnected   = &DeviceError{CodeActuatorNotConnected}
)

var errByCode = map[ErrorCode]*DeviceError{
	CodeNotSpecified:           ErrNotSpecified,
	CodeUnknownCommand:         ErrUnknownCommand,
	CodeParameterMissing:       ErrParameterMissing,
	CodeParameterRangeExceeded: ErrParameterRangeExceeded,
	CodeParameterCountExceeded: ErrParameterCountExceeded,
	CodeParameterLocked:        ErrParameterLocked,
	CodeUnderload:              ErrUnderload,
	CodeOverload:               ErrOverload,
	CodeParameterTooLow:        ErrParameterTooLow,
	CodeParameterTooHigh:       ErrParameterTooHigh,
	CodeUnknownChannel:         ErrUnknownChannel,
	CodeActuatorNotConnected:   ErrActuatorNotConnected,
}

// FromCode resolves a numeric error code into its sentinel DeviceError.
// It is total over integers: an unrecognized code degrades to ErrNotSpecified.
func FromCode(code int) *DeviceError {
	if err, ok := errByCode[ErrorCode(code)]; ok {
		return err
	}

	return ErrNotSpecified
}

// StrictFromCode resolves a numeric error code into its sentinel DeviceError,
// failing with ErrInvalidErrorCode when the code has no mapping.
func StrictFromCode(code int) (*DeviceError, error) {
	if err, ok := errByCode[ErrorCode(code)]; ok {
		return err, nil
	}

	return nil, fmt.Errorf("%w: %d", ErrInvalidErrorCode, code)
}

var (
	// ErrInvalidErrorCode indicates a strict lookup of an unmapped error code.
	ErrInvalidErrorCode = errors.New("piezo: no such error code")

	// ErrDeviceUnavailable wraps transport-level faults (refused or broken
	// connection, read timeout) surfaced at the session boundary.
	ErrDeviceUnavailable = errors.New("piezo: device unavailable")

	// ErrDeviceMismatch indicates that the connected peer failed the device
	// type probe for the session's model.
	ErrDeviceMismatch = errors.New("piezo: device type mismatch")

	// ErrUnknownModel indicates a request for a device model ID that was
	// never registered.
	ErrUnknownModel = errors.New("piezo: unknown device model")

	// ErrUnsupportedParam indicates a write parameter of a type that cannot
	// be serialized to the wire format.
	ErrUnsupportedParam = errors.New("piezo: unsupported parameter type")
)
