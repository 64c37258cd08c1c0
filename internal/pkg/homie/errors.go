package homie

import "errors"

var (
	// ErrInvalidIdentifier is returned when a device, base topic, node or
	// property id does not match the topic id grammar.
	ErrInvalidIdentifier = errors.New("homie: invalid identifier")

	// ErrInvalidValue is returned for out of range values, NaN or infinite
	// floats, negative precision and unknown enum values.
	ErrInvalidValue = errors.New("homie: invalid value")

	// ErrTypeMismatch is returned when the sent value does not fit the
	// property's data type.
	ErrTypeMismatch = errors.New("homie: value does not match data type")

	// ErrUnsupportedOperation is returned for format changes on color
	// properties and enum sends without a format.
	ErrUnsupportedOperation = errors.New("homie: unsupported operation")

	// ErrTransportFailure wraps connect, publish and subscribe failures
	// reported by the transport.
	ErrTransportFailure = errors.New("homie: transport failure")

	ErrAlreadyRunning = errors.New("homie: device already running")
)
