package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrReadOnly) {
//	    // reject the write
//	}
var (
	// ErrUnknownProperty is returned when a property name is not part of an archetype.
	ErrUnknownProperty = errors.New("device: unknown property")

	// ErrReadOnly is returned when writing a property that only reports state.
	ErrReadOnly = errors.New("device: property is read-only")

	// ErrInvalidValue is returned when a logical value has the wrong type or is out of range.
	ErrInvalidValue = errors.New("device: invalid value")

	// ErrNoArchetype is returned when a driver file name matches no archetype.
	ErrNoArchetype = errors.New("device: no archetype for driver")

	// ErrNotWritable is returned when a derived property has no way to resolve its write target.
	ErrNotWritable = errors.New("device: derived property cannot be written")
)
