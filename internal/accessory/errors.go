package accessory

import "errors"

var (
	// ErrNotFound is returned when an accessory UUID is unknown.
	ErrNotFound = errors.New("accessory: not found")

	// ErrNoValue is returned when a property has no value yet, e.g. a derived
	// value whose inputs are incomplete.
	ErrNoValue = errors.New("accessory: no value available")

	// ErrUnknownProperty is returned when a property name is not exposed by the accessory.
	ErrUnknownProperty = errors.New("accessory: unknown property")
)
