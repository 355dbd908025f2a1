package homekit

import "errors"

var (
	// ErrDisabled is returned when HomeKit is disabled in configuration.
	ErrDisabled = errors.New("homekit: disabled in configuration")

	// ErrNoAccessories is returned when there is nothing to publish.
	ErrNoAccessories = errors.New("homekit: no accessories to publish")
)
