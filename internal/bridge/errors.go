package bridge

import "errors"

var (
	// ErrControllerRequired is returned when no controller client is given.
	ErrControllerRequired = errors.New("bridge: controller is required")

	// ErrCatalogRequired is returned when no archetype catalog is given.
	ErrCatalogRequired = errors.New("bridge: catalog is required")

	// ErrFetchFailed wraps a failed variable fetch.
	ErrFetchFailed = errors.New("bridge: fetching state failed")

	// ErrWriteFailed wraps a failed variable write.
	ErrWriteFailed = errors.New("bridge: writing variable failed")

	// ErrAlreadyStarted is returned by Start on a running bridge.
	ErrAlreadyStarted = errors.New("bridge: already started")
)
