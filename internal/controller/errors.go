package controller

import "errors"

// Sentinel errors for controller requests.
//
// Transport and protocol failures are distinct so callers can tell an
// unreachable controller from one that answered with something unexpected:
//
//	if errors.Is(err, controller.ErrTransport) {
//	    // retry on the next poll
//	}
var (
	// ErrTransport indicates the request never produced a usable HTTP response
	// (connection, DNS, timeout or non-2xx status).
	ErrTransport = errors.New("controller: transport error")

	// ErrProtocol indicates the response body was not the expected JSON shape.
	ErrProtocol = errors.New("controller: protocol error")

	// ErrSetRejected indicates a set command answered without success "true".
	ErrSetRejected = errors.New("controller: set rejected")

	// ErrInvalidConfig indicates the client configuration is unusable.
	ErrInvalidConfig = errors.New("controller: invalid configuration")
)
