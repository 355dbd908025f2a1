package hass

import "errors"

var (
	// ErrClientRequired is returned when no MQTT client is configured.
	ErrClientRequired = errors.New("hass: mqtt client is required")

	// ErrSourceRequired is returned when no accessory source is configured.
	ErrSourceRequired = errors.New("hass: accessory source is required")

	// ErrInvalidTopic is returned for command topics outside the bridge prefix.
	ErrInvalidTopic = errors.New("hass: invalid command topic")

	// ErrInvalidPayload is returned when a command payload cannot be decoded.
	ErrInvalidPayload = errors.New("hass: invalid payload")
)
