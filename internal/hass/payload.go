package hass

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/c4-bridge/internal/device"
)

// Home Assistant on/off payloads.
const (
	PayloadOn  = "ON"
	PayloadOff = "OFF"
)

// climateModes are Home Assistant HVAC mode names indexed by device mode.
var climateModes = map[int]string{
	device.ModeOff:  "off",
	device.ModeHeat: "heat",
	device.ModeCool: "cool",
	device.ModeAuto: "auto",
}

// climateActions are Home Assistant HVAC action names for current_state.
var climateActions = map[int]string{
	device.ModeOff:  "off",
	device.ModeHeat: "heating",
	device.ModeCool: "cooling",
}

// EncodeValue renders a logical value as an MQTT state payload.
func EncodeValue(m device.Mapping, v any) string {
	switch m.Characteristic {
	case device.CharOn:
		if b, ok := v.(bool); ok {
			if b {
				return PayloadOn
			}
			return PayloadOff
		}
	case device.CharTargetHeatingCoolingState:
		if n, ok := v.(int); ok {
			if name, ok := climateModes[n]; ok {
				return name
			}
		}
	case device.CharCurrentHeatingCoolingState:
		if n, ok := v.(int); ok {
			if name, ok := climateActions[n]; ok {
				return name
			}
		}
	}

	switch x := v.(type) {
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// DecodePayload parses a command payload into a value characteristic.Set
// accepts. Final format checks are left to the characteristic.
func DecodePayload(m device.Mapping, payload []byte) (any, error) {
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return nil, fmt.Errorf("%w: empty payload for %s", ErrInvalidPayload, m.Name)
	}

	switch m.Characteristic {
	case device.CharOn:
		switch strings.ToUpper(text) {
		case PayloadOn:
			return true, nil
		case PayloadOff:
			return false, nil
		}
	case device.CharTargetHeatingCoolingState:
		for mode, name := range climateModes {
			if strings.EqualFold(text, name) {
				return mode, nil
			}
		}
	}

	return text, nil
}
