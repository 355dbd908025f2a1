package hass

import (
	"github.com/nerrad567/c4-bridge/internal/accessory"
	"github.com/nerrad567/c4-bridge/internal/device"
	"github.com/nerrad567/c4-bridge/internal/infrastructure/mqtt"
)

// Discovery components.
const (
	ComponentLight   = "light"
	ComponentClimate = "climate"
)

// topicKeys names the discovery keys for a characteristic's state and
// command topics. An empty command key means the entity never commands it.
type topicKeys struct {
	state   string
	command string
}

var characteristicKeys = map[device.Characteristic]topicKeys{
	device.CharOn:                         {"state_topic", "command_topic"},
	device.CharBrightness:                 {"brightness_state_topic", "brightness_command_topic"},
	device.CharTargetHeatingCoolingState:  {"mode_state_topic", "mode_command_topic"},
	device.CharCurrentHeatingCoolingState: {"action_topic", ""},
	device.CharCurrentTemperature:         {"current_temperature_topic", ""},
	device.CharTargetTemperature:          {"temperature_state_topic", "temperature_command_topic"},
	device.CharHeatingThreshold:           {"temperature_low_state_topic", "temperature_low_command_topic"},
	device.CharCoolingThreshold:           {"temperature_high_state_topic", "temperature_high_command_topic"},
}

// Component returns the discovery component for an accessory's service.
func Component(acc *accessory.Accessory) (string, bool) {
	switch acc.Archetype.Service() {
	case device.ServiceLightbulb:
		return ComponentLight, true
	case device.ServiceThermostat:
		return ComponentClimate, true
	}
	return "", false
}

// DiscoveryConfig builds the discovery payload for an accessory.
func DiscoveryConfig(topics mqtt.Topics, acc *accessory.Accessory) (map[string]any, bool) {
	component, ok := Component(acc)
	if !ok {
		return nil, false
	}

	cfg := map[string]any{
		"name":                  nil,
		"unique_id":             acc.UUID,
		"object_id":             acc.UUID,
		"availability_topic":    topics.Status(),
		"payload_available":     mqtt.PayloadOnline,
		"payload_not_available": mqtt.PayloadOffline,
		"device": map[string]any{
			"identifiers":    []string{acc.UUID},
			"name":           acc.DisplayName(),
			"manufacturer":   "Control4",
			"model":          acc.Context.DriverFileName,
			"suggested_area": acc.Context.Room,
		},
	}

	for _, m := range acc.Archetype.Mappings() {
		keys, ok := characteristicKeys[m.Characteristic]
		if !ok {
			continue
		}
		cfg[keys.state] = topics.State(acc.UUID, m.Name)
		if keys.command != "" && !m.ReadOnly {
			cfg[keys.command] = topics.Command(acc.UUID, m.Name)
		}
	}

	switch component {
	case ComponentLight:
		cfg["payload_on"] = PayloadOn
		cfg["payload_off"] = PayloadOff
		cfg["brightness_scale"] = 100
		cfg["on_command_type"] = "first"
	case ComponentClimate:
		cfg["modes"] = []string{"off", "heat", "cool", "auto"}
		cfg["temperature_unit"] = "C"
		if m, ok := acc.Archetype.Mapping(device.PropTargetTemperature); ok && m.Props.HasRange() {
			cfg["min_temp"] = m.Props.MinValue
			cfg["max_temp"] = m.Props.MaxValue
			cfg["temp_step"] = m.Props.MinStep
		}
	}

	return cfg, true
}
