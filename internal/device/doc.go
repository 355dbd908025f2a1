// Package device describes the controller devices c4-bridge can expose and
// how their variables translate into accessory properties.
//
// # Archetypes
//
// Two archetypes exist, selected by the controller driver file name:
//
//   - Light (light_v2.c4i): state and level, both on variable 1001
//   - Thermostat (thermostatV2.c4i): unit, current/target mode, current
//     temperature, heat and cool setpoints, and a derived target temperature
//
// Each archetype is a fixed table of Mapping entries. A mapping names the
// controller variable, a declarative conversion Rule, and for derived
// properties the functions that compute the value and pick the write target.
//
// # Conversion
//
// ComputeState turns a batch of raw variable values into a Snapshot in two
// passes: plain properties first, then derived properties over the plain
// results.
//
//	raw := device.RawValues{"1104": "Auto", "1130": "70", "1132": "64", "1134": "76"}
//	snap := device.ComputeState(thermostat, raw)
//	// snap["target_temperature"] is the nearer of the two setpoints
//
// # Discovery
//
// Catalog.Discover filters the controller's device listing down to devices
// that match an archetype and are not already known.
package device
