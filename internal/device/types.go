package device

// Service identifies the capability group an accessory exposes.
type Service string

// Services exposed by the supported archetypes.
const (
	ServiceLightbulb  Service = "lightbulb"
	ServiceThermostat Service = "thermostat"
)

// Characteristic identifies the typed accessory property a mapping drives.
type Characteristic string

// Characteristics used by the light and thermostat archetypes.
const (
	CharOn                         Characteristic = "on"
	CharBrightness                 Characteristic = "brightness"
	CharTemperatureDisplayUnits    Characteristic = "temperature_display_units"
	CharCurrentHeatingCoolingState Characteristic = "current_heating_cooling_state"
	CharTargetHeatingCoolingState  Characteristic = "target_heating_cooling_state"
	CharCurrentTemperature         Characteristic = "current_temperature"
	CharHeatingThreshold           Characteristic = "heating_threshold_temperature"
	CharCoolingThreshold           Characteristic = "cooling_threshold_temperature"
	CharTargetTemperature          Characteristic = "target_temperature"
)

// Format is the Go type a logical value is normalised to.
//
//   - FormatBool: bool
//   - FormatInt: int
//   - FormatFloat: float64
type Format string

// Supported logical value formats.
const (
	FormatBool  Format = "bool"
	FormatInt   Format = "int"
	FormatFloat Format = "float"
)

// Display units reported by the thermostat unit property.
const (
	UnitCelsius    = 0
	UnitFahrenheit = 1
)

// Heating/cooling modes shared by current_state and target_state.
const (
	ModeOff  = 0
	ModeHeat = 1
	ModeCool = 2
	ModeAuto = 3
)

// Props are the optional constraints a property declares to the accessory layer.
// A zero Props declares nothing.
type Props struct {
	MinValue    float64 `json:"min_value,omitempty"`
	MaxValue    float64 `json:"max_value,omitempty"`
	MinStep     float64 `json:"min_step,omitempty"`
	Unit        string  `json:"unit,omitempty"`
	ValidValues []int   `json:"valid_values,omitempty"`
}

// HasRange reports whether the props bound the numeric range.
func (p Props) HasRange() bool {
	return p.MaxValue > p.MinValue
}

// Mapping binds one logical property to a controller variable.
//
// Non-derived mappings always carry a VariableID and convert through Rule.
// Derived mappings compute their value from the non-derived results with
// Derive, still encode writes through Rule, and pick their write target
// with ResolveID.
type Mapping struct {
	Name           string
	Characteristic Characteristic
	Format         Format
	ReadOnly       bool
	VariableID     string
	Derived        bool
	Props          Props
	Rule           Rule

	Derive    func(Snapshot) (any, bool)
	ResolveID func(Snapshot) string
}

// Snapshot maps logical property names to their last converted values.
type Snapshot map[string]any

// Clone returns an independent copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Float returns a numeric field as float64.
func (s Snapshot) Float(name string) (float64, bool) {
	switch v := s[name].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// Int returns an integer field.
func (s Snapshot) Int(name string) (int, bool) {
	v, ok := s[name].(int)
	return v, ok
}

// RawValues holds controller variable values keyed by variable ID, as text.
type RawValues map[string]string

// Context identifies one physical device on the controller. Name, room and
// proxy ID form the natural key used to recognise already-known devices.
type Context struct {
	Name           string `json:"name"`
	Room           string `json:"room"`
	ProxyID        string `json:"proxy_id"`
	DriverFileName string `json:"driver_file_name"`
}

// SameDevice reports whether two contexts describe the same device.
func (c Context) SameDevice(other Context) bool {
	return c.Name == other.Name && c.Room == other.Room && c.ProxyID == other.ProxyID
}
