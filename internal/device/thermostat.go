package device

import "math"

// Thermostat archetype identifiers.
const (
	ThermostatTypeKey        = "thermostat"
	ThermostatDriverFileName = "thermostatV2.c4i"
)

// Thermostat controller variables.
const (
	VarUnit               = "1100"
	VarCurrentState       = "1107"
	VarCurrentStateLegacy = "1000"
	VarTargetState        = "1104"
	VarCurrentTemperature = "1130"
	VarHeatpoint          = "1132"
	VarCoolpoint          = "1134"
)

// Thermostat property names.
const (
	PropUnit               = "unit"
	PropCurrentState       = "current_state"
	PropTargetState        = "target_state"
	PropCurrentTemperature = "current_temperature"
	PropHeatpoint          = "heatpoint"
	PropCoolpoint          = "coolpoint"
	PropTargetTemperature  = "target_temperature"
)

// ThermostatOptions tune the thermostat table for controller firmware differences.
type ThermostatOptions struct {
	// CurrentStateVariable overrides the variable read for current_state.
	// Some firmware only reports it on VarCurrentStateLegacy. Empty means VarCurrentState.
	CurrentStateVariable string
}

// Thermostat is a heat/cool thermostat with separate heat and cool setpoints
// and a derived target temperature.
type Thermostat struct {
	schema
}

var (
	modeEnum = []EnumEntry{
		{Raw: "Heat", Value: ModeHeat},
		{Raw: "Cool", Value: ModeCool},
		{Raw: "Auto", Value: ModeAuto},
		{Raw: "Off", Value: ModeOff},
	}

	setpointProps = Props{MinValue: 15, MaxValue: 30, MinStep: 0.5, Unit: "celsius"}
	fahrenheit    = Rule{Kind: RuleFahrenheit}
)

// NewThermostat builds the thermostat archetype.
func NewThermostat(opts ThermostatOptions) *Thermostat {
	currentStateVar := opts.CurrentStateVariable
	if currentStateVar == "" {
		currentStateVar = VarCurrentState
	}

	return &Thermostat{schema: newSchema(ThermostatTypeKey, ThermostatDriverFileName, ServiceThermostat, []Mapping{
		{
			Name:           PropUnit,
			Characteristic: CharTemperatureDisplayUnits,
			Format:         FormatInt,
			ReadOnly:       true,
			VariableID:     VarUnit,
			Props:          Props{ValidValues: []int{UnitCelsius, UnitFahrenheit}},
			Rule: Rule{
				Kind: RuleEnum,
				Enum: []EnumEntry{
					{Raw: "FAHRENHEIT", Value: UnitFahrenheit},
					{Raw: "F", Value: UnitFahrenheit},
					{Raw: "CELSIUS", Value: UnitCelsius},
				},
				Default:    UnitCelsius,
				DefaultRaw: "CELSIUS",
			},
		},
		{
			Name:           PropCurrentState,
			Characteristic: CharCurrentHeatingCoolingState,
			Format:         FormatInt,
			ReadOnly:       true,
			VariableID:     currentStateVar,
			Props:          Props{ValidValues: []int{ModeOff, ModeHeat, ModeCool}},
			Rule: Rule{
				Kind:       RuleEnum,
				Enum:       modeEnum[:2],
				Default:    ModeOff,
				DefaultRaw: "Off",
			},
		},
		{
			Name:           PropTargetState,
			Characteristic: CharTargetHeatingCoolingState,
			Format:         FormatInt,
			VariableID:     VarTargetState,
			Props:          Props{ValidValues: []int{ModeOff, ModeHeat, ModeCool, ModeAuto}},
			Rule:           Rule{Kind: RuleEnum, Enum: modeEnum, Default: ModeOff, DefaultRaw: "Off"},
		},
		{
			Name:           PropCurrentTemperature,
			Characteristic: CharCurrentTemperature,
			Format:         FormatFloat,
			ReadOnly:       true,
			VariableID:     VarCurrentTemperature,
			Props:          Props{MinValue: 0, MaxValue: 100, MinStep: 0.5, Unit: "celsius"},
			Rule:           fahrenheit,
		},
		{
			Name:           PropHeatpoint,
			Characteristic: CharHeatingThreshold,
			Format:         FormatFloat,
			VariableID:     VarHeatpoint,
			Props:          setpointProps,
			Rule:           fahrenheit,
		},
		{
			Name:           PropCoolpoint,
			Characteristic: CharCoolingThreshold,
			Format:         FormatFloat,
			VariableID:     VarCoolpoint,
			Props:          setpointProps,
			Rule:           fahrenheit,
		},
		{
			Name:           PropTargetTemperature,
			Characteristic: CharTargetTemperature,
			Format:         FormatFloat,
			Derived:        true,
			Props:          setpointProps,
			Rule:           fahrenheit,
			Derive:         deriveTargetTemperature,
			ResolveID:      resolveSetpointVariable,
		},
	})}
}

// deriveTargetTemperature picks the setpoint the thermostat is working
// towards. Heat and cool modes use their own setpoint; any other mode
// clamps the current temperature into [heatpoint, coolpoint] and otherwise
// takes the nearer setpoint.
func deriveTargetTemperature(s Snapshot) (any, bool) {
	mode, ok := s.Int(PropTargetState)
	if !ok {
		return nil, false
	}
	low, hasLow := s.Float(PropHeatpoint)
	high, hasHigh := s.Float(PropCoolpoint)

	var target float64
	switch mode {
	case ModeHeat:
		if !hasLow {
			return nil, false
		}
		target = low
	case ModeCool:
		if !hasHigh {
			return nil, false
		}
		target = high
	default:
		current, hasCurrent := s.Float(PropCurrentTemperature)
		if !hasLow || !hasHigh || !hasCurrent {
			return nil, false
		}
		switch {
		case current <= low:
			target = low
		case current >= high:
			target = high
		case nearerHigh(low, high, current):
			target = high
		default:
			target = low
		}
	}

	if target == 0 || math.IsNaN(target) {
		return nil, false
	}
	return target, true
}

// resolveSetpointVariable chooses which setpoint a target temperature write
// lands on, by the same rule deriveTargetTemperature reads with. Without
// enough context it falls back to the heatpoint.
func resolveSetpointVariable(s Snapshot) string {
	mode, _ := s.Int(PropTargetState)
	switch mode {
	case ModeHeat:
		return VarHeatpoint
	case ModeCool:
		return VarCoolpoint
	}

	low, hasLow := s.Float(PropHeatpoint)
	high, hasHigh := s.Float(PropCoolpoint)
	current, hasCurrent := s.Float(PropCurrentTemperature)
	if hasLow && hasHigh && hasCurrent && nearerHigh(low, high, current) {
		return VarCoolpoint
	}
	return VarHeatpoint
}

// nearerHigh is true only when high is strictly closer; ties go to low.
func nearerHigh(low, high, current float64) bool {
	return math.Abs(high-current) < math.Abs(current-low)
}
