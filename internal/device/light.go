package device

// Light archetype identifiers.
const (
	LightTypeKey        = "light"
	LightDriverFileName = "light_v2.c4i"

	// LightLevelVariable carries both the on/off state and the 0-100 level.
	LightLevelVariable = "1001"
)

// Light property names.
const (
	PropState = "state"
	PropLevel = "level"
)

// Light is a dimmable light. Both properties address the same controller
// variable, so writers must tolerate overlapping updates.
type Light struct {
	schema
}

// NewLight builds the light archetype.
func NewLight() *Light {
	return &Light{schema: newSchema(LightTypeKey, LightDriverFileName, ServiceLightbulb, []Mapping{
		{
			Name:           PropState,
			Characteristic: CharOn,
			Format:         FormatBool,
			VariableID:     LightLevelVariable,
			Rule:           Rule{Kind: RuleThreshold, Threshold: 0, OnRaw: "100", OffRaw: "0"},
		},
		{
			Name:           PropLevel,
			Characteristic: CharBrightness,
			Format:         FormatInt,
			VariableID:     LightLevelVariable,
			Props:          Props{MinValue: 0, MaxValue: 100, MinStep: 1, Unit: "percentage"},
			Rule:           Rule{Kind: RuleInteger},
		},
	})}
}
