package device

// Archetype is a device kind with a fixed table of logical properties.
//
// The set of archetypes is closed: Light and Thermostat are the only
// implementations.
type Archetype interface {
	// TypeKey is the logical kind, e.g. "light".
	TypeKey() string

	// DriverFileName is the controller driver that identifies devices of this kind.
	DriverFileName() string

	// Service is the capability group accessories of this kind expose.
	Service() Service

	// Mappings returns the property table in declaration order.
	Mappings() []Mapping

	// Mapping looks up one property by name.
	Mapping(name string) (Mapping, bool)

	sealed()
}

// schema is the shared table implementation behind each archetype.
type schema struct {
	typeKey  string
	driver   string
	service  Service
	mappings []Mapping
	index    map[string]int
}

func newSchema(typeKey, driver string, service Service, mappings []Mapping) schema {
	index := make(map[string]int, len(mappings))
	for i, m := range mappings {
		index[m.Name] = i
	}
	return schema{
		typeKey:  typeKey,
		driver:   driver,
		service:  service,
		mappings: mappings,
		index:    index,
	}
}

func (s *schema) TypeKey() string        { return s.typeKey }
func (s *schema) DriverFileName() string { return s.driver }
func (s *schema) Service() Service       { return s.service }

func (s *schema) Mappings() []Mapping {
	out := make([]Mapping, len(s.mappings))
	copy(out, s.mappings)
	return out
}

func (s *schema) Mapping(name string) (Mapping, bool) {
	i, ok := s.index[name]
	if !ok {
		return Mapping{}, false
	}
	return s.mappings[i], true
}

func (s *schema) sealed() {}
