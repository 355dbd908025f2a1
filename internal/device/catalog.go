package device

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Descriptor field names in the controller's device listing.
const (
	fieldDriverFileName = "driverFileName"
	fieldDeviceName     = "deviceName"
	fieldRoomName       = "roomName"
)

// Catalog resolves driver file names to archetypes. It is built once at
// startup and is safe for concurrent use because it is never mutated.
type Catalog struct {
	ordered  []Archetype
	byDriver map[string]Archetype
}

// NewCatalog indexes the given archetypes by driver file name. A later
// archetype with the same driver replaces an earlier one.
func NewCatalog(archetypes ...Archetype) *Catalog {
	c := &Catalog{byDriver: make(map[string]Archetype, len(archetypes))}
	for _, a := range archetypes {
		if _, dup := c.byDriver[a.DriverFileName()]; !dup {
			c.ordered = append(c.ordered, a)
		}
		c.byDriver[a.DriverFileName()] = a
	}
	return c
}

// DefaultCatalog returns the light and thermostat archetypes.
func DefaultCatalog(opts ThermostatOptions) *Catalog {
	return NewCatalog(NewLight(), NewThermostat(opts))
}

// Match returns the archetype for a driver file name.
func (c *Catalog) Match(driverFileName string) (Archetype, bool) {
	a, ok := c.byDriver[driverFileName]
	return a, ok
}

// MustMatch is Match returning ErrNoArchetype.
func (c *Catalog) MustMatch(driverFileName string) (Archetype, error) {
	a, ok := c.Match(driverFileName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoArchetype, driverFileName)
	}
	return a, nil
}

// Archetypes returns every archetype in registration order.
func (c *Catalog) Archetypes() []Archetype {
	out := make([]Archetype, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// RawDevice is one entry of the controller's device listing: the response
// key and its undecoded value.
type RawDevice struct {
	Key  string
	Body json.RawMessage
}

// Discovery is the outcome of matching a device listing.
type Discovery struct {
	// New holds devices not seen before, in listing order.
	New []Context

	// Unmatched holds devices whose driver has no archetype.
	Unmatched []Context

	// Known counts devices already present in the known set.
	Known int
}

// Discover walks a device listing and returns the devices worth creating.
// Entries that are not objects or lack a driverFileName are skipped. Each
// device's proxy ID is its listing key.
func (c *Catalog) Discover(entries []RawDevice, known []Context) Discovery {
	var d Discovery
	for _, e := range entries {
		ctx, ok := parseDescriptor(e)
		if !ok {
			continue
		}
		if _, ok := c.Match(ctx.DriverFileName); !ok {
			d.Unmatched = append(d.Unmatched, ctx)
			continue
		}
		if IsKnown(ctx, known) {
			d.Known++
			continue
		}
		d.New = append(d.New, ctx)
	}
	return d
}

// IsKnown reports whether candidate matches any known context by name, room
// and proxy ID.
func IsKnown(candidate Context, known []Context) bool {
	for _, k := range known {
		if candidate.SameDevice(k) {
			return true
		}
	}
	return false
}

func parseDescriptor(e RawDevice) (Context, bool) {
	var fields map[string]any
	if err := json.Unmarshal(e.Body, &fields); err != nil || fields == nil {
		return Context{}, false
	}
	if _, ok := fields[fieldDriverFileName]; !ok {
		return Context{}, false
	}
	return Context{
		Name:           textField(fields[fieldDeviceName]),
		Room:           textField(fields[fieldRoomName]),
		ProxyID:        e.Key,
		DriverFileName: textField(fields[fieldDriverFileName]),
	}, true
}

func textField(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
