package device

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// ComputeState converts raw controller values into logical property values.
//
// Evaluation has two levels. Every non-derived property converts from its
// own variable first. Derived properties are then computed from the complete
// set of non-derived results; they never see each other's output. Properties
// that cannot be produced are left out of the snapshot.
func ComputeState(a Archetype, raw RawValues) Snapshot {
	mappings := a.Mappings()
	out := make(Snapshot, len(mappings))

	for _, m := range mappings {
		if m.Derived {
			continue
		}
		rawValue, present := raw[m.VariableID]
		if v, ok := m.Rule.FromController(rawValue, present); ok {
			out[m.Name] = v
		}
	}

	base := out.Clone()
	for _, m := range mappings {
		if !m.Derived || m.Derive == nil {
			continue
		}
		if v, ok := m.Derive(base); ok {
			out[m.Name] = v
		}
	}

	return out
}

// VariableIDs returns the distinct controller variables needed for a full
// fetch, in mapping order.
func VariableIDs(a Archetype) []string {
	var ids []string
	for _, m := range a.Mappings() {
		if m.VariableID == "" || slices.Contains(ids, m.VariableID) {
			continue
		}
		ids = append(ids, m.VariableID)
	}
	return ids
}

// ResolveVariableID returns the controller variable a write to m addresses.
// Derived properties resolve against ctx, the current snapshot.
func ResolveVariableID(m Mapping, ctx Snapshot) (string, error) {
	if !m.Derived {
		if m.VariableID == "" {
			return "", fmt.Errorf("%w: %s has no variable", ErrNotWritable, m.Name)
		}
		return m.VariableID, nil
	}
	if m.ResolveID == nil {
		return "", fmt.Errorf("%w: %s", ErrNotWritable, m.Name)
	}
	return m.ResolveID(ctx), nil
}

// Normalize coerces an incoming value to the mapping's format so it can be
// compared with cached values and encoded. Numbers decoded from JSON, text
// from MQTT payloads and native Go values are all accepted.
func Normalize(m Mapping, v any) (any, error) {
	switch m.Format {
	case FormatBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(b))
			if err != nil {
				return nil, fmt.Errorf("%w: %s wants bool, got %q", ErrInvalidValue, m.Name, b)
			}
			return parsed, nil
		}
		return nil, fmt.Errorf("%w: %s wants bool, got %T", ErrInvalidValue, m.Name, v)

	case FormatInt:
		f, ok := toFloat(v)
		if !ok || f != math.Trunc(f) {
			return nil, fmt.Errorf("%w: %s wants integer, got %v", ErrInvalidValue, m.Name, v)
		}
		n := int(f)
		if len(m.Props.ValidValues) > 0 && !slices.Contains(m.Props.ValidValues, n) {
			return nil, fmt.Errorf("%w: %s does not accept %d", ErrInvalidValue, m.Name, n)
		}
		return n, nil

	case FormatFloat:
		f, ok := toFloat(v)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: %s wants number, got %v", ErrInvalidValue, m.Name, v)
		}
		return f, nil
	}

	return nil, fmt.Errorf("%w: %s has unknown format %q", ErrInvalidValue, m.Name, m.Format)
}

// CheckRange rejects a normalized value outside the mapping's declared
// range. Mappings without a range accept any value.
func CheckRange(m Mapping, v any) error {
	if !m.Props.HasRange() {
		return nil
	}
	f, ok := toFloat(v)
	if !ok {
		return nil
	}
	if f < m.Props.MinValue || f > m.Props.MaxValue {
		return fmt.Errorf("%w: %s must be between %g and %g, got %g",
			ErrInvalidValue, m.Name, m.Props.MinValue, m.Props.MaxValue, f)
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint8:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
