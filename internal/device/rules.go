package device

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// RuleKind selects how a Rule converts between controller text and logical values.
type RuleKind uint8

const (
	// RuleInteger parses the leading integer of the raw text and writes it back as decimal.
	RuleInteger RuleKind = iota

	// RuleThreshold maps a numeric raw value above Threshold to true, and
	// writes true/false back as OnRaw/OffRaw.
	RuleThreshold

	// RuleEnum looks the raw text up in Enum, falling back to Default. Writes
	// emit the first entry carrying the value, or DefaultRaw.
	RuleEnum

	// RuleFahrenheit reads whole degrees Fahrenheit as Celsius and writes
	// Celsius back as rounded Fahrenheit.
	RuleFahrenheit
)

// String returns the rule kind name.
func (k RuleKind) String() string {
	switch k {
	case RuleInteger:
		return "integer"
	case RuleThreshold:
		return "threshold"
	case RuleEnum:
		return "enum"
	case RuleFahrenheit:
		return "fahrenheit"
	default:
		return fmt.Sprintf("RuleKind(%d)", uint8(k))
	}
}

// EnumEntry pairs a controller string with its logical value.
type EnumEntry struct {
	Raw   string
	Value int
}

// Rule is a declarative conversion between controller text and a logical value.
type Rule struct {
	Kind RuleKind

	Threshold float64
	OnRaw     string
	OffRaw    string

	Enum       []EnumEntry
	Default    int
	DefaultRaw string
}

// FromController converts raw controller text. present is false when the
// variable was missing from the response. The second result is false when
// no logical value can be produced.
func (r Rule) FromController(raw string, present bool) (any, bool) {
	if !present {
		return nil, false
	}

	switch r.Kind {
	case RuleInteger:
		n, ok := parseIntPrefix(raw)
		if !ok {
			return nil, false
		}
		return n, true

	case RuleThreshold:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, false
		}
		return f > r.Threshold, true

	case RuleEnum:
		for _, e := range r.Enum {
			if e.Raw == raw {
				return e.Value, true
			}
		}
		return r.Default, true

	case RuleFahrenheit:
		n, ok := parseIntPrefix(raw)
		if !ok {
			return nil, false
		}
		return FahrenheitToCelsius(float64(n)), true
	}

	return nil, false
}

// ToController converts a normalised logical value to controller text.
func (r Rule) ToController(v any) (string, error) {
	switch r.Kind {
	case RuleInteger:
		n, ok := v.(int)
		if !ok {
			return "", fmt.Errorf("%w: want integer, got %T", ErrInvalidValue, v)
		}
		return strconv.Itoa(n), nil

	case RuleThreshold:
		b, ok := v.(bool)
		if !ok {
			return "", fmt.Errorf("%w: want bool, got %T", ErrInvalidValue, v)
		}
		if b {
			return r.OnRaw, nil
		}
		return r.OffRaw, nil

	case RuleEnum:
		n, ok := v.(int)
		if !ok {
			return "", fmt.Errorf("%w: want integer, got %T", ErrInvalidValue, v)
		}
		for _, e := range r.Enum {
			if e.Value == n {
				return e.Raw, nil
			}
		}
		return r.DefaultRaw, nil

	case RuleFahrenheit:
		c, ok := v.(float64)
		if !ok {
			return "", fmt.Errorf("%w: want number, got %T", ErrInvalidValue, v)
		}
		return strconv.Itoa(CelsiusToFahrenheit(c)), nil
	}

	return "", fmt.Errorf("%w: unsupported rule %s", ErrInvalidValue, r.Kind)
}

// FahrenheitToCelsius converts degrees Fahrenheit to Celsius.
func FahrenheitToCelsius(f float64) float64 {
	return (f - 32) / 1.8
}

// CelsiusToFahrenheit converts Celsius to whole degrees Fahrenheit.
func CelsiusToFahrenheit(c float64) int {
	return int(math.Round(c*1.8 + 32))
}

// parseIntPrefix reads an optionally signed run of leading digits, ignoring
// surrounding whitespace and anything after the digits ("72.5" is 72).
func parseIntPrefix(s string) (int, bool) {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
