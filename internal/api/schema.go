package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/nerrad567/c4-bridge/internal/device"
)

// schemaBaseURL namespaces compiled property schemas.
const schemaBaseURL = "https://c4bridge.local/schemas/"

// PropertySchema returns the JSON Schema for a property write body
// ({"value": v}) derived from the mapping's format and constraints.
func PropertySchema(m device.Mapping) map[string]any {
	value := map[string]any{}
	switch m.Format {
	case device.FormatBool:
		value["type"] = "boolean"
	case device.FormatInt:
		value["type"] = "integer"
	case device.FormatFloat:
		value["type"] = "number"
	}
	if m.Format != device.FormatBool {
		if m.Props.HasRange() {
			value["minimum"] = m.Props.MinValue
			value["maximum"] = m.Props.MaxValue
		}
		if len(m.Props.ValidValues) > 0 {
			value["enum"] = m.Props.ValidValues
		}
	}

	return map[string]any{
		"$schema":              "https://json-schema.org/draft/2020-12/schema",
		"type":                 "object",
		"required":             []string{"value"},
		"additionalProperties": false,
		"properties": map[string]any{
			"value": value,
		},
	}
}

// schemaCache compiles property schemas on first use.
type schemaCache struct {
	mu      sync.Mutex
	schemas map[string]*jsonschema.Schema
}

func newSchemaCache() *schemaCache {
	return &schemaCache{schemas: make(map[string]*jsonschema.Schema)}
}

func (c *schemaCache) get(typeKey string, m device.Mapping) (*jsonschema.Schema, error) {
	url := schemaBaseURL + typeKey + "/" + m.Name + ".json"

	c.mu.Lock()
	defer c.mu.Unlock()
	if sch, ok := c.schemas[url]; ok {
		return sch, nil
	}

	raw, err := json.Marshal(PropertySchema(m))
	if err != nil {
		return nil, fmt.Errorf("encoding schema for %s: %w", m.Name, err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decoding schema for %s: %w", m.Name, err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("adding schema for %s: %w", m.Name, err)
	}
	sch, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compiling schema for %s: %w", m.Name, err)
	}
	c.schemas[url] = sch
	return sch, nil
}

// decodeWrite validates a write body against the property schema and returns
// the value. Numbers come back as json.Number.
func (c *schemaCache) decodeWrite(typeKey string, m device.Mapping, body io.Reader) (any, error) {
	sch, err := c.get(typeKey, m)
	if err != nil {
		return nil, err
	}

	inst, err := jsonschema.UnmarshalJSON(body)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid JSON body", device.ErrInvalidValue)
	}
	if err := sch.Validate(inst); err != nil {
		return nil, fmt.Errorf("%w: %w", device.ErrInvalidValue, err)
	}

	obj, _ := inst.(map[string]any)
	return obj["value"], nil
}
