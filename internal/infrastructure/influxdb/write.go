package influxdb

import (
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementProperty is the measurement accessory property values are
// recorded under.
const MeasurementProperty = "accessory_property"

// PropertySample is one observed property value.
type PropertySample struct {
	UUID      string
	Accessory string
	Room      string
	Property  string
	Source    string
	Value     any
	At        time.Time
}

// WriteProperty records a property value. The write is non-blocking and
// batched. Values that are neither numbers nor booleans are rejected.
func (c *Client) WriteProperty(s PropertySample) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	point, err := PropertyPoint(s)
	if err != nil {
		return err
	}
	c.writeAPI.WritePoint(point)
	return nil
}

// PropertyPoint builds the point for a sample. Booleans are stored as 0/1
// so every property graphs as a number; the original type is kept in the
// "kind" tag.
func PropertyPoint(s PropertySample) (*write.Point, error) {
	var (
		value float64
		kind  string
	)
	switch v := s.Value.(type) {
	case bool:
		kind = "bool"
		if v {
			value = 1
		}
	case int:
		kind, value = "int", float64(v)
	case int64:
		kind, value = "int", float64(v)
	case float64:
		kind, value = "float", v
	case float32:
		kind, value = "float", float64(v)
	default:
		return nil, fmt.Errorf("%w: unsupported value type %T for %s", ErrWriteFailed, s.Value, s.Property)
	}

	at := s.At
	if at.IsZero() {
		at = time.Now()
	}

	tags := map[string]string{
		"uuid":      s.UUID,
		"accessory": s.Accessory,
		"room":      s.Room,
		"property":  s.Property,
		"kind":      kind,
	}
	if s.Source != "" {
		tags["source"] = s.Source
	}

	return write.NewPoint(MeasurementProperty, tags, map[string]interface{}{"value": value}, at), nil
}

// WritePoint writes a custom point timestamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
