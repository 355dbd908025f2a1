// Package influxdb records accessory property history in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health checks. Every property
// change observed by the bridge can be written as one point of the
// accessory_property measurement, tagged by accessory, room and property.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteProperty(influxdb.PropertySample{
//	    UUID: acc.UUID, Accessory: "Lamp", Room: "Den",
//	    Property: "level", Value: 40,
//	})
//
// Write errors are delivered asynchronously through SetOnError.
package influxdb
