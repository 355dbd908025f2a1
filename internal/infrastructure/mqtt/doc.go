// Package mqtt provides the bridge's MQTT client.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS and retained state topics
//   - Subscriptions with wildcard support, restored on reconnect
//   - A retained availability topic with a Last Will for offline detection
//
// # Topics
//
//	{prefix}/status                      online | offline (retained)
//	{prefix}/{uuid}/{property}/state     current value (retained)
//	{prefix}/{uuid}/{property}/set       writes from subscribers
//	{discovery}/{component}/{id}/config  Home Assistant discovery
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.PublishRetained(client.Topics().State(uuid, "level"), []byte("40"))
package mqtt
