// Package hass exposes bridge accessories to Home Assistant over MQTT.
//
// For every accessory it publishes a retained MQTT discovery config
// (a light for the lightbulb service, a climate entity for thermostats),
// mirrors every property change onto a retained state topic and turns
// messages on command topics into characteristic writes.
//
// Topic layout (prefix "c4bridge", discovery prefix "homeassistant"):
//
//	homeassistant/light/{uuid}/config      discovery config (retained)
//	homeassistant/climate/{uuid}/config    discovery config (retained)
//	c4bridge/{uuid}/{property}/state       property value (retained)
//	c4bridge/{uuid}/{property}/set         property command
//	c4bridge/status                        online/offline availability
//
// Payloads are plain text. Booleans are "ON"/"OFF", heating/cooling modes
// use Home Assistant's mode and action names, numbers are decimal.
package hass
