// Package homekit publishes bridge accessories as a HomeKit bridge using
// github.com/brutella/hap.
//
// Lights become Lightbulb accessories (On, Brightness) and thermostats
// become Thermostat accessories with heating and cooling thresholds. HAP
// reads are answered through the characteristic read path, so they are
// served from the state cache; HAP writes go through characteristic Set,
// the same path every other surface uses. Property changes observed by the
// bridge are pushed back to paired controllers via HandleEvent.
//
// The accessory set is fixed when the server is built. Accessories
// discovered later appear after a restart.
package homekit
