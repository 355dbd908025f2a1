// Package accessory models exposed devices and their characteristics.
//
// An Accessory pairs a controller device's identity (device.Context) with
// its archetype and holds one Characteristic per logical property.
// Characteristics store the last known value, run bound get/set handlers
// and notify listeners when a value changes.
//
// Pushes of controller state are made with a context from SuppressWrites,
// which set handlers check so that a push never turns into a write.
// Registered accessories are persisted through Repository.
package accessory
