package mqtt

import (
	"fmt"
	"strings"
)

// Default topic roots.
const (
	DefaultTopicPrefix     = "c4bridge"
	DefaultDiscoveryPrefix = "homeassistant"
)

// Availability payloads published on the status topic.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Topics builds the bridge's MQTT topic names.
//
// Accessory topics use the scheme {prefix}/{uuid}/{property}/{kind}:
//
//	topics := mqtt.NewTopics("c4bridge", "homeassistant")
//	topics.State("6f1c...", "level")   // c4bridge/6f1c.../level/state
//	topics.Command("6f1c...", "level") // c4bridge/6f1c.../level/set
type Topics struct {
	Prefix    string
	Discovery string
}

// NewTopics returns topic builders, falling back to the default roots for
// empty arguments.
func NewTopics(prefix, discovery string) Topics {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	if discovery == "" {
		discovery = DefaultDiscoveryPrefix
	}
	return Topics{
		Prefix:    strings.TrimSuffix(prefix, "/"),
		Discovery: strings.TrimSuffix(discovery, "/"),
	}
}

// Status returns the bridge availability topic.
//
// Example: c4bridge/status
func (t Topics) Status() string {
	return t.Prefix + "/status"
}

// State returns the retained state topic of one accessory property.
//
// Example: c4bridge/6f1c.../target_temperature/state
func (t Topics) State(uuid, property string) string {
	return fmt.Sprintf("%s/%s/%s/state", t.Prefix, uuid, property)
}

// Command returns the topic a property accepts writes on.
//
// Example: c4bridge/6f1c.../target_temperature/set
func (t Topics) Command(uuid, property string) string {
	return fmt.Sprintf("%s/%s/%s/set", t.Prefix, uuid, property)
}

// AllCommands returns a wildcard matching every command topic.
func (t Topics) AllCommands() string {
	return t.Prefix + "/+/+/set"
}

// DiscoveryConfig returns the Home Assistant discovery topic for an entity.
//
// Example: homeassistant/light/c4bridge_6f1c.../config
func (t Topics) DiscoveryConfig(component, objectID string) string {
	return fmt.Sprintf("%s/%s/%s/config", t.Discovery, component, objectID)
}

// ParseCommand extracts the accessory UUID and property from a command topic.
func (t Topics) ParseCommand(topic string) (uuid, property string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.Prefix+"/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[2] != "set" || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
