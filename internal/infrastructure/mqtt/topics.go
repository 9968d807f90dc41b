package mqtt

import "fmt"

// Topic prefixes for Unify Core's own MQTT surface.
//
// Vendor integrations (zigbee2mqtt and friends) own their topic trees;
// these prefixes cover only what Core itself publishes: canonical device
// state, events, and system status.
const (
	// TopicPrefixCore is the base for all core topics.
	TopicPrefixCore = "unify/core"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "unify/system"
)

// Topics provides builders for Unify Core MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.CoreDeviceState("hue:1")
//	// Returns: "unify/core/device/hue:1/state"
type Topics struct{}

// CoreDeviceState returns the canonical device state topic.
// This is the authoritative state published by Core after a command or
// vendor push has been processed.
//
// Example: unify/core/device/hue:1/state
func (Topics) CoreDeviceState(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/state", TopicPrefixCore, deviceID)
}

// CoreEvent returns the topic for system events.
//
// Example: unify/core/event/device_added
func (Topics) CoreEvent(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefixCore, eventType)
}

// CoreCommandResult returns the topic for settled command outcomes.
//
// Example: unify/core/command/hue:1/result
func (Topics) CoreCommandResult(deviceID string) string {
	return fmt.Sprintf("%s/command/%s/result", TopicPrefixCore, deviceID)
}

// SystemStatus returns the system status topic.
//
// Example: unify/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllCoreDeviceStates returns a pattern matching all canonical device states.
//
// Pattern: unify/core/device/+/state
func (Topics) AllCoreDeviceStates() string {
	return fmt.Sprintf("%s/device/+/state", TopicPrefixCore)
}

// AllCoreEvents returns a pattern matching all core events.
//
// Pattern: unify/core/event/+
func (Topics) AllCoreEvents() string {
	return fmt.Sprintf("%s/event/+", TopicPrefixCore)
}

// AllTopics returns a pattern matching all Unify topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: unify/#
func (Topics) AllTopics() string {
	return "unify/#"
}
