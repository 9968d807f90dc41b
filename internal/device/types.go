package device

import (
	"strings"
	"sync"
	"time"
)

// Device represents a single smart-home device unified across vendor platforms.
//
// The ID is the universal identifier "<platform>:<platform-local-id>" and is
// immutable once the device has been added to a Registry. Every other field
// may change on update (rename, move to another room, capability re-sync).
type Device struct {
	// Identity
	ID       string   `json:"id"`
	Platform Platform `json:"platform"`
	LocalID  string   `json:"local_id"`

	// Naming
	Name  string  `json:"name"`
	Alias *string `json:"alias,omitempty"`

	// Location
	Room *string `json:"room,omitempty"`

	// Capabilities (canonical vocabulary, de-duplicated)
	Capabilities []Capability `json:"capabilities"`

	// Availability
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// DeepCopy creates a complete independent copy of the Device.
// Slice fields are cloned so modifications to the copy do not affect
// the original. This is essential for registry isolation.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d // Shallow copy of value fields

	if d.Capabilities != nil {
		cpy.Capabilities = make([]Capability, len(d.Capabilities))
		copy(cpy.Capabilities, d.Capabilities)
	}

	// Pointer fields (*string, *time.Time) don't need deep copy
	// because strings and time.Time are immutable in Go

	return &cpy
}

// HasCapability reports whether the device declares the given capability.
func (d *Device) HasCapability(cap Capability) bool {
	for _, c := range d.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// State holds a device state snapshot as a JSON map.
//
// Examples:
//   - Light: {"on": true, "level": 75}
//   - Thermostat: {"temperature": 21.5, "setpoint": 22.0, "mode": "heat"}
//   - Lock: {"locked": true, "battery": 88}
type State map[string]any

// CopyState creates a deep copy of a state map.
// Nested maps and slices are recursively copied.
func CopyState(s State) State {
	if s == nil {
		return nil
	}
	cpy := make(State, len(s))
	for k, v := range s {
		cpy[k] = copyStateValue(v)
	}
	return cpy
}

// copyStateValue recursively copies a value, handling nested maps and slices.
func copyStateValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		cpy := make(map[string]any, len(val))
		for k, elem := range val {
			cpy[k] = copyStateValue(elem)
		}
		return cpy
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = copyStateValue(elem)
		}
		return cpy
	default:
		// Primitives (string, bool, int, float64, etc.) are safe to copy by value
		return v
	}
}

// Platform identifies the vendor cloud a device belongs to.
//
// The set of platforms is closed but registrable: the built-in vendors are
// always valid, and integrations may add their own via RegisterPlatform
// before constructing adapters.
type Platform string

// Built-in platform constants.
const (
	PlatformSmartThings   Platform = "smartthings"
	PlatformHue           Platform = "hue"
	PlatformTuya          Platform = "tuya"
	PlatformHomeAssistant Platform = "homeassistant"
	PlatformZigbee        Platform = "zigbee"
)

var (
	platformMu     sync.RWMutex
	validPlatforms = map[Platform]struct{}{
		PlatformSmartThings:   {},
		PlatformHue:           {},
		PlatformTuya:          {},
		PlatformHomeAssistant: {},
		PlatformZigbee:        {},
	}
)

// RegisterPlatform adds a platform to the valid set.
// Platform names must be lowercase and must not contain a colon,
// since the colon separates platform from local id in device ids.
func RegisterPlatform(p Platform) error {
	s := string(p)
	if s == "" || strings.Contains(s, ":") || s != strings.ToLower(s) {
		return ErrUnknownPlatform
	}

	platformMu.Lock()
	validPlatforms[p] = struct{}{}
	platformMu.Unlock()
	return nil
}

// IsValidPlatform reports whether p belongs to the registered platform set.
func IsValidPlatform(p Platform) bool {
	platformMu.RLock()
	_, ok := validPlatforms[p]
	platformMu.RUnlock()
	return ok
}

// AllPlatforms returns all currently registered platform values.
func AllPlatforms() []Platform {
	platformMu.RLock()
	defer platformMu.RUnlock()

	out := make([]Platform, 0, len(validPlatforms))
	for p := range validPlatforms {
		out = append(out, p)
	}
	return out
}

// JoinID builds a universal device id from a platform and its local id.
func JoinID(p Platform, localID string) string {
	return string(p) + ":" + localID
}

// SplitID splits a universal device id into platform and local id.
//
// Only the first colon separates the two parts; the local id may itself
// contain colons (Zigbee IEEE addresses, Home Assistant entity ids).
// Returns ErrInvalidDeviceID for malformed ids and ErrUnknownPlatform
// when the prefix is not a registered platform.
func SplitID(id string) (Platform, string, error) {
	prefix, local, found := strings.Cut(id, ":")
	if !found || prefix == "" || local == "" {
		return "", "", ErrInvalidDeviceID
	}

	p := Platform(prefix)
	if !IsValidPlatform(p) {
		return "", "", ErrUnknownPlatform
	}
	return p, local, nil
}

// Capability represents what a device can do, in the canonical
// platform-agnostic vocabulary. Adapters translate vendor-native
// capability identifiers to and from these values.
type Capability string

// Control capabilities.
const (
	CapSwitch           Capability = "switch"
	CapDimmer           Capability = "dimmer"
	CapColorControl     Capability = "color_control"
	CapColorTemperature Capability = "color_temperature"
	CapWindowShade      Capability = "window_shade"
	CapLock             Capability = "lock"
	CapThermostatMode   Capability = "thermostat_mode"
	CapTemperatureSet   Capability = "temperature_setpoint"
	CapMediaPlayback    Capability = "media_playback"
	CapVolume           Capability = "volume"
	CapSceneActivation  Capability = "scene_activation"
)

// Sensor capabilities.
const (
	CapTemperatureSensor Capability = "temperature_sensor"
	CapHumiditySensor    Capability = "humidity_sensor"
	CapIlluminanceSensor Capability = "illuminance_sensor"
	CapMotionSensor      Capability = "motion_sensor"
	CapContactSensor     Capability = "contact_sensor"
	CapPresenceSensor    Capability = "presence_sensor"
	CapButton            Capability = "button"
	CapBattery           Capability = "battery"
	CapEnergyMeter       Capability = "energy_meter"
)

// AllCapabilities returns all valid canonical capability values.
func AllCapabilities() []Capability {
	return []Capability{
		// Control
		CapSwitch, CapDimmer, CapColorControl, CapColorTemperature,
		CapWindowShade, CapLock, CapThermostatMode, CapTemperatureSet,
		CapMediaPlayback, CapVolume, CapSceneActivation,
		// Sensors
		CapTemperatureSensor, CapHumiditySensor, CapIlluminanceSensor,
		CapMotionSensor, CapContactSensor, CapPresenceSensor,
		CapButton, CapBattery, CapEnergyMeter,
	}
}

// dedupeCapabilities returns caps with duplicates removed, preserving
// first-occurrence order. The device model guarantees a de-duplicated list.
func dedupeCapabilities(caps []Capability) []Capability {
	if len(caps) == 0 {
		return nil
	}

	seen := make(map[Capability]struct{}, len(caps))
	out := make([]Capability, 0, len(caps))
	for _, c := range caps {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
