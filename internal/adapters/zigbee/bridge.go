package zigbee

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/unify-home/unify-core/internal/device"
	"github.com/unify-home/unify-core/internal/platform"
)

// bridgeDevice is the zigbee2mqtt bridge/devices entry shape, trimmed to
// what we use.
type bridgeDevice struct {
	FriendlyName string `json:"friendly_name"`
	IEEEAddress  string `json:"ieee_address"`
	Type         string `json:"type"` // Coordinator, Router, EndDevice
	Supported    bool   `json:"supported"`
	Definition   *struct {
		Model   string   `json:"model"`
		Vendor  string   `json:"vendor"`
		Exposes []expose `json:"exposes"`
	} `json:"definition"`
}

// expose is one entry of a device definition's exposes tree. Composite
// exposes (light, switch, lock, cover, climate) nest their actual
// properties under features.
type expose struct {
	Type     string   `json:"type,omitempty"`
	Property string   `json:"property,omitempty"`
	Name     string   `json:"name,omitempty"`
	Features []expose `json:"features,omitempty"`
}

// handleBridgeState tracks bridge availability from <base>/bridge/state.
// Older bridges publish a bare string, newer ones a JSON object.
func (a *Adapter) handleBridgeState(_ string, payload []byte) error {
	text := strings.TrimSpace(string(payload))

	var wrapped struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(payload, &wrapped); err == nil && wrapped.State != "" {
		text = wrapped.State
	}

	online := text == "online"

	a.mu.Lock()
	changed := a.bridgeOnline != online
	a.bridgeOnline = online
	a.mu.Unlock()

	if changed {
		a.logger.Info("zigbee2mqtt bridge availability changed", "online", online)
	}
	return nil
}

// handleBridgeDevices rebuilds the device inventory from the retained
// <base>/bridge/devices message and emits added/removed events for the
// difference against the previous inventory.
func (a *Adapter) handleBridgeDevices(_ string, payload []byte) error {
	var entries []bridgeDevice
	if err := json.Unmarshal(payload, &entries); err != nil {
		return fmt.Errorf("parsing bridge/devices: %w", err)
	}

	next := make(map[string]*device.Device, len(entries))
	for _, entry := range entries {
		if entry.Type == "Coordinator" || entry.FriendlyName == "" {
			continue
		}
		d := a.bridgeDeviceToDevice(entry)
		next[entry.FriendlyName] = d
	}

	a.mu.Lock()
	prev := a.devices
	a.devices = next
	for friendly := range prev {
		if _, still := next[friendly]; !still {
			delete(a.states, friendly)
		}
	}
	a.mu.Unlock()

	for friendly, d := range next {
		if _, existed := prev[friendly]; !existed {
			a.bus.Publish(platform.Event{
				Type:     platform.EventDeviceAdded,
				DeviceID: d.ID,
				Platform: device.PlatformZigbee,
				Device:   d.DeepCopy(),
			})
		}
	}
	for friendly, d := range prev {
		if _, still := next[friendly]; !still {
			a.bus.Publish(platform.Event{
				Type:     platform.EventDeviceRemoved,
				DeviceID: d.ID,
				Platform: device.PlatformZigbee,
			})
		}
	}

	a.logger.Debug("zigbee2mqtt inventory updated", "devices", len(next))
	return nil
}

// handleBridgeGroups maps zigbee2mqtt groups onto rooms.
func (a *Adapter) handleBridgeGroups(_ string, payload []byte) error {
	var entries []struct {
		ID           int    `json:"id"`
		FriendlyName string `json:"friendly_name"`
	}
	if err := json.Unmarshal(payload, &entries); err != nil {
		return fmt.Errorf("parsing bridge/groups: %w", err)
	}

	rooms := make([]platform.Room, 0, len(entries))
	for _, g := range entries {
		rooms = append(rooms, platform.Room{
			ID:   strconv.Itoa(g.ID),
			Name: g.FriendlyName,
		})
	}

	a.mu.Lock()
	a.groups = rooms
	a.mu.Unlock()
	return nil
}

// handleDeviceState processes a device state report from <base>/<friendly>.
// Reports for unknown devices are dropped; the inventory message is the
// source of truth for what exists.
func (a *Adapter) handleDeviceState(topic string, payload []byte) error {
	friendly := a.localPart(topic)
	if friendly == "" || strings.HasPrefix(friendly, "bridge") || strings.Contains(friendly, "/") {
		return nil
	}

	a.mu.RLock()
	d, known := a.devices[friendly]
	a.mu.RUnlock()
	if !known {
		return nil
	}

	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return fmt.Errorf("parsing state for %s: %w", friendly, err)
	}
	state := translateState(raw)

	now := time.Now().UTC()
	a.mu.Lock()
	a.states[friendly] = state
	if d2, ok := a.devices[friendly]; ok {
		d2.LastSeen = &now
		d2.Online = true
	}
	a.mu.Unlock()

	a.settleWaiters(friendly, state)
	a.bus.Publish(platform.Event{
		Type:     platform.EventStateChange,
		DeviceID: d.ID,
		Platform: device.PlatformZigbee,
		State:    device.CopyState(state),
	})
	return nil
}

// handleAvailability processes <base>/<friendly>/availability messages.
func (a *Adapter) handleAvailability(topic string, payload []byte) error {
	local := a.localPart(topic)
	friendly := strings.TrimSuffix(local, "/availability")
	if friendly == local || strings.HasPrefix(friendly, "bridge") {
		return nil
	}

	text := strings.TrimSpace(string(payload))
	var wrapped struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(payload, &wrapped); err == nil && wrapped.State != "" {
		text = wrapped.State
	}
	online := text == "online"

	a.mu.Lock()
	if d, ok := a.devices[friendly]; ok {
		d.Online = online
	}
	a.mu.Unlock()
	return nil
}

// bridgeDeviceToDevice converts a bridge inventory entry to the unified
// device shape.
func (a *Adapter) bridgeDeviceToDevice(entry bridgeDevice) *device.Device {
	d := &device.Device{
		ID:       device.JoinID(device.PlatformZigbee, entry.FriendlyName),
		Platform: device.PlatformZigbee,
		LocalID:  entry.FriendlyName,
		Name:     entry.FriendlyName,
		Online:   true,
	}
	if entry.Definition != nil {
		d.Capabilities = capabilitiesForExposes(entry.Definition.Exposes)
	}
	return d
}

// capabilitiesForExposes walks a definition's exposes tree and collects
// the canonical capabilities it implies.
func capabilitiesForExposes(exposes []expose) []device.Capability {
	seen := make(map[device.Capability]bool)
	var out []device.Capability

	add := func(c device.Capability) {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}

	var walk func(items []expose, parent string)
	walk = func(items []expose, parent string) {
		for _, e := range items {
			if len(e.Features) > 0 {
				walk(e.Features, e.Type)
				continue
			}
			prop := e.Property
			if prop == "" {
				prop = e.Name
			}
			if c, ok := propertyCapability(prop, parent); ok {
				add(c)
			}
		}
	}
	walk(exposes, "")
	return out
}

// propertyCapability maps one exposed property, in the context of its
// parent composite type, to a canonical capability.
func propertyCapability(property, parent string) (device.Capability, bool) {
	switch property {
	case "state":
		switch parent {
		case "light", "switch", "":
			return device.CapSwitch, true
		case "lock":
			return device.CapLock, true
		case "cover":
			return device.CapWindowShade, true
		}
	case "brightness":
		return device.CapDimmer, true
	case "color_temp":
		return device.CapColorTemperature, true
	case "color_xy", "color_hs":
		return device.CapColorControl, true
	case "position":
		return device.CapWindowShade, true
	case "occupancy":
		return device.CapMotionSensor, true
	case "contact":
		return device.CapContactSensor, true
	case "presence":
		return device.CapPresenceSensor, true
	case "temperature", "local_temperature":
		return device.CapTemperatureSensor, true
	case "humidity":
		return device.CapHumiditySensor, true
	case "illuminance", "illuminance_lux":
		return device.CapIlluminanceSensor, true
	case "battery":
		return device.CapBattery, true
	case "power", "energy":
		return device.CapEnergyMeter, true
	case "action":
		return device.CapButton, true
	case "system_mode":
		return device.CapThermostatMode, true
	case "occupied_heating_setpoint", "current_heating_setpoint":
		return device.CapTemperatureSet, true
	}
	return "", false
}
