package hue

import (
	"fmt"
	"math"

	"github.com/unify-home/unify-core/internal/device"
	"github.com/unify-home/unify-core/internal/platform"
)

// capabilityMap translates the bridge's vendor vocabulary to the canonical
// one. The CLIP v1 vocabulary is positional (state fields) rather than
// named capabilities, so the vendor keys here are the state field names.
var capabilityMap = map[string]device.Capability{
	"on":  device.CapSwitch,
	"bri": device.CapDimmer,
	"hue": device.CapColorControl,
	"ct":  device.CapColorTemperature,
}

// vendorMap is the reverse of capabilityMap.
var vendorMap = map[device.Capability]string{
	device.CapSwitch:           "on",
	device.CapDimmer:           "bri",
	device.CapColorControl:     "hue",
	device.CapColorTemperature: "ct",
}

// MapCapability implements platform.Adapter.
func (a *Adapter) MapCapability(vendor string) (device.Capability, bool) {
	c, ok := capabilityMap[vendor]
	return c, ok
}

// VendorCapability implements platform.Adapter.
func (a *Adapter) VendorCapability(cap device.Capability) (string, bool) {
	v, ok := vendorMap[cap]
	return v, ok
}

// capabilitiesForType derives canonical capabilities from the CLIP v1
// light type string.
func capabilitiesForType(lightType string) []device.Capability {
	switch lightType {
	case "On/Off light", "On/Off plug-in unit":
		return []device.Capability{device.CapSwitch}
	case "Dimmable light":
		return []device.Capability{device.CapSwitch, device.CapDimmer}
	case "Color temperature light":
		return []device.Capability{device.CapSwitch, device.CapDimmer, device.CapColorTemperature}
	case "Color light":
		return []device.Capability{device.CapSwitch, device.CapDimmer, device.CapColorControl}
	case "Extended color light":
		return []device.Capability{
			device.CapSwitch, device.CapDimmer,
			device.CapColorControl, device.CapColorTemperature,
		}
	default:
		// Unknown types still switch; everything on this API does.
		return []device.Capability{device.CapSwitch}
	}
}

// lightToDevice converts a CLIP v1 light resource into the unified shape.
func lightToDevice(localID string, l light) device.Device {
	return device.Device{
		ID:           device.JoinID(device.PlatformHue, localID),
		Platform:     device.PlatformHue,
		LocalID:      localID,
		Name:         l.Name,
		Capabilities: capabilitiesForType(l.Type),
		Online:       l.State.Reachable,
	}
}

// lightState converts the bridge's native state block into the canonical
// state vocabulary. Brightness is rescaled from the bridge's 1-254 range
// to 0-100.
func lightState(l light) device.State {
	s := device.State{
		"on":        l.State.On,
		"online":    l.State.Reachable,
		"level":     briToLevel(l.State.Bri),
		"colormode": l.State.ColorMode,
	}
	if l.State.CT > 0 {
		s["color_temperature"] = miredToKelvin(l.State.CT)
	}
	if l.State.ColorMode == "hs" {
		s["hue"] = float64(l.State.Hue) / 65535 * 360
		s["saturation"] = float64(l.State.Sat) / 254 * 100
	}
	return s
}

// commandBody builds the CLIP v1 state write for a unified command.
func commandBody(cmd platform.Command) (map[string]any, error) {
	switch cmd.Capability {
	case device.CapSwitch:
		switch cmd.Command {
		case "on":
			return map[string]any{"on": true}, nil
		case "off":
			return map[string]any{"on": false}, nil
		case "toggle":
			// CLIP v1 has no toggle; callers resolve against cached state.
			return nil, platform.Errorf(platform.CodeInvalidCommand, "toggle requires current state")
		}
	case device.CapDimmer:
		if cmd.Command == "set_level" {
			level, ok := numberParam(cmd.Parameters, "level")
			if !ok {
				return nil, platform.Errorf(platform.CodeInvalidCommand, "set_level requires numeric level parameter")
			}
			body := map[string]any{"bri": levelToBri(level)}
			if level > 0 {
				body["on"] = true
			} else {
				body["on"] = false
			}
			return body, nil
		}
	case device.CapColorTemperature:
		if cmd.Command == "set_color_temperature" {
			kelvin, ok := numberParam(cmd.Parameters, "kelvin")
			if !ok {
				return nil, platform.Errorf(platform.CodeInvalidCommand, "set_color_temperature requires numeric kelvin parameter")
			}
			return map[string]any{"ct": kelvinToMired(kelvin), "on": true}, nil
		}
	case device.CapColorControl:
		if cmd.Command == "set_color" {
			hue, hasHue := numberParam(cmd.Parameters, "hue")
			sat, hasSat := numberParam(cmd.Parameters, "saturation")
			if !hasHue || !hasSat {
				return nil, platform.Errorf(platform.CodeInvalidCommand, "set_color requires hue and saturation parameters")
			}
			return map[string]any{
				"hue": int(math.Round(clamp(hue, 0, 360) / 360 * 65535)),
				"sat": int(math.Round(clamp(sat, 0, 100) / 100 * 254)),
				"on":  true,
			}, nil
		}
	}
	return nil, platform.NewError(
		platform.CodeCapabilityNotSupported,
		fmt.Sprintf("hue does not support %s/%s", cmd.Capability, cmd.Command),
	)
}

// numberParam extracts a numeric parameter, accepting the types JSON
// decoding and direct construction produce.
func numberParam(params map[string]any, key string) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// briToLevel rescales bridge brightness (1-254) to percent.
func briToLevel(bri int) int {
	if bri <= 0 {
		return 0
	}
	return int(math.Round(float64(bri) / 254 * 100))
}

// levelToBri rescales percent to bridge brightness (1-254).
func levelToBri(level float64) int {
	level = clamp(level, 0, 100)
	if level == 0 {
		return 1
	}
	return int(math.Round(level / 100 * 254))
}

// Mired is a reciprocal megakelvin; the bridge's native CT unit.
func miredToKelvin(mired int) int {
	if mired <= 0 {
		return 0
	}
	return int(math.Round(1_000_000 / float64(mired)))
}

func kelvinToMired(kelvin float64) int {
	// Clamp to the range typical Hue hardware accepts.
	kelvin = clamp(kelvin, 2000, 6500)
	return int(math.Round(1_000_000 / kelvin))
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
