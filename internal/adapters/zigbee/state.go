package zigbee

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/unify-home/unify-core/internal/device"
	"github.com/unify-home/unify-core/internal/platform"
)

// capabilityMap translates zigbee2mqtt property names to the canonical
// capability vocabulary.
var capabilityMap = map[string]device.Capability{
	"state":       device.CapSwitch,
	"brightness":  device.CapDimmer,
	"color_temp":  device.CapColorTemperature,
	"color_xy":    device.CapColorControl,
	"position":    device.CapWindowShade,
	"occupancy":   device.CapMotionSensor,
	"contact":     device.CapContactSensor,
	"temperature": device.CapTemperatureSensor,
	"humidity":    device.CapHumiditySensor,
	"illuminance": device.CapIlluminanceSensor,
	"battery":     device.CapBattery,
	"power":       device.CapEnergyMeter,
	"action":      device.CapButton,
}

// vendorMap is the reverse of capabilityMap for the writeable properties.
var vendorMap = map[device.Capability]string{
	device.CapSwitch:           "state",
	device.CapDimmer:           "brightness",
	device.CapColorTemperature: "color_temp",
	device.CapColorControl:     "color_xy",
	device.CapWindowShade:      "position",
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

// translateState converts a zigbee2mqtt state report into the canonical
// state vocabulary. Unknown keys pass through untouched so sensor-rich
// devices keep their full payload.
func translateState(raw map[string]any) device.State {
	state := make(device.State, len(raw))
	for k, v := range raw {
		switch k {
		case "state":
			if s, ok := v.(string); ok {
				state["on"] = s == "ON"
			} else {
				state[k] = v
			}
		case "brightness":
			if n, ok := toFloat(v); ok {
				state["level"] = briToLevel(n)
			}
		case "color_temp":
			if n, ok := toFloat(v); ok && n > 0 {
				state["color_temperature"] = int(math.Round(1_000_000 / n))
			}
		case "occupancy":
			state["motion"] = v
		case "linkquality":
			state["link_quality"] = v
		default:
			state[k] = v
		}
	}
	return state
}

// commandPayload builds the zigbee2mqtt set payload for a unified command.
func commandPayload(cmd platform.Command) ([]byte, error) {
	body := map[string]any{}

	switch cmd.Capability {
	case device.CapSwitch:
		switch cmd.Command {
		case "on":
			body["state"] = "ON"
		case "off":
			body["state"] = "OFF"
		case "toggle":
			// zigbee2mqtt resolves TOGGLE against the device itself.
			body["state"] = "TOGGLE"
		default:
			return nil, invalidCommand(cmd)
		}
	case device.CapDimmer:
		if cmd.Command != "set_level" {
			return nil, invalidCommand(cmd)
		}
		level, ok := numberParam(cmd.Parameters, "level")
		if !ok {
			return nil, platform.Errorf(platform.CodeInvalidCommand, "set_level requires numeric level parameter")
		}
		body["brightness"] = levelToBri(level)
	case device.CapColorTemperature:
		if cmd.Command != "set_color_temperature" {
			return nil, invalidCommand(cmd)
		}
		kelvin, ok := numberParam(cmd.Parameters, "kelvin")
		if !ok || kelvin <= 0 {
			return nil, platform.Errorf(platform.CodeInvalidCommand, "set_color_temperature requires positive kelvin parameter")
		}
		body["color_temp"] = int(math.Round(1_000_000 / kelvin))
	case device.CapColorControl:
		if cmd.Command != "set_color" {
			return nil, invalidCommand(cmd)
		}
		hue, hasHue := numberParam(cmd.Parameters, "hue")
		sat, hasSat := numberParam(cmd.Parameters, "saturation")
		if !hasHue || !hasSat {
			return nil, platform.Errorf(platform.CodeInvalidCommand, "set_color requires hue and saturation parameters")
		}
		body["color"] = map[string]any{"hue": hue, "saturation": sat}
	case device.CapWindowShade:
		switch cmd.Command {
		case "open":
			body["state"] = "OPEN"
		case "close":
			body["state"] = "CLOSE"
		case "set_position":
			pos, ok := numberParam(cmd.Parameters, "position")
			if !ok {
				return nil, platform.Errorf(platform.CodeInvalidCommand, "set_position requires numeric position parameter")
			}
			body["position"] = int(math.Round(clamp(pos, 0, 100)))
		default:
			return nil, invalidCommand(cmd)
		}
	case device.CapLock:
		switch cmd.Command {
		case "lock":
			body["state"] = "LOCK"
		case "unlock":
			body["state"] = "UNLOCK"
		default:
			return nil, invalidCommand(cmd)
		}
	case device.CapThermostatMode:
		if cmd.Command != "set_mode" {
			return nil, invalidCommand(cmd)
		}
		mode, _ := cmd.Parameters["mode"].(string)
		if mode == "" {
			return nil, platform.Errorf(platform.CodeInvalidCommand, "set_mode requires mode parameter")
		}
		body["system_mode"] = mode
	case device.CapTemperatureSet:
		if cmd.Command != "set_temperature" {
			return nil, invalidCommand(cmd)
		}
		setpoint, ok := numberParam(cmd.Parameters, "temperature")
		if !ok {
			return nil, platform.Errorf(platform.CodeInvalidCommand, "set_temperature requires numeric temperature parameter")
		}
		body["occupied_heating_setpoint"] = setpoint
	default:
		return nil, platform.NewError(
			platform.CodeCapabilityNotSupported,
			fmt.Sprintf("zigbee does not support %s/%s", cmd.Capability, cmd.Command),
		)
	}

	return json.Marshal(body)
}

func invalidCommand(cmd platform.Command) *platform.Error {
	return platform.Errorf(platform.CodeInvalidCommand, "unknown command %q for capability %s", cmd.Command, cmd.Capability)
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

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// briToLevel rescales zigbee brightness (0-254) to percent.
func briToLevel(bri float64) int {
	return int(math.Round(clamp(bri, 0, 254) / 254 * 100))
}

// levelToBri rescales percent to zigbee brightness (0-254).
func levelToBri(level float64) int {
	return int(math.Round(clamp(level, 0, 100) / 100 * 254))
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
