package hue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/unify-home/unify-core/internal/device"
	"github.com/unify-home/unify-core/internal/platform"
)

// fakeBridge simulates a CLIP v1 bridge with two lights.
func fakeBridge(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/testuser/config", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"name": "Test Bridge", "swversion": "1967054020", "bridgeid": "001788FFFE000000",
		})
	})
	mux.HandleFunc("/api/testuser/lights", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"1": lightJSON("Hallway", "Dimmable light", true, 127, true),
			"2": lightJSON("Lounge", "Extended color light", false, 254, false),
		})
	})
	mux.HandleFunc("/api/testuser/lights/1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, lightJSON("Hallway", "Dimmable light", true, 127, true))
	})
	mux.HandleFunc("/api/testuser/lights/1/state", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeJSON(t, w, []map[string]any{{"success": body}})
	})
	mux.HandleFunc("/api/testuser/lights/9", func(w http.ResponseWriter, r *http.Request) {
		// CLIP reports missing resources inside a 200 body.
		writeJSON(t, w, []map[string]any{{
			"error": map[string]any{"type": 3, "address": "/lights/9", "description": "resource, /lights/9, not available"},
		}})
	})
	mux.HandleFunc("/api/testuser/groups", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"1": map[string]any{"name": "Lounge", "type": "Room"},
			"2": map[string]any{"name": "All", "type": "LightGroup"},
		})
	})
	mux.HandleFunc("/api/testuser/scenes", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"abc123": map[string]any{"name": "Relax", "group": "1"},
		})
	})
	mux.HandleFunc("/api/testuser/groups/0/action", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []map[string]any{{"success": map[string]any{"/groups/0/action/scene": "abc123"}}})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func lightJSON(name, lightType string, on bool, bri int, reachable bool) map[string]any {
	return map[string]any{
		"name": name,
		"type": lightType,
		"state": map[string]any{
			"on": on, "bri": bri, "reachable": reachable, "colormode": "ct", "ct": 366,
		},
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encoding response: %v", err)
	}
}

func newTestAdapter(t *testing.T, url string) *Adapter {
	t.Helper()
	return New(Config{BridgeURL: url, Username: "testuser", Timeout: 2 * time.Second})
}

func TestInitialize(t *testing.T) {
	srv := fakeBridge(t)
	a := newTestAdapter(t, srv.URL)

	if a.Initialized() {
		t.Fatal("adapter should not report initialized before Initialize()")
	}
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if !a.Initialized() {
		t.Error("adapter should report initialized")
	}
	if err := a.Dispose(context.Background()); err != nil {
		t.Fatalf("Dispose() error = %v", err)
	}
	if a.Initialized() {
		t.Error("adapter should not report initialized after Dispose()")
	}
}

func TestInitializeBadKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)
	err := a.Initialize(context.Background())
	if err == nil {
		t.Fatal("Initialize() should fail on 401")
	}
	if platform.CodeOf(err) != platform.CodeAuthentication {
		t.Errorf("fault code = %v, want authentication", platform.CodeOf(err))
	}
}

func TestListDevices(t *testing.T) {
	srv := fakeBridge(t)
	a := newTestAdapter(t, srv.URL)

	devices, err := a.ListDevices(context.Background(), device.Filter{})
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("got %d devices, want 2", len(devices))
	}

	hall := devices[0]
	if hall.ID != "hue:1" || hall.Name != "Hallway" {
		t.Errorf("first device = %s/%s, want hue:1/Hallway", hall.ID, hall.Name)
	}
	if !hall.Online {
		t.Error("Hallway should be online (reachable)")
	}
	if !hall.HasCapability(device.CapDimmer) {
		t.Error("dimmable light should have dimmer capability")
	}
	if hall.HasCapability(device.CapColorControl) {
		t.Error("dimmable light should not have color control")
	}

	lounge := devices[1]
	if !lounge.HasCapability(device.CapColorControl) || !lounge.HasCapability(device.CapColorTemperature) {
		t.Error("extended color light should have color capabilities")
	}
	if lounge.Online {
		t.Error("Lounge should be offline (unreachable)")
	}
}

func TestListDevicesFiltered(t *testing.T) {
	srv := fakeBridge(t)
	a := newTestAdapter(t, srv.URL)

	ctx := context.Background()

	color := device.CapColorControl
	devices, err := a.ListDevices(ctx, device.Filter{Capability: &color})
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if len(devices) != 1 || devices[0].ID != "hue:2" {
		t.Errorf("color filter = %v, want just hue:2", devices)
	}

	online := true
	devices, err = a.ListDevices(ctx, device.Filter{Online: &online})
	if err != nil {
		t.Fatal(err)
	}
	if len(devices) != 1 || devices[0].ID != "hue:1" {
		t.Errorf("online filter = %v, want just hue:1", devices)
	}

	devices, err = a.ListDevices(ctx, device.Filter{Name: "hall"})
	if err != nil {
		t.Fatal(err)
	}
	if len(devices) != 1 || devices[0].Name != "Hallway" {
		t.Errorf("name filter = %v, want just Hallway", devices)
	}
}

func TestRefreshDeviceState(t *testing.T) {
	srv := fakeBridge(t)
	a := newTestAdapter(t, srv.URL)

	state, err := a.RefreshDeviceState(context.Background(), "hue:1")
	if err != nil {
		t.Fatalf("RefreshDeviceState() error = %v", err)
	}
	if on, _ := state["on"].(bool); !on {
		t.Error("state on = false, want true")
	}
	if level, _ := state["level"].(int); level != 50 {
		t.Errorf("state level = %v, want 50 (bri 127)", state["level"])
	}
	if ct, _ := state["color_temperature"].(int); ct != 2732 {
		t.Errorf("color_temperature = %v, want 2732 (366 mired)", state["color_temperature"])
	}
}

func TestRefreshDeviceStateNotFound(t *testing.T) {
	srv := fakeBridge(t)
	a := newTestAdapter(t, srv.URL)

	_, err := a.RefreshDeviceState(context.Background(), "hue:9")
	if err == nil {
		t.Fatal("expected error for missing light")
	}
	if platform.CodeOf(err) != platform.CodeDeviceNotFound {
		t.Errorf("fault code = %v, want device_not_found", platform.CodeOf(err))
	}
	e, ok := platform.AsError(err)
	if !ok {
		t.Fatal("expected platform fault")
	}
	if e.Context.DeviceID != "hue:9" {
		t.Errorf("fault device id = %q, want hue:9", e.Context.DeviceID)
	}
}

func TestRefreshDeviceStateWrongPlatform(t *testing.T) {
	srv := fakeBridge(t)
	a := newTestAdapter(t, srv.URL)

	_, err := a.RefreshDeviceState(context.Background(), "zigbee:lamp")
	if platform.CodeOf(err) != platform.CodeDeviceNotFound {
		t.Errorf("fault code = %v, want device_not_found for foreign platform id", platform.CodeOf(err))
	}
}

func TestExecuteCommand(t *testing.T) {
	srv := fakeBridge(t)
	a := newTestAdapter(t, srv.URL)

	var events []platform.Event
	sub := a.Subscribe(func(e platform.Event) { events = append(events, e) })
	defer sub.Cancel()

	state, err := a.ExecuteCommand(context.Background(), "hue:1", platform.Command{
		Capability: device.CapSwitch,
		Command:    "on",
	})
	if err != nil {
		t.Fatalf("ExecuteCommand() error = %v", err)
	}
	if state == nil {
		t.Fatal("ExecuteCommand() returned nil state")
	}
	if len(events) != 1 || events[0].Type != platform.EventStateChange {
		t.Fatalf("expected one state_change event, got %v", events)
	}
	if events[0].DeviceID != "hue:1" {
		t.Errorf("event device id = %q, want hue:1", events[0].DeviceID)
	}
}

func TestExecuteCommandUnsupported(t *testing.T) {
	srv := fakeBridge(t)
	a := newTestAdapter(t, srv.URL)

	_, err := a.ExecuteCommand(context.Background(), "hue:1", platform.Command{
		Capability: device.CapLock,
		Command:    "lock",
	})
	if platform.CodeOf(err) != platform.CodeCapabilityNotSupported {
		t.Errorf("fault code = %v, want capability_not_supported", platform.CodeOf(err))
	}
}

func TestExecuteBatch(t *testing.T) {
	srv := fakeBridge(t)
	a := newTestAdapter(t, srv.URL)

	results, err := a.ExecuteBatch(context.Background(), []platform.CommandRequest{
		{DeviceID: "hue:1", Command: platform.Command{Capability: device.CapSwitch, Command: "on"}},
		{DeviceID: "hue:9", Command: platform.Command{Capability: device.CapSwitch, Command: "off"}},
	})
	if err != nil {
		t.Fatalf("ExecuteBatch() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Err != nil {
		t.Errorf("first result error = %v, want nil", results[0].Err)
	}
	if platform.CodeOf(results[1].Err) != platform.CodeDeviceNotFound {
		t.Errorf("second result fault = %v, want device_not_found", results[1].Err)
	}
}

func TestRateLimitMapsRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)
	_, err := a.RefreshDeviceState(context.Background(), "hue:1")
	if platform.CodeOf(err) != platform.CodeRateLimit {
		t.Fatalf("fault code = %v, want rate_limit", platform.CodeOf(err))
	}
	retryAfter, ok := platform.RetryAfterOf(err)
	if !ok || retryAfter != 30*time.Second {
		t.Errorf("retry-after = %v/%v, want 30s", retryAfter, ok)
	}
}

func TestTimeoutMapsToFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	a := New(Config{BridgeURL: srv.URL, Username: "testuser", Timeout: 20 * time.Millisecond})
	_, err := a.RefreshDeviceState(context.Background(), "hue:1")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	code := platform.CodeOf(err)
	if code != platform.CodeTimeout && code != platform.CodeNetwork {
		t.Errorf("fault code = %v, want timeout or network", code)
	}
	if !platform.IsRetryable(err) {
		t.Error("timeout faults should be retryable")
	}
}

func TestListRooms(t *testing.T) {
	srv := fakeBridge(t)
	a := newTestAdapter(t, srv.URL)

	rooms, err := a.ListRooms(context.Background())
	if err != nil {
		t.Fatalf("ListRooms() error = %v", err)
	}
	if len(rooms) != 1 {
		t.Fatalf("got %d rooms, want 1 (LightGroup excluded)", len(rooms))
	}
	if rooms[0].Name != "Lounge" {
		t.Errorf("room name = %q, want Lounge", rooms[0].Name)
	}
}

func TestScenes(t *testing.T) {
	srv := fakeBridge(t)
	a := newTestAdapter(t, srv.URL)

	if !a.SupportsScenes() {
		t.Fatal("hue adapter should support scenes")
	}
	scenes, err := a.ListScenes(context.Background())
	if err != nil {
		t.Fatalf("ListScenes() error = %v", err)
	}
	if len(scenes) != 1 || scenes[0].Name != "Relax" {
		t.Fatalf("scenes = %v, want one scene named Relax", scenes)
	}
	if err := a.ExecuteScene(context.Background(), "abc123"); err != nil {
		t.Errorf("ExecuteScene() error = %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	srv := fakeBridge(t)
	a := newTestAdapter(t, srv.URL)

	h, err := a.HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
	if !h.Healthy {
		t.Errorf("health = %+v, want healthy", h)
	}

	srv.Close()
	h, err = a.HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("HealthCheck() after close error = %v", err)
	}
	if h.Healthy {
		t.Error("health should be unhealthy once bridge is gone")
	}
}

func TestCommandBodyMappings(t *testing.T) {
	tests := []struct {
		name string
		cmd  platform.Command
		want map[string]any
	}{
		{
			name: "switch off",
			cmd:  platform.Command{Capability: device.CapSwitch, Command: "off"},
			want: map[string]any{"on": false},
		},
		{
			name: "set level 50",
			cmd: platform.Command{
				Capability: device.CapDimmer, Command: "set_level",
				Parameters: map[string]any{"level": 50},
			},
			want: map[string]any{"bri": 127, "on": true},
		},
		{
			name: "set level 0 turns off",
			cmd: platform.Command{
				Capability: device.CapDimmer, Command: "set_level",
				Parameters: map[string]any{"level": 0},
			},
			want: map[string]any{"bri": 1, "on": false},
		},
		{
			name: "color temperature 4000K",
			cmd: platform.Command{
				Capability: device.CapColorTemperature, Command: "set_color_temperature",
				Parameters: map[string]any{"kelvin": 4000},
			},
			want: map[string]any{"ct": 250, "on": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := commandBody(tt.cmd)
			if err != nil {
				t.Fatalf("commandBody() error = %v", err)
			}
			for k, want := range tt.want {
				if got[k] != want {
					t.Errorf("body[%q] = %v, want %v", k, got[k], want)
				}
			}
		})
	}
}

func TestCapabilityMapping(t *testing.T) {
	a := New(Config{})

	if c, ok := a.MapCapability("bri"); !ok || c != device.CapDimmer {
		t.Errorf("MapCapability(bri) = %v/%v, want dimmer", c, ok)
	}
	if v, ok := a.VendorCapability(device.CapColorTemperature); !ok || v != "ct" {
		t.Errorf("VendorCapability(color_temperature) = %v/%v, want ct", v, ok)
	}
	if _, ok := a.MapCapability("nope"); ok {
		t.Error("unknown vendor capability should not map")
	}
}

var _ platform.Adapter = (*Adapter)(nil)
