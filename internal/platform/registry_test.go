package platform_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/unify-home/unify-core/internal/device"
	"github.com/unify-home/unify-core/internal/platform"
	"github.com/unify-home/unify-core/internal/platform/platformtest"
)

func strPtr(s string) *string { return &s }

func newLight(id, name, room string) device.Device {
	return device.Device{
		ID:           id,
		Name:         name,
		Room:         strPtr(room),
		Capabilities: []device.Capability{device.CapSwitch, device.CapDimmer},
		Online:       true,
	}
}

func mustRegister(t *testing.T, r *platform.Registry, f *platformtest.FakeAdapter) {
	t.Helper()
	if err := r.Register(context.Background(), f.PlatformName, f); err != nil {
		t.Fatalf("Register(%s): %v", f.PlatformName, err)
	}
}

func TestRegisterLifecycle(t *testing.T) {
	r := platform.NewRegistry(platform.DefaultOptions())
	hue := platformtest.New(device.PlatformHue)

	if got := r.SlotState(device.PlatformHue); got != platform.SlotUnregistered {
		t.Fatalf("initial slot state = %s", got)
	}

	mustRegister(t, r, hue)

	if got := r.SlotState(device.PlatformHue); got != platform.SlotInitialized {
		t.Errorf("slot state after register = %s", got)
	}
	if !hue.Initialized() {
		t.Error("adapter should be initialized")
	}
	if got := r.Platforms(); len(got) != 1 || got[0] != device.PlatformHue {
		t.Errorf("Platforms() = %v", got)
	}

	if err := r.Unregister(context.Background(), device.PlatformHue); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if hue.DisposeCalls != 1 {
		t.Errorf("dispose calls = %d, want 1", hue.DisposeCalls)
	}
	if got := r.SlotState(device.PlatformHue); got != platform.SlotUnregistered {
		t.Errorf("slot state after unregister = %s", got)
	}
}

func TestRegisterValidation(t *testing.T) {
	r := platform.NewRegistry(platform.DefaultOptions())
	ctx := context.Background()

	t.Run("nil adapter", func(t *testing.T) {
		err := r.Register(ctx, device.PlatformHue, nil)
		if platform.CodeOf(err) != platform.CodeConfiguration {
			t.Errorf("error = %v, want configuration fault", err)
		}
	})

	t.Run("platform mismatch", func(t *testing.T) {
		err := r.Register(ctx, device.PlatformTuya, platformtest.New(device.PlatformHue))
		if platform.CodeOf(err) != platform.CodeConfiguration {
			t.Errorf("error = %v, want configuration fault", err)
		}
	})

	t.Run("duplicate registration", func(t *testing.T) {
		mustRegister(t, r, platformtest.New(device.PlatformHue))
		err := r.Register(ctx, device.PlatformHue, platformtest.New(device.PlatformHue))
		if platform.CodeOf(err) != platform.CodeConfiguration {
			t.Errorf("error = %v, want configuration fault", err)
		}
		if !strings.Contains(err.Error(), "already registered") {
			t.Errorf("error message = %q", err)
		}
	})

	t.Run("unregister missing slot", func(t *testing.T) {
		err := r.Unregister(ctx, device.PlatformZigbee)
		if platform.CodeOf(err) != platform.CodeConfiguration {
			t.Errorf("error = %v, want configuration fault", err)
		}
	})
}

func TestRegisterInitFailureFreesSlot(t *testing.T) {
	r := platform.NewRegistry(platform.DefaultOptions())

	failing := platformtest.New(device.PlatformHue)
	failing.InitErr = errors.New("bridge unreachable")

	err := r.Register(context.Background(), device.PlatformHue, failing)
	if err == nil || !strings.Contains(err.Error(), "bridge unreachable") {
		t.Fatalf("error = %v", err)
	}
	if got := r.SlotState(device.PlatformHue); got != platform.SlotUnregistered {
		t.Errorf("slot state after failed init = %s, want unregistered", got)
	}

	// The slot must be reusable after a failed attempt.
	mustRegister(t, r, platformtest.New(device.PlatformHue))
}

func TestConcurrentRegistrationOneWinner(t *testing.T) {
	r := platform.NewRegistry(platform.DefaultOptions())

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = r.Register(context.Background(), device.PlatformHue, platformtest.New(device.PlatformHue))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else if platform.CodeOf(err) != platform.CodeConfiguration {
			t.Errorf("loser error = %v, want configuration fault", err)
		}
	}
	if wins != 1 {
		t.Errorf("winners = %d, want exactly 1", wins)
	}
}

func TestAdapterForRouting(t *testing.T) {
	r := platform.NewRegistry(platform.DefaultOptions())
	hue := platformtest.New(device.PlatformHue)
	hue.AddDevice(newLight("hue:1", "Lamp", "study"), device.State{"on": true})
	mustRegister(t, r, hue)

	a, err := r.AdapterFor("hue:1")
	if err != nil {
		t.Fatalf("AdapterFor: %v", err)
	}
	if a.Platform() != device.PlatformHue {
		t.Errorf("routed to %s", a.Platform())
	}
	if r.RouteCount() != 1 {
		t.Errorf("route count = %d, want 1 after opportunistic fill", r.RouteCount())
	}

	t.Run("malformed id", func(t *testing.T) {
		_, err := r.AdapterFor("no-colon")
		if platform.CodeOf(err) != platform.CodeDeviceNotFound {
			t.Errorf("error = %v, want not-found fault", err)
		}
	})

	t.Run("unregistered platform", func(t *testing.T) {
		_, err := r.AdapterFor("tuya:abc")
		if platform.CodeOf(err) != platform.CodeDeviceNotFound {
			t.Errorf("error = %v, want not-found fault", err)
		}
	})
}

func TestUnregisterPurgesRoutes(t *testing.T) {
	r := platform.NewRegistry(platform.DefaultOptions())

	hue := platformtest.New(device.PlatformHue)
	hue.AddDevice(newLight("hue:1", "Lamp", "study"), device.State{"on": true})
	tuya := platformtest.New(device.PlatformTuya)
	tuya.AddDevice(newLight("tuya:a", "Plug", "garage"), device.State{"on": false})
	mustRegister(t, r, hue)
	mustRegister(t, r, tuya)

	if _, err := r.AdapterFor("hue:1"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.AdapterFor("tuya:a"); err != nil {
		t.Fatal(err)
	}

	if err := r.Unregister(context.Background(), device.PlatformHue); err != nil {
		t.Fatalf("Unregister: %v", err)
	}

	// Only the unregistered platform's routes are dropped.
	if r.RouteCount() != 1 {
		t.Errorf("route count = %d, want 1", r.RouteCount())
	}
	if _, err := r.AdapterFor("hue:1"); err == nil {
		t.Error("routing to an unregistered platform should fail")
	}
}

func TestExecuteCommandAnnotatesContext(t *testing.T) {
	r := platform.NewRegistry(platform.DefaultOptions())
	hue := platformtest.New(device.PlatformHue)
	hue.ExecuteFunc = func(context.Context, string, platform.Command) (device.State, error) {
		return nil, platform.NewError(platform.CodeDeviceOffline, "no response")
	}
	mustRegister(t, r, hue)

	_, err := r.ExecuteCommand(context.Background(), "hue:1", platform.Command{
		Capability: device.CapSwitch,
		Command:    "on",
	})

	e, ok := platform.AsError(err)
	if !ok {
		t.Fatalf("error = %v, want platform fault", err)
	}
	if e.Context.DeviceID != "hue:1" || e.Context.Platform != "hue" || e.Context.Command != "on" {
		t.Errorf("context = %+v, want device/platform/command filled", e.Context)
	}
}

func TestListAllDevicesGracefulDegradation(t *testing.T) {
	r := platform.NewRegistry(platform.DefaultOptions())

	hue := platformtest.New(device.PlatformHue)
	hue.AddDevice(newLight("hue:1", "Lamp", "study"), nil)
	broken := platformtest.New(device.PlatformTuya)
	broken.ListErr = platform.NewError(platform.CodeNetwork, "cloud down")
	mustRegister(t, r, hue)
	mustRegister(t, r, broken)

	devices, degraded, err := r.ListAllDevices(context.Background())
	if err != nil {
		t.Fatalf("ListAllDevices: %v", err)
	}
	if len(devices) != 1 || devices[0].ID != "hue:1" {
		t.Errorf("devices = %v", devices)
	}
	if len(degraded) != 1 || degraded[0].Platform != device.PlatformTuya {
		t.Errorf("degraded = %v", degraded)
	}
}

func TestListAllDevicesFailFast(t *testing.T) {
	opts := platform.DefaultOptions()
	opts.FailFast = true
	r := platform.NewRegistry(opts)

	broken := platformtest.New(device.PlatformTuya)
	broken.ListErr = platform.NewError(platform.CodeNetwork, "cloud down")
	mustRegister(t, r, broken)

	_, _, err := r.ListAllDevices(context.Background())
	if err == nil {
		t.Error("fail-fast aggregate should abort on adapter failure")
	}
}

func TestHealthCheckOverall(t *testing.T) {
	r := platform.NewRegistry(platform.DefaultOptions())

	healthy := platformtest.New(device.PlatformHue)
	sick := platformtest.New(device.PlatformTuya)
	sick.Unhealthy = true
	erroring := platformtest.New(device.PlatformZigbee)
	erroring.HealthErr = errors.New("broker unreachable")
	mustRegister(t, r, healthy)
	mustRegister(t, r, sick)
	mustRegister(t, r, erroring)

	report, err := r.HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}

	if !report.Healthy {
		t.Error("overall health should be true with one healthy adapter")
	}
	if len(report.Platforms) != 3 {
		t.Errorf("platform entries = %d, want 3", len(report.Platforms))
	}
	if report.Platforms[device.PlatformTuya].Healthy {
		t.Error("unhealthy adapter reported healthy")
	}
	if report.Platforms[device.PlatformZigbee].Error == "" {
		t.Error("erroring adapter should carry its error text")
	}

	// All unhealthy means overall unhealthy.
	solo := platform.NewRegistry(platform.DefaultOptions())
	alone := platformtest.New(device.PlatformHue)
	alone.Unhealthy = true
	mustRegister(t, solo, alone)
	soloReport, err := solo.HealthCheck(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if soloReport.Healthy {
		t.Error("overall health should be false with zero healthy adapters")
	}
}

func TestExecuteBatchMixedPlatforms(t *testing.T) {
	r := platform.NewRegistry(platform.DefaultOptions())

	hue := platformtest.New(device.PlatformHue)
	hue.AddDevice(newLight("hue:1", "Lamp", "study"), device.State{"on": false})
	tuya := platformtest.New(device.PlatformTuya)
	tuya.AddDevice(newLight("tuya:a", "Plug", "garage"), device.State{"on": false})
	mustRegister(t, r, hue)
	mustRegister(t, r, tuya)

	on := platform.Command{Capability: device.CapSwitch, Command: "on", Parameters: map[string]any{"on": true}}
	reqs := []platform.CommandRequest{
		{DeviceID: "hue:1", Command: on},
		{DeviceID: "tuya:a", Command: on},
		{DeviceID: "zigbee:missing", Command: on},
	}

	results, degraded, err := r.ExecuteBatch(context.Background(), reqs)
	if err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}
	if len(degraded) != 0 {
		t.Errorf("degraded = %v", degraded)
	}
	if len(results) != len(reqs) {
		t.Fatalf("results = %d, want one per request", len(results))
	}

	// Results come back in input order.
	if results[0].DeviceID != "hue:1" || results[0].Err != nil {
		t.Errorf("result[0] = %+v", results[0])
	}
	if results[1].DeviceID != "tuya:a" || results[1].Err != nil {
		t.Errorf("result[1] = %+v", results[1])
	}
	if results[2].Err == nil {
		t.Error("unroutable request should fail individually")
	}
	if on, _ := results[0].State["on"].(bool); !on {
		t.Error("command parameters should be reflected in returned state")
	}
}

func TestExecuteBatchAdapterFailureDegrades(t *testing.T) {
	r := platform.NewRegistry(platform.DefaultOptions())

	hue := platformtest.New(device.PlatformHue)
	hue.AddDevice(newLight("hue:1", "Lamp", "study"), device.State{"on": false})
	broken := platformtest.New(device.PlatformTuya)
	broken.AddDevice(newLight("tuya:a", "Plug", "garage"), device.State{"on": false})
	broken.BatchErr = platform.NewError(platform.CodeNetwork, "cloud down")
	mustRegister(t, r, hue)
	mustRegister(t, r, broken)

	on := platform.Command{Capability: device.CapSwitch, Command: "on", Parameters: map[string]any{"on": true}}
	results, degraded, err := r.ExecuteBatch(context.Background(), []platform.CommandRequest{
		{DeviceID: "tuya:a", Command: on},
		{DeviceID: "hue:1", Command: on},
	})
	if err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}
	if len(degraded) != 1 || degraded[0].Platform != device.PlatformTuya {
		t.Errorf("degraded = %v", degraded)
	}
	if results[0].Err == nil {
		t.Error("requests on the failed adapter should carry its error")
	}
	if results[1].Err != nil {
		t.Errorf("healthy adapter's request failed: %v", results[1].Err)
	}
}

func TestEventPropagation(t *testing.T) {
	r := platform.NewRegistry(platform.DefaultOptions())
	hue := platformtest.New(device.PlatformHue)
	mustRegister(t, r, hue)

	var got []platform.Event
	sub := r.Subscribe(func(e platform.Event) { got = append(got, e) })
	defer sub.Cancel()

	hue.Emit(platform.Event{Type: platform.EventStateChange, DeviceID: "hue:1", State: device.State{"on": true}})

	if len(got) != 1 || got[0].DeviceID != "hue:1" {
		t.Fatalf("propagated events = %v", got)
	}
}

func TestEventPropagationDisabled(t *testing.T) {
	opts := platform.DefaultOptions()
	opts.PropagateEvents = false
	r := platform.NewRegistry(opts)
	hue := platformtest.New(device.PlatformHue)
	mustRegister(t, r, hue)

	count := 0
	r.Subscribe(func(platform.Event) { count++ })

	hue.Emit(platform.Event{Type: platform.EventStateChange, DeviceID: "hue:1"})

	if count != 0 {
		t.Errorf("events delivered with propagation disabled: %d", count)
	}
}

func TestDeviceEventsMaintainRoutes(t *testing.T) {
	r := platform.NewRegistry(platform.DefaultOptions())
	hue := platformtest.New(device.PlatformHue)
	mustRegister(t, r, hue)

	hue.Emit(platform.Event{Type: platform.EventDeviceAdded, DeviceID: "hue:new"})
	if r.RouteCount() != 1 {
		t.Errorf("route count after device_added = %d, want 1", r.RouteCount())
	}

	hue.Emit(platform.Event{Type: platform.EventDeviceRemoved, DeviceID: "hue:new"})
	if r.RouteCount() != 0 {
		t.Errorf("route count after device_removed = %d, want 0", r.RouteCount())
	}
}

func TestClose(t *testing.T) {
	r := platform.NewRegistry(platform.DefaultOptions())
	hue := platformtest.New(device.PlatformHue)
	tuya := platformtest.New(device.PlatformTuya)
	mustRegister(t, r, hue)
	mustRegister(t, r, tuya)

	if err := r.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(r.Platforms()) != 0 {
		t.Errorf("platforms after close = %v", r.Platforms())
	}
	if hue.DisposeCalls != 1 || tuya.DisposeCalls != 1 {
		t.Error("all adapters should be disposed on close")
	}
}
