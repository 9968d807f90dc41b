// Package platformtest provides a configurable in-memory adapter for
// exercising code that depends on the platform.Adapter contract without
// touching a vendor cloud.
package platformtest

import (
	"context"
	"sync"
	"time"

	"github.com/unify-home/unify-core/internal/device"
	"github.com/unify-home/unify-core/internal/platform"
)

// FakeAdapter is an in-memory platform.Adapter. Devices and states are
// seeded directly; per-method error hooks inject failures. The zero value
// is not usable; create with New.
//
// All exported fields must be set before the adapter is handed to code
// under test. Mutating them mid-test races with the code being tested.
type FakeAdapter struct {
	// PlatformName is the slot this fake claims. Required.
	PlatformName device.Platform

	// InitErr, DisposeErr and HealthErr fail the corresponding
	// lifecycle call when non-nil.
	InitErr    error
	DisposeErr error
	HealthErr  error

	// Unhealthy makes HealthCheck report an unhealthy (but successful)
	// probe.
	Unhealthy bool

	// ListErr fails ListDevices when non-nil.
	ListErr error

	// ExecuteFunc, when set, replaces the default command behaviour
	// (merge parameters into the stored state and return it).
	ExecuteFunc func(ctx context.Context, id string, cmd platform.Command) (device.State, error)

	// BatchErr fails ExecuteBatch wholesale when non-nil.
	BatchErr error

	// RefreshFunc, when set, replaces the default refresh behaviour
	// (return the stored state).
	RefreshFunc func(ctx context.Context, id string) (device.State, error)

	// Scenes enables the scene surface.
	Scenes []platform.Scene

	// CapabilityMap translates vendor capability names to canonical
	// ones. Reverse lookups invert it.
	CapabilityMap map[string]device.Capability

	mu          sync.Mutex
	initialized bool
	devices     map[string]device.Device
	states      map[string]device.State
	bus         *platform.EventBus

	// Counters for assertions.
	InitCalls    int
	DisposeCalls int
	ExecCalls    int
	RefreshCalls int
	SceneCalls   int
}

// New creates an empty fake for the given platform slot.
func New(p device.Platform) *FakeAdapter {
	return &FakeAdapter{
		PlatformName: p,
		devices:      make(map[string]device.Device),
		states:       make(map[string]device.State),
		bus:          platform.NewEventBus(),
	}
}

// AddDevice seeds a device and its initial state.
func (f *FakeAdapter) AddDevice(d device.Device, state device.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices[d.ID] = *d.DeepCopy()
	if state != nil {
		f.states[d.ID] = device.CopyState(state)
	}
}

// SetState replaces the stored state of a seeded device.
func (f *FakeAdapter) SetState(id string, state device.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[id] = device.CopyState(state)
}

// Emit publishes an event through the fake's event stream, as a real
// adapter would on a vendor push.
func (f *FakeAdapter) Emit(e platform.Event) {
	if e.Platform == "" {
		e.Platform = f.PlatformName
	}
	f.bus.Publish(e)
}

// Platform implements platform.Adapter.
func (f *FakeAdapter) Platform() device.Platform { return f.PlatformName }

// Initialize implements platform.Adapter.
func (f *FakeAdapter) Initialize(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.InitCalls++
	if f.InitErr != nil {
		return f.InitErr
	}
	f.initialized = true
	return nil
}

// Dispose implements platform.Adapter.
func (f *FakeAdapter) Dispose(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DisposeCalls++
	f.initialized = false
	return f.DisposeErr
}

// Initialized implements platform.Adapter.
func (f *FakeAdapter) Initialized() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initialized
}

// HealthCheck implements platform.Adapter.
func (f *FakeAdapter) HealthCheck(context.Context) (*platform.Health, error) {
	if f.HealthErr != nil {
		return nil, f.HealthErr
	}
	return &platform.Health{
		Healthy:   !f.Unhealthy,
		Detail:    "fake adapter",
		CheckedAt: time.Now().UTC(),
	}, nil
}

// ListDevices implements platform.Adapter.
func (f *FakeAdapter) ListDevices(_ context.Context, filter device.Filter) ([]device.Device, error) {
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]device.Device, 0, len(f.devices))
	for _, d := range f.devices {
		if !filter.Matches(&d) {
			continue
		}
		out = append(out, *d.DeepCopy())
	}
	return out, nil
}

// GetDevice implements platform.Adapter.
func (f *FakeAdapter) GetDevice(_ context.Context, id string) (*device.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[id]
	if !ok {
		return nil, platform.NotFound(id)
	}
	return d.DeepCopy(), nil
}

// GetDeviceState implements platform.Adapter.
func (f *FakeAdapter) GetDeviceState(_ context.Context, id string) (device.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.states[id]
	if !ok {
		return nil, platform.NotFound(id)
	}
	return device.CopyState(s), nil
}

// RefreshDeviceState implements platform.Adapter.
func (f *FakeAdapter) RefreshDeviceState(ctx context.Context, id string) (device.State, error) {
	f.mu.Lock()
	f.RefreshCalls++
	f.mu.Unlock()
	if f.RefreshFunc != nil {
		return f.RefreshFunc(ctx, id)
	}
	return f.GetDeviceState(ctx, id)
}

// GetDeviceCapabilities implements platform.Adapter.
func (f *FakeAdapter) GetDeviceCapabilities(_ context.Context, id string) ([]device.Capability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[id]
	if !ok {
		return nil, platform.NotFound(id)
	}
	caps := make([]device.Capability, len(d.Capabilities))
	copy(caps, d.Capabilities)
	return caps, nil
}

// ExecuteCommand implements platform.Adapter.
func (f *FakeAdapter) ExecuteCommand(ctx context.Context, id string, cmd platform.Command) (device.State, error) {
	f.mu.Lock()
	f.ExecCalls++
	fn := f.ExecuteFunc
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, id, cmd)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.states[id]
	if !ok {
		return nil, platform.NotFound(id)
	}
	next := device.CopyState(s)
	for k, v := range cmd.Parameters {
		next[k] = v
	}
	f.states[id] = next
	return device.CopyState(next), nil
}

// ExecuteBatch implements platform.Adapter.
func (f *FakeAdapter) ExecuteBatch(ctx context.Context, reqs []platform.CommandRequest) ([]platform.BatchResult, error) {
	if f.BatchErr != nil {
		return nil, f.BatchErr
	}
	out := make([]platform.BatchResult, len(reqs))
	for i, req := range reqs {
		state, err := f.ExecuteCommand(ctx, req.DeviceID, req.Command)
		out[i] = platform.BatchResult{DeviceID: req.DeviceID, State: state, Err: err}
	}
	return out, nil
}

// MapCapability implements platform.Adapter.
func (f *FakeAdapter) MapCapability(vendor string) (device.Capability, bool) {
	c, ok := f.CapabilityMap[vendor]
	return c, ok
}

// VendorCapability implements platform.Adapter.
func (f *FakeAdapter) VendorCapability(cap device.Capability) (string, bool) {
	for vendor, c := range f.CapabilityMap {
		if c == cap {
			return vendor, true
		}
	}
	return "", false
}

// ListLocations implements platform.Adapter.
func (f *FakeAdapter) ListLocations(context.Context) ([]platform.Location, error) {
	return []platform.Location{{ID: "loc-1", Name: "Home"}}, nil
}

// ListRooms implements platform.Adapter.
func (f *FakeAdapter) ListRooms(context.Context) ([]platform.Room, error) {
	seen := map[string]struct{}{}
	var rooms []platform.Room
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.devices {
		if d.Room == nil {
			continue
		}
		if _, ok := seen[*d.Room]; ok {
			continue
		}
		seen[*d.Room] = struct{}{}
		rooms = append(rooms, platform.Room{ID: *d.Room, Name: *d.Room, LocationID: "loc-1"})
	}
	return rooms, nil
}

// SupportsScenes implements platform.Adapter.
func (f *FakeAdapter) SupportsScenes() bool { return len(f.Scenes) > 0 }

// ListScenes implements platform.Adapter.
func (f *FakeAdapter) ListScenes(context.Context) ([]platform.Scene, error) {
	out := make([]platform.Scene, len(f.Scenes))
	copy(out, f.Scenes)
	return out, nil
}

// ExecuteScene implements platform.Adapter.
func (f *FakeAdapter) ExecuteScene(_ context.Context, sceneID string) error {
	f.mu.Lock()
	f.SceneCalls++
	f.mu.Unlock()
	for _, s := range f.Scenes {
		if s.ID == sceneID {
			return nil
		}
	}
	return platform.Errorf(platform.CodeInvalidCommand, "scene %q not found", sceneID)
}

// Subscribe implements platform.Adapter.
func (f *FakeAdapter) Subscribe(h platform.EventHandler) platform.Subscription {
	return f.bus.Subscribe(h)
}

// compile-time check
var _ platform.Adapter = (*FakeAdapter)(nil)
