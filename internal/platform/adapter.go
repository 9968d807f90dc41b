package platform

import (
	"context"
	"time"

	"github.com/unify-home/unify-core/internal/device"
)

// Command is the unified command shape sent to any adapter.
// The capability names what part of the device is being driven, the
// command is the verb, and parameters carry verb-specific arguments.
type Command struct {
	Capability device.Capability `json:"capability"`
	Command    string            `json:"command"`
	Parameters map[string]any    `json:"parameters,omitempty"`

	// Component addresses a sub-component of multi-endpoint devices
	// (e.g. one socket of a power strip). Empty means the main component.
	Component string `json:"component,omitempty"`
}

// CommandRequest pairs a command with its target device for batch calls.
type CommandRequest struct {
	DeviceID string  `json:"device_id"`
	Command  Command `json:"command"`
}

// BatchResult is one adapter-level outcome of a batch execution.
type BatchResult struct {
	DeviceID string       `json:"device_id"`
	State    device.State `json:"state,omitempty"`
	Err      error        `json:"-"`
}

// Health describes an adapter's connectivity to its vendor cloud.
type Health struct {
	Healthy   bool      `json:"healthy"`
	Detail    string    `json:"detail,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Location is a vendor-side site/home grouping.
type Location struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Room is a vendor-side room grouping.
type Room struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	LocationID string `json:"location_id,omitempty"`
}

// Scene is a vendor-side scene.
type Scene struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Room string `json:"room,omitempty"`
}

// Adapter is the capability contract every vendor integration implements.
//
// The interface is deliberately wide: the compiler enforces that a vendor
// variant covers the full capability set (lifecycle, discovery, commands,
// capability mapping, organization, scenes, events) rather than runtime
// reflection checking a partial implementation.
//
// All methods taking a context are suspension points: they may perform
// network I/O against the vendor cloud. Device ids passed in and out are
// always universal ids ("<platform>:<local-id>").
type Adapter interface {
	// Platform returns the platform slot this adapter serves.
	// It must be stable for the adapter's lifetime.
	Platform() device.Platform

	// Lifecycle.
	Initialize(ctx context.Context) error
	Dispose(ctx context.Context) error
	Initialized() bool
	HealthCheck(ctx context.Context) (*Health, error)

	// Discovery. ListDevices applies the filter to the vendor inventory;
	// a zero filter returns everything.
	ListDevices(ctx context.Context, filter device.Filter) ([]device.Device, error)
	GetDevice(ctx context.Context, id string) (*device.Device, error)
	GetDeviceState(ctx context.Context, id string) (device.State, error)
	RefreshDeviceState(ctx context.Context, id string) (device.State, error)
	GetDeviceCapabilities(ctx context.Context, id string) ([]device.Capability, error)

	// Commands.
	ExecuteCommand(ctx context.Context, id string, cmd Command) (device.State, error)
	ExecuteBatch(ctx context.Context, reqs []CommandRequest) ([]BatchResult, error)

	// Capability mapping between the vendor-native vocabulary and the
	// canonical one.
	MapCapability(vendor string) (device.Capability, bool)
	VendorCapability(cap device.Capability) (string, bool)

	// Organization.
	ListLocations(ctx context.Context) ([]Location, error)
	ListRooms(ctx context.Context) ([]Room, error)

	// Scenes.
	SupportsScenes() bool
	ListScenes(ctx context.Context) ([]Scene, error)
	ExecuteScene(ctx context.Context, sceneID string) error

	// Subscribe registers a handler for this adapter's event stream.
	// Subscriptions are explicit, resource-scoped operations: callers
	// must Cancel() what they Subscribe().
	Subscribe(h EventHandler) Subscription
}
