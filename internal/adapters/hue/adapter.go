package hue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/unify-home/unify-core/internal/device"
	"github.com/unify-home/unify-core/internal/platform"
)

// Logger defines the logging interface used by the adapter.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds bridge connection settings.
type Config struct {
	// BridgeURL is the base URL of the bridge, e.g. "http://192.168.1.2".
	BridgeURL string

	// Username is the bridge application key obtained during pairing.
	Username string

	// Timeout bounds each bridge request. Zero means 5 seconds.
	Timeout time.Duration
}

// Adapter integrates Philips Hue bridges over the CLIP v1 REST API.
//
// The bridge offers no push channel on this API version, so state-change
// events are synthesised from successful commands; polling consumers go
// through the state cache as with any platform.
type Adapter struct {
	cfg    Config
	client *http.Client
	logger Logger
	bus    *platform.EventBus

	mu          sync.RWMutex
	initialized bool
}

// New creates a Hue adapter for the configured bridge.
func New(cfg Config) *Adapter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Adapter{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: noopLogger{},
		bus:    platform.NewEventBus(),
	}
}

// SetLogger sets the logger for the adapter.
func (a *Adapter) SetLogger(logger Logger) {
	a.logger = logger
}

// Platform implements platform.Adapter.
func (a *Adapter) Platform() device.Platform { return device.PlatformHue }

// Initialize verifies bridge connectivity and the application key.
func (a *Adapter) Initialize(ctx context.Context) error {
	var cfg struct {
		Name      string `json:"name"`
		SWVersion string `json:"swversion"`
	}
	if err := a.get(ctx, "/config", &cfg); err != nil {
		return fmt.Errorf("verifying hue bridge: %w", err)
	}

	a.mu.Lock()
	a.initialized = true
	a.mu.Unlock()

	a.logger.Info("hue bridge connected", "name", cfg.Name, "sw_version", cfg.SWVersion)
	return nil
}

// Dispose implements platform.Adapter. The bridge is stateless HTTP, so
// disposal only flips the lifecycle flag.
func (a *Adapter) Dispose(context.Context) error {
	a.mu.Lock()
	a.initialized = false
	a.mu.Unlock()
	a.client.CloseIdleConnections()
	return nil
}

// Initialized implements platform.Adapter.
func (a *Adapter) Initialized() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.initialized
}

// HealthCheck implements platform.Adapter.
func (a *Adapter) HealthCheck(ctx context.Context) (*platform.Health, error) {
	var cfg struct {
		Name string `json:"name"`
	}
	if err := a.get(ctx, "/config", &cfg); err != nil {
		return &platform.Health{
			Healthy:   false,
			Detail:    err.Error(),
			CheckedAt: time.Now().UTC(),
		}, nil
	}
	return &platform.Health{
		Healthy:   true,
		Detail:    fmt.Sprintf("bridge %q reachable", cfg.Name),
		CheckedAt: time.Now().UTC(),
	}, nil
}

// light is the CLIP v1 light resource shape, trimmed to what we use.
type light struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	State struct {
		On        bool   `json:"on"`
		Bri       int    `json:"bri"`
		Hue       int    `json:"hue"`
		Sat       int    `json:"sat"`
		CT        int    `json:"ct"`
		ColorMode string `json:"colormode"`
		Reachable bool   `json:"reachable"`
	} `json:"state"`
}

// ListDevices implements platform.Adapter. The bridge API has no
// server-side filtering, so the filter is applied to the fetched
// inventory.
func (a *Adapter) ListDevices(ctx context.Context, filter device.Filter) ([]device.Device, error) {
	var lights map[string]light
	if err := a.get(ctx, "/lights", &lights); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(lights))
	for id := range lights {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ni, errI := strconv.Atoi(ids[i])
		nj, errJ := strconv.Atoi(ids[j])
		if errI == nil && errJ == nil {
			return ni < nj
		}
		return ids[i] < ids[j]
	})

	devices := make([]device.Device, 0, len(ids))
	for _, id := range ids {
		d := lightToDevice(id, lights[id])
		if !filter.Matches(&d) {
			continue
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// GetDevice implements platform.Adapter.
func (a *Adapter) GetDevice(ctx context.Context, id string) (*device.Device, error) {
	localID, err := localLightID(id)
	if err != nil {
		return nil, err
	}

	var l light
	if err := a.get(ctx, "/lights/"+localID, &l); err != nil {
		return nil, faultForDevice(err, id)
	}
	d := lightToDevice(localID, l)
	return &d, nil
}

// GetDeviceState implements platform.Adapter. CLIP v1 has no separate
// cached read, so it behaves like RefreshDeviceState.
func (a *Adapter) GetDeviceState(ctx context.Context, id string) (device.State, error) {
	return a.RefreshDeviceState(ctx, id)
}

// RefreshDeviceState implements platform.Adapter.
func (a *Adapter) RefreshDeviceState(ctx context.Context, id string) (device.State, error) {
	localID, err := localLightID(id)
	if err != nil {
		return nil, err
	}

	var l light
	if err := a.get(ctx, "/lights/"+localID, &l); err != nil {
		return nil, faultForDevice(err, id)
	}
	return lightState(l), nil
}

// GetDeviceCapabilities implements platform.Adapter.
func (a *Adapter) GetDeviceCapabilities(ctx context.Context, id string) ([]device.Capability, error) {
	d, err := a.GetDevice(ctx, id)
	if err != nil {
		return nil, err
	}
	return d.Capabilities, nil
}

// ExecuteCommand implements platform.Adapter.
func (a *Adapter) ExecuteCommand(ctx context.Context, id string, cmd platform.Command) (device.State, error) {
	localID, err := localLightID(id)
	if err != nil {
		return nil, err
	}

	body, err := commandBody(cmd)
	if err != nil {
		return nil, faultForDevice(err, id).WithCommand(cmd.Command)
	}

	if err := a.put(ctx, "/lights/"+localID+"/state", body); err != nil {
		return nil, faultForDevice(err, id).WithCommand(cmd.Command)
	}

	// Read back the settled state; the bridge applies writes
	// synchronously.
	state, err := a.RefreshDeviceState(ctx, id)
	if err != nil {
		return nil, err
	}

	a.bus.Publish(platform.Event{
		Type:     platform.EventStateChange,
		DeviceID: id,
		Platform: device.PlatformHue,
		State:    device.CopyState(state),
	})
	return state, nil
}

// ExecuteBatch implements platform.Adapter. The bridge has no batch
// endpoint; requests run sequentially with per-request outcomes.
func (a *Adapter) ExecuteBatch(ctx context.Context, reqs []platform.CommandRequest) ([]platform.BatchResult, error) {
	out := make([]platform.BatchResult, len(reqs))
	for i, req := range reqs {
		state, err := a.ExecuteCommand(ctx, req.DeviceID, req.Command)
		out[i] = platform.BatchResult{DeviceID: req.DeviceID, State: state, Err: err}
	}
	return out, nil
}

// ListLocations implements platform.Adapter. A bridge is one site.
func (a *Adapter) ListLocations(ctx context.Context) ([]platform.Location, error) {
	var cfg struct {
		Name     string `json:"name"`
		BridgeID string `json:"bridgeid"`
	}
	if err := a.get(ctx, "/config", &cfg); err != nil {
		return nil, err
	}
	return []platform.Location{{ID: cfg.BridgeID, Name: cfg.Name}}, nil
}

// group is the CLIP v1 group resource shape, trimmed to what we use.
type group struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ListRooms implements platform.Adapter.
func (a *Adapter) ListRooms(ctx context.Context) ([]platform.Room, error) {
	var groups map[string]group
	if err := a.get(ctx, "/groups", &groups); err != nil {
		return nil, err
	}

	var rooms []platform.Room
	for id, g := range groups {
		if g.Type != "Room" && g.Type != "Zone" {
			continue
		}
		rooms = append(rooms, platform.Room{ID: id, Name: g.Name})
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	return rooms, nil
}

// SupportsScenes implements platform.Adapter.
func (a *Adapter) SupportsScenes() bool { return true }

// ListScenes implements platform.Adapter.
func (a *Adapter) ListScenes(ctx context.Context) ([]platform.Scene, error) {
	var scenes map[string]struct {
		Name  string `json:"name"`
		Group string `json:"group"`
	}
	if err := a.get(ctx, "/scenes", &scenes); err != nil {
		return nil, err
	}

	out := make([]platform.Scene, 0, len(scenes))
	for id, s := range scenes {
		out = append(out, platform.Scene{ID: id, Name: s.Name, Room: s.Group})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ExecuteScene implements platform.Adapter. Group 0 addresses all lights
// the scene covers.
func (a *Adapter) ExecuteScene(ctx context.Context, sceneID string) error {
	return a.put(ctx, "/groups/0/action", map[string]any{"scene": sceneID})
}

// Subscribe implements platform.Adapter.
func (a *Adapter) Subscribe(h platform.EventHandler) platform.Subscription {
	return a.bus.Subscribe(h)
}

// localLightID strips the platform prefix off a universal id.
func localLightID(id string) (string, error) {
	p, local, err := device.SplitID(id)
	if err != nil {
		return "", platform.NotFound(id).WithCause(err)
	}
	if p != device.PlatformHue {
		return "", platform.NotFound(id)
	}
	return local, nil
}

// faultForDevice stamps device context onto a bridge fault.
func faultForDevice(err error, id string) *platform.Error {
	if e, ok := platform.AsError(err); ok {
		if e.Context.DeviceID == "" {
			e.Context.DeviceID = id
		}
		e.Context.Platform = string(device.PlatformHue)
		return e
	}
	return platform.NewError(platform.CodeNetwork, "hue bridge request failed").
		WithCause(err).WithDevice(id, string(device.PlatformHue))
}

// get performs an authenticated GET and decodes the result.
func (a *Adapter) get(ctx context.Context, path string, out any) error {
	return a.do(ctx, http.MethodGet, path, nil, out)
}

// put performs an authenticated PUT with a JSON body.
func (a *Adapter) put(ctx context.Context, path string, body any) error {
	return a.do(ctx, http.MethodPut, path, body, nil)
}

// do performs one bridge request, translating transport and API errors
// into platform faults.
func (a *Adapter) do(ctx context.Context, method, path string, body, out any) error {
	url := a.cfg.BridgeURL + "/api/" + a.cfg.Username + path

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return platform.NewError(platform.CodeInvalidCommand, "encoding request body").WithCause(err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return platform.NewError(platform.CodeConfiguration, "building bridge request").WithCause(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return platform.NewError(platform.CodeTimeout, "hue bridge request timed out").WithCause(err)
		}
		return platform.NewError(platform.CodeNetwork, "hue bridge unreachable").WithCause(err)
	}
	defer resp.Body.Close()

	if fault := faultForStatus(resp); fault != nil {
		return fault
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return platform.NewError(platform.CodeNetwork, "reading bridge response").WithCause(err)
	}

	// CLIP v1 reports API-level errors inside a 200 body.
	if fault := faultForAPIError(raw); fault != nil {
		return fault
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return platform.NewError(platform.CodeNetwork, "decoding bridge response").WithCause(err)
		}
	}
	return nil
}

// maxResponseBytes bounds bridge response bodies.
const maxResponseBytes = 1 << 20

// faultForStatus maps HTTP status codes to platform faults.
func faultForStatus(resp *http.Response) *platform.Error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return platform.NewError(platform.CodeAuthentication, "bridge rejected application key").
			WithHTTPStatus(resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return platform.NewError(platform.CodeDeviceNotFound, "bridge resource not found").
			WithHTTPStatus(resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return platform.RateLimited(retryAfter).WithHTTPStatus(resp.StatusCode)
	case resp.StatusCode >= 500:
		return platform.Errorf(platform.CodeNetwork, "bridge error %d", resp.StatusCode).
			WithHTTPStatus(resp.StatusCode)
	default:
		return platform.Errorf(platform.CodeInvalidCommand, "bridge rejected request with %d", resp.StatusCode).
			WithHTTPStatus(resp.StatusCode)
	}
}

// parseRetryAfter reads a Retry-After header in seconds form.
// Falls back to a short default when absent or unparsable.
func parseRetryAfter(v string) time.Duration {
	if v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 5 * time.Second
}

// clipError is the CLIP v1 in-body error envelope.
type clipError struct {
	Error struct {
		Type        int    `json:"type"`
		Address     string `json:"address"`
		Description string `json:"description"`
	} `json:"error"`
}

// CLIP v1 error types we map onto the fault taxonomy.
const (
	clipUnauthorized     = 1
	clipResourceNotFound = 3
	clipParamUnavailable = 6
	clipDeviceOff        = 201
)

// faultForAPIError detects the CLIP v1 error envelope inside a 200 body.
func faultForAPIError(raw []byte) *platform.Error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil
	}

	var entries []clipError
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		// Some success responses are arrays too; only error envelopes
		// match the clipError shape.
		return nil
	}

	for _, e := range entries {
		if e.Error.Description == "" && e.Error.Type == 0 {
			continue
		}
		vendorCode := strconv.Itoa(e.Error.Type)
		switch e.Error.Type {
		case clipUnauthorized:
			return platform.NewError(platform.CodeAuthentication, e.Error.Description).WithVendorCode(vendorCode)
		case clipResourceNotFound:
			return platform.NewError(platform.CodeDeviceNotFound, e.Error.Description).WithVendorCode(vendorCode)
		case clipDeviceOff:
			return platform.NewError(platform.CodeDeviceOffline, e.Error.Description).WithVendorCode(vendorCode)
		case clipParamUnavailable:
			return platform.NewError(platform.CodeCapabilityNotSupported, e.Error.Description).WithVendorCode(vendorCode)
		default:
			return platform.NewError(platform.CodeInvalidCommand, e.Error.Description).WithVendorCode(vendorCode)
		}
	}
	return nil
}
