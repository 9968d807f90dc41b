package platform

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/unify-home/unify-core/internal/device"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// SlotState is the lifecycle state of one platform slot.
type SlotState string

// Slot state constants.
const (
	SlotUnregistered SlotState = "unregistered"
	SlotRegistering  SlotState = "registering"
	SlotInitialized  SlotState = "initialized"
)

// Options configures registry behaviour.
type Options struct {
	// RoutingCache enables the id→adapter lookup cache.
	RoutingCache bool

	// PropagateEvents re-publishes adapter events to the registry's
	// own subscribers. Internal consumers (routing cache coherence)
	// always see events regardless of this flag.
	PropagateEvents bool

	// FailFast aborts aggregate operations on the first adapter error
	// instead of degrading gracefully.
	FailFast bool
}

// DefaultOptions returns the recommended configuration: routing cache on,
// event propagation on, graceful degradation on aggregates.
func DefaultOptions() Options {
	return Options{
		RoutingCache:    true,
		PropagateEvents: true,
		FailFast:        false,
	}
}

// AdapterError pairs an adapter failure with the platform it came from.
// Aggregate operations report these on the side instead of aborting.
type AdapterError struct {
	Platform device.Platform
	Err      error
}

// PlatformHealth is the health-check outcome for one platform.
type PlatformHealth struct {
	Platform  device.Platform `json:"platform"`
	Healthy   bool            `json:"healthy"`
	Detail    string          `json:"detail,omitempty"`
	Error     string          `json:"error,omitempty"`
	CheckedAt time.Time       `json:"checked_at"`
}

// HealthReport aggregates per-platform health.
// Overall health requires at least one healthy adapter.
type HealthReport struct {
	Healthy   bool                               `json:"healthy"`
	Platforms map[device.Platform]PlatformHealth `json:"platforms"`
	CheckedAt time.Time                          `json:"checked_at"`
}

// slot tracks one platform's adapter and lifecycle state.
type slot struct {
	state   SlotState
	adapter Adapter
	sub     Subscription
}

// route is one cached id→adapter binding.
type route struct {
	adapter  Adapter
	platform device.Platform
}

// Registry owns the active adapter set and is the single dispatch point
// for device operations across platforms.
//
// Device ids encode their platform, so routing is a cache lookup or an id
// parse away. The routing cache is eventually consistent with the true
// adapter set: entries are added opportunistically on lookups and
// device-added events, dropped individually on device-removed events, and
// dropped wholesale when a platform is unregistered.
//
// All public methods are thread-safe.
type Registry struct {
	mu    sync.RWMutex
	slots map[device.Platform]*slot

	routeMu sync.RWMutex
	routes  map[string]route

	opts   Options
	bus    *EventBus
	logger Logger
}

// NewRegistry creates an empty platform registry.
func NewRegistry(opts Options) *Registry {
	return &Registry{
		slots:  make(map[device.Platform]*slot),
		routes: make(map[string]route),
		opts:   opts,
		bus:    NewEventBus(),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Register claims the slot for platform p, initializes the adapter, and
// activates routing and event handling for it.
//
// Exactly one registration can win a slot: a concurrent registration for
// the same platform fails fast with a configuration fault while the first
// is still initializing, as does registering an already-occupied slot.
// If the adapter's Initialize fails the slot reverts to unregistered.
func (r *Registry) Register(ctx context.Context, p device.Platform, a Adapter) error {
	if a == nil {
		return Errorf(CodeConfiguration, "adapter for platform %q is nil", p)
	}
	if !device.IsValidPlatform(p) {
		return Errorf(CodeConfiguration, "platform %q is not in the registered platform set", p)
	}
	if a.Platform() != p {
		return Errorf(CodeConfiguration,
			"adapter declares platform %q but was registered for slot %q", a.Platform(), p)
	}

	// Claim the slot before touching the network.
	r.mu.Lock()
	if existing, ok := r.slots[p]; ok {
		state := existing.state
		r.mu.Unlock()
		if state == SlotRegistering {
			return Errorf(CodeConfiguration, "platform %q registration already in progress", p)
		}
		return Errorf(CodeConfiguration, "platform %q is already registered", p)
	}
	s := &slot{state: SlotRegistering, adapter: a}
	r.slots[p] = s
	r.mu.Unlock()

	// Adapter init is a suspension point; the slot holds Registering
	// until it settles.
	if err := a.Initialize(ctx); err != nil {
		r.mu.Lock()
		delete(r.slots, p)
		r.mu.Unlock()
		return fmt.Errorf("initialising %s adapter: %w", p, err)
	}

	sub := a.Subscribe(r.handleAdapterEvent)

	r.mu.Lock()
	s.state = SlotInitialized
	s.sub = sub
	r.mu.Unlock()

	r.logger.Info("platform registered", "platform", p)
	return nil
}

// Unregister disposes the adapter in slot p and removes the slot along
// with every cached route for the platform.
func (r *Registry) Unregister(ctx context.Context, p device.Platform) error {
	r.mu.Lock()
	s, ok := r.slots[p]
	if !ok || s.state != SlotInitialized {
		r.mu.Unlock()
		return Errorf(CodeConfiguration, "platform %q is not registered", p)
	}
	delete(r.slots, p)
	r.mu.Unlock()

	if s.sub != nil {
		s.sub.Cancel()
	}
	r.invalidateRoutesFor(p)

	if err := s.adapter.Dispose(ctx); err != nil {
		return fmt.Errorf("disposing %s adapter: %w", p, err)
	}

	r.logger.Info("platform unregistered", "platform", p)
	return nil
}

// Close unregisters every platform. Dispose failures are logged and the
// first one is returned after all adapters have been offered disposal.
func (r *Registry) Close(ctx context.Context) error {
	var firstErr error
	for _, p := range r.Platforms() {
		if err := r.Unregister(ctx, p); err != nil {
			r.logger.Error("error unregistering platform", "platform", p, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// SlotState reports the lifecycle state of platform p.
func (r *Registry) SlotState(p device.Platform) SlotState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.slots[p]; ok {
		return s.state
	}
	return SlotUnregistered
}

// Platforms returns the sorted list of initialized platforms.
func (r *Registry) Platforms() []device.Platform {
	r.mu.RLock()
	out := make([]device.Platform, 0, len(r.slots))
	for p, s := range r.slots {
		if s.state == SlotInitialized {
			out = append(out, p)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Adapter returns the initialized adapter for platform p.
func (r *Registry) Adapter(p device.Platform) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.slots[p]; ok && s.state == SlotInitialized {
		return s.adapter, true
	}
	return nil, false
}

// AdapterFor resolves the adapter owning a device id.
//
// The routing cache answers in O(1) when enabled; on a miss the platform
// is parsed out of the id and the hit is cached opportunistically.
// Unknown and unregistered platforms are not-found faults.
func (r *Registry) AdapterFor(id string) (Adapter, error) {
	if r.opts.RoutingCache {
		r.routeMu.RLock()
		rt, ok := r.routes[id]
		r.routeMu.RUnlock()
		if ok {
			return rt.adapter, nil
		}
	}

	p, _, err := device.SplitID(id)
	if err != nil {
		return nil, NotFound(id).WithCause(err)
	}

	a, ok := r.Adapter(p)
	if !ok {
		e := NotFound(id)
		e.Message = fmt.Sprintf("platform %q is not registered", p)
		e.Context.Platform = string(p)
		return nil, e
	}

	r.cacheRoute(id, p, a)
	return a, nil
}

// ExecuteCommand routes a command to the owning adapter.
func (r *Registry) ExecuteCommand(ctx context.Context, id string, cmd Command) (device.State, error) {
	a, err := r.AdapterFor(id)
	if err != nil {
		return nil, err
	}

	state, err := a.ExecuteCommand(ctx, id, cmd)
	if err != nil {
		return nil, r.annotate(err, id, a.Platform(), cmd.Command)
	}
	return state, nil
}

// GetDeviceState routes a cached-state read to the owning adapter.
func (r *Registry) GetDeviceState(ctx context.Context, id string) (device.State, error) {
	a, err := r.AdapterFor(id)
	if err != nil {
		return nil, err
	}

	state, err := a.GetDeviceState(ctx, id)
	if err != nil {
		return nil, r.annotate(err, id, a.Platform(), "")
	}
	return state, nil
}

// RefreshDeviceState routes a forced state refresh to the owning adapter.
// This is the refresh capability injected into the device state cache.
func (r *Registry) RefreshDeviceState(ctx context.Context, id string) (device.State, error) {
	a, err := r.AdapterFor(id)
	if err != nil {
		return nil, err
	}

	state, err := a.RefreshDeviceState(ctx, id)
	if err != nil {
		return nil, r.annotate(err, id, a.Platform(), "")
	}
	return state, nil
}

// ListAllDevices aggregates device lists from every initialized adapter.
//
// Under graceful degradation a failing adapter contributes an AdapterError
// to the side channel and the rest of the fleet still lists; under
// fail-fast the first failure aborts the whole operation.
func (r *Registry) ListAllDevices(ctx context.Context) ([]device.Device, []AdapterError, error) {
	var (
		devices  []device.Device
		degraded []AdapterError
	)

	for _, p := range r.Platforms() {
		a, ok := r.Adapter(p)
		if !ok {
			continue // unregistered between snapshot and call
		}

		list, err := a.ListDevices(ctx, device.Filter{})
		if err != nil {
			if r.opts.FailFast {
				return nil, nil, fmt.Errorf("listing %s devices: %w", p, err)
			}
			r.logger.Warn("adapter list failed, degrading", "platform", p, "error", err)
			degraded = append(degraded, AdapterError{Platform: p, Err: err})
			continue
		}
		devices = append(devices, list...)
	}

	return devices, degraded, nil
}

// HealthCheck probes every initialized adapter.
// Overall health is true when at least one adapter reports healthy.
func (r *Registry) HealthCheck(ctx context.Context) (*HealthReport, error) {
	report := &HealthReport{
		Platforms: make(map[device.Platform]PlatformHealth),
		CheckedAt: time.Now().UTC(),
	}

	for _, p := range r.Platforms() {
		a, ok := r.Adapter(p)
		if !ok {
			continue
		}

		h, err := a.HealthCheck(ctx)
		if err != nil {
			if r.opts.FailFast {
				return nil, fmt.Errorf("health-checking %s: %w", p, err)
			}
			report.Platforms[p] = PlatformHealth{
				Platform:  p,
				Healthy:   false,
				Error:     err.Error(),
				CheckedAt: time.Now().UTC(),
			}
			continue
		}

		ph := PlatformHealth{
			Platform:  p,
			Healthy:   h.Healthy,
			Detail:    h.Detail,
			CheckedAt: h.CheckedAt,
		}
		if ph.CheckedAt.IsZero() {
			ph.CheckedAt = time.Now().UTC()
		}
		report.Platforms[p] = ph
		if h.Healthy {
			report.Healthy = true
		}
	}

	return report, nil
}

// ExecuteBatch fans a mixed-platform batch out to the owning adapters and
// reassembles outcomes in input order, one result per request.
//
// Requests whose device cannot be routed fail individually; adapter-level
// batch failures fail every request of that adapter. Under fail-fast the
// first adapter failure aborts instead.
func (r *Registry) ExecuteBatch(ctx context.Context, reqs []CommandRequest) ([]BatchResult, []AdapterError, error) {
	results := make([]BatchResult, len(reqs))

	// Group request indexes per adapter, preserving input order.
	type group struct {
		adapter Adapter
		indexes []int
	}
	groups := make(map[device.Platform]*group)
	var order []device.Platform

	for i, req := range reqs {
		a, err := r.AdapterFor(req.DeviceID)
		if err != nil {
			results[i] = BatchResult{DeviceID: req.DeviceID, Err: err}
			continue
		}
		p := a.Platform()
		g, ok := groups[p]
		if !ok {
			g = &group{adapter: a}
			groups[p] = g
			order = append(order, p)
		}
		g.indexes = append(g.indexes, i)
	}

	var degraded []AdapterError
	for _, p := range order {
		g := groups[p]

		sub := make([]CommandRequest, len(g.indexes))
		for j, idx := range g.indexes {
			sub[j] = reqs[idx]
		}

		outcomes, err := g.adapter.ExecuteBatch(ctx, sub)
		if err != nil {
			if r.opts.FailFast {
				return nil, nil, fmt.Errorf("batch on %s: %w", p, err)
			}
			degraded = append(degraded, AdapterError{Platform: p, Err: err})
			for _, idx := range g.indexes {
				results[idx] = BatchResult{
					DeviceID: reqs[idx].DeviceID,
					Err:      r.annotate(err, reqs[idx].DeviceID, p, reqs[idx].Command.Command),
				}
			}
			continue
		}

		for j, idx := range g.indexes {
			if j < len(outcomes) {
				results[idx] = outcomes[j]
			} else {
				results[idx] = BatchResult{
					DeviceID: reqs[idx].DeviceID,
					Err:      Errorf(CodeInvalidCommand, "adapter %s returned short batch result", p),
				}
			}
		}
	}

	return results, degraded, nil
}

// Subscribe registers a handler for re-published adapter events.
// Nothing is delivered unless Options.PropagateEvents is enabled.
func (r *Registry) Subscribe(h EventHandler) Subscription {
	return r.bus.Subscribe(h)
}

// handleAdapterEvent keeps the routing cache coherent and optionally
// re-publishes the event to the registry's own subscribers.
func (r *Registry) handleAdapterEvent(e Event) {
	switch e.Type {
	case EventDeviceAdded:
		if a, ok := r.Adapter(e.Platform); ok {
			r.cacheRoute(e.DeviceID, e.Platform, a)
		}
	case EventDeviceRemoved:
		r.routeMu.Lock()
		delete(r.routes, e.DeviceID)
		r.routeMu.Unlock()
	case EventStateChange:
		// No routing impact; state consumers subscribe directly.
	}

	if r.opts.PropagateEvents {
		r.bus.Publish(e)
	}
}

// cacheRoute records an id→adapter binding when the cache is enabled.
func (r *Registry) cacheRoute(id string, p device.Platform, a Adapter) {
	if !r.opts.RoutingCache {
		return
	}
	r.routeMu.Lock()
	r.routes[id] = route{adapter: a, platform: p}
	r.routeMu.Unlock()
}

// invalidateRoutesFor drops every cached route owned by platform p.
func (r *Registry) invalidateRoutesFor(p device.Platform) {
	r.routeMu.Lock()
	for id, rt := range r.routes {
		if rt.platform == p {
			delete(r.routes, id)
		}
	}
	r.routeMu.Unlock()
}

// RouteCount returns the number of cached routes (for monitoring).
func (r *Registry) RouteCount() int {
	r.routeMu.RLock()
	defer r.routeMu.RUnlock()
	return len(r.routes)
}

// annotate fills in missing context on platform faults flowing through
// the registry so callers always see device, platform, and command.
func (r *Registry) annotate(err error, id string, p device.Platform, command string) error {
	e, ok := AsError(err)
	if !ok {
		return err
	}
	if e.Context.DeviceID == "" {
		e.Context.DeviceID = id
	}
	if e.Context.Platform == "" {
		e.Context.Platform = string(p)
	}
	if e.Context.Command == "" && command != "" {
		e.Context.Command = command
	}
	return e
}
