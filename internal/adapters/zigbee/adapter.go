package zigbee

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/unify-home/unify-core/internal/device"
	"github.com/unify-home/unify-core/internal/infrastructure/mqtt"
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

// Broker is the MQTT surface the adapter needs. *mqtt.Client satisfies it.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Config holds zigbee2mqtt integration settings.
type Config struct {
	// BaseTopic is the zigbee2mqtt topic prefix. Defaults to "zigbee2mqtt".
	BaseTopic string

	// QoS for publishes and subscriptions. Defaults to 1 (at-least-once).
	QoS byte

	// CommandTimeout bounds the wait for the bridge to report back after
	// a command or explicit refresh. Zero means 5 seconds.
	CommandTimeout time.Duration
}

func (c *Config) normalize() {
	if c.BaseTopic == "" {
		c.BaseTopic = "zigbee2mqtt"
	}
	if c.QoS == 0 {
		c.QoS = 1
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 5 * time.Second
	}
}

// Adapter integrates Zigbee devices through a zigbee2mqtt bridge.
//
// The bridge publishes retained device inventories on <base>/bridge/devices
// and device state on <base>/<friendly-name>; commands go to
// <base>/<friendly-name>/set. The adapter mirrors the state stream into an
// in-memory map and resolves explicit refreshes against it, so reads are
// answered from the last bridge report rather than a round trip per call.
type Adapter struct {
	broker Broker
	cfg    Config
	logger Logger
	bus    *platform.EventBus

	mu           sync.RWMutex
	initialized  bool
	bridgeOnline bool
	devices      map[string]*device.Device // keyed by friendly name
	states       map[string]device.State   // keyed by friendly name
	groups       []platform.Room

	waitMu  sync.Mutex
	waiters map[string][]chan device.State // keyed by friendly name
}

// New creates a zigbee2mqtt adapter on top of a connected broker client.
func New(broker Broker, cfg Config) *Adapter {
	cfg.normalize()
	return &Adapter{
		broker:  broker,
		cfg:     cfg,
		logger:  noopLogger{},
		bus:     platform.NewEventBus(),
		devices: make(map[string]*device.Device),
		states:  make(map[string]device.State),
		waiters: make(map[string][]chan device.State),
	}
}

// SetLogger sets the logger for the adapter.
func (a *Adapter) SetLogger(logger Logger) {
	a.logger = logger
}

// Platform implements platform.Adapter.
func (a *Adapter) Platform() device.Platform { return device.PlatformZigbee }

// Initialize subscribes to the bridge topic tree. The retained
// bridge/devices message populates the inventory shortly after; discovery
// is asynchronous by design, matching how zigbee2mqtt announces devices.
func (a *Adapter) Initialize(ctx context.Context) error {
	if !a.broker.IsConnected() {
		return platform.NewError(platform.CodeNetwork, "mqtt broker not connected")
	}

	subs := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{a.topic("bridge/state"), a.handleBridgeState},
		{a.topic("bridge/devices"), a.handleBridgeDevices},
		{a.topic("bridge/groups"), a.handleBridgeGroups},
		{a.topic("+"), a.handleDeviceState},
		{a.topic("+/availability"), a.handleAvailability},
	}
	for _, s := range subs {
		if err := a.broker.Subscribe(s.topic, a.cfg.QoS, s.handler); err != nil {
			return fmt.Errorf("subscribing to %s: %w", s.topic, err)
		}
	}

	a.mu.Lock()
	a.initialized = true
	a.mu.Unlock()

	a.logger.Info("zigbee2mqtt adapter initialized", "base_topic", a.cfg.BaseTopic)
	return nil
}

// Dispose implements platform.Adapter.
func (a *Adapter) Dispose(context.Context) error {
	for _, topic := range []string{
		a.topic("bridge/state"), a.topic("bridge/devices"), a.topic("bridge/groups"),
		a.topic("+"), a.topic("+/availability"),
	} {
		if err := a.broker.Unsubscribe(topic); err != nil {
			a.logger.Warn("unsubscribe failed during dispose", "topic", topic, "error", err)
		}
	}

	a.mu.Lock()
	a.initialized = false
	a.devices = make(map[string]*device.Device)
	a.states = make(map[string]device.State)
	a.mu.Unlock()
	return nil
}

// Initialized implements platform.Adapter.
func (a *Adapter) Initialized() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.initialized
}

// HealthCheck implements platform.Adapter. Healthy means the broker
// connection is up and the bridge has reported itself online.
func (a *Adapter) HealthCheck(context.Context) (*platform.Health, error) {
	now := time.Now().UTC()
	if !a.broker.IsConnected() {
		return &platform.Health{Healthy: false, Detail: "mqtt broker disconnected", CheckedAt: now}, nil
	}

	a.mu.RLock()
	online := a.bridgeOnline
	count := len(a.devices)
	a.mu.RUnlock()

	if !online {
		return &platform.Health{Healthy: false, Detail: "zigbee2mqtt bridge offline", CheckedAt: now}, nil
	}
	return &platform.Health{
		Healthy:   true,
		Detail:    fmt.Sprintf("bridge online, %d devices", count),
		CheckedAt: now,
	}, nil
}

// ListDevices implements platform.Adapter, serving filtered views of the
// bridge inventory mirror.
func (a *Adapter) ListDevices(_ context.Context, filter device.Filter) ([]device.Device, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]device.Device, 0, len(a.devices))
	for _, d := range a.devices {
		if !filter.Matches(d) {
			continue
		}
		out = append(out, *d.DeepCopy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetDevice implements platform.Adapter.
func (a *Adapter) GetDevice(_ context.Context, id string) (*device.Device, error) {
	friendly, err := a.friendlyName(id)
	if err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	d, ok := a.devices[friendly]
	if !ok {
		return nil, platform.NotFound(id)
	}
	return d.DeepCopy(), nil
}

// GetDeviceState implements platform.Adapter. Reads come from the state
// mirror; a device that has never reported falls through to an explicit
// refresh.
func (a *Adapter) GetDeviceState(ctx context.Context, id string) (device.State, error) {
	friendly, err := a.friendlyName(id)
	if err != nil {
		return nil, err
	}

	a.mu.RLock()
	state, ok := a.states[friendly]
	a.mu.RUnlock()
	if ok {
		return device.CopyState(state), nil
	}
	return a.RefreshDeviceState(ctx, id)
}

// RefreshDeviceState implements platform.Adapter. It asks the bridge to
// re-read the device and waits for the resulting state report.
func (a *Adapter) RefreshDeviceState(ctx context.Context, id string) (device.State, error) {
	friendly, err := a.friendlyName(id)
	if err != nil {
		return nil, err
	}

	a.mu.RLock()
	_, known := a.devices[friendly]
	a.mu.RUnlock()
	if !known {
		return nil, platform.NotFound(id)
	}

	wait := a.addWaiter(friendly)
	defer a.removeWaiter(friendly, wait)

	if err := a.broker.Publish(a.topic(friendly+"/get"), []byte(`{"state":""}`), a.cfg.QoS, false); err != nil {
		return nil, platform.NewError(platform.CodeNetwork, "publishing state request").
			WithCause(err).WithDevice(id, string(device.PlatformZigbee))
	}

	return a.await(ctx, wait, id)
}

// GetDeviceCapabilities implements platform.Adapter.
func (a *Adapter) GetDeviceCapabilities(ctx context.Context, id string) ([]device.Capability, error) {
	d, err := a.GetDevice(ctx, id)
	if err != nil {
		return nil, err
	}
	return d.Capabilities, nil
}

// ExecuteCommand implements platform.Adapter. The command is published to
// <base>/<friendly-name>/set and the call waits for the bridge's state
// report, which is the authoritative post-command snapshot.
func (a *Adapter) ExecuteCommand(ctx context.Context, id string, cmd platform.Command) (device.State, error) {
	friendly, err := a.friendlyName(id)
	if err != nil {
		return nil, err
	}

	a.mu.RLock()
	_, known := a.devices[friendly]
	a.mu.RUnlock()
	if !known {
		return nil, platform.NotFound(id)
	}

	payload, err := commandPayload(cmd)
	if err != nil {
		return nil, faultForDevice(err, id).WithCommand(cmd.Command)
	}

	wait := a.addWaiter(friendly)
	defer a.removeWaiter(friendly, wait)

	if err := a.broker.Publish(a.topic(friendly+"/set"), payload, a.cfg.QoS, false); err != nil {
		return nil, platform.NewError(platform.CodeNetwork, "publishing command").
			WithCause(err).WithDevice(id, string(device.PlatformZigbee)).WithCommand(cmd.Command)
	}

	state, err := a.await(ctx, wait, id)
	if err != nil {
		return nil, faultForDevice(err, id).WithCommand(cmd.Command)
	}
	return state, nil
}

// ExecuteBatch implements platform.Adapter. The bridge takes one command
// per topic, so requests run sequentially with per-request outcomes.
func (a *Adapter) ExecuteBatch(ctx context.Context, reqs []platform.CommandRequest) ([]platform.BatchResult, error) {
	out := make([]platform.BatchResult, len(reqs))
	for i, req := range reqs {
		state, err := a.ExecuteCommand(ctx, req.DeviceID, req.Command)
		out[i] = platform.BatchResult{DeviceID: req.DeviceID, State: state, Err: err}
	}
	return out, nil
}

// ListLocations implements platform.Adapter. A coordinator is one site.
func (a *Adapter) ListLocations(context.Context) ([]platform.Location, error) {
	return []platform.Location{{ID: "zigbee", Name: "Zigbee Network"}}, nil
}

// ListRooms implements platform.Adapter. zigbee2mqtt groups stand in for
// rooms; installations commonly create one group per room.
func (a *Adapter) ListRooms(context.Context) ([]platform.Room, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]platform.Room, len(a.groups))
	copy(out, a.groups)
	return out, nil
}

// SupportsScenes implements platform.Adapter. Scene recall through
// zigbee2mqtt requires group-level addressing we do not model.
func (a *Adapter) SupportsScenes() bool { return false }

// ListScenes implements platform.Adapter.
func (a *Adapter) ListScenes(context.Context) ([]platform.Scene, error) {
	return nil, nil
}

// ExecuteScene implements platform.Adapter.
func (a *Adapter) ExecuteScene(_ context.Context, sceneID string) error {
	return platform.Errorf(platform.CodeCapabilityNotSupported, "zigbee adapter does not support scenes (scene %q)", sceneID)
}

// Subscribe implements platform.Adapter.
func (a *Adapter) Subscribe(h platform.EventHandler) platform.Subscription {
	return a.bus.Subscribe(h)
}

// topic joins the base topic with a suffix.
func (a *Adapter) topic(suffix string) string {
	return a.cfg.BaseTopic + "/" + suffix
}

// friendlyName maps a universal id back to the bridge's friendly name.
func (a *Adapter) friendlyName(id string) (string, error) {
	p, local, err := device.SplitID(id)
	if err != nil {
		return "", platform.NotFound(id).WithCause(err)
	}
	if p != device.PlatformZigbee {
		return "", platform.NotFound(id)
	}
	return local, nil
}

// addWaiter registers interest in the next state report for a device.
func (a *Adapter) addWaiter(friendly string) chan device.State {
	ch := make(chan device.State, 1)
	a.waitMu.Lock()
	a.waiters[friendly] = append(a.waiters[friendly], ch)
	a.waitMu.Unlock()
	return ch
}

// removeWaiter drops a waiter registration. Idempotent with settle.
func (a *Adapter) removeWaiter(friendly string, ch chan device.State) {
	a.waitMu.Lock()
	defer a.waitMu.Unlock()
	list := a.waiters[friendly]
	for i, w := range list {
		if w == ch {
			a.waiters[friendly] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(a.waiters[friendly]) == 0 {
		delete(a.waiters, friendly)
	}
}

// settleWaiters delivers a fresh state to everyone waiting on the device.
func (a *Adapter) settleWaiters(friendly string, state device.State) {
	a.waitMu.Lock()
	list := a.waiters[friendly]
	delete(a.waiters, friendly)
	a.waitMu.Unlock()

	for _, ch := range list {
		ch <- device.CopyState(state)
	}
}

// await blocks until a state report arrives, the caller cancels, or the
// command timeout elapses.
func (a *Adapter) await(ctx context.Context, wait chan device.State, id string) (device.State, error) {
	timer := time.NewTimer(a.cfg.CommandTimeout)
	defer timer.Stop()

	select {
	case state := <-wait:
		return state, nil
	case <-ctx.Done():
		return nil, platform.NewError(platform.CodeTimeout, "cancelled waiting for bridge report").
			WithCause(ctx.Err()).WithDevice(id, string(device.PlatformZigbee))
	case <-timer.C:
		return nil, platform.NewError(platform.CodeTimeout, "no bridge report within timeout").
			WithDevice(id, string(device.PlatformZigbee))
	}
}

// faultForDevice stamps device context onto a fault.
func faultForDevice(err error, id string) *platform.Error {
	if e, ok := platform.AsError(err); ok {
		if e.Context.DeviceID == "" {
			e.Context.DeviceID = id
		}
		e.Context.Platform = string(device.PlatformZigbee)
		return e
	}
	return platform.NewError(platform.CodeCommandExecution, "zigbee command failed").
		WithCause(err).WithDevice(id, string(device.PlatformZigbee))
}

// localPart returns the topic remainder after the base prefix, or "" when
// the topic is outside our tree.
func (a *Adapter) localPart(topic string) string {
	prefix := a.cfg.BaseTopic + "/"
	if !strings.HasPrefix(topic, prefix) {
		return ""
	}
	return strings.TrimPrefix(topic, prefix)
}
