package device

import (
	"fmt"
	"sort"
	"strings"
	"sync"
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

// Filter describes a conjunctive (AND) device query.
// Nil fields are ignored; a zero Filter matches every device.
type Filter struct {
	Room       *string
	Capability *Capability
	Platform   *Platform
	Online     *bool

	// Name is a case-insensitive substring match against the device
	// name and alias. Empty means no name constraint.
	Name string
}

// Registry is the in-memory authoritative index of known devices.
//
// It maintains a primary id→device map plus secondary indexes by room,
// capability, platform, and online flag. Indexes are updated in the same
// critical section as the primary map, so no reader ever observes a device
// present in one and absent from the other.
//
// All public methods are thread-safe.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*Device

	// Secondary indexes: bucket key → set of device ids.
	// Empty buckets are pruned on removal so Rooms() reflects
	// only rooms that still contain devices.
	byRoom       map[string]map[string]struct{}
	byCapability map[Capability]map[string]struct{}
	byPlatform   map[Platform]map[string]struct{}
	byOnline     map[bool]map[string]struct{}

	threshold float64
	logger    Logger
}

// NewRegistry creates an empty device registry.
func NewRegistry() *Registry {
	return &Registry{
		devices:      make(map[string]*Device),
		byRoom:       make(map[string]map[string]struct{}),
		byCapability: make(map[Capability]map[string]struct{}),
		byPlatform:   make(map[Platform]map[string]struct{}),
		byOnline:     make(map[bool]map[string]struct{}),
		threshold:    defaultResolveThreshold,
		logger:       noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetResolveThreshold overrides the fuzzy-match acceptance threshold.
// Values outside (0, 1] are ignored.
func (r *Registry) SetResolveThreshold(t float64) {
	if t <= 0 || t > 1 {
		return
	}
	r.mu.Lock()
	r.threshold = t
	r.mu.Unlock()
}

// Add inserts a device into the registry.
//
// The id may be given directly or derived from Platform+LocalID; either way
// it must parse as "<platform>:<local-id>" with a registered platform, and
// the name must be non-empty. Re-adding an existing id is a silent no-op so
// external sync processes can replay their device lists idempotently.
func (r *Registry) Add(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}

	normalized, err := normalizeIdentity(d)
	if err != nil {
		return err
	}
	if strings.TrimSpace(normalized.Name) == "" {
		return ErrInvalidName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.devices[normalized.ID]; exists {
		// Idempotent resync: duplicate adds are not faults.
		r.logger.Debug("device already registered, add skipped", "id", normalized.ID)
		return nil
	}

	r.devices[normalized.ID] = normalized
	r.index(normalized)

	r.logger.Info("device added", "id", normalized.ID, "name", normalized.Name)
	return nil
}

// Remove deletes a device by id.
// Returns true if the device existed. Index buckets left empty by the
// removal are pruned.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[id]
	if !ok {
		return false
	}

	r.unindex(d)
	delete(r.devices, id)

	r.logger.Info("device removed", "id", id)
	return true
}

// Update replaces the mutable fields of an existing device.
//
// The id cannot change: if updated.ID is set and differs from id the update
// faults with ErrIDImmutable. An empty name faults with ErrInvalidName.
// Returns false (and no error) when the device does not exist.
func (r *Registry) Update(id string, updated *Device) (bool, error) {
	if updated == nil {
		return false, ErrInvalidDevice
	}
	if updated.ID != "" && updated.ID != id {
		return false, fmt.Errorf("%w: %s -> %s", ErrIDImmutable, id, updated.ID)
	}
	if strings.TrimSpace(updated.Name) == "" {
		return false, ErrInvalidName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.devices[id]
	if !ok {
		return false, nil
	}

	next := updated.DeepCopy()
	next.ID = current.ID
	next.Platform = current.Platform
	next.LocalID = current.LocalID
	next.Capabilities = dedupeCapabilities(next.Capabilities)

	// Reindex: drop old postings, insert new ones, one critical section.
	r.unindex(current)
	r.devices[id] = next
	r.index(next)

	r.logger.Debug("device updated", "id", id, "name", next.Name)
	return true, nil
}

// Get retrieves a device by id.
// The returned device is a deep copy; callers can safely modify it.
func (r *Registry) Get(id string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	if !ok {
		return nil, false
	}
	return d.DeepCopy(), true
}

// All returns every device, sorted by id.
// The returned devices are deep copies.
func (r *Registry) All() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(nil)
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// Find returns all devices matching every set field of the filter,
// sorted by id. An empty result is a valid outcome, never a fault.
//
// The most selective secondary index seeds the candidate set so common
// queries avoid a full scan.
func (r *Registry) Find(f Filter) []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := r.candidateSet(f)

	nameNeedle := strings.ToLower(strings.TrimSpace(f.Name))

	var out []Device
	for id := range candidates {
		d := r.devices[id]
		if !matchesFilter(d, f, nameNeedle) {
			continue
		}
		out = append(out, *d.DeepCopy())
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DevicesInRoom returns all devices assigned to the given room, sorted by id.
func (r *Registry) DevicesInRoom(room string) []Device {
	return r.Find(Filter{Room: &room})
}

// Rooms returns the sorted list of rooms that currently contain devices.
func (r *Registry) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]string, 0, len(r.byRoom))
	for room := range r.byRoom {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// candidateSet picks the smallest applicable index bucket for the filter.
// Falls back to the primary map when no indexed field is set.
// Caller must hold at least a read lock.
func (r *Registry) candidateSet(f Filter) map[string]struct{} {
	best := func(sets ...map[string]struct{}) map[string]struct{} {
		var smallest map[string]struct{}
		for _, s := range sets {
			if s == nil {
				continue
			}
			if smallest == nil || len(s) < len(smallest) {
				smallest = s
			}
		}
		return smallest
	}

	var sets []map[string]struct{}
	if f.Room != nil {
		sets = append(sets, bucketOrEmpty(r.byRoom[*f.Room]))
	}
	if f.Capability != nil {
		sets = append(sets, bucketOrEmpty(r.byCapability[*f.Capability]))
	}
	if f.Platform != nil {
		sets = append(sets, bucketOrEmpty(r.byPlatform[*f.Platform]))
	}
	if f.Online != nil {
		sets = append(sets, bucketOrEmpty(r.byOnline[*f.Online]))
	}

	if chosen := best(sets...); chosen != nil {
		return chosen
	}

	// No indexed constraint: scan everything.
	all := make(map[string]struct{}, len(r.devices))
	for id := range r.devices {
		all[id] = struct{}{}
	}
	return all
}

// bucketOrEmpty maps a missing index bucket to an empty (non-nil) set so
// a filter on an unknown room/capability yields no candidates rather than
// falling through to a full scan.
func bucketOrEmpty(b map[string]struct{}) map[string]struct{} {
	if b == nil {
		return map[string]struct{}{}
	}
	return b
}

// Matches reports whether a device satisfies every set field of the
// filter. Adapters use it to apply registry-style filters to their own
// inventories.
func (f Filter) Matches(d *Device) bool {
	if d == nil {
		return false
	}
	return matchesFilter(d, f, strings.ToLower(strings.TrimSpace(f.Name)))
}

// matchesFilter applies every predicate of the filter to a device.
func matchesFilter(d *Device, f Filter, nameNeedle string) bool {
	if f.Room != nil && (d.Room == nil || *d.Room != *f.Room) {
		return false
	}
	if f.Capability != nil && !d.HasCapability(*f.Capability) {
		return false
	}
	if f.Platform != nil && d.Platform != *f.Platform {
		return false
	}
	if f.Online != nil && d.Online != *f.Online {
		return false
	}
	if nameNeedle != "" {
		if !strings.Contains(strings.ToLower(d.Name), nameNeedle) &&
			(d.Alias == nil || !strings.Contains(strings.ToLower(*d.Alias), nameNeedle)) {
			return false
		}
	}
	return true
}

// collect returns deep copies of devices whose ids are in the given set
// (nil set = all devices), sorted by id. Caller must hold at least a
// read lock.
func (r *Registry) collect(ids map[string]struct{}) []Device {
	var out []Device
	if ids == nil {
		out = make([]Device, 0, len(r.devices))
		for _, d := range r.devices {
			out = append(out, *d.DeepCopy())
		}
	} else {
		out = make([]Device, 0, len(ids))
		for id := range ids {
			if d, ok := r.devices[id]; ok {
				out = append(out, *d.DeepCopy())
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// index inserts a device into every applicable secondary index.
// Caller must hold the write lock.
func (r *Registry) index(d *Device) {
	if d.Room != nil && *d.Room != "" {
		addToBucket(r.byRoom, *d.Room, d.ID)
	}
	for _, c := range d.Capabilities {
		addToBucket(r.byCapability, c, d.ID)
	}
	addToBucket(r.byPlatform, d.Platform, d.ID)
	addToBucket(r.byOnline, d.Online, d.ID)
}

// unindex removes a device from every secondary index, pruning any bucket
// left empty. Caller must hold the write lock.
func (r *Registry) unindex(d *Device) {
	if d.Room != nil && *d.Room != "" {
		dropFromBucket(r.byRoom, *d.Room, d.ID)
	}
	for _, c := range d.Capabilities {
		dropFromBucket(r.byCapability, c, d.ID)
	}
	dropFromBucket(r.byPlatform, d.Platform, d.ID)
	dropFromBucket(r.byOnline, d.Online, d.ID)
}

func addToBucket[K comparable](idx map[K]map[string]struct{}, key K, id string) {
	bucket, ok := idx[key]
	if !ok {
		bucket = make(map[string]struct{})
		idx[key] = bucket
	}
	bucket[id] = struct{}{}
}

func dropFromBucket[K comparable](idx map[K]map[string]struct{}, key K, id string) {
	bucket, ok := idx[key]
	if !ok {
		return
	}
	delete(bucket, id)
	if len(bucket) == 0 {
		delete(idx, key)
	}
}

// normalizeIdentity validates and completes a device's identity fields,
// returning an owned deep copy ready for insertion.
func normalizeIdentity(d *Device) (*Device, error) {
	cpy := d.DeepCopy()

	if cpy.ID == "" {
		if cpy.Platform == "" || cpy.LocalID == "" {
			return nil, ErrInvalidDeviceID
		}
		cpy.ID = JoinID(cpy.Platform, cpy.LocalID)
	}

	platform, localID, err := SplitID(cpy.ID)
	if err != nil {
		return nil, err
	}
	if cpy.Platform != "" && cpy.Platform != platform {
		return nil, fmt.Errorf("%w: id %q does not match platform %q", ErrInvalidDeviceID, cpy.ID, cpy.Platform)
	}
	cpy.Platform = platform
	cpy.LocalID = localID
	cpy.Capabilities = dedupeCapabilities(cpy.Capabilities)

	return cpy, nil
}

// Stats returns registry statistics for monitoring.
type Stats struct {
	TotalDevices int
	Online       int
	ByPlatform   map[Platform]int
	ByRoom       map[string]int
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		TotalDevices: len(r.devices),
		ByPlatform:   make(map[Platform]int),
		ByRoom:       make(map[string]int),
	}

	for _, d := range r.devices {
		stats.ByPlatform[d.Platform]++
		if d.Room != nil && *d.Room != "" {
			stats.ByRoom[*d.Room]++
		}
		if d.Online {
			stats.Online++
		}
	}

	return stats
}
