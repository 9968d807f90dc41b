package device

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// snapshotVersion is bumped when the snapshot layout changes.
const snapshotVersion = 1

// snapshot is the on-disk registry serialization: an ordered collection of
// device records in human-readable JSON.
type snapshot struct {
	Version int       `json:"version"`
	SavedAt time.Time `json:"saved_at"`
	Devices []Device  `json:"devices"`
}

// Save serializes the full device list to w as indented JSON,
// ordered by device id for stable diffs.
func (r *Registry) Save(w io.Writer) error {
	r.mu.RLock()
	devices := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		devices = append(devices, *d.DeepCopy())
	}
	r.mu.RUnlock()

	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })

	snap := snapshot{
		Version: snapshotVersion,
		SavedAt: time.Now().UTC(),
		Devices: devices,
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return nil
}

// Load replaces the registry contents with the devices from a snapshot.
//
// Load is destructive: current devices are discarded. Every record is
// validated and every secondary index is fully rebuilt before the new
// state becomes visible; a decode or validation failure leaves the
// existing registry untouched.
func (r *Registry) Load(rd io.Reader) error {
	var snap snapshot
	if err := json.NewDecoder(rd).Decode(&snap); err != nil {
		return fmt.Errorf("%w: %w", ErrSnapshotCorrupt, err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrSnapshotCorrupt, snap.Version)
	}

	// Build the replacement state off to the side so a bad record
	// cannot leave the registry half loaded.
	staged := NewRegistry()
	for i := range snap.Devices {
		if err := staged.Add(&snap.Devices[i]); err != nil {
			return fmt.Errorf("%w: device %q: %w", ErrSnapshotCorrupt, snap.Devices[i].ID, err)
		}
	}

	staged.mu.Lock()
	r.mu.Lock()
	r.devices = staged.devices
	r.byRoom = staged.byRoom
	r.byCapability = staged.byCapability
	r.byPlatform = staged.byPlatform
	r.byOnline = staged.byOnline
	r.mu.Unlock()
	staged.mu.Unlock()

	r.logger.Info("registry snapshot loaded", "devices", len(snap.Devices))
	return nil
}

// SaveFile writes a snapshot to path atomically (write temp file, rename).
func (r *Registry) SaveFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".registry-*.json")
	if err != nil {
		return fmt.Errorf("creating snapshot temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := r.Save(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing snapshot temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

// LoadFile loads a snapshot from path. A missing file is not an error;
// the registry simply starts empty.
func (r *Registry) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			r.logger.Debug("no registry snapshot found", "path", path)
			return nil
		}
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()

	return r.Load(f)
}
