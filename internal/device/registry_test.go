package device

import (
	"errors"
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func capPtr(c Capability) *Capability { return &c }

func platformPtr(p Platform) *Platform { return &p }

// newTestDevice builds a valid device for registry tests.
func newTestDevice(id, name string, opts ...func(*Device)) *Device {
	d := &Device{
		ID:           id,
		Name:         name,
		Capabilities: []Capability{CapSwitch},
		Online:       true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func inRoom(room string) func(*Device) {
	return func(d *Device) { d.Room = strPtr(room) }
}

func withAlias(alias string) func(*Device) {
	return func(d *Device) { d.Alias = strPtr(alias) }
}

func withCaps(caps ...Capability) func(*Device) {
	return func(d *Device) { d.Capabilities = caps }
}

func offline() func(*Device) {
	return func(d *Device) { d.Online = false }
}

func mustAdd(t *testing.T, r *Registry, d *Device) {
	t.Helper()
	if err := r.Add(d); err != nil {
		t.Fatalf("Add(%s): %v", d.ID, err)
	}
}

func TestAddValidation(t *testing.T) {
	tests := []struct {
		name    string
		device  *Device
		wantErr error
	}{
		{"nil device", nil, ErrInvalidDevice},
		{"empty id and platform", &Device{Name: "Lamp"}, ErrInvalidDeviceID},
		{"missing local id", &Device{ID: "hue:", Name: "Lamp"}, ErrInvalidDeviceID},
		{"missing platform", &Device{ID: ":42", Name: "Lamp"}, ErrInvalidDeviceID},
		{"no colon", &Device{ID: "hue-42", Name: "Lamp"}, ErrInvalidDeviceID},
		{"unknown platform", &Device{ID: "acme:42", Name: "Lamp"}, ErrUnknownPlatform},
		{"empty name", &Device{ID: "hue:42"}, ErrInvalidName},
		{"whitespace name", &Device{ID: "hue:42", Name: "   "}, ErrInvalidName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			err := r.Add(tt.device)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Add() error = %v, want %v", err, tt.wantErr)
			}
			if r.Count() != 0 {
				t.Errorf("registry should remain empty, got %d devices", r.Count())
			}
		})
	}
}

func TestAddDerivesIdentity(t *testing.T) {
	r := NewRegistry()

	// ID derived from platform + local id.
	mustAdd(t, r, &Device{Platform: PlatformHue, LocalID: "7", Name: "Lamp"})
	if _, ok := r.Get("hue:7"); !ok {
		t.Fatal("expected derived id hue:7")
	}

	// Platform and local id derived from the id, colon in local id preserved.
	mustAdd(t, r, newTestDevice("zigbee:0x00:12:4b", "Sensor"))
	d, ok := r.Get("zigbee:0x00:12:4b")
	if !ok {
		t.Fatal("expected device with colon-bearing local id")
	}
	if d.Platform != PlatformZigbee || d.LocalID != "0x00:12:4b" {
		t.Errorf("identity = %s/%s, want zigbee/0x00:12:4b", d.Platform, d.LocalID)
	}
}

func TestReAddIsNoOp(t *testing.T) {
	r := NewRegistry()
	mustAdd(t, r, newTestDevice("hue:1", "Living Room Light", inRoom("living-room")))

	// Re-add with different fields: silently ignored, original preserved.
	if err := r.Add(newTestDevice("hue:1", "Renamed", inRoom("garage"))); err != nil {
		t.Fatalf("re-add should not fault: %v", err)
	}

	if r.Count() != 1 {
		t.Fatalf("count = %d, want 1", r.Count())
	}
	d, _ := r.Get("hue:1")
	if d.Name != "Living Room Light" {
		t.Errorf("name = %q, original should be preserved", d.Name)
	}
	if d.Room == nil || *d.Room != "living-room" {
		t.Error("room should be preserved on duplicate add")
	}
}

func TestAddDeduplicatesCapabilities(t *testing.T) {
	r := NewRegistry()
	mustAdd(t, r, newTestDevice("hue:1", "Lamp", withCaps(CapSwitch, CapDimmer, CapSwitch, CapDimmer)))

	d, _ := r.Get("hue:1")
	if len(d.Capabilities) != 2 {
		t.Errorf("capabilities = %v, want de-duplicated pair", d.Capabilities)
	}
}

func TestRemove(t *testing.T) {
	r := NewRegistry()
	mustAdd(t, r, newTestDevice("hue:1", "Lamp", inRoom("study")))

	if !r.Remove("hue:1") {
		t.Error("Remove existing = false, want true")
	}
	if r.Remove("hue:1") {
		t.Error("Remove absent = true, want false")
	}
	if r.Count() != 0 {
		t.Errorf("count = %d, want 0", r.Count())
	}
}

func TestRemoveLastDevicePrunesRoom(t *testing.T) {
	r := NewRegistry()
	mustAdd(t, r, newTestDevice("hue:1", "Lamp A", inRoom("study")))
	mustAdd(t, r, newTestDevice("hue:2", "Lamp B", inRoom("study")))
	mustAdd(t, r, newTestDevice("hue:3", "Lamp C", inRoom("hall")))

	r.Remove("hue:3")
	for _, room := range r.Rooms() {
		if room == "hall" {
			t.Error("hall should disappear once its last device is removed")
		}
	}

	rooms := r.Rooms()
	if len(rooms) != 1 || rooms[0] != "study" {
		t.Errorf("rooms = %v, want [study]", rooms)
	}
}

func TestUpdate(t *testing.T) {
	r := NewRegistry()
	mustAdd(t, r, newTestDevice("hue:1", "Lamp", inRoom("study")))

	t.Run("id change faults", func(t *testing.T) {
		_, err := r.Update("hue:1", newTestDevice("hue:2", "Lamp"))
		if !errors.Is(err, ErrIDImmutable) {
			t.Errorf("error = %v, want ErrIDImmutable", err)
		}
	})

	t.Run("empty name faults", func(t *testing.T) {
		_, err := r.Update("hue:1", &Device{Name: ""})
		if !errors.Is(err, ErrInvalidName) {
			t.Errorf("error = %v, want ErrInvalidName", err)
		}
	})

	t.Run("absent device is a boolean outcome", func(t *testing.T) {
		found, err := r.Update("hue:99", newTestDevice("", "Lamp"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if found {
			t.Error("found = true for absent device")
		}
	})

	t.Run("reindexes room and capabilities", func(t *testing.T) {
		found, err := r.Update("hue:1", newTestDevice("", "Desk Lamp", inRoom("office"), withCaps(CapDimmer)))
		if err != nil || !found {
			t.Fatalf("Update() = %v, %v", found, err)
		}

		if got := r.DevicesInRoom("study"); len(got) != 0 {
			t.Errorf("study still has %d devices after move", len(got))
		}
		if got := r.DevicesInRoom("office"); len(got) != 1 {
			t.Fatalf("office has %d devices, want 1", len(got))
		}

		byCap := r.Find(Filter{Capability: capPtr(CapSwitch)})
		if len(byCap) != 0 {
			t.Errorf("switch index still lists device after capability change")
		}
	})
}

func TestFind(t *testing.T) {
	r := NewRegistry()
	mustAdd(t, r, newTestDevice("hue:1", "Living Room Light", inRoom("living-room"), withCaps(CapSwitch, CapDimmer)))
	mustAdd(t, r, newTestDevice("hue:2", "Kitchen Light", inRoom("kitchen"), withCaps(CapSwitch)))
	mustAdd(t, r, newTestDevice("smartthings:a", "Bedroom Lamp", inRoom("bedroom"), withCaps(CapSwitch, CapDimmer), offline()))
	mustAdd(t, r, newTestDevice("zigbee:s1", "Hall Sensor", inRoom("hall"), withCaps(CapMotionSensor, CapBattery)))

	tests := []struct {
		name    string
		filter  Filter
		wantIDs []string
	}{
		{"no constraints", Filter{}, []string{"hue:1", "hue:2", "smartthings:a", "zigbee:s1"}},
		{"by room", Filter{Room: strPtr("kitchen")}, []string{"hue:2"}},
		{"by capability", Filter{Capability: capPtr(CapDimmer)}, []string{"hue:1", "smartthings:a"}},
		{"by platform", Filter{Platform: platformPtr(PlatformHue)}, []string{"hue:1", "hue:2"}},
		{"by online", Filter{Online: boolPtr(false)}, []string{"smartthings:a"}},
		{
			"conjunctive room+capability+online",
			Filter{Room: strPtr("living-room"), Capability: capPtr(CapDimmer), Online: boolPtr(true)},
			[]string{"hue:1"},
		},
		{"conjunctive with miss", Filter{Room: strPtr("kitchen"), Capability: capPtr(CapDimmer)}, nil},
		{"name substring", Filter{Name: "light"}, []string{"hue:1", "hue:2"}},
		{"unknown room", Filter{Room: strPtr("attic")}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Find(tt.filter)
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("Find() returned %d devices, want %d", len(got), len(tt.wantIDs))
			}
			for i, want := range tt.wantIDs {
				if got[i].ID != want {
					t.Errorf("result[%d] = %s, want %s", i, got[i].ID, want)
				}
			}
		})
	}
}

func TestFindEmptyRegistry(t *testing.T) {
	r := NewRegistry()
	if got := r.Find(Filter{}); len(got) != 0 {
		t.Errorf("Find on empty registry returned %d devices, want none", len(got))
	}
}

func TestGetReturnsCopy(t *testing.T) {
	r := NewRegistry()
	mustAdd(t, r, newTestDevice("hue:1", "Lamp", withCaps(CapSwitch)))

	d, _ := r.Get("hue:1")
	d.Name = "Mutated"
	d.Capabilities[0] = CapLock

	fresh, _ := r.Get("hue:1")
	if fresh.Name != "Lamp" || fresh.Capabilities[0] != CapSwitch {
		t.Error("mutating a returned device leaked into the registry")
	}
}

func TestGetStats(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	mustAdd(t, r, newTestDevice("hue:1", "Lamp", inRoom("study")))
	mustAdd(t, r, newTestDevice("hue:2", "Strip", inRoom("study"), offline()))
	mustAdd(t, r, &Device{ID: "zigbee:x", Name: "Sensor", LastSeen: &now, Online: true})

	stats := r.GetStats()
	if stats.TotalDevices != 3 {
		t.Errorf("TotalDevices = %d, want 3", stats.TotalDevices)
	}
	if stats.Online != 2 {
		t.Errorf("Online = %d, want 2", stats.Online)
	}
	if stats.ByPlatform[PlatformHue] != 2 {
		t.Errorf("ByPlatform[hue] = %d, want 2", stats.ByPlatform[PlatformHue])
	}
	if stats.ByRoom["study"] != 2 {
		t.Errorf("ByRoom[study] = %d, want 2", stats.ByRoom["study"])
	}
}

func TestRegisterPlatform(t *testing.T) {
	if err := RegisterPlatform("aqara"); err != nil {
		t.Fatalf("RegisterPlatform: %v", err)
	}
	if !IsValidPlatform("aqara") {
		t.Error("aqara should be valid after registration")
	}

	for _, bad := range []Platform{"", "Has:Colon", "UPPER"} {
		if err := RegisterPlatform(bad); err == nil {
			t.Errorf("RegisterPlatform(%q) should fail", bad)
		}
	}
}
