// Package device provides the unified Device Registry for Unify Core.
//
// The registry is the authoritative in-memory catalogue of every device
// known across all connected vendor platforms. Devices are addressed by a
// universal id of the form "<platform>:<platform-local-id>" (split on the
// first colon only, so local ids may themselves contain colons) and carry
// a de-duplicated list of canonical capabilities.
//
// # Key Types
//
//   - Device: the unified device model shared by every adapter
//   - Platform: a registered vendor platform ("hue", "smartthings", ...)
//   - Capability: the canonical, platform-agnostic capability vocabulary
//   - Filter: conjunctive query over room, capability, platform, online, name
//   - Match: the result of a natural-language Resolve query
//
// # Indexing
//
// Alongside the primary id→device map the registry keeps secondary indexes
// by room, capability, platform, and online flag. Index maintenance happens
// in the same critical section as primary-map mutation, so queries never
// observe a device in one structure and not the other. Empty index buckets
// are pruned: a room loses its entry the moment its last device is removed.
//
// # Resolution
//
// Resolve answers free-form queries in three tiers: exact id, exact
// case-insensitive name or alias, then fuzzy matching by normalized edit
// distance with an acceptance threshold. Single-character typos in a device
// name still resolve; unrelated strings return ErrNoMatch.
//
// # Persistence
//
// Save/Load serialize the full device list as ordered, indented JSON.
// Load is destructive and rebuilds every secondary index before returning.
//
// # Usage
//
//	registry := device.NewRegistry()
//	registry.SetLogger(log)
//
//	err := registry.Add(&device.Device{
//	    ID:           "hue:7",
//	    Name:         "Living Room Light",
//	    Room:         ptr("living-room"),
//	    Capabilities: []device.Capability{device.CapSwitch, device.CapDimmer},
//	})
//
//	match, err := registry.Resolve("living room light")
package device
