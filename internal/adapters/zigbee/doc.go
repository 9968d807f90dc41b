// Package zigbee integrates Zigbee devices through a zigbee2mqtt bridge.
//
// # Architecture
//
//	┌──────────────┐  <base>/bridge/devices (retained)  ┌─────────────┐
//	│              │◄───────────────────────────────────┤             │
//	│ zigbee.      │  <base>/<friendly> state reports   │ zigbee2mqtt │
//	│ Adapter      │◄───────────────────────────────────┤   bridge    │
//	│              │  <base>/<friendly>/set commands    │             │
//	│              ├───────────────────────────────────►│             │
//	└──────┬───────┘                                    └─────────────┘
//	       │ platform.Event (state_change / device_added / device_removed)
//	       ▼
//	platform.Registry
//
// # Discovery
//
// The bridge publishes its full device inventory retained on
// <base>/bridge/devices, so a fresh subscription receives it immediately.
// Each inventory message replaces the previous one; the adapter diffs the
// two and emits added/removed events. Capabilities derive from the
// device definition's exposes tree (brightness → dimmer, occupancy →
// motion_sensor, and so on).
//
// # State
//
// Device state arrives as reports on <base>/<friendly-name> and is
// mirrored in memory. Reads answer from the mirror; explicit refreshes
// publish a /get request and wait for the resulting report. Commands
// publish to /set and likewise wait for the bridge's post-command state
// report, which is the authoritative outcome.
//
// # Availability
//
// Bridge liveness comes from <base>/bridge/state, per-device liveness
// from <base>/<friendly-name>/availability. Both feed the adapter's
// health report.
package zigbee
