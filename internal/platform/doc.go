// Package platform defines the adapter contract for vendor integrations
// and the registry that owns the active adapter set.
//
// # Architecture
//
//	┌────────────────────────────────────────────────┐
//	│                   Registry                     │
//	│  slots: platform → adapter (lifecycle-gated)   │
//	│  routes: device id → adapter (lookup cache)    │
//	│  bus: re-published adapter events              │
//	└───────┬───────────────┬────────────────┬───────┘
//	        │               │                │
//	   hue adapter    zigbee adapter   smartthings adapter
//
// Every vendor integration implements the Adapter interface: lifecycle,
// discovery, state, commands, capability mapping, organization, scenes,
// and an event stream. The Registry is the single dispatch point; callers
// never hold adapter references directly.
//
// # Slot Lifecycle
//
// Each platform occupies one slot. Registration moves the slot through
// unregistered → registering → initialized; unregistering disposes the
// adapter and frees the slot. Duplicate and concurrent registrations for
// the same slot fail fast with configuration faults. Adapter Initialize
// runs outside the registry lock so a slow vendor handshake never blocks
// dispatch on other platforms.
//
// # Routing
//
// Device ids are universal ("<platform>:<local-id>"), so the owning
// adapter is derivable from the id alone. With the routing cache enabled
// lookups are a map hit; misses parse the id and backfill the cache.
// Device-removed events and platform unregistration invalidate entries.
//
// # Faults
//
// Adapters and the registry report failures as *Error values with a
// stable code, severity, and retryability. Transient codes (network,
// timeout, device_offline, rate_limit) are retried by the command
// executor; fatal and permanent codes are surfaced immediately.
// Rate-limit faults may carry a server-provided RetryAfter hint.
//
// # Aggregates
//
// ListAllDevices, HealthCheck, and ExecuteBatch span every initialized
// adapter. By default they degrade gracefully: a failing adapter is
// reported on a side channel and the rest of the fleet still answers.
// Options.FailFast flips this to abort-on-first-error.
package platform
