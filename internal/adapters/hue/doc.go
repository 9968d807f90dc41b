// Package hue integrates Philips Hue bridges over the CLIP v1 REST API.
//
// # Architecture
//
//	┌────────────┐   HTTP GET/PUT    ┌──────────────┐
//	│ hue.Adapter├──────────────────►│  Hue Bridge  │
//	│            │◄──────────────────┤  (CLIP v1)   │
//	└─────┬──────┘    JSON bodies    └──────────────┘
//	      │ platform.Event (synthesised on command success)
//	      ▼
//	platform.Registry
//
// # Mapping
//
// Lights map to unified devices with capabilities derived from the CLIP
// light type ("Extended color light" → switch, dimmer, color_control,
// color_temperature). Brightness is rescaled from the bridge's 1-254
// range to percent, and colour temperature between mireds and kelvin.
// Groups of type Room or Zone surface as rooms; bridge scenes surface as
// scenes and are recalled through group 0.
//
// # Faults
//
// Transport failures, HTTP statuses, and CLIP in-body error envelopes
// all land in the platform fault taxonomy: 401/403 → authentication,
// 404 → device_not_found, 429 → rate_limit with the Retry-After hint,
// 5xx → network, CLIP type 201 (device off) → device_offline.
//
// # Events
//
// CLIP v1 offers no push channel. The adapter publishes a state_change
// event after each successful command so caches stay warm; periodic
// freshness otherwise comes from the state cache's TTL-driven refresh.
package hue
