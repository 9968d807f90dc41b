// Package statecache keeps a read-through cache of device states between
// the API surface and the platform adapters.
//
// # Behaviour
//
// A Get within the TTL serves from memory; a stale or absent entry
// triggers a refresh through the platform registry. Concurrent gets of
// the same stale id share one refresh (single-flight): the first caller
// owns the fetch, followers wait on its outcome, and a follower's
// context cancels only its wait.
//
// The cache is bounded: past MaxEntries the least recently used entry is
// evicted. Fresh hits promote; peeks do not.
//
// # Event-driven freshness
//
// HandleEvent accepts the platform registry's event stream, so vendor
// push updates land in the cache without polling: state changes
// overwrite entries, device removals drop them. Command results can be
// folded in the same way via Put.
//
// # Consistency notes
//
// Clear orphans in-flight refreshes rather than cancelling them: owners
// still settle their waiters, but an orphaned result never repopulates
// the cache. Returned states are copies; callers can mutate them freely.
package statecache
