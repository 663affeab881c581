// Package storage defines the two key-value media the tab sync layer runs on
// and ships implementations for them.
//
// Shared is the per-origin persistent store every tab can read and write. It
// offers plain keys (Get/Set/Delete) for one-shot signal keys and hash keys
// (GetField/SetField/DeleteFields/Fields) for maps such as the session
// registry, where each tab owns exactly one field. Writing different fields of
// the same hash never conflicts, which is what lets tabs coordinate without
// locks. Every mutation is published on the Watch feed as a Change carrying
// the writer's origin (see WithOrigin), mirroring the storage-change events a
// browser delivers to sibling tabs.
//
// Local is the tab-local transient store. It is never shared.
//
// Implementations:
//
//   - MemoryShared: in-process, for tabs living in one process and for tests.
//   - BoltShared: bbolt file, durable across restarts on a single host.
//   - RedisShared: go-redis hashes plus a pub/sub change channel, for tabs
//     spread over processes or hosts.
//   - MemoryLocal: the tab-local store.
//
// Values are opaque bytes; callers store JSON.
package storage
