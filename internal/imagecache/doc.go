// Package imagecache remembers version image lookups between runs.
//
// A Cache holds version identifier to image URL mappings in memory and
// persists them through an injectable Store. FileStore writes a JSON side file
// atomically; MemoryStore keeps entries in process for tests. Nothing here is
// global: callers construct a Cache and hand it to the orchestrator.
package imagecache
