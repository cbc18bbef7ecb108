// Package prefs is the host preference store: small string values, keyed
// by dotted names, that persist outside process memory.
//
// Three backends are provided. [MemoryStore] lives only as long as the
// process and is meant for tests. [FileStore] keeps a single TOML document
// and replaces it atomically on every write. [BadgerStore] keeps each
// preference as a key in an embedded badger database.
//
// Absence is a normal state: Get returns [ErrNotFound], and the typed
// helpers report ok=false. A value that does not parse as the requested
// type is also reported as absent, so callers recompute rather than act on
// garbage.
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
package prefs
