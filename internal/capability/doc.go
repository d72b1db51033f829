// Package capability defines the client-side encryption capability and owns
// its initialization lifecycle.
//
// # Overview
//
// A Provider produces a Capability in two stages: InitSDK reports whether
// the provider's runtime is usable, and CreateInstance binds it to a
// network. A Capability hands out InputBuilders scoped to a contract and a
// user; a builder collects 32-bit values and encrypts them into opaque
// handles plus an input proof.
//
// # Lifecycle
//
// Lifecycle runs the two stages, each raced against its own timeout:
//
//	uninitialized --Initialize--> initializing --ok--> ready
//	                              initializing --err--> failed --Initialize--> initializing
//
// Once ready, Initialize returns the cached capability. Callers arriving
// while an attempt is running join it. Reset returns to uninitialized and
// discards any in-flight attempt. Retries are never automatic.
package capability
