// Package cartsync implements the offline-first synchronization engine for
// a grocery-list service. It keeps a durable queue of not-yet-confirmed
// mutations, a persistent mirror of server entities for offline reads, and
// an optimistic reconciler that patches the local view immediately and
// converges it with the server once connectivity returns.
//
// The engine is constructed explicitly and injected into consumers; there
// is no package-level singleton. Storage backends (bbolt, SQLite, memory)
// and the HTTP transport are pluggable through small interfaces.
package cartsync
