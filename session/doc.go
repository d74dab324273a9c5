// Package session provides Store implementations for session metadata and
// message logs: a volatile in-memory store for tests and ephemeral runs, and
// a SQLite-backed store for durable single-node deployments.
package session
