// Package logging provides a minimal logging interface and adapters for parley.
//
// The Logger interface defines the standard logging methods (Debug, Info,
// Warn, Error) that the runtime uses for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//   - RuntimeLogger with contextual helpers (component, session, turn)
//
// The design intentionally keeps the interface minimal so any structured
// logger can be plugged in.
package logging
