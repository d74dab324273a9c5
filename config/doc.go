// Package config defines the process-wide configuration for the parley
// runtime: the primary model endpoint, turn limits and timeouts, and per-tool
// settings including delegation credentials.
//
// A Config is constructed once at startup (Load + Validate) and treated as
// immutable afterwards; components receive it by reference. Unrecognized keys
// in the file are ignored, but an enabled delegating tool missing its
// credentials or model is a startup error, not a call-time one.
package config
