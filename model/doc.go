// Package model defines the provider-agnostic streaming completion contract
// used by the parley runtime.
//
// Core goals:
//   - Normalize streaming chat completion behind a single Provider interface
//   - Represent incremental output as explicit events (text delta, tool-call
//     argument fragment keyed by index, finish with reason)
//   - Classify transport, provider and protocol failures as distinct types
//   - Facilitate deterministic testing (ScriptedProvider)
//
// Providers (e.g. OpenAI-compatible, Anthropic) implement the Provider
// interface from this package so higher layers remain decoupled from vendor
// SDKs.
package model
