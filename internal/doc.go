// Package internal contains helpers that are private to goGuard: identifier
// generation for sessions and security events, and user-agent parsing for
// device descriptors.
//
// # Sub-packages
//
//   - flows: pure-function orchestrators for every Engine operation
//   - limiters: two-factor attempt limiters (Redis fixed window, in-process token bucket)
//   - risk: deterministic suspicious-activity rule evaluation
//   - stores: typed repositories over the store.Store document contract
//
// # What this package must NOT do
//
//   - Export types that appear in the public goGuard API.
//   - Be imported by any package outside the goGuard module.
package internal
