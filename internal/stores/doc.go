// Package stores maps goGuard's three entities onto the store.Store document
// contract: two-factor setups keyed by user id, sessions keyed by session id,
// and security events keyed by event id.
//
// # Design
//
// Each repository converts between a typed record and a flat store.Record.
// Timestamps are Unix milliseconds. Mutations that must not race use
// conditional updates: two-factor records carry a version that every write
// compares and bumps, and session transitions are guarded on the active flag.
//
// # Architecture boundaries
//
// This package owns encoding and concurrency guards for persisted records. It
// does NOT verify codes, emit events, or decide outcomes; those belong to the
// flow functions in internal/flows.
//
// # What this package must NOT do
//
//   - Import goGuard or internal/flows.
//   - Persist raw backup codes.
package stores
