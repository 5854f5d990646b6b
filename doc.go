// Package goGuard is an account-security engine: TOTP two-factor
// authentication with single-use backup codes, a session registry, an
// append-only security event log and a rule-based risk analyzer.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build]. All state lives in the [store.Store]
// handed to the builder, so several processes can share one backend.
//
// # Architecture boundaries
//
// goGuard is the public surface. It exposes [Engine], [Builder], [Config] and
// value types (Session, SecurityEvent, RiskAssessment, etc.). Flow
// orchestration, record encoding and attempt limiting live under internal/
// and are never exported.
//
// # What this package must NOT do
//
//   - Return backup codes or secrets after BeginTwoFactorSetup.
//   - Let a security event write failure undo the operation that produced it.
//   - Import any sub-package that re-imports goGuard (no import cycles).
//
// # Concurrency contract
//
// Every read-modify-write on a two-factor record is conditional on the record
// version. A backup code therefore verifies at most once even when the same
// code is submitted concurrently from several processes.
package goGuard
