// Package flows contains the orchestrators behind every Engine operation.
//
// Each flow function (RunEnableTwoFactor, RunCreateSession, RunAssessRisk,
// etc.) accepts a typed dependency struct of closures and returns results
// without side-effects beyond those dependencies.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the record repositories, the TOTP
// verifier, the attempt limiter, the event recorder and metrics. They do NOT
// own any of these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goGuard (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency closures.
package flows
