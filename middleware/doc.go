// Package middleware adapts goGuard to net/http.
//
// # Middleware
//
//   - [ClientContext] copies the caller's IP and User-Agent into the request
//     context, where the engine picks them up for sessions and events.
//   - [RequireBearer] verifies the bearer access token and stores the
//     authenticated [Principal] in the context.
//   - [RequireActiveSession] additionally rejects tokens whose session was
//     terminated, at the cost of one store read per request.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into engine calls. Token
// verification is delegated to a [TokenVerifier] (normally *jwt.Manager) and
// session liveness to a [SessionLookup] (normally *goGuard.Engine).
//
// # What this package must NOT do
//
//   - Issue tokens; the outer login flow owns issuance.
//   - Record security events; the engine does that for the operations it runs.
package middleware
