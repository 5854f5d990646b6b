// Package limiters throttles failed two-factor attempts per user.
//
// # Limiters
//
//   - [AttemptLimiter]: Redis fixed window, shared across processes.
//   - [LocalLimiter]: in-process token bucket (golang.org/x/time/rate) for
//     single-process deployments without Redis.
//
// Both satisfy [Limiter]. Check reports whether another attempt is allowed,
// RecordFailure counts a failed attempt, and Reset clears the counter after a
// success. All limiters are nil-safe: a nil receiver allows everything.
//
// # What this package must NOT do
//
//   - Import goGuard or any sibling internal package.
//   - Make policy decisions beyond counting. Flow functions decide consequences.
package limiters
