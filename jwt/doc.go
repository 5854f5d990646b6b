// Package jwt issues and verifies the short-lived bearer tokens that
// authenticate callers of the HTTP surface. A token carries the user id
// (uid) and the session id (sid) minted by the outer login flow; it grants
// no permissions on its own.
//
// Both ed25519 and HS256 are supported. Verification pins the algorithm,
// requires exp, and supports key rotation through a kid-indexed key set.
package jwt
