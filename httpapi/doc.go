// Package httpapi exposes the goGuard engine over HTTP.
//
// Every route except /healthz requires a bearer access token whose uid and
// sid claims identify the caller and the caller's current session. Responses
// use a {"data": ...} envelope on success and {"error": "..."} otherwise.
//
// Engine errors map to status codes as follows:
//
//	ErrPersistence, ErrEngineNotReady        503
//	ErrNoPendingSetup, ErrTwoFactorAlreadyEnabled 409
//	ErrTwoFactorRateLimited                  429
//	ErrMethodNotSupported                    422
//	ErrInvalidArgument, malformed input      400
//	ErrSessionNotFound, foreign session      404
//
// A rejected code is not an error: verify, enable and disable answer 200
// with a false flag.
package httpapi
