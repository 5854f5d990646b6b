package goGuard

import "errors"

var (
	// ErrPersistence is an exported constant or variable used by the security engine.
	// Store failures are joined with it, so errors.Is matches both this and
	// the underlying store error.
	ErrPersistence = errors.New("persistence failure")
	// ErrNoPendingSetup is an exported constant or variable used by the security engine.
	ErrNoPendingSetup = errors.New("no pending two-factor setup")
	// ErrTwoFactorAlreadyEnabled is an exported constant or variable used by the security engine.
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor already enabled")
	// ErrTwoFactorRateLimited is an exported constant or variable used by the security engine.
	ErrTwoFactorRateLimited = errors.New("two-factor attempts rate limited")
	// ErrMethodNotSupported is an exported constant or variable used by the security engine.
	ErrMethodNotSupported = errors.New("two-factor method not supported")
	// ErrInvalidArgument is an exported constant or variable used by the security engine.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrSessionNotFound is an exported constant or variable used by the security engine.
	ErrSessionNotFound = errors.New("session not found")
	// ErrTwoFactorRecordCorrupt is returned when a stored two-factor secret
	// cannot be decoded. It is not a store failure and is not counted as one.
	ErrTwoFactorRecordCorrupt = errors.New("two-factor record corrupt")
	// ErrEngineNotReady is an exported constant or variable used by the security engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
