package domain

import "errors"

// Error taxonomy. Everything here is recoverable by the caller;
// collaborator hiccups are logged and retried next tick, never returned
// through these.
var (
	// ErrInvalidDuration rejects session durations outside [1m, 8h].
	ErrInvalidDuration = errors.New("session duration out of range")

	// ErrAlreadyRunning rejects starting a session while one is running.
	ErrAlreadyRunning = errors.New("a focus session is already running")

	// ErrNoSession rejects stop/override when the machine is idle.
	ErrNoSession = errors.New("no active focus session")

	// ErrLocked rejects operations blocked by an active hardcore session.
	// Recoverable only through a credential override.
	ErrLocked = errors.New("blocked by hardcore mode")

	// ErrUnauthorized rejects an override with a wrong or missing credential.
	ErrUnauthorized = errors.New("credential rejected")

	// ErrInvalidSecret rejects master secrets shorter than 4 characters.
	ErrInvalidSecret = errors.New("secret must be at least 4 characters")

	// ErrEmptyCredential rejects an empty verification candidate outright.
	ErrEmptyCredential = errors.New("empty credential")

	// ErrInvalidConfig rejects phase configurations with non-positive
	// durations or a long-break interval below 1.
	ErrInvalidConfig = errors.New("invalid phase configuration")
)
