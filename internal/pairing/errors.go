package pairing

import "errors"

var (
	// ErrAlreadyActive is returned by StartPairing when a session
	// targeting a different address is already in progress.
	ErrAlreadyActive = errors.New("pairing: a session is already active")
	// ErrNoSystemKey is returned by StartPairing before SetSystemKey
	// has been called.
	ErrNoSystemKey = errors.New("pairing: no system key injected")
	// ErrRegistryFull would be returned by StartPairing if the backing
	// registry enforced a capacity limit; the in-memory registry this
	// engine is built against has none, so this is never produced
	// today and exists to keep the public error taxonomy complete.
	ErrRegistryFull = errors.New("pairing: registry is full")
	// ErrAuthRejected is the session-fatal error surfaced when a
	// peripheral answers with CmdErrorStatus/StatusAuthRejected.
	ErrAuthRejected = errors.New("pairing: peripheral rejected authentication")
	// ErrTimeout is the session-fatal error surfaced when the global
	// pairing deadline is exceeded. An elapsed inter-state wait does
	// not produce it: the engine re-sends its last outbound frame or
	// falls through to dialect B instead.
	ErrTimeout = errors.New("pairing: timed out")
	// ErrSendExhausted is surfaced when an outbound send stayed busy
	// past its retry budget.
	ErrSendExhausted = errors.New("pairing: radio stayed busy past the retry budget")
)
