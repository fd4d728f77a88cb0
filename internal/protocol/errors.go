package protocol

import "errors"

// Error taxonomy shared by every protocol package. Callers match with errors.Is;
// detail is attached with fmt.Errorf("%w: ...").
var (
	// Setup failures. Fatal: the handle faults and refuses further work.
	ErrInvalidConfiguration = errors.New("ucan: invalid configuration")
	ErrDuplicateID          = errors.New("ucan: duplicate id")

	// Steady-state failures. Local to the call that returned them.
	ErrUnknownID               = errors.New("ucan: unknown id")
	ErrUnknownSender           = errors.New("ucan: unknown sender")
	ErrUnexpectedHandshakeData = errors.New("ucan: unexpected handshake data")
	ErrTransmitFailure         = errors.New("ucan: transmit failure")

	// Lifecycle failures.
	ErrNotReady = errors.New("ucan: not ready")
	ErrFaulted  = errors.New("ucan: faulted")
)
