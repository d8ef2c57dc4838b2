package core

import "errors"

// UnknownName is reported for identities that are no longer registered.
const UnknownName = "Unknown"

// Client-facing error texts.
const (
	ErrMsgAuthRequired = "First message must be authentication"
	ErrMsgInvalidJSON  = "Invalid JSON format"
)

var (
	// ErrProtocolViolation ends a session that never authenticated properly.
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrSessionPanic is returned when handling a session panicked.
	ErrSessionPanic = errors.New("session panic")
)
