package session

import "errors"

var (
	ErrNoTransport   = errors.New("session has no transport")
	ErrSelfEcho      = errors.New("snapshot is our own")
	ErrOwnerMismatch = errors.New("snapshot owner does not match sender")
)
