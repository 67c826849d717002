package protocol

import "errors"

var (
	ErrUnknownKind = errors.New("unknown message kind")
	ErrNilMessage  = errors.New("message is nil")
	ErrMissingPeer = errors.New("envelope has no sender")
	ErrMalformed   = errors.New("malformed message")
	ErrUnencodable = errors.New("message is not encodable")
)
