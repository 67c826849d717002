package transport

import "errors"

var (
	ErrUnknownPeer    = errors.New("peer is not a group member")
	ErrNotJoined      = errors.New("endpoint has not joined the group")
	ErrAlreadyJoined  = errors.New("peer already joined the group")
	ErrInvalidAddress = errors.New("invalid address")
	ErrStopped        = errors.New("transport stopped")
)
