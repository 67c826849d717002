package node

import "errors"

var (
	ErrPeerIDRequired    = errors.New("peer ID is required")
	ErrGroupRequired     = errors.New("group is required")
	ErrAddressRequired   = errors.New("address is required")
	ErrPortRequired      = errors.New("port is required")
	ErrInvalidTimeout    = errors.New("timeouts must be positive")
	ErrInvalidWorkers    = errors.New("workers must be positive")
	ErrInvalidLogLevel   = errors.New("unknown log level")
	ErrAlreadyStarted    = errors.New("node already started")
	ErrNotStarted        = errors.New("node not started")
	ErrStopped           = errors.New("node stopped")
	ErrBadArgument       = errors.New("bad argument")
	ErrInterfaceNotFound = errors.New("no peer exports the interface")
)
