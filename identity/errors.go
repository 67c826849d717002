package identity

import "errors"

var ErrEmptyPeerID = errors.New("peer ID is required")
