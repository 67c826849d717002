package identity

import (
	"strings"

	"github.com/google/uuid"
)

/*
PeerID:

	Opaque identity of a peer in a group session.
	Must never change during the peer's lifetime.
	Remains unique group-wide.
	Compared by value; the zero value is never a valid peer.
	Examples: "peer-6f1c...", "node-1"
*/
type PeerID string

// New returns a fresh random peer identity.
func New() PeerID {
	return PeerID("peer-" + uuid.NewString())
}

// Parse trims raw and rejects the empty identity.
func Parse(raw string) (PeerID, error) {
	id := PeerID(strings.TrimSpace(raw))
	if !id.Valid() {
		return "", ErrEmptyPeerID
	}
	return id, nil
}

// Valid reports whether the identity is usable on the wire.
func (p PeerID) Valid() bool {
	return strings.TrimSpace(string(p)) != ""
}

func (p PeerID) String() string {
	return string(p)
}

// Provider supplies the identity of the local peer.
type Provider interface {
	LocalID() PeerID
}
