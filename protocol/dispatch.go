package protocol

import (
	"fmt"

	"github.com/adamgarcia4/goLearning/remotesvc/identity"
)

// Handler receives each message variant from a peer.
type Handler interface {
	OnRegistrySnapshot(from identity.PeerID, msg *RegistrySnapshot)
	OnRequest(from identity.PeerID, msg *Request)
	OnResponse(from identity.PeerID, msg *Response)
}

// Dispatch routes msg to the matching Handler method.
func Dispatch(from identity.PeerID, msg Message, h Handler) error {
	switch m := msg.(type) {
	case *RegistrySnapshot:
		h.OnRegistrySnapshot(from, m)
	case *Request:
		h.OnRequest(from, m)
	case *Response:
		h.OnResponse(from, m)
	case nil:
		return ErrNilMessage
	default:
		return fmt.Errorf("%w: %T", ErrUnknownKind, msg)
	}
	return nil
}
