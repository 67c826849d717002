package protocol

import (
	"time"

	"github.com/adamgarcia4/goLearning/remotesvc/identity"
	"github.com/adamgarcia4/goLearning/remotesvc/registry"
)

/*
Wire Protocol

Peers exchange exactly three message variants over the group channel:

	RegistrySnapshot - the sender's full local registry, broadcast on join
	                   and after every local registry change
	Request          - one remote call, addressed to the owner of ServiceID
	Response         - the outcome of one Request, addressed to Originator

The set is closed: Message can only be implemented inside this package,
and Dispatch switches over every variant.
*/

// Kind tags a message variant on the wire.
type Kind uint8

const (
	KindRegistrySnapshot Kind = iota + 1
	KindRequest
	KindResponse
)

func (k Kind) String() string {
	switch k {
	case KindRegistrySnapshot:
		return "registry-snapshot"
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	default:
		return "unknown"
	}
}

// Message is one of *RegistrySnapshot, *Request or *Response.
type Message interface {
	Kind() Kind
	sealed()
}

// RegistrySnapshot announces the sender's complete local registry.
type RegistrySnapshot struct {
	Snapshot registry.Snapshot `cbor:"snapshot"`
}

func (*RegistrySnapshot) Kind() Kind { return KindRegistrySnapshot }
func (*RegistrySnapshot) sealed()    {}

// Request asks the owner of ServiceID to run Method with Params.
type Request struct {
	RequestID  uint64          `cbor:"rid"`
	Originator identity.PeerID `cbor:"from"`
	ServiceID  uint64          `cbor:"sid"`
	Method     string          `cbor:"method"`
	Params     []any           `cbor:"params,omitempty"`
	Timeout    time.Duration   `cbor:"timeout,omitempty"`
}

func (*Request) Kind() Kind { return KindRequest }
func (*Request) sealed()    {}

// Response carries either Result or Fault for RequestID.
type Response struct {
	RequestID uint64 `cbor:"rid"`
	Result    any    `cbor:"result"`
	Fault     *Fault `cbor:"fault,omitempty"`
}

func (*Response) Kind() Kind { return KindResponse }
func (*Response) sealed()    {}

// Failed reports whether the response carries a fault.
func (r *Response) Failed() bool {
	return r.Fault != nil
}
