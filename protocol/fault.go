package protocol

import "fmt"

// FaultCode classifies a failure reported by the receiving peer.
type FaultCode string

const (
	// FaultServiceNotFound: the target ServiceID is not in the receiver's
	// local registry, usually because the caller's cache is stale.
	FaultServiceNotFound FaultCode = "service-not-found"
	// FaultInvocation: the service returned an error or panicked.
	FaultInvocation FaultCode = "invocation-failed"
)

// Fault is the failure payload of a Response. Only the code and a
// human-readable message cross the wire; error types do not.
type Fault struct {
	Code    FaultCode `cbor:"code"`
	Message string    `cbor:"msg"`
}

func (f *Fault) String() string {
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// NewFault builds a fault from an error.
func NewFault(code FaultCode, err error) *Fault {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &Fault{Code: code, Message: msg}
}
