package rpc

import (
	"errors"
	"fmt"

	"github.com/adamgarcia4/goLearning/remotesvc/protocol"
	"github.com/adamgarcia4/goLearning/remotesvc/registry"
)

var (
	// ErrInvalidArgument rejects a malformed local call before anything is sent.
	ErrInvalidArgument = registry.ErrInvalidArgument
	// ErrUnknownService: the reference no longer resolves in the remote cache.
	ErrUnknownService = errors.New("unknown remote service")
	// ErrServiceNotFound: the owner no longer exports the service.
	ErrServiceNotFound = errors.New("service not found on remote peer")
	// ErrRemoteInvocation: the remote service failed while running.
	ErrRemoteInvocation = errors.New("remote invocation failed")
	// ErrTimeout: no response arrived before the call deadline.
	ErrTimeout = errors.New("remote call timed out")
	// ErrRemotePeerUnavailable: the owner left the group or could not be reached.
	ErrRemotePeerUnavailable = errors.New("remote peer unavailable")
	// ErrClosed: the local session was closed while the call was pending.
	ErrClosed = errors.New("session closed")
	// ErrPending is returned by Pending.Result before completion.
	ErrPending = errors.New("call still pending")
)

// FaultError is a fault reported by the remote peer in its Response.
type FaultError struct {
	Code    protocol.FaultCode
	Message string
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("remote fault %s: %s", e.Code, e.Message)
}

// Is maps fault codes onto the package sentinels.
func (e *FaultError) Is(target error) bool {
	switch e.Code {
	case protocol.FaultServiceNotFound:
		return target == ErrServiceNotFound
	case protocol.FaultInvocation:
		return target == ErrRemoteInvocation
	}
	return false
}

func faultError(f *protocol.Fault) error {
	return &FaultError{Code: f.Code, Message: f.Message}
}
