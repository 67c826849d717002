package rpc

import (
	"context"
	"sync"

	"github.com/adamgarcia4/goLearning/remotesvc/registry"
)

// Pending is the single-assignment result of one remote call.
type Pending struct {
	requestID uint64
	target    registry.Reference
	method    string

	once   sync.Once
	done   chan struct{}
	result any
	err    error
}

func newPending(requestID uint64, target registry.Reference, method string) *Pending {
	return &Pending{
		requestID: requestID,
		target:    target,
		method:    method,
		done:      make(chan struct{}),
	}
}

// RequestID returns the correlation identifier of the call.
func (p *Pending) RequestID() uint64 { return p.requestID }

// Target returns the reference the call was issued against.
func (p *Pending) Target() registry.Reference { return p.target }

// Method returns the invoked method name.
func (p *Pending) Method() string { return p.method }

// Done is closed once the call has completed.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the call completes or ctx is done. Giving up on ctx
// does not cancel the call; it still completes on response or deadline.
func (p *Pending) Wait(ctx context.Context) (any, error) {
	select {
	case <-p.done:
		return p.result, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the outcome without blocking, or ErrPending.
func (p *Pending) Result() (any, error) {
	select {
	case <-p.done:
		return p.result, p.err
	default:
		return nil, ErrPending
	}
}

// OnComplete runs fn in its own goroutine once the call completes.
func (p *Pending) OnComplete(fn func(result any, err error)) {
	go func() {
		<-p.done
		fn(p.result, p.err)
	}()
}

// complete assigns the outcome. Only the first call has an effect.
func (p *Pending) complete(result any, err error) bool {
	won := false
	p.once.Do(func() {
		p.result = result
		p.err = err
		close(p.done)
		won = true
	})
	return won
}
