package rpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/adamgarcia4/goLearning/remotesvc/identity"
	"github.com/adamgarcia4/goLearning/remotesvc/protocol"
	"github.com/adamgarcia4/goLearning/remotesvc/registry"
)

// DefaultCallTimeout applies when Invoke is given a non-positive timeout.
const DefaultCallTimeout = 30 * time.Second

// Resolver looks a reference up in the remote registry cache.
type Resolver interface {
	Resolve(ref registry.Reference) (registry.ServiceRegistration, bool)
}

// RequestSender delivers a Request to the peer that owns the service.
type RequestSender interface {
	SendRequest(ctx context.Context, to identity.PeerID, req *protocol.Request) error
}

// CorrelatorConfig tunes a Correlator.
type CorrelatorConfig struct {
	DefaultTimeout time.Duration
	Logger         zerolog.Logger
}

type inflight struct {
	pending  *Pending
	deadline time.Time
	timer    *time.Timer
}

// Correlator issues Requests and matches Responses to waiting calls.
//
// The in-flight table has its own mutex. Whoever removes an entry first
// (response, deadline, peer departure or Close) completes the call; every
// later attempt for the same RequestID is a no-op.
type Correlator struct {
	local    identity.PeerID
	resolver Resolver
	sender   RequestSender
	timeout  time.Duration
	log      zerolog.Logger

	mu     sync.Mutex
	nextID uint64
	calls  map[uint64]*inflight
	closed bool
}

// NewCorrelator creates a correlator for calls originating at local.
func NewCorrelator(local identity.PeerID, resolver Resolver, sender RequestSender, cfg CorrelatorConfig) *Correlator {
	timeout := cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Correlator{
		local:    local,
		resolver: resolver,
		sender:   sender,
		timeout:  timeout,
		log:      cfg.Logger.With().Str("component", "correlator").Logger(),
		nextID:   1,
		calls:    make(map[uint64]*inflight),
	}
}

// Invoke sends method(params) to the service behind ref.
//
// Invalid arguments and unresolvable references fail synchronously. Every
// other outcome, including a failed send, is delivered through the
// returned Pending.
func (c *Correlator) Invoke(ctx context.Context, ref registry.Reference, method string, params []any, timeout time.Duration) (*Pending, error) {
	if method == "" {
		return nil, fmt.Errorf("%w: method name is empty", ErrInvalidArgument)
	}
	if _, ok := c.resolver.Resolve(ref); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, ref)
	}
	if timeout <= 0 {
		timeout = c.timeout
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	id := c.nextID
	c.nextID++
	pending := newPending(id, ref, method)
	call := &inflight{pending: pending, deadline: time.Now().Add(timeout)}
	c.calls[id] = call
	call.timer = time.AfterFunc(timeout, func() { c.expire(id) })
	c.mu.Unlock()

	req := &protocol.Request{
		RequestID:  id,
		Originator: c.local,
		ServiceID:  ref.ServiceID,
		Method:     method,
		Params:     params,
		Timeout:    timeout,
	}

	sendCtx, cancel := context.WithDeadline(ctx, call.deadline)
	defer cancel()
	if err := c.sender.SendRequest(sendCtx, ref.Owner, req); err != nil {
		c.log.Warn().Err(err).Uint64("request_id", id).Str("target", ref.String()).Msg("request send failed")
		if ctxErr := ctx.Err(); ctxErr != nil {
			c.complete(id, nil, ctxErr)
		} else {
			c.complete(id, nil, fmt.Errorf("%w: %v", ErrRemotePeerUnavailable, err))
		}
		return pending, nil
	}

	c.log.Debug().Uint64("request_id", id).Str("target", ref.String()).Str("method", method).Msg("request sent")
	return pending, nil
}

// OnResponse completes the call awaiting resp. Responses for unknown or
// already completed calls, or from a peer other than the call's target,
// are discarded and reported as false.
func (c *Correlator) OnResponse(from identity.PeerID, resp *protocol.Response) bool {
	c.mu.Lock()
	call, ok := c.calls[resp.RequestID]
	if !ok {
		c.mu.Unlock()
		c.log.Debug().Uint64("request_id", resp.RequestID).Str("from", from.String()).Msg("discarding stray response")
		return false
	}
	if owner := call.pending.target.Owner; owner != from {
		c.mu.Unlock()
		c.log.Warn().Uint64("request_id", resp.RequestID).Str("from", from.String()).
			Str("expected", owner.String()).Msg("discarding response from wrong peer")
		return false
	}
	delete(c.calls, resp.RequestID)
	c.mu.Unlock()

	call.timer.Stop()
	if resp.Fault != nil {
		return call.pending.complete(nil, faultError(resp.Fault))
	}
	return call.pending.complete(resp.Result, nil)
}

// OnPeerLeft fails every call whose target belongs to peer and returns
// how many were failed.
func (c *Correlator) OnPeerLeft(peer identity.PeerID) int {
	c.mu.Lock()
	var lost []*inflight
	for id, call := range c.calls {
		if call.pending.target.Owner == peer {
			lost = append(lost, call)
			delete(c.calls, id)
		}
	}
	c.mu.Unlock()

	for _, call := range lost {
		call.timer.Stop()
		call.pending.complete(nil, fmt.Errorf("%w: %s left the group", ErrRemotePeerUnavailable, peer))
	}
	return len(lost)
}

// InFlight returns the number of calls awaiting completion.
func (c *Correlator) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// Close fails every outstanding call with ErrClosed and rejects new ones.
func (c *Correlator) Close() {
	c.mu.Lock()
	c.closed = true
	calls := c.calls
	c.calls = make(map[uint64]*inflight)
	c.mu.Unlock()

	for _, call := range calls {
		call.timer.Stop()
		call.pending.complete(nil, ErrClosed)
	}
}

func (c *Correlator) expire(id uint64) {
	if c.complete(id, nil, fmt.Errorf("%w: request %d", ErrTimeout, id)) {
		c.log.Debug().Uint64("request_id", id).Msg("request timed out")
	}
}

func (c *Correlator) complete(id uint64, result any, err error) bool {
	c.mu.Lock()
	call, ok := c.calls[id]
	if !ok {
		c.mu.Unlock()
		return false
	}
	delete(c.calls, id)
	c.mu.Unlock()

	call.timer.Stop()
	return call.pending.complete(result, err)
}
