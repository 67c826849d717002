package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/adamgarcia4/goLearning/remotesvc/identity"
	"github.com/adamgarcia4/goLearning/remotesvc/protocol"
	"github.com/adamgarcia4/goLearning/remotesvc/registry"
)

const (
	DefaultWorkers     = 64
	DefaultSendTimeout = 10 * time.Second
)

// Locator finds a locally exported service by ID.
type Locator interface {
	FindByID(serviceID uint64) (registry.ServiceRegistration, registry.Service, bool)
}

// ResponseSender delivers a Response back to the originating peer.
type ResponseSender interface {
	SendResponse(ctx context.Context, to identity.PeerID, resp *protocol.Response) error
}

// DispatcherConfig tunes a Dispatcher.
type DispatcherConfig struct {
	// Workers bounds the number of service invocations running at once.
	Workers     int
	SendTimeout time.Duration
	Logger      zerolog.Logger
}

// Dispatcher runs inbound Requests against the local registry and answers
// each with exactly one Response.
type Dispatcher struct {
	locator     Locator
	sender      ResponseSender
	sendTimeout time.Duration
	log         zerolog.Logger

	sem    chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewDispatcher creates a dispatcher serving services found by locator.
func NewDispatcher(locator Locator, sender ResponseSender, cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		locator:     locator,
		sender:      sender,
		sendTimeout: cfg.SendTimeout,
		log:         cfg.Logger.With().Str("component", "dispatcher").Logger(),
		sem:         make(chan struct{}, cfg.Workers),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// OnRequest hands req to a worker and returns immediately. It reports
// false when the dispatcher is closed and the request was dropped.
func (d *Dispatcher) OnRequest(from identity.PeerID, req *protocol.Request) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.wg.Add(1)
	d.mu.Unlock()

	if from != req.Originator {
		d.log.Debug().Str("from", from.String()).Str("originator", req.Originator.String()).
			Uint64("request_id", req.RequestID).Msg("request relayed by another peer")
	}

	go d.serve(req)
	return true
}

// Close cancels running invocations and waits for their responses.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
}

func (d *Dispatcher) serve(req *protocol.Request) {
	defer d.wg.Done()

	select {
	case d.sem <- struct{}{}:
		defer func() { <-d.sem }()
		d.respond(req, d.execute(req))
	case <-d.ctx.Done():
		d.respond(req, &protocol.Response{
			RequestID: req.RequestID,
			Fault:     protocol.NewFault(protocol.FaultInvocation, errors.New("peer is shutting down")),
		})
	}
}

func (d *Dispatcher) execute(req *protocol.Request) *protocol.Response {
	_, service, ok := d.locator.FindByID(req.ServiceID)
	if !ok {
		return &protocol.Response{
			RequestID: req.RequestID,
			Fault: &protocol.Fault{
				Code:    protocol.FaultServiceNotFound,
				Message: fmt.Sprintf("service %d is not exported", req.ServiceID),
			},
		}
	}

	ctx := d.ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	result, err := invoke(ctx, service, req)
	if err != nil {
		d.log.Debug().Err(err).Uint64("request_id", req.RequestID).Uint64("service_id", req.ServiceID).
			Str("method", req.Method).Msg("service invocation failed")
		return &protocol.Response{
			RequestID: req.RequestID,
			Fault:     protocol.NewFault(protocol.FaultInvocation, err),
		}
	}
	return &protocol.Response{RequestID: req.RequestID, Result: result}
}

func invoke(ctx context.Context, service registry.Service, req *protocol.Request) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("service panicked: %v", r)
		}
	}()
	return service.Invoke(ctx, req.Method, req.Params)
}

func (d *Dispatcher) respond(req *protocol.Request, resp *protocol.Response) {
	ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
	defer cancel()

	err := d.sender.SendResponse(ctx, req.Originator, resp)
	if errors.Is(err, protocol.ErrUnencodable) && resp.Fault == nil {
		resp = &protocol.Response{
			RequestID: req.RequestID,
			Fault:     protocol.NewFault(protocol.FaultInvocation, err),
		}
		err = d.sender.SendResponse(ctx, req.Originator, resp)
	}
	if err != nil {
		d.log.Warn().Err(err).Uint64("request_id", req.RequestID).Str("to", req.Originator.String()).
			Msg("response send failed")
	}
}
