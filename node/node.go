package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/adamgarcia4/goLearning/remotesvc/identity"
	"github.com/adamgarcia4/goLearning/remotesvc/logger"
	"github.com/adamgarcia4/goLearning/remotesvc/registry"
	"github.com/adamgarcia4/goLearning/remotesvc/rpc"
	"github.com/adamgarcia4/goLearning/remotesvc/session"
	"github.com/adamgarcia4/goLearning/remotesvc/transport"
)

// groupTransport is what a Node needs from either transport.
type groupTransport interface {
	session.Transport
	start(ctx context.Context, in session.Inbound) error
	stop(ctx context.Context) error
	addr() string
	members() []identity.PeerID
}

// Node is one peer process: a session on top of a group transport.
type Node struct {
	config    *Config
	session   *session.Session
	transport groupTransport
	log       zerolog.Logger

	echo *registry.Registration

	// Lifecycle management
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.RWMutex
	started bool
	stopped bool
}

// New creates a node that talks to its group over gRPC.
func New(config *Config) (*Node, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log := logger.With("node").With().Str("peer", config.PeerID.String()).Logger()
	g, err := transport.NewGRPC(transport.GRPCConfig{
		PeerID:      config.PeerID,
		Group:       config.Group,
		ListenAddr:  config.GetAddress(),
		Seeds:       config.Seeds,
		DialTimeout: config.BroadcastTimeout,
		Logger:      log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC transport: %w", err)
	}
	return newNode(config, grpcTransport{g}, log)
}

// NewInMemory creates a node that joins hub instead of the network.
func NewInMemory(config *Config, hub *transport.Hub) (*Node, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if hub == nil {
		return nil, fmt.Errorf("hub is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log := logger.With("node").With().Str("peer", config.PeerID.String()).Logger()
	return newNode(config, hubTransport{hub.Endpoint(config.PeerID)}, log)
}

func newNode(config *Config, tr groupTransport, log zerolog.Logger) (*Node, error) {
	s, err := session.New(config.PeerID, tr, session.Config{
		DefaultTimeout:   config.DefaultTimeout,
		Workers:          config.Workers,
		BroadcastTimeout: config.BroadcastTimeout,
		Logger:           log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Node{
		config:    config,
		session:   s,
		transport: tr,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start joins the group and, if configured, exports the echo service.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.started {
		return ErrAlreadyStarted
	}
	if n.stopped {
		return ErrStopped
	}
	if err := n.transport.start(n.ctx, n.session); err != nil {
		return fmt.Errorf("failed to join group: %w", err)
	}
	n.started = true

	if n.config.ExportEcho {
		reg, err := n.session.Register([]string{EchoInterface}, EchoService(), registry.Properties{"builtin": true})
		if err != nil {
			return fmt.Errorf("failed to export echo: %w", err)
		}
		n.echo = reg
	}

	n.log.Info().Str("addr", n.transport.addr()).Str("group", n.config.Group).Msg("node started")
	return nil
}

// Stop leaves the group and closes the session. Pending calls fail with
// rpc.ErrClosed.
func (n *Node) Stop() error {
	n.mu.Lock()
	if !n.started {
		n.mu.Unlock()
		return nil
	}
	n.started = false
	n.stopped = true
	n.cancel()
	n.mu.Unlock()

	n.log.Info().Msg("stopping node")
	n.session.Close()

	ctx, cancel := context.WithTimeout(context.Background(), n.config.BroadcastTimeout)
	defer cancel()
	if err := n.transport.stop(ctx); err != nil {
		n.log.Error().Err(err).Msg("error leaving group")
		return err
	}

	n.log.Info().Msg("node stopped")
	return nil
}

// ID returns the node's peer identity.
func (n *Node) ID() identity.PeerID {
	return n.config.PeerID
}

// Addr returns the address other peers reach this node at.
func (n *Node) Addr() string {
	return n.transport.addr()
}

// Members returns the group members this node knows of, itself included.
func (n *Node) Members() []identity.PeerID {
	return n.transport.members()
}

// Session returns the node's session (for external access)
func (n *Node) Session() *session.Session {
	return n.session
}

// GetConfig returns the node configuration (for external access)
func (n *Node) GetConfig() *Config {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.config
}

// Running reports whether the node has started and not stopped.
func (n *Node) Running() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.started
}

// ExportEcho exports the built-in echo service unless it already is.
func (n *Node) ExportEcho() (*registry.Registration, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.started {
		return nil, ErrNotStarted
	}
	if n.echo != nil {
		if _, _, ok := n.session.FindByID(n.echo.ServiceID()); ok {
			return n.echo, nil
		}
	}
	reg, err := n.session.Register([]string{EchoInterface}, EchoService(), registry.Properties{"builtin": true})
	if err != nil {
		return nil, err
	}
	n.echo = reg
	return reg, nil
}

// EchoExported reports whether this node currently exports the echo service.
func (n *Node) EchoExported() bool {
	n.mu.RLock()
	reg := n.echo
	n.mu.RUnlock()

	if reg == nil {
		return false
	}
	_, _, ok := n.session.FindByID(reg.ServiceID())
	return ok
}

// WithdrawEcho unregisters the echo service if this node exports it.
func (n *Node) WithdrawEcho() {
	n.mu.Lock()
	reg := n.echo
	n.echo = nil
	n.mu.Unlock()

	n.session.Unregister(reg)
}

// WaitForInterface blocks until some remote peer exports iface or ctx is
// done, and returns the first matching reference.
func (n *Node) WaitForInterface(ctx context.Context, iface string) (registry.Reference, error) {
	changed := make(chan struct{}, 1)
	remove := n.session.AddListener(func(registry.Event) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer remove()

	for {
		if refs := n.session.Lookup(registry.Query{Interface: iface}); len(refs) > 0 {
			return refs[0], nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return registry.Reference{}, fmt.Errorf("%w: %s: %w", ErrInterfaceNotFound, iface, ctx.Err())
		}
	}
}

// CallInterface invokes method on the first remote service exporting
// iface. It fails with ErrInterfaceNotFound when nobody does.
func (n *Node) CallInterface(ctx context.Context, iface, method string, params ...any) (any, registry.Reference, error) {
	refs := n.session.Lookup(registry.Query{Interface: iface})
	if len(refs) == 0 {
		return nil, registry.Reference{}, fmt.Errorf("%w: %s", ErrInterfaceNotFound, iface)
	}
	ref := refs[0]

	start := time.Now()
	result, err := n.session.Call(ctx, ref, method, params...)
	var ev *zerolog.Event
	if err != nil {
		ev = n.log.Warn().Err(err)
	} else {
		ev = n.log.Info()
	}
	ev.Str("target", ref.String()).Str("method", method).Dur("took", time.Since(start)).Msg("call finished")

	if errors.Is(err, rpc.ErrUnknownService) {
		err = fmt.Errorf("%w: %w", ErrInterfaceNotFound, err)
	}
	return result, ref, err
}

// grpcTransport adapts transport.GRPC to groupTransport.
type grpcTransport struct {
	*transport.GRPC
}

func (t grpcTransport) start(ctx context.Context, in session.Inbound) error {
	return t.GRPC.Start(ctx, in)
}
func (t grpcTransport) stop(ctx context.Context) error { return t.GRPC.Stop(ctx) }
func (t grpcTransport) addr() string                   { return t.GRPC.Addr() }
func (t grpcTransport) members() []identity.PeerID     { return t.GRPC.Members() }

// hubTransport adapts a hub endpoint to groupTransport.
type hubTransport struct {
	*transport.Endpoint
}

func (t hubTransport) start(ctx context.Context, in session.Inbound) error {
	return t.Endpoint.Join(in)
}

func (t hubTransport) stop(ctx context.Context) error {
	t.Endpoint.Leave()
	return nil
}

func (t hubTransport) addr() string { return "hub://" + t.Endpoint.ID().String() }

func (t hubTransport) members() []identity.PeerID {
	return t.Endpoint.Members()
}
