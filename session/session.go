package session

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
	"github.com/adamgarcia4/goLearning/remotesvc/rpc"
)

/*
Session:

	The per-peer object that joins a group and ties together:
	- the local registry (what this peer exports)
	- the remote cache (what every other peer exports)
	- the correlator (calls we issued, waiting for responses)
	- the dispatcher (requests we received, being served)

	Sessions are built explicitly with New; nothing here is global, so many
	peers can run in one process (see node.Manager).

	Lifecycle:
	- New(id, transport, cfg)
	- the transport reports membership and messages through the Inbound methods
	- Close() fails pending calls, stops serving and detaches from the registry
*/

// Transport is the group messaging channel a Session sends on.
type Transport interface {
	Send(ctx context.Context, to identity.PeerID, msg protocol.Message) error
	Broadcast(ctx context.Context, msg protocol.Message) error
}

// Inbound is how a transport hands membership changes and messages to a
// Session.
type Inbound interface {
	OnPeerJoined(peer identity.PeerID)
	OnPeerLeft(peer identity.PeerID)
	OnMessage(from identity.PeerID, msg protocol.Message)
}

const DefaultBroadcastTimeout = 5 * time.Second

// Config tunes a Session. Zero values pick the package defaults.
type Config struct {
	// DefaultTimeout bounds calls issued without an explicit timeout.
	DefaultTimeout time.Duration
	// Workers bounds concurrently served inbound requests.
	Workers          int
	BroadcastTimeout time.Duration
	Logger           zerolog.Logger
}

type Session struct {
	id        identity.PeerID
	transport Transport
	log       zerolog.Logger

	local      *registry.Local
	cache      *registry.Cache
	correlator *rpc.Correlator
	dispatcher *rpc.Dispatcher

	broadcastTimeout time.Duration

	mu     sync.RWMutex
	closed bool
}

var (
	_ Inbound           = (*Session)(nil)
	_ protocol.Handler  = (*Session)(nil)
	_ identity.Provider = (*Session)(nil)
)

// New creates the session of peer id on top of tr.
func New(id identity.PeerID, tr Transport, cfg Config) (*Session, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("%w: peer id", identity.ErrEmptyPeerID)
	}
	if tr == nil {
		return nil, ErrNoTransport
	}
	if cfg.BroadcastTimeout <= 0 {
		cfg.BroadcastTimeout = DefaultBroadcastTimeout
	}

	log := cfg.Logger.With().Str("peer", id.String()).Logger()
	s := &Session{
		id:               id,
		transport:        tr,
		log:              log,
		local:            registry.NewLocal(id),
		cache:            registry.NewCache(id),
		broadcastTimeout: cfg.BroadcastTimeout,
	}
	s.correlator = rpc.NewCorrelator(id, s.cache, sender{tr}, rpc.CorrelatorConfig{
		DefaultTimeout: cfg.DefaultTimeout,
		Logger:         log,
	})
	s.dispatcher = rpc.NewDispatcher(s.local, sender{tr}, rpc.DispatcherConfig{
		Workers: cfg.Workers,
		Logger:  log,
	})
	s.local.OnChange(s.publish)
	return s, nil
}

// ID returns the local peer identity.
func (s *Session) ID() identity.PeerID {
	return s.id
}

// LocalID implements identity.Provider.
func (s *Session) LocalID() identity.PeerID {
	return s.id
}

// Register exports service under the given interface names. The new
// registry snapshot is broadcast before Register returns.
func (s *Session) Register(interfaces []string, service registry.Service, props registry.Properties) (*registry.Registration, error) {
	if s.isClosed() {
		return nil, rpc.ErrClosed
	}
	return s.local.Register(interfaces, service, props)
}

// Unregister withdraws a service. Unregistering twice is a no-op.
func (s *Session) Unregister(reg *registry.Registration) {
	s.local.Unregister(reg)
}

// FindByID looks up a service exported by this peer.
func (s *Session) FindByID(serviceID uint64) (registry.ServiceRegistration, registry.Service, bool) {
	return s.local.FindByID(serviceID)
}

// LocalSnapshot returns what this peer currently exports.
func (s *Session) LocalSnapshot() registry.Snapshot {
	return s.local.Snapshot()
}

// Lookup returns references to matching services of remote peers.
func (s *Session) Lookup(q registry.Query) []registry.Reference {
	return s.cache.Lookup(q)
}

// Resolve returns the cached registration behind ref.
func (s *Session) Resolve(ref registry.Reference) (registry.ServiceRegistration, bool) {
	return s.cache.Resolve(ref)
}

// Peers returns the remote peers whose registry is cached.
func (s *Session) Peers() []identity.PeerID {
	return s.cache.Owners()
}

// AddListener subscribes fn to remote registry events.
func (s *Session) AddListener(fn registry.Listener) (remove func()) {
	return s.cache.AddListener(fn)
}

// Invoke starts a remote call and returns its pending result. A
// non-positive timeout selects the configured default.
func (s *Session) Invoke(ctx context.Context, ref registry.Reference, method string, params []any, timeout time.Duration) (*rpc.Pending, error) {
	if s.isClosed() {
		return nil, rpc.ErrClosed
	}
	return s.correlator.Invoke(ctx, ref, method, params, timeout)
}

// Call invokes method on ref and waits for the outcome. The call deadline
// follows ctx when it has one.
func (s *Session) Call(ctx context.Context, ref registry.Reference, method string, params ...any) (any, error) {
	var timeout time.Duration
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return nil, ctx.Err()
		}
	}

	pending, err := s.Invoke(ctx, ref, method, params, timeout)
	if err != nil {
		return nil, err
	}
	result, err := pending.Wait(ctx)
	if timeout > 0 && errors.Is(err, context.DeadlineExceeded) {
		// The call timer shares ctx's deadline; report its outcome.
		<-pending.Done()
		return pending.Result()
	}
	return result, err
}

// InFlight returns the number of outstanding calls issued by this peer.
func (s *Session) InFlight() int {
	return s.correlator.InFlight()
}

// Close fails outstanding calls with rpc.ErrClosed, stops serving
// requests and stops announcing registry changes. It does not leave the
// group; that is the transport's job.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.local.OnChange(nil)
	s.correlator.Close()
	s.dispatcher.Close()
	s.log.Info().Msg("session closed")
}

func (s *Session) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// OnMessage implements Inbound.
func (s *Session) OnMessage(from identity.PeerID, msg protocol.Message) {
	if s.isClosed() {
		return
	}
	if err := protocol.Dispatch(from, msg, s); err != nil {
		s.log.Warn().Err(err).Str("from", from.String()).Msg("dropping message")
	}
}

// OnRequest implements protocol.Handler.
func (s *Session) OnRequest(from identity.PeerID, msg *protocol.Request) {
	if !s.dispatcher.OnRequest(from, msg) {
		s.log.Debug().Uint64("request_id", msg.RequestID).Msg("request dropped, dispatcher closed")
	}
}

// OnResponse implements protocol.Handler.
func (s *Session) OnResponse(from identity.PeerID, msg *protocol.Response) {
	s.correlator.OnResponse(from, msg)
}

// sender adapts a Transport to the rpc send interfaces.
type sender struct {
	tr Transport
}

func (s sender) SendRequest(ctx context.Context, to identity.PeerID, req *protocol.Request) error {
	return s.tr.Send(ctx, to, req)
}

func (s sender) SendResponse(ctx context.Context, to identity.PeerID, resp *protocol.Response) error {
	return s.tr.Send(ctx, to, resp)
}
