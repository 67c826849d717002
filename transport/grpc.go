package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/adamgarcia4/goLearning/remotesvc/identity"
	"github.com/adamgarcia4/goLearning/remotesvc/protocol"
	"github.com/adamgarcia4/goLearning/remotesvc/session"
)

/*
GRPC transport:

	A full mesh of peers, each serving the Group service and holding one
	client connection per other member.

	Joining:
	- Start binds the listener, serves, and reports our own join
	- every seed (and every member a seed tells us about) gets a Join call
	- a Join call adds the caller to the callee's members and returns the
	  callee's member list, so one seed is enough to reach the whole group

	Leaving:
	- Stop sends Leave to every member before shutting the server down
	- a member whose connection reports Unavailable is treated as gone
*/

const DefaultDialTimeout = 5 * time.Second

// DialFunc opens a raw connection to addr. Tests use it with bufconn.
type DialFunc func(ctx context.Context, addr string) (net.Conn, error)

type GRPCConfig struct {
	PeerID identity.PeerID
	// Group names the group; members of other groups are turned away.
	Group string
	// ListenAddr is the host:port to bind.
	ListenAddr string
	// AdvertiseAddr is what other members dial; defaults to the bound address.
	AdvertiseAddr string
	Seeds         []string
	DialTimeout   time.Duration
	Logger        zerolog.Logger

	// Listener, when set, is served instead of binding ListenAddr.
	Listener net.Listener
	Dialer   DialFunc
}

// member is the CBOR payload of Join and Leave.
type member struct {
	Peer  identity.PeerID `cbor:"peer"`
	Addr  string          `cbor:"addr"`
	Group string          `cbor:"group,omitempty"`
}

type joinReply struct {
	Members []member `cbor:"members"`
}

type remotePeer struct {
	member
	conn   *grpc.ClientConn
	client GroupClient
}

type GRPC struct {
	cfg GRPCConfig
	log zerolog.Logger
	srv *grpc.Server
	lis net.Listener

	inbound session.Inbound
	self    member
	// events runs membership notifications raised by server handlers, in
	// order, after the handler has replied.
	events *mailbox

	mu      sync.RWMutex
	peers   map[identity.PeerID]*remotePeer
	started bool
	stopped bool

	serveErr chan error
}

var (
	_ session.Transport = (*GRPC)(nil)
	_ GroupServer       = (*GRPC)(nil)
)

func NewGRPC(cfg GRPCConfig) (*GRPC, error) {
	if !cfg.PeerID.Valid() {
		return nil, fmt.Errorf("peer id must be provided: %w", identity.ErrEmptyPeerID)
	}
	if cfg.Listener == nil && (cfg.ListenAddr == "" || !strings.Contains(cfg.ListenAddr, ":")) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, cfg.ListenAddr)
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}

	return &GRPC{
		cfg:      cfg,
		log:      cfg.Logger.With().Str("component", "grpc-transport").Str("peer", cfg.PeerID.String()).Logger(),
		srv:      grpc.NewServer(),
		peers:    make(map[identity.PeerID]*remotePeer),
		serveErr: make(chan error, 1),
	}, nil
}

func (g *GRPC) setupTcp() (net.Listener, error) {
	if g.cfg.Listener != nil {
		return g.cfg.Listener, nil
	}
	lis, err := net.Listen("tcp", g.cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	return lis, nil
}

// Start serves the Group service, reports our own join to in and then
// joins the group through the configured seeds. Unreachable seeds are
// logged and skipped.
func (g *GRPC) Start(ctx context.Context, in session.Inbound) error {
	if in == nil {
		return errors.New("start: nil inbound")
	}

	g.mu.Lock()
	if g.started {
		g.mu.Unlock()
		return errors.New("start: already started")
	}
	g.started = true
	g.mu.Unlock()

	lis, err := g.setupTcp()
	if err != nil {
		g.mu.Lock()
		g.started = false
		g.mu.Unlock()
		return fmt.Errorf("failed to setup TCP: %w", err)
	}
	g.lis = lis
	g.inbound = in
	g.events = newMailbox()

	advertise := g.cfg.AdvertiseAddr
	if advertise == "" {
		advertise = lis.Addr().String()
	}
	g.self = member{Peer: g.cfg.PeerID, Addr: advertise, Group: g.cfg.Group}

	RegisterGroupServer(g.srv, g)
	// Register reflection service for gRPC tools (grpcurl, grpcui, etc.)
	reflection.Register(g.srv)

	go func() {
		g.serveErr <- g.srv.Serve(lis)
	}()
	g.log.Info().Str("addr", advertise).Msg("group transport serving")

	in.OnPeerJoined(g.self.Peer)
	g.joinSeeds(ctx)
	return nil
}

// Addr returns the address other members dial.
func (g *GRPC) Addr() string {
	return g.self.Addr
}

// Members returns every known member including ourselves, sorted.
func (g *GRPC) Members() []identity.PeerID {
	g.mu.RLock()
	members := make([]identity.PeerID, 0, len(g.peers)+1)
	members = append(members, g.self.Peer)
	for id := range g.peers {
		members = append(members, id)
	}
	g.mu.RUnlock()

	slices.Sort(members)
	return members
}

// Stop announces our departure to every member and shuts the server down.
func (g *GRPC) Stop(ctx context.Context) error {
	g.mu.Lock()
	if g.stopped || !g.started {
		g.mu.Unlock()
		return nil
	}
	g.stopped = true
	peers := g.peers
	g.peers = make(map[identity.PeerID]*remotePeer)
	g.mu.Unlock()

	payload, err := cbor.Marshal(g.self)
	if err != nil {
		return err
	}
	for _, p := range peers {
		if _, err := p.client.Leave(ctx, &wrapperspb.BytesValue{Value: payload}); err != nil {
			g.log.Debug().Err(err).Str("member", p.Peer.String()).Msg("leave not acknowledged")
		}
		_ = p.conn.Close()
	}

	done := make(chan struct{})
	go func() {
		g.srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		g.srv.Stop()
	}

	g.events.stop()
	if err := <-g.serveErr; err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	g.log.Info().Msg("group transport stopped")
	return nil
}

// Send delivers msg to one member.
func (g *GRPC) Send(ctx context.Context, to identity.PeerID, msg protocol.Message) error {
	data, err := protocol.Encode(g.cfg.PeerID, msg)
	if err != nil {
		return err
	}

	g.mu.RLock()
	p, ok := g.peers[to]
	stopped := g.stopped
	g.mu.RUnlock()

	if stopped {
		return ErrStopped
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, to)
	}
	return g.deliver(ctx, p, data)
}

// Broadcast delivers msg to every other member.
func (g *GRPC) Broadcast(ctx context.Context, msg protocol.Message) error {
	data, err := protocol.Encode(g.cfg.PeerID, msg)
	if err != nil {
		return err
	}

	g.mu.RLock()
	if g.stopped {
		g.mu.RUnlock()
		return ErrStopped
	}
	peers := make([]*remotePeer, 0, len(g.peers))
	for _, p := range g.peers {
		peers = append(peers, p)
	}
	g.mu.RUnlock()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, p := range peers {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.deliver(ctx, p, data); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("to %s: %w", p.Peer, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (g *GRPC) deliver(ctx context.Context, p *remotePeer, data []byte) error {
	_, err := p.client.Deliver(ctx, &wrapperspb.BytesValue{Value: data})
	if status.Code(err) == codes.Unavailable {
		go g.lost(p)
	}
	return err
}

// lost drops a member whose connection failed.
func (g *GRPC) lost(p *remotePeer) {
	if g.removePeer(p.Peer, p) {
		g.log.Warn().Str("member", p.Peer.String()).Msg("member unreachable, dropping")
		g.events.post(func() { g.inbound.OnPeerLeft(p.Peer) })
	}
}

// Join implements GroupServer.
func (g *GRPC) Join(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	var m member
	if err := cbor.Unmarshal(in.GetValue(), &m); err != nil || !m.Peer.Valid() || m.Addr == "" {
		return nil, status.Error(codes.InvalidArgument, "join: malformed member")
	}
	if m.Group != g.cfg.Group {
		return nil, status.Errorf(codes.FailedPrecondition, "join: group %q, this peer serves %q", m.Group, g.cfg.Group)
	}

	added, err := g.addPeer(m)
	if err != nil {
		return nil, status.Errorf(codes.Unavailable, "join: %v", err)
	}

	out, err := cbor.Marshal(joinReply{Members: g.memberList()})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "join: %v", err)
	}
	if added {
		g.log.Info().Str("member", m.Peer.String()).Str("addr", m.Addr).Msg("member joined")
		// The joiner is waiting on this reply; announcing to the group
		// must not hold it up.
		g.events.post(func() { g.inbound.OnPeerJoined(m.Peer) })
	}
	return &wrapperspb.BytesValue{Value: out}, nil
}

// Deliver implements GroupServer.
func (g *GRPC) Deliver(ctx context.Context, in *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	from, msg, err := protocol.Decode(in.GetValue())
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "deliver: %v", err)
	}
	g.inbound.OnMessage(from, msg)
	return &emptypb.Empty{}, nil
}

// Leave implements GroupServer.
func (g *GRPC) Leave(ctx context.Context, in *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	var m member
	if err := cbor.Unmarshal(in.GetValue(), &m); err != nil || !m.Peer.Valid() {
		return nil, status.Error(codes.InvalidArgument, "leave: malformed member")
	}
	if g.removePeer(m.Peer, nil) {
		g.log.Info().Str("member", m.Peer.String()).Msg("member left")
		g.events.post(func() { g.inbound.OnPeerLeft(m.Peer) })
	}
	return &emptypb.Empty{}, nil
}

// joinSeeds walks the seeds and every member they report until each
// reachable address has been asked once.
func (g *GRPC) joinSeeds(ctx context.Context) {
	queue := slices.Clone(g.cfg.Seeds)
	asked := map[string]bool{g.self.Addr: true}
	var joined []identity.PeerID

	for len(queue) > 0 {
		addr := queue[0]
		queue = queue[1:]
		if asked[addr] {
			continue
		}
		asked[addr] = true

		reply, err := g.joinVia(ctx, addr)
		if err != nil {
			g.log.Warn().Err(err).Str("seed", addr).Msg("join failed")
			continue
		}
		for _, m := range reply.Members {
			if m.Peer == g.self.Peer || m.Group != g.cfg.Group {
				continue
			}
			added, err := g.addPeer(m)
			if err != nil {
				g.log.Warn().Err(err).Str("member", m.Peer.String()).Msg("cannot dial member")
				continue
			}
			if added {
				joined = append(joined, m.Peer)
			}
			queue = append(queue, m.Addr)
		}
	}

	for _, id := range joined {
		g.log.Info().Str("member", id.String()).Msg("member joined")
		g.inbound.OnPeerJoined(id)
	}
}

func (g *GRPC) joinVia(ctx context.Context, addr string) (joinReply, error) {
	conn, err := g.dial(addr)
	if err != nil {
		return joinReply{}, err
	}
	defer conn.Close()

	payload, err := cbor.Marshal(g.self)
	if err != nil {
		return joinReply{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, g.cfg.DialTimeout)
	defer cancel()

	out, err := NewGroupClient(conn).Join(ctx, &wrapperspb.BytesValue{Value: payload})
	if err != nil {
		return joinReply{}, err
	}
	var reply joinReply
	if err := cbor.Unmarshal(out.GetValue(), &reply); err != nil {
		return joinReply{}, fmt.Errorf("join reply: %w", err)
	}
	return reply, nil
}

func (g *GRPC) dial(addr string) (*grpc.ClientConn, error) {
	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if g.cfg.Dialer != nil {
		opts = append(opts, grpc.WithContextDialer(g.cfg.Dialer))
	}
	conn, err := grpc.NewClient("passthrough:///"+addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn, nil
}

// addPeer records m with a client connection. It reports false when m
// was already a member.
func (g *GRPC) addPeer(m member) (bool, error) {
	g.mu.RLock()
	_, known := g.peers[m.Peer]
	stopped := g.stopped
	g.mu.RUnlock()
	if stopped {
		return false, ErrStopped
	}
	if known || m.Peer == g.self.Peer {
		return false, nil
	}

	conn, err := g.dial(m.Addr)
	if err != nil {
		return false, err
	}

	g.mu.Lock()
	if _, known := g.peers[m.Peer]; known || g.stopped {
		g.mu.Unlock()
		_ = conn.Close()
		return false, nil
	}
	g.peers[m.Peer] = &remotePeer{member: m, conn: conn, client: NewGroupClient(conn)}
	g.mu.Unlock()
	return true, nil
}

// removePeer drops id. When only is set, id is dropped only if it still
// maps to that exact connection.
func (g *GRPC) removePeer(id identity.PeerID, only *remotePeer) bool {
	g.mu.Lock()
	p, ok := g.peers[id]
	if !ok || (only != nil && p != only) {
		g.mu.Unlock()
		return false
	}
	delete(g.peers, id)
	g.mu.Unlock()

	_ = p.conn.Close()
	return true
}

func (g *GRPC) memberList() []member {
	g.mu.RLock()
	defer g.mu.RUnlock()

	members := make([]member, 0, len(g.peers)+1)
	members = append(members, g.self)
	for _, p := range g.peers {
		members = append(members, p.member)
	}
	slices.SortFunc(members, func(a, b member) int { return strings.Compare(string(a.Peer), string(b.Peer)) })
	return members
}
