package transport

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/adamgarcia4/goLearning/remotesvc/identity"
	"github.com/adamgarcia4/goLearning/remotesvc/protocol"
	"github.com/adamgarcia4/goLearning/remotesvc/session"
)

/*
Hub:

	An in-process group. Peers get an Endpoint, join with their Inbound
	side and exchange messages through it.

	Every message is encoded with the wire codec on send and decoded on
	delivery, so peers never share memory and unencodable payloads fail
	exactly as they would on the network.

	Each endpoint has a mailbox: deliveries and membership events for one
	peer run one at a time in the order they were posted.
*/

// DropFunc reports whether a message from one peer to another is lost in
// transit. Lost messages are not reported to the sender.
type DropFunc func(from, to identity.PeerID, msg protocol.Message) bool

type Hub struct {
	log zerolog.Logger

	mu      sync.RWMutex
	members map[identity.PeerID]*Endpoint
	drop    DropFunc
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:     log.With().Str("component", "hub").Logger(),
		members: make(map[identity.PeerID]*Endpoint),
	}
}

// Endpoint returns a not yet joined endpoint for peer id.
func (h *Hub) Endpoint(id identity.PeerID) *Endpoint {
	return &Endpoint{hub: h, id: id}
}

// Members returns the joined peers, sorted.
func (h *Hub) Members() []identity.PeerID {
	h.mu.RLock()
	members := make([]identity.PeerID, 0, len(h.members))
	for id := range h.members {
		members = append(members, id)
	}
	h.mu.RUnlock()

	slices.Sort(members)
	return members
}

// SetDrop installs a loss model; nil delivers everything.
func (h *Hub) SetDrop(fn DropFunc) {
	h.mu.Lock()
	h.drop = fn
	h.mu.Unlock()
}

// Endpoint is one peer's attachment to a Hub. It implements
// session.Transport.
type Endpoint struct {
	hub *Hub
	id  identity.PeerID

	inbound session.Inbound
	box     *mailbox
}

var _ session.Transport = (*Endpoint)(nil)

// ID returns the peer the endpoint belongs to.
func (e *Endpoint) ID() identity.PeerID {
	return e.id
}

// Members returns the joined peers of the endpoint's hub.
func (e *Endpoint) Members() []identity.PeerID {
	return e.hub.Members()
}

// Join adds the peer to the group. in learns about itself and every
// current member; current members learn about the newcomer.
func (e *Endpoint) Join(in session.Inbound) error {
	if !e.id.Valid() {
		return identity.ErrEmptyPeerID
	}
	if in == nil {
		return fmt.Errorf("join %s: nil inbound", e.id)
	}

	h := e.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.members[e.id]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyJoined, e.id)
	}
	e.inbound = in
	e.box = newMailbox()
	h.members[e.id] = e

	e.box.post(func() { in.OnPeerJoined(e.id) })
	for id, other := range h.members {
		id, other := id, other
		if id == e.id {
			continue
		}
		e.box.post(func() { in.OnPeerJoined(id) })
		other.box.post(func() { other.inbound.OnPeerJoined(e.id) })
	}

	h.log.Info().Str("peer", e.id.String()).Int("members", len(h.members)).Msg("peer joined hub")
	return nil
}

// Leave removes the peer from the group. Remaining members are told; the
// peer's pending deliveries are discarded.
func (e *Endpoint) Leave() {
	h := e.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.members[e.id] != e {
		return
	}
	delete(h.members, e.id)
	e.box.stop()

	for _, other := range h.members {
		other := other
		other.box.post(func() { other.inbound.OnPeerLeft(e.id) })
	}
	h.log.Info().Str("peer", e.id.String()).Int("members", len(h.members)).Msg("peer left hub")
}

// Send delivers msg to one member.
func (e *Endpoint) Send(ctx context.Context, to identity.PeerID, msg protocol.Message) error {
	data, err := protocol.Encode(e.id, msg)
	if err != nil {
		return err
	}
	return e.send(ctx, to, msg, data)
}

// Broadcast delivers msg to every other member.
func (e *Endpoint) Broadcast(ctx context.Context, msg protocol.Message) error {
	data, err := protocol.Encode(e.id, msg)
	if err != nil {
		return err
	}

	var errs []error
	for _, to := range e.hub.Members() {
		if to == e.id {
			continue
		}
		if err := e.send(ctx, to, msg, data); err != nil {
			errs = append(errs, fmt.Errorf("to %s: %w", to, err))
		}
	}
	return errors.Join(errs...)
}

func (e *Endpoint) send(ctx context.Context, to identity.PeerID, msg protocol.Message, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h := e.hub
	h.mu.RLock()
	joined := h.members[e.id] == e
	target, ok := h.members[to]
	drop := h.drop
	h.mu.RUnlock()

	if !joined {
		return ErrNotJoined
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, to)
	}
	if drop != nil && drop(e.id, to, msg) {
		h.log.Debug().Str("from", e.id.String()).Str("to", to.String()).Str("kind", msg.Kind().String()).Msg("message dropped")
		return nil
	}

	if !target.box.post(func() { target.deliver(data) }) {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, to)
	}
	return nil
}

func (e *Endpoint) deliver(data []byte) {
	from, msg, err := protocol.Decode(data)
	if err != nil {
		e.hub.log.Warn().Err(err).Str("peer", e.id.String()).Msg("undecodable delivery")
		return
	}
	e.inbound.OnMessage(from, msg)
}
