package session

import (
	"context"
	"fmt"

	"github.com/adamgarcia4/goLearning/remotesvc/identity"
	"github.com/adamgarcia4/goLearning/remotesvc/protocol"
	"github.com/adamgarcia4/goLearning/remotesvc/registry"
)

/*
Replication:

	Every peer owns exactly one registry and is the only writer of it.
	Other peers hold a read-only copy per owner, replaced wholesale by the
	newest snapshot received (last writer wins, no merging).

	When is a snapshot broadcast?
	- on any local change (Register, Unregister, SetProperties)
	- whenever a peer joins, including our own join, so newcomers catch up

	Both paths go through the local registry's change hook, so broadcasts
	leave this peer in the same order the snapshots were taken.

	What is ignored on receipt?
	- our own snapshot echoed back
	- a snapshot whose owner is not the peer that sent it
*/

// publish is the local registry change hook.
func (s *Session) publish(snap registry.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), s.broadcastTimeout)
	defer cancel()

	err := s.transport.Broadcast(ctx, &protocol.RegistrySnapshot{Snapshot: snap})
	if err != nil {
		s.log.Warn().Err(err).Int("services", len(snap.Registrations)).Msg("registry broadcast failed")
		return
	}
	s.log.Debug().Int("services", len(snap.Registrations)).Msg("registry broadcast")
}

// OnPeerJoined implements Inbound.
func (s *Session) OnPeerJoined(peer identity.PeerID) {
	if s.isClosed() {
		return
	}
	s.log.Info().Str("member", peer.String()).Msg("peer joined")
	s.local.Republish()
}

// OnPeerLeft implements Inbound.
func (s *Session) OnPeerLeft(peer identity.PeerID) {
	if peer == s.id {
		return
	}
	evicted := s.cache.Evict(peer)
	failed := s.correlator.OnPeerLeft(peer)
	s.log.Info().Str("member", peer.String()).Bool("evicted", evicted).Int("failed_calls", failed).Msg("peer left")
}

// OnRegistrySnapshot implements protocol.Handler.
func (s *Session) OnRegistrySnapshot(from identity.PeerID, msg *protocol.RegistrySnapshot) {
	if err := s.accept(from, msg.Snapshot); err != nil {
		s.log.Debug().Err(err).Str("from", from.String()).Msg("snapshot ignored")
		return
	}
	s.log.Debug().Str("from", from.String()).Int("services", len(msg.Snapshot.Registrations)).Msg("snapshot stored")
}

func (s *Session) accept(from identity.PeerID, snap registry.Snapshot) error {
	if snap.Owner == s.id {
		return ErrSelfEcho
	}
	if snap.Owner != from {
		return fmt.Errorf("%w: owner %s, sender %s", ErrOwnerMismatch, snap.Owner, from)
	}
	if !s.cache.Replace(snap) {
		return fmt.Errorf("%w: snapshot owner", identity.ErrEmptyPeerID)
	}
	return nil
}
