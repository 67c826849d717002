package transport

import (
	"testing"
	"time"

	"github.com/adamgarcia4/goLearning/remotesvc/identity"
	"github.com/adamgarcia4/goLearning/remotesvc/protocol"
)

type eventKind string

const (
	joined   eventKind = "joined"
	left     eventKind = "left"
	received eventKind = "message"
)

type event struct {
	kind eventKind
	peer identity.PeerID
	msg  protocol.Message
}

// recorder is an Inbound that queues everything it is told.
type recorder struct {
	events chan event
}

func newRecorder() *recorder {
	return &recorder{events: make(chan event, 256)}
}

func (r *recorder) OnPeerJoined(peer identity.PeerID) { r.events <- event{kind: joined, peer: peer} }
func (r *recorder) OnPeerLeft(peer identity.PeerID)   { r.events <- event{kind: left, peer: peer} }
func (r *recorder) OnMessage(from identity.PeerID, msg protocol.Message) {
	r.events <- event{kind: received, peer: from, msg: msg}
}

// waitFor skips events until one matches kind and peer.
func (r *recorder) waitFor(t *testing.T, kind eventKind, peer identity.PeerID) event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-r.events:
			if ev.kind == kind && ev.peer == peer {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s %s", kind, peer)
			return event{}
		}
	}
}

// next returns the next event or fails.
func (r *recorder) next(t *testing.T) event {
	t.Helper()
	select {
	case ev := <-r.events:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("no event")
		return event{}
	}
}

// quiet asserts nothing arrives for a short while.
func (r *recorder) quiet(t *testing.T) {
	t.Helper()
	select {
	case ev := <-r.events:
		t.Fatalf("unexpected %s from %s", ev.kind, ev.peer)
	case <-time.After(30 * time.Millisecond):
	}
}

// gatedRecorder holds back every join except its own until gate closes.
type gatedRecorder struct {
	*recorder
	self identity.PeerID
	gate chan struct{}
}

func newGatedRecorder(self identity.PeerID, gate chan struct{}) *gatedRecorder {
	return &gatedRecorder{recorder: newRecorder(), self: self, gate: gate}
}

func (r *gatedRecorder) OnPeerJoined(peer identity.PeerID) {
	if peer != r.self {
		<-r.gate
	}
	r.recorder.OnPeerJoined(peer)
}
