package session_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamgarcia4/goLearning/remotesvc/identity"
	"github.com/adamgarcia4/goLearning/remotesvc/protocol"
	"github.com/adamgarcia4/goLearning/remotesvc/registry"
	"github.com/adamgarcia4/goLearning/remotesvc/rpc"
	"github.com/adamgarcia4/goLearning/remotesvc/session"
	"github.com/adamgarcia4/goLearning/remotesvc/transport"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

var echoService = registry.Methods{
	"echo": func(ctx context.Context, params []any) (any, error) {
		if len(params) != 1 {
			return nil, fmt.Errorf("echo takes one argument, got %d", len(params))
		}
		return params[0], nil
	},
	"upper": func(ctx context.Context, params []any) (any, error) {
		s, _ := params[0].(string)
		return strings.ToUpper(s), nil
	},
}

type testPeer struct {
	*session.Session
	ep *transport.Endpoint
}

func joinPeer(t *testing.T, hub *transport.Hub, id identity.PeerID) *testPeer {
	t.Helper()
	ep := hub.Endpoint(id)
	s, err := session.New(id, ep, session.Config{DefaultTimeout: time.Second, Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.NoError(t, ep.Join(s))
	t.Cleanup(func() {
		ep.Leave()
		s.Close()
	})
	return &testPeer{Session: s, ep: ep}
}

func lookupOne(t *testing.T, p *testPeer, iface string) registry.Reference {
	t.Helper()
	var refs []registry.Reference
	require.Eventually(t, func() bool {
		refs = p.Lookup(registry.Query{Interface: iface})
		return len(refs) == 1
	}, waitFor, tick)
	return refs[0]
}

func TestNew_Validation(t *testing.T) {
	hub := transport.NewHub(zerolog.Nop())

	_, err := session.New("", hub.Endpoint("x"), session.Config{})
	require.ErrorIs(t, err, identity.ErrEmptyPeerID)

	_, err = session.New("node-a", nil, session.Config{})
	require.ErrorIs(t, err, session.ErrNoTransport)
}

func TestSession_EchoAcrossPeers(t *testing.T) {
	hub := transport.NewHub(zerolog.Nop())
	a := joinPeer(t, hub, "node-a")
	b := joinPeer(t, hub, "node-b")

	reg, err := a.Register([]string{"Echo"}, echoService, registry.Properties{"lang": "en"})
	require.NoError(t, err)

	ref := lookupOne(t, b, "Echo")
	assert.Equal(t, registry.Reference{Owner: "node-a", ServiceID: reg.ServiceID()}, ref)

	got, err := b.Call(context.Background(), ref, "echo", "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi", got)
	assert.Equal(t, 0, b.InFlight())

	// The exporter never caches its own registry.
	assert.Empty(t, a.Lookup(registry.Query{Interface: "Echo"}))
	assert.Equal(t, []identity.PeerID{"node-a"}, b.Peers())
}

func TestSession_LateJoinerCatchesUp(t *testing.T) {
	hub := transport.NewHub(zerolog.Nop())
	a := joinPeer(t, hub, "node-a")
	_, err := a.Register([]string{"Echo"}, echoService, nil)
	require.NoError(t, err)

	c := joinPeer(t, hub, "node-c")
	ref := lookupOne(t, c, "Echo")
	assert.Equal(t, identity.PeerID("node-a"), ref.Owner)
}

func TestSession_UnregisterMakesReferenceStale(t *testing.T) {
	hub := transport.NewHub(zerolog.Nop())
	a := joinPeer(t, hub, "node-a")
	b := joinPeer(t, hub, "node-b")

	reg, err := a.Register([]string{"Echo"}, echoService, nil)
	require.NoError(t, err)
	ref := lookupOne(t, b, "Echo")

	a.Unregister(reg)
	require.Eventually(t, func() bool {
		return len(b.Lookup(registry.Query{Interface: "Echo"})) == 0
	}, waitFor, tick)

	_, err = b.Invoke(context.Background(), ref, "echo", []any{"hi"}, 0)
	require.ErrorIs(t, err, rpc.ErrUnknownService)
	assert.Equal(t, 0, b.InFlight())
}

func TestSession_ServiceGoneBeforeSnapshotArrives(t *testing.T) {
	hub := transport.NewHub(zerolog.Nop())
	a := joinPeer(t, hub, "node-a")
	b := joinPeer(t, hub, "node-b")

	reg, err := a.Register([]string{"Echo"}, echoService, nil)
	require.NoError(t, err)
	ref := lookupOne(t, b, "Echo")

	hub.SetDrop(func(from, to identity.PeerID, msg protocol.Message) bool {
		return msg.Kind() == protocol.KindRegistrySnapshot
	})
	a.Unregister(reg)

	_, err = b.Call(context.Background(), ref, "echo", "hi")
	require.ErrorIs(t, err, rpc.ErrServiceNotFound)
}

func TestSession_InvocationFault(t *testing.T) {
	hub := transport.NewHub(zerolog.Nop())
	a := joinPeer(t, hub, "node-a")
	b := joinPeer(t, hub, "node-b")

	_, err := a.Register([]string{"Echo"}, echoService, nil)
	require.NoError(t, err)
	ref := lookupOne(t, b, "Echo")

	_, err = b.Call(context.Background(), ref, "echo")
	require.ErrorIs(t, err, rpc.ErrRemoteInvocation)
	assert.Contains(t, err.Error(), "echo takes one argument")

	_, err = b.Call(context.Background(), ref, "nope")
	require.ErrorIs(t, err, rpc.ErrRemoteInvocation)
}

func TestSession_DroppedRequestTimesOut(t *testing.T) {
	hub := transport.NewHub(zerolog.Nop())
	a := joinPeer(t, hub, "node-a")
	b := joinPeer(t, hub, "node-b")

	_, err := a.Register([]string{"Echo"}, echoService, nil)
	require.NoError(t, err)
	ref := lookupOne(t, b, "Echo")

	hub.SetDrop(func(from, to identity.PeerID, msg protocol.Message) bool {
		return msg.Kind() == protocol.KindRequest
	})

	pending, err := b.Invoke(context.Background(), ref, "echo", []any{"hi"}, 30*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	_, err = pending.Wait(ctx)
	require.ErrorIs(t, err, rpc.ErrTimeout)

	// A response arriving after the deadline changes nothing.
	late := &protocol.Response{RequestID: pending.RequestID(), Result: "hi"}
	require.NoError(t, a.ep.Send(context.Background(), "node-b", late))
	time.Sleep(20 * time.Millisecond)

	_, err = pending.Result()
	require.ErrorIs(t, err, rpc.ErrTimeout)
	assert.Equal(t, 0, b.InFlight())
}

func TestSession_CallHonoursContextDeadline(t *testing.T) {
	hub := transport.NewHub(zerolog.Nop())
	a := joinPeer(t, hub, "node-a")
	b := joinPeer(t, hub, "node-b")

	_, err := a.Register([]string{"Echo"}, echoService, nil)
	require.NoError(t, err)
	ref := lookupOne(t, b, "Echo")

	hub.SetDrop(func(from, to identity.PeerID, msg protocol.Message) bool {
		return msg.Kind() == protocol.KindRequest
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = b.Call(ctx, ref, "echo", "hi")
	require.ErrorIs(t, err, rpc.ErrTimeout)
}

func TestSession_PeerLeftFailsCallsAndEvicts(t *testing.T) {
	hub := transport.NewHub(zerolog.Nop())
	a := joinPeer(t, hub, "node-a")
	b := joinPeer(t, hub, "node-b")

	release := make(chan struct{})
	defer close(release)
	_, err := a.Register([]string{"Slow"}, registry.Methods{
		"wait": func(ctx context.Context, params []any) (any, error) {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return nil, nil
		},
	}, nil)
	require.NoError(t, err)
	ref := lookupOne(t, b, "Slow")

	events := make(chan registry.Event, 8)
	remove := b.AddListener(func(ev registry.Event) { events <- ev })
	defer remove()

	pending, err := b.Invoke(context.Background(), ref, "wait", nil, 5*time.Second)
	require.NoError(t, err)

	a.ep.Leave()

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	_, err = pending.Wait(ctx)
	require.ErrorIs(t, err, rpc.ErrRemotePeerUnavailable)

	assert.Empty(t, b.Peers())
	_, err = b.Invoke(ctx, ref, "wait", nil, time.Second)
	require.ErrorIs(t, err, rpc.ErrUnknownService)
	assert.Zero(t, b.InFlight())
	for {
		select {
		case ev := <-events:
			if ev.Kind != registry.EventRegistryRemoved {
				continue
			}
			assert.Equal(t, identity.PeerID("node-a"), ev.Owner)
			return
		case <-time.After(waitFor):
			t.Fatal("no removal event")
		}
	}
}

func TestSession_IgnoresSnapshotsForOtherOwners(t *testing.T) {
	hub := transport.NewHub(zerolog.Nop())
	a := joinPeer(t, hub, "node-a")
	b := joinPeer(t, hub, "node-b")

	forged := &protocol.RegistrySnapshot{Snapshot: registry.Snapshot{
		Owner: "node-c",
		Registrations: []registry.ServiceRegistration{
			{ServiceID: 1, Interfaces: []string{"Echo"}, Owner: "node-c"},
		},
	}}
	echoed := &protocol.RegistrySnapshot{Snapshot: registry.Snapshot{Owner: "node-a"}}
	require.NoError(t, b.ep.Send(context.Background(), "node-a", forged))
	require.NoError(t, b.ep.Send(context.Background(), "node-a", echoed))

	// A real snapshot from node-b still gets through afterwards.
	_, err := b.Register([]string{"Marker"}, echoService, nil)
	require.NoError(t, err)
	lookupOne(t, a, "Marker")

	assert.Equal(t, []identity.PeerID{"node-b"}, a.Peers())
	assert.Empty(t, a.Lookup(registry.Query{Interface: "Echo"}))
}

func TestSession_LookupByProperties(t *testing.T) {
	hub := transport.NewHub(zerolog.Nop())
	a := joinPeer(t, hub, "node-a")
	b := joinPeer(t, hub, "node-b")
	c := joinPeer(t, hub, "node-c")

	_, err := a.Register([]string{"Echo"}, echoService, registry.Properties{"lang": "en"})
	require.NoError(t, err)
	_, err = b.Register([]string{"Echo"}, echoService, registry.Properties{"lang": "fr"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(c.Lookup(registry.Query{Interface: "Echo"})) == 2
	}, waitFor, tick)

	refs := c.Lookup(registry.Query{Interface: "Echo", Filter: registry.MatchProperties(registry.Properties{"lang": "fr"})})
	require.Len(t, refs, 1)
	assert.Equal(t, identity.PeerID("node-b"), refs[0].Owner)

	refs = c.Lookup(registry.Query{Owners: []identity.PeerID{"node-a"}})
	require.Len(t, refs, 1)
	assert.Equal(t, identity.PeerID("node-a"), refs[0].Owner)
}

func TestSession_RemoteServiceProxy(t *testing.T) {
	hub := transport.NewHub(zerolog.Nop())
	a := joinPeer(t, hub, "node-a")
	b := joinPeer(t, hub, "node-b")
	c := joinPeer(t, hub, "node-c")

	_, err := a.Register([]string{"Echo"}, echoService, registry.Properties{"lang": "en"})
	require.NoError(t, err)
	ref := lookupOne(t, b, "Echo")

	proxy, err := b.RemoteService(ref)
	require.NoError(t, err)
	assert.Equal(t, ref, proxy.Reference())
	assert.Equal(t, []string{"Echo"}, proxy.Interfaces())
	assert.Equal(t, registry.Properties{"lang": "en"}, proxy.Properties())

	got, err := proxy.Call(context.Background(), "upper", "hi")
	require.NoError(t, err)
	assert.Equal(t, "HI", got)

	done := make(chan any, 1)
	_, err = proxy.CallAsync(context.Background(), "echo", []any{"async"}, func(result any, err error) {
		assert.NoError(t, err)
		done <- result
	})
	require.NoError(t, err)
	select {
	case result := <-done:
		assert.Equal(t, "async", result)
	case <-time.After(waitFor):
		t.Fatal("async call never completed")
	}

	// node-b re-exports the proxy; node-c reaches node-a through it.
	_, err = b.Register([]string{"Relay"}, proxy, nil)
	require.NoError(t, err)
	relay := lookupOne(t, c, "Relay")
	got, err = c.Call(context.Background(), relay, "echo", "via b")
	require.NoError(t, err)
	assert.Equal(t, "via b", got)

	_, err = b.RemoteService(registry.Reference{Owner: "node-a", ServiceID: 42})
	require.ErrorIs(t, err, rpc.ErrUnknownService)
}

func TestSession_CloseFailsPendingCalls(t *testing.T) {
	hub := transport.NewHub(zerolog.Nop())
	a := joinPeer(t, hub, "node-a")
	b := joinPeer(t, hub, "node-b")

	_, err := a.Register([]string{"Echo"}, echoService, nil)
	require.NoError(t, err)
	ref := lookupOne(t, b, "Echo")

	hub.SetDrop(func(from, to identity.PeerID, msg protocol.Message) bool {
		return msg.Kind() == protocol.KindRequest
	})
	pending, err := b.Invoke(context.Background(), ref, "echo", []any{"hi"}, 5*time.Second)
	require.NoError(t, err)

	b.Close()
	_, err = pending.Result()
	require.ErrorIs(t, err, rpc.ErrClosed)

	_, err = b.Invoke(context.Background(), ref, "echo", nil, 0)
	require.ErrorIs(t, err, rpc.ErrClosed)
	_, err = b.Register([]string{"Echo"}, echoService, nil)
	require.ErrorIs(t, err, rpc.ErrClosed)
}

func TestSession_ConcurrentCalls(t *testing.T) {
	hub := transport.NewHub(zerolog.Nop())
	a := joinPeer(t, hub, "node-a")
	b := joinPeer(t, hub, "node-b")

	_, err := a.Register([]string{"Echo"}, echoService, nil)
	require.NoError(t, err)
	ref := lookupOne(t, b, "Echo")

	const calls = 50
	var wg sync.WaitGroup
	errs := make(chan error, calls)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			want := fmt.Sprintf("msg-%d", i)
			got, err := b.Call(context.Background(), ref, "echo", want)
			if err == nil && got != want {
				err = fmt.Errorf("call %d: got %v", i, got)
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 0, b.InFlight())
}

func TestSession_RegistryEventsReachListeners(t *testing.T) {
	hub := transport.NewHub(zerolog.Nop())
	a := joinPeer(t, hub, "node-a")
	b := joinPeer(t, hub, "node-b")

	var mu sync.Mutex
	var seen []int
	remove := b.AddListener(func(ev registry.Event) {
		if ev.Kind != registry.EventRegistryUpdated || ev.Owner != "node-a" {
			return
		}
		mu.Lock()
		seen = append(seen, len(ev.Snapshot.Registrations))
		mu.Unlock()
	})
	defer remove()

	reg, err := a.Register([]string{"Echo"}, echoService, nil)
	require.NoError(t, err)
	require.NoError(t, reg.SetProperties(registry.Properties{"v": 2}))

	require.Eventually(t, func() bool {
		snap, ok := b.Resolve(reg.Reference())
		return ok && snap.Properties["v"] != nil
	}, waitFor, tick)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.Equal(t, 1, seen[len(seen)-1])
}
