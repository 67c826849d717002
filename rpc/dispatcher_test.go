package rpc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamgarcia4/goLearning/remotesvc/identity"
	"github.com/adamgarcia4/goLearning/remotesvc/protocol"
	"github.com/adamgarcia4/goLearning/remotesvc/registry"
)

type sentResponse struct {
	to   identity.PeerID
	resp *protocol.Response
}

// encodingSender runs every response through the wire codec, like a real
// transport would, and publishes what it sent.
type encodingSender struct {
	out chan sentResponse
}

func newEncodingSender() *encodingSender {
	return &encodingSender{out: make(chan sentResponse, 16)}
}

func (s *encodingSender) SendResponse(ctx context.Context, to identity.PeerID, resp *protocol.Response) error {
	if _, err := protocol.Encode("node-a", resp); err != nil {
		return err
	}
	s.out <- sentResponse{to: to, resp: resp}
	return nil
}

func (s *encodingSender) next(t *testing.T) sentResponse {
	t.Helper()
	select {
	case r := <-s.out:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no response sent")
		return sentResponse{}
	}
}

func (s *encodingSender) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case r := <-s.out:
		t.Fatalf("unexpected response %+v", r.resp)
	case <-time.After(wait):
	}
}

func newTestDispatcher(t *testing.T, services registry.Methods) (*Dispatcher, *registry.Local, *encodingSender) {
	t.Helper()
	local := registry.NewLocal("node-a")
	_, err := local.Register([]string{"Test"}, services, nil)
	require.NoError(t, err)

	sender := newEncodingSender()
	d := NewDispatcher(local, sender, DispatcherConfig{Logger: zerolog.Nop()})
	t.Cleanup(d.Close)
	return d, local, sender
}

func request(id uint64, serviceID uint64, method string, params ...any) *protocol.Request {
	return &protocol.Request{RequestID: id, Originator: "node-b", ServiceID: serviceID, Method: method, Params: params}
}

func TestDispatcher_Success(t *testing.T) {
	d, _, sender := newTestDispatcher(t, registry.Methods{
		"echo": func(ctx context.Context, params []any) (any, error) { return params[0], nil },
	})

	require.True(t, d.OnRequest("node-b", request(7, 1, "echo", "hi")))

	got := sender.next(t)
	assert.Equal(t, identity.PeerID("node-b"), got.to)
	assert.Equal(t, &protocol.Response{RequestID: 7, Result: "hi"}, got.resp)
	sender.none(t, 20*time.Millisecond)
}

func TestDispatcher_Faults(t *testing.T) {
	d, _, sender := newTestDispatcher(t, registry.Methods{
		"fail":  func(ctx context.Context, params []any) (any, error) { return nil, errors.New("disk full") },
		"panic": func(ctx context.Context, params []any) (any, error) { panic("boom") },
		"chan":  func(ctx context.Context, params []any) (any, error) { return make(chan int), nil },
	})

	tests := []struct {
		name     string
		req      *protocol.Request
		wantCode protocol.FaultCode
		wantMsg  string
	}{
		{"unknown service", request(1, 99, "echo"), protocol.FaultServiceNotFound, "service 99 is not exported"},
		{"service error", request(2, 1, "fail"), protocol.FaultInvocation, "disk full"},
		{"unknown method", request(3, 1, "missing"), protocol.FaultInvocation, "method not found"},
		{"panic", request(4, 1, "panic"), protocol.FaultInvocation, "service panicked: boom"},
		{"unencodable result", request(5, 1, "chan"), protocol.FaultInvocation, "not encodable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.True(t, d.OnRequest("node-b", tt.req))

			got := sender.next(t)
			require.NotNil(t, got.resp.Fault)
			assert.Equal(t, tt.req.RequestID, got.resp.RequestID)
			assert.Equal(t, tt.wantCode, got.resp.Fault.Code)
			assert.Contains(t, got.resp.Fault.Message, tt.wantMsg)
			sender.none(t, 10*time.Millisecond)
		})
	}
}

func TestDispatcher_SlowServiceDoesNotBlockOthers(t *testing.T) {
	release := make(chan struct{})
	d, _, sender := newTestDispatcher(t, registry.Methods{
		"slow": func(ctx context.Context, params []any) (any, error) {
			<-release
			return "slow", nil
		},
		"fast": func(ctx context.Context, params []any) (any, error) { return "fast", nil },
	})

	require.True(t, d.OnRequest("node-b", request(1, 1, "slow")))
	require.True(t, d.OnRequest("node-b", request(2, 1, "fast")))

	first := sender.next(t)
	assert.Equal(t, uint64(2), first.resp.RequestID)

	close(release)
	second := sender.next(t)
	assert.Equal(t, uint64(1), second.resp.RequestID)
}

func TestDispatcher_RequestTimeoutBoundsInvocation(t *testing.T) {
	d, _, sender := newTestDispatcher(t, registry.Methods{
		"wait": func(ctx context.Context, params []any) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	req := request(1, 1, "wait")
	req.Timeout = 20 * time.Millisecond
	require.True(t, d.OnRequest("node-b", req))

	got := sender.next(t)
	require.NotNil(t, got.resp.Fault)
	assert.Contains(t, got.resp.Fault.Message, context.DeadlineExceeded.Error())
}

func TestDispatcher_UnregisteredServiceIsNotFound(t *testing.T) {
	local := registry.NewLocal("node-a")
	reg, err := local.Register([]string{"Test"}, registry.Methods{}, nil)
	require.NoError(t, err)
	reg.Unregister()

	sender := newEncodingSender()
	d := NewDispatcher(local, sender, DispatcherConfig{Logger: zerolog.Nop()})
	defer d.Close()

	d.OnRequest("node-b", request(1, reg.ServiceID(), "echo"))
	got := sender.next(t)
	require.NotNil(t, got.resp.Fault)
	assert.Equal(t, protocol.FaultServiceNotFound, got.resp.Fault.Code)
}

func TestDispatcher_CloseCancelsAndRejects(t *testing.T) {
	local := registry.NewLocal("node-a")
	_, err := local.Register([]string{"Test"}, registry.Methods{
		"wait": func(ctx context.Context, params []any) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}, nil)
	require.NoError(t, err)

	sender := newEncodingSender()
	d := NewDispatcher(local, sender, DispatcherConfig{Logger: zerolog.Nop()})

	require.True(t, d.OnRequest("node-b", request(1, 1, "wait")))
	time.Sleep(10 * time.Millisecond)
	d.Close()

	got := sender.next(t)
	require.NotNil(t, got.resp.Fault)
	assert.Equal(t, protocol.FaultInvocation, got.resp.Fault.Code)

	assert.False(t, d.OnRequest("node-b", request(2, 1, "wait")))
}
