package session

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/adamgarcia4/goLearning/remotesvc/registry"
	"github.com/adamgarcia4/goLearning/remotesvc/rpc"
)

// RemoteService is a proxy bound to one remote reference. It stays usable
// after the owner withdraws the service; calls then fail with
// rpc.ErrUnknownService.
//
// A RemoteService is itself a registry.Service, so it can be re-exported.
type RemoteService struct {
	session *Session
	reg     registry.ServiceRegistration
	// Timeout bounds each call; zero uses the session default.
	Timeout time.Duration
}

var _ registry.Service = (*RemoteService)(nil)

// RemoteService returns a proxy for ref, which must currently resolve.
func (s *Session) RemoteService(ref registry.Reference) (*RemoteService, error) {
	reg, ok := s.cache.Resolve(ref)
	if !ok {
		return nil, fmt.Errorf("%w: %s", rpc.ErrUnknownService, ref)
	}
	return &RemoteService{session: s, reg: reg}, nil
}

// Reference returns the reference the proxy calls.
func (r *RemoteService) Reference() registry.Reference {
	return r.reg.Reference()
}

// Interfaces returns the interface names the service was exported under.
func (r *RemoteService) Interfaces() []string {
	return slices.Clone(r.reg.Interfaces)
}

// Properties returns the service properties as of the proxy's creation.
func (r *RemoteService) Properties() registry.Properties {
	return r.reg.Properties.Clone()
}

// Call invokes method and waits for the result.
func (r *RemoteService) Call(ctx context.Context, method string, params ...any) (any, error) {
	return r.Invoke(ctx, method, params)
}

// Invoke implements registry.Service.
func (r *RemoteService) Invoke(ctx context.Context, method string, params []any) (any, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	return r.session.Call(ctx, r.Reference(), method, params...)
}

// CallAsync starts method and runs done with the outcome once it
// completes. done may be nil.
func (r *RemoteService) CallAsync(ctx context.Context, method string, params []any, done func(result any, err error)) (*rpc.Pending, error) {
	pending, err := r.session.Invoke(ctx, r.Reference(), method, params, r.Timeout)
	if err != nil {
		return nil, err
	}
	if done != nil {
		pending.OnComplete(done)
	}
	return pending, nil
}
