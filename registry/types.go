package registry

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/adamgarcia4/goLearning/remotesvc/identity"
)

/*
Registry Model

Every peer keeps two registries:

	Local - the services this peer exports. Only this peer mutates it.
	Cache - one Snapshot per remote owner, as last announced by that owner.

ServiceRegistration:

	ServiceID is allocated by the owning peer from a monotonic counter and
	is never reused, even after the service is unregistered. Together with
	the owner it identifies a service group-wide.
	Interfaces and Owner never change after export. Properties may be
	replaced through Registration.SetProperties.

Snapshot:

	A value copy of every registration of one owner at one point in time.
	A newer Snapshot from the same owner fully replaces the older one; the
	Cache never merges two snapshots.

Reference:

	The (Owner, ServiceID) pair callers hold on to. It is only resolvable
	while the owner's current Snapshot still lists the ServiceID.
*/

// Properties are free-form service attributes. Values must be encodable
// by the wire codec and are treated as immutable once stored.
type Properties map[string]any

// Clone returns a shallow copy of p. A nil map clones to nil.
func (p Properties) Clone() Properties {
	if p == nil {
		return nil
	}
	return maps.Clone(p)
}

// ServiceRegistration describes one exported service.
type ServiceRegistration struct {
	ServiceID  uint64          `cbor:"id"`
	Interfaces []string        `cbor:"interfaces"`
	Properties Properties      `cbor:"props,omitempty"`
	Owner      identity.PeerID `cbor:"owner"`
}

// Clone returns a deep copy safe to hand to another goroutine.
func (r ServiceRegistration) Clone() ServiceRegistration {
	return ServiceRegistration{
		ServiceID:  r.ServiceID,
		Interfaces: slices.Clone(r.Interfaces),
		Properties: r.Properties.Clone(),
		Owner:      r.Owner,
	}
}

// Implements reports whether the registration exports iface.
func (r ServiceRegistration) Implements(iface string) bool {
	return slices.Contains(r.Interfaces, iface)
}

// Reference returns the caller-side handle for this registration.
func (r ServiceRegistration) Reference() Reference {
	return Reference{Owner: r.Owner, ServiceID: r.ServiceID}
}

// Snapshot is a point-in-time copy of one owner's registrations, ordered
// by ServiceID.
type Snapshot struct {
	Owner         identity.PeerID       `cbor:"owner"`
	Registrations []ServiceRegistration `cbor:"regs"`
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Owner: s.Owner}
	if s.Registrations != nil {
		out.Registrations = make([]ServiceRegistration, len(s.Registrations))
		for i, r := range s.Registrations {
			out.Registrations[i] = r.Clone()
		}
	}
	return out
}

// Find returns the registration with the given ServiceID.
func (s Snapshot) Find(serviceID uint64) (ServiceRegistration, bool) {
	for _, r := range s.Registrations {
		if r.ServiceID == serviceID {
			return r, true
		}
	}
	return ServiceRegistration{}, false
}

// Reference is an opaque, comparable handle over (Owner, ServiceID).
type Reference struct {
	Owner     identity.PeerID
	ServiceID uint64
}

func (r Reference) String() string {
	return fmt.Sprintf("%s/%d", r.Owner, r.ServiceID)
}

// Service is the handle a peer exports. Invoke runs on a dispatcher
// worker, never on the message delivery path, and may block until ctx is
// done.
type Service interface {
	Invoke(ctx context.Context, method string, params []any) (any, error)
}

// ServiceFunc adapts a plain function to Service.
type ServiceFunc func(ctx context.Context, method string, params []any) (any, error)

func (f ServiceFunc) Invoke(ctx context.Context, method string, params []any) (any, error) {
	return f(ctx, method, params)
}

// Method is one callable of a Methods service.
type Method func(ctx context.Context, params []any) (any, error)

// Methods is a Service that routes by method name.
type Methods map[string]Method

func (m Methods) Invoke(ctx context.Context, method string, params []any) (any, error) {
	fn, ok := m[method]
	if !ok || fn == nil {
		return nil, fmt.Errorf("%w: %q", ErrMethodNotFound, method)
	}
	return fn(ctx, params)
}
