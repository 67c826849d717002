package registry

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/adamgarcia4/goLearning/remotesvc/identity"
)

// ChangeFunc receives the registry snapshot taken right after a mutation.
type ChangeFunc func(Snapshot)

type localEntry struct {
	reg     ServiceRegistration
	service Service
}

// Local holds the services exported by one peer.
//
// All mutation and snapshot reads share one mutex, so a Snapshot never
// observes a half-applied Register or Unregister. Change notifications
// run outside that mutex but are serialized by notifyMu in mutation order.
type Local struct {
	owner identity.PeerID

	notifyMu sync.Mutex
	onChange ChangeFunc

	mu      sync.RWMutex
	nextID  uint64
	entries map[uint64]*localEntry
}

// NewLocal creates an empty registry for owner.
func NewLocal(owner identity.PeerID) *Local {
	return &Local{
		owner:   owner,
		nextID:  1,
		entries: make(map[uint64]*localEntry),
	}
}

// Owner returns the peer that exports the registry's services.
func (l *Local) Owner() identity.PeerID {
	return l.owner
}

// OnChange installs the snapshot-changed hook. It is called synchronously
// from Register, Unregister and SetProperties.
func (l *Local) OnChange(fn ChangeFunc) {
	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()
	l.onChange = fn
}

// Register exports service under the given interface names and returns
// the handle used to unregister it.
func (l *Local) Register(interfaces []string, service Service, props Properties) (*Registration, error) {
	if len(interfaces) == 0 {
		return nil, fmt.Errorf("%w: interface list is empty", ErrInvalidArgument)
	}
	if slices.ContainsFunc(interfaces, func(s string) bool { return strings.TrimSpace(s) == "" }) {
		return nil, fmt.Errorf("%w: interface name is empty", ErrInvalidArgument)
	}
	if isNil(service) {
		return nil, fmt.Errorf("%w: service is nil", ErrInvalidArgument)
	}

	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()

	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.entries[id] = &localEntry{
		reg: ServiceRegistration{
			ServiceID:  id,
			Interfaces: slices.Clone(interfaces),
			Properties: props.Clone(),
			Owner:      l.owner,
		},
		service: service,
	}
	snap := l.snapshotLocked()
	l.mu.Unlock()

	l.notify(snap)
	return &Registration{local: l, id: id}, nil
}

// Unregister removes reg. Removing an already removed registration is a
// no-op and triggers no notification.
func (l *Local) Unregister(reg *Registration) {
	if reg == nil || reg.local != l {
		return
	}

	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()

	l.mu.Lock()
	if _, ok := l.entries[reg.id]; !ok {
		l.mu.Unlock()
		return
	}
	delete(l.entries, reg.id)
	snap := l.snapshotLocked()
	l.mu.Unlock()

	l.notify(snap)
}

// SetProperties replaces the properties of a live registration.
func (l *Local) SetProperties(reg *Registration, props Properties) error {
	if reg == nil || reg.local != l {
		return fmt.Errorf("%w: foreign registration", ErrInvalidArgument)
	}

	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()

	l.mu.Lock()
	entry, ok := l.entries[reg.id]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("%w: service %d", ErrNotRegistered, reg.id)
	}
	entry.reg.Properties = props.Clone()
	snap := l.snapshotLocked()
	l.mu.Unlock()

	l.notify(snap)
	return nil
}

// Republish hands the current snapshot to the change hook, ordered with
// the notifications of concurrent mutations.
func (l *Local) Republish() {
	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()

	l.notify(l.Snapshot())
}

// FindByID returns the registration and service handle for serviceID.
func (l *Local) FindByID(serviceID uint64) (ServiceRegistration, Service, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entry, ok := l.entries[serviceID]
	if !ok {
		return ServiceRegistration{}, nil, false
	}
	return entry.reg.Clone(), entry.service, true
}

// Snapshot returns a copy of every current registration ordered by
// ServiceID.
func (l *Local) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

// Len returns the number of exported services.
func (l *Local) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func (l *Local) snapshotLocked() Snapshot {
	regs := make([]ServiceRegistration, 0, len(l.entries))
	for _, entry := range l.entries {
		regs = append(regs, entry.reg.Clone())
	}
	slices.SortFunc(regs, func(a, b ServiceRegistration) int {
		switch {
		case a.ServiceID < b.ServiceID:
			return -1
		case a.ServiceID > b.ServiceID:
			return 1
		}
		return 0
	})
	return Snapshot{Owner: l.owner, Registrations: regs}
}

// notify must be called with notifyMu held.
func (l *Local) notify(snap Snapshot) {
	if l.onChange != nil {
		l.onChange(snap)
	}
}

// Registration is the exporter's handle to one registered service.
type Registration struct {
	local *Local
	id    uint64
}

// ServiceID returns the identifier allocated at registration.
func (r *Registration) ServiceID() uint64 {
	return r.id
}

// Unregister removes the service; safe to call more than once.
func (r *Registration) Unregister() {
	if r == nil || r.local == nil {
		return
	}
	r.local.Unregister(r)
}

// SetProperties replaces the service properties and re-announces the
// registry.
func (r *Registration) SetProperties(props Properties) error {
	if r == nil || r.local == nil {
		return fmt.Errorf("%w: nil registration", ErrInvalidArgument)
	}
	return r.local.SetProperties(r, props)
}

// Reference returns the handle remote peers use for this service.
func (r *Registration) Reference() Reference {
	return Reference{Owner: r.local.owner, ServiceID: r.id}
}

// isNil also catches typed nils such as ServiceFunc(nil) or Methods(nil).
func isNil(service Service) bool {
	if service == nil {
		return true
	}
	v := reflect.ValueOf(service)
	switch v.Kind() {
	case reflect.Func, reflect.Map, reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Chan:
		return v.IsNil()
	}
	return false
}
