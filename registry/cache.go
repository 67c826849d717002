package registry

import (
	"reflect"
	"slices"
	"sync"

	"github.com/adamgarcia4/goLearning/remotesvc/identity"
)

// EventKind classifies a remote registry event.
type EventKind int

const (
	// EventRegistryUpdated fires when an owner's snapshot is stored.
	EventRegistryUpdated EventKind = iota + 1
	// EventRegistryRemoved fires when an owner's snapshot is evicted.
	EventRegistryRemoved
)

func (k EventKind) String() string {
	switch k {
	case EventRegistryUpdated:
		return "updated"
	case EventRegistryRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event reports a change of one owner's cached registry. Snapshot is
// empty for EventRegistryRemoved.
type Event struct {
	Kind     EventKind
	Owner    identity.PeerID
	Snapshot Snapshot
}

// Listener receives cache events. It is called after the cache mutex is
// released and must not block for long.
type Listener func(Event)

// Filter selects registrations by their properties.
type Filter func(Properties) bool

// MatchProperties returns a Filter that requires every key in want to be
// present with a deeply equal value.
func MatchProperties(want Properties) Filter {
	return func(props Properties) bool {
		for k, v := range want {
			got, ok := props[k]
			if !ok || !reflect.DeepEqual(got, v) {
				return false
			}
		}
		return true
	}
}

// Query narrows a reference lookup. Zero fields match everything.
type Query struct {
	// Interface, when set, must be one of the exported interface names.
	Interface string
	// Owners restricts the lookup to the given peers.
	Owners []identity.PeerID
	// Filter, when set, must accept the service properties.
	Filter Filter
}

func (q Query) matches(r ServiceRegistration) bool {
	if q.Interface != "" && !r.Implements(q.Interface) {
		return false
	}
	if q.Filter != nil && !q.Filter(r.Properties) {
		return false
	}
	return true
}

// Cache stores the latest snapshot received from each remote owner.
type Cache struct {
	local identity.PeerID

	mu      sync.RWMutex
	byOwner map[identity.PeerID]Snapshot

	listenerMu sync.RWMutex
	listeners  map[int]Listener
	nextLID    int
}

// NewCache creates an empty cache for the peer local. Snapshots owned by
// local are never stored.
func NewCache(local identity.PeerID) *Cache {
	return &Cache{
		local:     local,
		byOwner:   make(map[identity.PeerID]Snapshot),
		listeners: make(map[int]Listener),
	}
}

// Replace stores snap as the owner's registry, discarding whatever was
// cached before. It reports false for a self-echo or an ownerless
// snapshot, which are never stored. Every stored registration is owned by
// snap.Owner, whatever the sender put in it.
func (c *Cache) Replace(snap Snapshot) bool {
	if !snap.Owner.Valid() || snap.Owner == c.local {
		return false
	}
	stored := snap.Clone()
	for i := range stored.Registrations {
		stored.Registrations[i].Owner = snap.Owner
	}

	c.mu.Lock()
	c.byOwner[snap.Owner] = stored
	c.mu.Unlock()

	c.emit(Event{Kind: EventRegistryUpdated, Owner: snap.Owner, Snapshot: stored.Clone()})
	return true
}

// Evict drops the owner's snapshot. It reports whether one was cached.
func (c *Cache) Evict(owner identity.PeerID) bool {
	c.mu.Lock()
	_, ok := c.byOwner[owner]
	delete(c.byOwner, owner)
	c.mu.Unlock()

	if ok {
		c.emit(Event{Kind: EventRegistryRemoved, Owner: owner})
	}
	return ok
}

// Resolve returns the registration a reference points at, if the owner's
// current snapshot still lists it.
func (c *Cache) Resolve(ref Reference) (ServiceRegistration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap, ok := c.byOwner[ref.Owner]
	if !ok {
		return ServiceRegistration{}, false
	}
	reg, ok := snap.Find(ref.ServiceID)
	if !ok {
		return ServiceRegistration{}, false
	}
	return reg.Clone(), true
}

// Snapshot returns a copy of the cached snapshot for owner.
func (c *Cache) Snapshot(owner identity.PeerID) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap, ok := c.byOwner[owner]
	if !ok {
		return Snapshot{}, false
	}
	return snap.Clone(), true
}

// Owners returns the peers with a cached snapshot, sorted.
func (c *Cache) Owners() []identity.PeerID {
	c.mu.RLock()
	owners := make([]identity.PeerID, 0, len(c.byOwner))
	for owner := range c.byOwner {
		owners = append(owners, owner)
	}
	c.mu.RUnlock()

	slices.Sort(owners)
	return owners
}

// Lookup returns references to every cached registration matching q,
// ordered by owner then ServiceID.
func (c *Cache) Lookup(q Query) []Reference {
	owners := q.Owners
	if len(owners) == 0 {
		owners = c.Owners()
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var refs []Reference
	for _, owner := range owners {
		snap, ok := c.byOwner[owner]
		if !ok {
			continue
		}
		for _, reg := range snap.Registrations {
			if q.matches(reg) {
				refs = append(refs, reg.Reference())
			}
		}
	}
	return refs
}

// AddListener subscribes fn to cache events and returns a function that
// removes the subscription.
func (c *Cache) AddListener(fn Listener) (remove func()) {
	if fn == nil {
		return func() {}
	}

	c.listenerMu.Lock()
	id := c.nextLID
	c.nextLID++
	c.listeners[id] = fn
	c.listenerMu.Unlock()

	return func() {
		c.listenerMu.Lock()
		delete(c.listeners, id)
		c.listenerMu.Unlock()
	}
}

func (c *Cache) emit(ev Event) {
	c.listenerMu.RLock()
	fns := make([]Listener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.listenerMu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}
