package node

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/adamgarcia4/goLearning/remotesvc/identity"
	"github.com/adamgarcia4/goLearning/remotesvc/logger"
	"github.com/adamgarcia4/goLearning/remotesvc/transport"
)

const (
	firstPort       = 50051
	maxPortAttempts = 20
)

// Manager manages multiple nodes of one group in a single process.
//
// A network manager gives every node its own gRPC port and seeds new nodes
// with the first live node; an in-memory manager puts them all on a Hub.
type Manager struct {
	nodes       []*Node        // maintain order with slice
	nodeMap     map[string]int // map peer ID to index for quick lookup
	mu          sync.RWMutex
	portCounter int // for auto-assigning ports
	nextID      int // monotonically increasing counter for unique peer IDs

	hub      *transport.Hub
	template Config
}

// NewManager creates a manager whose nodes talk gRPC on localhost.
func NewManager() *Manager {
	return newManager(nil)
}

// NewInMemoryManager creates a manager whose nodes share hub.
func NewInMemoryManager(hub *transport.Hub) *Manager {
	return newManager(hub)
}

func newManager(hub *transport.Hub) *Manager {
	template := *DefaultConfig(DefaultPeerID)
	template.ExportEcho = true
	return &Manager{
		nodes:       make([]*Node, 0),
		nodeMap:     make(map[string]int),
		portCounter: firstPort, // start from default port
		nextID:      1,         // start peer IDs at 1
		hub:         hub,
		template:    template,
	}
}

// SetTemplate replaces the config new nodes are created from. PeerID,
// Port and Seeds are always assigned by the manager.
func (m *Manager) SetTemplate(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.template = cfg
}

// CreateNode creates and starts a new node
func (m *Manager) CreateNode() (*Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Generate unique peer ID using monotonically increasing counter
	peerID := identity.PeerID(fmt.Sprintf("node-%d", m.nextID))
	m.nextID++ // increment counter for next node

	var (
		node *Node
		err  error
	)
	if m.hub != nil {
		node, err = m.startInMemory(peerID)
	} else {
		node, err = m.startOnNetwork(peerID)
	}
	if err != nil {
		return nil, err
	}

	// Add to slice and map
	m.nodes = append(m.nodes, node)
	m.nodeMap[string(peerID)] = len(m.nodes) - 1
	return node, nil
}

func (m *Manager) configFor(peerID identity.PeerID) *Config {
	cfg := m.template
	cfg.PeerID = peerID
	cfg.Seeds = []string{}
	return &cfg
}

func (m *Manager) startInMemory(peerID identity.PeerID) (*Node, error) {
	node, err := NewInMemory(m.configFor(peerID), m.hub)
	if err != nil {
		return nil, fmt.Errorf("failed to create node: %w", err)
	}
	if err := node.Start(); err != nil {
		return nil, fmt.Errorf("failed to start node: %w", err)
	}
	return node, nil
}

func (m *Manager) startOnNetwork(peerID identity.PeerID) (*Node, error) {
	var seeds []string
	if len(m.nodes) > 0 {
		seeds = []string{m.nodes[0].Addr()}
	}

	var lastErr error
	for attempt := 0; attempt < maxPortAttempts; attempt++ {
		cfg := m.configFor(peerID)
		cfg.Address = DefaultAddress
		cfg.Port = strconv.Itoa(m.findAvailablePort())
		cfg.Seeds = seeds

		node, err := New(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create node: %w", err)
		}
		if err := node.Start(); err != nil {
			// Most likely the port is taken; try the next one.
			lastErr = err
			logger.Errorf("node %s could not start on %s: %v", peerID, cfg.GetAddress(), err)
			continue
		}
		return node, nil
	}
	return nil, fmt.Errorf("failed to start node: %w", lastErr)
}

// DeleteNode stops and removes a node by its index in the list
func (m *Manager) DeleteNode(index int) error {
	m.mu.Lock()

	if index < 0 || index >= len(m.nodes) {
		m.mu.Unlock()
		return fmt.Errorf("invalid node index: %d", index)
	}

	node := m.nodes[index]
	peerID := string(node.ID())

	// Remove from slice and map before unlocking
	m.nodes = append(m.nodes[:index], m.nodes[index+1:]...)
	delete(m.nodeMap, peerID)

	// Rebuild map indices
	for i, n := range m.nodes {
		m.nodeMap[string(n.ID())] = i
	}

	m.mu.Unlock()

	// Stop node asynchronously to avoid blocking
	go func() {
		if err := node.Stop(); err != nil {
			// Log error but don't return it since we've already removed from list
			logger.Errorf("error stopping node %s: %v", peerID, err)
		}
	}()

	return nil
}

// GetNodes returns a list of all nodes (maintains order)
func (m *Manager) GetNodes() []*Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// Return a copy to avoid race conditions
	nodes := make([]*Node, len(m.nodes))
	copy(nodes, m.nodes)
	return nodes
}

// GetNode returns the node with the given peer ID.
func (m *Manager) GetNode(peerID identity.PeerID) (*Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.nodeMap[string(peerID)]
	if !ok {
		return nil, false
	}
	return m.nodes[i], true
}

// findAvailablePort finds the next available port
func (m *Manager) findAvailablePort() int {
	// Simple implementation: increment port counter
	port := m.portCounter
	m.portCounter++
	return port
}

// StopAll stops all nodes
func (m *Manager) StopAll() error {
	m.mu.Lock()
	nodes := make([]*Node, len(m.nodes))
	copy(nodes, m.nodes)
	m.mu.Unlock()

	var errs []error
	for _, node := range nodes {
		if err := node.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", node.ID(), err))
		}
	}
	return errors.Join(errs...)
}
