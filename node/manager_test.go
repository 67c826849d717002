package node

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamgarcia4/goLearning/remotesvc/identity"
	"github.com/adamgarcia4/goLearning/remotesvc/registry"
	"github.com/adamgarcia4/goLearning/remotesvc/transport"
)

func remoteEchoCount(n *Node) int {
	return len(n.Session().Lookup(registry.Query{Interface: EchoInterface}))
}

func TestManager_InMemory(t *testing.T) {
	m := NewInMemoryManager(transport.NewHub(zerolog.Nop()))
	t.Cleanup(func() { _ = m.StopAll() })

	for i := 0; i < 3; i++ {
		_, err := m.CreateNode()
		require.NoError(t, err)
	}

	nodes := m.GetNodes()
	require.Len(t, nodes, 3)
	for i, want := range []identity.PeerID{"node-1", "node-2", "node-3"} {
		assert.Equal(t, want, nodes[i].ID())
		assert.True(t, nodes[i].EchoExported())
	}

	// Every node sees the echo services of the other two.
	require.Eventually(t, func() bool {
		for _, n := range nodes {
			if remoteEchoCount(n) != 2 {
				return false
			}
		}
		return true
	}, waitFor, tick)

	require.NoError(t, m.DeleteNode(0))
	assert.Error(t, m.DeleteNode(5))
	assert.Error(t, m.DeleteNode(-1))

	remaining := m.GetNodes()
	require.Len(t, remaining, 2)
	_, ok := m.GetNode("node-1")
	assert.False(t, ok)
	n3, ok := m.GetNode("node-3")
	require.True(t, ok)
	assert.Same(t, remaining[1], n3)

	require.Eventually(t, func() bool {
		return remoteEchoCount(remaining[0]) == 1 && remoteEchoCount(remaining[1]) == 1
	}, waitFor, tick)

	// IDs are never reused.
	n4, err := m.CreateNode()
	require.NoError(t, err)
	assert.Equal(t, identity.PeerID("node-4"), n4.ID())

	require.NoError(t, m.StopAll())
	for _, n := range m.GetNodes() {
		assert.False(t, n.Running())
	}
}

func TestManager_TemplateAppliesToNewNodes(t *testing.T) {
	m := NewInMemoryManager(transport.NewHub(zerolog.Nop()))
	t.Cleanup(func() { _ = m.StopAll() })

	tmpl := *DefaultConfig("ignored")
	tmpl.ExportEcho = false
	tmpl.Workers = 2
	m.SetTemplate(tmpl)

	n, err := m.CreateNode()
	require.NoError(t, err)
	assert.Equal(t, identity.PeerID("node-1"), n.ID())
	assert.False(t, n.EchoExported())
	assert.Equal(t, 2, n.GetConfig().Workers)
}
