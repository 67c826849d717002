package cmd

import (
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamgarcia4/goLearning/remotesvc/identity"
	"github.com/adamgarcia4/goLearning/remotesvc/node"
)

func TestParseParams(t *testing.T) {
	got := parseParams([]string{"1", "-2", "2.5", "hello", "1e3", ""})
	assert.Equal(t, []any{int64(1), int64(-2), 2.5, "hello", 1000.0, ""}, got)
}

func TestFormatCommandPreview(t *testing.T) {
	tests := map[string]string{
		"create":   "C",
		"delete:0": "D → 1",
		"toggle:2": "E → 3",
		"invoke:1": "I → 2",
		"invoke:x": "I → [node]",
		"other":    "other",
	}
	for in, want := range tests {
		assert.Equal(t, want, formatCommandPreview(in), in)
	}
}

func newCallLikeCommand() *cobra.Command {
	c := &cobra.Command{Use: "call"}
	addNodeFlags(c.Flags(), "")
	return c
}

func TestLoadConfig_CallerGetsRandomPeerID(t *testing.T) {
	first, err := loadConfig(newCallLikeCommand(), identity.New())
	require.NoError(t, err)
	second, err := loadConfig(newCallLikeCommand(), identity.New())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(first.PeerID.String(), "peer-"))
	assert.NotEqual(t, first.PeerID, second.PeerID)
	assert.NotEqual(t, identity.PeerID(node.DefaultPeerID), first.PeerID)
}

func TestLoadConfig_ExplicitPeerIDWins(t *testing.T) {
	t.Run("flag", func(t *testing.T) {
		c := newCallLikeCommand()
		require.NoError(t, c.Flags().Set("peer-id", "client"))
		cfg, err := loadConfig(c, identity.New())
		require.NoError(t, err)
		assert.Equal(t, identity.PeerID("client"), cfg.PeerID)
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv(node.EnvPeerID, "from-env")
		cfg, err := loadConfig(newCallLikeCommand(), identity.New())
		require.NoError(t, err)
		assert.Equal(t, identity.PeerID("from-env"), cfg.PeerID)
	})
}
