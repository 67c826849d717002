package node

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamgarcia4/goLearning/remotesvc/identity"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "no peer", mutate: func(c *Config) { c.PeerID = "" }, want: ErrPeerIDRequired},
		{name: "no group", mutate: func(c *Config) { c.Group = "" }, want: ErrGroupRequired},
		{name: "no address", mutate: func(c *Config) { c.Address = "" }, want: ErrAddressRequired},
		{name: "no port", mutate: func(c *Config) { c.Port = "" }, want: ErrPortRequired},
		{name: "zero call timeout", mutate: func(c *Config) { c.DefaultTimeout = 0 }, want: ErrInvalidTimeout},
		{name: "negative broadcast timeout", mutate: func(c *Config) { c.BroadcastTimeout = -time.Second }, want: ErrInvalidTimeout},
		{name: "no workers", mutate: func(c *Config) { c.Workers = 0 }, want: ErrInvalidWorkers},
		{name: "bad level", mutate: func(c *Config) { c.LogLevel = "loud" }, want: ErrInvalidLogLevel},
		{name: "upper case level", mutate: func(c *Config) { c.LogLevel = "DEBUG" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("node-1")
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestConfig_GetAddress(t *testing.T) {
	cfg := DefaultConfig("node-1")
	assert.Equal(t, "127.0.0.1:50051", cfg.GetAddress())
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "remotesvc.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigFile_OverlaysDefinedKeys(t *testing.T) {
	path := writeConfig(t, `
peer_id = "node-9"
group = "payments"
port = 50070
seeds = [" 127.0.0.1:50051 ", "", "127.0.0.1:50052"]
default_timeout = "2s"
workers = 8
log_level = "debug"
export_echo = true
`)

	cfg := DefaultConfig("node-1")
	require.NoError(t, LoadConfigFile(path, cfg))

	assert.Equal(t, identity.PeerID("node-9"), cfg.PeerID)
	assert.Equal(t, "payments", cfg.Group)
	assert.Equal(t, DefaultAddress, cfg.Address, "absent keys keep their value")
	assert.Equal(t, "50070", cfg.Port)
	assert.Equal(t, []string{"127.0.0.1:50051", "127.0.0.1:50052"}, cfg.Seeds)
	assert.Equal(t, 2*time.Second, cfg.DefaultTimeout)
	assert.Equal(t, DefaultBroadcastTimeout, cfg.BroadcastTimeout)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.ExportEcho)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigFile_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "unknown key", body: `colour = "blue"`, want: `unknown key "colour"`},
		{name: "bad duration", body: `default_timeout = "soon"`, want: "parse default_timeout"},
		{name: "bad broadcast duration", body: `broadcast_timeout = "1 minute"`, want: "parse broadcast_timeout"},
		{name: "empty peer", body: `peer_id = "  "`, want: "parse peer_id"},
		{name: "not toml", body: `peer_id = `, want: "load config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("node-1")
			err := LoadConfigFile(writeConfig(t, tt.body), cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.toml"), DefaultConfig("node-1"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvPeerID:   "node-3",
		EnvGroup:    " orders ",
		EnvPort:     "6000",
		EnvSeeds:    "a:1, ,b:2",
		EnvLogLevel: " WARN ",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := DefaultConfig("node-1")
	require.NoError(t, ApplyEnv(cfg, lookup))

	assert.Equal(t, identity.PeerID("node-3"), cfg.PeerID)
	assert.Equal(t, "orders", cfg.Group)
	assert.Equal(t, DefaultAddress, cfg.Address)
	assert.Equal(t, "6000", cfg.Port)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Seeds)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestApplyEnv_Errors(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "port not a number", key: EnvPort, val: "http"},
		{name: "port out of range", key: EnvPort, val: "70000"},
		{name: "blank peer", key: EnvPeerID, val: " "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookup := func(key string) (string, bool) {
				if key == tt.key {
					return tt.val, true
				}
				return "", false
			}
			err := ApplyEnv(DefaultConfig("node-1"), lookup)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}
