package node

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/adamgarcia4/goLearning/remotesvc/identity"
)

const (
	EnvPeerID   = "REMOTESVC_PEER_ID"
	EnvAddress  = "REMOTESVC_ADDRESS"
	EnvPort     = "REMOTESVC_PORT"
	EnvSeeds    = "REMOTESVC_SEEDS"
	EnvGroup    = "REMOTESVC_GROUP"
	EnvLogLevel = "REMOTESVC_LOG_LEVEL"
)

type fileConfig struct {
	PeerID           string   `toml:"peer_id"`
	Group            string   `toml:"group"`
	Address          string   `toml:"address"`
	Port             int      `toml:"port"`
	Seeds            []string `toml:"seeds"`
	DefaultTimeout   string   `toml:"default_timeout"`
	Workers          int      `toml:"workers"`
	BroadcastTimeout string   `toml:"broadcast_timeout"`
	LogLevel         string   `toml:"log_level"`
	ExportEcho       bool     `toml:"export_echo"`
}

// LoadConfigFile overlays the TOML file at path onto cfg. Only keys
// present in the file change cfg; unknown keys are an error.
func LoadConfigFile(path string, cfg *Config) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("peer_id") {
		id, err := identity.Parse(raw.PeerID)
		if err != nil {
			return fmt.Errorf("parse peer_id: %w", err)
		}
		cfg.PeerID = id
	}
	if meta.IsDefined("group") {
		cfg.Group = strings.TrimSpace(raw.Group)
	}
	if meta.IsDefined("address") {
		cfg.Address = strings.TrimSpace(raw.Address)
	}
	if meta.IsDefined("port") {
		cfg.Port = strconv.Itoa(raw.Port)
	}
	if meta.IsDefined("seeds") {
		cfg.Seeds = normalizeSeeds(raw.Seeds)
	}
	if meta.IsDefined("default_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.DefaultTimeout))
		if err != nil {
			return fmt.Errorf("parse default_timeout: %w", err)
		}
		cfg.DefaultTimeout = d
	}
	if meta.IsDefined("workers") {
		cfg.Workers = raw.Workers
	}
	if meta.IsDefined("broadcast_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.BroadcastTimeout))
		if err != nil {
			return fmt.Errorf("parse broadcast_timeout: %w", err)
		}
		cfg.BroadcastTimeout = d
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("export_echo") {
		cfg.ExportEcho = raw.ExportEcho
	}
	return nil
}

// ApplyEnv overlays REMOTESVC_* variables found through lookup onto cfg.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvPeerID); ok {
		id, err := identity.Parse(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPeerID, err)
		}
		cfg.PeerID = id
	}
	if v, ok := lookup(EnvGroup); ok && strings.TrimSpace(v) != "" {
		cfg.Group = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvAddress); ok && strings.TrimSpace(v) != "" {
		cfg.Address = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvPort); ok && strings.TrimSpace(v) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("%s: invalid port %q", EnvPort, v)
		}
		cfg.Port = strconv.Itoa(port)
	}
	if v, ok := lookup(EnvSeeds); ok {
		cfg.Seeds = normalizeSeeds(strings.Split(v, ","))
	}
	if v, ok := lookup(EnvLogLevel); ok && strings.TrimSpace(v) != "" {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(v))
	}
	return nil
}

func normalizeSeeds(in []string) []string {
	out := make([]string, 0, len(in))
	for _, seed := range in {
		v := strings.TrimSpace(seed)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
