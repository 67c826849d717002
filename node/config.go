package node

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/adamgarcia4/goLearning/remotesvc/identity"
)

// Default configuration constants
const (
	DefaultAddress          = "127.0.0.1"
	DefaultPort             = "50051"
	DefaultPeerID           = "node-1"
	DefaultGroup            = "default-group"
	DefaultCallTimeout      = 30 * time.Second
	DefaultWorkers          = 64
	DefaultBroadcastTimeout = 5 * time.Second
	DefaultLogLevel         = "info"
)

// Config holds the configuration for a node
type Config struct {
	// Peer identification
	PeerID identity.PeerID
	Group  string

	// Server configuration
	Address string
	Port    string

	// Peer configuration
	Seeds []string // List of seed peer addresses (e.g., ["127.0.0.1:50051", "127.0.0.1:50052"])

	// Call configuration
	DefaultTimeout   time.Duration // Bound on calls issued without an explicit timeout
	Workers          int           // Concurrent inbound requests served
	BroadcastTimeout time.Duration // Bound on one registry broadcast

	LogLevel   string
	ExportEcho bool // If true, the built-in echo service is exported on start
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig(peerID identity.PeerID) *Config {
	return &Config{
		PeerID:           peerID,
		Group:            DefaultGroup,
		Address:          DefaultAddress,
		Port:             DefaultPort,
		Seeds:            []string{},
		DefaultTimeout:   DefaultCallTimeout,
		Workers:          DefaultWorkers,
		BroadcastTimeout: DefaultBroadcastTimeout,
		LogLevel:         DefaultLogLevel,
	}
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if !c.PeerID.Valid() {
		return ErrPeerIDRequired
	}
	if c.Group == "" {
		return ErrGroupRequired
	}
	if c.Address == "" {
		return ErrAddressRequired
	}
	if c.Port == "" {
		return ErrPortRequired
	}
	if c.DefaultTimeout <= 0 || c.BroadcastTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Workers <= 0 {
		return ErrInvalidWorkers
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
	}
	return nil
}

// GetAddress returns the full address (address:port)
func (c *Config) GetAddress() string {
	return c.Address + ":" + c.Port
}
