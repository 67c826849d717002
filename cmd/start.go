package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/adamgarcia4/goLearning/remotesvc/identity"
	"github.com/adamgarcia4/goLearning/remotesvc/logger"
	"github.com/adamgarcia4/goLearning/remotesvc/node"
)

var (
	configPath string

	address    string
	port       string
	peerID     string
	group      string
	seeds      []string
	timeout    time.Duration
	workers    int
	logLevel   string
	exportEcho bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a peer",
	Long: `Start a peer and join its group.

Examples:
  # Start a peer exporting the echo service
  remotesvc start --peer-id=node-1 --port=50051 --export-echo

  # Start a peer with seeds (peers to join through)
  remotesvc start --peer-id=node-2 --port=50052 --seeds=127.0.0.1:50051`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
	addNodeFlags(startCmd.Flags(), node.DefaultPeerID)
	startCmd.Flags().BoolVar(&exportEcho, "export-echo", false, "Export the built-in echo service")
}

// addNodeFlags registers the flags shared by every command that runs a peer.
func addNodeFlags(fs *pflag.FlagSet, defaultPeerID string) {
	// Server flags
	fs.StringVarP(&address, "address", "a", node.DefaultAddress, "Address to bind the server to")
	fs.StringVarP(&port, "port", "p", node.DefaultPort, "Port to bind the server to")
	fs.StringVarP(&peerID, "peer-id", "n", defaultPeerID, "Unique peer identifier")

	// Group flags
	fs.StringVarP(&group, "group", "g", node.DefaultGroup, "Group to join")
	fs.StringSliceVarP(&seeds, "seeds", "s", []string{}, "Seed peer addresses (comma-separated)")

	// Call flags
	fs.DurationVar(&timeout, "timeout", node.DefaultCallTimeout, "Default call timeout")
	fs.IntVar(&workers, "workers", node.DefaultWorkers, "Concurrent inbound requests served")
	fs.StringVar(&logLevel, "log-level", node.DefaultLogLevel, "Log level (debug, info, warn, error)")
}

// loadConfig layers defaults, the config file, the environment and the
// flags the user actually set, in that order. defaultPeerID is used when
// none of them names the peer.
func loadConfig(cmd *cobra.Command, defaultPeerID identity.PeerID) (*node.Config, error) {
	cfg := node.DefaultConfig(defaultPeerID)
	if configPath != "" {
		if err := node.LoadConfigFile(configPath, cfg); err != nil {
			return nil, err
		}
	}
	if err := node.ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("peer-id") {
		cfg.PeerID = identity.PeerID(peerID)
	}
	if flags.Changed("group") {
		cfg.Group = group
	}
	if flags.Changed("address") {
		cfg.Address = address
	}
	if flags.Changed("port") {
		cfg.Port = port
	}
	if flags.Changed("seeds") {
		cfg.Seeds = seeds
	}
	if flags.Changed("timeout") {
		cfg.DefaultTimeout = timeout
	}
	if flags.Changed("workers") {
		cfg.Workers = workers
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("export-echo") {
		cfg.ExportEcho = exportEcho
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// startNode initializes the stdout logger and starts a gRPC peer.
func startNode(cfg *node.Config) (*node.Node, error) {
	// Initialize logger for non-interactive mode (write to stdout)
	logger.Init("", true) // No prefix, write to stdout
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		return nil, err
	}

	n, err := node.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create node: %w", err)
	}
	if err := n.Start(); err != nil {
		return nil, fmt.Errorf("failed to start node: %w", err)
	}
	return n, nil
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, node.DefaultPeerID)
	if err != nil {
		return err
	}
	n, err := startNode(cfg)
	if err != nil {
		return err
	}

	// Wait for interrupt signal for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Infof("Shutting down...")
	if err := n.Stop(); err != nil {
		logger.Errorf("Error during shutdown: %v", err)
	}
	return nil
}
