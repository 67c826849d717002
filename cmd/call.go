package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/adamgarcia4/goLearning/remotesvc/identity"
	"github.com/adamgarcia4/goLearning/remotesvc/logger"
	"github.com/adamgarcia4/goLearning/remotesvc/node"
)

var (
	callInterface string
	waitFor       time.Duration
)

var callCmd = &cobra.Command{
	Use:   "call METHOD [PARAM...]",
	Short: "Join a group, call a remote service once and leave",
	Long: `Join a group as a short-lived peer, wait until some peer exports the
interface, invoke METHOD on it and print the result.

The caller joins under a random peer ID unless --peer-id, the config file
or REMOTESVC_PEER_ID names one.

Parameters that parse as integers or floats are sent as numbers, anything
else as strings.

Examples:
  remotesvc call echo hello --port=50060 --seeds=127.0.0.1:50051
  remotesvc call sum 1 2 3 --peer-id=client --port=50060 --seeds=127.0.0.1:50051`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCall,
}

func init() {
	rootCmd.AddCommand(callCmd)
	addNodeFlags(callCmd.Flags(), "")
	callCmd.Flags().StringVarP(&callInterface, "interface", "i", node.EchoInterface, "Interface to call")
	callCmd.Flags().DurationVar(&waitFor, "wait", 10*time.Second, "How long to wait for the interface to appear")
}

func runCall(cmd *cobra.Command, args []string) error {
	// A short-lived caller must not collide with a long-running peer.
	cfg, err := loadConfig(cmd, identity.New())
	if err != nil {
		return err
	}
	n, err := startNode(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := n.Stop(); err != nil {
			logger.Errorf("Error during shutdown: %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(cmd.Context(), waitFor)
	defer cancel()
	if _, err := n.WaitForInterface(ctx, callInterface); err != nil {
		return err
	}

	callCtx, cancelCall := context.WithTimeout(cmd.Context(), cfg.DefaultTimeout)
	defer cancelCall()
	result, ref, err := n.CallInterface(callCtx, callInterface, args[0], parseParams(args[1:])...)
	if err != nil {
		return fmt.Errorf("call %s.%s on %s: %w", callInterface, args[0], ref, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%v\n", result)
	return nil
}

func parseParams(args []string) []any {
	params := make([]any, 0, len(args))
	for _, arg := range args {
		if i, err := strconv.ParseInt(arg, 10, 64); err == nil {
			params = append(params, i)
			continue
		}
		if f, err := strconv.ParseFloat(arg, 64); err == nil {
			params = append(params, f)
			continue
		}
		params = append(params, arg)
	}
	return params
}
