// Command shmrpc-peer is a reference peer binary exercising the
// substrate end to end: listen creates the shared-memory mapping and
// waits for a dialer, dial attaches to one, and both run an RPC
// Dispatch loop. Grounded on dsmmcken-dh-cli's Cobra dependency and
// command-factory pattern (go_src/internal/cmd/root.go:
// newXCmd()/addXCommands()/NewRootCmd()), adapted from its TUI-wizard
// root shape to a plain connect-and-serve loop.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string
var verbose bool

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "shmrpc-peer",
		Short:         "Run a shared-memory RPC peer",
		Long:          "shmrpc-peer listens for or dials a peer on a Unix-domain socket, exchanges shared-memory arena descriptors with it, and serves RPC envelopes over shared memory.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a config.toml (defaults apply if absent)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug-level logging")

	if v := os.Getenv("SHMRPC_CONFIG"); v != "" && configPath == "" {
		configPath = v
	}

	cmd.AddCommand(newListenCmd())
	cmd.AddCommand(newDialCmd())
	return cmd
}

func Execute() error {
	return newRootCmd().Execute()
}

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
