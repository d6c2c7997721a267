// Package cmd implements the holdover command line: the daemon itself and
// the client commands that talk to it over the control-plane socket.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"grimm.is/holdover/internal/brand"
	"grimm.is/holdover/internal/config"
	"grimm.is/holdover/internal/ctlplane"
)

// Dialer opens a control-plane client for the socket at path.
type Dialer func(path string) (ctlplane.ControlPlaneClient, error)

func dialSocket(path string) (ctlplane.ControlPlaneClient, error) {
	return ctlplane.NewClient(path)
}

// cli carries the persistent flags shared by every subcommand.
type cli struct {
	configPath string
	socketPath string
	dial       Dialer
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(dialSocket)
}

func newRootCmd(dial Dialer) *cobra.Command {
	c := &cli{dial: dial}

	root := &cobra.Command{
		Use:           brand.BinaryName,
		Short:         brand.Description,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       brand.Version,
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", brand.GetConfigPath(), "configuration file")
	root.PersistentFlags().StringVar(&c.socketPath, "socket", "", "control-plane socket (default from config)")

	root.AddCommand(
		c.runCmd(),
		c.changeCmd(),
		c.revertCmd(),
		c.activateCmd(),
		c.statusCmd(),
		c.checkCmd(),
		c.historyCmd(),
		c.auditCmd(),
		c.logsCmd(),
		c.configCmd(),
	)
	return root
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", brand.BinaryName, err)
		return 1
	}
	return 0
}

// socket resolves the control-plane socket: the flag wins, then the config
// file, then the built-in default.
func (c *cli) socket() string {
	if c.socketPath != "" {
		return c.socketPath
	}
	if cfg, err := config.LoadFileOrDefault(c.configPath); err == nil {
		return cfg.Control.Socket
	}
	return brand.GetSocketPath()
}

// withClient dials the daemon, runs fn and closes the connection.
func (c *cli) withClient(fn func(ctlplane.ControlPlaneClient) error) error {
	path := c.socket()
	client, err := c.dial(path)
	if err != nil {
		return fmt.Errorf("%w\nis the daemon running? start it with: %s run", err, brand.BinaryName)
	}
	defer client.Close()
	return fn(client)
}
