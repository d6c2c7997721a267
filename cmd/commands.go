package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"grimm.is/holdover/internal/ctlplane"
	"grimm.is/holdover/internal/override"
)

func (c *cli) changeCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "change",
		Short: "Apply the override now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withClient(func(client ctlplane.ControlPlaneClient) error {
				return RunCommand(client, override.CommandChange, verbose, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print the outcome after the acknowledgement")
	return cmd
}

func (c *cli) revertCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "revert",
		Short: "Restore the saved policy now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withClient(func(client ctlplane.ControlPlaneClient) error {
				return RunCommand(client, override.CommandRevert, verbose, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print the outcome after the acknowledgement")
	return cmd
}

// RunCommand sends change or revert and prints the fixed acknowledgement.
// The acknowledgement does not depend on the outcome.
func RunCommand(client ctlplane.ControlPlaneClient, name string, verbose bool, out io.Writer) error {
	var (
		reply *ctlplane.CommandReply
		err   error
	)
	switch name {
	case override.CommandChange:
		reply, err = client.Change()
	case override.CommandRevert:
		reply, err = client.Revert()
	default:
		return fmt.Errorf("%w: %q", override.ErrUnknownCommand, name)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	ack, err := json.Marshal(override.Ack{Response: reply.Response})
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(ack))
	if verbose {
		fmt.Fprintf(out, "outcome: %s\n", reply.Outcome)
		if reply.Error != "" {
			fmt.Fprintf(out, "error:   %s\n", reply.Error)
		}
	}
	return nil
}

func (c *cli) activateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate URL",
		Short: "Apply the override if URL matches the allow pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withClient(func(client ctlplane.ControlPlaneClient) error {
				return RunActivate(client, args[0], cmd.OutOrStdout())
			})
		},
	}
}

// RunActivate forwards url to the daemon and reports what happened.
func RunActivate(client ctlplane.ControlPlaneClient, url string, out io.Writer) error {
	reply, err := client.Activate(url)
	if err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	if !reply.Activation.Matched {
		fmt.Fprintf(out, "%s does not match the allow pattern, nothing done\n", url)
		return nil
	}
	fmt.Fprintf(out, "activated: %s\n", reply.Activation.Outcome)
	if reply.Error != "" {
		return fmt.Errorf("activate: %s", reply.Error)
	}
	return nil
}

func (c *cli) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run one TTL sweep immediately",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withClient(func(client ctlplane.ControlPlaneClient) error {
				return RunCheckTTL(client, cmd.OutOrStdout())
			})
		},
	}
}

// RunCheckTTL asks the daemon for an immediate sweep.
func RunCheckTTL(client ctlplane.ControlPlaneClient, out io.Writer) error {
	reply, err := client.CheckTTL()
	if err != nil {
		return fmt.Errorf("check: %w", err)
	}
	switch reply.Sweep.Result {
	case override.SweepIdle:
		fmt.Fprintln(out, "no override recorded")
	case override.SweepPending:
		fmt.Fprintf(out, "override active until %s\n", formatEpoch(reply.Sweep.ExpiresAt))
	case override.SweepExpired:
		fmt.Fprintf(out, "override expired, revert: %s\n", reply.Sweep.Outcome)
	default:
		fmt.Fprintf(out, "sweep: %s\n", reply.Sweep.Result)
	}
	if reply.Error != "" {
		return fmt.Errorf("check: %s", reply.Error)
	}
	return nil
}
