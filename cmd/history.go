package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"grimm.is/holdover/internal/ctlplane"
)

func (c *cli) historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent apply and revert transitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withClient(func(client ctlplane.ControlPlaneClient) error {
				return RunHistory(client, limit, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "lines", "n", 20, "number of transitions to show, 0 for all")
	return cmd
}

// RunHistory prints the transition journal, oldest first.
func RunHistory(client ctlplane.ControlPlaneClient, limit int, out io.Writer) error {
	entries, err := client.GetHistory(limit)
	if err != nil {
		return fmt.Errorf("failed to get history: %w", err)
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "no transitions recorded")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tOP\tTRIGGER\tOUTCOME\tOP ID\tERROR")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Time.Local().Format("15:04:05"), e.Op, e.Trigger, e.Outcome, shortID(e.OpID), e.Error)
	}
	return w.Flush()
}

func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

func (c *cli) auditCmd() *cobra.Command {
	var (
		args  ctlplane.GetAuditArgs
		since time.Duration
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query the durable transition trail",
		Long:  "Query the audit trail. Unlike history it survives daemon restarts.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if since > 0 {
				args.Since = time.Now().Add(-since)
			}
			return c.withClient(func(client ctlplane.ControlPlaneClient) error {
				return RunAudit(client, &args, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().StringVar(&args.Op, "op", "", "filter by operation (apply, revert)")
	cmd.Flags().StringVar(&args.Outcome, "outcome", "", "filter by outcome (applied, busy, restore_failed, ...)")
	cmd.Flags().DurationVar(&since, "since", 0, "only events newer than this, e.g. 24h")
	cmd.Flags().IntVarP(&args.Limit, "lines", "n", 50, "number of events to show, 0 for all")
	return cmd
}

// RunAudit prints audit events, newest first.
func RunAudit(client ctlplane.ControlPlaneClient, args *ctlplane.GetAuditArgs, out io.Writer) error {
	evts, err := client.GetAudit(args)
	if err != nil {
		return fmt.Errorf("failed to query audit trail: %w", err)
	}
	if len(evts) == 0 {
		fmt.Fprintln(out, "no audit events")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tOP\tTRIGGER\tOUTCOME\tRESOURCE\tOP ID\tERROR")
	for _, e := range evts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format(time.DateTime), e.Op, e.Trigger, e.Outcome, e.Resource, shortID(e.OpID), e.Error)
	}
	return w.Flush()
}

func (c *cli) logsCmd() *cobra.Command {
	args := ctlplane.GetLogsArgs{}
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent daemon log entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withClient(func(client ctlplane.ControlPlaneClient) error {
				return RunLogs(client, &args, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().StringVarP(&args.Source, "source", "s", "", "filter by source (api, ctlplane, override, ...)")
	cmd.Flags().IntVarP(&args.Limit, "lines", "n", 50, "number of lines to show")
	return cmd
}

// RunLogs prints entries from the daemon's in-memory log buffer.
func RunLogs(client ctlplane.ControlPlaneClient, args *ctlplane.GetLogsArgs, out io.Writer) error {
	entries, err := client.GetLogs(args)
	if err != nil {
		return fmt.Errorf("failed to get logs: %w", err)
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s [%-5s] %s: %s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Level, e.Source, e.Message)
	}
	return nil
}
