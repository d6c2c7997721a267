package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"grimm.is/holdover/internal/brand"
	"grimm.is/holdover/internal/clock"
	"grimm.is/holdover/internal/ctlplane"
)

var (
	colorAccent = lipgloss.Color("#A8D8EA")
	colorMuted  = lipgloss.Color("#6c757d")
	colorGood   = lipgloss.Color("#4ECDC4")
	colorWarn   = lipgloss.Color("#FFE66D")
	colorAlert  = lipgloss.Color("#FF6B6B")

	styleTitle = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	styleLabel = lipgloss.NewStyle().Foreground(colorMuted).Width(12)
	styleOn    = lipgloss.NewStyle().Foreground(colorWarn).Bold(true)
	styleOff   = lipgloss.NewStyle().Foreground(colorGood).Bold(true)
	styleError = lipgloss.NewStyle().Foreground(colorAlert)
	styleCard  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1)
)

func (c *cli) statusCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current policy, saved record and badge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withClient(func(client ctlplane.ControlPlaneClient) error {
				return RunStatus(client, asJSON, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw snapshot as JSON")
	return cmd
}

// RunStatus fetches the daemon status and prints it.
func RunStatus(client ctlplane.ControlPlaneClient, asJSON bool, out io.Writer) error {
	reply, err := client.GetStatus()
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(reply)
	}
	fmt.Fprintln(out, RenderStatus(reply))
	return nil
}

// RenderStatus formats a status reply as a bordered card.
func RenderStatus(reply *ctlplane.GetStatusReply) string {
	st := reply.Status
	row := func(label, value string) string {
		return lipgloss.JoinHorizontal(lipgloss.Top, styleLabel.Render(label), value)
	}

	state := styleOff.Render("inactive")
	if st.Active {
		state = styleOn.Render("ACTIVE")
	}
	badgeText := "(off)"
	if st.Badge != "" {
		badgeText = styleOn.Render(st.Badge)
	}
	current := st.Current
	if st.CurrentError != "" {
		current = styleError.Render("unreadable: " + st.CurrentError)
	}

	rows := []string{
		styleTitle.Render(brand.Name + " " + reply.Version),
		"",
		row("Override", state),
		row("Badge", badgeText),
		row("Resource", st.Resource),
		row("Current", current),
		row("Mode", st.Mode),
		row("TTL", st.TTL.String()),
	}

	switch {
	case st.RecordError != "":
		rows = append(rows, row("Saved", styleError.Render(st.RecordError)))
	case st.Record != nil:
		rows = append(rows,
			row("Saved", st.Record.PriorPolicy),
			row("Expires", fmt.Sprintf("%s (in %s)", formatEpoch(st.Record.ExpiresAt), st.Remaining)),
		)
	default:
		rows = append(rows, row("Saved", "(none)"))
	}

	if st.InFlight {
		rows = append(rows, row("In flight", styleOn.Render("yes")))
	}
	rows = append(rows, row("Uptime", reply.Uptime.Truncate(time.Second).String()))

	return styleCard.Render(strings.Join(rows, "\n"))
}

func formatEpoch(sec int64) string {
	return clock.FromEpochSeconds(sec).Local().Format("2006-01-02 15:04:05")
}
