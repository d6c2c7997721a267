package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"grimm.is/holdover/internal/config"
)

func (c *cli) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create, show and validate the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with every default spelled out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunConfigInit(c.configPath, force, cmd.OutOrStdout())
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file (the old one is kept as .bak)")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration, defaults included",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFileOrDefault(c.configPath)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(config.GenerateHCL(cfg))
			return err
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate [FILE]",
		Short: "Check a configuration file without starting the daemon",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := c.configPath
			if len(args) == 1 {
				path = args[0]
			}
			return RunCheck(path, cmd.OutOrStdout())
		},
	}

	cmd.AddCommand(initCmd, showCmd, validateCmd)
	return cmd
}

// RunConfigInit writes the default configuration to path.
func RunConfigInit(path string, force bool, out io.Writer) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists, use --force to replace it", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := config.SaveHCL(config.Default(), path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Fprintf(out, "wrote %s\n", path)
	return nil
}

// RunCheck validates the configuration file syntax and semantics.
func RunCheck(path string, out io.Writer) error {
	if path == "" {
		return errors.New("no configuration file given")
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	fmt.Fprintln(out, "Configuration valid!")
	fmt.Fprintf(out, "Schema Version: %s\n", cfg.SchemaVersion)
	fmt.Fprintf(out, "Resource:       %s\n", cfg.Resource.Kind)
	fmt.Fprintf(out, "Override mode:  %s\n", cfg.OverrideMode)
	fmt.Fprintf(out, "TTL / sweep:    %s / %s\n", cfg.TTL, cfg.SweepInterval)
	fmt.Fprintf(out, "Store:          %s (%s)\n", cfg.Store.Backend, cfg.Store.Path)
	if cfg.APIEnabled() {
		fmt.Fprintf(out, "API:            %s\n", cfg.API.Listen)
	} else {
		fmt.Fprintln(out, "API:            disabled")
	}
	fmt.Fprintf(out, "Socket:         %s\n", cfg.Control.Socket)
	if cfg.DryRun {
		fmt.Fprintln(out, "Dry run:        yes")
	}
	return nil
}
