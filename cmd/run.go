package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"grimm.is/holdover/internal/config"
	"grimm.is/holdover/internal/logging"
)

func (c *cli) runCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the override daemon in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFileOrDefault(c.configPath)
			if err != nil {
				return err
			}
			if dryRun {
				cfg.DryRun = true
			}
			if c.socketPath != "" {
				cfg.Control.Socket = c.socketPath
			}

			level, err := logging.ParseLevel(cfg.Log.Level)
			if err != nil {
				return fmt.Errorf("log level: %w", err)
			}
			logCfg := logging.DefaultConfig()
			logCfg.Level = level
			logCfg.JSON = cfg.Log.JSON
			logCfg.Output = os.Stderr
			logger := logging.New(logCfg)
			logging.SetDefault(logger)

			return RunDaemon(cmd.Context(), cfg, DaemonOptions{
				ConfigPath: c.configPath,
				Logger:     logger,
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log policy writes instead of performing them")
	return cmd
}
