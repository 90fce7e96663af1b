package main

import (
	"github.com/spf13/cobra"

	"github.com/logflow/simlog/pkg/config"
)

var configInit string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging config files, SIMLOG_*
environment variables and flags. With --init, write the defaults to a file.

Examples:
  simlog config
  simlog config --init .simlog.yaml`,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().StringVar(&configInit, "init", "", "Write the default configuration to this path")
}

func runConfig(cmd *cobra.Command, args []string) error {
	if configInit != "" {
		if err := config.Save(configInit, config.Default()); err != nil {
			return err
		}
		printer.KeyValue("Wrote", configInit)
		return nil
	}

	for _, p := range cfgManager.GetPaths() {
		logger.WithField("path", p).Debug("Loaded config file")
	}
	return config.Write(cmd.OutOrStdout(), cfg)
}
