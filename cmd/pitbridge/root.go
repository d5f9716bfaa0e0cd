package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configDir string
	logLevel  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "pitbridge",
		Short:         "Apply remote pit strategy requests to a running racing simulator",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&opts.configDir, "config-dir", ".", "directory containing pitbridge.cfg.json")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newDecodeCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))

	return cmd
}
