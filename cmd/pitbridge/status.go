package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pitwall/pitbridge/internal/config"
	"github.com/pitwall/pitbridge/internal/monitor"
	"github.com/pitwall/pitbridge/internal/statusview"
)

type statusOptions struct {
	file   string
	once   bool
	format string
}

func newStatusCmd(root *rootOptions) *cobra.Command {
	opts := &statusOptions{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of a running bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := opts.file
			if path == "" {
				path = statusPath(root)
			}
			if opts.once {
				return printStatus(cmd.OutOrStdout(), path, opts.format)
			}
			interval := config.GetMonitorConfig().Interval
			_, err := tea.NewProgram(statusview.New(path, interval), tea.WithAltScreen()).Run()
			return err
		},
	}

	cmd.Flags().StringVar(&opts.file, "file", "", "status file (default: from config)")
	cmd.Flags().BoolVar(&opts.once, "once", false, "print the status once and exit")
	cmd.Flags().StringVar(&opts.format, "format", "yaml", "output format with --once: yaml or json")

	return cmd
}

// statusPath resolves the status file from config the same way run does.
// A missing or invalid config leaves the defaults.
func statusPath(root *rootOptions) string {
	_ = config.Load(root.configDir)
	path := config.GetMonitorConfig().StatusFile
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(config.GetString("logsDir"), path)
}

func printStatus(out io.Writer, path, format string) error {
	status, err := monitor.ReadStatus(path)
	if err != nil {
		return err
	}

	switch format {
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(status); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
