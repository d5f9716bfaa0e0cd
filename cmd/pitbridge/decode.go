package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pitwall/pitbridge/internal/detect"
	"github.com/pitwall/pitbridge/internal/logging"
	"github.com/pitwall/pitbridge/pkg/strategy"
	"github.com/pitwall/pitbridge/pkg/telemetry"
)

type decodeOptions struct {
	game     string
	menuPath string
	timeout  time.Duration
}

func newDecodeCmd(root *rootOptions) *cobra.Command {
	opts := &decodeOptions{}

	cmd := &cobra.Command{
		Use:   "decode <message.json|->",
		Short: "Decode a remote strategy message and dry-run it against a pit menu",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(cmd.Context(), cmd.OutOrStdout(), args[0], root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.game, "game", "", "simulator identity to dry-run against")
	cmd.Flags().StringVar(&opts.menuPath, "menu", "", "JSON pit menu the dry run starts from")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 200*time.Millisecond, "confirmation timeout")

	return cmd
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func runDecode(ctx context.Context, out io.Writer, path string, root *rootOptions, opts *decodeOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	data, err := readInput(path)
	if err != nil {
		return fmt.Errorf("reading message: %w", err)
	}
	req, err := strategy.Parse(data)
	if err != nil {
		return err
	}

	pretty, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "request:\n%s\nfields: %v\n", pretty, req.Fields())

	if opts.game == "" {
		return nil
	}

	var menu telemetry.PitMenu
	if opts.menuPath != "" {
		raw, err := os.ReadFile(opts.menuPath)
		if err != nil {
			return fmt.Errorf("reading menu: %w", err)
		}
		if err := json.Unmarshal(raw, &menu); err != nil {
			return fmt.Errorf("decoding menu: %w", err)
		}
	}

	level := root.logLevel
	if level == "" {
		level = "warn"
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, logging.HandlerOptions(level)))

	registry := buildRegistry(logger, detect.New(nil, opts.timeout))
	nav, matched := registry.Resolve(opts.game)
	sim := newMenuSim(menuLayouts[opts.game], menu)

	applyErr := nav.SetStrategy(ctx, req, sim.feed, sim)

	actions, final := sim.result()
	fmt.Fprintf(out, "game: %s (registered: %t)\nactions (%d): %v\n", opts.game, matched, len(actions), actions)
	finalJSON, err := json.Marshal(final)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "menu after: %s\n", finalJSON)
	if applyErr != nil {
		fmt.Fprintf(out, "result: %v\n", applyErr)
	} else {
		fmt.Fprintln(out, "result: applied")
	}
	return nil
}
