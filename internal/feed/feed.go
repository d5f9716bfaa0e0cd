// Package feed reads the telemetry collaborator's output: one JSON object per
// line, either the running game or a telemetry snapshot.
package feed

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/pitwall/pitbridge/pkg/telemetry"
)

const maxLineSize = 1 << 20

// ErrUnknownLine is reported for lines carrying neither known key.
var ErrUnknownLine = errors.New("line has neither RunningGame nor Telemetry")

// Publisher receives decoded values.
type Publisher[T any] interface {
	Publish(v T)
}

// Line is one decoded feed line. Exactly one of the two is set.
type Line struct {
	// HasGame distinguishes {"RunningGame": null} from a telemetry line.
	HasGame  bool
	Game     string
	Snapshot *telemetry.Snapshot
}

// ParseLine decodes a single feed line. A null RunningGame means no
// simulator is running and yields an empty Game.
func ParseLine(data []byte) (Line, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Line{}, fmt.Errorf("unmarshal feed line: %w", err)
	}

	if g, ok := raw["RunningGame"]; ok {
		var game *string
		if err := json.Unmarshal(g, &game); err != nil {
			return Line{}, fmt.Errorf("unmarshal RunningGame: %w", err)
		}
		l := Line{HasGame: true}
		if game != nil {
			l.Game = *game
		}
		return l, nil
	}

	if t, ok := raw["Telemetry"]; ok {
		var s telemetry.Snapshot
		if err := json.Unmarshal(t, &s); err != nil {
			return Line{}, fmt.Errorf("unmarshal Telemetry: %w", err)
		}
		return Line{Snapshot: &s}, nil
	}

	return Line{}, ErrUnknownLine
}

// Reader publishes feed lines into the game and snapshot streams.
type Reader struct {
	games     Publisher[string]
	snapshots Publisher[telemetry.Snapshot]
	logger    *slog.Logger

	lastGame *string
}

// NewReader creates a Reader.
func NewReader(games Publisher[string], snapshots Publisher[telemetry.Snapshot], logger *slog.Logger) *Reader {
	return &Reader{
		games:     games,
		snapshots: snapshots,
		logger:    logger.With("component", "feed"),
	}
}

// Run reads r until EOF or ctx is done. Malformed lines are logged and
// skipped. The game stream only sees changes of identity.
func (r *Reader) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lines := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		lines++

		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}

		line, err := ParseLine(data)
		if err != nil {
			r.logger.Warn("Skipping malformed feed line", "line", lines, "error", err)
			continue
		}
		r.apply(line)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading feed: %w", err)
	}
	r.logger.Info("Feed ended", "lines", lines)
	return nil
}

func (r *Reader) apply(line Line) {
	if !line.HasGame {
		r.snapshots.Publish(*line.Snapshot)
		return
	}
	if r.lastGame != nil && *r.lastGame == line.Game {
		return
	}
	game := line.Game
	r.lastGame = &game
	r.logger.Info("Running game changed", "game", game)
	r.games.Publish(game)
}
