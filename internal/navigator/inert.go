package navigator

import (
	"context"
	"log/slog"

	"github.com/pitwall/pitbridge/internal/action"
	"github.com/pitwall/pitbridge/pkg/strategy"
)

// inert never emits anything. It stands in for simulators whose input
// injection cannot be verified, and for games nobody registered.
type inert struct {
	game   string
	reason string
	logger *slog.Logger
}

// Inert returns a navigator for game that refuses every request with reason.
func Inert(game, reason string, logger *slog.Logger) Navigator {
	if logger == nil {
		logger = slog.Default()
	}
	return &inert{game: game, reason: reason, logger: logger}
}

// Fallback returns the navigator used when the running game has no
// registered navigator, or no game is running at all.
func Fallback(logger *slog.Logger) Navigator {
	return Inert("", "no navigator registered for the running game", logger)
}

func (n *inert) Game() string { return n.game }

func (n *inert) SetStrategy(ctx context.Context, req strategy.Request, _ Telemetry, _ action.Sink) error {
	n.logger.InfoContext(ctx, ErrUnsupportedSimulator.Error(),
		"game", n.game,
		"reason", n.reason,
		"fields", req.Fields(),
	)
	return ErrUnsupportedSimulator
}
