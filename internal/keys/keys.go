// Package keys turns navigator actions into key presses at a pace the
// simulator's input handling can follow.
package keys

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/pitwall/pitbridge/internal/action"
	"github.com/pitwall/pitbridge/internal/channel"
)

// ErrUnbound is returned when an action has no key binding.
var ErrUnbound = errors.New("action has no key binding")

// Keyboard delivers a named key press to the simulator.
type Keyboard interface {
	Press(ctx context.Context, key string) error
}

// Press is one action waiting for the player. It carries the context of the
// request that produced it and reports back once the key went out or the
// press was dropped.
type Press struct {
	action action.Action
	ctx    context.Context
	done   chan error
}

// NewPress creates a press of action a, scoped to ctx.
func NewPress(ctx context.Context, a action.Action) Press {
	return Press{action: a, ctx: ctx, done: make(chan error, 1)}
}

// Done receives the result of the press exactly once.
func (p Press) Done() <-chan error { return p.done }

// Player presses one key per action, waiting at least Interval between
// presses. Presses whose request was cancelled while they queued are dropped
// without touching the keyboard.
type Player struct {
	in       channel.Receiver[Press]
	keyboard Keyboard
	bindings map[action.Action]string
	interval time.Duration
	clock    clockwork.Clock
	logger   zerolog.Logger
}

// NewPlayer creates a Player. bindings maps action names, in any case, to key
// names and must cover every action.
func NewPlayer(
	in channel.Receiver[Press],
	keyboard Keyboard,
	bindings map[string]string,
	interval time.Duration,
	clock clockwork.Clock,
	logger zerolog.Logger,
) (*Player, error) {
	resolved := make(map[action.Action]string, len(action.All))
	for name, key := range bindings {
		a, err := action.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("binding %q: %w", name, err)
		}
		resolved[a] = key
	}
	for _, a := range action.All {
		if resolved[a] == "" {
			return nil, fmt.Errorf("%w: %s", ErrUnbound, a)
		}
	}

	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Player{
		in:       in,
		keyboard: keyboard,
		bindings: resolved,
		interval: interval,
		clock:    clock,
		logger:   logger.With().Str("component", "keys").Logger(),
	}, nil
}

// Run presses keys until the input channel is closed or ctx is done. A
// failed press is reported to its sender and the next action still goes out.
func (p *Player) Run(ctx context.Context) error {
	presses, dropped := 0, 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case pr, ok := <-p.in.Receive():
			if !ok {
				p.logger.Info().Int("presses", presses).Int("dropped", dropped).Msg("Action channel closed")
				return nil
			}

			a := pr.action
			if pr.ctx != nil {
				if err := pr.ctx.Err(); err != nil {
					dropped++
					p.logger.Debug().Str("action", a.String()).Msg("Dropped press of cancelled request")
					pr.finish(err)
					continue
				}
			}

			key := p.bindings[a]
			if err := p.keyboard.Press(ctx, key); err != nil {
				p.logger.Error().Err(err).Str("action", a.String()).Str("key", key).Msg("Key press failed")
				pr.finish(fmt.Errorf("pressing %s: %w", key, err))
			} else {
				presses++
				p.logger.Debug().Str("action", a.String()).Str("key", key).Int("backlog", p.in.Len()).Msg("Pressed key")
				pr.finish(nil)
			}

			if p.interval <= 0 {
				continue
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-p.clock.After(p.interval):
			}
		}
	}
}

func (p Press) finish(err error) {
	if p.done != nil {
		p.done <- err
	}
}

// Sink adapts the player's input channel to action.Sink. Send returns once
// the key was pressed, so callers waiting on telemetry afterwards start
// their clock at delivery. When ctx is done first the queued press is
// dropped by the player.
func Sink(ch channel.Sender[Press]) action.Sink {
	return action.SinkFunc(func(ctx context.Context, a action.Action) error {
		pr := NewPress(ctx, a)
		if err := ch.Send(ctx, pr); err != nil {
			return err
		}
		select {
		case err := <-pr.done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// LogKeyboard only logs the keys it is asked to press. It is used when no
// OS-level input delivery is wired in (dry runs, CI).
type LogKeyboard struct {
	logger zerolog.Logger
}

// NewLogKeyboard creates a LogKeyboard.
func NewLogKeyboard(logger zerolog.Logger) *LogKeyboard {
	return &LogKeyboard{logger: logger}
}

// Press logs key at info level.
func (k *LogKeyboard) Press(_ context.Context, key string) error {
	k.logger.Info().Str("key", key).Msg("Key press")
	return nil
}
