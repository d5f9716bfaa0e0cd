// Package navigator turns a pit strategy request into key presses for one
// simulator's pit menu.
package navigator

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/pitwall/pitbridge/internal/action"
	"github.com/pitwall/pitbridge/pkg/strategy"
	"github.com/pitwall/pitbridge/pkg/telemetry"
)

var (
	// ErrUnsupportedSimulator is returned by navigators that cannot drive the
	// running simulator. It is not fatal: nothing was emitted.
	ErrUnsupportedSimulator = errors.New("this game does not support setting pit strategies")
	// ErrNotObservable means a requested field was skipped because its
	// current value never showed up in telemetry.
	ErrNotObservable = errors.New("pit menu value not observable")
)

// Telemetry is the live snapshot stream a navigator reads from.
type Telemetry interface {
	Subscribe() (<-chan telemetry.Snapshot, func())
	Latest() (telemetry.Snapshot, bool)
}

// Navigator applies a request to one simulator. Implementations keep no
// state between calls and only ever talk to the simulator through out.
type Navigator interface {
	// Game is the running-simulator identity this navigator serves.
	Game() string
	// SetStrategy emits the presses that apply req and returns once they
	// have all been handed to out.
	SetStrategy(ctx context.Context, req strategy.Request, tel Telemetry, out action.Sink) error
}

// Registry maps simulator identities to navigators. Lookups that miss
// resolve to the fallback.
type Registry struct {
	navigators map[string]Navigator
	fallback   Navigator
}

// NewRegistry creates a registry that resolves unknown games to fallback.
func NewRegistry(fallback Navigator) *Registry {
	return &Registry{
		navigators: make(map[string]Navigator),
		fallback:   fallback,
	}
}

// Register adds n under its Game() key. Identities are case-sensitive and
// may be registered once.
func (r *Registry) Register(n Navigator) error {
	game := n.Game()
	if game == "" {
		return fmt.Errorf("navigator has no game identity")
	}
	if _, exists := r.navigators[game]; exists {
		return fmt.Errorf("navigator already registered for game: %s", game)
	}
	r.navigators[game] = n
	return nil
}

// MustRegister is Register for wiring code; it panics on error.
func (r *Registry) MustRegister(navigators ...Navigator) *Registry {
	for _, n := range navigators {
		if err := r.Register(n); err != nil {
			panic(err)
		}
	}
	return r
}

// Resolve returns the navigator for game, or the fallback. The second result
// reports whether a registered navigator matched.
func (r *Registry) Resolve(game string) (Navigator, bool) {
	if n, ok := r.navigators[game]; ok {
		return n, true
	}
	return r.fallback, false
}

// HasNavigator returns true if a navigator is registered for game.
func (r *Registry) HasNavigator(game string) bool {
	_, ok := r.navigators[game]
	return ok
}

// Fallback returns the navigator used for unknown games.
func (r *Registry) Fallback() Navigator {
	return r.fallback
}

// Games lists the registered identities in sorted order.
func (r *Registry) Games() []string {
	games := make([]string, 0, len(r.navigators))
	for g := range r.navigators {
		games = append(games, g)
	}
	sort.Strings(games)
	return games
}
