// Package action defines the simulated pit-menu key presses the bridge emits.
package action

import (
	"context"
	"fmt"
	"strings"
)

// Action is one simulated key press.
type Action int

const (
	OpenMenu Action = iota
	Up
	Down
	Left
	Right
	Select
)

// All lists every action.
var All = []Action{OpenMenu, Up, Down, Left, Right, Select}

func (a Action) String() string {
	switch a {
	case OpenMenu:
		return "OpenMenu"
	case Up:
		return "Up"
	case Down:
		return "Down"
	case Left:
		return "Left"
	case Right:
		return "Right"
	case Select:
		return "Select"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Parse converts an action name (case-insensitive) back to an Action.
func Parse(name string) (Action, error) {
	for _, a := range All {
		if strings.EqualFold(a.String(), name) {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown action: %s", name)
}

// Repeat returns a repeated n times. n <= 0 yields nil.
func Repeat(a Action, n int) []Action {
	if n <= 0 {
		return nil
	}
	out := make([]Action, n)
	for i := range out {
		out[i] = a
	}
	return out
}

// Sink accepts actions in order. Delivery timing is the sink's business.
type Sink interface {
	Send(ctx context.Context, a Action) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, a Action) error

// Send calls f.
func (f SinkFunc) Send(ctx context.Context, a Action) error {
	return f(ctx, a)
}

// SendAll sends each action in order, stopping at the first error or when ctx
// is done.
func SendAll(ctx context.Context, s Sink, actions ...Action) error {
	for _, a := range actions {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Send(ctx, a); err != nil {
			return err
		}
	}
	return nil
}
