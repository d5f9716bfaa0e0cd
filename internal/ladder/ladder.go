// Package ladder sequences key presses as escalating rungs. Each rung's
// presses are followed by a confirmation wait; the first confirmed rung ends
// the plan and later, more aggressive rungs never run.
package ladder

import (
	"context"
	"errors"
	"fmt"

	"github.com/pitwall/pitbridge/internal/action"
)

// ErrConfirmationTimeout is returned when every rung ran and the simulator
// never showed the expected change.
var ErrConfirmationTimeout = errors.New("confirmation timeout")

// Builder assembles a ladder. Every method returns a new Builder; the
// receiver is never modified, so partially built ladders can be shared.
type Builder struct {
	rungs [][]action.Action
}

// Start opens the base rung with the given actions.
func Start(actions ...action.Action) Builder {
	return Builder{rungs: [][]action.Action{clone(actions)}}
}

// Append extends the most recently opened rung.
func (b Builder) Append(actions ...action.Action) Builder {
	rungs := b.copyRungs()
	if len(rungs) == 0 {
		return Builder{rungs: [][]action.Action{clone(actions)}}
	}
	last := len(rungs) - 1
	rungs[last] = append(clone(rungs[last]), actions...)
	return Builder{rungs: rungs}
}

// Fallback opens a new escalation rung.
func (b Builder) Fallback(actions ...action.Action) Builder {
	return Builder{rungs: append(b.copyRungs(), clone(actions))}
}

// Finish freezes the ladder. If no rung confirms, terminal actions are sent
// and the plan succeeds.
func (b Builder) Finish(terminal ...action.Action) Plan {
	return Plan{rungs: b.copyRungs(), terminal: clone(terminal)}
}

// FinishWithError freezes the ladder. If no rung confirms, the plan fails
// with err wrapped in ErrConfirmationTimeout.
func (b Builder) FinishWithError(err error) Plan {
	if err == nil {
		err = ErrConfirmationTimeout
	}
	return Plan{rungs: b.copyRungs(), err: err}
}

func (b Builder) copyRungs() [][]action.Action {
	rungs := make([][]action.Action, len(b.rungs))
	copy(rungs, b.rungs)
	return rungs
}

func clone(actions []action.Action) []action.Action {
	return append([]action.Action(nil), actions...)
}

// Plan is a frozen ladder ready to run.
type Plan struct {
	rungs    [][]action.Action
	terminal []action.Action
	err      error
}

// Rungs returns a copy of the plan's rungs in execution order.
func (p Plan) Rungs() [][]action.Action {
	out := make([][]action.Action, len(p.rungs))
	for i, r := range p.rungs {
		out[i] = clone(r)
	}
	return out
}

// Confirm arms a confirmation before a rung is emitted. The returned wait
// reports whether the rung took effect; release ends the confirmation.
type Confirm func() (wait func(ctx context.Context) bool, release func())

// Run executes the plan: for each rung a confirmation is armed, the rung's
// actions go to sink, then the confirmation is awaited before the next rung
// is considered. Only one confirmation is ever active.
func (p Plan) Run(ctx context.Context, sink action.Sink, confirm Confirm) error {
	for i, rung := range p.rungs {
		confirmed, err := runRung(ctx, sink, confirm, rung)
		if err != nil {
			return fmt.Errorf("rung %d: %w", i, err)
		}
		if confirmed {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("rung %d: %w", i, err)
		}
	}

	if p.err != nil {
		if errors.Is(p.err, ErrConfirmationTimeout) {
			return p.err
		}
		return fmt.Errorf("%w: %w", ErrConfirmationTimeout, p.err)
	}
	if err := action.SendAll(ctx, sink, p.terminal...); err != nil {
		return fmt.Errorf("terminal actions: %w", err)
	}
	return nil
}

func runRung(ctx context.Context, sink action.Sink, confirm Confirm, rung []action.Action) (bool, error) {
	wait, release := confirm()
	defer release()

	if err := action.SendAll(ctx, sink, rung...); err != nil {
		return false, err
	}
	return wait(ctx), nil
}
