package navigator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/pitwall/pitbridge/internal/action"
	"github.com/pitwall/pitbridge/internal/detect"
	"github.com/pitwall/pitbridge/internal/ladder"
	"github.com/pitwall/pitbridge/pkg/strategy"
	"github.com/pitwall/pitbridge/pkg/telemetry"
)

// Menu drives a pit menu laid out as rows of Left/Right adjustable values.
//
// Fuel and pressures are set blind: the press count is computed from the
// displayed value and each press is assumed to land. The tire set is stepped
// one press at a time, each confirmed against telemetry through a retry
// ladder, because set changes are dropped while the menu redraws.
type Menu struct {
	game     string
	layout   Layout
	detector detect.Detector
	logger   *slog.Logger
}

// NewMenu creates a menu navigator for game.
func NewMenu(game string, layout Layout, detector detect.Detector, logger *slog.Logger) *Menu {
	if logger == nil {
		logger = slog.Default()
	}
	return &Menu{
		game:     game,
		layout:   layout,
		detector: detector,
		logger:   logger.With("game", game),
	}
}

// Game returns the simulator identity.
func (m *Menu) Game() string { return m.game }

// SetStrategy applies req field by field in menu order. It stops at the
// first failed tire set confirmation; fields already applied stay applied.
// Fields whose value cannot be read are skipped and reported together as
// ErrNotObservable once the rest of the request is applied.
func (m *Menu) SetStrategy(ctx context.Context, req strategy.Request, tel Telemetry, out action.Sink) error {
	if req.Empty() {
		m.logger.DebugContext(ctx, "Empty pit strategy request, nothing to do")
		return nil
	}

	var skipped []error
	apply := func(err error) error {
		if errors.Is(err, ErrNotObservable) {
			skipped = append(skipped, err)
			return nil
		}
		return err
	}

	if req.FuelToAddL != nil {
		if err := apply(m.setFuel(ctx, *req.FuelToAddL, tel, out)); err != nil {
			return err
		}
	}
	if req.TireSet != nil {
		if err := apply(m.setTireSet(ctx, *req.TireSet, tel, out)); err != nil {
			return err
		}
	}
	for _, axle := range []struct {
		spec  *strategy.TireSpec
		left  telemetry.Corner
		right telemetry.Corner
	}{
		{req.FrontTires, telemetry.FrontLeft, telemetry.FrontRight},
		{req.RearTires, telemetry.RearLeft, telemetry.RearRight},
	} {
		if axle.spec == nil {
			continue
		}
		if axle.spec.Compound != "" {
			m.logger.WarnContext(ctx, "Tire compound changes are not supported, ignoring",
				"compound", axle.spec.Compound)
		}
		if err := apply(m.setPressure(ctx, axle.left, axle.spec.LeftPressureKpa, tel, out)); err != nil {
			return err
		}
		if err := apply(m.setPressure(ctx, axle.right, axle.spec.RightPressureKpa, tel, out)); err != nil {
			return err
		}
	}
	return errors.Join(skipped...)
}

func (m *Menu) setFuel(ctx context.Context, target float64, tel Telemetry, out action.Sink) error {
	row, ok := m.row(ctx, FieldFuel)
	if !ok {
		return nil
	}
	current, ok := read(ctx, m, FieldFuel, tel, telemetry.Snapshot.PitFuel)
	if !ok {
		return unread(ctx, FieldFuel)
	}
	return m.nudge(ctx, out, FieldFuel, row, steps(target-current, m.layout.FuelStepL))
}

func (m *Menu) setPressure(ctx context.Context, c telemetry.Corner, target *float64, tel Telemetry, out action.Sink) error {
	if target == nil {
		return nil
	}
	field := PressureField(c)
	row, ok := m.row(ctx, field)
	if !ok {
		return nil
	}
	current, ok := read(ctx, m, field, tel, func(s telemetry.Snapshot) (float64, bool) {
		return s.PitPressure(c)
	})
	if !ok {
		return unread(ctx, field)
	}
	return m.nudge(ctx, out, field, row, steps(*target-current, m.layout.PressureStepKpa))
}

func (m *Menu) setTireSet(ctx context.Context, target int, tel Telemetry, out action.Sink) error {
	row, ok := m.row(ctx, FieldTireSet)
	if !ok {
		return nil
	}
	current, ok := read(ctx, m, FieldTireSet, tel, telemetry.Snapshot.PitTireSet)
	if !ok {
		return unread(ctx, FieldTireSet)
	}
	if current == target {
		return nil
	}

	focus := append([]action.Action{action.OpenMenu}, action.Repeat(action.Down, row)...)
	if err := action.SendAll(ctx, out, focus...); err != nil {
		return err
	}

	confirm := detect.Confirmation(m.detector, tel, telemetry.Snapshot.PitTireSet)
	// Each confirmed step re-reads the menu, so a press the game applied
	// twice is corrected rather than compounded. The bound stops a menu that
	// wraps around from looping forever.
	maxSteps := abs(target-current) + 2
	for step := 1; current != target; step++ {
		if step > maxSteps {
			return fmt.Errorf("tire set did not settle on %d after %d steps: %w",
				target, maxSteps, ladder.ErrConfirmationTimeout)
		}
		press := action.Right
		if target < current {
			press = action.Left
		}
		plan := ladder.Start(press).
			Fallback(focus...).Append(press).
			FinishWithError(fmt.Errorf("tire set stuck at %d, wanted %d", current, target))
		if err := plan.Run(ctx, out, confirm); err != nil {
			return err
		}

		latest, ok := tel.Latest()
		if !ok {
			return fmt.Errorf("telemetry lost while changing tire set: %w", ladder.ErrConfirmationTimeout)
		}
		if current, ok = latest.PitTireSet(); !ok {
			return fmt.Errorf("pit menu closed while changing tire set: %w", ladder.ErrConfirmationTimeout)
		}
	}
	return nil
}

// nudge focuses row and presses Right (or Left) |delta| times.
func (m *Menu) nudge(ctx context.Context, out action.Sink, field Field, row, delta int) error {
	if delta == 0 {
		m.logger.DebugContext(ctx, "Pit menu already at target", "field", field)
		return nil
	}
	press := action.Right
	if delta < 0 {
		press, delta = action.Left, -delta
	}

	actions := make([]action.Action, 0, 1+row+delta)
	actions = append(actions, action.OpenMenu)
	actions = append(actions, action.Repeat(action.Down, row)...)
	actions = append(actions, action.Repeat(press, delta)...)

	m.logger.DebugContext(ctx, "Adjusting pit menu", "field", field, "press", press, "count", delta)
	return action.SendAll(ctx, out, actions...)
}

func (m *Menu) row(ctx context.Context, f Field) (int, bool) {
	row, ok := m.layout.Row(f)
	if !ok {
		m.logger.WarnContext(ctx, "Pit menu field not supported by this game, ignoring", "field", f)
	}
	return row, ok
}

// read returns the displayed value of a field from the first snapshot that
// has it, waiting up to the detector timeout for the menu to show up.
func read[V any](ctx context.Context, m *Menu, f Field, tel Telemetry, project func(telemetry.Snapshot) (V, bool)) (V, bool) {
	v, ok := detect.First(ctx, m.detector.Clock, tel, project, m.detector.Timeout)
	if !ok && ctx.Err() == nil {
		m.logger.WarnContext(ctx, "Pit menu value not observable, skipping field", "field", f)
	}
	return v, ok
}

// unread is the error for a field whose value could not be read: the
// request's own cancellation when there is one, ErrNotObservable otherwise.
func unread(ctx context.Context, f Field) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", ErrNotObservable, f)
}

func steps(diff, per float64) int {
	if per <= 0 {
		return 0
	}
	return int(math.Round(diff / per))
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
