package ladder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitwall/pitbridge/internal/action"
	"github.com/pitwall/pitbridge/internal/channel"
	"github.com/pitwall/pitbridge/internal/detect"
	"github.com/pitwall/pitbridge/pkg/telemetry"
)

const timeout = time.Second

type recorder struct {
	mu      sync.Mutex
	actions []action.Action
}

func (r *recorder) Send(_ context.Context, a action.Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, a)
	return nil
}

func (r *recorder) all() []action.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]action.Action(nil), r.actions...)
}

func tireSet(n int) telemetry.Snapshot {
	return telemetry.Snapshot{PitMenu: &telemetry.PitMenu{TireSet: &n}}
}

type rig struct {
	clock *clockwork.FakeClock
	feed  *channel.Latest[telemetry.Snapshot]
	sink  *recorder
	done  chan error
}

func run(t *testing.T, ctx context.Context, p Plan) *rig {
	t.Helper()
	r := &rig{
		clock: clockwork.NewFakeClock(),
		feed:  channel.NewLatest[telemetry.Snapshot](),
		sink:  &recorder{},
		done:  make(chan error, 1),
	}
	r.feed.Publish(tireSet(1))
	confirm := detect.Confirmation(detect.New(r.clock, timeout), r.feed, telemetry.Snapshot.PitTireSet)
	go func() { r.done <- p.Run(ctx, r.sink, confirm) }()
	return r
}

func (r *rig) waitArmed(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.clock.BlockUntilContext(ctx, 1))
}

func (r *rig) result(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.done:
		return err
	case <-time.After(time.Second):
		t.Fatal("plan did not finish")
	}
	return nil
}

func TestRun_StopsAtFirstConfirmedRung(t *testing.T) {
	plan := Start(action.Right).
		Fallback(action.OpenMenu, action.Down, action.Right).
		Fallback(action.Select).
		Finish(action.OpenMenu)

	r := run(t, context.Background(), plan)

	r.waitArmed(t)
	assert.Equal(t, []action.Action{action.Right}, r.sink.all())

	// First rung is never confirmed; its wait must run to the full timeout.
	r.clock.Advance(timeout)

	r.waitArmed(t)
	assert.Equal(t, []action.Action{action.Right, action.OpenMenu, action.Down, action.Right}, r.sink.all())

	r.feed.Publish(tireSet(2))

	require.NoError(t, r.result(t))
	assert.Equal(t, []action.Action{action.Right, action.OpenMenu, action.Down, action.Right}, r.sink.all(),
		"no later rung or terminal action may run after confirmation")
}

func TestRun_AllRungsUnconfirmedSendsTerminal(t *testing.T) {
	plan := Start(action.Right).
		Fallback(action.Down).
		Finish(action.Select, action.Select)

	r := run(t, context.Background(), plan)

	r.waitArmed(t)
	r.clock.Advance(timeout)
	r.waitArmed(t)
	r.clock.Advance(timeout)

	require.NoError(t, r.result(t))
	assert.Equal(t, []action.Action{action.Right, action.Down, action.Select, action.Select}, r.sink.all())
}

func TestRun_AllRungsUnconfirmedFailsWithError(t *testing.T) {
	cause := errors.New("tire set stuck")
	plan := Start(action.Left).FinishWithError(cause)

	r := run(t, context.Background(), plan)

	r.waitArmed(t)
	r.clock.Advance(timeout)

	err := r.result(t)
	assert.ErrorIs(t, err, ErrConfirmationTimeout)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, []action.Action{action.Left}, r.sink.all())
}

func TestRun_FinishWithNilErrorUsesTimeoutSentinel(t *testing.T) {
	r := run(t, context.Background(), Start(action.Up).FinishWithError(nil))

	r.waitArmed(t)
	r.clock.Advance(timeout)

	assert.ErrorIs(t, r.result(t), ErrConfirmationTimeout)
}

func TestRun_CancelledDuringWaitAbandonsLaterRungs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	plan := Start(action.Right).Fallback(action.Select).Finish(action.OpenMenu)

	r := run(t, ctx, plan)
	r.waitArmed(t)
	cancel()

	err := r.result(t)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []action.Action{action.Right}, r.sink.all())
	assert.Equal(t, 0, r.feed.Subscribers())
}

func TestRun_SinkErrorStopsPlan(t *testing.T) {
	boom := errors.New("sink closed")
	sink := action.SinkFunc(func(context.Context, action.Action) error { return boom })
	called, released := false, false

	err := Start(action.Up).Finish().Run(context.Background(), sink, func() (func(context.Context) bool, func()) {
		return func(context.Context) bool {
			called = true
			return true
		}, func() { released = true }
	})

	assert.ErrorIs(t, err, boom)
	assert.False(t, called, "no wait without a delivered rung")
	assert.True(t, released, "an armed confirmation is released even when its rung fails")
}

func TestRun_ConfirmsChangeThatBeatsTheWait(t *testing.T) {
	feed := channel.NewLatest[telemetry.Snapshot]()
	feed.Publish(tireSet(1))

	// The sink applies each press synchronously, like a simulator that
	// reacts before the confirmation wait starts.
	sink := action.SinkFunc(func(_ context.Context, a action.Action) error {
		if a == action.Right {
			feed.Publish(tireSet(2))
		}
		return nil
	})
	confirm := detect.Confirmation(detect.New(clockwork.NewFakeClock(), timeout), feed, telemetry.Snapshot.PitTireSet)

	err := Start(action.Right).FinishWithError(nil).Run(context.Background(), sink, confirm)
	assert.NoError(t, err)
	assert.Equal(t, 0, feed.Subscribers())
}

func TestBuilder_IsImmutable(t *testing.T) {
	base := Start(action.Up)
	extended := base.Append(action.Down)
	escalated := base.Fallback(action.Left)
	both := extended.Fallback(action.Right).Append(action.Select)

	assert.Equal(t, [][]action.Action{{action.Up}}, base.Finish().Rungs())
	assert.Equal(t, [][]action.Action{{action.Up, action.Down}}, extended.Finish().Rungs())
	assert.Equal(t, [][]action.Action{{action.Up}, {action.Left}}, escalated.Finish().Rungs())
	assert.Equal(t, [][]action.Action{{action.Up, action.Down}, {action.Right, action.Select}}, both.Finish().Rungs())
}

func TestBuilder_ZeroValueAppendOpensBaseRung(t *testing.T) {
	var b Builder
	assert.Equal(t, [][]action.Action{{action.OpenMenu}}, b.Append(action.OpenMenu).Finish().Rungs())
}

func TestPlan_RungsReturnsCopy(t *testing.T) {
	plan := Start(action.Up).Finish()
	rungs := plan.Rungs()
	rungs[0][0] = action.Down

	assert.Equal(t, [][]action.Action{{action.Up}}, plan.Rungs())
}
