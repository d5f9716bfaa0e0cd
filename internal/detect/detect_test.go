package detect

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitwall/pitbridge/internal/channel"
	"github.com/pitwall/pitbridge/pkg/telemetry"
)

const timeout = 2 * time.Second

func fuel(v float64) telemetry.Snapshot {
	return telemetry.Snapshot{PitMenu: &telemetry.PitMenu{FuelToAddL: &v}}
}

// spyClock counts stopped timers so tests can see the timeout side cancelled.
type spyClock struct {
	*clockwork.FakeClock
	stopped atomic.Int32
}

type spyTimer struct {
	clockwork.Timer
	clock *spyClock
}

func (c *spyClock) NewTimer(d time.Duration) clockwork.Timer {
	return &spyTimer{Timer: c.FakeClock.NewTimer(d), clock: c}
}

func (t *spyTimer) Stop() bool {
	t.clock.stopped.Add(1)
	return t.Timer.Stop()
}

type harness struct {
	clock  *spyClock
	feed   *channel.Latest[telemetry.Snapshot]
	result chan bool
}

// start runs Changed in the background and waits until its timer is armed,
// which also means its subscription is live.
func start(t *testing.T, ctx context.Context, seed ...telemetry.Snapshot) *harness {
	t.Helper()
	h := &harness{
		clock:  &spyClock{FakeClock: clockwork.NewFakeClock()},
		feed:   channel.NewLatest[telemetry.Snapshot](),
		result: make(chan bool, 1),
	}
	for _, s := range seed {
		h.feed.Publish(s)
	}
	go func() {
		h.result <- Changed(ctx, h.clock, h.feed, telemetry.Snapshot.PitFuel, timeout)
	}()

	waitCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.clock.BlockUntilContext(waitCtx, 1))
	return h
}

func (h *harness) await(t *testing.T) bool {
	t.Helper()
	select {
	case v := <-h.result:
		return v
	case <-time.After(time.Second):
		t.Fatal("detector did not report")
	}
	return false
}

func (h *harness) pending(t *testing.T) {
	t.Helper()
	select {
	case v := <-h.result:
		t.Fatalf("detector reported %v early", v)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestChanged_ReportsFirstDivergentValue(t *testing.T) {
	h := start(t, context.Background(), fuel(46))

	h.feed.Publish(fuel(46))
	h.pending(t)

	h.feed.Publish(fuel(47))
	assert.True(t, h.await(t))
	assert.Equal(t, int32(1), h.clock.stopped.Load(), "timer must be stopped when data wins")
	assert.Equal(t, 0, h.feed.Subscribers())
}

func TestChanged_ConstantValueTimesOutAtBoundary(t *testing.T) {
	h := start(t, context.Background(), fuel(46))

	h.feed.Publish(fuel(46))
	h.feed.Publish(fuel(46))

	h.clock.Advance(timeout - time.Millisecond)
	h.pending(t)

	h.clock.Advance(time.Millisecond)
	assert.False(t, h.await(t))
	assert.Equal(t, 0, h.feed.Subscribers(), "subscription must be disposed when timeout wins")
}

func TestChanged_NoEventsTimesOut(t *testing.T) {
	h := start(t, context.Background())

	h.clock.Advance(timeout)
	assert.False(t, h.await(t))
}

func TestChanged_SkipsAbsentLeadingValues(t *testing.T) {
	h := start(t, context.Background(), telemetry.Snapshot{})

	// The menu appearing is not a change; it establishes the baseline.
	h.feed.Publish(telemetry.Snapshot{PitMenu: &telemetry.PitMenu{}})
	h.feed.Publish(fuel(10))
	h.pending(t)

	h.feed.Publish(telemetry.Snapshot{})
	h.pending(t)

	h.feed.Publish(fuel(11))
	assert.True(t, h.await(t))
}

func TestChanged_SingleValueIsNotAChange(t *testing.T) {
	h := start(t, context.Background())

	h.feed.Publish(fuel(5))
	h.clock.Advance(timeout)
	assert.False(t, h.await(t))
}

func TestChanged_ContextCancelReturnsFalse(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := start(t, ctx, fuel(1))

	cancel()
	assert.False(t, h.await(t))
	assert.Equal(t, int32(1), h.clock.stopped.Load())
	assert.Equal(t, 0, h.feed.Subscribers())
}

func TestChanged_ClosedStreamWaitsForTimeout(t *testing.T) {
	h := start(t, context.Background(), fuel(1))

	h.feed.Close()
	h.pending(t)

	h.clock.Advance(timeout)
	assert.False(t, h.await(t))
}

func TestConfirmation_UsesDetectorSettings(t *testing.T) {
	clock := clockwork.NewFakeClock()
	feed := channel.NewLatest[telemetry.Snapshot]()
	feed.Publish(fuel(3))

	confirm := Confirmation(New(clock, timeout), feed, telemetry.Snapshot.PitFuel)

	wait, release := confirm()
	defer release()

	done := make(chan bool, 1)
	go func() { done <- wait(context.Background()) }()

	waitCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))

	feed.Publish(fuel(4))
	select {
	case v := <-done:
		assert.True(t, v)
	case <-time.After(time.Second):
		t.Fatal("confirmation did not report")
	}
}

func TestWatch_KeepsChangesBeforeWait(t *testing.T) {
	clock := clockwork.NewFakeClock()
	feed := channel.NewLatest[telemetry.Snapshot]()
	feed.Publish(fuel(3))

	wait, release := Watch(clock, feed, telemetry.Snapshot.PitFuel, timeout)
	defer release()

	// The simulator reacts before anyone waits.
	feed.Publish(fuel(4))

	assert.True(t, wait(context.Background()))
}

func TestWatch_ReleaseWithoutWait(t *testing.T) {
	feed := channel.NewLatest[telemetry.Snapshot]()
	feed.Publish(fuel(3))

	_, release := Watch(clockwork.NewFakeClock(), feed, telemetry.Snapshot.PitFuel, timeout)
	assert.Equal(t, 1, feed.Subscribers())

	release()
	release()
	assert.Equal(t, 0, feed.Subscribers())
}

func TestNew_DefaultsToRealClock(t *testing.T) {
	d := New(nil, time.Second)
	assert.NotNil(t, d.Clock)
	assert.Equal(t, time.Second, d.Timeout)
}

func TestFirst_ReturnsReplayedValue(t *testing.T) {
	feed := channel.NewLatest[telemetry.Snapshot]()
	feed.Publish(fuel(46))

	v, ok := First(context.Background(), clockwork.NewFakeClock(), feed, telemetry.Snapshot.PitFuel, timeout)
	assert.True(t, ok)
	assert.Equal(t, 46.0, v)
	assert.Equal(t, 0, feed.Subscribers())
}

func TestFirst_WaitsForMenuToAppear(t *testing.T) {
	clock := clockwork.NewFakeClock()
	feed := channel.NewLatest[telemetry.Snapshot]()
	feed.Publish(telemetry.Snapshot{})

	type res struct {
		v  float64
		ok bool
	}
	done := make(chan res, 1)
	go func() {
		v, ok := First(context.Background(), clock, feed, telemetry.Snapshot.PitFuel, timeout)
		done <- res{v, ok}
	}()

	waitCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))

	feed.Publish(fuel(12))
	select {
	case r := <-done:
		assert.True(t, r.ok)
		assert.Equal(t, 12.0, r.v)
	case <-time.After(time.Second):
		t.Fatal("First did not return")
	}
}

func TestFirst_TimesOut(t *testing.T) {
	clock := clockwork.NewFakeClock()
	feed := channel.NewLatest[telemetry.Snapshot]()

	done := make(chan bool, 1)
	go func() {
		_, ok := First(context.Background(), clock, feed, telemetry.Snapshot.PitFuel, timeout)
		done <- ok
	}()

	waitCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	clock.Advance(timeout)

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("First did not time out")
	}
}
