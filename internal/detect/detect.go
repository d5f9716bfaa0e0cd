// Package detect reports whether a telemetry value moved away from where it
// started within a bounded wait. It is the bridge's only way of knowing that
// an emitted key press reached the simulator.
package detect

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Source is a hot stream that replays its latest value to new subscribers.
type Source[T any] interface {
	Subscribe() (<-chan T, func())
}

// Changed subscribes to src and reports true as soon as a projected value
// differs from the first present one. project returns ok == false while the
// value is absent, e.g. before the pit menu is on screen; absent values never
// form a baseline and never count as a change. It reports false when timeout elapses
// on clock first, when ctx is done, or when src ends without a change.
//
// Whichever side loses the race is cancelled before Changed returns: the
// timer is stopped and the subscription disposed.
func Changed[T any, V comparable](
	ctx context.Context,
	clock clockwork.Clock,
	src Source[T],
	project func(T) (V, bool),
	timeout time.Duration,
) bool {
	wait, release := Watch(clock, src, project, timeout)
	defer release()
	return wait(ctx)
}

// Watch is Changed split in two. It subscribes immediately, so the baseline
// is the value current before the caller acts; the timeout only starts when
// wait is called. Changes published in between are kept. release disposes the
// subscription and must be called even if wait never is.
func Watch[T any, V comparable](
	clock clockwork.Clock,
	src Source[T],
	project func(T) (V, bool),
	timeout time.Duration,
) (wait func(context.Context) bool, release func()) {
	values, dispose := src.Subscribe()

	var (
		baseline    V
		hasBaseline bool
	)
	changed := func(raw T) bool {
		v, present := project(raw)
		if !present {
			return false
		}
		if !hasBaseline {
			baseline, hasBaseline = v, true
			return false
		}
		return v != baseline
	}

	// The replayed value, when there is one, is the baseline.
	select {
	case raw, ok := <-values:
		if ok {
			changed(raw)
		} else {
			values = nil
		}
	default:
	}

	wait = func(ctx context.Context) bool {
		timer := clock.NewTimer(timeout)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return false
			case <-timer.Chan():
				return false
			case raw, ok := <-values:
				if !ok {
					// Stream ended; nothing more can change before the timeout.
					values = nil
					continue
				}
				if changed(raw) {
					return true
				}
			}
		}
	}
	return wait, dispose
}

// Detector binds a clock and a timeout so callers can build confirmations
// without carrying both around.
type Detector struct {
	Clock   clockwork.Clock
	Timeout time.Duration
}

// New returns a Detector. A nil clock means the real wall clock.
func New(clock clockwork.Clock, timeout time.Duration) Detector {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return Detector{Clock: clock, Timeout: timeout}
}

// Confirmation returns a function that arms a Watch on src with d's clock
// and timeout. Each call opens a fresh subscription, so the baseline is
// whatever the stream holds at that moment.
func Confirmation[T any, V comparable](d Detector, src Source[T], project func(T) (V, bool)) func() (func(context.Context) bool, func()) {
	return func() (func(context.Context) bool, func()) {
		return Watch(d.Clock, src, project, d.Timeout)
	}
}

// First returns the first present projected value from src, waiting at most
// timeout on clock. The latest value is replayed on subscription, so a value
// that is already available is returned without waiting.
func First[T any, V any](
	ctx context.Context,
	clock clockwork.Clock,
	src Source[T],
	project func(T) (V, bool),
	timeout time.Duration,
) (V, bool) {
	var zero V

	values, dispose := src.Subscribe()
	defer dispose()

	timer := clock.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return zero, false
		case <-timer.Chan():
			return zero, false
		case raw, ok := <-values:
			if !ok {
				values = nil
				continue
			}
			if v, present := project(raw); present {
				return v, true
			}
		}
	}
}
