package dispatcher

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/pitwall/pitbridge/internal/action"
	"github.com/pitwall/pitbridge/internal/channel"
	"github.com/pitwall/pitbridge/internal/detect"
	"github.com/pitwall/pitbridge/internal/keys"
	"github.com/pitwall/pitbridge/internal/navigator"
	"github.com/pitwall/pitbridge/pkg/strategy"
	"github.com/pitwall/pitbridge/pkg/telemetry"
)

type keyboard struct {
	mu      sync.Mutex
	pressed []string
}

func (k *keyboard) Press(_ context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.pressed = append(k.pressed, key)
	return nil
}

func (k *keyboard) count() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.pressed)
}

func identityBindings() map[string]string {
	b := make(map[string]string, len(action.All))
	for _, a := range action.All {
		b[a.String()] = a.String()
	}
	return b
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestDispatcher_AbandonStopsUndeliveredPresses(t *testing.T) {
	clock := clockwork.NewFakeClock()
	presses := channel.NewBuffered[keys.Press](1)
	kb := &keyboard{}
	player, err := keys.NewPlayer(presses, kb, identityBindings(), 50*time.Millisecond, clock, zerolog.Nop())
	if err != nil {
		t.Fatalf("creating player: %v", err)
	}

	slogger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := navigator.NewRegistry(navigator.Fallback(slogger)).MustRegister(
		navigator.NewMenu("ACC", navigator.StandardLayout, detect.New(clock, time.Second), slogger),
	)

	games := channel.NewLatest[string]()
	games.Publish("ACC")
	snapshots := channel.NewLatest[telemetry.Snapshot]()
	fuel := 0.0
	snapshots.Publish(telemetry.Snapshot{PitMenu: &telemetry.PitMenu{FuelToAddL: &fuel}})

	logger := &testLogger{}
	out := make(outcomes, 4)
	d, err := New(logger, registry, snapshots, games, keys.Sink(presses), WithRecorder(out))
	if err != nil {
		t.Fatalf("creating dispatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = player.Run(ctx) }()
	go func() { defer wg.Done(); _ = d.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	// OpenMenu, Down, Down and forty Right presses.
	if err := d.Submit(ctx, strategy.Request{FuelToAddL: strategy.Float(40)}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, "first press", func() bool { return kb.count() == 1 })

	waitCtx, waitCancel := context.WithTimeout(ctx, time.Second)
	defer waitCancel()
	for kb.count() < 5 {
		n := kb.count()
		if err := clock.BlockUntilContext(waitCtx, 1); err != nil {
			t.Fatalf("player never waited for the next interval: %v", err)
		}
		if got := d.State(); got != Applying {
			t.Errorf("expected Applying while presses are delivered, got %s", got)
		}
		clock.Advance(50 * time.Millisecond)
		waitFor(t, "next press", func() bool { return kb.count() == n+1 })
	}

	games.Publish("LMU")
	o := out.next(t)
	if o.Status() != "abandoned" {
		t.Errorf("expected abandoned, got %s (%v)", o.Status(), o.Err)
	}
	if o.Actions != 5 {
		t.Errorf("expected 5 delivered actions, got %d", o.Actions)
	}

	// Let the player past its interval; anything still queued for the old
	// game must be dropped.
	if err := clock.BlockUntilContext(waitCtx, 1); err != nil {
		t.Fatalf("player not waiting: %v", err)
	}
	clock.Advance(time.Second)
	waitFor(t, "press queue to drain", func() bool { return presses.Len() == 0 })
	time.Sleep(10 * time.Millisecond)

	if got := kb.count(); got != 5 {
		t.Errorf("expected no presses after the switch, got %d in total", got)
	}
	if got := d.State(); got != Idle {
		t.Errorf("expected Idle after abandon, got %s", got)
	}
}
