package monitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitwall/pitbridge/internal/channel"
	"github.com/pitwall/pitbridge/internal/dispatcher"
	"github.com/pitwall/pitbridge/internal/navigator"
)

type fakeSource struct {
	state atomic.Int32
}

func (f *fakeSource) State() dispatcher.State { return dispatcher.State(f.state.Load()) }
func (f *fakeSource) ActiveGame() string {
	if f.State() == dispatcher.Idle {
		return ""
	}
	return "ACC"
}
func (f *fakeSource) QueueLen() int { return 2 }

func readStatus(t *testing.T, path string) (Status, bool) {
	t.Helper()
	s, err := ReadStatus(path)
	return s, err == nil
}

func TestService_RecordTalliesOutcomes(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewService(Dependencies{Clock: clock})

	s.Record(dispatcher.Outcome{RequestID: "a", Game: "ACC", Matched: true, Actions: 7, Duration: 30 * time.Millisecond})
	s.Record(dispatcher.Outcome{RequestID: "b", Game: "AMS2", Err: navigator.ErrUnsupportedSimulator})
	s.Record(dispatcher.Outcome{RequestID: "c", Game: "ACC", Matched: true, Actions: 3, Err: errors.New("boom")})

	status := s.GetStatus()
	assert.Equal(t, map[string]int{"applied": 1, "unsupported": 1, "failed": 1}, status.Outcomes)
	require.NotNil(t, status.Last)
	assert.Equal(t, "c", status.Last.RequestID)
	assert.Equal(t, "failed", status.Last.Status)
	assert.Equal(t, "boom", status.Last.Error)
	assert.Equal(t, clock.Now(), status.Last.At)
}

func TestService_GetStatusReadsSources(t *testing.T) {
	games := channel.NewLatest[string]()
	games.Publish("ACC")
	src := &fakeSource{}
	src.state.Store(int32(dispatcher.Applying))

	svc := NewService(Dependencies{Games: games})
	assert.Empty(t, svc.GetStatus().State)

	svc.SetSource(src)
	status := svc.GetStatus()

	assert.Equal(t, "ACC", status.RunningGame)
	assert.Equal(t, "applying", status.State)
	assert.Equal(t, "ACC", status.ActiveGame)
	assert.Equal(t, 2, status.QueueLen)
	assert.Nil(t, status.Last)
}

func TestService_RunWritesStatusFile(t *testing.T) {
	clock := clockwork.NewFakeClock()
	path := filepath.Join(t.TempDir(), "status.json")
	src := &fakeSource{}
	s := NewService(Dependencies{Source: src, Clock: clock, Path: path, Interval: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	assert.True(t, s.IsRunning())

	clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		st, ok := readStatus(t, path)
		return ok && st.State == "idle"
	}, time.Second, time.Millisecond)

	src.state.Store(int32(dispatcher.Resolving))
	s.Record(dispatcher.Outcome{RequestID: "r1", Game: "ACC", Matched: true})
	cancel()
	require.NoError(t, <-done)

	st, ok := readStatus(t, path)
	require.True(t, ok)
	assert.Equal(t, "resolving", st.State)
	assert.Equal(t, 1, st.Outcomes["applied"])
	assert.False(t, s.IsRunning())
}

func TestService_RunRejectsSecondStart(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewService(Dependencies{Clock: clock, Path: filepath.Join(t.TempDir(), "status.json")})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))

	assert.Error(t, s.Run(ctx))
	cancel()
	assert.NoError(t, <-done)
}

func TestService_RunBadPath(t *testing.T) {
	s := NewService(Dependencies{Path: filepath.Join(t.TempDir(), "missing", "status.json")})
	assert.Error(t, s.Run(context.Background()))
}

func TestReadStatus_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := ReadStatus(filepath.Join(dir, "missing.json"))
	assert.ErrorContains(t, err, "reading status file")

	path := filepath.Join(dir, "status.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0644))
	_, err = ReadStatus(path)
	assert.ErrorContains(t, err, "decoding status file")
}
